package adaptive

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AiQura/ama-app/llm"
	"github.com/AiQura/ama-app/message"
)

// SatisfactionSentinel is the critic's in-band signal that the generation
// is acceptable, matched case-insensitively as a substring.
const SatisfactionSentinel = "useful answer"

// Decision is a gate's verdict on the current generation.
type Decision string

const (
	// DecisionAccept ends the generate/reflect cycle and proceeds to
	// spare-parts extraction.
	DecisionAccept Decision = "accept"
	// DecisionRetry loops back to generation with the critique.
	DecisionRetry Decision = "retry"
	// DecisionEscalate sends the run to web search for more evidence.
	DecisionEscalate Decision = "escalate"
)

// Gate decides whether the current generation is acceptable. One gate
// instance serves a pipeline; it must not keep per-run state. A gate
// assessment failure must come back as a Decision, not an error, so the
// cycle always makes progress toward its round ceiling.
type Gate interface {
	Assess(ctx context.Context, st *RunState) Decision
}

// ReflectionGate is the default acceptance strategy: a critic model
// reviews the generation and either emits the satisfaction sentinel or a
// critique that drives the next round. It never escalates.
type ReflectionGate struct {
	llm    llm.Client
	prompt string
	logger *slog.Logger
}

// NewReflectionGate creates the critic-driven gate.
func NewReflectionGate(client llm.Client, prompt string) *ReflectionGate {
	if prompt == "" {
		prompt = defaultReflectionPrompt
	}
	return &ReflectionGate{
		llm:    client,
		prompt: prompt,
		logger: slog.Default(),
	}
}

var _ Gate = (*ReflectionGate)(nil)

// Assess implements Gate. The critique is recorded in the run state so a
// retry round can feed it back to the generator. A critic failure counts
// as "not yet satisfactory".
func (g *ReflectionGate) Assess(ctx context.Context, st *RunState) Decision {
	if g.llm == nil {
		return DecisionAccept
	}
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, g.prompt),
		message.NewMessage(message.RoleUser, st.Generation),
	}
	reply, err := g.llm.Generate(ctx, msgs)
	if err != nil {
		st.ReflectionResult = "The answer could not be reviewed. Regenerate it with all four required sections."
		return DecisionRetry
	}
	critique := reply.Text()
	st.ReflectionResult = critique
	if IsSatisfied(critique) {
		return DecisionAccept
	}
	return DecisionRetry
}

// IsSatisfied reports whether a critique contains the satisfaction
// sentinel.
func IsSatisfied(critique string) bool {
	return strings.Contains(strings.ToLower(critique), SatisfactionSentinel)
}

// GroundednessGate is the alternate acceptance strategy: two binary
// checks, support-by-documents then question-addressal.
//
//	not grounded            -> retry (regenerate)
//	grounded, addresses     -> accept
//	grounded, does not      -> escalate (web search)
type GroundednessGate struct {
	grader *grader
}

// NewGroundednessGate creates the grading-driven gate over the pipeline's
// grader client.
func NewGroundednessGate(client llm.Client, opts ...Option) *GroundednessGate {
	cfg := applyOptions(opts)
	return &GroundednessGate{
		grader: newGrader(client, cfg, slog.Default()),
	}
}

var _ Gate = (*GroundednessGate)(nil)

// Assess implements Gate. Grading failures count as "not grounded".
func (g *GroundednessGate) Assess(ctx context.Context, st *RunState) Decision {
	grounded, err := g.grader.GradeGrounded(ctx, st.Generation, st.Documents)
	if err != nil || !grounded {
		st.ReflectionResult = "The answer makes claims that are not supported by the reference material. Regenerate it using only the supplied passages."
		return DecisionRetry
	}
	addresses, err := g.grader.GradeAnswers(ctx, st.Question, st.Generation)
	if err != nil || !addresses {
		st.ReflectionResult = "The answer is grounded but does not address the question."
		return DecisionEscalate
	}
	return DecisionAccept
}

// AcceptAllGate accepts every generation. It turns the pipeline into the
// conventional single-shot mode: retrieve once, generate once, no
// reflection.
type AcceptAllGate struct{}

var _ Gate = AcceptAllGate{}

// Assess implements Gate.
func (AcceptAllGate) Assess(context.Context, *RunState) Decision {
	return DecisionAccept
}
