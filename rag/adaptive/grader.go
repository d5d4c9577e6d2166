package adaptive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AiQura/ama-app/llm"
	"github.com/AiQura/ama-app/message"
	"github.com/AiQura/ama-app/rag/document"
)

type binaryVerdict struct {
	BinaryScore string `json:"binary_score"`
}

func (v *binaryVerdict) yes() bool {
	return v != nil && strings.EqualFold(strings.TrimSpace(v.BinaryScore), "yes")
}

// grader runs the binary classification calls: per-passage relevance and
// the groundedness/answer checks. Grading failures are fail-safe negative
// judgments, never run failures.
type grader struct {
	llm    llm.Client
	cfg    *Config
	logger *slog.Logger
}

func newGrader(client llm.Client, cfg *Config, logger *slog.Logger) *grader {
	return &grader{llm: client, cfg: cfg, logger: logger}
}

func (g *grader) binary(ctx context.Context, systemPrompt, userPrompt string) (bool, error) {
	if g.llm == nil {
		return false, fmt.Errorf("grader client not configured")
	}
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, systemPrompt),
		message.NewMessage(message.RoleUser, userPrompt),
	}
	reply, err := g.llm.Generate(ctx, msgs)
	if err != nil {
		return false, err
	}
	verdict, err := decodeJSON[binaryVerdict](reply.Text())
	if err != nil {
		return false, err
	}
	return verdict.yes(), nil
}

// GradeDocuments filters passages to the relevant subset and reports
// whether a web-search fallback is needed. Any irrelevant passage, any
// grading failure, or an empty set flips the flag.
func (g *grader) GradeDocuments(ctx context.Context, question string, passages []*document.Passage) ([]*document.Passage, bool) {
	if len(passages) == 0 {
		return nil, true
	}

	kept := make([]*document.Passage, 0, len(passages))
	needsWeb := false
	for _, p := range passages {
		prompt := fmt.Sprintf("Question:\n%s\n\nPassage:\n%s", question, p.Content)
		relevant, err := g.binary(ctx, g.cfg.RelevancePrompt, prompt)
		if err != nil {
			g.logger.Debug("relevance grading failed, dropping passage", "error", err)
			relevant = false
		}
		if relevant {
			kept = append(kept, p)
		} else {
			needsWeb = true
		}
	}
	if len(kept) == 0 {
		needsWeb = true
	}
	return kept, needsWeb
}

// GradeGrounded checks whether the generation is supported by the passages.
func (g *grader) GradeGrounded(ctx context.Context, generation string, passages []*document.Passage) (bool, error) {
	contents := make([]document.Passage, 0, len(passages))
	for _, p := range passages {
		contents = append(contents, *p)
	}
	prompt := fmt.Sprintf("Reference passages:\n%s\n\nAnswer:\n%s", document.Text(contents), generation)
	return g.binary(ctx, g.cfg.GroundedPrompt, prompt)
}

// GradeAnswers checks whether the generation addresses the question.
func (g *grader) GradeAnswers(ctx context.Context, question, generation string) (bool, error) {
	prompt := fmt.Sprintf("Question:\n%s\n\nAnswer:\n%s", question, generation)
	return g.binary(ctx, g.cfg.AnswerPrompt, prompt)
}
