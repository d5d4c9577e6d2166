package adaptive

import (
	"fmt"

	"github.com/AiQura/ama-app/graph"
	"github.com/AiQura/ama-app/message"
	"github.com/AiQura/ama-app/rag/document"
)

const runStateKey = "__adaptive_run_state"

// RunState is the mutable record owned by one pipeline run. It is never
// shared across concurrent questions.
type RunState struct {
	// Question is fixed for the life of the run.
	Question string
	// CorpusID is the fingerprint of the selected knowledge sources.
	CorpusID string
	// Documents holds the current relevance-filtered passage set. The set
	// is replaced as a whole; individual passages are immutable.
	Documents []*document.Passage
	// Generation is the current answer text, overwritten each round.
	Generation string
	// ReflectionResult is the latest critique text.
	ReflectionResult string
	// ReflectionRound counts critiques. It starts at 0, increments once
	// per pass through reflection, and never decreases.
	ReflectionRound int
	// NeedsWebSearch is set by document grading when local evidence is
	// insufficient.
	NeedsWebSearch bool
	// SparePartsQuery is the extracted price-lookup query, or the
	// no-parts sentinel.
	SparePartsQuery string
	// PriceEvidence holds formatted price search results.
	PriceEvidence []string
	// History is the append-only conversation across generation rounds.
	History []*message.Message
	// Events is the ordered stage/decision trace returned to the caller.
	Events []string

	decision Decision
	// contextMark counts the passages already shown to the generator, so
	// evidence fetched between rounds reaches the next revision turn.
	contextMark int
}

// freshDocuments returns the passages added since the last generation
// round.
func (s *RunState) freshDocuments() []*document.Passage {
	if s.contextMark >= len(s.Documents) {
		return nil
	}
	return s.Documents[s.contextMark:]
}

// AddEvent appends one entry to the run trace.
func (s *RunState) AddEvent(format string, args ...any) {
	s.Events = append(s.Events, fmt.Sprintf(format, args...))
}

func stateFrom(gs graph.State) (*RunState, error) {
	raw, ok := gs[runStateKey]
	if !ok {
		return nil, fmt.Errorf("run state missing from graph state")
	}
	st, ok := raw.(*RunState)
	if !ok {
		return nil, fmt.Errorf("unexpected run state type %T", raw)
	}
	return st, nil
}

// Response is the result returned for every run, including failed ones.
// Answer begins with "Error" when the run could not complete.
type Response struct {
	Question      string
	Answer        string
	Events        []string
	PriceEvidence []string
}
