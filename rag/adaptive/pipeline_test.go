package adaptive

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/AiQura/ama-app/contrib/vector/inmemory"
	"github.com/AiQura/ama-app/message"
	"github.com/AiQura/ama-app/rag/corpus"
	"github.com/AiQura/ama-app/rag/document"
	"github.com/AiQura/ama-app/rag/reranker"
	"github.com/AiQura/ama-app/tool/websearch"
	"github.com/AiQura/ama-app/vector"
)

// stubLLM replays canned responses in order, repeating the last one.
type stubLLM struct {
	replies []string
	err     error
	calls   int
	history [][]*message.Message
}

func (s *stubLLM) Generate(_ context.Context, msgs []*message.Message) (*message.Message, error) {
	s.calls++
	s.history = append(s.history, message.CloneMessages(msgs))
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return message.NewMessage(message.RoleAssistant, s.replies[idx]), nil
}

func (s *stubLLM) SetTemperature(float64) {}
func (s *stubLLM) SetMaxTokens(int64)     {}
func (s *stubLLM) SetModel(string)        {}

type keywordEmbedder struct{}

var keywordSpace = []string{"filter", "hydraulic", "pump", "seal"}

func (k *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(keywordSpace))
	lower := strings.ToLower(text)
	for idx, kw := range keywordSpace {
		if strings.Contains(lower, kw) {
			vec[idx] = 1
		}
	}
	return vec, nil
}

func (k *keywordEmbedder) Dimension() int {
	return len(keywordSpace)
}

func (k *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := k.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

type stubSearcher struct {
	results []websearch.Result
	err     error
	queries []string
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]websearch.Result, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

const structuredAnswer = `Thought Process: the manual covers this.
Final Answer: replace the hydraulic filter, part 12-345.
Brand name: Acme.
Part Numbers: hydraulic filter 12-345.`

func seededStore(t *testing.T) *corpus.Store {
	t.Helper()
	store := corpus.NewStore(inmemory.NewInMemoryVectorStore(), &keywordEmbedder{})
	docs := []*document.Document{
		{ID: "pump-manual", Content: "The hydraulic filter on the Acme pump is part 12-345. Replace it every 500 hours."},
	}
	if _, err := store.Index(context.Background(), corpus.Fingerprint(sourceSet()), docs); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	return store
}

func sourceSet() []document.Source {
	return []document.Source{{ID: "pump-manual", Name: "Pump Manual"}}
}

func countEvents(events []string, prefix string) int {
	n := 0
	for _, e := range events {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func TestRunHappyPath(t *testing.T) {
	genLLM := &stubLLM{replies: []string{structuredAnswer}}
	clients := Clients{
		Expander:  &stubLLM{replies: []string{"how to replace the hydraulic filter step by step"}},
		Grader:    &stubLLM{replies: []string{`{"binary_score": "yes"}`}},
		Generator: genLLM,
		Critic:    &stubLLM{replies: []string{"useful answer"}},
		Extractor: &stubLLM{replies: []string{NoPartsSentinel}},
	}
	pipe, err := NewPipeline(clients, seededStore(t), reranker.Passthrough{})
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?", sourceSet()...)

	if resp.Answer != structuredAnswer {
		t.Fatalf("expected first generation as final answer, got %q", resp.Answer)
	}
	if genLLM.calls != 1 {
		t.Fatalf("expected exactly one generation round, got %d", genLLM.calls)
	}
	if countEvents(resp.Events, "WEBSEARCH") != 0 {
		t.Fatalf("expected no web search, events: %v", resp.Events)
	}
	if countEvents(resp.Events, "REFLECT") != 1 {
		t.Fatalf("expected one reflection, events: %v", resp.Events)
	}
	if len(resp.PriceEvidence) != 0 {
		t.Fatalf("expected no price evidence, got %v", resp.PriceEvidence)
	}
}

func TestRunEmptyCorpusTriggersWebSearch(t *testing.T) {
	store := corpus.NewStore(inmemory.NewInMemoryVectorStore(), &keywordEmbedder{})
	search := &stubSearcher{results: []websearch.Result{
		{Source: "https://forum.example/fix", Snippet: "Filter swap wal.through"},
	}}
	clients := Clients{
		Expander:  &stubLLM{err: fmt.Errorf("expander down")},
		Grader:    &stubLLM{replies: []string{`{"binary_score": "yes"}`}},
		Generator: &stubLLM{replies: []string{structuredAnswer}},
		Critic:    &stubLLM{replies: []string{"useful answer"}},
		Extractor: &stubLLM{replies: []string{NoPartsSentinel}},
	}
	pipe, err := NewPipeline(clients, store, reranker.Passthrough{}, WithWebSearch(search))
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?", sourceSet()...)

	if strings.HasPrefix(resp.Answer, "Error") {
		t.Fatalf("run should survive empty corpus, got %q", resp.Answer)
	}
	if countEvents(resp.Events, "WEBSEARCH") != 1 {
		t.Fatalf("expected web search fallback, events: %v", resp.Events)
	}
	if len(search.queries) == 0 || search.queries[0] != "How do I replace the hydraulic filter?" {
		t.Fatalf("web search should use the original question, got %v", search.queries)
	}
}

func TestRunReflectionCeiling(t *testing.T) {
	genLLM := &stubLLM{replies: []string{
		"draft one", "draft two", "draft three", "draft four", "draft five",
	}}
	clients := Clients{
		Expander:  &stubLLM{replies: []string{""}},
		Grader:    &stubLLM{replies: []string{`{"binary_score": "yes"}`}},
		Generator: genLLM,
		Critic:    &stubLLM{replies: []string{"the Part Numbers section is missing"}},
		Extractor: &stubLLM{replies: []string{NoPartsSentinel}},
	}
	pipe, err := NewPipeline(clients, seededStore(t), reranker.Passthrough{})
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?", sourceSet()...)

	if genLLM.calls != 4 {
		t.Fatalf("expected exactly 4 generation rounds, got %d", genLLM.calls)
	}
	if countEvents(resp.Events, "REFLECT") != 4 {
		t.Fatalf("expected 4 reflections, events: %v", resp.Events)
	}
	if resp.Answer != "draft four" {
		t.Fatalf("expected last generation as answer, got %q", resp.Answer)
	}
	if strings.HasPrefix(resp.Answer, "Error") {
		t.Fatalf("bounded loop must not fail the run, got %q", resp.Answer)
	}
}

func TestRunRevisionFeedsCritique(t *testing.T) {
	genLLM := &stubLLM{replies: []string{"draft one", structuredAnswer}}
	clients := Clients{
		Expander:  &stubLLM{replies: []string{""}},
		Grader:    &stubLLM{replies: []string{`{"binary_score": "yes"}`}},
		Generator: genLLM,
		Critic:    &stubLLM{replies: []string{"add the Brand name section", "useful answer"}},
		Extractor: &stubLLM{replies: []string{NoPartsSentinel}},
	}
	pipe, err := NewPipeline(clients, seededStore(t), reranker.Passthrough{})
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?", sourceSet()...)

	if genLLM.calls != 2 {
		t.Fatalf("expected two generation rounds, got %d", genLLM.calls)
	}
	second := genLLM.history[1]
	last := second[len(second)-1]
	if !strings.Contains(last.Text(), "add the Brand name section") {
		t.Fatalf("second round should carry the critique, got %q", last.Text())
	}
	if len(second) <= len(genLLM.history[0]) {
		t.Fatal("second round should keep the full message history")
	}
	if resp.Answer != structuredAnswer {
		t.Fatalf("unexpected final answer %q", resp.Answer)
	}
}

func TestRunPriceLookupAppendsResults(t *testing.T) {
	search := &stubSearcher{results: []websearch.Result{
		{Source: "https://parts.example/12-345", Snippet: "Acme filter 12-345, $18.99"},
		{Source: "https://shop.example/12-345", Snippet: "OEM filter, $21.50"},
	}}
	clients := Clients{
		Expander:  &stubLLM{replies: []string{""}},
		Grader:    &stubLLM{replies: []string{`{"binary_score": "yes"}`}},
		Generator: &stubLLM{replies: []string{structuredAnswer}},
		Critic:    &stubLLM{replies: []string{"useful answer"}},
		Extractor: &stubLLM{replies: []string{"Acme pump hydraulic filter 12-345 price"}},
	}
	pipe, err := NewPipeline(clients, seededStore(t), reranker.Passthrough{}, WithWebSearch(search))
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?", sourceSet()...)

	if len(resp.PriceEvidence) != 2 {
		t.Fatalf("expected 2 price evidence lines, got %v", resp.PriceEvidence)
	}
	if !strings.Contains(resp.Answer, "https://parts.example/12-345 : Acme filter 12-345, $18.99") {
		t.Fatalf("price results should be appended to the answer, got %q", resp.Answer)
	}
	if search.queries[len(search.queries)-1] != "Acme pump hydraulic filter 12-345 price" {
		t.Fatalf("price lookup should use the extracted query, got %v", search.queries)
	}
	if countEvents(resp.Events, "PRICE_SEARCH") != 1 {
		t.Fatalf("expected one price search, events: %v", resp.Events)
	}
}

func TestRunWithoutStoreSkipsGrading(t *testing.T) {
	genLLM := &stubLLM{replies: []string{structuredAnswer}}
	clients := Clients{
		Generator: genLLM,
		Critic:    &stubLLM{replies: []string{"useful answer"}},
		Extractor: &stubLLM{replies: []string{NoPartsSentinel}},
	}
	pipe, err := NewPipeline(clients, nil, nil)
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?")

	if strings.HasPrefix(resp.Answer, "Error") {
		t.Fatalf("run should complete without a store, got %q", resp.Answer)
	}
	if countEvents(resp.Events, "GRADE_DOCUMENTS") != 0 {
		t.Fatalf("grading should be skipped without a store, events: %v", resp.Events)
	}
	first := genLLM.history[0]
	prompt := first[len(first)-1].Text()
	if !strings.Contains(prompt, "none was found") {
		t.Fatalf("generator must receive the explicit no-evidence signal, got %q", prompt)
	}
}

func TestRunGradingFailureFlagsWebSearch(t *testing.T) {
	search := &stubSearcher{results: []websearch.Result{
		{Source: "https://kb.example", Snippet: "filter guidance"},
	}}
	clients := Clients{
		Expander:  &stubLLM{replies: []string{""}},
		Grader:    &stubLLM{err: fmt.Errorf("grader down")},
		Generator: &stubLLM{replies: []string{structuredAnswer}},
		Critic:    &stubLLM{replies: []string{"useful answer"}},
		Extractor: &stubLLM{replies: []string{NoPartsSentinel}},
	}
	pipe, err := NewPipeline(clients, seededStore(t), reranker.Passthrough{}, WithWebSearch(search))
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?", sourceSet()...)

	if countEvents(resp.Events, "WEBSEARCH") != 1 {
		t.Fatalf("grading failure should trigger web search, events: %v", resp.Events)
	}
	if strings.HasPrefix(resp.Answer, "Error") {
		t.Fatalf("grading failure must not fail the run, got %q", resp.Answer)
	}
}

func TestRunGenerationFailureIsErrorAnswer(t *testing.T) {
	clients := Clients{
		Expander:  &stubLLM{replies: []string{""}},
		Grader:    &stubLLM{replies: []string{`{"binary_score": "yes"}`}},
		Generator: &stubLLM{err: fmt.Errorf("model down")},
	}
	pipe, err := NewPipeline(clients, seededStore(t), reranker.Passthrough{})
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?", sourceSet()...)

	if !strings.HasPrefix(resp.Answer, "Error") {
		t.Fatalf("expected Error-prefixed answer, got %q", resp.Answer)
	}
	if resp.Question == "" || len(resp.Events) == 0 {
		t.Fatalf("failed runs must still return question and events, got %+v", resp)
	}
}

type failingVectorStore struct{}

func (failingVectorStore) AddEmbedding(context.Context, *vector.Embedding) error {
	return fmt.Errorf("backend down")
}

func (failingVectorStore) Search(context.Context, string, []float32, int) ([]*vector.Embedding, error) {
	return nil, fmt.Errorf("backend down")
}

func (failingVectorStore) DeleteCorpus(context.Context, string) error {
	return fmt.Errorf("backend down")
}

func (failingVectorStore) Count(context.Context, string) (int, error) {
	return 0, fmt.Errorf("backend down")
}

func TestRunRetrievalFailureIsErrorAnswer(t *testing.T) {
	store := corpus.NewStore(failingVectorStore{}, &keywordEmbedder{})
	clients := Clients{
		Expander:  &stubLLM{replies: []string{""}},
		Grader:    &stubLLM{replies: []string{`{"binary_score": "yes"}`}},
		Generator: &stubLLM{replies: []string{structuredAnswer}},
	}
	pipe, err := NewPipeline(clients, store, reranker.Passthrough{})
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?", sourceSet()...)

	if !strings.HasPrefix(resp.Answer, "Error") {
		t.Fatalf("retrieval failure must surface as an error answer, got %q", resp.Answer)
	}
}

func TestRunEmptyQuestion(t *testing.T) {
	pipe, err := NewPipeline(Clients{Generator: &stubLLM{replies: []string{"x"}}}, nil, nil)
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}
	resp := pipe.Run(context.Background(), "   ")
	if !strings.HasPrefix(resp.Answer, "Error") {
		t.Fatalf("expected Error answer for empty question, got %q", resp.Answer)
	}
}

func TestNewPipelineRequiresGenerator(t *testing.T) {
	if _, err := NewPipeline(Clients{}, nil, nil); err == nil {
		t.Fatal("expected error when no generator client is configured")
	}
}

func TestRunSingleShotMode(t *testing.T) {
	genLLM := &stubLLM{replies: []string{structuredAnswer}}
	critic := &stubLLM{replies: []string{"never called"}}
	clients := Clients{
		Expander:  &stubLLM{replies: []string{""}},
		Grader:    &stubLLM{replies: []string{`{"binary_score": "yes"}`}},
		Generator: genLLM,
		Critic:    critic,
		Extractor: &stubLLM{replies: []string{NoPartsSentinel}},
	}
	pipe, err := NewPipeline(clients, seededStore(t), reranker.Passthrough{}, WithGate(AcceptAllGate{}))
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?", sourceSet()...)

	if genLLM.calls != 1 || critic.calls != 0 {
		t.Fatalf("single-shot mode: generator=%d critic=%d calls", genLLM.calls, critic.calls)
	}
	if resp.Answer != structuredAnswer {
		t.Fatalf("unexpected answer %q", resp.Answer)
	}
}

func TestRunEscalationFeedsWebEvidence(t *testing.T) {
	genLLM := &stubLLM{replies: []string{"Draft answer without enough detail.", structuredAnswer}}
	gateLLM := &stubLLM{replies: []string{
		`{"binary_score": "yes"}`, // round 1 grounded
		`{"binary_score": "no"}`,  // round 1 does not address: escalate
		`{"binary_score": "yes"}`, // round 2 grounded
		`{"binary_score": "yes"}`, // round 2 addresses: accept
	}}
	searcher := &stubSearcher{results: []websearch.Result{
		{Source: "https://vendor.example/filters", Snippet: "Acme 12-345 replacement guide"},
	}}
	clients := Clients{
		Expander:  &stubLLM{replies: []string{"how to replace the hydraulic filter step by step"}},
		Grader:    &stubLLM{replies: []string{`{"binary_score": "yes"}`}},
		Generator: genLLM,
		Extractor: &stubLLM{replies: []string{NoPartsSentinel}},
	}
	pipe, err := NewPipeline(clients, seededStore(t), reranker.Passthrough{},
		WithGate(NewGroundednessGate(gateLLM)),
		WithWebSearch(searcher),
	)
	if err != nil {
		t.Fatalf("NewPipeline error: %v", err)
	}

	resp := pipe.Run(context.Background(), "How do I replace the hydraulic filter?", sourceSet()...)

	if resp.Answer != structuredAnswer {
		t.Fatalf("expected revised answer, got %q", resp.Answer)
	}
	if genLLM.calls != 2 {
		t.Fatalf("expected two generation rounds, got %d", genLLM.calls)
	}
	if countEvents(resp.Events, "WEBSEARCH") != 1 {
		t.Fatalf("expected one web search, events: %v", resp.Events)
	}

	second := genLLM.history[1]
	revision := second[len(second)-1]
	if revision.Role != message.RoleUser {
		t.Fatalf("expected a user revision turn, got role %q", revision.Role)
	}
	if !strings.Contains(revision.Content, "does not address the question") {
		t.Fatalf("revision turn missing the critique: %q", revision.Content)
	}
	if !strings.Contains(revision.Content, "Acme 12-345 replacement guide") {
		t.Fatalf("revision turn missing the web evidence: %q", revision.Content)
	}
}
