// Package adaptive implements the adaptive retrieval-and-generation
// pipeline for maintenance questions: query expansion, multi-query
// retrieval fusion, relevance grading with a web-search fallback, answer
// generation, a bounded generate/reflect cycle, and spare-parts price
// lookup.
package adaptive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AiQura/ama-app/config"
	"github.com/AiQura/ama-app/graph"
	"github.com/AiQura/ama-app/llm"
	"github.com/AiQura/ama-app/pkg/logging"
	"github.com/AiQura/ama-app/pkg/telemetry"
	"github.com/AiQura/ama-app/rag/corpus"
	"github.com/AiQura/ama-app/rag/document"
	"github.com/AiQura/ama-app/rag/reranker"
	"github.com/AiQura/ama-app/rag/retriever"
	"github.com/AiQura/ama-app/tool/websearch"
)

// Clients groups the model clients used by the pipeline stages. Default
// backs any stage without its own client. Grading stages should use a
// temperature-0 model.
type Clients struct {
	Default   llm.Client
	Expander  llm.Client
	Grader    llm.Client
	Generator llm.Client
	Critic    llm.Client
	Extractor llm.Client
}

// Pipeline answers one maintenance question per Run. It is safe for
// concurrent use; each run owns its own state record end to end.
type Pipeline struct {
	cfg       *Config
	expander  *expander
	grader    *grader
	generator *generator
	extractor *extractor
	gate      Gate
	retriever *retriever.Retriever
	search    websearch.Searcher
	graph     *graph.Graph
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewPipeline wires the full pipeline. The store may be nil, in which case
// grading is skipped and generation runs with an empty passage set. The
// reranker may be nil, in which case retrieval order stands.
func NewPipeline(clients Clients, store *corpus.Store, rr reranker.Reranker, opts ...Option) (*Pipeline, error) {
	cfg := applyOptions(opts)
	if err := config.ValidatePipelineConfig(cfg.TopN, cfg.TopK, cfg.MaxReflections, cfg.WebResultCap); err != nil {
		return nil, err
	}

	generatorLLM := pickClient(clients.Generator, clients.Default)
	if generatorLLM == nil {
		return nil, fmt.Errorf("generator client is required")
	}

	logger := logging.WithComponent("adaptive_pipeline").With("pipeline", cfg.Name)

	p := &Pipeline{
		cfg:       cfg,
		expander:  newExpander(pickClient(clients.Expander, clients.Default), cfg, logger),
		grader:    newGrader(pickClient(clients.Grader, clients.Default), cfg, logger),
		generator: newGenerator(generatorLLM, cfg, logger),
		extractor: newExtractor(pickClient(clients.Extractor, clients.Default), cfg, logger),
		search:    cfg.search,
		logger:    logger,
		tracer:    otel.Tracer("ama-app/rag/adaptive"),
	}

	p.gate = cfg.gate
	if p.gate == nil {
		p.gate = NewReflectionGate(pickClient(clients.Critic, clients.Default), cfg.ReflectionPrompt)
	}

	if store != nil {
		p.retriever = retriever.New(store, rr,
			retriever.WithTopN(cfg.TopN),
			retriever.WithTopK(cfg.TopK),
		)
	}

	p.graph = p.buildGraph()
	p.logger.Info("adaptive pipeline initialised",
		"top_n", cfg.TopN,
		"top_k", cfg.TopK,
		"max_reflections", cfg.MaxReflections,
		"store_configured", store != nil,
		"web_search_configured", p.search != nil,
	)
	return p, nil
}

func pickClient(primary, fallback llm.Client) llm.Client {
	if primary != nil {
		return primary
	}
	return fallback
}

func (p *Pipeline) buildGraph() *graph.Graph {
	builder := graph.NewBuilder().
		AddNode("start", graph.NodeTypeStart, p.startNode).
		AddNode("retrieve", graph.NodeTypeTool, p.retrieveNode).
		AddConditionNode("grade_gate", p.gradeGate, map[string]string{
			"grade":    "grade_documents",
			"generate": "generate",
		}).
		AddNode("grade_documents", graph.NodeTypeLLM, p.gradeDocumentsNode).
		AddConditionNode("websearch_gate", p.websearchGate, map[string]string{
			"search":   "web_search",
			"generate": "generate",
		}).
		AddNode("web_search", graph.NodeTypeTool, p.webSearchNode).
		AddNode("generate", graph.NodeTypeLLM, p.generateNode).
		AddNode("reflect", graph.NodeTypeLLM, p.reflectNode).
		AddConditionNode("reflect_gate", p.reflectGate, map[string]string{
			"retry":    "generate",
			"escalate": "web_search",
			"accept":   "extract_spare_parts",
		}).
		AddNode("extract_spare_parts", graph.NodeTypeLLM, p.extractNode).
		AddConditionNode("price_gate", p.priceGate, map[string]string{
			"search": "price_search",
			"skip":   "end",
		}).
		AddNode("price_search", graph.NodeTypeTool, p.priceSearchNode).
		AddNode("end", graph.NodeTypeEnd, p.endNode).
		AddEdge("start", "retrieve").
		AddEdge("retrieve", "grade_gate").
		AddEdge("grade_documents", "websearch_gate").
		AddEdge("web_search", "generate").
		AddEdge("generate", "reflect").
		AddEdge("reflect", "reflect_gate").
		AddEdge("extract_spare_parts", "price_gate").
		AddEdge("price_search", "end").
		SetStart("start").
		SetEnd("end").
		SetMaxVisits(p.cfg.GraphMaxVisits)

	return builder.Build()
}

// Run answers one question against the selected sources. It never returns
// an error: every internal failure becomes a well-formed Response whose
// Answer begins with "Error".
func (p *Pipeline) Run(ctx context.Context, question string, sources ...document.Source) *Response {
	st := &RunState{
		Question: strings.TrimSpace(question),
		CorpusID: corpus.Fingerprint(sources),
	}
	if st.Question == "" {
		st.AddEvent("ERROR: empty question")
		return &Response{
			Question: st.Question,
			Answer:   "Error: question cannot be empty",
			Events:   st.Events,
		}
	}

	ctx, span := p.tracer.Start(ctx, "adaptive.run",
		trace.WithAttributes(
			attribute.String("pipeline", p.cfg.Name),
			attribute.String("corpus", st.CorpusID),
		))
	p.logger.Info("pipeline run started",
		"question", trimForLog(st.Question, 120), "corpus", st.CorpusID)

	_, err := p.graph.Execute(ctx, graph.State{runStateKey: st})
	telemetry.End(span, err)
	if err != nil {
		p.logger.Error("pipeline run failed", "error", err)
		st.AddEvent("ERROR: %v", err)
		return &Response{
			Question: st.Question,
			Answer:   fmt.Sprintf("Error: the question could not be answered: %v", err),
			Events:   st.Events,
		}
	}

	p.logger.Info("pipeline run finished",
		"rounds", st.ReflectionRound, "events", len(st.Events))
	return &Response{
		Question:      st.Question,
		Answer:        st.Generation,
		Events:        st.Events,
		PriceEvidence: st.PriceEvidence,
	}
}

func (p *Pipeline) startNode(_ context.Context, gs graph.State) (graph.State, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return nil, err
	}
	st.AddEvent("START corpus=%s", st.CorpusID)
	return gs, nil
}

func (p *Pipeline) retrieveNode(ctx context.Context, gs graph.State) (graph.State, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return nil, err
	}
	if p.retriever == nil {
		st.Documents = nil
		st.AddEvent("RETRIEVE skipped, no document store configured")
		return gs, nil
	}

	ctx, span := p.tracer.Start(ctx, "adaptive.retrieve")
	queries := append([]string{st.Question}, p.expander.Expand(ctx, st.Question)...)
	passages, err := p.retriever.Retrieve(ctx, st.CorpusID, queries)
	telemetry.End(span, err)
	if err != nil {
		return nil, err
	}
	st.Documents = passages
	st.AddEvent("RETRIEVE queries=%d passages=%d", len(queries), len(passages))
	return gs, nil
}

func (p *Pipeline) gradeGate(_ context.Context, gs graph.State) (string, error) {
	if p.retriever == nil {
		return "generate", nil
	}
	return "grade", nil
}

func (p *Pipeline) gradeDocumentsNode(ctx context.Context, gs graph.State) (graph.State, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return nil, err
	}
	kept, needsWeb := p.grader.GradeDocuments(ctx, st.Question, st.Documents)
	dropped := len(st.Documents) - len(kept)
	st.Documents = kept
	st.NeedsWebSearch = needsWeb
	st.AddEvent("GRADE_DOCUMENTS kept=%d dropped=%d web_search=%t", len(kept), dropped, needsWeb)
	return gs, nil
}

func (p *Pipeline) websearchGate(_ context.Context, gs graph.State) (string, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return "", err
	}
	if st.NeedsWebSearch && p.search != nil {
		return "search", nil
	}
	return "generate", nil
}

// webSearchNode serves the evidence fallback: results join the passage set
// and re-enter generation as context.
func (p *Pipeline) webSearchNode(ctx context.Context, gs graph.State) (graph.State, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return nil, err
	}
	results, err := p.search.Search(ctx, st.Question)
	if err != nil {
		p.logger.Warn("web search failed, using placeholder", "error", err)
		results = websearch.Placeholder(st.Question)
	}
	if len(results) > p.cfg.WebResultCap {
		results = results[:p.cfg.WebResultCap]
	}
	for i, r := range results {
		st.Documents = append(st.Documents, &document.Passage{
			Content:  fmt.Sprintf("%s : %s", r.Source, r.Snippet),
			Source:   r.Source,
			Position: i,
		})
	}
	st.NeedsWebSearch = false
	st.AddEvent("WEBSEARCH results=%d", len(results))
	return gs, nil
}

func (p *Pipeline) generateNode(ctx context.Context, gs graph.State) (graph.State, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return nil, err
	}
	ctx, span := p.tracer.Start(ctx, "adaptive.generate")
	err = p.generator.Generate(ctx, st)
	telemetry.End(span, err)
	if err != nil {
		return nil, err
	}
	st.AddEvent("GENERATE round=%d", st.ReflectionRound)
	return gs, nil
}

// reflectNode runs the acceptance gate and advances the round counter
// exactly once per pass.
func (p *Pipeline) reflectNode(ctx context.Context, gs graph.State) (graph.State, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return nil, err
	}
	st.decision = p.gate.Assess(ctx, st)
	st.ReflectionRound++
	st.AddEvent("REFLECT round=%d decision=%s", st.ReflectionRound, st.decision)
	return gs, nil
}

// reflectGate enforces the round ceiling regardless of what the gate
// wants: once the counter passes the ceiling the current generation
// stands.
func (p *Pipeline) reflectGate(_ context.Context, gs graph.State) (string, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return "", err
	}
	if st.ReflectionRound > p.cfg.MaxReflections {
		return "accept", nil
	}
	switch st.decision {
	case DecisionAccept:
		return "accept", nil
	case DecisionEscalate:
		if p.search != nil {
			return "escalate", nil
		}
		return "accept", nil
	default:
		return "retry", nil
	}
}

func (p *Pipeline) extractNode(ctx context.Context, gs graph.State) (graph.State, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return nil, err
	}
	st.SparePartsQuery = p.extractor.Extract(ctx, st.Generation)
	st.AddEvent("EXTRACT_SPARE_PARTS query=%q", trimForLog(st.SparePartsQuery, 80))
	return gs, nil
}

func (p *Pipeline) priceGate(_ context.Context, gs graph.State) (string, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return "", err
	}
	if p.search == nil || HasNoParts(st.SparePartsQuery) {
		return "skip", nil
	}
	return "search", nil
}

// priceSearchNode appends price listings verbatim to the answer; they are
// external offers, not claims the groundedness checks apply to.
func (p *Pipeline) priceSearchNode(ctx context.Context, gs graph.State) (graph.State, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return nil, err
	}
	results, err := p.search.Search(ctx, st.SparePartsQuery)
	if err != nil {
		p.logger.Warn("price search failed, using placeholder", "error", err)
		results = websearch.Placeholder(st.SparePartsQuery)
	}
	if len(results) > p.cfg.WebResultCap {
		results = results[:p.cfg.WebResultCap]
	}
	for _, r := range results {
		st.PriceEvidence = append(st.PriceEvidence, fmt.Sprintf("%s : %s", r.Source, r.Snippet))
	}
	st.Generation = st.Generation + "\n\n" + websearch.Format(results)
	st.AddEvent("PRICE_SEARCH results=%d", len(results))
	return gs, nil
}

func (p *Pipeline) endNode(_ context.Context, gs graph.State) (graph.State, error) {
	st, err := stateFrom(gs)
	if err != nil {
		return nil, err
	}
	st.AddEvent("END")
	return gs, nil
}
