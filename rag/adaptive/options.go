package adaptive

import (
	"github.com/AiQura/ama-app/tool/websearch"
)

const defaultExpansionPrompt = `You help maintenance technicians search equipment manuals.
Given a maintenance question, write up to 8 related questions that explore
different facets of the problem: symptoms, causes, affected components,
required tools, and safety steps. Each question must be between 8 and 15
words. The final question must ask for a step-by-step solution to the
original problem. Output one question per line with no numbering and no
other text.`

const defaultRelevancePrompt = `You grade whether a retrieved passage is relevant to a maintenance question.
A passage is relevant when it contains keywords or meaning related to the
question. Respond with JSON only: {"binary_score": "yes"} or
{"binary_score": "no"}.`

const defaultGenerationPrompt = `You are a maintenance assistant answering questions about industrial
equipment using the provided reference material. Structure every answer
with exactly these four sections, in order:

Thought Process: your reasoning about the problem and the evidence.
Final Answer: the complete, actionable answer.
Brand name: the equipment brand, or state that it is not identified in the
source material.
Part Numbers: every component part mentioned anywhere in your answer with
its part number. If a part has no part number in the source material, say
so explicitly for that part.

If the reference material is empty or insufficient to answer, say so and
ask the user to clarify or provide documentation. Never invent part
numbers.`

const defaultReflectionPrompt = `You review a maintenance answer for completeness and format. Check, in
order: (1) all four sections are present: Thought Process, Final Answer,
Brand name, Part Numbers; if any is missing, demand regeneration. (2) The
Thought Process section shows sound reasoning. (3) The Final Answer section
fully addresses the question. (4) The Brand name section names a brand or
explicitly marks it unavailable. (5) The Part Numbers section covers every
part mentioned in the answer. If all five checks pass, respond with exactly
the phrase "useful answer" and nothing else. Otherwise respond with your
critique and concrete recommendations.`

const defaultGroundedPrompt = `You grade whether an answer is grounded in the supplied reference
passages. Respond with JSON only: {"binary_score": "yes"} if every factual
claim is supported by the passages, {"binary_score": "no"} otherwise.`

const defaultAnswerPrompt = `You grade whether an answer addresses the question asked. Respond with
JSON only: {"binary_score": "yes"} or {"binary_score": "no"}.`

const defaultExtractionPrompt = `You extract a spare-parts price lookup from a maintenance answer. If the
answer names component parts with part numbers, write one search query that
includes the parts, their part numbers, the brand, and the equipment type,
phrased for finding prices, at most 350 characters. If the answer contains
no part numbers, respond with exactly the phrase "no part numbers
available". A brand or equipment mention alone is not enough.`

// Config controls one pipeline instance. All knobs have working defaults;
// prompts are replaceable because wording is not contractual, only the
// response structure is.
type Config struct {
	Name           string // logical name for logging
	TopN           int    // passages fetched per query before fusion
	TopK           int    // passages surviving rerank
	MaxReflections int    // reflection rounds beyond which the loop stops
	GraphMaxVisits int    // safety guard for graph execution
	WebResultCap   int    // max web results consumed per lookup

	ExpansionPrompt  string
	RelevancePrompt  string
	GenerationPrompt string
	ReflectionPrompt string
	GroundedPrompt   string
	AnswerPrompt     string
	ExtractionPrompt string

	gate   Gate
	search websearch.Searcher
}

// Option customises the pipeline configuration.
type Option func(*Config)

// WithName sets the logical pipeline name used in logs.
func WithName(name string) Option {
	return func(cfg *Config) {
		if name != "" {
			cfg.Name = name
		}
	}
}

// WithTopN overrides how many passages each expanded query retrieves.
func WithTopN(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.TopN = n
		}
	}
}

// WithTopK overrides how many passages survive reranking.
func WithTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.TopK = k
		}
	}
}

// WithMaxReflections overrides the reflection round ceiling. The loop
// exits once the round counter exceeds this value.
func WithMaxReflections(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.MaxReflections = n
		}
	}
}

// WithGraphMaxVisits overrides the per-node visit guard.
func WithGraphMaxVisits(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.GraphMaxVisits = n
		}
	}
}

// WithWebSearch enables the web search fallback and price lookup.
func WithWebSearch(s websearch.Searcher) Option {
	return func(cfg *Config) {
		cfg.search = s
	}
}

// WithGate replaces the default reflection gate as the acceptance
// strategy for the generate/reflect cycle.
func WithGate(g Gate) Option {
	return func(cfg *Config) {
		if g != nil {
			cfg.gate = g
		}
	}
}

// WithExpansionPrompt overrides the query expansion system prompt.
func WithExpansionPrompt(p string) Option {
	return func(cfg *Config) {
		if p != "" {
			cfg.ExpansionPrompt = p
		}
	}
}

// WithRelevancePrompt overrides the relevance grading system prompt.
func WithRelevancePrompt(p string) Option {
	return func(cfg *Config) {
		if p != "" {
			cfg.RelevancePrompt = p
		}
	}
}

// WithGenerationPrompt overrides the answer generation system prompt.
func WithGenerationPrompt(p string) Option {
	return func(cfg *Config) {
		if p != "" {
			cfg.GenerationPrompt = p
		}
	}
}

// WithReflectionPrompt overrides the reflection critique system prompt.
func WithReflectionPrompt(p string) Option {
	return func(cfg *Config) {
		if p != "" {
			cfg.ReflectionPrompt = p
		}
	}
}

// WithExtractionPrompt overrides the spare-parts extraction system prompt.
func WithExtractionPrompt(p string) Option {
	return func(cfg *Config) {
		if p != "" {
			cfg.ExtractionPrompt = p
		}
	}
}

func applyOptions(opts []Option) *Config {
	cfg := &Config{
		Name:             "adaptive_rag",
		TopN:             10,
		TopK:             15,
		MaxReflections:   3,
		GraphMaxVisits:   12,
		WebResultCap:     5,
		ExpansionPrompt:  defaultExpansionPrompt,
		RelevancePrompt:  defaultRelevancePrompt,
		GenerationPrompt: defaultGenerationPrompt,
		ReflectionPrompt: defaultReflectionPrompt,
		GroundedPrompt:   defaultGroundedPrompt,
		AnswerPrompt:     defaultAnswerPrompt,
		ExtractionPrompt: defaultExtractionPrompt,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
