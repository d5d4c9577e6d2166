// Package reranker reorders retrieved passages against an anchor query.
//
// Multi-query retrieval pools passages from several expanded questions;
// reranking restores a single ordering against the question the answer will
// actually address. Ordering must be stable so equal scores keep retrieval
// order and repeated runs stay deterministic.
package reranker

import (
	"context"
	"sort"

	"github.com/AiQura/ama-app/rag/document"
	"github.com/AiQura/ama-app/vector"
)

// Candidate is a retrieved passage with its retrieval-time score.
type Candidate struct {
	Passage *document.Passage
	Score   float32
}

// Result is a passage after reranking.
type Result struct {
	Passage *document.Passage
	Score   float32
}

// Reranker scores candidates against the anchor text and returns them in
// descending score order. Implementations must sort stably.
type Reranker interface {
	Rank(ctx context.Context, anchor string, candidates []Candidate) ([]Result, error)
}

// SortStable orders results by descending score, preserving input order for
// ties.
func SortStable(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// Embedding reranks by cosine similarity between the anchor embedding and
// each candidate's text embedding. It is the default when no cross-encoder
// service is configured.
type Embedding struct {
	embedder vector.Embedder
}

// NewEmbedding creates an embedding-similarity reranker.
func NewEmbedding(embedder vector.Embedder) *Embedding {
	return &Embedding{embedder: embedder}
}

var _ Reranker = (*Embedding)(nil)

// Rank implements Reranker.
func (e *Embedding) Rank(ctx context.Context, anchor string, candidates []Candidate) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	anchorVec, err := e.embedder.Embed(ctx, anchor)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Passage.Content
	}
	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		score := c.Score
		if i < len(vecs) {
			score = vector.CosineSimilarity(anchorVec, vecs[i])
		}
		results[i] = Result{Passage: c.Passage, Score: score}
	}
	SortStable(results)
	return results, nil
}

// Passthrough keeps retrieval scores and only sorts. Used as the last-resort
// fallback when both the cross-encoder and the embedder are unavailable.
type Passthrough struct{}

var _ Reranker = Passthrough{}

// Rank implements Reranker.
func (Passthrough) Rank(_ context.Context, _ string, candidates []Candidate) ([]Result, error) {
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{Passage: c.Passage, Score: c.Score}
	}
	SortStable(results)
	return results, nil
}
