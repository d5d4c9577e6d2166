// Package retriever fuses multi-query retrieval results into one ranked
// passage list.
package retriever

import (
	"context"
	"log/slog"

	"github.com/AiQura/ama-app/pkg/errors"
	"github.com/AiQura/ama-app/pkg/logging"
	"github.com/AiQura/ama-app/rag/corpus"
	"github.com/AiQura/ama-app/rag/document"
	"github.com/AiQura/ama-app/rag/reranker"
)

// Retriever runs every expanded query against one corpus, pools the hits,
// and reranks the deduplicated pool against the final query. The final
// query is the anchor because expansion emits it last and generation
// answers it.
type Retriever struct {
	store    *corpus.Store
	reranker reranker.Reranker
	topN     int
	topK     int
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopN sets how many passages each query fetches before fusion.
func WithTopN(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.topN = n
		}
	}
}

// WithTopK sets how many passages survive reranking.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// New creates a Retriever. Defaults: 10 passages per query, 15 after fusion.
func New(store *corpus.Store, rr reranker.Reranker, opts ...Option) *Retriever {
	r := &Retriever{
		store:    store,
		reranker: rr,
		topN:     10,
		topK:     15,
		logger:   logging.WithComponent("retriever"),
	}
	if r.reranker == nil {
		r.reranker = reranker.Passthrough{}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Retrieve returns the fused, reranked passage list for the queries.
// Queries run in order; duplicate passage text keeps its first occurrence,
// so earlier queries win ties and the result is deterministic.
func (r *Retriever) Retrieve(ctx context.Context, fingerprint string, queries []string) ([]*document.Passage, error) {
	if len(queries) == 0 {
		return nil, errors.ErrInvalidInput
	}

	perQuery, err := r.store.Search(ctx, fingerprint, queries, r.topN)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var pool []reranker.Candidate
	for _, hits := range perQuery {
		for _, h := range hits {
			if _, dup := seen[h.Passage.Content]; dup {
				continue
			}
			seen[h.Passage.Content] = struct{}{}
			pool = append(pool, reranker.Candidate{Passage: h.Passage, Score: h.Score})
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}

	anchor := queries[len(queries)-1]
	ranked, err := r.reranker.Rank(ctx, anchor, pool)
	if err != nil {
		r.logger.Warn("rerank failed, keeping retrieval order", "error", err)
		ranked, _ = reranker.Passthrough{}.Rank(ctx, anchor, pool)
	}

	if len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}
	passages := make([]*document.Passage, len(ranked))
	for i, res := range ranked {
		passages[i] = res.Passage
	}
	r.logger.Debug("retrieval fused", "queries", len(queries),
		"pooled", len(pool), "kept", len(passages))
	return passages, nil
}
