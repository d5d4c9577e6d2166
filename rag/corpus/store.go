package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AiQura/ama-app/pkg/errors"
	"github.com/AiQura/ama-app/pkg/logging"
	"github.com/AiQura/ama-app/rag/chunking"
	"github.com/AiQura/ama-app/rag/document"
	"github.com/AiQura/ama-app/rag/preprocess"
	"github.com/AiQura/ama-app/vector"
)

// Hit is a retrieved passage with its similarity score.
type Hit struct {
	Passage *document.Passage
	Score   float32
}

// Store indexes documents under corpus fingerprints and serves similarity
// search over them. One Store instance is shared by all concurrent runs;
// indexing for a given fingerprint is serialised so a corpus is never
// searched half-built.
type Store struct {
	vectors  vector.VectorStore
	embedder vector.Embedder
	chunker  chunking.Chunker
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithChunker overrides the default splitter.
func WithChunker(c chunking.Chunker) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.chunker = c
		}
	}
}

// NewStore creates a Store over the given vector backend and embedder.
func NewStore(vectors vector.VectorStore, embedder vector.Embedder, opts ...StoreOption) *Store {
	s := &Store{
		vectors:  vectors,
		embedder: embedder,
		chunker:  chunking.NewSplitter(),
		logger:   logging.WithComponent("corpus_store"),
		locks:    make(map[string]*sync.RWMutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) lockFor(fingerprint string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[fingerprint]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[fingerprint] = l
	}
	return l
}

// Index chunks, embeds, and stores the documents under the fingerprint,
// replacing any prior content. It returns the number of passages indexed.
func (s *Store) Index(ctx context.Context, fingerprint string, docs []*document.Document) (int, error) {
	if fingerprint == "" {
		fingerprint = DefaultFingerprint
	}
	lock := s.lockFor(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	if err := s.vectors.DeleteCorpus(ctx, fingerprint); err != nil && !errors.Is(err, errors.ErrNotFound) {
		return 0, fmt.Errorf("clear corpus %s: %w", fingerprint, err)
	}

	indexed := 0
	for _, doc := range docs {
		document.EnsureDocumentID(doc)
		text := doc.Content
		if doc.HTML {
			extracted, err := preprocess.HTMLToText(text)
			if err != nil {
				s.logger.Warn("html extraction failed, indexing raw content",
					"document", doc.ID, "error", err)
			} else {
				text = extracted
			}
		}
		text = preprocess.Preprocess(text)

		chunks, err := s.chunker.Chunk(text)
		if err != nil {
			return indexed, fmt.Errorf("chunk document %s: %w", doc.ID, err)
		}
		if len(chunks) == 0 {
			continue
		}

		vecs, err := s.embedder.EmbedBatch(ctx, chunks)
		if err != nil {
			return indexed, fmt.Errorf("embed document %s: %w", doc.ID, err)
		}
		for i, chunk := range chunks {
			if i >= len(vecs) {
				break
			}
			emb := &vector.Embedding{
				ID:     fmt.Sprintf("%s_%d", doc.ID, i),
				Corpus: fingerprint,
				Vector: vecs[i],
				Text:   chunk,
				Source: doc.ID,
			}
			if err := s.vectors.AddEmbedding(ctx, emb); err != nil {
				return indexed, fmt.Errorf("store passage %s: %w", emb.ID, err)
			}
			indexed++
		}
	}
	s.logger.Info("corpus indexed", "fingerprint", fingerprint,
		"documents", len(docs), "passages", indexed)
	return indexed, nil
}

// Ensure indexes the documents only when the fingerprint has no passages
// yet. It reports whether indexing ran.
func (s *Store) Ensure(ctx context.Context, fingerprint string, docs []*document.Document) (bool, error) {
	if fingerprint == "" {
		fingerprint = DefaultFingerprint
	}
	count, err := s.vectors.Count(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("count corpus %s: %w", fingerprint, err)
	}
	if count > 0 {
		return false, nil
	}
	if _, err := s.Index(ctx, fingerprint, docs); err != nil {
		return false, err
	}
	return true, nil
}

// Search runs similarity search for each query against the fingerprint and
// returns one hit list per query, each ordered by descending similarity.
func (s *Store) Search(ctx context.Context, fingerprint string, queries []string, topN int) ([][]Hit, error) {
	if fingerprint == "" {
		fingerprint = DefaultFingerprint
	}
	if topN <= 0 {
		topN = 10
	}
	lock := s.lockFor(fingerprint)
	lock.RLock()
	defer lock.RUnlock()

	results := make([][]Hit, len(queries))
	for qi, q := range queries {
		qv, err := s.embedder.Embed(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("%w: embed query: %v", errors.ErrRetrievalFailed, err)
		}
		embs, err := s.vectors.Search(ctx, fingerprint, qv, topN)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrRetrievalFailed, err)
		}
		hits := make([]Hit, 0, len(embs))
		for pos, e := range embs {
			hits = append(hits, Hit{
				Passage: &document.Passage{
					Content:  e.Text,
					Source:   e.Source,
					Position: pos,
				},
				Score: vector.CosineSimilarity(qv, e.Vector),
			})
		}
		results[qi] = hits
	}
	return results, nil
}

// Count reports the number of passages indexed under the fingerprint.
func (s *Store) Count(ctx context.Context, fingerprint string) (int, error) {
	if fingerprint == "" {
		fingerprint = DefaultFingerprint
	}
	lock := s.lockFor(fingerprint)
	lock.RLock()
	defer lock.RUnlock()
	return s.vectors.Count(ctx, fingerprint)
}
