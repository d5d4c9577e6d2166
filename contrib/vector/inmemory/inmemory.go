package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AiQura/ama-app/pkg/errors"
	"github.com/AiQura/ama-app/vector"
)

// InMemoryVectorStore implements VectorStore using in-memory storage, one
// embedding map per corpus fingerprint. Intended for tests and local runs.
type InMemoryVectorStore struct {
	corpora map[string]map[string]*vector.Embedding
	mu      sync.RWMutex
}

// NewInMemoryVectorStore creates a new in-memory vector store
func NewInMemoryVectorStore() *InMemoryVectorStore {
	return &InMemoryVectorStore{
		corpora: make(map[string]map[string]*vector.Embedding),
	}
}

// AddEmbedding adds a new embedding to the store
func (s *InMemoryVectorStore) AddEmbedding(ctx context.Context, embedding *vector.Embedding) error {
	if embedding == nil {
		return fmt.Errorf("embedding cannot be nil")
	}
	if embedding.ID == "" {
		return fmt.Errorf("embedding ID cannot be empty")
	}
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("embedding vector cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.corpora[embedding.Corpus]
	if !ok {
		bucket = make(map[string]*vector.Embedding)
		s.corpora[embedding.Corpus] = bucket
	}
	bucket[embedding.ID] = embedding
	return nil
}

// Search finds embeddings in the corpus similar to the query vector
func (s *InMemoryVectorStore) Search(ctx context.Context, corpus string, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type result struct {
		embedding  *vector.Embedding
		similarity float32
	}

	bucket := s.corpora[corpus]
	results := make([]result, 0, len(bucket))
	for _, emb := range bucket {
		if len(emb.Vector) != len(queryVector) {
			continue
		}
		results = append(results, result{
			embedding:  emb,
			similarity: vector.CosineSimilarity(queryVector, emb.Vector),
		})
	}

	// Highest similarity first; ties keep map-independent determinism via ID.
	sort.Slice(results, func(i, j int) bool {
		if results[i].similarity != results[j].similarity {
			return results[i].similarity > results[j].similarity
		}
		return results[i].embedding.ID < results[j].embedding.ID
	})

	limit := topK
	if limit > len(results) {
		limit = len(results)
	}

	embeddings := make([]*vector.Embedding, limit)
	for i := 0; i < limit; i++ {
		embeddings[i] = results[i].embedding
	}
	return embeddings, nil
}

// DeleteCorpus removes all embeddings stored under the corpus
func (s *InMemoryVectorStore) DeleteCorpus(ctx context.Context, corpus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.corpora[corpus]; !ok {
		return fmt.Errorf("corpus %s: %w", corpus, errors.ErrNotFound)
	}
	delete(s.corpora, corpus)
	return nil
}

// Count returns the number of embeddings in the corpus
func (s *InMemoryVectorStore) Count(ctx context.Context, corpus string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.corpora[corpus]), nil
}
