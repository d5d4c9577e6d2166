package vector

import (
	"context"
	"math"
)

// Embedding represents a vector embedding stored under a corpus fingerprint
type Embedding struct {
	ID     string
	Corpus string
	Vector []float32
	Text   string
	Source string
}

// VectorStore defines the interface for vector storage and similarity search.
// All operations are scoped to one corpus fingerprint; a store instance is
// shared across concurrent pipeline runs.
type VectorStore interface {
	// AddEmbedding adds a new embedding to the store
	AddEmbedding(ctx context.Context, embedding *Embedding) error

	// Search finds embeddings in the given corpus similar to the query vector
	Search(ctx context.Context, corpus string, queryVector []float32, topK int) ([]*Embedding, error)

	// DeleteCorpus removes every embedding stored under the corpus
	DeleteCorpus(ctx context.Context, corpus string) error

	// Count returns the number of embeddings in the corpus
	Count(ctx context.Context, corpus string) (int, error)
}

// Embedder defines the interface for creating embeddings from text
type Embedder interface {
	// Embed converts text to a vector embedding
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to embeddings
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension return number of embedding dimensions
	Dimension() int
}

// CosineSimilarityOperator returns the PostgreSQL operator for cosine distance
func CosineSimilarityOperator() string {
	return "<->"
}

// CosineSimilarity calculates the cosine similarity between two vectors
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB))+1e-8)
}
