// Package embedder provides interfaces and implementations for text embedding.
package embedder

import "context"

// TaskType selects the embedding mode. Queries and corpus documents are
// embedded differently; embedding a query in document mode silently
// degrades ranking quality, so callers must pass the right one.
type TaskType string

const (
	// TaskRetrievalQuery embeds a search query.
	TaskRetrievalQuery TaskType = "RETRIEVAL_QUERY"

	// TaskRetrievalDocument embeds a corpus document at indexing time.
	TaskRetrievalDocument TaskType = "RETRIEVAL_DOCUMENT"

	// TaskSemanticSimilarity embeds text for similarity comparison,
	// used by the semantic answer cache.
	TaskSemanticSimilarity TaskType = "SEMANTIC_SIMILARITY"
)

// Embedder defines the interface for text embedding services.
type Embedder interface {
	// Embed generates an embedding vector for a single text input using
	// the given task type.
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}
