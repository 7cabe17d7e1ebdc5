// Package searchstore provides access to the indexed welfare-program corpus:
// hybrid candidate search, direct page lookup, and the semantic answer cache.
package searchstore

import "context"

// Metadata is the structured payload stored alongside each indexed chunk.
type Metadata struct {
	PageID      string   `json:"page_id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	SubCategory []string `json:"sub_category,omitempty"`
	StartAge    *int     `json:"start_age,omitempty"`
	EndAge      *int     `json:"end_age,omitempty"`
	PageURL     string   `json:"page_url,omitempty"`
	PreSummary  string   `json:"pre_summary,omitempty"`
}

// Document is one ranked candidate returned by the hybrid search.
// PageID identifies the source page, not the chunk: several chunks of the
// same page may come back and the pipeline collapses them.
type Document struct {
	PageID   string
	Content  string
	Metadata Metadata
	Score    float64
}

// CachedAnswer is a semantic-cache hit.
type CachedAnswer struct {
	Question   string
	Answer     string
	Similarity float64
}

// Store defines the read interface over the corpus. The index write path
// lives in a separate ingestion job.
type Store interface {
	// Search runs the hybrid (vector + keyword) search and returns
	// candidates ranked by the store's own scoring.
	Search(ctx context.Context, embedding []float32, keywords []string, limit int) ([]Document, error)

	// PagesByIDs resolves page metadata for the given ids, preserving the
	// input order and dropping ids that no longer exist.
	PagesByIDs(ctx context.Context, pageIDs []string) ([]Metadata, error)

	// MatchCachedAnswer returns the best stored answer whose question
	// embedding is at least threshold-similar to the given one, or nil.
	MatchCachedAnswer(ctx context.Context, embedding []float32, threshold float64) (*CachedAnswer, error)

	// SaveCachedAnswer stores a (question, answer, embedding) triple for
	// future semantic-cache hits.
	SaveCachedAnswer(ctx context.Context, question, answer string, embedding []float32) error
}
