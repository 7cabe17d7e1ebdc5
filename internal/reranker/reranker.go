// Package reranker reorders a short candidate list using a language
// model's judgment of relevance, with a deterministic fallback to the
// rule-based tier order when the model is unavailable.
package reranker

import (
	"context"

	"github.com/haesolkim/bokjibot/internal/searchstore"
)

// Candidate is one document offered to the reranker. Priority marks
// tier-1 candidates; it is passed as a structured field in the rerank
// prompt rather than injected into the display title.
type Candidate struct {
	Doc      searchstore.Document
	Priority bool
}

// Result is the reranked order. Degraded is set when the model call
// failed and the rule-based tier order was used instead; the answer is
// still assembled either way.
type Result struct {
	Ranked   []searchstore.Document
	Degraded bool
	Reason   string
}

// Reranker defines the interface for re-ranking search candidates.
type Reranker interface {
	// Rerank reorders candidates by relevance to the question. Candidates
	// the model omits are appended after the reranked prefix in their
	// original order; none are ever lost. A non-empty candidate list
	// always yields a non-empty result.
	Rerank(ctx context.Context, question string, candidates []Candidate) Result
}
