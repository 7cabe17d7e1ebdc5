package reranker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/haesolkim/bokjibot/internal/llm"
	"github.com/haesolkim/bokjibot/internal/searchstore"
)

// fakeLLM returns a scripted response, recording the prompt it saw.
type fakeLLM struct {
	response string
	err      error
	prompt   string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

var _ llm.LLM = (*fakeLLM)(nil)

func candidates(n int) []Candidate {
	cands := make([]Candidate, n)
	for i := range cands {
		id := fmt.Sprintf("p%d", i)
		cands[i] = Candidate{Doc: searchstore.Document{
			PageID:   id,
			Content:  "내용 " + id,
			Metadata: searchstore.Metadata{PageID: id, Title: "제목 " + id},
		}}
	}
	return cands
}

func rankedIDs(result Result) []string {
	ids := make([]string, len(result.Ranked))
	for i, d := range result.Ranked {
		ids[i] = d.PageID
	}
	return ids
}

func newTestReranker(client llm.LLM) *LLMReranker {
	return NewLLMReranker(client, WithRetry(1, time.Millisecond))
}

func TestRerank_AppliesModelOrder(t *testing.T) {
	r := newTestReranker(&fakeLLM{response: "2, 0, 1"})

	result := r.Rerank(context.Background(), "질문", candidates(3))

	if result.Degraded {
		t.Fatal("unexpected degraded result")
	}
	ids := rankedIDs(result)
	if len(ids) != 3 || ids[0] != "p2" || ids[1] != "p0" || ids[2] != "p1" {
		t.Fatalf("expected [p2 p0 p1], got %v", ids)
	}
}

func TestRerank_DropsInvalidIndices(t *testing.T) {
	r := newTestReranker(&fakeLLM{response: "1, 99, 1, 0"})

	result := r.Rerank(context.Background(), "질문", candidates(3))

	// 99 is out of range and the second 1 is a duplicate; the unselected
	// candidate 2 is appended.
	ids := rankedIDs(result)
	if len(ids) != 3 || ids[0] != "p1" || ids[1] != "p0" || ids[2] != "p2" {
		t.Fatalf("expected [p1 p0 p2], got %v", ids)
	}
}

func TestRerank_KeepsCandidatesBeyondWindow(t *testing.T) {
	r := NewLLMReranker(&fakeLLM{response: "1, 0"},
		WithWindow(2), WithRetry(1, time.Millisecond))

	result := r.Rerank(context.Background(), "질문", candidates(4))

	ids := rankedIDs(result)
	if len(ids) != 4 {
		t.Fatalf("expected all 4 candidates, got %v", ids)
	}
	// Window reordered, tail keeps its original order.
	if ids[0] != "p1" || ids[1] != "p0" || ids[2] != "p2" || ids[3] != "p3" {
		t.Fatalf("expected [p1 p0 p2 p3], got %v", ids)
	}
}

func TestRerank_FallbackOnError(t *testing.T) {
	r := newTestReranker(&fakeLLM{err: errors.New("model unavailable")})

	result := r.Rerank(context.Background(), "질문", candidates(5))

	if !result.Degraded {
		t.Fatal("expected degraded result")
	}
	ids := rankedIDs(result)
	if len(ids) != DefaultFallbackCount || ids[0] != "p0" || ids[1] != "p1" {
		t.Fatalf("expected tier-order fallback [p0 p1], got %v", ids)
	}
}

func TestRerank_FallbackOnEmptyResponse(t *testing.T) {
	r := newTestReranker(&fakeLLM{response: "  "})

	result := r.Rerank(context.Background(), "질문", candidates(1))

	if !result.Degraded {
		t.Fatal("expected degraded result")
	}
	if len(result.Ranked) != 1 {
		t.Fatalf("non-empty input must yield non-empty result, got %v", rankedIDs(result))
	}
}

func TestRerank_EmptyCandidates(t *testing.T) {
	r := newTestReranker(&fakeLLM{response: "0"})

	result := r.Rerank(context.Background(), "질문", nil)
	if len(result.Ranked) != 0 || result.Degraded {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestRerank_PriorityMarkerInPrompt(t *testing.T) {
	client := &fakeLLM{response: "0"}
	r := newTestReranker(client)

	cands := candidates(2)
	cands[0].Priority = true

	r.Rerank(context.Background(), "질문", cands)

	if !strings.Contains(client.prompt, "[0] (우선추천)") {
		t.Error("priority candidate missing marker in prompt")
	}
	if strings.Contains(client.prompt, "[1] (우선추천)") {
		t.Error("non-priority candidate must not carry marker")
	}
	// The marker stays in the prompt; titles are never mutated.
	if cands[0].Doc.Metadata.Title != "제목 p0" {
		t.Errorf("candidate title mutated: %q", cands[0].Doc.Metadata.Title)
	}
}

func TestSnippet_TruncatesLongContent(t *testing.T) {
	content := strings.Repeat("가", snippetLimit+100)
	got := snippet(content)
	if len([]rune(got)) != snippetLimit {
		t.Fatalf("expected %d runes, got %d", snippetLimit, len([]rune(got)))
	}
}
