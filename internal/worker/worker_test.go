package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haesolkim/bokjibot/internal/answer"
	"github.com/haesolkim/bokjibot/internal/embedder"
	"github.com/haesolkim/bokjibot/internal/llm"
	"github.com/haesolkim/bokjibot/internal/query"
	"github.com/haesolkim/bokjibot/internal/queue"
	"github.com/haesolkim/bokjibot/internal/reranker"
	"github.com/haesolkim/bokjibot/internal/searchstore"
)

type fakeLLM struct{}

func (fakeLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	return "", errors.New("unavailable")
}

var _ llm.LLM = fakeLLM{}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, task embedder.TaskType) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if task != embedder.TaskRetrievalQuery {
		return nil, errors.New("wrong task type for a query")
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake" }

var _ embedder.Embedder = (*fakeEmbedder)(nil)

type fakeStore struct {
	docs        []searchstore.Document
	cached      *searchstore.CachedAnswer
	searchCalls int
	savedAnswer string
}

func (f *fakeStore) Search(ctx context.Context, embedding []float32, keywords []string, limit int) ([]searchstore.Document, error) {
	f.searchCalls++
	return f.docs, nil
}

func (f *fakeStore) PagesByIDs(ctx context.Context, pageIDs []string) ([]searchstore.Metadata, error) {
	return nil, nil
}

func (f *fakeStore) MatchCachedAnswer(ctx context.Context, embedding []float32, threshold float64) (*searchstore.CachedAnswer, error) {
	return f.cached, nil
}

func (f *fakeStore) SaveCachedAnswer(ctx context.Context, question, answerText string, embedding []float32) error {
	f.savedAnswer = answerText
	return nil
}

var _ searchstore.Store = (*fakeStore)(nil)

// identityReranker keeps the tier order.
type identityReranker struct{}

func (identityReranker) Rerank(ctx context.Context, question string, candidates []reranker.Candidate) reranker.Result {
	docs := make([]searchstore.Document, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Doc
	}
	return reranker.Result{Ranked: docs}
}

var _ reranker.Reranker = identityReranker{}

func doc(pageID, title string) searchstore.Document {
	return searchstore.Document{
		PageID:   pageID,
		Content:  "내용",
		Metadata: searchstore.Metadata{PageID: pageID, Title: title, Category: "생활지원"},
	}
}

func newTestWorker(store *fakeStore, embed *fakeEmbedder) *Worker {
	expander := query.NewExpander(fakeLLM{}, time.Second, 1, time.Millisecond)
	cfg := Config{RetryAttempts: 1, RetryBaseWait: time.Millisecond}
	return New(nil, nil, store, embed, expander, identityReranker{}, nil, cfg)
}

func TestProcess_HappyPath(t *testing.T) {
	store := &fakeStore{docs: []searchstore.Document{
		doc("a", "기저귀 지원"),
		doc("a", "기저귀 지원"), // duplicate chunk of the same page
		doc("b", "아동 수당"),
		doc("c", "양육 바우처"),
	}}
	w := newTestWorker(store, &fakeEmbedder{})

	result := w.Process(context.Background(), &queue.Job{ID: "j1", Question: "기저귀 지원 알려줘"})

	if result.Status != queue.StatusComplete {
		t.Fatalf("status = %q", result.Status)
	}
	if len(result.OrderedIDs) != 3 {
		t.Fatalf("expected 3 deduplicated ids, got %v", result.OrderedIDs)
	}
	if result.OrderedIDs[0] != "a" || result.OrderedIDs[1] != "b" || result.OrderedIDs[2] != "c" {
		t.Fatalf("wrong order: %v", result.OrderedIDs)
	}
	if result.TotalFound != 3 || result.ShownCount != 2 {
		t.Fatalf("total=%d shown=%d", result.TotalFound, result.ShownCount)
	}
	if !strings.Contains(result.Answer, "아직 결과가 더 남아있습니다") {
		t.Error("missing more-results notice with hidden candidates")
	}
	if store.savedAnswer != result.Answer {
		t.Error("answer not written to the semantic cache")
	}
}

func TestProcess_OrderedIDsUnique(t *testing.T) {
	store := &fakeStore{docs: []searchstore.Document{
		doc("a", "두리활동 프로그램"),
		doc("b", "사회성 향상 교실"),
		doc("c", "놀이치료"),
	}}
	w := newTestWorker(store, &fakeEmbedder{})

	// A tiered question reorders candidates; the id list must still cover
	// every page exactly once.
	result := w.Process(context.Background(), &queue.Job{ID: "j2", Question: "짝치료 알려줘"})

	seen := map[string]bool{}
	for _, id := range result.OrderedIDs {
		if seen[id] {
			t.Fatalf("duplicate id %q in %v", id, result.OrderedIDs)
		}
		seen[id] = true
	}
	if len(result.OrderedIDs) != 3 {
		t.Fatalf("expected every page once, got %v", result.OrderedIDs)
	}
}

func TestProcess_EmbeddingFailure(t *testing.T) {
	store := &fakeStore{}
	w := newTestWorker(store, &fakeEmbedder{err: errors.New("embedding down")})

	result := w.Process(context.Background(), &queue.Job{ID: "j3", Question: "질문"})

	if result.Status != queue.StatusComplete {
		t.Fatalf("status = %q", result.Status)
	}
	if result.Answer != answer.MsgTemporaryFailure {
		t.Fatalf("answer = %q", result.Answer)
	}
	if store.searchCalls != 0 {
		t.Error("search must not run without an embedding")
	}
}

func TestProcess_EmptySearch(t *testing.T) {
	w := newTestWorker(&fakeStore{}, &fakeEmbedder{})

	result := w.Process(context.Background(), &queue.Job{ID: "j4", Question: "질문"})

	if result.Answer != answer.MsgNotFound {
		t.Fatalf("answer = %q", result.Answer)
	}
	if len(result.OrderedIDs) != 0 {
		t.Fatalf("unexpected ids: %v", result.OrderedIDs)
	}
}

func TestProcess_SemanticCacheHit(t *testing.T) {
	store := &fakeStore{
		docs:   []searchstore.Document{doc("a", "기저귀 지원")},
		cached: &searchstore.CachedAnswer{Question: "기저귀 지원?", Answer: "캐시된 답변", Similarity: 0.95},
	}
	w := newTestWorker(store, &fakeEmbedder{})

	result := w.Process(context.Background(), &queue.Job{ID: "j5", Question: "기저귀 지원 알려줘"})

	if result.Answer != "캐시된 답변" {
		t.Fatalf("answer = %q", result.Answer)
	}
	if store.searchCalls != 0 {
		t.Error("cache hit must skip retrieval")
	}
}

func TestProcess_AdministrativeFilter(t *testing.T) {
	store := &fakeStore{docs: []searchstore.Document{
		doc("a", "특수교육대상자 선정 및 배치 안내"),
	}}
	w := newTestWorker(store, &fakeEmbedder{})

	result := w.Process(context.Background(), &queue.Job{ID: "j6", Question: "6개월 아기 발달검사 비용 알려줘"})

	if result.Answer != answer.MsgNotFound {
		t.Fatalf("placement doc must be excluded, got %q", result.Answer)
	}
}
