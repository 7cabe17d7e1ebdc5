package intent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haesolkim/bokjibot/internal/llm"
	"github.com/haesolkim/bokjibot/internal/queue"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	f.calls++
	return f.response, f.err
}

var _ llm.LLM = (*fakeLLM)(nil)

type memCache struct {
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}}
}

func (m *memCache) GetExtraction(ctx context.Context, question string) ([]byte, bool) {
	data, ok := m.entries[question]
	return data, ok
}

func (m *memCache) SetExtraction(ctx context.Context, question string, payload []byte) error {
	m.entries[question] = payload
	return nil
}

var _ Cache = (*memCache)(nil)

func newTestExtractor(client llm.LLM, cache Cache) *Extractor {
	return NewExtractor(client, cache, time.Second, 1, time.Millisecond)
}

func TestExtract_ParsesResponse(t *testing.T) {
	client := &fakeLLM{response: `Here you go:
{"intent": null, "category": "생활지원", "sub_category": "장애", "age": 24, "keywords": ["바우처"]}`}
	e := newTestExtractor(client, nil)

	got, err := e.Extract(context.Background(), "두 돌 장애 아기 바우처", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Intent != KindNone {
		t.Errorf("intent = %q, want none", got.Intent)
	}
	if got.Category != "생활지원" || got.SubCategory != "장애" {
		t.Errorf("category = %q/%q", got.Category, got.SubCategory)
	}
	if got.Age == nil || *got.Age != 24 {
		t.Errorf("age = %v, want 24", got.Age)
	}
}

func TestExtract_ClarifyWhenOnlyCriteria(t *testing.T) {
	client := &fakeLLM{response: `{"intent": null, "category": null, "sub_category": null, "age": 6, "keywords": []}`}
	e := newTestExtractor(client, nil)

	got, err := e.Extract(context.Background(), "6개월 아기", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Intent != KindClarify {
		t.Errorf("intent = %q, want %q", got.Intent, KindClarify)
	}
}

func TestExtract_NoClarifyWithKeywords(t *testing.T) {
	client := &fakeLLM{response: `{"intent": null, "category": null, "sub_category": "장애", "age": null, "keywords": ["바우처"]}`}
	e := newTestExtractor(client, nil)

	got, err := e.Extract(context.Background(), "장애 바우처", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Intent != KindNone {
		t.Errorf("intent = %q, want none", got.Intent)
	}
}

func TestExtract_CachesHistoryFreeQuestions(t *testing.T) {
	client := &fakeLLM{response: `{"intent": "small_talk"}`}
	cache := newMemCache()
	e := newTestExtractor(client, cache)

	if _, err := e.Extract(context.Background(), "안녕", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Extract(context.Background(), "안녕", nil); err != nil {
		t.Fatal(err)
	}
	if client.calls != 1 {
		t.Errorf("expected one model call, got %d", client.calls)
	}

	// With history the cache is bypassed.
	history := []queue.Turn{{Role: "user", Content: "이전 질문"}}
	if _, err := e.Extract(context.Background(), "안녕", history); err != nil {
		t.Fatal(err)
	}
	if client.calls != 2 {
		t.Errorf("history question must hit the model, got %d calls", client.calls)
	}
}

func TestExtract_ErrorsSurface(t *testing.T) {
	e := newTestExtractor(&fakeLLM{err: errors.New("unavailable")}, nil)

	if _, err := e.Extract(context.Background(), "질문", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtract_NoJSONInResponse(t *testing.T) {
	e := newTestExtractor(&fakeLLM{response: "죄송합니다"}, nil)

	if _, err := e.Extract(context.Background(), "질문", nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestIsShowMore(t *testing.T) {
	tests := []struct {
		question string
		kind     Kind
		want     bool
	}{
		{"아무거나", KindShowMore, true},
		{"더 보여줘", KindNone, true},
		{"다음", KindNone, true},
		{"next please", KindNone, true},
		{"기저귀 지원 알려줘", KindNone, false},
	}
	for _, tt := range tests {
		if got := IsShowMore(tt.question, tt.kind); got != tt.want {
			t.Errorf("IsShowMore(%q, %q) = %v, want %v", tt.question, tt.kind, got, tt.want)
		}
	}
}

func TestCanned_Intents(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindSafetyBlock, true},
		{KindExit, true},
		{KindReset, true},
		{KindOutOfScope, true},
		{KindSmallTalk, true},
		{KindClarify, true},
		{KindNone, false},
		{KindShowMore, false},
	}
	for _, tt := range tests {
		_, ok := Canned(&Extraction{Intent: tt.kind}, "질문")
		if ok != tt.want {
			t.Errorf("Canned(%q) handled = %v, want %v", tt.kind, ok, tt.want)
		}
	}
}

func TestCanned_ClarifyOffersCategories(t *testing.T) {
	age := 6
	reply, ok := Canned(&Extraction{Intent: KindClarify, Age: &age}, "6개월 아기")
	if !ok {
		t.Fatal("clarify must be handled")
	}
	if !strings.Contains(reply.Answer, "6개월 아기") {
		t.Errorf("answer missing age target: %q", reply.Answer)
	}
	if len(reply.Options) != len(Categories) {
		t.Errorf("expected %d category options, got %d", len(Categories), len(reply.Options))
	}
}

func TestCanned_SmallTalkThanks(t *testing.T) {
	reply, ok := Canned(&Extraction{Intent: KindSmallTalk}, "고마워!")
	if !ok {
		t.Fatal("small talk must be handled")
	}
	if !strings.Contains(reply.Answer, "기쁩니다") {
		t.Errorf("thanks should get the gratitude reply, got %q", reply.Answer)
	}
}
