package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haesolkim/bokjibot/internal/llm"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	return f.response, f.err
}

var _ llm.LLM = (*fakeLLM)(nil)

func TestRuleKeywords_TriggerIgnoresWhitespace(t *testing.T) {
	spaced := RuleKeywords("짝 치료 받을 수 있나요")
	joined := RuleKeywords("짝치료 받을 수 있나요")

	if len(spaced) == 0 {
		t.Fatal("spaced trigger did not match")
	}
	if len(spaced) != len(joined) {
		t.Fatalf("spacing changed the expansion: %v vs %v", spaced, joined)
	}
}

func TestRuleKeywords_NoTrigger(t *testing.T) {
	if got := RuleKeywords("기저귀 지원 알려줘"); got != nil {
		t.Fatalf("expected no rule keywords, got %v", got)
	}
}

func TestExpand_CombinesSourcesInOrder(t *testing.T) {
	e := NewExpander(&fakeLLM{response: "발달, 정밀, 비용"}, time.Second, 1, time.Millisecond)

	result := e.Expand(context.Background(), "발달검사 비용 알려줘")

	if result.Degraded {
		t.Fatal("unexpected degraded expansion")
	}
	if len(result.RuleKeywords) == 0 {
		t.Fatal("expected rule keywords for 발달검사")
	}
	// Rule keywords lead, then LLM terms, then the question's own tokens.
	if result.Keywords[0] != result.RuleKeywords[0] {
		t.Fatalf("rule keywords must come first, got %v", result.Keywords)
	}
	if !contains(result.Keywords, "정밀") {
		t.Fatalf("missing LLM keyword, got %v", result.Keywords)
	}
	if !contains(result.Keywords, "발달검사") {
		t.Fatalf("missing question token, got %v", result.Keywords)
	}
}

func TestExpand_DegradesOnLLMFailure(t *testing.T) {
	e := NewExpander(&fakeLLM{err: errors.New("unavailable")}, time.Second, 1, time.Millisecond)

	result := e.Expand(context.Background(), "발달검사 비용")

	if !result.Degraded {
		t.Fatal("expected degraded expansion")
	}
	if result.Reason == "" {
		t.Fatal("degraded expansion must carry a reason")
	}
	// Rule keywords and the fallback terms still produce a usable set.
	if len(result.Keywords) == 0 {
		t.Fatal("degraded expansion must still yield keywords")
	}
	if !contains(result.Keywords, "진단서") {
		t.Fatalf("missing fallback keyword, got %v", result.Keywords)
	}
}

func TestExpand_Dedupes(t *testing.T) {
	e := NewExpander(&fakeLLM{response: "바우처, 바우처, 지원"}, time.Second, 1, time.Millisecond)

	result := e.Expand(context.Background(), "언어치료 바우처")

	seen := map[string]int{}
	for _, kw := range result.Keywords {
		seen[kw]++
		if seen[kw] > 1 {
			t.Fatalf("duplicate keyword %q in %v", kw, result.Keywords)
		}
	}
}

func TestScrubTokens_DropsStopwordsAndShortTokens(t *testing.T) {
	tokens := scrubTokens("우리 아이가 짝치료 좀 알려줘")

	if contains(tokens, "우리") || contains(tokens, "아이가") || contains(tokens, "좀") || contains(tokens, "알려줘") {
		t.Fatalf("stopwords not removed: %v", tokens)
	}
	if !contains(tokens, "짝치료") {
		t.Fatalf("content token missing: %v", tokens)
	}
}

func TestEmbeddingText(t *testing.T) {
	if got := EmbeddingText("질문", nil); got != "질문" {
		t.Errorf("without rule keywords, got %q", got)
	}
	if got := EmbeddingText("질문", []string{"가", "나"}); got != "질문 가 나" {
		t.Errorf("with rule keywords, got %q", got)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
