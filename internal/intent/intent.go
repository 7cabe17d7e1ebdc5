// Package intent classifies an incoming question before it reaches the
// retrieval queue: canned conversational intents are answered immediately
// and only real search queries become jobs.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haesolkim/bokjibot/internal/llm"
	"github.com/haesolkim/bokjibot/internal/queue"
)

// Kind is the resolved intent of a question. The empty kind means a
// normal search query.
type Kind string

const (
	KindNone        Kind = ""
	KindShowMore    Kind = "show_more"
	KindSafetyBlock Kind = "safety_block"
	KindExit        Kind = "exit"
	KindReset       Kind = "reset"
	KindOutOfScope  Kind = "out_of_scope"
	KindSmallTalk   Kind = "small_talk"
	KindClarify     Kind = "clarify_category"
)

// Categories are the welfare categories offered by the clarify flow.
var Categories = []string{"의료재활", "교육보육", "가족지원", "돌봄양육", "생활지원"}

// Extraction is the structured result of intent analysis.
type Extraction struct {
	Intent      Kind     `json:"intent"`
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Age         *int     `json:"age"`
	Keywords    []string `json:"keywords"`
}

// Cache is the best-effort store for extraction results. Failures are
// ignored: a cache miss or error never blocks analysis.
type Cache interface {
	GetExtraction(ctx context.Context, question string) ([]byte, bool)
	SetExtraction(ctx context.Context, question string, payload []byte) error
}

// Extractor runs LLM intent analysis with caching.
type Extractor struct {
	llmClient llm.LLM
	cache     Cache
	timeout   time.Duration
	attempts  int
	baseWait  time.Duration
}

// NewExtractor creates an intent extractor. cache may be nil.
func NewExtractor(llmClient llm.LLM, cache Cache, timeout time.Duration, attempts int, baseWait time.Duration) *Extractor {
	if attempts <= 0 {
		attempts = 3
	}
	return &Extractor{llmClient: llmClient, cache: cache, timeout: timeout, attempts: attempts, baseWait: baseWait}
}

const extractPrompt = `You are an intent classifier for a welfare chatbot.
Analyze the user's input based on history and extract JSON.

[History]
%s

[Input]
%q

[Task]
Return ONLY a JSON object with keys: "intent", "category", "sub_category", "age" (int), "keywords" (list).

[Rules]
1. intent:
   - "show_more" (more info), "safety_block" (profanity), "exit", "reset", "out_of_scope" (weather, stocks), "small_talk".
   - "clarify_category": If input has age/target but NO service keyword (e.g., "6개월 아기", "장애 영유아").
   - null: If it is a normal search query.
2. age: Convert years('살') or 'dol'('돌') to MONTHS. (e.g., "3살" -> 36, "두 돌" -> 24). Return integer or null.
3. category (match specific keywords, else null):
   - "의료재활": 병원, 치료, 검사, 진단, 재활.
   - "교육보육": 어린이집, 유치원, 교육, 보육, 학습.
   - "가족지원": 상담, 부모, 가족.
   - "돌봄양육": 돌봄, 양육, 활동지원, 아이돌봄.
   - "생활지원": 바우처, 지원금, 수당, 셔틀, 교통, 차량, 기저귀, 통장.
   If the input only contains generic words like "복지" or "서비스", set category to null to broaden the search.
4. sub_category: Extract specific traits: "장애", "다문화", "한부모", "저소득", "발달지연". IGNORE generic words like "아이", "아기", "영유아".
5. keywords: Extract core nouns for search. Resolve pronouns ("그거", "거기") using [History].

[Output Example]
{"intent": null, "category": "생활지원", "sub_category": "장애", "age": 24, "keywords": ["바우처", "신청"]}`

// Extract analyzes the question, consulting the cache for history-free
// questions first.
func (e *Extractor) Extract(ctx context.Context, question string, history []queue.Turn) (*Extraction, error) {
	cacheable := e.cache != nil && len(history) == 0
	if cacheable {
		if data, ok := e.cache.GetExtraction(ctx, question); ok {
			var cached Extraction
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	prompt := fmt.Sprintf(extractPrompt, formatHistory(history), question)

	var response string
	err := llm.RetryWithBackoff(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		var genErr error
		response, genErr = e.llmClient.Generate(callCtx, prompt, llm.GenerateOptions{
			Temperature: 0.0,
			MaxTokens:   256,
		})
		return genErr
	}, e.attempts, e.baseWait, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("intent analysis failed: %w", err)
	}

	extraction, err := parseExtraction(response)
	if err != nil {
		return nil, err
	}

	// An age or target trait without any service signal means the user
	// has not said what kind of help they need yet.
	hasCriteria := extraction.Age != nil || extraction.SubCategory != ""
	if hasCriteria && extraction.Category == "" && extraction.Intent == KindNone && len(extraction.Keywords) == 0 {
		extraction.Intent = KindClarify
	}

	if cacheable {
		if data, err := json.Marshal(extraction); err == nil {
			if err := e.cache.SetExtraction(ctx, question, data); err != nil {
				slog.Debug("extraction cache write failed", "error", err)
			}
		}
	}

	return extraction, nil
}

// parseExtraction pulls the JSON object out of the model's response,
// tolerating surrounding prose or fencing.
func parseExtraction(response string) (*Extraction, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in intent response")
	}

	var extraction Extraction
	if err := json.Unmarshal([]byte(response[start:end+1]), &extraction); err != nil {
		return nil, fmt.Errorf("parsing intent response: %w", err)
	}
	return &extraction, nil
}

func formatHistory(history []queue.Turn) string {
	if len(history) == 0 {
		return "None"
	}
	// Only the last few turns matter for pronoun resolution.
	if len(history) > 3 {
		history = history[len(history)-3:]
	}
	var sb strings.Builder
	for _, turn := range history {
		sb.WriteString(turn.Role)
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteByte('\n')
	}
	return strings.TrimSpace(sb.String())
}

// showMoreTerms trigger the pagination path even when the model missed
// the show_more intent.
var showMoreTerms = []string{"더", "다음", "계속", "more", "next"}

// IsShowMore reports whether the question asks for the next result page.
func IsShowMore(question string, kind Kind) bool {
	if kind == KindShowMore {
		return true
	}
	normalized := strings.ToLower(strings.TrimSpace(question))
	for _, term := range showMoreTerms {
		if strings.Contains(normalized, term) {
			return true
		}
	}
	return false
}
