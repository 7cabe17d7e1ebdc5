package reranker

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/haesolkim/bokjibot/internal/llm"
	"github.com/haesolkim/bokjibot/internal/searchstore"
)

const (
	// DefaultWindow caps how many candidates the model sees. Hybrid
	// search puts the answer in the top 10 almost always; candidates
	// beyond the window keep their original order.
	DefaultWindow = 10

	// DefaultFallbackCount is how many tier-ordered candidates stand in
	// for the model's pick when the call fails.
	DefaultFallbackCount = 2

	// snippetLimit truncates candidate content in the prompt.
	snippetLimit = 1500
)

// LLMReranker asks the model to return the best-matching candidate
// indices in priority order.
type LLMReranker struct {
	llmClient     llm.LLM
	window        int
	fallbackCount int
	timeout       time.Duration
	attempts      int
	baseWait      time.Duration
}

// LLMRerankerOption is a functional option for configuring LLMReranker.
type LLMRerankerOption func(*LLMReranker)

// WithWindow sets how many candidates are submitted to the model.
func WithWindow(n int) LLMRerankerOption {
	return func(r *LLMReranker) {
		if n > 0 {
			r.window = n
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) LLMRerankerOption {
	return func(r *LLMReranker) {
		r.timeout = d
	}
}

// WithRetry sets the retry budget for the model call.
func WithRetry(attempts int, baseWait time.Duration) LLMRerankerOption {
	return func(r *LLMReranker) {
		if attempts > 0 {
			r.attempts = attempts
		}
		if baseWait > 0 {
			r.baseWait = baseWait
		}
	}
}

// NewLLMReranker creates a new LLM-based reranker.
func NewLLMReranker(llmClient llm.LLM, opts ...LLMRerankerOption) *LLMReranker {
	r := &LLMReranker{
		llmClient:     llmClient,
		window:        DefaultWindow,
		fallbackCount: DefaultFallbackCount,
		timeout:       60 * time.Second,
		attempts:      3,
		baseWait:      2 * time.Second,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

var indexPattern = regexp.MustCompile(`\b\d+\b`)

// Rerank submits the top candidates to the model and rebuilds the order
// from the indices it returns. Model failure degrades to the incoming
// tier order instead of blocking answer assembly.
func (r *LLMReranker) Rerank(ctx context.Context, question string, candidates []Candidate) Result {
	if len(candidates) == 0 {
		return Result{}
	}

	window := candidates
	var remaining []Candidate
	if len(candidates) > r.window {
		window = candidates[:r.window]
		remaining = candidates[r.window:]
	}

	prompt := r.buildPrompt(question, window)

	var response string
	err := llm.RetryWithBackoff(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		var genErr error
		response, genErr = r.llmClient.Generate(callCtx, prompt, llm.GenerateOptions{
			Temperature: 0.0,
			MaxTokens:   128,
		})
		return genErr
	}, r.attempts, r.baseWait, 10*time.Second)

	if err != nil || strings.TrimSpace(response) == "" {
		reason := "empty model response"
		if err != nil {
			reason = err.Error()
		}
		slog.Warn("rerank degraded to tier order", "question", question, "reason", reason)

		n := r.fallbackCount
		if n > len(candidates) {
			n = len(candidates)
		}
		return Result{Ranked: docsOf(candidates[:n]), Degraded: true, Reason: reason}
	}

	ranked := r.applyIndices(response, window)
	ranked = append(ranked, docsOf(remaining)...)
	return Result{Ranked: ranked}
}

// applyIndices rebuilds the window order from the model's index list.
// Out-of-range and duplicate indices are dropped; unselected candidates
// are appended in their prior order so nothing is silently lost.
func (r *LLMReranker) applyIndices(response string, window []Candidate) []searchstore.Document {
	ranked := make([]searchstore.Document, 0, len(window))
	selected := make(map[int]bool, len(window))

	for _, raw := range indexPattern.FindAllString(response, -1) {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 || idx >= len(window) || selected[idx] {
			continue
		}
		selected[idx] = true
		ranked = append(ranked, window[idx].Doc)
	}

	for i, cand := range window {
		if !selected[i] {
			ranked = append(ranked, cand.Doc)
		}
	}

	return ranked
}

// buildPrompt formats each candidate as a labeled snippet. Tier-1
// candidates carry a structured priority note instead of a mutated title.
func (r *LLMReranker) buildPrompt(question string, window []Candidate) string {
	var sb strings.Builder

	for i, cand := range window {
		sb.WriteString(fmt.Sprintf("[%d]", i))
		if cand.Priority {
			sb.WriteString(" (우선추천)")
		}
		sb.WriteString(" 제목: ")
		sb.WriteString(cand.Doc.Metadata.Title)
		sb.WriteString(" | 내용: ")
		sb.WriteString(snippet(cand.Doc.Content))
		sb.WriteByte('\n')
	}

	return fmt.Sprintf(`사용자 질문: %q

위 질문에 가장 적합한 복지 서비스를 아래 후보 목록에서 찾아, 적합한 순서대로 번호를 나열하세요.

[심사 기준]
1. (우선추천) 표시는 시스템이 키워드 매칭으로 찾은 유력 후보입니다. 질문의 의도와 일치한다면 최우선으로 배치하고, 전혀 맞지 않는다면 무시하세요.
2. 질문이 '학교', '특수교육' 언급 없이 단순 '검사'나 '치료'라면 병원/행정(검사비 지원, 바우처) 사업을 학교 행정 절차보다 우선하세요. '비용 지원' 사업도 중요한 정답이므로 상위에 포함하세요.
3. '짝치료'와 '그룹치료'는 '두리활동', '사회성 향상 프로그램'과 같은 의미입니다. 단순 놀이치료나 부모 상담은 후순위입니다.
4. 질문에 특정 기관명이 있다면 제목뿐 아니라 내용에 그 기관명이 포함된 문서를 우선하세요.
5. 대상 연령이나 자격 요건이 맞지 않거나 전혀 관련 없는 문서는 번호를 적지 말고 제외하세요.

[후보 목록]
%s
[작성 규칙]
- 가장 적합한 후보의 번호 5개를 쉼표로 구분하여 적으세요.
- 예시: 3, 0, 1, 5, 2`, question, sb.String())
}

func snippet(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	runes := []rune(content)
	if len(runes) > snippetLimit {
		return string(runes[:snippetLimit])
	}
	return content
}

func docsOf(candidates []Candidate) []searchstore.Document {
	docs := make([]searchstore.Document, len(candidates))
	for i, cand := range candidates {
		docs[i] = cand.Doc
	}
	return docs
}

// Ensure LLMReranker implements Reranker interface.
var _ Reranker = (*LLMReranker)(nil)
