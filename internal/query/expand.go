// Package query builds the search keyword set for a question: rule-based
// domain synonyms first, LLM-derived keywords appended, the question's own
// scrubbed tokens last, duplicates removed in first-seen order.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/haesolkim/bokjibot/internal/llm"
)

// expansionRule injects domain synonyms when its trigger appears in the
// question (whitespace stripped, so "짝 치료" still matches "짝치료").
// Rules are ordered so the keyword list is deterministic.
type expansionRule struct {
	trigger   string
	expansion string
}

var expansionRules = []expansionRule{
	{"장애검사", "영유아 발달 정밀 검사비 지원 장애인 등록 진단서 발급비"},
	{"발달검사", "영유아 발달 정밀 검사비 지원"},
	{"치료지원", "발달재활서비스 바우처 짝치료 그룹치료"},
	{"짝치료", "또래 그룹치료 두리활동 사회성 향상 프로그램 그룹 활동"},
	{"그룹치료", "또래 두리활동 사회성 향상 프로그램 짝치료"},
	{"언어치료", "발달재활서비스 바우처"},
	{"부모교육", "양육 코칭 상담"},
}

// Emergency keywords injected without the LLM, keyed on question terms.
var fallbackRules = []expansionRule{
	{"검사", "비용 지원 진단서 발급"},
	{"짝치료", "두리활동 프로그램 사회성 또래"},
	{"그룹", "두리활동 프로그램 사회성 또래"},
	{"사회성", "두리활동 프로그램 사회성 또래"},
	{"두리", "두리활동 프로그램 사회성 또래"},
}

// stopwords are question-phrase tokens that add noise to keyword search.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		// question words and requests
		"있어", "있니", "있나요", "어디", "어디야", "알려줘", "해줘", "궁금해",
		"무엇", "뭐야", "대한", "관한", "관련", "알고", "싶어", "해요", "되나요",
		"나와", "저기", "그거", "이거", "요", "좀", "수", "것", "등", "및", "자세히",
		// predicates and endings
		"하는", "있는", "좋을", "같다고", "하셨는데", "하셨습니다", "가야하는지",
		"받아보는", "의심된다고", "같습니다", "합니다", "입니다",
		// subjects that hurt recall
		"선생님께서", "어린이집에서", "아이를", "아이가", "키우고", "우리", "제가",
	} {
		stopwords[w] = struct{}{}
	}
}

var nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// Expansion is the keyword strategy result. Degraded is set when the LLM
// half of the expansion failed and only rule-based terms are present.
type Expansion struct {
	// RuleKeywords are the trigger-injected synonyms; they also feed the
	// query embedding text.
	RuleKeywords []string

	// Keywords is the final deduplicated search keyword list.
	Keywords []string

	Degraded bool
	Reason   string
}

// Expander derives search keywords using the rule table plus an LLM call.
type Expander struct {
	llmClient llm.LLM
	timeout   time.Duration
	attempts  int
	baseWait  time.Duration
}

// NewExpander creates a keyword expander.
func NewExpander(llmClient llm.LLM, timeout time.Duration, attempts int, baseWait time.Duration) *Expander {
	if attempts <= 0 {
		attempts = 3
	}
	return &Expander{llmClient: llmClient, timeout: timeout, attempts: attempts, baseWait: baseWait}
}

// RuleKeywords returns the synonyms triggered by the question alone.
func RuleKeywords(question string) []string {
	stripped := strings.ReplaceAll(question, " ", "")
	var keywords []string
	for _, rule := range expansionRules {
		if strings.Contains(stripped, rule.trigger) {
			keywords = append(keywords, strings.Fields(rule.expansion)...)
		}
	}
	return keywords
}

// Expand builds the full keyword set for the question. LLM failure only
// degrades the set to its rule-based half, it never fails the pipeline.
func (e *Expander) Expand(ctx context.Context, question string) Expansion {
	result := Expansion{RuleKeywords: RuleKeywords(question)}

	aiKeywords, err := e.llmExpand(ctx, question)
	if err != nil {
		result.Degraded = true
		result.Reason = err.Error()
		slog.Warn("keyword expansion degraded to rule-based terms",
			"question", question, "error", err)
	}

	var fallback []string
	for _, rule := range fallbackRules {
		if strings.Contains(question, rule.trigger) {
			fallback = append(fallback, strings.Fields(rule.expansion)...)
		}
	}

	combined := make([]string, 0, len(result.RuleKeywords)+len(aiKeywords)+len(fallback))
	combined = append(combined, result.RuleKeywords...)
	combined = append(combined, aiKeywords...)
	combined = append(combined, fallback...)
	combined = append(combined, scrubTokens(question)...)

	result.Keywords = dedupeKeepOrder(combined)
	return result
}

const expandPrompt = `사용자가 복지 정보를 찾고 있습니다. 검색을 위한 핵심 키워드 5개를 추출하세요.

질문: %q

[필수 확장 규칙]
1. 장애 유형 구체화: 질문에 '장애'가 있다면 '발달', '뇌병변', '지적', '자폐' 같은 구체적인 장애 유형 키워드를 반드시 추가하세요.
2. 서비스 성격 구체화: '검사/진단'은 '비용', '지원', '바우처', '정밀', '선별', '진단서'로, '치료'는 '재활', '언어', '행동', '심리', '감각'으로 확장하세요.
3. 출력 형식: 설명 없이 오직 단어만 쉼표(,)로 구분하여 나열하세요.

[예시]
질문: "장애검사"
답변: 장애, 발달, 뇌병변, 검사, 정밀, 비용, 지원, 진단서`

func (e *Expander) llmExpand(ctx context.Context, question string) ([]string, error) {
	prompt := fmt.Sprintf(expandPrompt, question)

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
		return nil, err
	}

	var keywords []string
	for _, part := range strings.Split(response, ",") {
		if kw := strings.TrimSpace(part); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords, nil
}

// scrubTokens filters the question's own words through the stopword list
// and a minimum length of two runes.
func scrubTokens(question string) []string {
	clean := nonWordPattern.ReplaceAllString(question, "")
	var tokens []string
	for _, tok := range strings.Fields(clean) {
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		if _, banned := stopwords[tok]; banned {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func dedupeKeepOrder(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if utf8.RuneCountInString(kw) < 2 {
			continue
		}
		if _, banned := stopwords[kw]; banned {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// EmbeddingText builds the text embedded for retrieval: the question plus
// its rule-based keywords.
func EmbeddingText(question string, ruleKeywords []string) string {
	if len(ruleKeywords) == 0 {
		return question
	}
	return question + " " + strings.Join(ruleKeywords, " ")
}
