// Package answer renders retrieved program records into the
// conversational answer text shown to users.
package answer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/haesolkim/bokjibot/internal/searchstore"
)

// User-facing messages. Every failure path resolves to one of these
// natural-language answers; internal errors are never exposed.
const (
	MsgNotFound         = "관련 정보를 찾지 못했습니다."
	MsgTemporaryFailure = "일시적인 오류가 발생했습니다. 잠시 후 다시 시도해 주세요."
	MsgNoMoreResults    = "더 이상 표시할 결과가 없습니다."

	foundHeader = "🔎 **정보를 찾았습니다!**\n자세한 정보는 '자세히 보기'를 확인해주세요."
	moreNotice  = "🔍 **아직 결과가 더 남아있습니다.**\n'더 보여줘' 또는 '다음'을 입력해 보세요."
	allSeen     = "✅ **모든 결과를 확인했습니다.**"

	cardSeparator = "\n\n<hr>\n\n"
)

// Build renders the display documents plus a more-results notice when the
// full ordered list is longer than what is shown.
func Build(display []searchstore.Metadata, totalFound int) string {
	body := FormatCards(display)
	text := foundHeader + cardSeparator + body
	if totalFound > len(display) {
		text += cardSeparator + moreNotice
	}
	return text
}

// BuildMore renders a show-more slice. start is the zero-based offset the
// slice begins at; totalFound is the full ordered list length.
func BuildMore(display []searchstore.Metadata, start, totalFound int) string {
	header := fmt.Sprintf("🔎 **추가 정보 (%d~%d번째)**", start+1, start+len(display))
	text := header + cardSeparator + FormatCards(display)
	if start+len(display) < totalFound {
		text += cardSeparator + moreNotice
	} else {
		text += cardSeparator + allSeen
	}
	return text
}

// FormatCards renders one markdown card per page, separated by rules.
func FormatCards(pages []searchstore.Metadata) string {
	cards := make([]string, 0, len(pages))
	for _, meta := range pages {
		title := meta.Title
		if title == "" {
			title = "제목 없음"
		}
		category := meta.Category
		if category == "" {
			category = "기타"
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("**[%s] %s**\n\n", category, title))
		sb.WriteString(CleanSummary(meta.PreSummary))
		if meta.PageURL != "" {
			sb.WriteString(fmt.Sprintf("\n\n🔗 **[자세히 보기](%s)**", meta.PageURL))
		}
		cards = append(cards, sb.String())
	}
	return strings.Join(cards, cardSeparator)
}

// headerPattern matches a bolded bullet header like "* **지원 내용** : ...".
// The second group captures whatever inline content follows the header.
var headerPattern = regexp.MustCompile(`^\s*[\*\-]\s*\*\*(.+?)\*\*\s*:?\s*(.*)$`)

// headerKeywords are the summary sections worth spacing out.
var headerKeywords = []string{"지원 내용", "대상", "지원 혜택", "지원 금액", "신청 방법", "문의처"}

// CleanSummary scrubs a pre-indexed summary for display: separator and
// link-noise lines are dropped, empty headers are removed, and a blank
// line is inserted before each recognized header for readability.
func CleanSummary(text string) string {
	if text == "" {
		return "요약 정보가 없습니다."
	}

	lines := strings.Split(text, "\n")
	var final []string

	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if stripped == "---" || stripped == "***" || stripped == "```" {
			continue
		}
		if strings.Contains(stripped, "👉") || strings.Contains(stripped, "세부 내용") {
			continue
		}

		if match := headerPattern.FindStringSubmatch(stripped); match != nil && isKnownHeader(match[1]) {
			if strings.TrimSpace(match[2]) == "" && headerIsEmpty(lines, i) {
				continue
			}
			if len(final) > 0 {
				final = append(final, "")
			}
		}

		final = append(final, line)
	}

	return strings.TrimSpace(strings.Join(final, "\n"))
}

func isKnownHeader(header string) bool {
	for _, k := range headerKeywords {
		if strings.Contains(header, k) {
			return true
		}
	}
	return false
}

// headerIsEmpty reports whether the header at lines[i] has no content
// before the next header or link line.
func headerIsEmpty(lines []string, i int) bool {
	for j := i + 1; j < len(lines); j++ {
		next := strings.TrimSpace(lines[j])
		if next == "" {
			continue
		}
		if headerPattern.MatchString(next) || strings.Contains(next, "🔗") {
			return true
		}
		return false
	}
	return true
}
