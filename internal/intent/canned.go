package intent

import (
	"fmt"
	"strings"
)

// CannedReply is an immediate answer resolved before queuing.
type CannedReply struct {
	Answer  string
	Options []string
}

// Canned returns the immediate reply for conversational intents, or
// ok=false when the question should proceed to retrieval.
func Canned(extraction *Extraction, question string) (CannedReply, bool) {
	switch extraction.Intent {
	case KindSafetyBlock:
		return CannedReply{Answer: "비속어는 삼가주세요. 😥 복지 정보에 대해 질문해 주세요."}, true

	case KindExit:
		return CannedReply{Answer: "네, 알겠습니다. 언제든 다시 찾아주세요! 😊"}, true

	case KindReset:
		return CannedReply{Answer: "대화를 초기화했습니다. 무엇이 궁금하신가요? 🤖"}, true

	case KindOutOfScope:
		return CannedReply{Answer: "저는 도봉구 영유아 복지 정보만 알려드릴 수 있어요. 😅"}, true

	case KindSmallTalk:
		normalized := strings.ToLower(strings.TrimSpace(question))
		if strings.Contains(normalized, "고마") || strings.Contains(normalized, "감사") {
			return CannedReply{Answer: "도움이 되어 기쁩니다! 😊 언제든 또 물어봐 주세요."}, true
		}
		return CannedReply{Answer: "안녕하세요! 도봉구 영유아 복지 챗봇입니다. 무엇을 도와드릴까요?"}, true

	case KindClarify:
		target := "자녀"
		if extraction.Age != nil {
			target = fmt.Sprintf("%d개월 아기", *extraction.Age)
		}
		return CannedReply{
			Answer:  fmt.Sprintf("%s를 위한 어떤 정보가 궁금하신가요?", target),
			Options: Categories,
		}, true
	}

	return CannedReply{}, false
}
