package tier

import (
	"strings"

	"github.com/haesolkim/bokjibot/internal/searchstore"
)

// Terms that mark a question as asking about school placement rather than
// a medical assessment. Their presence disables the blacklist.
var schoolContextTerms = []string{"학교", "입학", "교육청", "특수", "선별"}

// Title terms for special-education placement and screening programs.
// These are school administrative procedures, not medical diagnoses, and
// they are wrong answers for a plain assessment question.
var adminEducationBlacklist = []string{"특수교육", "선별", "배치", "입학", "교육청"}

// FilterAdministrative drops special-education placement documents when
// the question asks about assessment without any school context. This is
// a hard exclusion, not a tier demotion: filtered documents never reach
// the ranked result list.
func FilterAdministrative(question string, documents []searchstore.Document) []searchstore.Document {
	if !strings.Contains(question, "검사") || containsAny(question, schoolContextTerms) {
		return documents
	}

	filtered := make([]searchstore.Document, 0, len(documents))
	for _, doc := range documents {
		if containsAny(doc.Metadata.Title, adminEducationBlacklist) {
			continue
		}
		filtered = append(filtered, doc)
	}
	return filtered
}
