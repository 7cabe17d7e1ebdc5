// Package tier reclassifies search candidates into priority buckets for a
// given question. Tiering exists only to correct known failure modes of
// similarity search for a few question archetypes; for generic questions
// the classifier is a no-op and everything stays in the normal bucket.
package tier

import (
	"strings"

	"github.com/haesolkim/bokjibot/internal/searchstore"
)

// Archetype tags the question patterns that get special ranking treatment.
type Archetype int

const (
	// ArchetypeNone means no special handling applies.
	ArchetypeNone Archetype = iota

	// ArchetypeAssessment covers developmental test / diagnosis questions.
	ArchetypeAssessment

	// ArchetypePeerSocial covers peer-therapy and social-skills program questions.
	ArchetypePeerSocial

	// ArchetypeOrganization covers questions naming a specific operating body.
	ArchetypeOrganization
)

// String returns the archetype name for logging.
func (a Archetype) String() string {
	switch a {
	case ArchetypeAssessment:
		return "assessment"
	case ArchetypePeerSocial:
		return "peer_social"
	case ArchetypeOrganization:
		return "organization"
	default:
		return "none"
	}
}

// organizationVocab is the fixed set of operating bodies the organization
// archetype recognizes in questions.
var organizationVocab = []string{"부모회", "복지관", "센터", "보건소", "육아종합"}

// detectionRule binds an archetype to its question triggers. Order in
// detectionRules is the precedence: the first matching rule wins even when
// several would match.
type detectionRule struct {
	archetype Archetype
	triggers  []string
}

var detectionRules = []detectionRule{
	{ArchetypeAssessment, []string{"검사"}},
	{ArchetypePeerSocial, []string{"짝치료", "그룹", "사회성", "두리", "친구"}},
	{ArchetypeOrganization, organizationVocab},
}

// Detect returns the first archetype whose triggers appear in the question.
func Detect(question string) Archetype {
	for _, rule := range detectionRules {
		if containsAny(question, rule.triggers) {
			return rule.archetype
		}
	}
	return ArchetypeNone
}

// Classification partitions candidates by priority. Every input document
// lands in exactly one bucket; relative order within a bucket follows the
// input order.
type Classification struct {
	Tier1  []searchstore.Document
	Tier2  []searchstore.Document
	Normal []searchstore.Document
}

// Title terms for the assessment archetype.
var (
	assessmentTerms = []string{"검사", "진단", "선별", "스크리닝", "발달", "정밀"}
	costTerms       = []string{"지원", "비용", "바우처", "무료"}
)

// Title terms for the peer-social archetype. 두리 is the local program
// name that peer-therapy questions are really asking about.
var (
	peerPrimaryTerms = []string{"두리", "짝", "그룹"}
	peerLooseTerms   = []string{"사회성", "교실", "친구"}
)

// Classify partitions documents into priority tiers for the question. It
// is pure: the same question and documents always produce the same
// partition, and the inputs are not modified.
func Classify(question string, documents []searchstore.Document) Classification {
	archetype := Detect(question)
	if archetype == ArchetypeNone {
		return Classification{Normal: documents}
	}

	var c Classification
	for _, doc := range documents {
		switch classifyOne(archetype, question, doc) {
		case 1:
			c.Tier1 = append(c.Tier1, doc)
		case 2:
			c.Tier2 = append(c.Tier2, doc)
		default:
			c.Normal = append(c.Normal, doc)
		}
	}
	return c
}

func classifyOne(archetype Archetype, question string, doc searchstore.Document) int {
	title := doc.Metadata.Title

	switch archetype {
	case ArchetypeAssessment:
		hasTest := containsAny(title, assessmentTerms)
		hasCost := containsAny(title, costTerms)
		switch {
		case hasTest && hasCost:
			return 1
		case hasTest:
			return 2
		}

	case ArchetypePeerSocial:
		switch {
		case containsAny(title, peerPrimaryTerms):
			return 1
		case containsAny(title, peerLooseTerms) || strings.Contains(doc.Content, "두리"):
			return 2
		}

	case ArchetypeOrganization:
		// Only organizations literally present in the question count.
		for _, org := range organizationVocab {
			if !strings.Contains(question, org) {
				continue
			}
			if strings.Contains(title, org) || strings.Contains(doc.Content, org) {
				return 1
			}
		}
	}

	return 0
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
