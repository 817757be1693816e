package matcher

import (
	"strings"

	"github.com/agext/levenshtein"
)

// descBonus is added when the description fingerprints of two postings match
// exactly; corroboration only, never identity.
const descBonus = 0.05

// seniorityClasses canonicalizes the qualifier spellings that job boards use
// interchangeably.
var seniorityClasses = map[string]string{
	"senior":    "senior",
	"sr":        "senior",
	"junior":    "junior",
	"jr":        "junior",
	"lead":      "lead",
	"principal": "principal",
	"staff":     "staff",
	"intern":    "intern",
}

// splitSeniority separates a normalized title into its seniority class and
// the remaining role words. "Senior X", "X Sr" and "Sr. X" all yield
// ("senior", "x").
func splitSeniority(title string) (class, role string) {
	var classes []string
	var rest []string
	for _, word := range strings.Fields(title) {
		trimmed := strings.Trim(word, ".")
		if c, ok := seniorityClasses[trimmed]; ok {
			classes = append(classes, c)
			continue
		}
		rest = append(rest, word)
	}
	return strings.Join(classes, " "), strings.Join(rest, " ")
}

// titleSimilarity scores two normalized titles in [0, 1]. Titles that are
// seniority-qualified variants of the same role score 1.0; otherwise the
// score is the normalized edit-distance similarity. Titles differing only in
// seniority level ("senior x" vs plain "x") are NOT equivalent: the
// qualifier is a legitimate match signal, so they fall through to the edit
// distance.
func titleSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	classA, roleA := splitSeniority(a)
	classB, roleB := splitSeniority(b)
	if roleA != "" && roleA == roleB && classA == classB {
		return 1.0
	}

	return levenshtein.Similarity(a, b, nil)
}

// score combines title similarity with the description corroboration bonus.
func score(titleA, titleB string, descMatch bool) float64 {
	s := titleSimilarity(titleA, titleB)
	if descMatch {
		s += descBonus
	}
	if s > 1.0 {
		s = 1.0
	}
	return s
}
