package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleSimilarity_SeniorityVariants(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"senior software engineer", "software engineer sr"},
		{"senior software engineer", "sr. software engineer"},
		{"jr data analyst", "junior data analyst"},
	}

	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			assert.Equal(t, 1.0, titleSimilarity(tt.a, tt.b))
		})
	}
}

func TestTitleSimilarity_SeniorityLevelIsSignal(t *testing.T) {
	// Dropping the qualifier is a different level, not a variant spelling.
	s := titleSimilarity("senior software engineer", "software engineer")
	assert.Less(t, s, 0.85)

	s = titleSimilarity("junior software engineer", "senior software engineer")
	assert.Less(t, s, 1.0)
}

func TestTitleSimilarity_DistinctRoles(t *testing.T) {
	s := titleSimilarity("software engineer", "account executive")
	assert.Less(t, s, 0.5)
}

func TestTitleSimilarity_Identical(t *testing.T) {
	assert.Equal(t, 1.0, titleSimilarity("python developer", "python developer"))
}

func TestScore_DescriptionBonus(t *testing.T) {
	base := titleSimilarity("backend developer", "backend engineer")
	assert.Equal(t, base+descBonus, score("backend developer", "backend engineer", true))
	assert.Equal(t, base, score("backend developer", "backend engineer", false))

	// Bonus never pushes past 1.0.
	assert.Equal(t, 1.0, score("python developer", "python developer", true))
}
