package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideBranch(t *testing.T) {
	tests := []struct {
		name          string
		mentionCount  int
		intentPresent bool
		dominantRatio float64
		want          Branch
	}{
		{"two mentions with intent", 2, true, 0.0, BranchMultiUser},
		{"three mentions with intent", 3, true, 0.9, BranchMultiUser},
		{"single mention with intent", 1, true, 0.0, BranchSingleUser},
		{"mentions without intent stay general", 2, false, 0.0, BranchGeneral},
		{"single mention without intent stays general", 1, false, 0.9, BranchGeneral},
		{"intent with dominant author", 0, true, 0.6, BranchDominantUser},
		{"intent at the dominance boundary stays general", 0, true, 0.5, BranchGeneral},
		{"intent without dominance stays general", 0, true, 0.3, BranchGeneral},
		{"dominance without intent stays general", 0, false, 0.9, BranchGeneral},
		{"nothing matches", 0, false, 0.0, BranchGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideBranch(tt.mentionCount, tt.intentPresent, tt.dominantRatio, 0.5)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeScore(t *testing.T) {
	assert.InDelta(t, 0.5, NormalizeScore(0), 1e-12)

	// Monotonic and bounded.
	prev := NormalizeScore(-20)
	for _, raw := range []float64{-5, -1, -0.1, 0, 0.1, 1, 5, 20} {
		cur := NormalizeScore(raw)
		assert.Greater(t, cur, prev)
		assert.Greater(t, cur, 0.0)
		assert.Less(t, cur, 1.0)
		prev = cur
	}
}
