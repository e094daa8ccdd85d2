package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delimatsuo/headhunter-sub011/internal/store"
)

func scored(pairs ...interface{}) []store.ScoredID {
	out := make([]store.ScoredID, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, store.ScoredID{
			CandidateID: pairs[i].(string),
			Score:       pairs[i+1].(float64),
		})
	}
	return out
}

func TestFuseRRFBothBranches(t *testing.T) {
	vector := scored("c1", 0.9, "c2", 0.8, "c3", 0.7)
	text := scored("c2", 0.6, "c1", 0.5)

	fused := FuseRRF(vector, text, 60, 10)
	require.Len(t, fused, 3)

	// c1: 1/61 + 1/62, c2: 1/62 + 1/61, identical RRF; the raw-score
	// tie-break puts c1 (0.9) ahead of c2 (0.8).
	assert.Equal(t, "c1", fused[0].CandidateID)
	assert.Equal(t, "c2", fused[1].CandidateID)
	assert.Equal(t, "c3", fused[2].CandidateID)
	assert.InDelta(t, fused[0].RRFScore, fused[1].RRFScore, 1e-12)
	assert.Greater(t, fused[0].RRFScore, fused[2].RRFScore)
}

func TestFuseRRFSingleBranch(t *testing.T) {
	vector := scored("c1", 0.9, "c2", 0.8, "c3", 0.7, "c4", 0.6, "c5", 0.5)

	fused := FuseRRF(vector, nil, 60, 5)
	require.Len(t, fused, 5)
	for i, want := range []string{"c1", "c2", "c3", "c4", "c5"} {
		assert.Equal(t, want, fused[i].CandidateID)
	}
}

func TestFuseRRFFairness(t *testing.T) {
	// A ahead of B in both branches implies A's RRF score >= B's.
	vector := scored("a", 0.9, "b", 0.8, "x", 0.7)
	text := scored("x", 0.9, "a", 0.6, "b", 0.5)

	fused := FuseRRF(vector, text, 60, 10)
	scores := make(map[string]float64, len(fused))
	for _, f := range fused {
		scores[f.CandidateID] = f.RRFScore
	}
	assert.GreaterOrEqual(t, scores["a"], scores["b"])
}

func TestFuseRRFLexicographicTieBreak(t *testing.T) {
	// Same rank, same raw score in disjoint branches: falls through to ID.
	vector := scored("zed", 0.5)
	text := scored("abc", 0.5)

	fused := FuseRRF(vector, text, 60, 10)
	require.Len(t, fused, 2)
	assert.Equal(t, "abc", fused[0].CandidateID)
	assert.Equal(t, "zed", fused[1].CandidateID)
}

func TestFuseRRFTruncates(t *testing.T) {
	vector := scored("c1", 0.9, "c2", 0.8, "c3", 0.7)
	fused := FuseRRF(vector, nil, 60, 2)
	assert.Len(t, fused, 2)
}

func TestFuseRRFEmpty(t *testing.T) {
	assert.Empty(t, FuseRRF(nil, nil, 60, 10))
}
