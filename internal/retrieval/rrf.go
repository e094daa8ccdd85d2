package retrieval

import (
	"sort"

	"github.com/delimatsuo/headhunter-sub011/internal/store"
)

// Fused is one candidate after reciprocal rank fusion.
type Fused struct {
	CandidateID string
	VectorScore float64
	TextScore   float64
	RRFScore    float64
}

// FuseRRF merges the vector and text rankings with reciprocal rank fusion:
// each list contributes 1/(k+rank) per candidate, summed across lists. Ties
// break on the higher of the two raw scores, then lexicographic candidate ID,
// so the output order is total and deterministic. The result is truncated to
// limit.
func FuseRRF(vector, text []store.ScoredID, k, limit int) []Fused {
	if k <= 0 {
		k = 60
	}

	byID := make(map[string]*Fused, len(vector)+len(text))
	for rank, r := range vector {
		f := fusedFor(byID, r.CandidateID)
		f.VectorScore = r.Score
		f.RRFScore += 1.0 / float64(k+rank+1)
	}
	for rank, r := range text {
		f := fusedFor(byID, r.CandidateID)
		f.TextScore = r.Score
		f.RRFScore += 1.0 / float64(k+rank+1)
	}

	fused := make([]Fused, 0, len(byID))
	for _, f := range byID {
		fused = append(fused, *f)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].RRFScore != fused[j].RRFScore {
			return fused[i].RRFScore > fused[j].RRFScore
		}
		bi, bj := bestRaw(fused[i]), bestRaw(fused[j])
		if bi != bj {
			return bi > bj
		}
		return fused[i].CandidateID < fused[j].CandidateID
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}

func fusedFor(byID map[string]*Fused, id string) *Fused {
	if f, ok := byID[id]; ok {
		return f
	}
	f := &Fused{CandidateID: id}
	byID[id] = f
	return f
}

func bestRaw(f Fused) float64 {
	if f.VectorScore > f.TextScore {
		return f.VectorScore
	}
	return f.TextScore
}
