package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/delimatsuo/headhunter-sub011/internal/models"
)

func TestJDHashNormalization(t *testing.T) {
	// Whitespace differences do not change identity.
	assert.Equal(t, JDHash("Senior  Go\n engineer"), JDHash("Senior Go engineer  "))
	assert.NotEqual(t, JDHash("Senior Go engineer"), JDHash("Junior Go engineer"))
}

func TestDocsetHashPure(t *testing.T) {
	candidates := []models.RerankCandidate{
		{CandidateID: "c1", Summary: "a"},
		{CandidateID: "c2", Summary: "b"},
	}
	assert.Equal(t, DocsetHash(candidates), DocsetHash(candidates))
}

func TestDocsetHashOrderSensitive(t *testing.T) {
	a := []models.RerankCandidate{{CandidateID: "c1"}, {CandidateID: "c2"}}
	b := []models.RerankCandidate{{CandidateID: "c2"}, {CandidateID: "c1"}}
	assert.NotEqual(t, DocsetHash(a), DocsetHash(b))
}

func TestDescriptorHonorsCallerHashes(t *testing.T) {
	req := &models.RerankRequest{
		JobDescription: "Senior Go backend, distributed systems",
		JDHash:         "caller-jd-hash",
		DocsetHash:     "caller-docset-hash",
		Candidates:     []models.RerankCandidate{{CandidateID: "c1"}},
	}
	jd, docset := Descriptor(req, req.Candidates)
	assert.Equal(t, "caller-jd-hash", jd)
	assert.Equal(t, "caller-docset-hash", docset)
}

func TestDescriptorComputesWhenAbsent(t *testing.T) {
	req := &models.RerankRequest{
		JobDescription: "Senior Go backend, distributed systems",
		Candidates:     []models.RerankCandidate{{CandidateID: "c1"}},
	}
	jd, docset := Descriptor(req, req.Candidates)
	assert.Len(t, jd, 64)
	assert.Len(t, docset, 64)
}

func TestDescriptorUsesTruncatedSlate(t *testing.T) {
	full := []models.RerankCandidate{
		{CandidateID: "c1"}, {CandidateID: "c2"}, {CandidateID: "c3"},
	}
	req := &models.RerankRequest{
		JobDescription: "Senior Go backend, distributed systems",
		Candidates:     full,
	}

	_, truncated := Descriptor(req, full[:2])
	assert.Equal(t, DocsetHash(full[:2]), truncated)
	assert.NotEqual(t, DocsetHash(full), truncated)
}
