package rerank

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/delimatsuo/headhunter-sub011/internal/models"
)

// NormalizeJD collapses whitespace runs and trims the job description so
// cosmetic formatting differences hash identically.
func NormalizeJD(jd string) string {
	return strings.Join(strings.Fields(jd), " ")
}

// JDHash is the deterministic hash of the normalized job description.
func JDHash(jd string) string {
	sum := sha256.Sum256([]byte(NormalizeJD(jd)))
	return hex.EncodeToString(sum[:])
}

// DocsetHash hashes the ordered canonical candidate descriptors. Insertion
// order is part of the identity: the same candidates in a different order
// produce a different docset.
func DocsetHash(candidates []models.RerankCandidate) string {
	h := sha256.New()
	for _, c := range candidates {
		h.Write([]byte(c.CandidateID))
		h.Write([]byte{'|'})
		fmt.Fprintf(h, "%.6f", c.InitialRankScore())
		h.Write([]byte{'|'})
		h.Write([]byte(c.Summary))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Descriptor returns (jdHash, docsetHash), honoring caller-supplied hashes
// when the request carries them. candidates is the effective slate after any
// cap truncation, so the docset hash always describes the candidates that
// actually participate.
func Descriptor(req *models.RerankRequest, candidates []models.RerankCandidate) (string, string) {
	jdHash := req.JDHash
	if jdHash == "" {
		jdHash = JDHash(req.JobDescription)
	}
	docsetHash := req.DocsetHash
	if docsetHash == "" {
		docsetHash = DocsetHash(candidates)
	}
	return jdHash, docsetHash
}

// cacheIdentifier joins the descriptor pair and the result limit into the
// RerankScores cache key identifier. The limit is part of the identity
// because cached results are already truncated to it.
func cacheIdentifier(jdHash, docsetHash string, limit int) string {
	return fmt.Sprintf("%s:%s:%d", jdHash, docsetHash, limit)
}
