package models

import "encoding/json"

// CandidateFeatures carries the ranking signals computed upstream of the
// reranker. All fields are optional; absent values are treated as zero.
type CandidateFeatures struct {
	VectorScore     float64  `json:"vectorScore,omitempty"`
	TextScore       float64  `json:"textScore,omitempty"`
	Confidence      float64  `json:"confidence,omitempty"`
	YearsExperience float64  `json:"yearsExperience,omitempty"`
	CurrentTitle    string   `json:"currentTitle,omitempty"`
	Location        string   `json:"location,omitempty"`
	MatchReasons    []string `json:"matchReasons,omitempty"`
	Skills          []string `json:"skills,omitempty"`
}

// RetrievalCandidate is one entry of the hybrid retrieval slate. VectorScore
// and TextScore are the raw per-branch similarities in [0,1]; RRFScore is the
// fused rank score and is only comparable within a single slate.
type RetrievalCandidate struct {
	CandidateID string            `json:"candidateId"`
	VectorScore float64           `json:"vectorScore,omitempty"`
	TextScore   float64           `json:"textScore,omitempty"`
	RRFScore    float64           `json:"rrfScore"`
	Summary     string            `json:"summary,omitempty"`
	Highlights  []string          `json:"highlights,omitempty"`
	Features    CandidateFeatures `json:"features"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
}

// RetrievalTimings breaks retrieval latency into its stages, in milliseconds.
type RetrievalTimings struct {
	EmbedMs       int64 `json:"embedMs"`
	VectorMs      int64 `json:"vectorMs"`
	TextMs        int64 `json:"textMs"`
	FuseMs        int64 `json:"fuseMs"`
	MaterializeMs int64 `json:"materializeMs"`
}

// RetrievalResult is the outcome of one hybrid retrieval pass.
type RetrievalResult struct {
	Candidates []RetrievalCandidate `json:"candidates"`
	Timings    RetrievalTimings     `json:"timings"`
	CacheHit   bool                 `json:"cacheHit"`
}
