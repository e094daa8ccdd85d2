package rerank

import (
	"fmt"
	"strings"

	"github.com/delimatsuo/headhunter-sub011/internal/config"
	"github.com/delimatsuo/headhunter-sub011/internal/models"
)

// systemPrompt fixes the response contract for both providers.
const systemPrompt = `You are a recruiting assistant that reranks candidates for a job description.
Respond with a single JSON object and nothing else, shaped exactly as:
{"candidates":[{"candidateId":"<id>","rank":1,"score":0.95,"reasons":["..."]}]}
Ranks start at 1 with no gaps. Scores are in [0,1], non-increasing with rank.
Only use candidateId values given in the input. Do not invent candidates.`

// promptBuilder assembles the bounded user prompt for a rerank call.
type promptBuilder struct {
	maxChars      int
	maxHighlights int
	maxSkills     int
	reasonLimit   int
}

func newPromptBuilder(cfg config.RerankConfig) *promptBuilder {
	return &promptBuilder{
		maxChars:      cfg.MaxPromptChars,
		maxHighlights: cfg.MaxHighlights,
		maxSkills:     cfg.MaxSkills,
		reasonLimit:   cfg.ReasonLimit,
	}
}

// build renders the job description and candidate roster, trimming the JD to
// the character cap and each candidate block to its highlight and skill
// caps. Returns the prompt and whether any truncation occurred.
func (b *promptBuilder) build(jd string, candidates []models.RerankCandidate, topN int, includeReasons bool) (string, bool) {
	truncated := false
	jd = NormalizeJD(jd)
	if b.maxChars > 0 && len(jd) > b.maxChars {
		jd = jd[:b.maxChars]
		truncated = true
	}

	var sb strings.Builder
	sb.Grow(len(jd) + len(candidates)*256)

	fmt.Fprintf(&sb, "Job description:\n%s\n\n", jd)
	fmt.Fprintf(&sb, "Rank the best %d of these %d candidates.\n", topN, len(candidates))
	if includeReasons {
		fmt.Fprintf(&sb, "Give up to %d short reasons per candidate.\n", b.reasonLimit)
	} else {
		sb.WriteString("Omit reasons; return empty reasons arrays.\n")
	}
	sb.WriteString("\nCandidates:\n")

	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. id=%s\n", i+1, c.CandidateID)
		sb.WriteString(b.candidateBlock(c))
	}
	return sb.String(), truncated
}

// candidateBlock serializes one candidate as
// "summary \n Highlights: ... \n Title|Location|YoE|Skills|MatchReasons: ...".
func (b *promptBuilder) candidateBlock(c models.RerankCandidate) string {
	var sb strings.Builder

	if c.Summary != "" {
		sb.WriteString(c.Summary)
		sb.WriteByte('\n')
	}
	if len(c.Highlights) > 0 {
		highlights := c.Highlights
		if b.maxHighlights > 0 && len(highlights) > b.maxHighlights {
			highlights = highlights[:b.maxHighlights]
		}
		fmt.Fprintf(&sb, "Highlights: %s\n", strings.Join(highlights, "; "))
	}
	if f := c.Features; f != nil {
		var facts []string
		if f.CurrentTitle != "" {
			facts = append(facts, "Title: "+f.CurrentTitle)
		}
		if f.Location != "" {
			facts = append(facts, "Location: "+f.Location)
		}
		if f.YearsExperience > 0 {
			facts = append(facts, fmt.Sprintf("YoE: %.0f", f.YearsExperience))
		}
		if len(f.Skills) > 0 {
			skills := f.Skills
			if b.maxSkills > 0 && len(skills) > b.maxSkills {
				skills = skills[:b.maxSkills]
			}
			facts = append(facts, "Skills: "+strings.Join(skills, ", "))
		}
		if len(f.MatchReasons) > 0 {
			facts = append(facts, "MatchReasons: "+strings.Join(f.MatchReasons, "; "))
		}
		if len(facts) > 0 {
			sb.WriteString(strings.Join(facts, " | "))
			sb.WriteByte('\n')
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}
