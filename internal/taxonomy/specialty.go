// Package taxonomy classifies job descriptions into engineering specialties
// using an alias table built once at process init. The table is immutable
// after init and safe for concurrent readers; classification is a pure
// function of the input text, so results cache indefinitely.
package taxonomy

import (
	"sort"
	"strings"
)

// Classification is the outcome of classifying a job description.
type Classification struct {
	Specialty      string   `json:"specialty"`
	Confidence     float64  `json:"confidence"`
	MatchedAliases []string `json:"matchedAliases,omitempty"`
}

// aliasTable maps each specialty to the phrases that indicate it. Aliases
// are matched case-insensitively as substrings of the normalized JD.
var aliasTable = map[string][]string{
	"backend": {
		"backend", "back-end", "back end", "api development", "microservices",
		"distributed systems", "golang", "go developer", "java", "server-side",
	},
	"frontend": {
		"frontend", "front-end", "front end", "react", "vue", "angular",
		"typescript", "ui engineer", "web developer",
	},
	"data": {
		"data engineer", "data pipeline", "etl", "data warehouse", "spark",
		"airflow", "analytics engineer", "dbt",
	},
	"ml": {
		"machine learning", "ml engineer", "deep learning", "nlp", "llm",
		"computer vision", "pytorch", "tensorflow", "recommendation",
	},
	"infra": {
		"devops", "sre", "site reliability", "platform engineer", "kubernetes",
		"terraform", "infrastructure", "cloud engineer", "ci/cd",
	},
	"mobile": {
		"mobile", "ios", "android", "swift", "kotlin", "react native", "flutter",
	},
	"security": {
		"security engineer", "appsec", "penetration", "threat", "vulnerability",
		"infosec", "soc analyst",
	},
}

// index is the inverted alias list, sorted for deterministic iteration.
// Built once in init and never mutated afterwards.
var index []aliasEntry

type aliasEntry struct {
	alias     string
	specialty string
}

func init() {
	for specialty, aliases := range aliasTable {
		for _, alias := range aliases {
			index = append(index, aliasEntry{alias: alias, specialty: specialty})
		}
	}
	sort.Slice(index, func(i, j int) bool {
		if index[i].specialty != index[j].specialty {
			return index[i].specialty < index[j].specialty
		}
		return index[i].alias < index[j].alias
	})
}

// Specialties returns the known specialty names, sorted.
func Specialties() []string {
	names := make([]string, 0, len(aliasTable))
	for name := range aliasTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Classify scans the job description for specialty aliases and returns the
// specialty with the most matches. Confidence is the winner's share of all
// matched aliases. An empty or unrecognized JD yields an empty specialty
// with zero confidence.
func Classify(jobDescription string) Classification {
	text := strings.ToLower(jobDescription)
	if strings.TrimSpace(text) == "" {
		return Classification{}
	}

	counts := make(map[string]int)
	matched := make(map[string][]string)
	total := 0
	for _, entry := range index {
		if strings.Contains(text, entry.alias) {
			counts[entry.specialty]++
			matched[entry.specialty] = append(matched[entry.specialty], entry.alias)
			total++
		}
	}
	if total == 0 {
		return Classification{}
	}

	best := ""
	for specialty, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && specialty < best) {
			best = specialty
		}
	}

	return Classification{
		Specialty:      best,
		Confidence:     float64(counts[best]) / float64(total),
		MatchedAliases: matched[best],
	}
}
