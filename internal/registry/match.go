package registry

import (
	"strings"

	"github.com/factchecker/citecheck/internal/models"
	"github.com/factchecker/citecheck/internal/scoring"
)

// Metadata match constants.
const (
	TitleWeight     = 0.6
	ExactTitleBonus = 0.2
	AuthorWeight    = 0.3
	YearWeight      = 0.1

	// MinMatchScore is the lowest score accepted as a verified match.
	MinMatchScore = 0.5
)

// MatchScore compares a registry candidate against the reference record.
// The result can exceed 1 when every dimension matches.
func MatchScore(ref models.ReferenceRecord, w Work) float64 {
	score := 0.0

	refTitle := strings.TrimSpace(strings.ToLower(ref.Title))
	candTitle := strings.TrimSpace(strings.ToLower(w.Title))
	if refTitle != "" && candTitle != "" {
		score += scoring.WordOverlap(refTitle, candTitle) * TitleWeight
		if refTitle == candTitle {
			score += ExactTitleBonus
		}
	}

	if authorsOverlap(ref.Authors, w.Families) {
		score += AuthorWeight
	}

	if ref.Year > 0 && ref.Year == w.Year {
		score += YearWeight
	}

	return score
}

func authorsOverlap(refAuthors, families []string) bool {
	for _, a := range refAuthors {
		refFamily := scoring.FamilyName(a)
		if refFamily == "" {
			continue
		}
		for _, f := range families {
			f = strings.ToLower(strings.TrimSpace(f))
			if f == "" {
				continue
			}
			if strings.Contains(f, refFamily) || strings.Contains(refFamily, f) {
				return true
			}
		}
	}
	return false
}

// BestMatch returns the highest scoring candidate at or above MinMatchScore.
// On equal scores the earlier candidate, in registry rank order, wins.
func BestMatch(ref models.ReferenceRecord, candidates []Work) (*Match, bool) {
	var best *Match
	for i := range candidates {
		score := MatchScore(ref, candidates[i])
		if score < MinMatchScore {
			continue
		}
		if best == nil || score > best.Score {
			best = &Match{Work: candidates[i], Score: score}
		}
	}
	return best, best != nil
}
