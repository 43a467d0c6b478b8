// Package scoring turns raw web evidence into a calibrated confidence and a
// verdict for a single reference.
//
// Every constant that shapes the verdict lives in Weights and Thresholds so
// they can be tuned from configuration without touching the algorithm.
package scoring

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/models"
)

// Dimension names a scoring dimension that can match independently.
type Dimension string

const (
	DimensionTitle      Dimension = "title"
	DimensionAuthor     Dimension = "author"
	DimensionYear       Dimension = "year"
	DimensionIdentifier Dimension = "doi"
)

// Weights are the contributions of each dimension and bonus to the confidence.
// The per-item weights sum to 0.90; the remaining 0.10 is the cross-evidence bonus.
type Weights struct {
	Title            float64
	Author           float64
	Year             float64
	Authority        float64
	MultipleEvidence float64
	Consistency      float64
}

// Thresholds are the cut-offs used when filtering and classifying evidence.
type Thresholds struct {
	Verified      float64 // confidence >= Verified is verified
	Ambiguous     float64 // confidence >= Ambiguous is ambiguous
	Noise         float64 // items with total <= Noise are discarded
	Dimension     float64 // a title/author score above this counts as a match
	Corroboration float64 // 3rd ranked item must exceed this for the multi-evidence bonus
	HighQuality   float64 // more than one item above this earns the consistency bonus
}

// DefaultWeights returns the standard weight split.
func DefaultWeights() Weights {
	return Weights{
		Title:            0.35,
		Author:           0.25,
		Year:             0.15,
		Authority:        0.15,
		MultipleEvidence: 0.10,
		Consistency:      0.10,
	}
}

// DefaultThresholds returns the standard classification bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Verified:      0.75,
		Ambiguous:     0.5,
		Noise:         0.3,
		Dimension:     0.5,
		Corroboration: 0.5,
		HighQuality:   0.6,
	}
}

// doiPattern matches DOI-shaped strings inside free text.
var doiPattern = regexp.MustCompile(`(?i)10\.\d{4,}(?:\.\d+)*/[-._;()/:a-z0-9]+`)

// Scores holds the per-dimension scores of one evidence item, each in [0,1].
type Scores struct {
	Title     float64 `json:"title"`
	Author    float64 `json:"author"`
	Year      float64 `json:"year"`
	Authority float64 `json:"authority"`
}

// ScoredEvidence is an EvidenceItem together with its derived scores.
type ScoredEvidence struct {
	Item       models.EvidenceItem
	Scores     Scores
	Total      float64
	Matches    []Dimension
	Identifier string
}

// Assessment is the outcome of scoring all evidence gathered for a reference.
type Assessment struct {
	Status     models.VerificationStatus
	Confidence float64
	Identifier string // identifier surfaced from the top evidence, if any
	Message    string
	Evidence   []ScoredEvidence // surviving items, best first
}

// Scorer computes evidence scores. It holds no mutable state.
type Scorer struct {
	weights    Weights
	thresholds Thresholds
}

// NewScorer creates a scorer with the given constants.
func NewScorer(weights Weights, thresholds Thresholds) *Scorer {
	return &Scorer{weights: weights, thresholds: thresholds}
}

// NewScorerFromConfig applies non-zero configuration overrides to the defaults.
func NewScorerFromConfig(cfg config.ScoringConfig) *Scorer {
	w := DefaultWeights()
	t := DefaultThresholds()
	override(&w.Title, cfg.TitleWeight)
	override(&w.Author, cfg.AuthorWeight)
	override(&w.Year, cfg.YearWeight)
	override(&w.Authority, cfg.AuthorityWeight)
	override(&t.Verified, cfg.VerifiedThreshold)
	override(&t.Ambiguous, cfg.AmbiguousThreshold)
	return NewScorer(w, t)
}

func override(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

// DefaultScorer returns a scorer using the default constants.
func DefaultScorer() *Scorer {
	return NewScorer(DefaultWeights(), DefaultThresholds())
}

// ScoreItem scores one evidence item against the reference.
func (s *Scorer) ScoreItem(ref models.ReferenceRecord, item models.EvidenceItem) ScoredEvidence {
	combined := strings.ToLower(item.Title + " " + item.Snippet)
	se := ScoredEvidence{Item: item}

	se.Scores.Title = TitleSimilarity(ref.Title, combined)
	if se.Scores.Title > s.thresholds.Dimension {
		se.Matches = append(se.Matches, DimensionTitle)
	}

	if len(ref.Authors) > 0 {
		se.Scores.Author = authorScore(ref.Authors, combined)
		if se.Scores.Author > s.thresholds.Dimension {
			se.Matches = append(se.Matches, DimensionAuthor)
		}
	}

	if ref.Year > 0 && strings.Contains(combined, strconv.Itoa(ref.Year)) {
		se.Scores.Year = 1
		se.Matches = append(se.Matches, DimensionYear)
	}

	se.Scores.Authority = Authority(item.URL)

	if m := doiPattern.FindString(combined); m != "" {
		se.Identifier = strings.TrimRight(m, ".,;:")
		se.Matches = append(se.Matches, DimensionIdentifier)
	}

	se.Total = se.Scores.Title*s.weights.Title +
		se.Scores.Author*s.weights.Author +
		se.Scores.Year*s.weights.Year +
		se.Scores.Authority*s.weights.Authority

	return se
}

// authorScore is 1 for a verbatim author, 0.7 for a family-name hit, else 0,
// taking the best across all authors.
func authorScore(authors []string, text string) float64 {
	best := 0.0
	for _, a := range authors {
		full := strings.TrimSpace(strings.ToLower(a))
		if full == "" {
			continue
		}
		if strings.Contains(text, full) {
			return 1
		}
		if family := FamilyName(a); family != "" && strings.Contains(text, family) {
			best = 0.7
		}
	}
	return best
}

// Aggregate combines surviving items, sorted best first, into one confidence.
func (s *Scorer) Aggregate(ranked []ScoredEvidence) float64 {
	if len(ranked) == 0 {
		return 0
	}

	confidence := ranked[0].Total

	if len(ranked) >= 3 && ranked[2].Total > s.thresholds.Corroboration {
		confidence += s.weights.MultipleEvidence
	}

	highQuality := 0
	for _, e := range ranked {
		if e.Total > s.thresholds.HighQuality {
			highQuality++
		}
	}
	if highQuality > 1 {
		confidence += s.weights.Consistency
	}

	return clamp(confidence)
}

// Classify maps a confidence onto a verdict.
func (s *Scorer) Classify(confidence float64) models.VerificationStatus {
	switch {
	case confidence >= s.thresholds.Verified:
		return models.StatusVerified
	case confidence >= s.thresholds.Ambiguous:
		return models.StatusAmbiguous
	default:
		return models.StatusNotFound
	}
}

// Evaluate scores all items for ref and classifies the reference.
// It is a pure function of its inputs.
func (s *Scorer) Evaluate(ref models.ReferenceRecord, items []models.EvidenceItem) Assessment {
	if len(items) == 0 {
		return Assessment{
			Status:  models.StatusNotFound,
			Message: "No search results found",
		}
	}

	var surviving []ScoredEvidence
	for _, item := range items {
		se := s.ScoreItem(ref, item)
		if se.Total > s.thresholds.Noise {
			surviving = append(surviving, se)
		}
	}
	sort.SliceStable(surviving, func(i, j int) bool {
		return surviving[i].Total > surviving[j].Total
	})

	confidence := s.Aggregate(surviving)
	a := Assessment{
		Status:     s.Classify(confidence),
		Confidence: confidence,
		Evidence:   surviving,
	}

	switch a.Status {
	case models.StatusVerified:
		a.Message = "Verified with high confidence"
		if !ref.HasIdentifier() && len(surviving) > 0 && surviving[0].Identifier != "" {
			a.Identifier = surviving[0].Identifier
			a.Message += " - DOI: " + a.Identifier
		}
	case models.StatusAmbiguous:
		a.Message = "Ambiguous - partial matches found"
	default:
		a.Message = "Not found or low confidence"
	}
	return a
}

// Summaries condenses the top n evidence items for display.
func Summaries(evidence []ScoredEvidence, n int) []models.EvidenceSummary {
	if len(evidence) < n {
		n = len(evidence)
	}
	out := make([]models.EvidenceSummary, 0, n)
	for _, e := range evidence[:n] {
		matches := make([]string, len(e.Matches))
		for i, m := range e.Matches {
			matches[i] = string(m)
		}
		out = append(out, models.EvidenceSummary{URL: e.Item.URL, Score: e.Total, Matches: matches})
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
