package verify

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/factchecker/citecheck/internal/models"
	"github.com/factchecker/citecheck/internal/registry"
	"github.com/factchecker/citecheck/internal/scoring"
	"github.com/factchecker/citecheck/internal/search"
)

// bestEffortNote is appended to negative verdicts.
const bestEffortNote = " (best-effort check: absence from the registry and web index does not prove fabrication)"

// topEvidence is how many scored web hits a result carries.
const topEvidence = 3

// ReferenceVerifier resolves one extracted reference against the identifier
// registry and, failing that, against web evidence.
type ReferenceVerifier struct {
	registry     registry.Registry
	searcher     search.Searcher
	scorer       *scoring.Scorer
	maxResults   int
	relaxedRetry bool
}

// NewReferenceVerifier creates a new reference verifier. A nil registry or
// searcher skips that tier.
func NewReferenceVerifier(reg registry.Registry, searcher search.Searcher, scorer *scoring.Scorer, maxResults int, relaxedRetry bool) *ReferenceVerifier {
	if scorer == nil {
		scorer = scoring.DefaultScorer()
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	return &ReferenceVerifier{
		registry:     reg,
		searcher:     searcher,
		scorer:       scorer,
		maxResults:   maxResults,
		relaxedRetry: relaxedRetry,
	}
}

// VerifyRegistry tries a direct identifier lookup and then a metadata search.
// It reports false when neither path produced a verified match; registry
// failures are misses, never errors.
func (v *ReferenceVerifier) VerifyRegistry(ctx context.Context, ref models.ReferenceRecord) (models.VerificationResult, bool) {
	if v.registry == nil {
		return models.VerificationResult{}, false
	}

	if ref.HasIdentifier() {
		work, err := v.registry.VerifyByIdentifier(ctx, ref.DOI)
		if err == nil {
			return registryResult(ref, *work, 1.0), true
		}
		logRegistryMiss(err, ref, "identifier")
	}

	if !ref.HasIdentifier() && !ref.Type.IsAcademic() {
		return models.VerificationResult{}, false
	}

	match, err := v.registry.SearchByMetadata(ctx, ref)
	if err != nil {
		logRegistryMiss(err, ref, "metadata")
		return models.VerificationResult{}, false
	}
	return registryResult(ref, match.Work, math.Min(match.Score, 1)), true
}

func registryResult(ref models.ReferenceRecord, w registry.Work, confidence float64) models.VerificationResult {
	r := newResult(ref, models.StatusVerified, confidence, models.SourceIdentifierRegistry)
	r.Identifier = w.DOI
	r.Message = "Verified - DOI: " + w.DOI
	if r.ConfidenceLevel != models.ConfidenceHigh {
		r.Message += fmt.Sprintf(" (confidence: %s)", r.ConfidenceLevel)
	}
	r.SupportingDetails = w.Details()
	return r
}

func logRegistryMiss(err error, ref models.ReferenceRecord, stage string) {
	ev := log.Warn()
	if registry.IsNotFound(err) || registry.IsRateLimited(err) ||
		errors.Is(err, registry.ErrInsufficientMetadata) || errors.Is(err, context.Canceled) {
		ev = log.Debug()
	}
	ev.Err(err).
		Int("index", ref.OriginalIndex).
		Str("stage", stage).
		Msg("Registry lookup missed")
}

// VerifyWeb searches for web evidence and classifies the reference with the
// scorer. When the primary query finds nothing a relaxed query is tried once.
func (v *ReferenceVerifier) VerifyWeb(ctx context.Context, ref models.ReferenceRecord) models.VerificationResult {
	var items []models.EvidenceItem
	if v.searcher != nil {
		query := scoring.BuildQuery(ref)
		items = v.searcher.Search(ctx, query, v.maxResults)

		if len(items) == 0 && v.relaxedRetry {
			if relaxed := scoring.RelaxedQuery(ref); relaxed != "" && relaxed != query {
				log.Debug().Int("index", ref.OriginalIndex).Str("query", relaxed).Msg("Retrying with relaxed query")
				items = v.searcher.Search(ctx, relaxed, v.maxResults)
			}
		}
	}

	a := v.scorer.Evaluate(ref, items)

	r := newResult(ref, a.Status, a.Confidence, models.SourceWebEvidence)
	r.Identifier = a.Identifier
	r.Message = a.Message
	if a.Status != models.StatusVerified {
		r.Message += bestEffortNote
	}
	if len(a.Evidence) > 0 {
		r.SupportingDetails = &models.SupportingDetails{Evidence: scoring.Summaries(a.Evidence, topEvidence)}
	}
	return r
}

func newResult(ref models.ReferenceRecord, status models.VerificationStatus, confidence float64, source models.SourceType) models.VerificationResult {
	return models.VerificationResult{
		Index:           ref.OriginalIndex,
		ReferenceText:   ref.RawText,
		Status:          status,
		Confidence:      confidence,
		ConfidenceLevel: models.LevelFor(confidence),
		Source:          source,
	}
}

func errorResult(in models.RawReference, message string) models.VerificationResult {
	return models.VerificationResult{
		Index:           in.Index,
		ReferenceText:   in.Text,
		Status:          models.StatusError,
		ConfidenceLevel: models.ConfidenceLow,
		Source:          models.SourceError,
		Message:         message,
	}
}
