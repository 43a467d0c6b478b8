// Package verify provides the main verification engine.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/factchecker/citecheck/internal/cache"
	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/metrics"
	"github.com/factchecker/citecheck/internal/models"
	"github.com/factchecker/citecheck/internal/registry"
	"github.com/factchecker/citecheck/internal/scoring"
	"github.com/factchecker/citecheck/internal/search"
)

// ErrRunTimeout marks references skipped because the run ceiling was reached.
var ErrRunTimeout = errors.New("run time limit exceeded")

// Run statuses stored in RunSummary.Status.
const (
	RunCompleted        = "completed"
	RunTimedOut         = "timed_out"
	RunExtractionFailed = "extraction_failed"
	RunCancelled        = "cancelled"
)

const extractionFailedMessage = "Failed to analyze reference structure"

// Sink receives the events of one run in order. Emit is never called
// concurrently for the same run.
type Sink interface {
	Emit(ev models.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev models.Event) error

// Emit calls f(ev).
func (f SinkFunc) Emit(ev models.Event) error { return f(ev) }

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, summary *models.RunSummary, results []models.VerificationResult) error
}

// Dependencies are the collaborators of an Engine. Only Extractor is required.
type Dependencies struct {
	Extractor Extractor
	Registry  registry.Registry
	Searcher  search.Searcher
	Scorer    *scoring.Scorer
	Cache     *cache.Cache
	Store     RunStore
	Metrics   *metrics.Metrics
}

// Engine orchestrates the reference verification pipeline.
type Engine struct {
	extractor Extractor
	verifier  *ReferenceVerifier
	cache     *cache.Cache
	store     RunStore
	metrics   *metrics.Metrics
	pipeline  config.PipelineConfig
}

// NewEngine creates a new verification engine.
func NewEngine(cfg *config.Config, deps Dependencies) *Engine {
	if deps.Searcher == nil {
		log.Warn().Msg("No web search sources configured - unresolved references will be not_found")
	}

	return &Engine{
		extractor: deps.Extractor,
		verifier: NewReferenceVerifier(deps.Registry, deps.Searcher, deps.Scorer,
			cfg.Search.MaxResults, cfg.Pipeline.RelaxedRetry),
		cache:    deps.Cache,
		store:    deps.Store,
		metrics:  deps.Metrics,
		pipeline: cfg.Pipeline,
	}
}

// Inputs pairs raw reference strings with their input positions.
func Inputs(texts []string) []models.RawReference {
	out := make([]models.RawReference, len(texts))
	for i, t := range texts {
		out[i] = models.RawReference{Index: i, Text: t}
	}
	return out
}

// Run verifies every reference and emits the event stream to sink, which may
// be nil. Exactly one result is produced per input. The returned record holds
// the results ordered by index. When ctx is cancelled no further events are
// emitted and ctx.Err() is returned with whatever was resolved so far.
func (e *Engine) Run(ctx context.Context, texts []string, sink Sink) (*models.RunRecord, error) {
	start := time.Now()
	inputs := Inputs(texts)
	summary := &models.RunSummary{
		ID:        uuid.New().String(),
		Total:     len(inputs),
		Status:    RunCompleted,
		CreatedAt: start.UTC(),
	}
	logger := log.With().Str("run_id", summary.ID).Logger()
	em := newEmitter(ctx, sink, summary, e.metrics)

	runCtx, cancel := context.WithTimeout(ctx, e.pipeline.RunTimeout)
	defer cancel()

	logger.Info().Int("total", len(inputs)).Msg("Starting verification run")
	em.event(models.Event{
		Type:    models.EventStart,
		Message: fmt.Sprintf("Starting verification of %d references", len(inputs)),
		Total:   len(inputs),
	})

	stats := &cache.Stats{}
	todo := e.resolveCached(runCtx, inputs, em, stats)
	summary.CacheHits = int(stats.Hits())
	if summary.CacheHits > 0 {
		logger.Info().Int("cache_hits", summary.CacheHits).Msg("Resolved references from cache")
	}

	if len(todo) > 0 && em.ok() {
		e.process(runCtx, logger, todo, em, stats)
	}

	switch {
	case ctx.Err() != nil || !em.ok():
		summary.Status = RunCancelled
	case runCtx.Err() != nil:
		if summary.Status != RunExtractionFailed {
			summary.Status = RunTimedOut
		}
		skipped := em.unresolved(inputs)
		for _, in := range skipped {
			em.result(models.VerificationResult{
				Index:           in.Index,
				ReferenceText:   in.Text,
				Status:          models.StatusPending,
				ConfidenceLevel: models.ConfidenceLow,
				Source:          models.SourceError,
				Message:         ErrRunTimeout.Error() + "; reference was not verified",
			})
		}
		logger.Warn().Err(ErrRunTimeout).Int("pending", len(skipped)).Msg("Run stopped at time limit")
	}

	if summary.Status != RunCancelled {
		em.complete(fmt.Sprintf("Verification completed for %d references", summary.Total))
	}
	record := em.seal()

	elapsed := time.Since(start)
	summary.ProcessingTimeMs = elapsed.Milliseconds()
	e.metrics.ObserveRun(elapsed)
	e.metrics.ObserveCache(stats.Hits(), stats.Misses())

	if e.store != nil {
		if err := e.store.SaveRun(context.WithoutCancel(ctx), summary, record.Results); err != nil {
			logger.Error().Err(err).Msg("Failed to save run")
		}
	}

	logger.Info().
		Str("status", summary.Status).
		Int("verified", summary.Verified).
		Int("ambiguous", summary.Ambiguous).
		Int("not_found", summary.NotFound).
		Int("errors", summary.Errors).
		Int("pending", summary.Pending).
		Int64("duration_ms", summary.ProcessingTimeMs).
		Msg("Verification run finished")

	record.Summary = *summary
	if err := ctx.Err(); err != nil {
		return record, err
	}
	return record, em.failure()
}

// resolveCached emits cached verdicts and returns the inputs still to verify.
func (e *Engine) resolveCached(ctx context.Context, inputs []models.RawReference, em *emitter, stats *cache.Stats) []models.RawReference {
	if e.cache == nil {
		return inputs
	}
	todo := make([]models.RawReference, 0, len(inputs))
	for _, in := range inputs {
		r, ok := e.cache.Get(ctx, in.Text, stats)
		if !ok {
			todo = append(todo, in)
			continue
		}
		r.Index = in.Index
		r.ReferenceText = in.Text
		em.result(r)
	}
	return todo
}

func (e *Engine) process(ctx context.Context, logger zerolog.Logger, todo []models.RawReference, em *emitter, stats *cache.Stats) {
	// Step 1: Extract structured records in one call
	logger.Info().Int("count", len(todo)).Str("stage", "extract").Msg("Extracting references")
	records, err := e.extractor.ExtractBatch(ctx, todo)
	if err == nil && len(records) != len(todo) {
		err = fmt.Errorf("%w: got %d records for %d references", ErrExtraction, len(records), len(todo))
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Msg("Reference extraction failed")
		em.summary.Status = RunExtractionFailed
		em.event(models.Event{Type: models.EventError, Message: extractionFailedMessage + ": " + err.Error()})
		for _, in := range todo {
			em.result(errorResult(in, extractionFailedMessage))
		}
		return
	}
	em.event(models.Event{
		Type:    models.EventExtractionComplete,
		Message: fmt.Sprintf("Extracted %d references", len(records)),
		Count:   len(records),
	})

	// Step 2: Identifier registry, higher concurrency
	var mu sync.Mutex
	var web []models.ReferenceRecord
	for _, batch := range chunk(records, e.pipeline.RegistryBatchSize) {
		if ctx.Err() != nil || !em.ok() {
			return
		}
		e.settle(ctx, batch, em, "registry", func(ctx context.Context, ref models.ReferenceRecord) {
			r, ok := e.verifier.VerifyRegistry(ctx, ref)
			if !ok {
				mu.Lock()
				web = append(web, ref)
				mu.Unlock()
				return
			}
			e.finish(ctx, em, ref, r, stats)
		})
	}
	logger.Info().
		Int("registry_verified", len(records)-len(web)).
		Int("web_pending", len(web)).
		Msg("Registry phase complete")

	// Step 3: Web evidence, small batches with a pause between them
	sort.Slice(web, func(i, j int) bool { return web[i].OriginalIndex < web[j].OriginalIndex })
	for i, batch := range chunk(web, e.pipeline.WebBatchSize) {
		if i > 0 && !sleep(ctx, e.pipeline.InterBatchDelay) {
			return
		}
		if ctx.Err() != nil || !em.ok() {
			return
		}
		e.settle(ctx, batch, em, "web", func(ctx context.Context, ref models.ReferenceRecord) {
			e.finish(ctx, em, ref, e.verifier.VerifyWeb(ctx, ref), stats)
		})
	}
}

// settle runs fn for every record concurrently and waits for all of them or
// for ctx to end. A panic resolves only its own reference as an error.
func (e *Engine) settle(ctx context.Context, batch []models.ReferenceRecord, em *emitter, stage string, fn func(context.Context, models.ReferenceRecord)) {
	var wg sync.WaitGroup
	for _, ref := range batch {
		wg.Add(1)
		go func(ref models.ReferenceRecord) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					log.Error().
						Int("index", ref.OriginalIndex).
						Str("stage", stage).
						Interface("panic", p).
						Msg("Reference processing failed")
					em.result(errorResult(models.RawReference{Index: ref.OriginalIndex, Text: ref.RawText},
						fmt.Sprintf("Processing failed: %v", p)))
				}
			}()
			fn(ctx, ref)
		}(ref)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (e *Engine) finish(ctx context.Context, em *emitter, ref models.ReferenceRecord, r models.VerificationResult, stats *cache.Stats) {
	r.Index = ref.OriginalIndex
	r.ReferenceText = ref.RawText
	if em.result(r) {
		e.cache.Set(context.WithoutCancel(ctx), ref.RawText, r, stats)
	}
}

func chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
