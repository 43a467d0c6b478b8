package verify

import (
	"context"
	"sort"
	"sync"

	"github.com/factchecker/citecheck/internal/metrics"
	"github.com/factchecker/citecheck/internal/models"
)

// emitter serialises events of one run onto its sink. It drops duplicate
// results, stops after the caller cancels or the sink fails, and ignores
// anything arriving after seal.
type emitter struct {
	mu       sync.Mutex
	ctx      context.Context
	sink     Sink
	summary  *models.RunSummary
	metrics  *metrics.Metrics
	resolved map[int]bool
	results  []models.VerificationResult
	err      error
	sealed   bool
}

func newEmitter(ctx context.Context, sink Sink, summary *models.RunSummary, m *metrics.Metrics) *emitter {
	return &emitter{
		ctx:      ctx,
		sink:     sink,
		summary:  summary,
		metrics:  m,
		resolved: make(map[int]bool, summary.Total),
	}
}

func (e *emitter) event(ev models.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return
	}
	e.send(ev)
}

// complete emits the terminal event with the final tallies.
func (e *emitter) complete(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return
	}
	e.send(models.Event{
		Type:      models.EventComplete,
		Message:   message,
		Processed: e.summary.Processed,
		Total:     e.summary.Total,
	})
}

// result records r and emits it with progress. It reports false when the
// index was already resolved or the run is sealed.
func (e *emitter) result(r models.VerificationResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed || e.resolved[r.Index] {
		return false
	}
	e.resolved[r.Index] = true
	e.results = append(e.results, r)
	e.summary.Count(r)
	e.metrics.ObserveResult(r)

	progress := &models.Progress{Current: len(e.results), Total: e.summary.Total}
	if progress.Total > 0 {
		progress.Percentage = (progress.Current*100 + progress.Total/2) / progress.Total
	}
	e.send(models.Event{Type: models.EventResult, Data: &r, Progress: progress})
	return true
}

// send must be called with mu held.
func (e *emitter) send(ev models.Event) {
	if e.sink == nil || e.err != nil {
		return
	}
	if err := e.ctx.Err(); err != nil {
		e.err = err
		return
	}
	if err := e.sink.Emit(ev); err != nil {
		e.err = err
	}
}

// ok reports whether events can still be delivered.
func (e *emitter) ok() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err == nil && e.ctx.Err() == nil
}

func (e *emitter) failure() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *emitter) unresolved(inputs []models.RawReference) []models.RawReference {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.RawReference
	for _, in := range inputs {
		if !e.resolved[in.Index] {
			out = append(out, in)
		}
	}
	return out
}

// seal stops further emission and returns the results ordered by index.
func (e *emitter) seal() *models.RunRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sealed = true
	results := make([]models.VerificationResult, len(e.results))
	copy(results, e.results)
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return &models.RunRecord{Results: results}
}
