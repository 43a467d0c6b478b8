package verify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factchecker/citecheck/internal/cache"
	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/models"
	"github.com/factchecker/citecheck/internal/registry"
)

// fakeExtractor maps raw text to a prepared record.
type fakeExtractor struct {
	records map[string]models.ReferenceRecord
	err     error
	calls   atomic.Int32
	seen    []models.RawReference
}

func (f *fakeExtractor) ExtractBatch(ctx context.Context, raw []models.RawReference) ([]models.ReferenceRecord, error) {
	f.calls.Add(1)
	f.seen = raw
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.ReferenceRecord, len(raw))
	for i, in := range raw {
		rec := f.records[in.Text]
		rec.RawText = in.Text
		rec.OriginalIndex = in.Index
		if rec.Type == "" {
			rec.Type = models.TypeOther
		}
		out[i] = rec
	}
	return out, nil
}

type fakeRegistry struct {
	works       map[string]registry.Work
	matches     map[string]registry.Match
	panicTitle  string
	verifyCalls atomic.Int32
	searchCalls atomic.Int32
}

func (f *fakeRegistry) VerifyByIdentifier(ctx context.Context, doi string) (*registry.Work, error) {
	f.verifyCalls.Add(1)
	if w, ok := f.works[doi]; ok {
		return &w, nil
	}
	return nil, registry.ErrNotFound
}

func (f *fakeRegistry) SearchByMetadata(ctx context.Context, ref models.ReferenceRecord) (*registry.Match, error) {
	f.searchCalls.Add(1)
	if ref.Title != "" && ref.Title == f.panicTitle {
		panic("registry exploded")
	}
	if m, ok := f.matches[ref.Title]; ok {
		return &m, nil
	}
	return nil, registry.ErrNotFound
}

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]models.EvidenceItem
	queries []string
	block   chan struct{}
}

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) []models.EvidenceItem {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}
	return f.results[query]
}

func (f *fakeSearcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type memSink struct {
	mu     sync.Mutex
	events []models.Event
	onEmit func(models.Event)
}

func (s *memSink) Emit(ev models.Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	if s.onEmit != nil {
		s.onEmit(ev)
	}
	return nil
}

func (s *memSink) ofType(t models.EventType) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type memRunStore struct {
	summary *models.RunSummary
	results []models.VerificationResult
}

func (m *memRunStore) SaveRun(ctx context.Context, summary *models.RunSummary, results []models.VerificationResult) error {
	m.summary = summary
	m.results = results
	return nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pipeline.InterBatchDelay = 0
	cfg.Pipeline.RunTimeout = 5 * time.Second
	return cfg
}

func attentionItem(path string) models.EvidenceItem {
	return models.EvidenceItem{
		URL:     "https://arxiv.org/abs/" + path,
		Title:   "Attention Is All You Need - arXiv",
		Snippet: "A Vaswani, N Shazeer, N Parmar. 2017. doi:10.48550/arXiv.1706.03762.",
	}
}

func TestRunDirectIdentifierHit(t *testing.T) {
	ext := &fakeExtractor{records: map[string]models.ReferenceRecord{
		"LeCun 2015": {Title: "Deep learning", DOI: "10.1038/nature14539", Type: models.TypeJournalArticle},
	}}
	reg := &fakeRegistry{works: map[string]registry.Work{
		"10.1038/nature14539": {DOI: "10.1038/nature14539", Title: "Deep learning", Year: 2015, CitationCount: 50000},
	}}
	srch := &fakeSearcher{}
	sink := &memSink{}

	engine := NewEngine(testConfig(), Dependencies{Extractor: ext, Registry: reg, Searcher: srch})
	record, err := engine.Run(context.Background(), []string{"LeCun 2015"}, sink)
	require.NoError(t, err)

	require.Len(t, record.Results, 1)
	r := record.Results[0]
	assert.Equal(t, models.StatusVerified, r.Status)
	assert.Equal(t, models.SourceIdentifierRegistry, r.Source)
	assert.Equal(t, models.ConfidenceHigh, r.ConfidenceLevel)
	assert.Equal(t, "10.1038/nature14539", r.Identifier)
	assert.Equal(t, "LeCun 2015", r.ReferenceText)
	require.NotNil(t, r.SupportingDetails)
	assert.Equal(t, 50000, r.SupportingDetails.CitationCount)

	assert.EqualValues(t, 0, reg.searchCalls.Load())
	assert.Zero(t, srch.calls())
}

func TestRunMetadataSearchRecoversPaperWithoutIdentifier(t *testing.T) {
	ext := &fakeExtractor{records: map[string]models.ReferenceRecord{
		"Silver 2016": {Title: "Mastering the game of Go", Authors: []string{"Silver, D."}, Year: 2016, Type: models.TypeJournalArticle},
	}}
	reg := &fakeRegistry{matches: map[string]registry.Match{
		"Mastering the game of Go": {Work: registry.Work{DOI: "10.1038/nature16961", Title: "Mastering the game of Go with deep neural networks and tree search"}, Score: 0.82},
	}}
	srch := &fakeSearcher{}

	engine := NewEngine(testConfig(), Dependencies{Extractor: ext, Registry: reg, Searcher: srch})
	record, err := engine.Run(context.Background(), []string{"Silver 2016"}, nil)
	require.NoError(t, err)

	r := record.Results[0]
	assert.Equal(t, models.StatusVerified, r.Status)
	assert.Equal(t, models.SourceIdentifierRegistry, r.Source)
	assert.Equal(t, models.ConfidenceHigh, r.ConfidenceLevel)
	assert.InDelta(t, 0.82, r.Confidence, 1e-9)
	assert.EqualValues(t, 0, reg.verifyCalls.Load())
	assert.Zero(t, srch.calls())
}

func TestRunNonAcademicSkipsMetadataSearch(t *testing.T) {
	ext := &fakeExtractor{records: map[string]models.ReferenceRecord{
		"Ofcom report": {Title: "Online Nation", Type: models.TypeReport},
	}}
	reg := &fakeRegistry{}
	srch := &fakeSearcher{}

	engine := NewEngine(testConfig(), Dependencies{Extractor: ext, Registry: reg, Searcher: srch})
	record, err := engine.Run(context.Background(), []string{"Ofcom report"}, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 0, reg.searchCalls.Load())
	r := record.Results[0]
	assert.Equal(t, models.StatusNotFound, r.Status)
	assert.Equal(t, models.SourceWebEvidence, r.Source)
	assert.Equal(t, 0.0, r.Confidence)
	assert.Contains(t, r.Message, "does not prove fabrication")
}

func TestRunWebEvidenceVerifies(t *testing.T) {
	ref := models.ReferenceRecord{
		Title:   "Attention Is All You Need",
		Authors: []string{"Vaswani, A."},
		Year:    2017,
		Type:    models.TypeConferencePaper,
	}
	ext := &fakeExtractor{records: map[string]models.ReferenceRecord{"Vaswani 2017": ref}}
	srch := &fakeSearcher{results: map[string][]models.EvidenceItem{
		"Attention Is All You Need Vaswani A. 2017": {attentionItem("1"), attentionItem("2"), attentionItem("3")},
	}}

	engine := NewEngine(testConfig(), Dependencies{Extractor: ext, Registry: &fakeRegistry{}, Searcher: srch})
	record, err := engine.Run(context.Background(), []string{"Vaswani 2017"}, nil)
	require.NoError(t, err)

	r := record.Results[0]
	assert.Equal(t, models.StatusVerified, r.Status)
	assert.Equal(t, models.SourceWebEvidence, r.Source)
	assert.NotEmpty(t, r.Identifier)
	require.NotNil(t, r.SupportingDetails)
	assert.Len(t, r.SupportingDetails.Evidence, 3)
}

func TestRunRelaxedRetry(t *testing.T) {
	ref := models.ReferenceRecord{
		Title: "Online Nation annual report on internet use",
		Year:  2023,
		URL:   "https://www.ofcom.org.uk/online-nation",
		Type:  models.TypeWebpage,
	}
	ext := &fakeExtractor{records: map[string]models.ReferenceRecord{"Ofcom 2023": ref}}
	srch := &fakeSearcher{}

	cfg := testConfig()
	engine := NewEngine(cfg, Dependencies{Extractor: ext, Searcher: srch})
	_, err := engine.Run(context.Background(), []string{"Ofcom 2023"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, srch.calls())

	cfg.Pipeline.RelaxedRetry = false
	srch = &fakeSearcher{}
	engine = NewEngine(cfg, Dependencies{Extractor: ext, Searcher: srch})
	_, err = engine.Run(context.Background(), []string{"Ofcom 2023"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, srch.calls())
}

func TestRunCompletenessAndEventOrder(t *testing.T) {
	const n = 23
	texts := make([]string, n)
	records := map[string]models.ReferenceRecord{}
	works := map[string]registry.Work{}
	for i := range texts {
		texts[i] = fmt.Sprintf("reference %d", i)
		rec := models.ReferenceRecord{Title: fmt.Sprintf("Paper number %d", i), Type: models.TypeJournalArticle}
		if i%3 == 0 {
			rec.DOI = fmt.Sprintf("10.1000/%d", i)
			works[rec.DOI] = registry.Work{DOI: rec.DOI}
		}
		records[texts[i]] = rec
	}
	ext := &fakeExtractor{records: records}
	sink := &memSink{}

	cfg := testConfig()
	cfg.Pipeline.RegistryBatchSize = 4
	cfg.Pipeline.WebBatchSize = 3
	engine := NewEngine(cfg, Dependencies{Extractor: ext, Registry: &fakeRegistry{works: works}, Searcher: &fakeSearcher{}})

	record, err := engine.Run(context.Background(), texts, sink)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(sink.events), n+3)
	assert.Equal(t, models.EventStart, sink.events[0].Type)
	assert.Equal(t, n, sink.events[0].Total)
	assert.Equal(t, models.EventExtractionComplete, sink.events[1].Type)
	assert.Equal(t, n, sink.events[1].Count)
	last := sink.events[len(sink.events)-1]
	assert.Equal(t, models.EventComplete, last.Type)
	assert.Equal(t, n, last.Processed)
	assert.Len(t, sink.ofType(models.EventComplete), 1)

	results := sink.ofType(models.EventResult)
	require.Len(t, results, n)
	seen := map[int]bool{}
	for i, ev := range results {
		require.NotNil(t, ev.Data)
		assert.False(t, seen[ev.Data.Index], "duplicate index %d", ev.Data.Index)
		seen[ev.Data.Index] = true
		assert.Equal(t, i+1, ev.Progress.Current)
		assert.Equal(t, n, ev.Progress.Total)
	}
	for i := 0; i < n; i++ {
		assert.True(t, seen[i], "missing index %d", i)
	}
	assert.Equal(t, 100, results[n-1].Progress.Percentage)

	// Registry hits resolve before any web evidence result.
	for i, ev := range results {
		if i < 8 {
			assert.Equal(t, models.SourceIdentifierRegistry, ev.Data.Source)
		} else {
			assert.Equal(t, models.SourceWebEvidence, ev.Data.Source)
		}
	}

	for i, r := range record.Results {
		assert.Equal(t, i, r.Index)
	}
	assert.Equal(t, RunCompleted, record.Summary.Status)
	assert.Equal(t, 8, record.Summary.Verified)
	assert.Equal(t, 15, record.Summary.NotFound)
}

func TestRunPerReferenceIsolation(t *testing.T) {
	ext := &fakeExtractor{records: map[string]models.ReferenceRecord{
		"a": {Title: "Good paper", DOI: "10.1/good", Type: models.TypeJournalArticle},
		"b": {Title: "Cursed paper", Type: models.TypeJournalArticle},
		"c": {Title: "Other paper", Type: models.TypeJournalArticle},
	}}
	reg := &fakeRegistry{
		works:      map[string]registry.Work{"10.1/good": {DOI: "10.1/good"}},
		panicTitle: "Cursed paper",
	}
	sink := &memSink{}

	engine := NewEngine(testConfig(), Dependencies{Extractor: ext, Registry: reg, Searcher: &fakeSearcher{}})
	record, err := engine.Run(context.Background(), []string{"a", "b", "c"}, sink)
	require.NoError(t, err)

	require.Len(t, record.Results, 3)
	assert.Equal(t, models.StatusVerified, record.Results[0].Status)
	assert.Equal(t, models.StatusError, record.Results[1].Status)
	assert.Equal(t, models.SourceError, record.Results[1].Source)
	assert.Contains(t, record.Results[1].Message, "registry exploded")
	assert.Equal(t, models.StatusNotFound, record.Results[2].Status)
	assert.Len(t, sink.ofType(models.EventResult), 3)
	assert.Equal(t, 1, record.Summary.Errors)
}

func TestRunExtractionFailure(t *testing.T) {
	ext := &fakeExtractor{err: fmt.Errorf("%w: model unavailable", ErrExtraction)}
	sink := &memSink{}
	store := &memRunStore{}

	engine := NewEngine(testConfig(), Dependencies{Extractor: ext, Searcher: &fakeSearcher{}, Store: store})
	record, err := engine.Run(context.Background(), []string{"x", "y"}, sink)
	require.NoError(t, err)

	errs := sink.ofType(models.EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "model unavailable")
	assert.Empty(t, sink.ofType(models.EventExtractionComplete))
	assert.Len(t, sink.ofType(models.EventComplete), 1)

	for _, r := range record.Results {
		assert.Equal(t, models.StatusError, r.Status)
		assert.Equal(t, extractionFailedMessage, r.Message)
	}
	assert.Equal(t, RunExtractionFailed, record.Summary.Status)
	require.NotNil(t, store.summary)
	assert.Equal(t, 2, store.summary.Errors)
	assert.Len(t, store.results, 2)
}

func TestRunTimeoutMarksRemainderPending(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	ext := &fakeExtractor{records: map[string]models.ReferenceRecord{
		"fast": {Title: "Fast", DOI: "10.1/fast", Type: models.TypeJournalArticle},
		"slow": {Title: "Slow web page", Type: models.TypeWebpage},
	}}
	reg := &fakeRegistry{works: map[string]registry.Work{"10.1/fast": {DOI: "10.1/fast"}}}
	srch := &blockingSearcher{release: release}
	sink := &memSink{}

	cfg := testConfig()
	cfg.Pipeline.RunTimeout = 50 * time.Millisecond
	engine := NewEngine(cfg, Dependencies{Extractor: ext, Registry: reg, Searcher: srch})

	record, err := engine.Run(context.Background(), []string{"fast", "slow"}, sink)
	require.NoError(t, err)

	assert.Equal(t, models.StatusVerified, record.Results[0].Status)
	assert.Equal(t, models.StatusPending, record.Results[1].Status)
	assert.Contains(t, record.Results[1].Message, ErrRunTimeout.Error())
	assert.Equal(t, RunTimedOut, record.Summary.Status)
	assert.Len(t, sink.ofType(models.EventResult), 2)
	assert.Len(t, sink.ofType(models.EventComplete), 1)
}

// blockingSearcher ignores cancellation so only the run ceiling can end the wait.
type blockingSearcher struct {
	release chan struct{}
}

func (b *blockingSearcher) Search(ctx context.Context, query string, maxResults int) []models.EvidenceItem {
	<-b.release
	return nil
}

func TestRunCancellationStopsEmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ext := &fakeExtractor{records: map[string]models.ReferenceRecord{
		"a": {Title: "Some web page", Type: models.TypeWebpage},
		"b": {Title: "Another web page", Type: models.TypeWebpage},
	}}
	srch := &fakeSearcher{block: make(chan struct{})}
	sink := &memSink{}
	sink.onEmit = func(ev models.Event) {
		if ev.Type == models.EventExtractionComplete {
			cancel()
		}
	}

	engine := NewEngine(testConfig(), Dependencies{Extractor: ext, Searcher: srch})
	record, err := engine.Run(ctx, []string{"a", "b"}, sink)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RunCancelled, record.Summary.Status)
	assert.Empty(t, sink.ofType(models.EventResult))
	assert.Empty(t, sink.ofType(models.EventComplete))
}

func TestRunSinkFailureStopsRun(t *testing.T) {
	ext := &fakeExtractor{records: map[string]models.ReferenceRecord{}}
	boom := errors.New("client went away")
	calls := 0
	sink := SinkFunc(func(ev models.Event) error {
		calls++
		return boom
	})

	engine := NewEngine(testConfig(), Dependencies{Extractor: ext, Searcher: &fakeSearcher{}})
	_, err := engine.Run(context.Background(), []string{"a"}, sink)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Zero(t, ext.calls.Load())
}

func TestRunServesCachedResults(t *testing.T) {
	ext := &fakeExtractor{records: map[string]models.ReferenceRecord{
		"LeCun 2015": {Title: "Deep learning", DOI: "10.1038/nature14539", Type: models.TypeJournalArticle},
		"unknown":    {Title: "Unknown", Type: models.TypeOther},
	}}
	reg := &fakeRegistry{works: map[string]registry.Work{"10.1038/nature14539": {DOI: "10.1038/nature14539"}}}
	c := cache.New(config.CacheConfig{Enabled: true, TTL: time.Hour, MaxEntries: 10}, nil)

	engine := NewEngine(testConfig(), Dependencies{Extractor: ext, Registry: reg, Searcher: &fakeSearcher{}, Cache: c})
	_, err := engine.Run(context.Background(), []string{"LeCun 2015"}, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, ext.calls.Load())

	sink := &memSink{}
	record, err := engine.Run(context.Background(), []string{"unknown", "  lecun 2015 "}, sink)
	require.NoError(t, err)

	// Only the uncached reference reaches the extractor.
	require.Len(t, ext.seen, 1)
	assert.Equal(t, "unknown", ext.seen[0].Text)
	assert.Equal(t, 0, ext.seen[0].Index)

	assert.Equal(t, 1, record.Summary.CacheHits)
	cached := record.Results[1]
	assert.Equal(t, 1, cached.Index)
	assert.Equal(t, "  lecun 2015 ", cached.ReferenceText)
	assert.Equal(t, models.StatusVerified, cached.Status)

	// The cached result precedes extraction in the stream.
	assert.Equal(t, models.EventResult, sink.events[1].Type)
	assert.Equal(t, models.EventExtractionComplete, sink.events[2].Type)
}

func TestRunEmptyInput(t *testing.T) {
	sink := &memSink{}
	ext := &fakeExtractor{}
	engine := NewEngine(testConfig(), Dependencies{Extractor: ext})

	record, err := engine.Run(context.Background(), nil, sink)
	require.NoError(t, err)

	assert.Empty(t, record.Results)
	require.Len(t, sink.events, 2)
	assert.Equal(t, models.EventStart, sink.events[0].Type)
	assert.Equal(t, models.EventComplete, sink.events[1].Type)
	assert.Zero(t, ext.calls.Load())
}

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunk([]int{1, 2, 3, 4, 5}, 2))
	assert.Nil(t, chunk([]int{}, 3))
	assert.Equal(t, [][]int{{1}, {2}}, chunk([]int{1, 2}, 0))
}
