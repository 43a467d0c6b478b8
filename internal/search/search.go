// Package search gathers web evidence for references from search providers.
package search

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/models"
)

// ErrRateLimited is returned by a source that answered 429. The aggregate
// client treats it as an empty result and never retries.
var ErrRateLimited = errors.New("search provider rate limit exceeded")

const (
	// minQueryLength is the shortest query worth sending to a provider.
	minQueryLength = 3

	defaultTimeout = 8 * time.Second
)

// Searcher returns web evidence for a query. It never fails: provider
// errors surface as an empty result.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []models.EvidenceItem
}

// SearchClient defines the interface for search providers.
type SearchClient interface {
	// Search searches for evidence related to the query.
	Search(ctx context.Context, query string, maxResults int) ([]models.EvidenceItem, error)

	// Name returns the source name.
	Name() string

	// Available returns whether this client is properly configured.
	Available() bool
}

// Option configures a provider client.
type Option func(*clientOptions)

type clientOptions struct {
	baseURL    string
	httpClient *http.Client
}

// WithBaseURL sets a custom endpoint (for testing).
func WithBaseURL(u string) Option {
	return func(o *clientOptions) {
		o.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

func applyOptions(baseURL string, timeout time.Duration, opts []Option) clientOptions {
	o := clientOptions{baseURL: baseURL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		o.httpClient = &http.Client{Timeout: timeout}
	}
	return o
}

// AggregatedSearchClient searches across multiple sources.
type AggregatedSearchClient struct {
	clients []SearchClient
}

// NewAggregatedSearchClient creates a new aggregated search client.
func NewAggregatedSearchClient(clients ...SearchClient) *AggregatedSearchClient {
	available := make([]SearchClient, 0, len(clients))
	for _, c := range clients {
		if c.Available() {
			available = append(available, c)
		}
	}
	return &AggregatedSearchClient{clients: available}
}

// NewFromConfig builds the aggregate client for the enabled sources.
func NewFromConfig(cfg config.SearchConfig) *AggregatedSearchClient {
	var clients []SearchClient
	if cfg.Google.Enabled {
		clients = append(clients, NewGoogleClient(cfg.Google))
	}
	if cfg.DuckDuckGo.Enabled {
		clients = append(clients, NewDuckDuckGoClient(cfg.DuckDuckGo))
	}
	if cfg.PubMed.Enabled {
		clients = append(clients, NewPubMedClient(cfg.PubMed))
	}
	return NewAggregatedSearchClient(clients...)
}

// SearchResult contains results from a single source.
type SearchResult struct {
	Source   string
	Items    []models.EvidenceItem
	Error    error
	position int
}

// Search queries all sources concurrently and merges their results in source
// order, dropping duplicate URLs. Source failures are logged and skipped.
func (a *AggregatedSearchClient) Search(ctx context.Context, query string, maxResults int) []models.EvidenceItem {
	query = strings.TrimSpace(query)
	if len(a.clients) == 0 || len(query) < minQueryLength || maxResults <= 0 {
		return nil
	}

	results := make(chan SearchResult, len(a.clients))
	for i, client := range a.clients {
		go func(pos int, c SearchClient) {
			items, err := c.Search(ctx, query, maxResults)
			results <- SearchResult{Source: c.Name(), Items: items, Error: err, position: pos}
		}(i, client)
	}

	ordered := make([][]models.EvidenceItem, len(a.clients))
	for range a.clients {
		select {
		case r := <-results:
			switch {
			case errors.Is(r.Error, ErrRateLimited):
				log.Debug().Str("source", r.Source).Msg("Search source rate limited, treating as miss")
			case r.Error != nil:
				log.Warn().Err(r.Error).Str("source", r.Source).Msg("Search source failed")
			default:
				ordered[r.position] = r.Items
			}
		case <-ctx.Done():
			return nil
		}
	}

	seen := make(map[string]bool)
	var merged []models.EvidenceItem
	for _, items := range ordered {
		for _, item := range items {
			if item.URL == "" || seen[item.URL] {
				continue
			}
			seen[item.URL] = true
			merged = append(merged, item)
			if len(merged) >= maxResults {
				return merged
			}
		}
	}
	return merged
}

// HasClients returns whether any search clients are available.
func (a *AggregatedSearchClient) HasClients() bool {
	return len(a.clients) > 0
}

// Names lists the active sources.
func (a *AggregatedSearchClient) Names() []string {
	names := make([]string, len(a.clients))
	for i, c := range a.clients {
		names[i] = c.Name()
	}
	return names
}
