package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/models"
)

// GoogleCSEURL is the Custom Search JSON API endpoint.
const GoogleCSEURL = "https://www.googleapis.com/customsearch/v1"

// googleMaxResults is the largest page the Custom Search API returns.
const googleMaxResults = 10

// GoogleClient searches using the Google Custom Search JSON API.
type GoogleClient struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	searchEngineID string
}

// NewGoogleClient creates a new Google Custom Search client.
func NewGoogleClient(cfg config.GoogleConfig, opts ...Option) *GoogleClient {
	o := applyOptions(GoogleCSEURL, cfg.Timeout, opts)
	return &GoogleClient{
		httpClient:     o.httpClient,
		baseURL:        o.baseURL,
		apiKey:         cfg.APIKey,
		searchEngineID: cfg.SearchEngineID,
	}
}

// Name returns the source name.
func (c *GoogleClient) Name() string {
	return "Google"
}

// Available returns true when both credentials are configured.
func (c *GoogleClient) Available() bool {
	return c.apiKey != "" && c.searchEngineID != ""
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search runs one Custom Search query.
func (c *GoogleClient) Search(ctx context.Context, query string, maxResults int) ([]models.EvidenceItem, error) {
	if maxResults > googleMaxResults {
		maxResults = googleMaxResults
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.searchEngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google returned status %d", resp.StatusCode)
	}

	var data googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode google response: %w", err)
	}

	items := make([]models.EvidenceItem, 0, len(data.Items))
	for _, it := range data.Items {
		items = append(items, models.EvidenceItem{URL: it.Link, Title: it.Title, Snippet: it.Snippet})
	}
	return items, nil
}
