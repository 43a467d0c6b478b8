package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/models"
)

// DuckDuckGoHTMLURL is the JavaScript-free DuckDuckGo results page.
const DuckDuckGoHTMLURL = "https://html.duckduckgo.com/html/"

var (
	resultLinkPattern    = regexp.MustCompile(`(?s)<a[^>]*class="result__a"[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	resultSnippetPattern = regexp.MustCompile(`(?s)<a[^>]*class="result__snippet"[^>]*>(.*?)</a>`)
	tagPattern           = regexp.MustCompile(`<[^>]+>`)
	spacePattern         = regexp.MustCompile(`\s+`)
)

// DuckDuckGoClient scrapes the DuckDuckGo HTML results page.
type DuckDuckGoClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewDuckDuckGoClient creates a new DuckDuckGo client.
func NewDuckDuckGoClient(cfg config.DuckDuckGoConfig, opts ...Option) *DuckDuckGoClient {
	o := applyOptions(DuckDuckGoHTMLURL, cfg.Timeout, opts)
	return &DuckDuckGoClient{httpClient: o.httpClient, baseURL: o.baseURL}
}

// Name returns the source name.
func (c *DuckDuckGoClient) Name() string {
	return "DuckDuckGo"
}

// Available returns true as DuckDuckGo requires no API key.
func (c *DuckDuckGoClient) Available() bool {
	return true
}

// Search fetches one results page and parses titles, links and snippets.
func (c *DuckDuckGoClient) Search(ctx context.Context, query string, maxResults int) ([]models.EvidenceItem, error) {
	u := c.baseURL + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// DuckDuckGo answers 202 with a challenge page when it throttles a client.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusAccepted {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}

	items := parseResults(string(body), maxResults)
	log.Debug().Int("count", len(items)).Msg("DuckDuckGo: Search completed")
	return items, nil
}

// parseResults extracts result entries from a DuckDuckGo HTML page.
func parseResults(htmlContent string, maxResults int) []models.EvidenceItem {
	linkMatches := resultLinkPattern.FindAllStringSubmatch(htmlContent, -1)
	snippetMatches := resultSnippetPattern.FindAllStringSubmatch(htmlContent, -1)

	var items []models.EvidenceItem
	for i, match := range linkMatches {
		if len(items) >= maxResults {
			break
		}

		actualURL := decodeRedirectURL(match[1])
		if actualURL == "" || strings.Contains(actualURL, "duckduckgo.com/y.js") {
			continue
		}
		if strings.HasPrefix(actualURL, "//") {
			actualURL = "https:" + actualURL
		}

		snippet := ""
		if i < len(snippetMatches) {
			snippet = cleanFragment(snippetMatches[i][1])
		}

		items = append(items, models.EvidenceItem{
			URL:     actualURL,
			Title:   cleanFragment(match[2]),
			Snippet: snippet,
		})
	}
	return items
}

// cleanFragment strips inline markup such as <b> and decodes entities.
func cleanFragment(fragment string) string {
	text := tagPattern.ReplaceAllString(fragment, "")
	text = html.UnescapeString(text)
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

// decodeRedirectURL extracts actual URL from DuckDuckGo redirect
func decodeRedirectURL(rawURL string) string {
	rawURL = html.UnescapeString(rawURL)
	if !strings.Contains(rawURL, "uddg=") {
		return rawURL
	}

	_, query, ok := strings.Cut(rawURL, "?")
	if !ok {
		return rawURL
	}
	values, err := url.ParseQuery(query)
	if err != nil || values.Get("uddg") == "" {
		return rawURL
	}
	return values.Get("uddg")
}
