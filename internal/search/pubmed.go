package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/models"
)

// PubMedEUtilsURL is the NCBI E-utilities base.
const PubMedEUtilsURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMedClient searches using NCBI PubMed API.
type PubMedClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewPubMedClient creates a new PubMed client.
func NewPubMedClient(cfg config.PubMedConfig, opts ...Option) *PubMedClient {
	o := applyOptions(PubMedEUtilsURL, cfg.Timeout, opts)
	return &PubMedClient{httpClient: o.httpClient, baseURL: strings.TrimRight(o.baseURL, "/")}
}

// Name returns the source name.
func (c *PubMedClient) Name() string {
	return "PubMed"
}

// Available returns true as PubMed requires no API key for basic usage.
func (c *PubMedClient) Available() bool {
	return true
}

type pubmedSearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedArticle struct {
	Title   string `json:"title"`
	PubDate string `json:"pubdate"`
	Source  string `json:"source"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ELocationID string `json:"elocationid"`
}

type pubmedSummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

// Search finds article ids for the query, then fetches their summaries.
func (c *PubMedClient) Search(ctx context.Context, query string, maxResults int) ([]models.EvidenceItem, error) {
	searchURL := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&term=%s&retmax=%d&retmode=json",
		c.baseURL, url.QueryEscape(query), maxResults)

	var searchData pubmedSearchResponse
	if err := c.getJSON(ctx, searchURL, &searchData); err != nil {
		return nil, fmt.Errorf("PubMed search failed: %w", err)
	}

	ids := searchData.ESearchResult.IDList
	if len(ids) == 0 {
		return nil, nil
	}

	summaryURL := fmt.Sprintf("%s/esummary.fcgi?db=pubmed&id=%s&retmode=json",
		c.baseURL, strings.Join(ids, ","))

	var summaryData pubmedSummaryResponse
	if err := c.getJSON(ctx, summaryURL, &summaryData); err != nil {
		return nil, fmt.Errorf("PubMed summary failed: %w", err)
	}

	var items []models.EvidenceItem
	for _, pmid := range ids {
		raw, ok := summaryData.Result[pmid]
		if !ok {
			continue
		}
		var article pubmedArticle
		if err := json.Unmarshal(raw, &article); err != nil || article.Title == "" {
			continue
		}

		items = append(items, models.EvidenceItem{
			URL:     "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
			Title:   article.Title,
			Snippet: article.snippet(),
		})
	}
	return items, nil
}

// snippet renders authors, journal, date and DOI the way a results page would.
func (a pubmedArticle) snippet() string {
	var parts []string
	if len(a.Authors) > 0 {
		names := make([]string, 0, len(a.Authors))
		for _, au := range a.Authors {
			names = append(names, au.Name)
		}
		parts = append(parts, strings.Join(names, ", "))
	}
	if a.Source != "" {
		parts = append(parts, "Published in "+a.Source)
	}
	if a.PubDate != "" {
		parts = append(parts, a.PubDate)
	}
	if a.ELocationID != "" {
		parts = append(parts, a.ELocationID)
	}
	return strings.Join(parts, ". ")
}

func (c *PubMedClient) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("PubMed returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
