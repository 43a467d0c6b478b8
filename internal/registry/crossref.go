// Package registry verifies references against a persistent-identifier
// registry (Crossref) by direct DOI lookup and by bibliographic search.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/factchecker/citecheck/internal/config"
	"github.com/factchecker/citecheck/internal/models"
)

const (
	// DefaultBaseURL is the Crossref works endpoint.
	DefaultBaseURL = "https://api.crossref.org/works"

	// DefaultTimeout bounds a single registry request.
	DefaultTimeout = 8 * time.Second

	// DefaultRows is the number of candidates requested per metadata search.
	DefaultRows = 5

	selectFields = "DOI,title,author,published,published-print,published-online,created,container-title,publisher,volume,issue,page,is-referenced-by-count,URL"
)

// Registry is the identifier registry used by the verification pipeline.
type Registry interface {
	// VerifyByIdentifier resolves a DOI. Returns ErrNotFound for unknown identifiers.
	VerifyByIdentifier(ctx context.Context, doi string) (*Work, error)

	// SearchByMetadata looks the record up by title, first author and year and
	// returns the best candidate. Returns ErrNotFound when nothing scores high enough.
	SearchByMetadata(ctx context.Context, ref models.ReferenceRecord) (*Match, error)
}

// Work is the canonical publication record returned by the registry.
type Work struct {
	DOI           string
	Title         string
	Authors       []string // "Family, Given"
	Families      []string
	Year          int
	Journal       string
	Publisher     string
	Volume        string
	Issue         string
	Pages         string
	URL           string
	CitationCount int
}

// Details converts the work into the supporting details of a result.
func (w Work) Details() *models.SupportingDetails {
	return &models.SupportingDetails{
		Authors:       w.Authors,
		Title:         w.Title,
		Year:          w.Year,
		Journal:       w.Journal,
		Publisher:     w.Publisher,
		CitationCount: w.CitationCount,
	}
}

// Match is a metadata search hit together with its match score.
type Match struct {
	Work  Work
	Score float64
}

// CrossrefClient talks to the Crossref REST API.
type CrossrefClient struct {
	httpClient *http.Client
	baseURL    string
	mailto     string
	rows       int
}

// Option configures a CrossrefClient.
type Option func(*CrossrefClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *CrossrefClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *CrossrefClient) {
		c.httpClient = hc
	}
}

// NewCrossrefClient creates a client from the registry configuration.
func NewCrossrefClient(cfg config.RegistryConfig, opts ...Option) *CrossrefClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &CrossrefClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    DefaultBaseURL,
		mailto:     cfg.Mailto,
		rows:       cfg.SearchRows,
	}
	if cfg.BaseURL != "" {
		c.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if strings.HasPrefix(c.mailto, "${") {
		c.mailto = ""
	}
	if c.rows <= 0 {
		c.rows = DefaultRows
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

type crossrefAuthor struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

type crossrefDate struct {
	DateParts [][]int `json:"date-parts"`
}

func (d *crossrefDate) year() int {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}

type crossrefWork struct {
	DOI             string           `json:"DOI"`
	Title           []string         `json:"title"`
	Author          []crossrefAuthor `json:"author"`
	Published       *crossrefDate    `json:"published"`
	PublishedPrint  *crossrefDate    `json:"published-print"`
	PublishedOnline *crossrefDate    `json:"published-online"`
	Created         *crossrefDate    `json:"created"`
	ContainerTitle  []string         `json:"container-title"`
	Publisher       string           `json:"publisher"`
	Volume          string           `json:"volume"`
	Issue           string           `json:"issue"`
	Page            string           `json:"page"`
	ReferencedBy    int              `json:"is-referenced-by-count"`
	URL             string           `json:"URL"`
}

type workResponse struct {
	Message crossrefWork `json:"message"`
}

type searchResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

func (cw crossrefWork) toWork() Work {
	w := Work{
		DOI:           cw.DOI,
		Publisher:     cw.Publisher,
		Volume:        cw.Volume,
		Issue:         cw.Issue,
		Pages:         cw.Page,
		URL:           cw.URL,
		CitationCount: cw.ReferencedBy,
	}
	if len(cw.Title) > 0 {
		w.Title = cw.Title[0]
	}
	if len(cw.ContainerTitle) > 0 {
		w.Journal = cw.ContainerTitle[0]
	}
	if w.URL == "" && w.DOI != "" {
		w.URL = "https://doi.org/" + w.DOI
	}

	for _, d := range []*crossrefDate{cw.Published, cw.PublishedPrint, cw.PublishedOnline, cw.Created} {
		if y := d.year(); y > 0 {
			w.Year = y
			break
		}
	}

	for _, a := range cw.Author {
		var name string
		switch {
		case a.Family != "" && a.Given != "":
			name = a.Family + ", " + a.Given
		case a.Name != "":
			name = a.Name
		default:
			name = a.Family + a.Given
		}
		if name != "" {
			w.Authors = append(w.Authors, name)
		}
		if a.Family != "" {
			w.Families = append(w.Families, a.Family)
		}
	}
	return w
}

// VerifyByIdentifier resolves a DOI against the registry.
func (c *CrossrefClient) VerifyByIdentifier(ctx context.Context, doi string) (*Work, error) {
	doi = NormalizeDOI(doi)
	if doi == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	var resp workResponse
	if err := c.get(ctx, c.baseURL+"/"+url.PathEscape(doi), nil, &resp); err != nil {
		return nil, err
	}

	w := resp.Message.toWork()
	if w.DOI == "" {
		w.DOI = doi
	}
	return &w, nil
}

// SearchByMetadata runs a bibliographic query and scores the returned candidates.
func (c *CrossrefClient) SearchByMetadata(ctx context.Context, ref models.ReferenceRecord) (*Match, error) {
	if strings.TrimSpace(ref.Title) == "" {
		return nil, ErrInsufficientMetadata
	}

	query := ref.Title
	if family := lastName(ref.FirstAuthor()); family != "" {
		query += " " + family
	}

	params := url.Values{}
	params.Set("query.bibliographic", query)
	params.Set("rows", strconv.Itoa(c.rows))
	params.Set("select", selectFields)
	if ref.Year > 0 {
		y := strconv.Itoa(ref.Year)
		params.Set("filter", "from-pub-date:"+y+",until-pub-date:"+y)
	}

	var resp searchResponse
	if err := c.get(ctx, c.baseURL, params, &resp); err != nil {
		return nil, err
	}

	candidates := make([]Work, 0, len(resp.Message.Items))
	for _, item := range resp.Message.Items {
		candidates = append(candidates, item.toWork())
	}

	match, ok := BestMatch(ref, candidates)
	if !ok {
		return nil, fmt.Errorf("%w: no candidate among %d scored above %.1f", ErrNotFound, len(candidates), MinMatchScore)
	}
	return match, nil
}

func (c *CrossrefClient) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode registry response: %w", err)
	}
	return nil
}

func (c *CrossrefClient) userAgent() string {
	if c.mailto == "" {
		return "citecheck/1.0"
	}
	return "citecheck/1.0 (mailto:" + c.mailto + ")"
}

// NormalizeDOI strips resolver prefixes and whitespace from a DOI.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(doi[len(prefix):])
		}
	}
	return doi
}

// lastName mirrors how the registry query expects the first author: the last
// token of the part before any comma.
func lastName(author string) string {
	head, _, _ := strings.Cut(author, ",")
	fields := strings.Fields(head)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
