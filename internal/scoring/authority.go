package scoring

import (
	"net/url"
	"strings"
)

// defaultAuthority is the trust assigned to hosts with no known reputation.
const defaultAuthority = 0.3

type authorityEntry struct {
	domain string
	score  float64
}

// authoritativeSources lists hosts whose pages are strong evidence that a
// publication exists. Checked in order.
var authoritativeSources = []authorityEntry{
	{"scholar.google.com", 1.0},
	{"doi.org", 0.95},
	{"crossref.org", 0.95},
	{"pubmed.ncbi.nlm.nih.gov", 0.9},
	{"ncbi.nlm.nih.gov", 0.9},
	{"ieee.org", 0.9},
	{"acm.org", 0.9},
	{"springer.com", 0.9},
	{"sciencedirect.com", 0.9},
	{"wiley.com", 0.9},
	{"nature.com", 0.9},
	{"sec.gov", 0.9},
	{"ofcom.org.uk", 0.9},
	{"jstor.org", 0.8},
	{"semanticscholar.org", 0.8},
	{"statista.com", 0.8},
	{"academia.edu", 0.7},
	{"researchgate.net", 0.7},
	{"arxiv.org", 0.7},
}

// Authority returns the trust score of the host serving rawURL.
func Authority(rawURL string) float64 {
	host := Host(rawURL)
	if host == "" {
		return defaultAuthority
	}

	for _, e := range authoritativeSources {
		if host == e.domain || strings.HasSuffix(host, "."+e.domain) {
			return e.score
		}
	}

	switch {
	case hasTLD(host, "gov"):
		return 0.8
	case hasTLD(host, "edu"), strings.HasSuffix(host, ".ac.uk"):
		return 0.6
	}
	return defaultAuthority
}

// Host returns the lowercase host of rawURL without a leading "www.".
func Host(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// hasTLD matches both "x.edu" and country variants such as "x.edu.au".
func hasTLD(host, tld string) bool {
	return strings.HasSuffix(host, "."+tld) || strings.Contains(host, "."+tld+".")
}
