package scoring

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/factchecker/citecheck/internal/models"
)

var (
	titleNoise  = regexp.MustCompile(`[^\p{L}\p{N}\s,.\-]`)
	authorNoise = regexp.MustCompile(`[^\p{L}\p{N}\s.\-]`)
	spaces      = regexp.MustCompile(`\s+`)
)

// rawQueryWords caps the fallback query built from unstructured text.
const rawQueryWords = 20

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "&", "and")
	s = strings.ReplaceAll(s, ":", " ")
	s = titleNoise.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func cleanAuthor(s string) string {
	s = authorNoise.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// BuildQuery assembles the web search query for a reference from its title,
// first author, year and journal. A record without a title falls back to the
// leading words of its raw text.
func BuildQuery(ref models.ReferenceRecord) string {
	var parts []string

	if title := cleanText(ref.Title); title != "" {
		parts = append(parts, title)
	} else if raw := cleanText(ref.RawText); raw != "" {
		words := strings.Fields(raw)
		if len(words) > rawQueryWords {
			words = words[:rawQueryWords]
		}
		return strings.Join(words, " ")
	}

	if author := cleanAuthor(ref.FirstAuthor()); author != "" {
		parts = append(parts, author)
	}
	if ref.Year > 0 {
		parts = append(parts, strconv.Itoa(ref.Year))
	}
	if journal := cleanText(ref.Journal); journal != "" {
		parts = append(parts, journal)
	}

	return strings.Join(parts, " ")
}

// RelaxedQuery builds the fallback query issued when the primary query found
// nothing. Web pages and reports use long title keywords plus the site name;
// everything else uses the leading title words plus first author.
func RelaxedQuery(ref models.ReferenceRecord) string {
	title := cleanText(ref.Title)
	if title == "" {
		return ""
	}

	var parts []string
	if ref.Type == models.TypeWebpage || ref.Type == models.TypeReport {
		parts = append(parts, keywords(title, 4, 4)...)
		if ref.Year > 0 {
			parts = append(parts, strconv.Itoa(ref.Year))
		}
		if site := siteName(ref.URL); site != "" {
			parts = append(parts, site)
		}
	} else {
		parts = append(parts, keywords(title, 3, 5)...)
		if author := cleanAuthor(ref.FirstAuthor()); author != "" {
			parts = append(parts, author)
		}
		if ref.Year > 0 {
			parts = append(parts, strconv.Itoa(ref.Year))
		}
	}

	return strings.Join(parts, " ")
}

// keywords returns up to limit words longer than minLen runes.
func keywords(text string, minLen, limit int) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) > minLen {
			out = append(out, w)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// siteName returns the first label of the URL host, e.g. "ofcom" for
// https://www.ofcom.org.uk/report.
func siteName(rawURL string) string {
	host := Host(rawURL)
	if host == "" {
		return ""
	}
	label, _, _ := strings.Cut(host, ".")
	if utf8.RuneCountInString(label) <= 2 {
		return ""
	}
	return label
}
