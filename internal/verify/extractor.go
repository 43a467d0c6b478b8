package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/factchecker/citecheck/internal/llm"
	"github.com/factchecker/citecheck/internal/models"
	"github.com/factchecker/citecheck/internal/registry"
)

// ErrExtraction marks a whole-batch extraction failure.
var ErrExtraction = errors.New("reference extraction failed")

var (
	fencePattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	yearPattern  = regexp.MustCompile(`(?:^|\D)(1[5-9]\d{2}|20\d{2})(?:\D|$)`)
)

// Extractor turns free-text references into structured records.
type Extractor interface {
	// ExtractBatch returns exactly one record per input, in input order, or an
	// error wrapping ErrExtraction when the batch cannot be parsed at all.
	ExtractBatch(ctx context.Context, raw []models.RawReference) ([]models.ReferenceRecord, error)
}

// LLMExtractor extracts references with a language model in a single call.
type LLMExtractor struct {
	provider llm.Provider
}

// NewLLMExtractor creates a new extractor backed by provider.
func NewLLMExtractor(provider llm.Provider) *LLMExtractor {
	return &LLMExtractor{provider: provider}
}

const extractionSystemPrompt = `You are a bibliographic parser. For every reference in the input array,
extract its structured fields.

Respond with a JSON object of the form:
{
  "references": [
    {
      "index": 0,
      "title": "Article title",
      "authors": ["Family, Given", "Family, Given"],
      "year": 2016,
      "journal": "Journal or conference name, if any",
      "publisher": "Publisher, if any",
      "doi": "10.xxxx/yyyy, if present",
      "url": "URL, if present",
      "type": "journal_article | book | conference_paper | report | webpage | other"
    }
  ]
}

Rules:
- Return exactly one entry per input reference, with "index" equal to its position in the input.
- Always extract the DOI when one is present.
- Leave a field empty rather than guessing.

Only respond with the JSON object, no other text.`

// ExtractBatch extracts all references with one completion call.
func (e *LLMExtractor) ExtractBatch(ctx context.Context, raw []models.RawReference) ([]models.ReferenceRecord, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	texts := make([]string, len(raw))
	for i, r := range raw {
		texts[i] = r.Text
	}
	input, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	opts := llm.DefaultCompletionOptions()
	opts.JSON = true

	response, err := e.provider.CompleteWithSystem(ctx, extractionSystemPrompt,
		fmt.Sprintf("References:\n%s", input), opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	records, err := ParseExtraction(response, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return records, nil
}

// ParseExtraction decodes a model response into one record per raw input.
// Entries are aligned by their "index" field (the position in the prompt
// array) when every entry carries a valid one, otherwise by position. Inputs
// without an entry get a bare record. Records keep the caller's index.
func ParseExtraction(response string, raw []models.RawReference) ([]models.ReferenceRecord, error) {
	doc, err := locateJSON(response)
	if err != nil {
		return nil, err
	}

	var entries []gjson.Result
	switch {
	case doc.IsArray():
		entries = doc.Array()
	case doc.Get("references").IsArray():
		entries = doc.Get("references").Array()
	default:
		return nil, fmt.Errorf("response holds no reference array")
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("response holds no references")
	}

	byIndex := indexed(entries, len(raw))

	records := make([]models.ReferenceRecord, len(raw))
	for i, in := range raw {
		rec := models.ReferenceRecord{RawText: in.Text, OriginalIndex: in.Index, Type: models.TypeOther}

		var entry gjson.Result
		var ok bool
		if byIndex != nil {
			entry, ok = byIndex[i]
		} else if i < len(entries) {
			entry, ok = entries[i], true
		}
		if ok {
			fill(&rec, entry)
		}
		records[i] = rec
	}
	return records, nil
}

// locateJSON strips code fences and finds the outermost JSON value.
func locateJSON(response string) (gjson.Result, error) {
	response = strings.TrimSpace(response)
	if m := fencePattern.FindStringSubmatch(response); len(m) > 1 {
		response = m[1]
	}
	if gjson.Valid(response) {
		return gjson.Parse(response), nil
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(response, pair[0])
		end := strings.LastIndex(response, pair[1])
		if start >= 0 && end > start && gjson.Valid(response[start:end+1]) {
			return gjson.Parse(response[start : end+1]), nil
		}
	}
	return gjson.Result{}, fmt.Errorf("no JSON found in response")
}

// indexed maps entries by their index field, or returns nil when any entry
// lacks a usable, unique index.
func indexed(entries []gjson.Result, n int) map[int]gjson.Result {
	out := make(map[int]gjson.Result, len(entries))
	for _, e := range entries {
		idx := e.Get("index")
		if idx.Type != gjson.Number {
			return nil
		}
		i := int(idx.Int())
		if i < 0 || i >= n {
			return nil
		}
		if _, dup := out[i]; dup {
			return nil
		}
		out[i] = e
	}
	return out
}

func fill(rec *models.ReferenceRecord, e gjson.Result) {
	rec.Title = strings.TrimSpace(e.Get("title").String())
	rec.Journal = strings.TrimSpace(e.Get("journal").String())
	rec.Publisher = strings.TrimSpace(e.Get("publisher").String())
	rec.URL = strings.TrimSpace(e.Get("url").String())
	rec.DOI = registry.NormalizeDOI(e.Get("doi").String())
	rec.Type = models.ParseReferenceType(strings.ToLower(strings.TrimSpace(e.Get("type").String())))

	if m := yearPattern.FindStringSubmatch(e.Get("year").String()); m != nil {
		rec.Year, _ = strconv.Atoi(m[1])
	}

	authors := e.Get("authors")
	switch {
	case authors.IsArray():
		for _, a := range authors.Array() {
			if name := strings.TrimSpace(a.String()); name != "" {
				rec.Authors = append(rec.Authors, name)
			}
		}
	case authors.String() != "":
		for _, a := range strings.Split(authors.String(), ";") {
			if name := strings.TrimSpace(a); name != "" {
				rec.Authors = append(rec.Authors, name)
			}
		}
	}
}
