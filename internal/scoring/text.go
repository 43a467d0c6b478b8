package scoring

import (
	"strings"
	"unicode/utf8"
)

// phraseBonus is added to a title similarity when three consecutive title
// words appear together in the compared text.
const phraseBonus = 0.2

// TitleWords lowercases a title and keeps the words longer than two characters.
func TitleWords(title string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if utf8.RuneCountInString(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

// WordOverlap returns the fraction of title words found in text plus the
// phrase bonus, capped at 1. text must already be lowercase.
func WordOverlap(title, text string) float64 {
	words := TitleWords(title)
	if len(words) == 0 {
		return 0
	}

	matched := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			matched++
		}
	}
	score := float64(matched) / float64(len(words))

	for i := 0; i+3 <= len(words); i++ {
		if strings.Contains(text, strings.Join(words[i:i+3], " ")) {
			score += phraseBonus
			break
		}
	}

	if score > 1 {
		return 1
	}
	return score
}

// TitleSimilarity scores how well text (lowercase) reproduces title: 1 for a
// verbatim occurrence, otherwise the word overlap.
func TitleSimilarity(title, text string) float64 {
	normalized := strings.TrimSpace(strings.ToLower(title))
	if normalized == "" {
		return 0
	}
	if strings.Contains(text, normalized) {
		return 1
	}
	return WordOverlap(normalized, text)
}

// FamilyName extracts the lowercase family name from an author string in
// either "Family, Given" or "Given Family" form.
func FamilyName(author string) string {
	lower := strings.ToLower(strings.TrimSpace(author))
	if i := strings.Index(lower, ","); i >= 0 {
		lower = lower[:i]
	}
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], ".;:")
}
