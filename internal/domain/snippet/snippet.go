// Package snippet extracts short query-match excerpts from document text.
package snippet

import (
	"strings"
	"unicode/utf8"
)

// Default extraction parameters.
const (
	DefaultContextSentences = 2
	DefaultMaxLength        = 500
)

// Extract returns an excerpt of fullText around the first occurrence of any
// query term: the sentence containing the match plus contextSentences sentences
// on each side, truncated to maxLength with a trailing ellipsis when cut.
// When no term occurs anywhere, the leading maxLength characters are returned.
// Only the first match is used even if the term occurs multiple times.
func Extract(fullText, query string, contextSentences, maxLength int) string {
	if contextSentences < 0 {
		contextSentences = DefaultContextSentences
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if fullText == "" {
		return ""
	}

	offset := firstTermOffset(fullText, query)
	if offset < 0 {
		return truncate(strings.TrimSpace(fullText), maxLength)
	}

	sentences := splitSentences(fullText)
	match := 0
	for i, s := range sentences {
		if offset >= s.start && offset < s.end {
			match = i
			break
		}
	}

	lo := match - contextSentences
	if lo < 0 {
		lo = 0
	}
	hi := match + contextSentences
	if hi >= len(sentences) {
		hi = len(sentences) - 1
	}

	excerpt := strings.TrimSpace(fullText[sentences[lo].start:sentences[hi].end])
	return truncate(excerpt, maxLength)
}

// firstTermOffset returns the lowest byte offset in text where any
// whitespace-separated query term occurs, case-insensitive, or -1.
func firstTermOffset(text, query string) int {
	lower := strings.ToLower(text)
	best := -1
	for _, term := range strings.Fields(strings.ToLower(query)) {
		term = strings.Trim(term, `"'()`)
		if term == "" {
			continue
		}
		if i := strings.Index(lower, term); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

type span struct {
	start, end int
}

// splitSentences cuts text on terminal punctuation (. ! ?) followed by
// whitespace or end of text. Offsets are preserved so a character offset
// can be mapped back to its sentence.
func splitSentences(text string) []span {
	var spans []span
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && !isSpace(text[i+1]) {
			continue
		}
		spans = append(spans, span{start: start, end: i + 1})
		j := i + 1
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(text) {
		spans = append(spans, span{start: start, end: len(text)})
	}
	if len(spans) == 0 {
		spans = append(spans, span{start: 0, end: len(text)})
	}
	return spans
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// truncate cuts s to at most maxLength bytes, backing up to a rune boundary
// so a multi-byte character is never split.
func truncate(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	cut := maxLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
