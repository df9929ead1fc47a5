// Package transcript turns raw speech-to-text output into the text handed to
// callers: it cleans the text, rejects empty or nonsensical results, fixes
// misheard vocabulary and formats the remainder.
//
// The free functions are pure and safe for concurrent use.
package transcript

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMinLength is the shortest cleaned text, in characters, that is not
// considered nonsense.
const DefaultMinLength = 2

// DefaultKeywordLength is the default minimum word length for
// [ExtractKeywords].
const DefaultKeywordLength = 3

var (
	// disallowed matches everything but letters, digits, underscore,
	// whitespace and basic punctuation.
	disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s\-.,;:!?'"]`)

	sentenceEnd = regexp.MustCompile(`[.!?]+`)

	onlyPunctuation = regexp.MustCompile(`^[.,!?]+$`)
)

// Clean strips characters outside letters, digits, underscore, whitespace and
// the punctuation -.,;:!?'" and collapses runs of whitespace to single spaces.
// The result has no leading or trailing whitespace.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(disallowed.ReplaceAllString(text, "")), " ")
}

// IsEmptyOrNonsense reports whether text carries nothing worth returning: its
// cleaned form is shorter than minLength characters, has no words, is a single
// letter, only punctuation or only digits.
func IsEmptyOrNonsense(text string, minLength int) bool {
	cleaned := Clean(text)
	if utf8.RuneCountInString(cleaned) < minLength {
		return true
	}
	if len(strings.Fields(cleaned)) == 0 {
		return true
	}

	if r, size := utf8.DecodeRuneInString(cleaned); size == len(cleaned) && unicode.IsLetter(r) {
		return true
	}
	if onlyPunctuation.MatchString(cleaned) {
		return true
	}
	return strings.IndexFunc(cleaned, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
}

// Format cleans text and upper-cases its first character.
func Format(text string) string {
	cleaned := Clean(text)
	r, size := utf8.DecodeRuneInString(cleaned)
	if size == 0 {
		return ""
	}
	return string(unicode.ToUpper(r)) + cleaned[size:]
}

// SplitSentences splits text on runs of . ! and ? and returns the trimmed
// sentences. Fragments shorter than three characters are dropped.
func SplitSentences(text string) []string {
	var out []string
	for _, s := range sentenceEnd.Split(text, -1) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) >= 3 {
			out = append(out, s)
		}
	}
	return out
}

// stopWords are common English function words that carry no topic.
var stopWords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "all": {}, "also": {}, "an": {}, "and": {},
	"any": {}, "are": {}, "as": {}, "at": {}, "be": {}, "because": {}, "been": {},
	"but": {}, "by": {}, "can": {}, "could": {}, "did": {}, "do": {}, "does": {},
	"for": {}, "from": {}, "had": {}, "has": {}, "have": {}, "he": {}, "her": {},
	"him": {}, "his": {}, "how": {}, "i": {}, "if": {}, "in": {}, "into": {},
	"is": {}, "it": {}, "its": {}, "just": {}, "me": {}, "my": {}, "not": {},
	"now": {}, "of": {}, "on": {}, "or": {}, "our": {}, "out": {}, "she": {},
	"so": {}, "some": {}, "than": {}, "that": {}, "the": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"to": {}, "up": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "who": {}, "will": {}, "with": {}, "would": {},
	"you": {}, "your": {},
}

// ExtractKeywords returns the lower-cased words of text with punctuation
// removed, keeping those of at least minLength characters that are not
// stop words. Order and duplicates are preserved.
func ExtractKeywords(text string, minLength int) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Map(func(r rune) rune {
			if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, w)
		if utf8.RuneCountInString(w) < minLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}
