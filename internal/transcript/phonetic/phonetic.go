// Package phonetic corrects misheard domain vocabulary (names, jargon) in a
// transcript using Double Metaphone phonetic encoding combined with
// Jaro-Winkler string similarity.
//
// The algorithm proceeds in two stages for every candidate phrase:
//
//  1. Phonetic filtering: Double Metaphone codes are computed for each word of
//     the phrase and for each vocabulary term. A shared code makes the term a
//     phonetic candidate, accepted above the phonetic threshold (default 0.70).
//
//  2. Fuzzy fallback: terms without a shared code are accepted only above the
//     stricter fuzzy threshold (default 0.85).
//
// Multi-word terms (e.g., "Site Reliability Engineering") are matched against phrases of
// up to the same number of words.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// maxLengthRatio bounds how much longer (letters only) a phrase may be than
	// the term it is compared to, and vice versa.
	maxLengthRatio = 1.5
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic code is shared. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// term is a vocabulary entry with its comparison data precomputed.
type term struct {
	text    string
	lower   string
	compact string
	tokens  []string
	codes   map[string]struct{}
}

// Matcher matches phrases against a fixed vocabulary. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	terms             []term
	maxWords          int
}

// New returns a Matcher for vocabulary. Blank and duplicate (case-insensitive)
// terms are skipped; the first spelling wins.
func New(vocabulary []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}

	seen := make(map[string]struct{}, len(vocabulary))
	for _, v := range vocabulary {
		text := strings.Join(strings.Fields(v), " ")
		lower := strings.ToLower(text)
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}

		tokens := strings.Fields(lower)
		m.terms = append(m.terms, term{
			text:    text,
			lower:   lower,
			compact: strings.Join(tokens, ""),
			tokens:  tokens,
			codes:   codesForTokens(tokens),
		})
		m.maxWords = max(m.maxWords, len(tokens))
	}
	return m
}

// Len returns the number of vocabulary terms.
func (m *Matcher) Len() int { return len(m.terms) }

// MaxWords returns the word count of the longest term, or 0 for an empty
// vocabulary.
func (m *Matcher) MaxWords() int { return m.maxWords }

// Match finds the vocabulary term most similar to phrase. When matched is
// false, corrected equals phrase unchanged and confidence is 0.
func (m *Matcher) Match(phrase string) (corrected string, confidence float64, matched bool) {
	tokens := strings.Fields(strings.ToLower(phrase))
	if len(m.terms) == 0 || len(tokens) == 0 {
		return phrase, 0, false
	}
	if len(tokens) > m.maxWords {
		return phrase, 0, false
	}

	input := strings.Join(tokens, " ")
	compact := strings.Join(tokens, "")
	codes := codesForTokens(tokens)

	var (
		best         *term
		bestScore    float64
		bestPhonetic bool
	)
	for i := range m.terms {
		t := &m.terms[i]
		if !comparableLength(compact, t.compact) {
			continue
		}
		score := similarity(tokens, t.tokens, input, t.lower, compact, t.compact)

		if codesOverlap(codes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t, score, true
			}
		} else if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t, score
		}
	}

	if best == nil {
		return phrase, 0, false
	}
	return best.text, bestScore, true
}

// comparableLength reports whether the letter counts of a and b are within
// maxLengthRatio of each other.
func comparableLength(a, b string) bool {
	la, lb := float64(len([]rune(a))), float64(len([]rune(b)))
	if la == 0 || lb == 0 {
		return false
	}
	return max(la, lb)/min(la, lb) <= maxLengthRatio
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when the word is too short or
// contains no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity returns the highest Jaro-Winkler similarity between a phrase and
// a term using three strategies:
//
//  1. Full-string comparison (e.g., "site reliabilty engineering" vs "site reliability engineering").
//  2. Space-stripped comparison (e.g., "kuber netes" vs "kubernetes"), which
//     catches a single word heard as several.
//  3. Word-aligned mean, when both have the same number of words.
func similarity(inTokens, termTokens []string, in, t, inCompact, termCompact string) float64 {
	score := matchr.JaroWinkler(in, t, false)

	if len(inTokens) > 1 || len(termTokens) > 1 {
		score = max(score, matchr.JaroWinkler(inCompact, termCompact, false))
	}

	if len(inTokens) > 1 && len(inTokens) == len(termTokens) {
		var sum float64
		for i := range inTokens {
			sum += matchr.JaroWinkler(inTokens[i], termTokens[i], false)
		}
		score = max(score, sum/float64(len(inTokens)))
	}
	return score
}
