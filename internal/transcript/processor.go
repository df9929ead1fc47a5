package transcript

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/MrWong99/earshot/internal/transcript/phonetic"
)

// Correction records a single vocabulary substitution.
type Correction struct {
	// Original is the phrase as it was heard.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the similarity score of the match in [0.0, 1.0].
	Confidence float64
}

// Result is the processed form of one raw transcript.
type Result struct {
	// Text is the final text. It is empty when the raw text was empty or
	// nonsense.
	Text string

	// Raw is the provider's unprocessed output.
	Raw string

	// Corrections lists the vocabulary substitutions applied to Text.
	Corrections []Correction

	// Keywords are the topic words of Text, see [ExtractKeywords].
	Keywords []string
}

// Discarded reports whether the raw text was rejected.
func (r Result) Discarded() bool { return r.Text == "" }

// Option is a functional option for configuring a [Processor].
type Option func(*Processor)

// WithMinLength sets the nonsense filter's minimum length. Default:
// [DefaultMinLength].
func WithMinLength(n int) Option {
	return func(p *Processor) { p.minLength = n }
}

// WithVocabulary enables correction of misheard vocabulary terms. A nil or
// empty matcher disables the stage.
func WithVocabulary(m *phonetic.Matcher) Option {
	return func(p *Processor) { p.vocabulary = m }
}

// Processor applies, in order: [Clean], the nonsense filter, vocabulary
// correction and [Format]. It is read-only after construction and safe for
// concurrent use.
type Processor struct {
	minLength  int
	vocabulary *phonetic.Matcher
}

// NewProcessor constructs a Processor with the supplied options.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{minLength: DefaultMinLength}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process turns raw provider output into a Result.
func (p *Processor) Process(raw string) Result {
	res := Result{Raw: raw}
	cleaned := Clean(raw)
	if IsEmptyOrNonsense(cleaned, p.minLength) {
		return res
	}
	if p.vocabulary != nil && p.vocabulary.Len() > 0 {
		cleaned, res.Corrections = correct(cleaned, p.vocabulary)
	}
	res.Text = Format(cleaned)
	res.Keywords = ExtractKeywords(res.Text, DefaultKeywordLength)
	return res
}

// span is a candidate replacement of tokens[start:start+n].
type span struct {
	start, n   int
	term       string
	confidence float64
}

// correct replaces phrases of text that match a vocabulary term. Every window
// of up to MaxWords tokens is scored; the best-scoring windows are applied
// first and windows overlapping an applied one are dropped. Ties favour
// shorter, then earlier, windows. Punctuation around a window is kept.
func correct(text string, m *phonetic.Matcher) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	var candidates []span
	for i := range tokens {
		for n := 1; n <= m.MaxWords() && i+n <= len(tokens); n++ {
			core := trimPunct(strings.Join(tokens[i:i+n], " "))
			if core == "" {
				continue
			}
			if term, conf, ok := m.Match(core); ok {
				candidates = append(candidates, span{start: i, n: n, term: term, confidence: conf})
			}
		}
	}
	slices.SortStableFunc(candidates, func(a, b span) int {
		if c := cmp.Compare(b.confidence, a.confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(a.n, b.n); c != 0 {
			return c
		}
		return cmp.Compare(a.start, b.start)
	})

	taken := make([]bool, len(tokens))
	chosen := make(map[int]span)
	for _, c := range candidates {
		if slices.Contains(taken[c.start:c.start+c.n], true) {
			continue
		}
		for j := c.start; j < c.start+c.n; j++ {
			taken[j] = true
		}
		chosen[c.start] = c
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		c, ok := chosen[i]
		if !ok {
			out = append(out, tokens[i])
			i++
			continue
		}
		window := strings.Join(tokens[i:i+c.n], " ")
		core := trimPunct(window)
		prefix, suffix, _ := strings.Cut(window, core)
		out = append(out, prefix+c.term+suffix)
		if core != c.term {
			corrections = append(corrections, Correction{Original: core, Corrected: c.term, Confidence: c.confidence})
		}
		i += c.n
	}
	return strings.Join(out, " "), corrections
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return unicode.IsPunct(r) })
}
