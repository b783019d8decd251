// Package phonetic implements [transcript.PhoneticMatcher] for speaker labels
// using Double Metaphone codes and Jaro-Winkler similarity.
//
// Generated and hand-edited transcripts regularly spell a character's name
// differently from the configured one ("Jon" for "John", "Dr Sara" for
// "Sarah"). Matching happens in two passes:
//
//  1. Phonetic pass: a character is a candidate when any Double Metaphone
//     code of a label token equals a code of one of its name tokens. The
//     best Jaro-Winkler score among candidates must reach the phonetic
//     threshold (default 0.70).
//
//  2. Fuzzy pass: when no phonetic candidate qualifies, the best plain
//     Jaro-Winkler score must reach the fuzzy threshold (default 0.85).
//
// A label that scores equally well against two different characters is left
// unmatched; guessing between two speakers would silently reassign dialogue.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/podwright/internal/transcript"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// ambiguityMargin is the score distance under which two different
	// characters are considered tied.
	ambiguityMargin = 0.01
)

var _ transcript.PhoneticMatcher = (*Matcher)(nil)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching name. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate exists. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher resolves speaker labels. It is read-only after construction and
// safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type candidate struct {
	name     string
	score    float64
	phonetic bool
}

// Match returns the configured name that label most likely refers to.
func (m *Matcher) Match(label string, names []string) (corrected string, confidence float64, matched bool) {
	labelTokens := tokens(label)
	if len(names) == 0 || len(labelTokens) == 0 {
		return label, 0, false
	}
	labelCodes := codesFor(labelTokens)

	var best, runnerUp candidate
	for _, name := range names {
		nameTokens := tokens(name)
		if len(nameTokens) == 0 {
			continue
		}
		score := similarity(labelTokens, nameTokens)
		c := candidate{name: name, score: score, phonetic: overlaps(labelCodes, codesFor(nameTokens))}

		threshold := m.fuzzyThreshold
		if c.phonetic {
			threshold = m.phoneticThreshold
		}
		if score < threshold {
			continue
		}
		if better(c, best) {
			runnerUp, best = best, c
		} else if better(c, runnerUp) {
			runnerUp = c
		}
	}

	if best.name == "" {
		return label, 0, false
	}
	if runnerUp.name != "" && runnerUp.phonetic == best.phonetic && best.score-runnerUp.score < ambiguityMargin {
		return label, 0, false
	}
	return best.name, best.score, true
}

// better orders candidates: phonetic matches beat fuzzy ones, then higher
// score wins.
func better(a, b candidate) bool {
	if b.name == "" {
		return true
	}
	if a.phonetic != b.phonetic {
		return a.phonetic
	}
	return a.score > b.score
}

// tokens lower-cases s and splits it into letter/digit runs, dropping
// punctuation such as the dot in "Dr.".
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// codesFor returns the union of Double Metaphone codes for toks.
func codesFor(toks []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(toks)*2)
	for _, t := range toks {
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

func overlaps(a, b map[string]struct{}) bool {
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

// similarity is the best Jaro-Winkler score of the joined strings, the
// space-free concatenations and every token pair.
func similarity(label, name []string) float64 {
	score := matchr.JaroWinkler(strings.Join(label, " "), strings.Join(name, " "), false)
	if len(label) > 1 || len(name) > 1 {
		if s := matchr.JaroWinkler(strings.Join(label, ""), strings.Join(name, ""), false); s > score {
			score = s
		}
	}
	for _, a := range label {
		for _, b := range name {
			if s := matchr.JaroWinkler(a, b, false); s > score {
				score = s
			}
		}
	}
	return score
}
