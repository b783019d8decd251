package transcript

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrInvalidFormat means at least one line does not start with a
	// configured speaker name followed by a colon.
	ErrInvalidFormat = errors.New("transcript: invalid line format")

	// ErrMissingSpeakers means a configured character never speaks.
	ErrMissingSpeakers = errors.New("transcript: speakers missing")

	// ErrUnbalanced means the busiest speaker has more than twice as many
	// lines as the quietest one.
	ErrUnbalanced = errors.New("transcript: speaker participation is too unbalanced")
)

// Validate checks text against the configured characters. Blank lines are
// ignored. All failures are reported as one joined error; use errors.Is with
// [ErrInvalidFormat], [ErrMissingSpeakers] or [ErrUnbalanced] to inspect it.
func Validate(text string, characters []string) error {
	if len(characters) == 0 {
		return nil
	}

	var lines []string
	for l := range strings.SplitSeq(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	var errs []error

	var invalid []string
	for _, l := range lines {
		if speakerOf(l, characters) == "" {
			invalid = append(invalid, l)
		}
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("%w: each line must start with a speaker name followed by ':'; invalid lines: %q",
			ErrInvalidFormat, invalid[:min(3, len(invalid))]))
	}

	counts := make(map[string]int, len(characters))
	for _, l := range lines {
		if s := speakerOf(l, characters); s != "" {
			counts[s]++
		}
	}

	var missing []string
	for _, c := range characters {
		if counts[c] == 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingSpeakers, strings.Join(missing, ", ")))
	}

	lo, hi := -1, 0
	for _, c := range characters {
		n := counts[c]
		if lo < 0 || n < lo {
			lo = n
		}
		hi = max(hi, n)
	}
	if hi > lo*2 {
		errs = append(errs, ErrUnbalanced)
	}

	return errors.Join(errs...)
}

// speakerOf returns the configured character that line is attributed to, or
// "" when none matches. The longest matching name wins so that "Ann" does not
// shadow "Anna".
func speakerOf(line string, characters []string) string {
	best := ""
	for _, c := range characters {
		if strings.HasPrefix(line, c+":") && len(c) > len(best) {
			best = c
		}
	}
	return best
}

// UnknownSpeakers returns the distinct speaker names in turns that are not
// among characters, in order of first appearance.
func UnknownSpeakers(turns []Turn, characters []string) []string {
	var out []string
	for _, t := range turns {
		if slices.Contains(characters, t.Speaker) || slices.Contains(out, t.Speaker) {
			continue
		}
		out = append(out, t.Speaker)
	}
	return out
}
