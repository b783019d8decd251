package transcript

import "strings"

// Serialize renders turns as one "speaker: content" line per turn joined by
// "\n". Content is written verbatim: an embedded newline or colon is not
// escaped, so such content will not survive a round trip through [Parse].
// Use [UnsafeTurns] to detect that case.
func Serialize(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Speaker)
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}

// UnsafeTurns returns the indices of turns whose content contains a line
// break and would therefore be split into extra turns on the next parse.
func UnsafeTurns(turns []Turn) []int {
	var idx []int
	for i, t := range turns {
		if strings.ContainsAny(t.Content, "\r\n") {
			idx = append(idx, i)
		}
	}
	return idx
}
