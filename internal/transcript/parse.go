package transcript

import "strings"

// DropReason names why [Parse] discarded an input line.
type DropReason int

const (
	// DropBlank marks an empty or whitespace-only line.
	DropBlank DropReason = iota + 1

	// DropOrphan marks a line that does not look like "Speaker: content" and
	// has no preceding turn to continue.
	DropOrphan
)

// String returns a short label for the reason.
func (r DropReason) String() string {
	switch r {
	case DropBlank:
		return "blank"
	case DropOrphan:
		return "orphan"
	default:
		return "unknown"
	}
}

// DroppedLine records a line that did not contribute to any turn.
type DroppedLine struct {
	// Line is the 1-based line number in the input.
	Line int

	// Text is the raw line without its line terminator.
	Text string

	Reason DropReason
}

// ParseResult is the outcome of [Parse].
type ParseResult struct {
	// Turns are the parsed turns in order of first appearance.
	Turns []Turn

	// Dropped lists every line that was discarded, in input order.
	Dropped []DroppedLine

	// Merged counts continuation lines appended to a preceding turn.
	Merged int
}

// Parse splits text into turns. It never fails: lines that do not start a
// turn are either merged into the previous turn or recorded in
// [ParseResult.Dropped].
//
// Fresh IDs are taken from ids. A nil ids uses a private source starting at 1.
func Parse(text string, ids *IDSource) ParseResult {
	if ids == nil {
		ids = &IDSource{}
	}
	var res ParseResult
	if text == "" {
		return res
	}

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSuffix(raw, "\r")

		if speaker, content, ok := splitTurnLine(line); ok {
			res.Turns = append(res.Turns, Turn{
				ID:      ids.Next(),
				Speaker: speaker,
				Content: content,
			})
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			res.Dropped = append(res.Dropped, DroppedLine{Line: i + 1, Text: line, Reason: DropBlank})
		case len(res.Turns) == 0:
			res.Dropped = append(res.Dropped, DroppedLine{Line: i + 1, Text: line, Reason: DropOrphan})
		default:
			last := &res.Turns[len(res.Turns)-1]
			if last.Content == "" {
				last.Content = trimmed
			} else {
				last.Content += " " + trimmed
			}
			res.Merged++
		}
	}
	return res
}

// splitTurnLine matches "label: content" on the first colon. The label must
// be non-empty and at least one character must follow the colon; the content
// may trim to empty, which is how [Serialize] writes a freshly inserted turn.
func splitTurnLine(line string) (speaker, content string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 || idx+1 >= len(line) {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}
