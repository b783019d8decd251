// Package transcript implements the podcast transcript turn model.
//
// A transcript travels over the wire as flat text with one "Speaker: content"
// line per turn. While a session is being edited the ordered list of [Turn]
// values is the source of truth; [Parse] converts backend text into turns and
// [Serialize] produces the text again when the transcript is saved.
//
// The [Editor] owns the list during a session and provides the ordered-list
// operations the operator uses (update, insert, delete, move) plus the dirty
// flag that tracks unsaved edits. Derived metrics ([WordCount],
// [EstimatedDurationMinutes]) are pure functions of the serialized text.
package transcript

import "strconv"

// TurnID identifies a turn for the lifetime of an [Editor]. IDs are issued in
// increasing order and are never reused, even after the turn is deleted.
// They are never serialized.
type TurnID uint64

// String implements fmt.Stringer.
func (id TurnID) String() string {
	return "t" + strconv.FormatUint(uint64(id), 10)
}

// Turn is one attributed line of dialogue.
type Turn struct {
	// ID is assigned at creation and never changes, including on reorder.
	ID TurnID

	// Speaker is the display name of the character speaking this turn. It
	// should match one of the configured character names.
	Speaker string

	// Content is the spoken text. It may be empty while being edited.
	Content string

	// AudioURL is set once segment audio for this turn has been generated.
	AudioURL string
}

// HasAudio reports whether segment audio is bound to the turn.
func (t Turn) HasAudio() bool { return t.AudioURL != "" }

// IDSource hands out monotonically increasing [TurnID] values. The zero value
// is ready to use and starts at 1. It is not safe for concurrent use; the
// [Editor] guards it with its own lock.
type IDSource struct {
	last TurnID
}

// Next returns a fresh ID.
func (s *IDSource) Next() TurnID {
	s.last++
	return s.last
}
