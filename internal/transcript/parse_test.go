package transcript_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/podwright/internal/transcript"
)

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	res := transcript.Parse("", nil)
	if len(res.Turns) != 0 {
		t.Errorf("Parse(\"\") returned %d turns, want 0", len(res.Turns))
	}
	if len(res.Dropped) != 0 {
		t.Errorf("Parse(\"\") dropped %d lines, want 0", len(res.Dropped))
	}
	if got := transcript.Serialize(nil); got != "" {
		t.Errorf("Serialize(nil) = %q, want empty", got)
	}
}

func TestParse_Lines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		speakers []string
		contents []string
	}{
		{
			name:     "two turns",
			input:    "Alice: hi\nBob: hello",
			speakers: []string{"Alice", "Bob"},
			contents: []string{"hi", "hello"},
		},
		{
			name:     "continuation merges with a space",
			input:    "Alice: hi\nthere",
			speakers: []string{"Alice"},
			contents: []string{"hi there"},
		},
		{
			name:     "colon in content splits on first colon only",
			input:    "Alice: the ratio is 3:1",
			speakers: []string{"Alice"},
			contents: []string{"the ratio is 3:1"},
		},
		{
			name:     "whitespace trimmed around label and content",
			input:    "  Alice  :   spaced out   ",
			speakers: []string{"Alice"},
			contents: []string{"spaced out"},
		},
		{
			name:     "label without content is a continuation",
			input:    "Alice: first\nNote:",
			speakers: []string{"Alice"},
			contents: []string{"first Note:"},
		},
		{
			name:     "whitespace after the colon is an empty turn",
			input:    "Alice: hi\nBob: ",
			speakers: []string{"Alice", "Bob"},
			contents: []string{"hi", ""},
		},
		{
			name:     "continuation fills an empty turn without a separator",
			input:    "Alice: \nlater on",
			speakers: []string{"Alice"},
			contents: []string{"later on"},
		},
		{
			name:     "crlf line endings",
			input:    "Alice: hi\r\nBob: yo\r\n",
			speakers: []string{"Alice", "Bob"},
			contents: []string{"hi", "yo"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := transcript.Parse(tc.input, nil)
			if len(res.Turns) != len(tc.speakers) {
				t.Fatalf("got %d turns, want %d: %+v", len(res.Turns), len(tc.speakers), res.Turns)
			}
			for i, turn := range res.Turns {
				if turn.Speaker != tc.speakers[i] {
					t.Errorf("turn %d speaker = %q, want %q", i, turn.Speaker, tc.speakers[i])
				}
				if turn.Content != tc.contents[i] {
					t.Errorf("turn %d content = %q, want %q", i, turn.Content, tc.contents[i])
				}
				if turn.AudioURL != "" {
					t.Errorf("turn %d has audio %q, want none", i, turn.AudioURL)
				}
			}
		})
	}
}

func TestParse_DropOutcomes(t *testing.T) {
	t.Parallel()

	res := transcript.Parse("random text\nBob: hello\n   \nBob: again", nil)
	if len(res.Turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(res.Turns))
	}
	if res.Turns[0].Speaker != "Bob" {
		t.Errorf("first turn speaker = %q, want Bob", res.Turns[0].Speaker)
	}
	if len(res.Dropped) != 2 {
		t.Fatalf("got %d dropped lines, want 2: %+v", len(res.Dropped), res.Dropped)
	}

	orphan, blank := res.Dropped[0], res.Dropped[1]
	if orphan.Reason != transcript.DropOrphan || orphan.Line != 1 || orphan.Text != "random text" {
		t.Errorf("dropped[0] = %+v, want orphan line 1", orphan)
	}
	if blank.Reason != transcript.DropBlank || blank.Line != 3 {
		t.Errorf("dropped[1] = %+v, want blank line 3", blank)
	}
	if res.Merged != 0 {
		t.Errorf("Merged = %d, want 0", res.Merged)
	}
}

func TestParse_BlankLineNotAppended(t *testing.T) {
	t.Parallel()

	res := transcript.Parse("Alice: hi\n\t\nmore", nil)
	if len(res.Turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(res.Turns))
	}
	if res.Turns[0].Content != "hi more" {
		t.Errorf("content = %q, want %q", res.Turns[0].Content, "hi more")
	}
	if res.Merged != 1 {
		t.Errorf("Merged = %d, want 1", res.Merged)
	}
}

func TestParse_IDsUniqueAndIncreasing(t *testing.T) {
	t.Parallel()

	ids := &transcript.IDSource{}
	first := transcript.Parse("A: 1\nB: 2\nA: 3", ids)
	second := transcript.Parse("A: 4", ids)

	seen := map[transcript.TurnID]bool{}
	var last transcript.TurnID
	for _, turn := range append(first.Turns, second.Turns...) {
		if seen[turn.ID] {
			t.Fatalf("duplicate id %v", turn.ID)
		}
		if turn.ID <= last {
			t.Errorf("id %v not greater than previous %v", turn.ID, last)
		}
		seen[turn.ID] = true
		last = turn.ID
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Alice: hi",
		"Alice: hi\nBob: hello there\nAlice: see: colons work",
		"Host: Welcome to the show.\nGuest: Thanks, glad to be here.",
		"Alice: hi\nBob: ",
		"Alice: \nBob: yo",
	}
	for _, in := range inputs {
		got := transcript.Serialize(transcript.Parse(in, nil).Turns)
		if got != in {
			t.Errorf("Serialize(Parse(%q)) = %q", in, got)
		}
	}
}

func TestSerialize_IdempotentOnNormalizedText(t *testing.T) {
	t.Parallel()

	messy := "intro\nAlice:   hi\nthere\n\nBob: yo"
	once := transcript.Serialize(transcript.Parse(messy, nil).Turns)
	twice := transcript.Serialize(transcript.Parse(once, nil).Turns)
	if once != twice {
		t.Errorf("not idempotent:\nonce  %q\ntwice %q", once, twice)
	}
	if once != "Alice: hi there\nBob: yo" {
		t.Errorf("normalized = %q", once)
	}
}

func TestUnsafeTurns(t *testing.T) {
	t.Parallel()

	turns := []transcript.Turn{
		{Speaker: "A", Content: "fine"},
		{Speaker: "B", Content: "line one\nB: injected"},
	}
	idx := transcript.UnsafeTurns(turns)
	if len(idx) != 1 || idx[0] != 1 {
		t.Errorf("UnsafeTurns = %v, want [1]", idx)
	}

	// The unescaped newline becomes an extra turn on the next parse.
	reparsed := transcript.Parse(transcript.Serialize(turns), nil)
	if len(reparsed.Turns) != 3 {
		t.Errorf("reparse produced %d turns, want 3", len(reparsed.Turns))
	}
	if !strings.Contains(reparsed.Turns[1].Content, "line one") {
		t.Errorf("unexpected reparse %+v", reparsed.Turns)
	}
}
