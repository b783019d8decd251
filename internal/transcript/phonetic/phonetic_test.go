package phonetic_test

import (
	"testing"

	"github.com/MrWong99/podwright/internal/transcript"
	"github.com/MrWong99/podwright/internal/transcript/phonetic"
)

func TestMatcher_Misspelling(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("Jon", []string{"Sarah", "John"})
	if !matched {
		t.Fatalf("Match(%q): matched=false, want true", "Jon")
	}
	if corrected != "John" {
		t.Errorf("Match(%q): corrected=%q, want %q", "Jon", corrected, "John")
	}
	if conf < 0.7 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.7", "Jon", conf)
	}
}

func TestMatcher_TitleAndSurname(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, _, matched := m.Match("Dr. Sarah", []string{"Tom", "Sarah Chen"})
	if !matched {
		t.Fatalf("Match(%q): matched=false, want true", "Dr. Sarah")
	}
	if corrected != "Sarah Chen" {
		t.Errorf("Match(%q): corrected=%q, want %q", "Dr. Sarah", corrected, "Sarah Chen")
	}
}

func TestMatcher_CaseInsensitive(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("SARAH", []string{"John", "Sarah"})
	if !matched {
		t.Fatalf("Match(%q): matched=false, want true", "SARAH")
	}
	if corrected != "Sarah" {
		t.Errorf("corrected=%q, want %q", corrected, "Sarah")
	}
	if conf < 0.99 {
		t.Errorf("confidence=%f, want ~1 for an exact match", conf)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("Narrator", []string{"Alice", "Bob"})
	if matched {
		t.Fatalf("Match(%q): matched=true (%q), want false", "Narrator", corrected)
	}
	if corrected != "Narrator" {
		t.Errorf("corrected=%q, want original label", corrected)
	}
	if conf != 0 {
		t.Errorf("confidence=%f, want 0", conf)
	}
}

func TestMatcher_AmbiguousLabel(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if got, _, matched := m.Match("Ann", []string{"Anna", "Anne"}); matched {
		t.Errorf("Match(%q) picked %q, want no match for a tie", "Ann", got)
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.99),
		phonetic.WithFuzzyThreshold(0.99),
	)
	if _, _, matched := m.Match("Jon", []string{"John"}); matched {
		t.Error("Match with threshold 0.99 should reject near matches")
	}
}

func TestMatcher_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	tests := []struct {
		name  string
		label string
		names []string
	}{
		{name: "no names", label: "John", names: nil},
		{name: "empty label", label: "", names: []string{"John"}},
		{name: "punctuation only", label: "...", names: []string{"John"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			corrected, conf, matched := m.Match(tc.label, tc.names)
			if matched || conf != 0 || corrected != tc.label {
				t.Errorf("Match(%q, %v) = (%q, %f, %v), want (%q, 0, false)",
					tc.label, tc.names, corrected, conf, matched, tc.label)
			}
		})
	}
}

func TestResolveSpeakers_WithMatcher(t *testing.T) {
	t.Parallel()

	e := transcript.NewEditor(transcript.WithCharacters("John", "Sarah"))
	e.Load("Jon: hello\nSarah: hi\nJon: how are you\nNarrator: meanwhile")

	corrections := transcript.ResolveSpeakers(e, phonetic.New())
	if len(corrections) != 1 {
		t.Fatalf("got %d corrections, want 1: %+v", len(corrections), corrections)
	}
	c := corrections[0]
	if c.Original != "Jon" || c.Corrected != "John" || c.Turns != 2 {
		t.Errorf("correction = %+v, want Jon→John on 2 turns", c)
	}

	turns := e.Turns()
	want := []string{"John", "Sarah", "John", "Narrator"}
	for i, w := range want {
		if turns[i].Speaker != w {
			t.Errorf("turn %d speaker = %q, want %q", i, turns[i].Speaker, w)
		}
	}
	if !e.Dirty() {
		t.Error("renaming speakers should mark the transcript dirty")
	}
}
