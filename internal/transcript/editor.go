package transcript

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrIndexOutOfRange is returned when an editor operation addresses a
// position that does not exist in the current turn list.
var ErrIndexOutOfRange = errors.New("transcript: index out of range")

// ErrTurnNotFound is returned by ID-addressed operations when no turn with
// the given ID exists (usually because it was deleted).
var ErrTurnNotFound = errors.New("transcript: turn not found")

// ErrTurnChanged is returned by [Editor.SetAudioURLIf] when the turn no
// longer has the speaker and content the audio was rendered from.
var ErrTurnChanged = errors.New("transcript: turn changed")

// Direction selects the neighbour a turn is swapped with by [Editor.Move].
type Direction int

const (
	Up Direction = iota
	Down
)

// StaleAudioPolicy decides what happens to a turn's audio when its content
// or speaker is edited.
type StaleAudioPolicy string

const (
	// KeepStaleAudio leaves AudioURL untouched on edit. The audio may no
	// longer match the text.
	KeepStaleAudio StaleAudioPolicy = "keep"

	// ClearStaleAudio drops AudioURL whenever content or speaker changes.
	ClearStaleAudio StaleAudioPolicy = "clear"
)

// IsValid reports whether p is a recognised policy.
func (p StaleAudioPolicy) IsValid() bool {
	return p == KeepStaleAudio || p == ClearStaleAudio
}

// TurnPatch carries the fields [Editor.Update] merges into a turn. Nil fields
// are left unchanged.
type TurnPatch struct {
	Speaker  *string
	Content  *string
	AudioURL *string
}

// EditorOption configures an [Editor].
type EditorOption func(*Editor)

// WithStaleAudioPolicy sets the edit policy for bound audio. Default:
// [KeepStaleAudio].
func WithStaleAudioPolicy(p StaleAudioPolicy) EditorOption {
	return func(e *Editor) {
		if p.IsValid() {
			e.policy = p
		}
	}
}

// WithCharacters sets the configured character names.
func WithCharacters(names ...string) EditorOption {
	return func(e *Editor) {
		e.characters = slices.Clone(names)
	}
}

// Editor owns the ordered turn list of one editing session.
//
// All methods are safe for concurrent use. Indices refer to the list as it is
// at the time of the call; callers that hold on to a turn across calls should
// use its [TurnID].
type Editor struct {
	mu         sync.Mutex
	turns      []Turn
	ids        IDSource
	dirty      bool
	policy     StaleAudioPolicy
	characters []string
}

// NewEditor returns an empty editor.
func NewEditor(opts ...EditorOption) *Editor {
	e := &Editor{policy: KeepStaleAudio}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Load replaces the turn list with the turns parsed from text and clears the
// dirty flag. IDs continue from the editor's source, so IDs from a previous
// load are never handed out again.
func (e *Editor) Load(text string) ParseResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := Parse(text, &e.ids)
	e.turns = slices.Clone(res.Turns)
	e.dirty = false
	return res
}

// Turns returns a copy of the current turn list.
func (e *Editor) Turns() []Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.turns)
}

// Turn returns the turn at index.
func (e *Editor) Turn(index int) (Turn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkIndex(index); err != nil {
		return Turn{}, err
	}
	return e.turns[index], nil
}

// Len returns the number of turns.
func (e *Editor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.turns)
}

// Text serializes the current turn list.
func (e *Editor) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Serialize(e.turns)
}

// Stats computes metrics for the current turn list.
func (e *Editor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ComputeStats(e.turns)
}

// Dirty reports whether there are edits that have not been acknowledged by a
// save.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// MarkSaved clears the dirty flag if saved equals the current serialization.
// Edits made while the save was in flight keep the transcript dirty. It
// reports whether the flag was cleared.
func (e *Editor) MarkSaved(saved string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if Serialize(e.turns) != saved {
		return false
	}
	e.dirty = false
	return true
}

// Characters returns the configured character names.
func (e *Editor) Characters() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.characters)
}

// SetCharacters replaces the configured character names.
func (e *Editor) SetCharacters(names []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.characters = slices.Clone(names)
}

// SetStaleAudioPolicy changes the edit policy for bound audio. Invalid values
// are ignored.
func (e *Editor) SetStaleAudioPolicy(p StaleAudioPolicy) {
	if !p.IsValid() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = p
}

// Update merges patch into the turn at index. The turn's ID never changes.
func (e *Editor) Update(index int, patch TurnPatch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkIndex(index); err != nil {
		return err
	}

	t := &e.turns[index]
	textChanged := false
	if patch.Speaker != nil && *patch.Speaker != t.Speaker {
		t.Speaker = *patch.Speaker
		textChanged = true
	}
	if patch.Content != nil && *patch.Content != t.Content {
		t.Content = *patch.Content
		textChanged = true
	}
	switch {
	case patch.AudioURL != nil:
		t.AudioURL = *patch.AudioURL
	case textChanged && e.policy == ClearStaleAudio:
		t.AudioURL = ""
	}
	e.dirty = true
	return nil
}

// Insert creates an empty turn directly after afterIndex; -1 inserts at the
// head. The speaker is the first element of speaker when given, otherwise the
// first configured character, otherwise "".
func (e *Editor) Insert(afterIndex int, speaker ...string) (Turn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if afterIndex < -1 || afterIndex >= len(e.turns) {
		return Turn{}, fmt.Errorf("%w: insert after %d in %d turns", ErrIndexOutOfRange, afterIndex, len(e.turns))
	}

	name := ""
	switch {
	case len(speaker) > 0:
		name = speaker[0]
	case len(e.characters) > 0:
		name = e.characters[0]
	}
	t := Turn{ID: e.ids.Next(), Speaker: name}
	e.turns = slices.Insert(e.turns, afterIndex+1, t)
	e.dirty = true
	return t, nil
}

// Delete removes the turn at index. Later turns shift up by one.
func (e *Editor) Delete(index int) (Turn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkIndex(index); err != nil {
		return Turn{}, err
	}
	t := e.turns[index]
	e.turns = slices.Delete(e.turns, index, index+1)
	e.dirty = true
	return t, nil
}

// Move swaps the turn at index with its neighbour in dir. Moving the first
// turn up or the last turn down is a no-op and reports false.
func (e *Editor) Move(index int, dir Direction) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkIndex(index); err != nil {
		return false, err
	}

	target := index - 1
	if dir == Down {
		target = index + 1
	}
	if target < 0 || target >= len(e.turns) {
		return false, nil
	}
	e.turns[index], e.turns[target] = e.turns[target], e.turns[index]
	e.dirty = true
	return true, nil
}

// IndexOf returns the current position of the turn with id, or -1.
func (e *Editor) IndexOf(id TurnID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexOf(id)
}

// SetAudioURL binds segment audio to the turn with id. Binding audio does not
// mark the transcript dirty because audio is not part of the text.
func (e *Editor) SetAudioURL(id TurnID, url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTurnNotFound, id)
	}
	e.turns[i].AudioURL = url
	return nil
}

// SetAudioURLIf binds url to the turn with id only if the turn still has the
// given speaker and content. The check and the update happen under one lock.
func (e *Editor) SetAudioURLIf(id TurnID, speaker, content, url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrTurnNotFound, id)
	}
	t := &e.turns[i]
	if t.Speaker != speaker || t.Content != content {
		return fmt.Errorf("%w: %s", ErrTurnChanged, id)
	}
	t.AudioURL = url
	return nil
}

// ReplaceSpeakers renames speakers in place according to renames (old → new).
// It reports how many turns changed.
func (e *Editor) ReplaceSpeakers(renames map[string]string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := range e.turns {
		if to, ok := renames[e.turns[i].Speaker]; ok && to != e.turns[i].Speaker {
			e.turns[i].Speaker = to
			n++
		}
	}
	if n > 0 {
		e.dirty = true
	}
	return n
}

func (e *Editor) indexOf(id TurnID) int {
	return slices.IndexFunc(e.turns, func(t Turn) bool { return t.ID == id })
}

func (e *Editor) checkIndex(index int) error {
	if index < 0 || index >= len(e.turns) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(e.turns))
	}
	return nil
}
