// Package wizard implements the podcast creation flow as an explicit state
// machine.
//
// The flow moves through [StepConcept], [StepVoices], [StepTranscript],
// [StepAudio] and [StepDone]. Every change is driven by a typed [Event]
// passed to [Wizard.Fire]; an event that is not valid in the current step,
// or whose payload fails validation, returns a [*TransitionError] and leaves
// the wizard untouched.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/internal/transcript"
	"github.com/MrWong99/podwright/pkg/backend"
	"github.com/MrWong99/podwright/pkg/podcast"
)

// Step is one stage of the wizard.
type Step int

const (
	StepConcept Step = iota
	StepVoices
	StepTranscript
	StepAudio
	StepDone
)

var stepNames = [...]string{"concept", "voices", "transcript", "audio", "done"}

// String returns the lower-case step name.
func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// Steps returns all steps in order.
func Steps() []Step {
	return []Step{StepConcept, StepVoices, StepTranscript, StepAudio, StepDone}
}

// ParseStep converts a step name, case-insensitively, or its 1-based number.
func ParseStep(s string) (Step, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range stepNames {
		if s == name || s == fmt.Sprint(i+1) {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("wizard: unknown step %q", s)
}

// ErrInvalidTransition is wrapped by every [*TransitionError].
var ErrInvalidTransition = errors.New("wizard: invalid transition")

// TransitionError reports a rejected event.
type TransitionError struct {
	From  Step
	Event string
	// Reason is the validation failure, if the event was refused because of
	// its payload. It may be a [podcast.FieldErrors].
	Reason error
}

func (e *TransitionError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("wizard: %s not allowed in %s: %v", e.Event, e.From, e.Reason)
	}
	return fmt.Sprintf("wizard: %s not allowed in %s", e.Event, e.From)
}

// Unwrap exposes both [ErrInvalidTransition] and the reason.
func (e *TransitionError) Unwrap() []error {
	if e.Reason == nil {
		return []error{ErrInvalidTransition}
	}
	return []error{ErrInvalidTransition, e.Reason}
}

// Action names a long-running operation guarded by a busy flag.
type Action string

const (
	ActionGenerateTranscript Action = "generate_transcript"
	ActionSave               Action = "save"
	ActionExtend             Action = "extend"
	ActionGenerateAudio      Action = "generate_audio"
	ActionGenerateSegment    Action = "generate_segment"
)

// Transition describes an accepted event.
type Transition struct {
	From  Step
	To    Step
	Event string
}

// Observer is notified after every accepted event, including events that
// keep the current step. It runs without the wizard's lock held.
type Observer func(Transition)

// LogObserver logs transitions and counts step changes.
func LogObserver(log *slog.Logger, m *observe.Metrics) Observer {
	return func(t Transition) {
		log.Info("wizard event", "event", t.Event, "from", t.From, "to", t.To)
		if t.From != t.To && m != nil {
			m.RecordWizardTransition(context.Background(), t.From.String(), t.To.String())
		}
	}
}

// Option configures a [Wizard].
type Option func(*Wizard)

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(w *Wizard) { w.observers = append(w.observers, o) }
}

// WithEditorOptions sets the options used whenever the wizard creates a
// transcript editor.
func WithEditorOptions(opts ...transcript.EditorOption) Option {
	return func(w *Wizard) { w.editorOpts = opts }
}

// Wizard holds the state of one podcast creation session. It is safe for
// concurrent use.
type Wizard struct {
	observers  []Observer
	editorOpts []transcript.EditorOption

	mu       sync.Mutex
	step     Step
	unlocked Step
	concept  podcast.Concept
	mappings podcast.VoiceMappings
	editor   *transcript.Editor
	progress *backend.Progress
	busy     map[Action]bool
	errMsg   string
}

// New returns a wizard at [StepConcept].
func New(opts ...Option) *Wizard {
	w := &Wizard{busy: make(map[Action]bool)}
	for _, o := range opts {
		o(w)
	}
	w.editor = transcript.NewEditor(w.editorOpts...)
	return w
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Unlocked reports whether s has been reached in this session and may be
// selected.
func (w *Wizard) Unlocked(s Step) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return s >= StepConcept && s <= w.unlocked
}

// Concept returns the submitted concept.
func (w *Wizard) Concept() podcast.Concept {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := w.concept
	c.CharacterNames = slices.Clone(c.CharacterNames)
	return c
}

// Mappings returns a copy of the configured voice mappings.
func (w *Wizard) Mappings() podcast.VoiceMappings {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(podcast.VoiceMappings, len(w.mappings))
	for k, v := range w.mappings {
		out[k] = v
	}
	return out
}

// Editor returns the session's transcript editor. The editor is replaced on
// [Reset] and when a different concept is submitted.
func (w *Wizard) Editor() *transcript.Editor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.editor
}

// SetStaleAudioPolicy changes the policy of the current editor and of every
// editor the wizard creates later.
func (w *Wizard) SetStaleAudioPolicy(p transcript.StaleAudioPolicy) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.editorOpts = append(slices.Clone(w.editorOpts), transcript.WithStaleAudioPolicy(p))
	w.editor.SetStaleAudioPolicy(p)
}

// Progress returns the audio progress recorded by [AudioFinished], or nil.
func (w *Wizard) Progress() *backend.Progress {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.progress
}

// Fire applies ev. On error nothing changes.
func (w *Wizard) Fire(ev Event) error {
	w.mu.Lock()
	from := w.step
	to, err := ev.apply(w)
	if err != nil {
		w.mu.Unlock()
		return &TransitionError{From: from, Event: ev.Name(), Reason: reasonOf(err)}
	}
	w.step = to
	w.unlocked = max(w.unlocked, to)
	observers := w.observers
	w.mu.Unlock()

	t := Transition{From: from, To: to, Event: ev.Name()}
	for _, o := range observers {
		o(t)
	}
	return nil
}

// errWrongStep marks an event fired in a step that does not accept it.
var errWrongStep = errors.New("wrong step")

func reasonOf(err error) error {
	if errors.Is(err, errWrongStep) {
		return nil
	}
	return err
}

// Begin marks action as running. It reports false if it already is.
func (w *Wizard) Begin(a Action) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy[a] {
		return false
	}
	w.busy[a] = true
	return true
}

// End clears the busy flag of action.
func (w *Wizard) End(a Action) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.busy, a)
}

// Busy reports whether action is running.
func (w *Wizard) Busy(a Action) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy[a]
}

// SetError shows err in the error banner. A nil err clears it.
func (w *Wizard) SetError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		w.errMsg = ""
		return
	}
	w.errMsg = err.Error()
}

// Error returns the banner message, or "".
func (w *Wizard) Error() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errMsg
}

// DismissError clears the banner.
func (w *Wizard) DismissError() {
	w.SetError(nil)
}
