package wizard

import (
	"errors"
	"slices"
	"strings"

	"github.com/MrWong99/podwright/internal/transcript"
	"github.com/MrWong99/podwright/pkg/backend"
	"github.com/MrWong99/podwright/pkg/podcast"
)

// Event is an input to [Wizard.Fire].
type Event interface {
	// Name is the snake_case event name used in logs and errors.
	Name() string

	// apply validates the event against w, mutates the session and returns
	// the next step. It is called with w.mu held and must not change w when
	// it returns an error.
	apply(w *Wizard) (Step, error)
}

// ConceptSubmitted completes the concept step. Options, if non-nil, restrict
// speaker counts and durations to the backend's choices.
type ConceptSubmitted struct {
	Concept podcast.Concept
	Options *podcast.PodcastConfig
}

func (ConceptSubmitted) Name() string { return "concept_submitted" }

func (e ConceptSubmitted) apply(w *Wizard) (Step, error) {
	if w.step != StepConcept {
		return 0, errWrongStep
	}
	if err := podcast.ValidateConcept(e.Concept, e.Options); err != nil {
		return 0, err
	}
	if !sameConcept(w.concept, e.Concept) {
		// Later steps were built for the old concept.
		w.mappings = nil
		w.editor = transcript.NewEditor(w.editorOpts...)
		w.progress = nil
		w.unlocked = StepConcept
	}
	w.concept = e.Concept
	w.concept.CharacterNames = slices.Clone(e.Concept.CharacterNames)
	w.editor.SetCharacters(w.concept.CharacterNames)
	return StepVoices, nil
}

func sameConcept(a, b podcast.Concept) bool {
	return a.Topic == b.Topic &&
		a.NumSpeakers == b.NumSpeakers &&
		slices.Equal(a.CharacterNames, b.CharacterNames) &&
		a.ExpertiseLevel == b.ExpertiseLevel &&
		a.DurationMinutes == b.DurationMinutes &&
		a.FormatStyle == b.FormatStyle
}

// VoicesConfigured completes the voice step. Every character needs a
// mapping. Options, if non-nil, bound ages and speaking rates.
type VoicesConfigured struct {
	Mappings podcast.VoiceMappings
	Options  *podcast.VoiceConfigurationOptions
}

func (VoicesConfigured) Name() string { return "voices_configured" }

func (e VoicesConfigured) apply(w *Wizard) (Step, error) {
	if w.step != StepVoices {
		return 0, errWrongStep
	}
	if err := podcast.ValidateMappings(e.Mappings, w.concept.CharacterNames, e.Options); err != nil {
		return 0, err
	}
	m := make(podcast.VoiceMappings, len(e.Mappings))
	for k, v := range e.Mappings {
		m[k] = v
	}
	w.mappings = m
	return StepTranscript, nil
}

// TranscriptLoaded replaces the editor contents with freshly generated text.
type TranscriptLoaded struct {
	Text string
}

func (TranscriptLoaded) Name() string { return "transcript_loaded" }

func (e TranscriptLoaded) apply(w *Wizard) (Step, error) {
	if w.step != StepTranscript {
		return 0, errWrongStep
	}
	if strings.TrimSpace(e.Text) == "" {
		return 0, errors.New("transcript is empty")
	}
	w.editor.Load(e.Text)
	w.progress = nil
	return StepTranscript, nil
}

// TranscriptSaved acknowledges a save or extend. Text is the transcript as
// returned by the backend. If it equals the editor's serialization only the
// dirty flag is cleared; otherwise the editor is reloaded from Text, which
// drops bound segment audio.
type TranscriptSaved struct {
	Text string
}

func (TranscriptSaved) Name() string { return "transcript_saved" }

func (e TranscriptSaved) apply(w *Wizard) (Step, error) {
	if w.step != StepTranscript {
		return 0, errWrongStep
	}
	if strings.TrimSpace(e.Text) == "" {
		return 0, errors.New("saved transcript is empty")
	}
	if !w.editor.MarkSaved(e.Text) {
		w.editor.Load(e.Text)
	}
	return StepTranscript, nil
}

// TranscriptApproved moves on to audio generation. The transcript must be
// non-empty and saved.
type TranscriptApproved struct{}

func (TranscriptApproved) Name() string { return "transcript_approved" }

func (TranscriptApproved) apply(w *Wizard) (Step, error) {
	if w.step != StepTranscript {
		return 0, errWrongStep
	}
	if w.editor.Len() == 0 {
		return 0, errors.New("transcript is empty")
	}
	if w.editor.Dirty() {
		return 0, errors.New("transcript has unsaved changes")
	}
	return StepAudio, nil
}

// AudioFinished completes the audio step with the progress of a finished
// job. The job must have completed without an error event.
type AudioFinished struct {
	Progress *backend.Progress
}

func (AudioFinished) Name() string { return "audio_finished" }

func (e AudioFinished) apply(w *Wizard) (Step, error) {
	if w.step != StepAudio {
		return 0, errWrongStep
	}
	switch {
	case e.Progress == nil:
		return 0, errors.New("no audio progress")
	case e.Progress.HasError():
		u, _ := e.Progress.FirstError()
		return 0, errors.New("audio generation failed: " + u.Error)
	case !e.Progress.IsComplete():
		return 0, errors.New("audio generation has not completed")
	}
	w.progress = e.Progress
	return StepDone, nil
}

// StepSelected navigates to a step that has already been reached.
type StepSelected struct {
	Step Step
}

func (StepSelected) Name() string { return "step_selected" }

func (e StepSelected) apply(w *Wizard) (Step, error) {
	if e.Step < StepConcept || e.Step > w.unlocked {
		return 0, errors.New("step " + e.Step.String() + " is locked")
	}
	return e.Step, nil
}

// Reset discards the session and returns to the concept step.
type Reset struct{}

func (Reset) Name() string { return "reset" }

func (Reset) apply(w *Wizard) (Step, error) {
	w.concept = podcast.Concept{}
	w.mappings = nil
	w.editor = transcript.NewEditor(w.editorOpts...)
	w.progress = nil
	w.unlocked = StepConcept
	w.errMsg = ""
	return StepConcept, nil
}
