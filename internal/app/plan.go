package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/podwright/pkg/podcast"
)

// Plan is a scripted podcast session, usually loaded from a YAML file:
//
//	concept:
//	  topic: The history of espresso
//	  character_names: [Alice, Bob]
//	  expertise_level: mixed
//	  duration_minutes: 10
//	  format_style: interview
//	preset: warm_casual
//	speakers:
//	  Bob:
//	    voice: Charon
//	    preset: authoritative_expert
//	segments: true
type Plan struct {
	Concept podcast.Concept `yaml:"concept"`

	// Preset is the style preset applied to every speaker without one of
	// its own.
	Preset string `yaml:"preset"`

	// Voices is the pool speakers without an explicit voice are assigned
	// from, round-robin. Empty means every backend voice.
	Voices []podcast.VoiceName `yaml:"voices"`

	// Speakers holds per-character overrides keyed by character name.
	Speakers map[string]SpeakerPlan `yaml:"speakers"`

	// ExtendToMinutes asks the backend to extend the generated transcript
	// before it is saved. Zero skips the step.
	ExtendToMinutes int `yaml:"extend_to_minutes"`

	// Segments renders per-turn audio before the full podcast.
	Segments bool `yaml:"segments"`

	// Interactive hands the transcript to the line editor instead of
	// saving it straight away.
	Interactive bool `yaml:"interactive"`
}

// SpeakerPlan overrides the voice setup of one character.
type SpeakerPlan struct {
	Voice  podcast.VoiceName `yaml:"voice"`
	Preset string            `yaml:"preset"`

	// Config replaces the default speaker configuration of Voice.
	Config *podcast.SpeakerConfig `yaml:"config"`
}

// LoadPlan reads and decodes the plan at path.
func LoadPlan(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("app: open plan %q: %w", path, err)
	}
	defer f.Close()

	p, err := DecodePlan(f)
	if err != nil {
		return nil, fmt.Errorf("app: plan %q: %w", path, err)
	}
	return p, nil
}

// DecodePlan decodes a YAML plan, fills defaults and checks the parts the
// wizard does not validate itself. Unknown fields are rejected.
func DecodePlan(r io.Reader) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("plan is empty")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if p.Concept.NumSpeakers == 0 {
		p.Concept.NumSpeakers = len(p.Concept.CharacterNames)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) validate() error {
	var errs []error
	if p.ExtendToMinutes < 0 {
		errs = append(errs, errors.New("extend_to_minutes must not be negative"))
	}
	for _, v := range p.Voices {
		if !slices.Contains(podcast.AllVoices, v) {
			errs = append(errs, fmt.Errorf("voices: unknown voice %q", v))
		}
	}
	for name, sp := range p.Speakers {
		if !slices.Contains(p.Concept.CharacterNames, name) {
			errs = append(errs, fmt.Errorf("speakers: %q is not one of the concept's character_names", name))
		}
		if sp.Voice != "" && !slices.Contains(podcast.AllVoices, sp.Voice) {
			errs = append(errs, fmt.Errorf("speakers.%s.voice: unknown voice %q", name, sp.Voice))
		}
		if sp.Config != nil && sp.Voice == "" {
			errs = append(errs, fmt.Errorf("speakers.%s: config requires a voice", name))
		}
	}
	return errors.Join(errs...)
}
