package podcast

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors maps a wire field name (for example "topic" or
// "speaking_rate.normal") to a human-readable message. It implements error
// so validation failures can travel through ordinary error returns and still
// be rendered inline by the caller.
type FieldErrors map[string]string

// Error renders all field messages sorted by field name.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + fe[f]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsFieldErrors extracts [FieldErrors] from err, if present.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateConcept checks c before it is sent for transcript generation.
// When opts is non-nil the speaker count and duration must also be among the
// server-supplied choices. It returns nil or a [FieldErrors].
func ValidateConcept(c Concept, opts *PodcastConfig) error {
	fe := FieldErrors{}
	collect(fe, validate.Struct(c))

	if strings.TrimSpace(c.Topic) == "" {
		fe["topic"] = "Topic is required"
	}

	if _, ok := fe["character_names"]; !ok {
		switch {
		case len(c.CharacterNames) != c.NumSpeakers:
			fe["character_names"] = fmt.Sprintf("Expected %d character names, got %d", c.NumSpeakers, len(c.CharacterNames))
		case slices.ContainsFunc(c.CharacterNames, func(n string) bool { return strings.TrimSpace(n) == "" }):
			fe["character_names"] = "All character names are required"
		case hasDuplicateFold(c.CharacterNames):
			fe["character_names"] = "Character names must be unique"
		}
	}
	// Per-element messages are folded into the slice field.
	for f, msg := range fe {
		if strings.HasPrefix(f, "character_names[") {
			delete(fe, f)
			if _, ok := fe["character_names"]; !ok {
				fe["character_names"] = msg
			}
		}
	}

	if opts != nil {
		if len(opts.SpeakerOptions) > 0 && !slices.Contains(opts.SpeakerOptions, c.NumSpeakers) {
			if _, ok := fe["num_speakers"]; !ok {
				fe["num_speakers"] = fmt.Sprintf("Number of speakers must be one of %v", opts.SpeakerOptions)
			}
		}
		if len(opts.DurationOptions) > 0 && !slices.Contains(opts.DurationOptions, c.DurationMinutes) {
			if _, ok := fe["duration_minutes"]; !ok {
				fe["duration_minutes"] = fmt.Sprintf("Duration must be one of %v minutes", opts.DurationOptions)
			}
		}
	}

	if len(fe) == 0 {
		return nil
	}
	return fe
}

// ValidateSpeaker checks a speaker configuration. When opts is non-nil the
// age and speaking rates must fall within the server-supplied ranges.
func ValidateSpeaker(cfg SpeakerConfig, opts *VoiceConfigurationOptions) error {
	fe := FieldErrors{}
	collect(fe, validate.Struct(cfg))

	if opts != nil {
		if opts.AgeRange != (Range{}) && !opts.AgeRange.Contains(cfg.Age) {
			fe["age"] = fmt.Sprintf("Age must be between %d and %d", opts.AgeRange[0], opts.AgeRange[1])
		}
		rates := []struct {
			key, label string
			value      int
		}{
			{"normal", "Normal", cfg.SpeakingRate.Normal},
			{"excited", "Excited", cfg.SpeakingRate.Excited},
			{"analytical", "Analytical", cfg.SpeakingRate.Analytical},
		}
		for _, r := range rates {
			rng, ok := opts.SpeakingRateRanges[r.key]
			if ok && !rng.Contains(r.value) {
				fe["speaking_rate."+r.key] = fmt.Sprintf("%s rate must be between %d and %d", r.label, rng[0], rng[1])
			}
		}
	}

	if len(fe) == 0 {
		return nil
	}
	return fe
}

// ValidateMappings validates every speaker configuration in m and checks
// that each name in characters has a mapping. Keys of the returned
// [FieldErrors] are prefixed with the speaker name.
func ValidateMappings(m VoiceMappings, characters []string, opts *VoiceConfigurationOptions) error {
	fe := FieldErrors{}
	for _, name := range characters {
		if _, ok := m[name]; !ok {
			fe[name] = "No voice assigned"
		}
	}
	for name, vc := range m {
		if vc.Voice == "" {
			fe[name+".voice"] = "Voice is required"
		}
		if err := ValidateSpeaker(vc.Config, opts); err != nil {
			sub, _ := AsFieldErrors(err)
			for f, msg := range sub {
				fe[name+"."+f] = msg
			}
		}
	}
	if len(fe) == 0 {
		return nil
	}
	return fe
}

func collect(fe FieldErrors, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return
	}
	for _, ve := range verrs {
		field := fieldPath(ve)
		if _, ok := fe[field]; ok {
			continue
		}
		fe[field] = message(ve)
	}
}

// fieldPath drops the root struct name from the namespace so nested fields
// read "speaking_rate.normal".
func fieldPath(ve validator.FieldError) string {
	ns := ve.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ve.Field()
}

func message(ve validator.FieldError) string {
	label := humanize(ve.Field())
	switch ve.Tag() {
	case "required":
		return label + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.ReplaceAll(ve.Param(), " ", ", "))
	case "unique":
		return label + " must be unique"
	case "min", "max":
		bound := "at least"
		if ve.Tag() == "max" {
			bound = "at most"
		}
		switch ve.Kind() {
		case reflect.String:
			return fmt.Sprintf("%s must be %s %s characters", label, bound, ve.Param())
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("%s must have %s %s entries", label, bound, ve.Param())
		default:
			return fmt.Sprintf("%s must be %s %s", label, bound, ve.Param())
		}
	default:
		return fmt.Sprintf("%s is invalid (%s)", label, ve.Tag())
	}
}

func humanize(field string) string {
	field, _, _ = strings.Cut(field, "[")
	s := strings.ReplaceAll(field, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func hasDuplicateFold(names []string) bool {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		k := strings.ToLower(strings.TrimSpace(n))
		if seen[k] {
			return true
		}
		seen[k] = true
	}
	return false
}
