// Package podcast defines the shared data types exchanged with the podcast
// generation backend: the podcast concept, speaker and voice configuration,
// and the option sets the backend publishes for forms.
//
// JSON field names follow the backend's wire format. Validation helpers live
// in validate.go and are applied before any network call.
package podcast

// ExpertiseLevel is the audience knowledge level a transcript targets.
type ExpertiseLevel string

const (
	ExpertiseBeginner     ExpertiseLevel = "beginner"
	ExpertiseIntermediate ExpertiseLevel = "intermediate"
	ExpertiseExpert       ExpertiseLevel = "expert"
	ExpertiseMixed        ExpertiseLevel = "mixed"
)

// FormatStyle is the conversational format of a podcast.
type FormatStyle string

const (
	FormatCasual       FormatStyle = "casual"
	FormatInterview    FormatStyle = "interview"
	FormatDebate       FormatStyle = "debate"
	FormatEducational  FormatStyle = "educational"
	FormatStorytelling FormatStyle = "storytelling"
)

// Gender of a synthetic speaker.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderNeutral Gender = "neutral"
)

// Accent of a synthetic speaker.
type Accent string

const (
	AccentNeutral    Accent = "neutral"
	AccentBritish    Accent = "british"
	AccentAmerican   Accent = "american"
	AccentAustralian Accent = "australian"
	AccentIndian     Accent = "indian"
)

// VoiceTone is the overall delivery tone of a speaker.
type VoiceTone string

const (
	ToneWarm          VoiceTone = "warm"
	ToneProfessional  VoiceTone = "professional"
	ToneEnergetic     VoiceTone = "energetic"
	ToneCalm          VoiceTone = "calm"
	ToneAuthoritative VoiceTone = "authoritative"
)

// VoiceName identifies one of the backend's synthetic voices.
type VoiceName string

// Voices supported by the backend.
const (
	VoicePuck   VoiceName = "Puck"
	VoiceCharon VoiceName = "Charon"
	VoiceAoede  VoiceName = "Aoede"
	VoiceZephyr VoiceName = "Zephyr"
	VoiceFenrir VoiceName = "Fenrir"
	VoiceLeda   VoiceName = "Leda"
	VoiceOrus   VoiceName = "Orus"
	VoiceKore   VoiceName = "Kore"
)

// AllVoices lists every [VoiceName] in the backend's order.
var AllVoices = []VoiceName{
	VoicePuck, VoiceCharon, VoiceAoede, VoiceZephyr,
	VoiceFenrir, VoiceLeda, VoiceOrus, VoiceKore,
}

// Concept is the podcast concept submitted for transcript generation.
type Concept struct {
	Topic           string         `json:"topic" yaml:"topic" validate:"required,min=1,max=500"`
	NumSpeakers     int            `json:"num_speakers" yaml:"num_speakers" validate:"min=2,max=4"`
	CharacterNames  []string       `json:"character_names" yaml:"character_names" validate:"min=2,max=4,unique,dive,required,max=50"`
	ExpertiseLevel  ExpertiseLevel `json:"expertise_level" yaml:"expertise_level" validate:"oneof=beginner intermediate expert mixed"`
	DurationMinutes int            `json:"duration_minutes" yaml:"duration_minutes" validate:"min=5,max=30"`
	FormatStyle     FormatStyle    `json:"format_style" yaml:"format_style" validate:"oneof=casual interview debate educational storytelling"`
}

// SpeakingRate holds words-per-minute targets for three delivery modes.
type SpeakingRate struct {
	Normal     int `json:"normal" yaml:"normal"`
	Excited    int `json:"excited" yaml:"excited"`
	Analytical int `json:"analytical" yaml:"analytical"`
}

// VoiceCharacteristics are free-form timbre hints understood by the backend.
type VoiceCharacteristics struct {
	PitchRange       string `json:"pitch_range" yaml:"pitch_range"`
	Resonance        string `json:"resonance" yaml:"resonance"`
	Breathiness      string `json:"breathiness" yaml:"breathiness"`
	VocalEnergy      string `json:"vocal_energy" yaml:"vocal_energy"`
	PausePattern     string `json:"pause_pattern" yaml:"pause_pattern"`
	EmphasisPattern  string `json:"emphasis_pattern" yaml:"emphasis_pattern"`
	EmotionalRange   string `json:"emotional_range" yaml:"emotional_range"`
	BreathingPattern string `json:"breathing_pattern" yaml:"breathing_pattern"`
}

// SpeechPatterns are prosody hints understood by the backend.
type SpeechPatterns struct {
	Phrasing     string `json:"phrasing" yaml:"phrasing"`
	Rhythm       string `json:"rhythm" yaml:"rhythm"`
	Articulation string `json:"articulation" yaml:"articulation"`
	Modulation   string `json:"modulation" yaml:"modulation"`
}

// SpeakerConfig describes the persona and voice parameters of one speaker.
type SpeakerConfig struct {
	Name                 string               `json:"name" yaml:"name" validate:"required,min=1,max=50"`
	Age                  int                  `json:"age" yaml:"age" validate:"min=20,max=70"`
	Gender               Gender               `json:"gender" yaml:"gender" validate:"oneof=male female neutral"`
	Persona              string               `json:"persona" yaml:"persona" validate:"min=5,max=100"`
	Background           string               `json:"background" yaml:"background" validate:"min=5,max=200"`
	VoiceTone            VoiceTone            `json:"voice_tone" yaml:"voice_tone" validate:"oneof=warm professional energetic calm authoritative"`
	Accent               Accent               `json:"accent" yaml:"accent" validate:"oneof=neutral british american australian indian"`
	SpeakingRate         SpeakingRate         `json:"speaking_rate" yaml:"speaking_rate"`
	VoiceCharacteristics VoiceCharacteristics `json:"voice_characteristics" yaml:"voice_characteristics"`
	SpeechPatterns       SpeechPatterns       `json:"speech_patterns" yaml:"speech_patterns"`
	CustomPersona        string               `json:"custom_persona,omitempty" yaml:"custom_persona,omitempty"`
	CustomBackground     string               `json:"custom_background,omitempty" yaml:"custom_background,omitempty"`
	Voice                string               `json:"voice,omitempty" yaml:"voice,omitempty"`
}

// VoiceConfig binds a backend voice to a speaker configuration.
type VoiceConfig struct {
	Voice  VoiceName     `json:"voice" yaml:"voice"`
	Config SpeakerConfig `json:"config" yaml:"config"`
}

// VoiceMappings maps speaker names to their voice configuration.
type VoiceMappings map[string]VoiceConfig

// PodcastConfig is the option set published at GET /api/config.
type PodcastConfig struct {
	DurationOptions []int            `json:"duration_options"`
	SpeakerOptions  []int            `json:"speaker_options"`
	ExpertiseLevels []ExpertiseLevel `json:"expertise_levels"`
	FormatStyles    []FormatStyle    `json:"format_styles"`
}

// DefaultPodcastConfig mirrors the backend defaults and is used until the
// real option set has been fetched.
func DefaultPodcastConfig() PodcastConfig {
	return PodcastConfig{
		DurationOptions: []int{5, 10, 15, 20, 30},
		SpeakerOptions:  []int{2, 3, 4},
		ExpertiseLevels: []ExpertiseLevel{ExpertiseBeginner, ExpertiseIntermediate, ExpertiseExpert, ExpertiseMixed},
		FormatStyles:    []FormatStyle{FormatCasual, FormatInterview, FormatDebate, FormatEducational, FormatStorytelling},
	}
}

// Range is an inclusive integer interval. The backend encodes it as a
// two-element JSON array.
type Range [2]int

// Contains reports whether v lies within r.
func (r Range) Contains(v int) bool { return v >= r[0] && v <= r[1] }

// VoiceConfigurationOptions is the option set published at
// GET /api/config/voice.
type VoiceConfigurationOptions struct {
	AgeRange                    Range               `json:"age_range"`
	Genders                     []Gender            `json:"genders"`
	Accents                     []Accent            `json:"accents"`
	VoiceTones                  []VoiceTone         `json:"voice_tones"`
	SpeakingRateRanges          map[string]Range    `json:"speaking_rate_ranges"`
	VoiceCharacteristicsOptions map[string][]string `json:"voice_characteristics_options"`
	SpeechPatternsOptions       map[string][]string `json:"speech_patterns_options"`
}

// DefaultVoiceOptions mirrors the backend defaults.
func DefaultVoiceOptions() VoiceConfigurationOptions {
	return VoiceConfigurationOptions{
		AgeRange:   Range{20, 70},
		Genders:    []Gender{GenderMale, GenderFemale, GenderNeutral},
		Accents:    []Accent{AccentNeutral, AccentBritish, AccentAmerican, AccentAustralian, AccentIndian},
		VoiceTones: []VoiceTone{ToneWarm, ToneProfessional, ToneEnergetic, ToneCalm, ToneAuthoritative},
		SpeakingRateRanges: map[string]Range{
			"normal":     {100, 200},
			"excited":    {120, 220},
			"analytical": {80, 180},
		},
		VoiceCharacteristicsOptions: map[string][]string{
			"pitch_range":       {"narrow", "medium", "wide"},
			"resonance":         {"chest", "head", "mixed"},
			"breathiness":       {"low", "medium", "high"},
			"vocal_energy":      {"low", "moderate", "high"},
			"pause_pattern":     {"natural", "dramatic", "minimal"},
			"emphasis_pattern":  {"balanced", "strong", "subtle"},
			"emotional_range":   {"neutral", "expressive", "highly-expressive"},
			"breathing_pattern": {"relaxed", "controlled", "dynamic"},
		},
		SpeechPatternsOptions: map[string][]string{
			"phrasing":     {"natural", "structured", "flowing"},
			"rhythm":       {"regular", "varied", "dynamic"},
			"articulation": {"clear", "precise", "relaxed"},
			"modulation":   {"subtle", "moderate", "dramatic"},
		},
	}
}

// VoiceMetadata is display information for a voice.
type VoiceMetadata struct {
	Icon        string   `json:"icon"`
	Color       string   `json:"color"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
