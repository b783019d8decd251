package podcast

import "maps"

// StylePreset is a partial [SpeakerConfig] overlay published by the backend
// at GET /api/config/voice/style-presets. Nil fields leave the target
// unchanged.
type StylePreset struct {
	VoiceTone            *VoiceTone            `json:"voice_tone,omitempty"`
	SpeakingRate         *SpeakingRate         `json:"speaking_rate,omitempty"`
	VoiceCharacteristics *VoiceCharacteristics `json:"voice_characteristics,omitempty"`
	SpeechPatterns       *SpeechPatterns       `json:"speech_patterns,omitempty"`
}

// StylePresets maps a preset name such as "warm_casual" to its overlay.
type StylePresets map[string]StylePreset

// FallbackPresetName is the single preset available when the backend's
// preset list cannot be fetched.
const FallbackPresetName = "neutral_professional"

// FallbackStylePresets returns the built-in preset set used when the preset
// fetch fails.
func FallbackStylePresets() StylePresets {
	tone := ToneProfessional
	return StylePresets{
		FallbackPresetName: {
			VoiceTone:    &tone,
			SpeakingRate: &SpeakingRate{Normal: 150, Excited: 160, Analytical: 140},
		},
	}
}

// DefaultSpeakerConfig returns the configuration assigned to a speaker that
// has been bound to voice but not customised.
func DefaultSpeakerConfig(voice VoiceName) SpeakerConfig {
	return SpeakerConfig{
		Name:       "Speaker using " + string(voice),
		Age:        35,
		Gender:     GenderNeutral,
		Persona:    "Conversational Speaker",
		Background: "Experienced in the topic",
		VoiceTone:  ToneProfessional,
		Accent:     AccentNeutral,
		SpeakingRate: SpeakingRate{
			Normal:     150,
			Excited:    170,
			Analytical: 130,
		},
		VoiceCharacteristics: VoiceCharacteristics{
			PitchRange:       "medium",
			Resonance:        "mixed",
			Breathiness:      "low",
			VocalEnergy:      "moderate",
			PausePattern:     "natural",
			EmphasisPattern:  "balanced",
			EmotionalRange:   "neutral",
			BreathingPattern: "relaxed",
		},
		SpeechPatterns: SpeechPatterns{
			Phrasing:     "natural",
			Rhythm:       "regular",
			Articulation: "clear",
			Modulation:   "subtle",
		},
		Voice: string(voice),
	}
}

// ApplyPreset overlays p onto cfg. Identity fields (name, age, gender,
// persona, background, accent) are never touched.
func ApplyPreset(cfg SpeakerConfig, p StylePreset) SpeakerConfig {
	if p.VoiceTone != nil {
		cfg.VoiceTone = *p.VoiceTone
	}
	if p.SpeakingRate != nil {
		cfg.SpeakingRate = *p.SpeakingRate
	}
	if p.VoiceCharacteristics != nil {
		cfg.VoiceCharacteristics = *p.VoiceCharacteristics
	}
	if p.SpeechPatterns != nil {
		cfg.SpeechPatterns = *p.SpeechPatterns
	}
	return cfg
}

// MappingsFor builds voice mappings for every character in c. Entries
// already present in explicit are kept as given; remaining characters are
// assigned voices from voices round-robin in character order, with the
// default speaker configuration named after the character. With no voices
// [AllVoices] is used.
func MappingsFor(c Concept, voices []VoiceName, explicit VoiceMappings) VoiceMappings {
	if len(voices) == 0 {
		voices = AllVoices
	}
	out := make(VoiceMappings, len(c.CharacterNames))
	maps.Copy(out, explicit)

	next := 0
	for _, name := range c.CharacterNames {
		if _, ok := out[name]; ok {
			continue
		}
		v := voices[next%len(voices)]
		next++
		cfg := DefaultSpeakerConfig(v)
		cfg.Name = name
		out[name] = VoiceConfig{Voice: v, Config: cfg}
	}
	return out
}
