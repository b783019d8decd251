package config

import (
	"time"

	"github.com/MrWong99/podwright/internal/transcript"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SegmentPacingChanged bool
	NewSegmentDelay      time.Duration
	NewConcurrency       int

	StaleAudioChanged bool
	NewStaleAudio     transcript.StaleAudioPolicy

	// RestartRequired lists changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// Empty reports whether nothing hot-reloadable changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.SegmentPacingChanged && !d.StaleAudioChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Audio.SegmentDelay != new.Audio.SegmentDelay || old.Audio.SegmentConcurrency != new.Audio.SegmentConcurrency {
		d.SegmentPacingChanged = true
		d.NewSegmentDelay = new.Audio.SegmentDelay
		d.NewConcurrency = new.Audio.SegmentConcurrency
	}

	if old.Transcript.StaleAudio != new.Transcript.StaleAudio {
		d.StaleAudioChanged = true
		d.NewStaleAudio = new.Transcript.StaleAudio
	}

	restart := []struct {
		name    string
		changed bool
	}{
		{"server.status_addr", old.Server.StatusAddr != new.Server.StatusAddr},
		{"backend", old.Backend != new.Backend},
		{"realtime", old.Realtime != new.Realtime},
		{"audio.segment_cache_size", old.Audio.SegmentCacheSize != new.Audio.SegmentCacheSize},
		{"generator", !sameGenerator(old.Generator, new.Generator)},
		{"telemetry", old.Telemetry != new.Telemetry},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.name)
		}
	}
	return d
}

func sameGenerator(a, b GeneratorConfig) bool {
	if a.MaxTokens != b.MaxTokens || a.Temperature != b.Temperature {
		return false
	}
	if (a.Fallback == nil) != (b.Fallback == nil) {
		return false
	}
	if a.Fallback == nil {
		return true
	}
	fa, fb := *a.Fallback, *b.Fallback
	return fa.Name == fb.Name && fa.APIKey == fb.APIKey && fa.BaseURL == fb.BaseURL && fa.Model == fb.Model
}
