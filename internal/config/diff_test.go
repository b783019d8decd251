package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/podwright/internal/config"
	"github.com/MrWong99/podwright/internal/transcript"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	d := config.Diff(config.Default(), config.Default())
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired: got %v", d.RestartRequired)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()

	old := config.Default()
	next := config.Default()
	next.Server.LogLevel = config.LogDebug
	next.Audio.SegmentDelay = 2 * time.Second
	next.Audio.SegmentConcurrency = 4
	next.Transcript.StaleAudio = transcript.ClearStaleAudio

	d := config.Diff(old, next)
	if d.Empty() {
		t.Fatal("diff should not be empty")
	}
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level: got %+v", d)
	}
	if !d.SegmentPacingChanged || d.NewSegmentDelay != 2*time.Second || d.NewConcurrency != 4 {
		t.Errorf("pacing: got %+v", d)
	}
	if !d.StaleAudioChanged || d.NewStaleAudio != transcript.ClearStaleAudio {
		t.Errorf("stale audio: got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired: got %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	old := config.Default()
	next := config.Default()
	next.Backend.BaseURL = "http://other:8000"
	next.Realtime.MaxReconnectAttempts = 9
	next.Generator.Fallback = &config.ProviderEntry{Name: "openai", Model: "gpt-4o"}

	d := config.Diff(old, next)
	if !d.Empty() {
		t.Errorf("nothing hot-reloadable changed, got %+v", d)
	}
	for _, want := range []string{"backend", "realtime", "generator"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired %v missing %q", d.RestartRequired, want)
		}
	}

	same := config.Default()
	same.Generator.Fallback = &config.ProviderEntry{Name: "openai", Model: "gpt-4o"}
	if d := config.Diff(next, same); slices.Contains(d.RestartRequired, "generator") {
		t.Error("equal fallback entries should not differ")
	}
}
