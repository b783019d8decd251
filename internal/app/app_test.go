package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/podwright/internal/app"
	"github.com/MrWong99/podwright/internal/batch"
	"github.com/MrWong99/podwright/internal/config"
	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/internal/transcript"
	"github.com/MrWong99/podwright/internal/wizard"
	"github.com/MrWong99/podwright/pkg/backend"
	"github.com/MrWong99/podwright/pkg/podcast"
	"github.com/MrWong99/podwright/pkg/provider/llm"
	llmmock "github.com/MrWong99/podwright/pkg/provider/llm/mock"
)

const generated = "Alice: Welcome to the show.\nBob: Glad to be here.\nAlice: Let's talk espresso.\nBob: Gladly."

// fakeBackend serves the endpoints a session touches and records what it
// was asked.
type fakeBackend struct {
	mu sync.Mutex

	transcript     string
	generateStatus int
	audioEvents    []string
	noPresets      bool

	calls        map[string]int
	audioRequest backend.AudioRequest
	segmentTexts []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		transcript:     generated,
		generateStatus: http.StatusOK,
		audioEvents: []string{
			sse("progress", `{"type":"progress","stage":"synthesizing","progress":{"current":1,"total":2,"percentage":50}}`),
			sse("complete", `{"type":"complete","stage":"done","progress":{"current":2,"total":2,"percentage":100},"segments":[{"speaker":"Alice","path":"a.wav","duration":1.5},{"speaker":"Bob","path":"b.wav","duration":2}]}`),
		},
		calls: make(map[string]int),
	}
}

func sse(typ, data string) string {
	return "event: " + typ + "\ndata: " + data + "\n\n"
}

func (f *fakeBackend) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.mu.Unlock()

	writeJSON := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	var body struct {
		Transcript            string `json:"transcript"`
		TargetDurationMinutes int    `json:"target_duration_minutes"`
		Speaker               string `json:"speaker"`
		Text                  string `json:"text"`
	}

	switch r.URL.Path {
	case "/api/config":
		writeJSON(podcast.DefaultPodcastConfig())
	case "/api/config/voice":
		writeJSON(podcast.DefaultVoiceOptions())
	case "/api/config/voice/style-presets":
		if f.noPresets {
			http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(map[string]any{
			"warm_casual":          map[string]any{"voice_tone": "warm"},
			"authoritative_expert": map[string]any{"voice_tone": "authoritative"},
		})
	case "/api/config/voice/speaker-mappings":
		http.NotFound(w, r)
	case "/api/generate-transcript":
		if f.generateStatus != http.StatusOK {
			w.WriteHeader(f.generateStatus)
			_, _ = w.Write([]byte(`{"detail":"generator down"}`))
			return
		}
		writeJSON(f.transcript)
	case "/api/edit-transcript":
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(map[string]any{
			"success":                    true,
			"transcript":                 body.Transcript,
			"word_count":                 transcript.WordCount(body.Transcript),
			"estimated_duration_minutes": 1.0,
		})
	case "/api/extend-transcript":
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(map[string]any{
			"success":                    true,
			"transcript":                 body.Transcript + "\nAlice: One more thing.\nBob: Go on.",
			"estimated_duration_minutes": float64(body.TargetDurationMinutes),
		})
	case "/api/generate-segment-audio":
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.segmentTexts = append(f.segmentTexts, body.Text)
		n := len(f.segmentTexts)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sse("segment_complete", fmt.Sprintf(`{"type":"segment_complete","stage":"segment","segment_path":"seg/%d.wav","progress":{}}`, n)))
	case "/api/generate-audio":
		var req backend.AudioRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.audioRequest = req
		events := f.audioEvents
		f.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprint(w, ev)
		}
	default:
		http.NotFound(w, r)
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// testConfig returns a config pointing at url with the realtime channel
// disabled and no segment pacing.
func testConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.Backend.BaseURL = url
	cfg.Realtime.Disabled = true
	cfg.Audio.SegmentDelay = -1
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithMetrics(testMetrics(t)),
		app.WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func testPlan() *app.Plan {
	return &app.Plan{
		Concept: podcast.Concept{
			Topic:           "The history of espresso",
			NumSpeakers:     2,
			CharacterNames:  []string{"Alice", "Bob"},
			ExpertiseLevel:  podcast.ExpertiseMixed,
			DurationMinutes: 10,
			FormatStyle:     podcast.FormatInterview,
		},
		Preset: "warm_casual",
		Speakers: map[string]app.SpeakerPlan{
			"Bob": {Voice: podcast.VoiceCharon, Preset: "authoritative_expert"},
		},
	}
}

func TestRun_Scripted(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend()
	srv := httptest.NewServer(fb)
	defer srv.Close()

	a := newApp(t, testConfig(srv.URL), nil)
	var out bytes.Buffer
	rep, err := a.Run(context.Background(), testPlan(), strings.NewReader(""), &out)
	if err != nil {
		t.Fatalf("Run: %v\noutput:\n%s", err, out.String())
	}

	if rep.Step != wizard.StepDone {
		t.Errorf("step = %s, want done", rep.Step)
	}
	if rep.Source != "http" {
		t.Errorf("source = %q, want http", rep.Source)
	}
	if rep.Transcript != generated {
		t.Errorf("transcript = %q", rep.Transcript)
	}
	if rep.Stats.Turns != 4 {
		t.Errorf("turns = %d, want 4", rep.Stats.Turns)
	}
	if rep.SessionID == "" {
		t.Error("session ID not set")
	}
	if rep.Audio == nil || !rep.Audio.IsComplete() {
		t.Fatalf("audio progress not complete: %+v", rep.Audio)
	}
	if fb.count("/api/edit-transcript") != 1 {
		t.Errorf("edit-transcript calls = %d, want 1", fb.count("/api/edit-transcript"))
	}
	if fb.count("/api/extend-transcript") != 0 || fb.count("/api/generate-segment-audio") != 0 {
		t.Error("extend and segments must not run unless planned")
	}

	fb.mu.Lock()
	req := fb.audioRequest
	fb.mu.Unlock()
	if req.Transcript != generated {
		t.Errorf("audio transcript = %q", req.Transcript)
	}
	alice, bob := req.VoiceMappings["Alice"], req.VoiceMappings["Bob"]
	if bob.Voice != podcast.VoiceCharon {
		t.Errorf("Bob voice = %q, want Charon", bob.Voice)
	}
	if bob.Config.VoiceTone != podcast.ToneAuthoritative {
		t.Errorf("Bob tone = %q, want speaker preset", bob.Config.VoiceTone)
	}
	if alice.Voice != podcast.VoicePuck || alice.Config.Name != "Alice" {
		t.Errorf("Alice mapping = %+v", alice)
	}
	if alice.Config.VoiceTone != podcast.ToneWarm {
		t.Errorf("Alice tone = %q, want plan preset", alice.Config.VoiceTone)
	}

	var summary bytes.Buffer
	rep.Print(&summary)
	for _, want := range []string{"ended at step done", "4 turns", "generated via http", "audio: complete, 2 segments"} {
		if !strings.Contains(summary.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, summary.String())
		}
	}
}

func TestRun_ExtendAndSegments(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend()
	srv := httptest.NewServer(fb)
	defer srv.Close()

	a := newApp(t, testConfig(srv.URL), nil)
	p := testPlan()
	p.ExtendToMinutes = 15
	p.Segments = true

	rep, err := a.Run(context.Background(), p, strings.NewReader(""), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fb.count("/api/extend-transcript") != 1 {
		t.Errorf("extend calls = %d, want 1", fb.count("/api/extend-transcript"))
	}
	if rep.Stats.Turns != 6 {
		t.Errorf("turns = %d, want 6 after extension", rep.Stats.Turns)
	}
	if rep.Segments == nil {
		t.Fatal("segments report missing")
	}
	if got := rep.Segments.Count(batch.StatusOK); got != 6 {
		t.Errorf("segments ok = %d, want 6", got)
	}
	for _, turn := range a.Wizard().Editor().Turns() {
		if !strings.HasPrefix(turn.AudioURL, srv.URL+"/audio/seg/") {
			t.Errorf("turn %q audio = %q", turn.Content, turn.AudioURL)
		}
	}
	if rep.Step != wizard.StepDone {
		t.Errorf("step = %s", rep.Step)
	}
}

func TestRun_Interactive(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend()
	srv := httptest.NewServer(fb)
	defer srv.Close()

	a := newApp(t, testConfig(srv.URL), nil)
	p := testPlan()
	p.Interactive = true

	in := strings.NewReader("list\nsay 1 Hello there.\nsave\naudio\nquit\n")
	var out bytes.Buffer
	rep, err := a.Run(context.Background(), p, in, &out)
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}
	if rep.Step != wizard.StepDone {
		t.Errorf("step = %s, want done\n%s", rep.Step, out.String())
	}
	if !strings.HasPrefix(rep.Transcript, "Alice: Hello there.\n") {
		t.Errorf("edited transcript = %q", rep.Transcript)
	}
	if !strings.Contains(out.String(), "type help for commands") {
		t.Errorf("missing interactive banner:\n%s", out.String())
	}
}

func TestRun_InteractiveQuitEarly(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend()
	srv := httptest.NewServer(fb)
	defer srv.Close()

	a := newApp(t, testConfig(srv.URL), nil)
	p := testPlan()
	p.Interactive = true

	rep, err := a.Run(context.Background(), p, strings.NewReader("quit\n"), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Step != wizard.StepTranscript {
		t.Errorf("step = %s, want transcript", rep.Step)
	}
	if fb.count("/api/generate-audio") != 0 {
		t.Error("audio must not be generated after quit")
	}
}

func TestRun_InvalidConcept(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend()
	srv := httptest.NewServer(fb)
	defer srv.Close()

	a := newApp(t, testConfig(srv.URL), nil)
	p := testPlan()
	p.Concept.Topic = ""

	rep, err := a.Run(context.Background(), p, strings.NewReader(""), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error")
	}
	var fe podcast.FieldErrors
	if !errors.As(err, &fe) {
		t.Errorf("error should carry field errors, got %T: %v", err, err)
	}
	if rep.Step != wizard.StepConcept {
		t.Errorf("step = %s, want concept", rep.Step)
	}
	if fb.count("/api/generate-transcript") != 0 {
		t.Error("transcript generated for an invalid concept")
	}
	if a.Wizard().Error() == "" {
		t.Error("error banner not set")
	}
}

func TestRun_UnknownPreset(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend()
	fb.noPresets = true
	srv := httptest.NewServer(fb)
	defer srv.Close()

	a := newApp(t, testConfig(srv.URL), nil)
	rep, err := a.Run(context.Background(), testPlan(), strings.NewReader(""), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), `unknown style preset "warm_casual"`) {
		t.Fatalf("got %v, want unknown preset error", err)
	}
	if !strings.Contains(err.Error(), podcast.FallbackPresetName) {
		t.Errorf("error should list the fallback preset: %v", err)
	}
	if rep.Step != wizard.StepVoices {
		t.Errorf("step = %s, want voices", rep.Step)
	}
}

func TestRun_AudioError(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend()
	fb.audioEvents = []string{
		sse("error", `{"type":"error","stage":"synthesis","error":"voice model crashed","progress":{}}`),
	}
	srv := httptest.NewServer(fb)
	defer srv.Close()

	a := newApp(t, testConfig(srv.URL), nil)
	rep, err := a.Run(context.Background(), testPlan(), strings.NewReader(""), &bytes.Buffer{})
	if !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	if rep.Step != wizard.StepAudio {
		t.Errorf("step = %s, want audio", rep.Step)
	}
}

func TestRun_FallsBackToLocalLLM(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend()
	fb.generateStatus = http.StatusServiceUnavailable
	srv := httptest.NewServer(fb)
	defer srv.Close()

	local := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "```\n" + generated + "\n```"},
	}
	a := newApp(t, testConfig(srv.URL), &app.Providers{Fallback: local})

	if got := a.Generators().Sources(); len(got) != 2 || got[0] != "http" || got[1] != "llm" {
		t.Fatalf("sources = %v, want [http llm]", got)
	}

	rep, err := a.Run(context.Background(), testPlan(), strings.NewReader(""), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Source != "llm" {
		t.Errorf("source = %q, want llm", rep.Source)
	}
	if rep.Transcript != generated {
		t.Errorf("transcript = %q", rep.Transcript)
	}
	if len(local.CompleteCalls) != 1 {
		t.Errorf("llm calls = %d, want 1", len(local.CompleteCalls))
	}
}

type fakeMatcher map[string]string

func (m fakeMatcher) Match(label string, _ []string) (string, float64, bool) {
	if name, ok := m[label]; ok {
		return name, 0.9, true
	}
	return label, 0, false
}

func TestRun_ResolvesSpeakers(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend()
	fb.transcript = "Alise: Hi.\nBob: Hello.\nAlise: Bye."
	srv := httptest.NewServer(fb)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Transcript.ResolveSpeakers = true
	a := newApp(t, cfg, nil, app.WithMatcher(fakeMatcher{"Alise": "Alice"}))

	rep, err := a.Run(context.Background(), testPlan(), strings.NewReader(""), &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Corrections) != 1 {
		t.Fatalf("corrections = %+v", rep.Corrections)
	}
	c := rep.Corrections[0]
	if c.Original != "Alise" || c.Corrected != "Alice" || c.Turns != 2 {
		t.Errorf("correction = %+v", c)
	}
	if rep.Transcript != "Alice: Hi.\nBob: Hello.\nAlice: Bye." {
		t.Errorf("transcript = %q", rep.Transcript)
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	a := newApp(t, testConfig("http://127.0.0.1:1"), nil, app.WithLevelVar(&level))

	old := config.Default()
	next := config.Default()
	next.Server.LogLevel = config.LogDebug
	next.Transcript.StaleAudio = transcript.ClearStaleAudio
	a.ApplyConfig(config.Diff(old, next))

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}

	ed := a.Wizard().Editor()
	ed.Load("Alice: Hi.\nBob: Hello.")
	first, _ := ed.Turn(0)
	if err := ed.SetAudioURL(first.ID, "http://x/a.wav"); err != nil {
		t.Fatalf("SetAudioURL: %v", err)
	}
	content := "Hi there."
	if err := ed.Update(0, transcript.TurnPatch{Content: &content}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got, _ := ed.Turn(0); got.AudioURL != "" {
		t.Errorf("audio url = %q, want cleared by the reloaded policy", got.AudioURL)
	}
}

func TestCheckers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newFakeBackend())
	defer srv.Close()

	a := newApp(t, testConfig(srv.URL), nil)
	checks := a.Checkers()
	var names []string
	for _, c := range checks {
		names = append(names, c.Name)
		if err := c.Check(context.Background()); err != nil {
			t.Errorf("check %s: %v", c.Name, err)
		}
	}
	if strings.Join(names, ",") != "backend,generators" {
		t.Errorf("checkers = %v", names)
	}
}

func TestRealtimeUnavailableDoesNotFailNew(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newFakeBackend())
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Realtime.Disabled = false
	cfg.Backend.WSURL = config.DeriveWSURL(srv.URL)
	cfg.Realtime.MaxReconnectAttempts = 1
	cfg.Realtime.ReconnectDelay = 10 * time.Millisecond
	cfg.Realtime.MaxReconnectDelay = 10 * time.Millisecond

	a := newApp(t, cfg, nil)
	if got := a.Generators().Sources(); len(got) != 2 || got[0] != "realtime" {
		t.Errorf("sources = %v, want realtime first", got)
	}
	if len(a.Checkers()) != 3 {
		t.Errorf("checkers = %d, want 3", len(a.Checkers()))
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig("http://127.0.0.1:1"), nil)
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
