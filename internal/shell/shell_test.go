package shell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/podwright/internal/batch"
	"github.com/MrWong99/podwright/internal/transcript"
	"github.com/MrWong99/podwright/internal/wizard"
	"github.com/MrWong99/podwright/pkg/backend"
	"github.com/MrWong99/podwright/pkg/podcast"
)

type fakeBackend struct {
	edited   []string
	extended []backend.ExtendRequest
	editErr  error
	audioReq *backend.AudioRequest
	updates  []backend.ProgressUpdate
}

func (f *fakeBackend) EditTranscript(_ context.Context, text string) (*backend.TranscriptResponse, error) {
	f.edited = append(f.edited, text)
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &backend.TranscriptResponse{Success: true, Transcript: text, WordCount: transcript.WordCount(text), EstimatedDurationMinutes: 0.5}, nil
}

func (f *fakeBackend) ExtendTranscript(_ context.Context, req backend.ExtendRequest) (*backend.TranscriptResponse, error) {
	f.extended = append(f.extended, req)
	text := req.Transcript + "\nAlice: One more thing.\nBob: Indeed."
	return &backend.TranscriptResponse{Success: true, Transcript: text, EstimatedDurationMinutes: float64(req.TargetDurationMinutes)}, nil
}

func (f *fakeBackend) GenerateAudio(_ context.Context, req backend.AudioRequest, onUpdate func(backend.ProgressUpdate)) (*backend.Progress, error) {
	f.audioReq = &req
	for _, u := range f.updates {
		onUpdate(u)
	}
	return backend.NewProgress(f.updates...), nil
}

type fakeSegmenter struct {
	segmentIDs []transcript.TurnID
	report     batch.Report
}

func (f *fakeSegmenter) Run(context.Context, *transcript.Editor, podcast.VoiceMappings) (batch.Report, error) {
	return f.report, nil
}

func (f *fakeSegmenter) Segment(_ context.Context, ed *transcript.Editor, id transcript.TurnID, _ podcast.VoiceMappings) (string, error) {
	f.segmentIDs = append(f.segmentIDs, id)
	url := "http://backend/audio/seg.wav"
	return url, ed.SetAudioURL(id, url)
}

func newSession(t *testing.T) (*Shell, *wizard.Wizard, *fakeBackend, *fakeSegmenter) {
	t.Helper()
	w := wizard.New()
	c := podcast.Concept{
		Topic:           "Bees",
		NumSpeakers:     2,
		CharacterNames:  []string{"Alice", "Bob"},
		ExpertiseLevel:  podcast.ExpertiseBeginner,
		DurationMinutes: 5,
		FormatStyle:     podcast.FormatCasual,
	}
	m := podcast.VoiceMappings{
		"Alice": {Voice: "Kore", Config: podcast.DefaultSpeakerConfig("Kore")},
		"Bob":   {Voice: "Puck", Config: podcast.DefaultSpeakerConfig("Puck")},
	}
	for _, ev := range []wizard.Event{
		wizard.ConceptSubmitted{Concept: c},
		wizard.VoicesConfigured{Mappings: m},
		wizard.TranscriptLoaded{Text: "Alice: Welcome.\nBob: Thanks.\nAlice: Bees!"},
	} {
		if err := w.Fire(ev); err != nil {
			t.Fatalf("Fire(%s): %v", ev.Name(), err)
		}
	}
	b := &fakeBackend{}
	seg := &fakeSegmenter{}
	return New(w, b, seg, nil), w, b, seg
}

func exec(t *testing.T, s *Shell, line string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	_, err := s.Exec(context.Background(), line, &out)
	return out.String(), err
}

func mustExec(t *testing.T, s *Shell, line string) string {
	t.Helper()
	out, err := exec(t, s, line)
	if err != nil {
		t.Fatalf("%q: %v", line, err)
	}
	return out
}

func TestEditingCommands(t *testing.T) {
	t.Parallel()

	s, w, _, _ := newSession(t)
	ed := w.Editor()

	mustExec(t, s, "say 2 Thanks for having me.")
	if got, _ := ed.Turn(1); got.Content != "Thanks for having me." {
		t.Errorf("turn 2 content = %q", got.Content)
	}

	mustExec(t, s, "speaker 3 Bob")
	if got, _ := ed.Turn(2); got.Speaker != "Bob" {
		t.Errorf("turn 3 speaker = %q", got.Speaker)
	}

	out := mustExec(t, s, "speaker 3 Narrator")
	if !strings.Contains(out, "warning: Narrator is not one of Alice, Bob") {
		t.Errorf("missing unknown speaker warning: %q", out)
	}

	mustExec(t, s, "insert 0 Bob")
	if ed.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", ed.Len())
	}
	if got, _ := ed.Turn(0); got.Speaker != "Bob" || got.Content != "" {
		t.Errorf("inserted turn = %+v", got)
	}

	mustExec(t, s, "delete 1")
	mustExec(t, s, "down 1")
	if got, _ := ed.Turn(1); got.Content != "Welcome." {
		t.Errorf("turn 2 after move = %q, want Welcome.", got.Content)
	}
	out = mustExec(t, s, "up 1")
	if !strings.Contains(out, "moved turn 1") && !strings.Contains(out, "already at the edge") {
		t.Errorf("unexpected move output %q", out)
	}
	if !ed.Dirty() {
		t.Error("edits should mark the transcript dirty")
	}
}

func TestTurnNumberErrors(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newSession(t)
	tests := []string{"show 0", "show 4", "delete x", "say", "speaker 1", "insert", "extend zero"}
	for _, line := range tests {
		if _, err := exec(t, s, line); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}
	_, err := exec(t, s, "show 9")
	if !errors.Is(err, transcript.ErrIndexOutOfRange) {
		t.Errorf("got err %v, want ErrIndexOutOfRange", err)
	}
	if _, err := exec(t, s, "frobnicate"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("got err %v, want unknown command", err)
	}
}

func TestListAndShow(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newSession(t)
	out := mustExec(t, s, "list")
	for _, want := range []string{"  1. Alice: Welcome.", "  2. Bob: Thanks.", "  3. Alice: Bees!"} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q in %q", want, out)
		}
	}
	out = mustExec(t, s, "show 2")
	if !strings.Contains(out, "#2 Bob") || !strings.Contains(out, "Thanks.") {
		t.Errorf("show output %q", out)
	}
}

func TestStatsAndValidate(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newSession(t)
	out := mustExec(t, s, "stats")
	if !strings.Contains(out, "turns: 3") || !strings.Contains(out, "of 5") {
		t.Errorf("stats output %q", out)
	}
	if !strings.Contains(out, "Alice: 2 turns") {
		t.Errorf("stats missing per-speaker count: %q", out)
	}

	out = mustExec(t, s, "validate")
	if !strings.Contains(out, "transcript looks good") {
		t.Errorf("validate output %q", out)
	}
	mustExec(t, s, "speaker 2 Carol")
	out = mustExec(t, s, "validate")
	if !strings.Contains(out, "unknown speakers: Carol") {
		t.Errorf("validate output %q", out)
	}
}

func TestSaveAndExtend(t *testing.T) {
	t.Parallel()

	s, w, b, _ := newSession(t)
	mustExec(t, s, "say 1 Hello and welcome.")
	mustExec(t, s, "save")
	if len(b.edited) != 1 || !strings.HasPrefix(b.edited[0], "Alice: Hello and welcome.") {
		t.Fatalf("edited = %q", b.edited)
	}
	if w.Editor().Dirty() {
		t.Error("transcript still dirty after save")
	}

	mustExec(t, s, "extend 10")
	if len(b.extended) != 1 {
		t.Fatalf("extend calls = %d", len(b.extended))
	}
	req := b.extended[0]
	if req.TargetDurationMinutes != 10 || len(req.Characters) != 2 {
		t.Errorf("extend request = %+v", req)
	}
	if got := w.Editor().Len(); got != 5 {
		t.Errorf("Len() after extend = %d, want 5", got)
	}
}

func TestSaveFailureKeepsDirty(t *testing.T) {
	t.Parallel()

	s, w, b, _ := newSession(t)
	b.editErr = backend.ErrRejected
	mustExec(t, s, "say 1 Changed.")
	if _, err := exec(t, s, "save"); !errors.Is(err, backend.ErrRejected) {
		t.Fatalf("got err %v, want ErrRejected", err)
	}
	if !w.Editor().Dirty() {
		t.Error("failed save must keep the transcript dirty")
	}
	if w.Busy(wizard.ActionSave) {
		t.Error("busy flag not cleared")
	}
}

func TestBusyRefused(t *testing.T) {
	t.Parallel()

	s, w, _, _ := newSession(t)
	w.Begin(wizard.ActionSave)
	if _, err := exec(t, s, "save"); !errors.Is(err, ErrBusy) {
		t.Fatalf("got err %v, want ErrBusy", err)
	}
}

func TestSegmentCommands(t *testing.T) {
	t.Parallel()

	s, w, _, seg := newSession(t)
	out := mustExec(t, s, "segment 2")
	if !strings.Contains(out, "turn 2 audio: http://backend/audio/seg.wav") {
		t.Errorf("segment output %q", out)
	}
	if turn, _ := w.Editor().Turn(1); len(seg.segmentIDs) != 1 || seg.segmentIDs[0] != turn.ID {
		t.Errorf("segment requested for %v, want %v", seg.segmentIDs, turn.ID)
	}
	if out := mustExec(t, s, "list"); !strings.Contains(out, "Bob: Thanks. [audio]") {
		t.Errorf("list does not mark audio: %q", out)
	}

	seg.report = batch.Report{Results: []batch.SegmentResult{{Status: batch.StatusOK}, {Status: batch.StatusCached}}}
	out = mustExec(t, s, "segments")
	if !strings.Contains(out, "1 generated, 1 cached, 0 failed, 0 skipped") {
		t.Errorf("segments output %q", out)
	}
}

func TestAudio(t *testing.T) {
	t.Parallel()

	s, w, b, _ := newSession(t)
	b.updates = []backend.ProgressUpdate{
		{Type: backend.UpdateProgress, Message: "Generating segment 1", Progress: backend.ProgressCounts{Percentage: 50}},
		{Type: backend.UpdateComplete, Segments: []backend.AudioSegment{{Speaker: "Alice", Path: "a.wav"}}},
	}

	mustExec(t, s, "say 1 Edited.")
	if _, err := exec(t, s, "audio"); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Fatalf("got err %v, want unsaved transcript rejection", err)
	}

	mustExec(t, s, "save")
	out := mustExec(t, s, "audio")
	if !strings.Contains(out, "[ 50%] Generating segment 1") || !strings.Contains(out, "complete: 1 segments") {
		t.Errorf("audio output %q", out)
	}
	if w.Step() != wizard.StepDone {
		t.Errorf("step = %v, want done", w.Step())
	}
	if b.audioReq == nil || len(b.audioReq.VoiceMappings) != 2 {
		t.Errorf("audio request = %+v", b.audioReq)
	}
}

func TestAudioRefusesEditsAfterFailedRender(t *testing.T) {
	t.Parallel()

	s, w, b, _ := newSession(t)
	b.updates = []backend.ProgressUpdate{
		{Type: backend.UpdateError, Stage: backend.StageGenerationFailed, Error: "synthesis down"},
	}
	if _, err := exec(t, s, "audio"); err == nil {
		t.Fatal("audio with an error update should fail")
	}
	if w.Step() != wizard.StepAudio {
		t.Fatalf("step = %v, want audio", w.Step())
	}

	b.audioReq = nil
	mustExec(t, s, "say 1 Unsaved edit.")
	if _, err := exec(t, s, "audio"); !errors.Is(err, ErrUnsaved) {
		t.Fatalf("got err %v, want ErrUnsaved", err)
	}
	if b.audioReq != nil {
		t.Fatalf("unsaved transcript sent for rendering: %q", b.audioReq.Transcript)
	}

	b.updates = []backend.ProgressUpdate{{Type: backend.UpdateComplete}}
	mustExec(t, s, "back transcript")
	mustExec(t, s, "save")
	mustExec(t, s, "audio")
	if b.audioReq == nil || !strings.HasPrefix(b.audioReq.Transcript, "Alice: Unsaved edit.") {
		t.Errorf("audio request = %+v, want the saved edit", b.audioReq)
	}
	if w.Step() != wizard.StepDone {
		t.Errorf("step = %v, want done", w.Step())
	}
}

func TestBackAndRun(t *testing.T) {
	t.Parallel()

	s, w, _, _ := newSession(t)
	in := strings.NewReader("back voices\nback audio\ndismiss\n\nquit\nlist\n")
	var out bytes.Buffer
	if err := s.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.Step() != wizard.StepVoices {
		t.Errorf("step = %v, want voices", w.Step())
	}
	got := out.String()
	if !strings.Contains(got, "now at voices") {
		t.Errorf("output %q", got)
	}
	if !strings.Contains(got, "error: wizard: step_selected not allowed in voices") {
		t.Errorf("locked step error not printed: %q", got)
	}
	if !strings.Contains(got, "[!] wizard: step_selected") {
		t.Errorf("error banner not shown: %q", got)
	}
	if w.Error() != "" {
		t.Errorf("banner = %q, want dismissed", w.Error())
	}
	if strings.Contains(got, "1. Alice") {
		t.Error("commands after quit were executed")
	}
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newSession(t)
	out := mustExec(t, s, "help")
	for name := range commands {
		if !strings.Contains(out, commands[name].usage) {
			t.Errorf("help missing %q", commands[name].usage)
		}
	}
}
