// Package shell is the line-oriented transcript editor used in interactive
// sessions. It reads one command per line and drives the wizard, the
// transcript editor, the backend and the segment generator.
//
// Turn numbers typed by the operator are 1-based.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/MrWong99/podwright/internal/batch"
	"github.com/MrWong99/podwright/internal/transcript"
	"github.com/MrWong99/podwright/internal/wizard"
	"github.com/MrWong99/podwright/pkg/backend"
	"github.com/MrWong99/podwright/pkg/podcast"
)

// ErrBusy is returned when a command's action is already running.
var ErrBusy = errors.New("shell: action already running")

// ErrUnsaved is returned by the audio command while the transcript has
// edits the backend has not acknowledged.
var ErrUnsaved = errors.New("shell: transcript has unsaved changes")

// Backend is the part of *backend.Client the shell uses.
type Backend interface {
	EditTranscript(ctx context.Context, text string) (*backend.TranscriptResponse, error)
	ExtendTranscript(ctx context.Context, req backend.ExtendRequest) (*backend.TranscriptResponse, error)
	GenerateAudio(ctx context.Context, req backend.AudioRequest, onUpdate func(backend.ProgressUpdate)) (*backend.Progress, error)
}

// Segmenter is the part of *batch.Generator the shell uses.
type Segmenter interface {
	Run(ctx context.Context, ed *transcript.Editor, mappings podcast.VoiceMappings) (batch.Report, error)
	Segment(ctx context.Context, ed *transcript.Editor, id transcript.TurnID, mappings podcast.VoiceMappings) (string, error)
}

// Shell executes editor commands against one wizard session.
type Shell struct {
	wiz      *wizard.Wizard
	backend  Backend
	segments Segmenter
	log      *slog.Logger
}

// New creates a Shell. log may be nil.
func New(w *wizard.Wizard, b Backend, s Segmenter, log *slog.Logger) *Shell {
	if log == nil {
		log = slog.Default()
	}
	return &Shell{wiz: w, backend: b, segments: s, log: log}
}

type command struct {
	usage string
	help  string
	run   func(s *Shell, ctx context.Context, args string, out io.Writer) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"list":     {"list", "show all turns", (*Shell).list},
		"show":     {"show N", "show turn N in full", (*Shell).show},
		"say":      {"say N TEXT", "replace the text of turn N", (*Shell).say},
		"speaker":  {"speaker N NAME", "change the speaker of turn N", (*Shell).speaker},
		"insert":   {"insert N [SPEAKER]", "insert an empty turn after N (0 for the top)", (*Shell).insert},
		"delete":   {"delete N", "delete turn N", (*Shell).delete},
		"up":       {"up N", "move turn N up", (*Shell).up},
		"down":     {"down N", "move turn N down", (*Shell).down},
		"stats":    {"stats", "word count and estimated duration", (*Shell).stats},
		"validate": {"validate", "check speakers and line format", (*Shell).validate},
		"save":     {"save", "save the transcript through the backend", (*Shell).save},
		"extend":   {"extend MIN", "extend the transcript to MIN minutes", (*Shell).extend},
		"segment":  {"segment N", "generate audio for turn N", (*Shell).segment},
		"segments": {"segments", "generate audio for every turn without audio", (*Shell).segmentAll},
		"audio":    {"audio", "approve the transcript and generate the podcast", (*Shell).audio},
		"back":     {"back STEP", "return to an earlier wizard step", (*Shell).back},
		"dismiss":  {"dismiss", "clear the error banner", (*Shell).dismiss},
		"help":     {"help", "list commands", (*Shell).help},
	}
}

// Run reads commands from in until EOF, "quit" or ctx is done. Command
// errors are written to out and shown in the wizard's error banner; they do
// not stop the loop.
func (s *Shell) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	s.prompt(out)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		quit, err := s.Exec(ctx, sc.Text(), out)
		if quit {
			return nil
		}
		if err != nil {
			s.wiz.SetError(err)
			fmt.Fprintf(out, "error: %v\n", err)
		}
		s.prompt(out)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("shell: read input: %w", err)
	}
	return nil
}

// Exec runs a single command line. It reports quit for "quit" and "exit".
func (s *Shell) Exec(ctx context.Context, line string, out io.Writer) (quit bool, err error) {
	name, args := cutWord(line)
	switch name {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	}
	cmd, ok := commands[strings.ToLower(name)]
	if !ok {
		return false, fmt.Errorf("unknown command %q, try help", name)
	}
	s.log.Debug("shell command", "command", name)
	return false, cmd.run(s, ctx, args, out)
}

func (s *Shell) prompt(out io.Writer) {
	if msg := s.wiz.Error(); msg != "" {
		fmt.Fprintf(out, "[!] %s (dismiss to clear)\n", msg)
	}
	fmt.Fprintf(out, "%s> ", s.wiz.Step())
}

func (s *Shell) editor() *transcript.Editor { return s.wiz.Editor() }

func (s *Shell) list(_ context.Context, _ string, out io.Writer) error {
	turns := s.editor().Turns()
	if len(turns) == 0 {
		fmt.Fprintln(out, "(no turns)")
		return nil
	}
	for i, t := range turns {
		mark := ""
		if t.HasAudio() {
			mark = " [audio]"
		}
		fmt.Fprintf(out, "%3d. %s: %s%s\n", i+1, t.Speaker, preview(t.Content, 72), mark)
	}
	return nil
}

func (s *Shell) show(_ context.Context, args string, out io.Writer) error {
	i, err := s.turnIndex(args)
	if err != nil {
		return err
	}
	t, err := s.editor().Turn(i)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "#%d %s (%s)\n%s\n", i+1, t.Speaker, t.ID, t.Content)
	if t.HasAudio() {
		fmt.Fprintf(out, "audio: %s\n", t.AudioURL)
	}
	return nil
}

func (s *Shell) say(_ context.Context, args string, out io.Writer) error {
	n, text := cutWord(args)
	i, err := s.turnIndex(n)
	if err != nil {
		return err
	}
	if strings.ContainsAny(text, "\r\n") {
		return errors.New("turn text must be a single line")
	}
	if err := s.editor().Update(i, transcript.TurnPatch{Content: &text}); err != nil {
		return err
	}
	fmt.Fprintf(out, "turn %d updated\n", i+1)
	return nil
}

func (s *Shell) speaker(_ context.Context, args string, out io.Writer) error {
	n, name := cutWord(args)
	i, err := s.turnIndex(n)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("usage: speaker N NAME")
	}
	ed := s.editor()
	if err := ed.Update(i, transcript.TurnPatch{Speaker: &name}); err != nil {
		return err
	}
	fmt.Fprintf(out, "turn %d now spoken by %s\n", i+1, name)
	if chars := ed.Characters(); len(chars) > 0 && !slices.Contains(chars, name) {
		fmt.Fprintf(out, "warning: %s is not one of %s\n", name, strings.Join(chars, ", "))
	}
	return nil
}

func (s *Shell) insert(_ context.Context, args string, out io.Writer) error {
	n, name := cutWord(args)
	after, err := strconv.Atoi(n)
	if err != nil {
		return errors.New("usage: insert N [SPEAKER]")
	}
	var speaker []string
	if name = strings.TrimSpace(name); name != "" {
		speaker = append(speaker, name)
	}
	t, err := s.editor().Insert(after-1, speaker...)
	if err != nil {
		return fmt.Errorf("cannot insert after turn %d: %w", after, err)
	}
	fmt.Fprintf(out, "inserted turn %d for %s, fill it with: say %d TEXT\n", after+1, t.Speaker, after+1)
	return nil
}

func (s *Shell) delete(_ context.Context, args string, out io.Writer) error {
	i, err := s.turnIndex(args)
	if err != nil {
		return err
	}
	t, err := s.editor().Delete(i)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted turn %d (%s)\n", i+1, t.Speaker)
	return nil
}

func (s *Shell) up(ctx context.Context, args string, out io.Writer) error {
	return s.move(args, transcript.Up, out)
}

func (s *Shell) down(ctx context.Context, args string, out io.Writer) error {
	return s.move(args, transcript.Down, out)
}

func (s *Shell) move(args string, dir transcript.Direction, out io.Writer) error {
	i, err := s.turnIndex(args)
	if err != nil {
		return err
	}
	moved, err := s.editor().Move(i, dir)
	if err != nil {
		return err
	}
	if !moved {
		fmt.Fprintf(out, "turn %d is already at the edge\n", i+1)
		return nil
	}
	to := i
	if dir == transcript.Up {
		to--
	} else {
		to++
	}
	fmt.Fprintf(out, "moved turn %d to %d\n", i+1, to+1)
	return nil
}

func (s *Shell) stats(_ context.Context, _ string, out io.Writer) error {
	ed := s.editor()
	st := ed.Stats()
	target := s.wiz.Concept().DurationMinutes
	fmt.Fprintf(out, "turns: %d  words: %d  estimated: %d min", st.Turns, st.Words, st.Minutes)
	if target > 0 {
		fmt.Fprintf(out, " of %d (%d%%)", target, st.Progress(target))
	}
	fmt.Fprintln(out)
	names := make([]string, 0, len(st.PerSpeaker))
	for name := range st.PerSpeaker {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %s: %d turns\n", name, st.PerSpeaker[name])
	}
	if ed.Dirty() {
		fmt.Fprintln(out, "unsaved changes")
	}
	return nil
}

func (s *Shell) validate(_ context.Context, _ string, out io.Writer) error {
	ed := s.editor()
	turns := ed.Turns()
	chars := ed.Characters()
	var problems []string
	if unknown := transcript.UnknownSpeakers(turns, chars); len(unknown) > 0 {
		problems = append(problems, "unknown speakers: "+strings.Join(unknown, ", "))
	}
	for _, i := range transcript.UnsafeTurns(turns) {
		problems = append(problems, fmt.Sprintf("turn %d contains a line break", i+1))
	}
	if err := transcript.Validate(ed.Text(), chars); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) == 0 {
		fmt.Fprintln(out, "transcript looks good")
		return nil
	}
	for _, p := range problems {
		fmt.Fprintf(out, "- %s\n", p)
	}
	return nil
}

func (s *Shell) save(ctx context.Context, _ string, out io.Writer) error {
	if !s.wiz.Begin(wizard.ActionSave) {
		return ErrBusy
	}
	defer s.wiz.End(wizard.ActionSave)

	resp, err := s.backend.EditTranscript(ctx, s.editor().Text())
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	if err := s.wiz.Fire(wizard.TranscriptSaved{Text: resp.Transcript}); err != nil {
		return err
	}
	fmt.Fprintf(out, "saved: %d words, about %.1f minutes\n", resp.WordCount, resp.EstimatedDurationMinutes)
	return nil
}

func (s *Shell) extend(ctx context.Context, args string, out io.Writer) error {
	minutes, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || minutes <= 0 {
		return errors.New("usage: extend MIN")
	}
	if !s.wiz.Begin(wizard.ActionExtend) {
		return ErrBusy
	}
	defer s.wiz.End(wizard.ActionExtend)

	ed := s.editor()
	resp, err := s.backend.ExtendTranscript(ctx, backend.ExtendRequest{
		Transcript:            ed.Text(),
		TargetDurationMinutes: minutes,
		Characters:            ed.Characters(),
	})
	if err != nil {
		return fmt.Errorf("extend transcript: %w", err)
	}
	if err := s.wiz.Fire(wizard.TranscriptSaved{Text: resp.Transcript}); err != nil {
		return err
	}
	fmt.Fprintf(out, "extended to %d turns, about %.1f minutes\n", s.editor().Len(), resp.EstimatedDurationMinutes)
	return nil
}

func (s *Shell) segment(ctx context.Context, args string, out io.Writer) error {
	i, err := s.turnIndex(args)
	if err != nil {
		return err
	}
	if !s.wiz.Begin(wizard.ActionGenerateSegment) {
		return ErrBusy
	}
	defer s.wiz.End(wizard.ActionGenerateSegment)

	ed := s.editor()
	t, err := ed.Turn(i)
	if err != nil {
		return err
	}
	url, err := s.segments.Segment(ctx, ed, t.ID, s.wiz.Mappings())
	if err != nil {
		return fmt.Errorf("segment audio for turn %d: %w", i+1, err)
	}
	fmt.Fprintf(out, "turn %d audio: %s\n", i+1, url)
	return nil
}

func (s *Shell) segmentAll(ctx context.Context, _ string, out io.Writer) error {
	if !s.wiz.Begin(wizard.ActionGenerateSegment) {
		return ErrBusy
	}
	defer s.wiz.End(wizard.ActionGenerateSegment)

	report, err := s.segments.Run(ctx, s.editor(), s.wiz.Mappings())
	fmt.Fprintf(out, "segments: %d generated, %d cached, %d failed, %d skipped\n",
		report.Count(batch.StatusOK), report.Count(batch.StatusCached),
		report.Count(batch.StatusFailed), report.Count(batch.StatusSkipped))
	if err != nil {
		return err
	}
	return report.Err()
}

func (s *Shell) audio(ctx context.Context, _ string, out io.Writer) error {
	if s.wiz.Step() == wizard.StepTranscript {
		if err := s.wiz.Fire(wizard.TranscriptApproved{}); err != nil {
			return err
		}
	}
	if s.wiz.Step() != wizard.StepAudio {
		return fmt.Errorf("audio can only be generated from the transcript or audio step, not %s", s.wiz.Step())
	}
	if s.editor().Dirty() {
		return fmt.Errorf("%w; run back transcript and save first", ErrUnsaved)
	}
	if !s.wiz.Begin(wizard.ActionGenerateAudio) {
		return ErrBusy
	}
	defer s.wiz.End(wizard.ActionGenerateAudio)

	progress, err := s.backend.GenerateAudio(ctx, backend.AudioRequest{
		Transcript:    s.editor().Text(),
		VoiceMappings: s.wiz.Mappings(),
	}, func(u backend.ProgressUpdate) { PrintUpdate(out, u) })
	if err != nil {
		return fmt.Errorf("generate audio: %w", err)
	}
	return s.wiz.Fire(wizard.AudioFinished{Progress: progress})
}

func (s *Shell) back(_ context.Context, args string, out io.Writer) error {
	step, err := wizard.ParseStep(args)
	if err != nil {
		return err
	}
	if err := s.wiz.Fire(wizard.StepSelected{Step: step}); err != nil {
		return err
	}
	fmt.Fprintf(out, "now at %s\n", step)
	return nil
}

func (s *Shell) dismiss(_ context.Context, _ string, _ io.Writer) error {
	s.wiz.DismissError()
	return nil
}

func (s *Shell) help(_ context.Context, _ string, out io.Writer) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(out, "  %-20s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(out, "  %-20s %s\n", "quit", "leave the editor")
	return nil
}

// PrintUpdate writes one audio progress line.
func PrintUpdate(out io.Writer, u backend.ProgressUpdate) {
	switch u.Type {
	case backend.UpdateProgress:
		fmt.Fprintf(out, "[%3.0f%%] %s\n", u.Progress.Percentage, u.Message)
	case backend.UpdateSegmentComplete:
		fmt.Fprintf(out, "[%3.0f%%] %s segment done (%.1fs)\n", u.Progress.Percentage, u.Speaker, u.Duration)
	case backend.UpdateComplete:
		fmt.Fprintf(out, "[100%%] complete: %d segments\n", len(u.Segments))
	case backend.UpdateError:
		fmt.Fprintf(out, "[err] %s\n", u.Error)
	}
}

// turnIndex converts a 1-based turn number to an editor index.
func (s *Shell) turnIndex(arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("expected a turn number, got %q", arg)
	}
	if total := s.editor().Len(); n < 1 || n > total {
		return 0, fmt.Errorf("turn %d does not exist (1-%d): %w", n, total, transcript.ErrIndexOutOfRange)
	}
	return n - 1, nil
}

func cutWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	word, rest, _ = strings.Cut(s, " ")
	return word, strings.TrimSpace(rest)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
