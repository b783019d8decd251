package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/MrWong99/podwright/internal/batch"
	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/internal/shell"
	"github.com/MrWong99/podwright/internal/transcript"
	"github.com/MrWong99/podwright/internal/wizard"
	"github.com/MrWong99/podwright/pkg/backend"
	"github.com/MrWong99/podwright/pkg/podcast"
)

// Report summarises a finished or aborted session.
type Report struct {
	SessionID string

	// Step is the wizard step the session ended in.
	Step wizard.Step

	// Source names the generator that wrote the transcript.
	Source string

	Transcript  string
	Stats       transcript.Stats
	Corrections []transcript.Correction

	// Segments is set when per-turn audio was rendered by the plan.
	Segments *batch.Report

	// Audio is the progress of the full rendering, if it finished.
	Audio *backend.Progress
}

// Print writes a human-readable summary of r to w.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "session %s ended at step %s\n", r.SessionID, r.Step)
	if r.Stats.Turns > 0 {
		fmt.Fprintf(w, "  transcript: %d turns, %d words, about %d min", r.Stats.Turns, r.Stats.Words, r.Stats.Minutes)
		if r.Source != "" {
			fmt.Fprintf(w, " (generated via %s)", r.Source)
		}
		fmt.Fprintln(w)
	}
	for _, c := range r.Corrections {
		fmt.Fprintf(w, "  speaker %q renamed to %q in %d turns\n", c.Original, c.Corrected, c.Turns)
	}
	if s := r.Segments; s != nil {
		fmt.Fprintf(w, "  segments: %d generated, %d cached, %d failed, %d skipped\n",
			s.Count(batch.StatusOK), s.Count(batch.StatusCached),
			s.Count(batch.StatusFailed), s.Count(batch.StatusSkipped))
	}
	if r.Audio != nil {
		if u, ok := r.Audio.Latest(); ok && u.Type == backend.UpdateComplete {
			fmt.Fprintf(w, "  audio: complete, %d segments\n", len(u.Segments))
		}
	}
}

// Run drives one session through the wizard: submit the concept, configure
// voices, generate the transcript, then either hand it to the interactive
// editor or save it, optionally render segments, and render the podcast.
//
// The returned report is never nil, so callers can show how far a failed
// session got.
func (a *App) Run(ctx context.Context, p *Plan, in io.Reader, out io.Writer) (*Report, error) {
	rep := &Report{SessionID: uuid.NewString()}
	ctx, span := observe.StartSpan(ctx, "podwright.session")
	defer span.End()
	log := observe.Logger(ctx, a.log).With("session", rep.SessionID)
	log.Info("session started", "topic", p.Concept.Topic, "interactive", p.Interactive)

	err := a.run(ctx, p, in, out, rep, log)
	a.finish(rep)
	if err != nil {
		a.wiz.SetError(err)
		span.RecordError(err)
		log.Error("session failed", "step", rep.Step, "err", err)
		return rep, err
	}
	log.Info("session finished", "step", rep.Step, "turns", rep.Stats.Turns)
	return rep, nil
}

func (a *App) run(ctx context.Context, p *Plan, in io.Reader, out io.Writer, rep *Report, log *slog.Logger) error {
	// ── Concept ──────────────────────────────────────────────────────────
	opts, err := a.backend.PodcastConfig(ctx)
	if err != nil {
		log.Warn("podcast options unavailable, using defaults", "err", err)
		opts = podcast.DefaultPodcastConfig()
	}
	if err := a.wiz.Fire(wizard.ConceptSubmitted{Concept: p.Concept, Options: &opts}); err != nil {
		return fmt.Errorf("app: concept: %w", err)
	}

	// ── Voices ───────────────────────────────────────────────────────────
	mappings, voiceOpts, err := a.voiceMappings(ctx, p, log)
	if err != nil {
		return fmt.Errorf("app: voices: %w", err)
	}
	if err := a.wiz.Fire(wizard.VoicesConfigured{Mappings: mappings, Options: &voiceOpts}); err != nil {
		return fmt.Errorf("app: voices: %w", err)
	}

	// ── Transcript ───────────────────────────────────────────────────────
	if err := a.generateTranscript(ctx, out, rep, log); err != nil {
		return err
	}

	sh := shell.New(a.wiz, a.backend, a.batch, log)
	if p.Interactive {
		fmt.Fprintln(out, "transcript ready; type help for commands, audio to render, quit to stop")
		return sh.Run(ctx, in, out)
	}

	var steps []string
	if p.ExtendToMinutes > 0 {
		steps = append(steps, fmt.Sprintf("extend %d", p.ExtendToMinutes))
	}
	steps = append(steps, "save")
	for _, cmd := range steps {
		if _, err := sh.Exec(ctx, cmd, out); err != nil {
			return fmt.Errorf("app: %s: %w", cmd, err)
		}
	}

	// ── Audio ────────────────────────────────────────────────────────────
	if p.Segments {
		r, err := a.batch.Run(ctx, a.wiz.Editor(), a.wiz.Mappings())
		rep.Segments = &r
		if err != nil {
			return fmt.Errorf("app: segments: %w", err)
		}
		if failed := r.Err(); failed != nil {
			log.Warn("some segments failed", "failed", r.Count(batch.StatusFailed), "err", failed)
		}
	}
	if _, err := sh.Exec(ctx, "audio", out); err != nil {
		return fmt.Errorf("app: audio: %w", err)
	}
	return nil
}

func (a *App) generateTranscript(ctx context.Context, out io.Writer, rep *Report, log *slog.Logger) error {
	if !a.wiz.Begin(wizard.ActionGenerateTranscript) {
		return shell.ErrBusy
	}
	defer a.wiz.End(wizard.ActionGenerateTranscript)

	concept := a.wiz.Concept()
	fmt.Fprintf(out, "generating transcript for %q...\n", concept.Topic)
	res, err := a.gen.Generate(ctx, concept)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := a.wiz.Fire(wizard.TranscriptLoaded{Text: res.Text}); err != nil {
		return fmt.Errorf("app: load transcript: %w", err)
	}
	rep.Source = res.Source

	ed := a.wiz.Editor()
	log.Info("transcript generated", "source", res.Source, "elapsed", res.Elapsed, "turns", ed.Len())

	if a.cfg.Transcript.ResolveSpeakers {
		rep.Corrections = transcript.ResolveSpeakers(ed, a.matcher)
		for _, c := range rep.Corrections {
			log.Info("speaker label resolved", "from", c.Original, "to", c.Corrected,
				"confidence", c.Confidence, "turns", c.Turns)
		}
	}
	if unknown := transcript.UnknownSpeakers(ed.Turns(), ed.Characters()); len(unknown) > 0 {
		log.Warn("transcript has speakers without a voice", "speakers", unknown)
	}
	return nil
}

// voiceMappings builds the mapping for every character. Speakers with an
// explicit voice keep it; the rest are assigned from the plan's voice pool.
// Each speaker starts from the backend's default configuration for its
// voice, then the speaker's or the plan's style preset is applied.
func (a *App) voiceMappings(ctx context.Context, p *Plan, log *slog.Logger) (podcast.VoiceMappings, podcast.VoiceConfigurationOptions, error) {
	opts, err := a.backend.VoiceOptions(ctx)
	if err != nil {
		log.Warn("voice options unavailable, using defaults", "err", err)
		opts = podcast.DefaultVoiceOptions()
	}
	presets, err := a.backend.StylePresets(ctx)
	if err != nil {
		log.Warn("style presets unavailable, using fallback", "err", err)
		presets = podcast.FallbackStylePresets()
	}
	defaults, err := a.backend.SpeakerMappings(ctx)
	if err != nil {
		log.Debug("speaker defaults unavailable", "err", err)
	}

	explicit := make(podcast.VoiceMappings)
	for name, sp := range p.Speakers {
		if sp.Voice == "" {
			continue
		}
		explicit[name] = podcast.VoiceConfig{
			Voice:  sp.Voice,
			Config: speakerConfig(name, sp.Voice, sp.Config, defaults),
		}
	}

	m := podcast.MappingsFor(p.Concept, p.Voices, explicit)
	var errs []error
	for _, name := range p.Concept.CharacterNames {
		vc, ok := m[name]
		if !ok {
			continue
		}
		if _, ok := explicit[name]; !ok {
			vc.Config = speakerConfig(name, vc.Voice, nil, defaults)
		}
		preset := p.Preset
		if sp := p.Speakers[name]; sp.Preset != "" {
			preset = sp.Preset
		}
		if preset != "" {
			sp, ok := presets[preset]
			if !ok {
				errs = append(errs, fmt.Errorf("%s: unknown style preset %q (available: %v)", name, preset, presetNames(presets)))
				continue
			}
			vc.Config = podcast.ApplyPreset(vc.Config, sp)
		}
		m[name] = vc
	}
	if len(errs) > 0 {
		return nil, opts, errors.Join(errs...)
	}
	return m, opts, nil
}

func speakerConfig(name string, voice podcast.VoiceName, given *podcast.SpeakerConfig, defaults map[podcast.VoiceName]podcast.SpeakerConfig) podcast.SpeakerConfig {
	var cfg podcast.SpeakerConfig
	if given != nil {
		cfg = *given
	} else if d, ok := defaults[voice]; ok {
		cfg = d
	} else {
		cfg = podcast.DefaultSpeakerConfig(voice)
	}
	cfg.Name = name
	cfg.Voice = string(voice)
	return cfg
}

func presetNames(p podcast.StylePresets) []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (a *App) finish(rep *Report) {
	ed := a.wiz.Editor()
	rep.Step = a.wiz.Step()
	rep.Transcript = ed.Text()
	rep.Stats = ed.Stats()
	rep.Audio = a.wiz.Progress()
}
