// Package batch renders per-turn segment audio for a whole transcript.
//
// By default turns are requested strictly one after another with a fixed
// pause between requests, which keeps load on the synthesis backend
// predictable. A concurrency above one runs requests in parallel up to that
// limit while still spacing their start times by the same pause.
//
// Results are bound to turns by [transcript.TurnID], so the operator may
// reorder or delete turns while a batch is running.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/internal/transcript"
	"github.com/MrWong99/podwright/pkg/backend"
	"github.com/MrWong99/podwright/pkg/podcast"
)

// DefaultDelay is the pause between two segment requests.
const DefaultDelay = time.Second

var (
	// ErrNoVoice is reported for turns whose speaker has no voice mapping.
	ErrNoVoice = errors.New("batch: no voice configured for speaker")

	// ErrEmptyTurn is returned by [Generator.Segment] for a turn without
	// content.
	ErrEmptyTurn = errors.New("batch: turn has no content")
)

// Renderer synthesises the audio of one turn and returns a playable URL.
// It is implemented by *backend.Client.
type Renderer interface {
	GenerateSegmentAudio(ctx context.Context, req backend.SegmentRequest) (string, error)
}

// Status is the outcome of one turn in a batch.
type Status string

const (
	StatusOK      Status = "ok"
	StatusCached  Status = "cached"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// SegmentResult is the outcome for one turn.
type SegmentResult struct {
	ID      transcript.TurnID
	Speaker string
	URL     string
	Status  Status
	Err     error
}

// Report summarises a batch run. Results are in transcript order as of the
// start of the run.
type Report struct {
	Results []SegmentResult
}

// Count returns the number of results with status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Err joins the errors of all failed turns, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("turn %s (%s): %w", res.ID, res.Speaker, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Option configures a [Generator].
type Option func(*Generator)

// WithDelay sets the pause between request starts. Zero disables pacing.
func WithDelay(d time.Duration) Option {
	return func(g *Generator) { g.delay = max(d, 0) }
}

// WithConcurrency sets how many requests may be in flight. Values below two
// mean sequential.
func WithConcurrency(n int) Option {
	return func(g *Generator) { g.concurrency = n }
}

// WithCacheSize enables a memo of that many rendered segments keyed by
// speaker, text and voice. Zero disables it.
func WithCacheSize(n int) Option {
	return func(g *Generator) { g.cacheSize = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// Generator requests segment audio for transcript turns.
type Generator struct {
	renderer Renderer
	memo     *lru.Cache[string, string]
	metrics  *observe.Metrics
	log      *slog.Logger

	cacheSize int

	mu          sync.RWMutex
	delay       time.Duration
	concurrency int
}

// New creates a Generator.
func New(r Renderer, opts ...Option) (*Generator, error) {
	if r == nil {
		return nil, errors.New("batch: renderer is required")
	}
	g := &Generator{renderer: r, delay: DefaultDelay, concurrency: 1}
	for _, o := range opts {
		o(g)
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	if g.cacheSize > 0 {
		memo, err := lru.New[string, string](g.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("batch: create segment cache: %w", err)
		}
		g.memo = memo
	}
	return g, nil
}

// SetPacing changes the delay and concurrency used by runs started after the
// call.
func (g *Generator) SetPacing(delay time.Duration, concurrency int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = max(delay, 0)
	g.concurrency = concurrency
}

// Pacing returns the current delay and concurrency.
func (g *Generator) Pacing() (time.Duration, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.delay, g.concurrency
}

// Run requests audio for every turn that has none yet. Individual failures
// are recorded in the report; the returned error is non-nil only when ctx
// ends the run early.
func (g *Generator) Run(ctx context.Context, ed *transcript.Editor, mappings podcast.VoiceMappings) (Report, error) {
	return g.run(ctx, ed, mappings, false)
}

// RunAll is like [Generator.Run] but re-renders turns that already have audio.
func (g *Generator) RunAll(ctx context.Context, ed *transcript.Editor, mappings podcast.VoiceMappings) (Report, error) {
	return g.run(ctx, ed, mappings, true)
}

// Segment renders the single turn with id and binds the result to it.
func (g *Generator) Segment(ctx context.Context, ed *transcript.Editor, id transcript.TurnID, mappings podcast.VoiceMappings) (string, error) {
	i := ed.IndexOf(id)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", transcript.ErrTurnNotFound, id)
	}
	t, err := ed.Turn(i)
	if err != nil {
		return "", err
	}
	res := g.render(ctx, ed, t, mappings, nil)
	switch res.Status {
	case "", StatusFailed:
		return "", res.Err
	case StatusSkipped:
		if strings.TrimSpace(t.Content) == "" {
			return "", ErrEmptyTurn
		}
		return "", fmt.Errorf("%w while rendering", transcript.ErrTurnChanged)
	}
	return res.URL, nil
}

func (g *Generator) run(ctx context.Context, ed *transcript.Editor, mappings podcast.VoiceMappings, force bool) (Report, error) {
	var targets []transcript.Turn
	for _, t := range ed.Turns() {
		if force || !t.HasAudio() {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return Report{}, nil
	}

	delay, concurrency := g.Pacing()
	log := observe.Logger(ctx, g.log)
	log.Info("segment batch started", "turns", len(targets), "delay", delay, "concurrency", max(concurrency, 1))

	results := make([]SegmentResult, len(targets))
	gate := &startGate{delay: delay}
	var runErr error

	if concurrency <= 1 {
		for i, t := range targets {
			results[i] = g.render(ctx, ed, t, mappings, gate)
			if runErr = ctx.Err(); runErr != nil {
				break
			}
		}
	} else {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(concurrency)
		for i, t := range targets {
			if runErr = ctx.Err(); runErr != nil {
				break
			}
			eg.Go(func() error {
				results[i] = g.render(egCtx, ed, t, mappings, gate)
				return nil
			})
		}
		_ = eg.Wait()
		if runErr == nil {
			runErr = ctx.Err()
		}
	}

	var report Report
	for _, res := range results {
		// A zero status is a turn the run never reached.
		if res.Status != "" {
			report.Results = append(report.Results, res)
		}
	}
	log.Info("segment batch finished",
		"ok", report.Count(StatusOK),
		"cached", report.Count(StatusCached),
		"failed", report.Count(StatusFailed),
		"skipped", report.Count(StatusSkipped),
		"cancelled", runErr != nil,
	)
	return report, runErr
}

// render produces the audio for t and binds it if the turn still exists
// unchanged. Only requests that reach the renderer pass through gate; skipped
// and cached turns are not paced. A nil gate does not pace. When ctx ends
// while waiting at the gate the result has no status.
func (g *Generator) render(ctx context.Context, ed *transcript.Editor, t transcript.Turn, mappings podcast.VoiceMappings, gate *startGate) SegmentResult {
	res := SegmentResult{ID: t.ID, Speaker: t.Speaker}
	defer func() {
		if res.Status != "" {
			g.metrics.RecordSegment(ctx, string(res.Status))
		}
	}()

	if strings.TrimSpace(t.Content) == "" {
		res.Status = StatusSkipped
		return res
	}
	vc, ok := mappings[t.Speaker]
	if !ok {
		res.Status, res.Err = StatusFailed, fmt.Errorf("%w: %q", ErrNoVoice, t.Speaker)
		return res
	}

	key := memoKey(t.Speaker, t.Content, vc)
	url, hit := "", false
	if g.memo != nil {
		url, hit = g.memo.Get(key)
	}
	if hit {
		res.Status = StatusCached
	} else {
		if err := gate.wait(ctx); err != nil {
			res.Err = err
			return res
		}
		var err error
		url, err = g.renderer.GenerateSegmentAudio(ctx, backend.SegmentRequest{
			Speaker:     t.Speaker,
			Text:        t.Content,
			VoiceConfig: vc,
		})
		if err != nil {
			observe.Logger(ctx, g.log).Warn("segment audio failed", "turn", t.ID, "speaker", t.Speaker, "err", err)
			res.Status, res.Err = StatusFailed, err
			return res
		}
		if g.memo != nil {
			g.memo.Add(key, url)
		}
		res.Status = StatusOK
	}
	res.URL = url

	if err := ed.SetAudioURLIf(t.ID, t.Speaker, t.Content, url); err != nil {
		res.Status = StatusSkipped
	}
	return res
}

// startGate spaces the start of renderer calls by delay. It is shared by all
// workers of a run.
type startGate struct {
	mu    sync.Mutex
	delay time.Duration
	next  time.Time
}

// wait blocks until the caller may start a request and reserves the next
// slot. The first call never blocks.
func (sg *startGate) wait(ctx context.Context) error {
	if sg == nil {
		return ctx.Err()
	}
	sg.mu.Lock()
	now := time.Now()
	d := max(sg.next.Sub(now), 0)
	sg.next = now.Add(d + sg.delay)
	sg.mu.Unlock()
	return pause(ctx, d)
}

func memoKey(speaker, content string, vc podcast.VoiceConfig) string {
	voice, _ := json.Marshal(vc)
	return speaker + "\x00" + content + "\x00" + string(voice)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
