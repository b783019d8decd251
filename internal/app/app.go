// Package app wires the Podwright subsystems into a running podcast session.
//
// The App struct owns the full lifecycle: New builds the backend client, the
// realtime channel, the transcript generator group, the segment batch
// generator and the wizard; Run drives one session plan through the wizard;
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithHTTPClient,
// WithMetrics, WithMatcher, ...). When an option is not provided, New creates
// the real implementation from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/podwright/internal/batch"
	"github.com/MrWong99/podwright/internal/config"
	"github.com/MrWong99/podwright/internal/generate"
	"github.com/MrWong99/podwright/internal/health"
	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/internal/resilience"
	"github.com/MrWong99/podwright/internal/transcript"
	"github.com/MrWong99/podwright/internal/transcript/phonetic"
	"github.com/MrWong99/podwright/internal/wizard"
	"github.com/MrWong99/podwright/pkg/backend"
	"github.com/MrWong99/podwright/pkg/provider/llm"
	"github.com/MrWong99/podwright/pkg/realtime"
)

// realtimeConnectTimeout bounds the eager connection attempt made by New.
const realtimeConnectTimeout = 5 * time.Second

// Providers holds the optional local providers. Nil means not configured.
// Populated by main.go via the config registry.
type Providers struct {
	// Fallback generates transcripts locally when the backend is unusable.
	Fallback llm.Provider
}

// App owns all subsystem lifetimes of one podcast session.
type App struct {
	cfg       *config.Config
	providers *Providers

	log        *slog.Logger
	level      *slog.LevelVar
	metrics    *observe.Metrics
	httpClient *http.Client
	matcher    transcript.PhoneticMatcher

	// Subsystems, initialised in New and torn down in Shutdown.
	backend  *backend.Client
	realtime *realtime.Client
	gen      *generate.Group
	batch    *batch.Generator
	wiz      *wizard.Wizard

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHTTPClient sets the HTTP client used for backend requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) { a.httpClient = hc }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets config hot reload change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMatcher replaces the phonetic matcher used for speaker resolution.
func WithMatcher(m transcript.PhoneticMatcher) Option {
	return func(a *App) { a.matcher = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. providers may be nil.
//
// When the realtime channel is enabled New tries to connect once; a failure
// is logged and the channel is dialled again on first use.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.matcher == nil {
		a.matcher = phonetic.New()
	}

	// ── 1. Backend client ────────────────────────────────────────────────
	if err := a.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}

	// ── 2. Realtime channel ──────────────────────────────────────────────
	a.initRealtime(ctx)

	// ── 3. Transcript generators ─────────────────────────────────────────
	if err := a.initGenerators(); err != nil {
		return nil, fmt.Errorf("app: init generators: %w", err)
	}

	// ── 4. Segment batch ─────────────────────────────────────────────────
	seg, err := batch.New(a.backend,
		batch.WithDelay(cfg.Audio.SegmentDelay),
		batch.WithConcurrency(cfg.Audio.SegmentConcurrency),
		batch.WithCacheSize(cfg.Audio.SegmentCacheSize),
		batch.WithMetrics(a.metrics),
		batch.WithLogger(a.log),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init batch: %w", err)
	}
	a.batch = seg

	// ── 5. Wizard ────────────────────────────────────────────────────────
	a.wiz = wizard.New(
		wizard.WithObserver(wizard.LogObserver(a.log, a.metrics)),
		wizard.WithEditorOptions(transcript.WithStaleAudioPolicy(cfg.Transcript.StaleAudio)),
	)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) breakerConfig(name string) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  a.cfg.Backend.CircuitBreaker.MaxFailures,
		ResetTimeout: a.cfg.Backend.CircuitBreaker.ResetTimeout,
		IsFailure:    backend.IsBreakerFailure,
		Logger:       a.log,
	}
}

func (a *App) initBackend() error {
	bc := a.breakerConfig("backend")
	bc.OnStateChange = func(name string, _, to resilience.State) {
		a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
	}

	opts := []backend.Option{
		backend.WithTimeout(a.cfg.Backend.Timeout),
		backend.WithConfigCacheTTL(a.cfg.Backend.ConfigCacheTTL),
		backend.WithCircuitBreaker(resilience.NewCircuitBreaker(bc)),
		backend.WithMetrics(a.metrics),
		backend.WithLogger(a.log.With("component", "backend")),
	}
	if a.httpClient != nil {
		opts = append(opts, backend.WithHTTPClient(a.httpClient))
	}
	c, err := backend.New(a.cfg.Backend.BaseURL, opts...)
	if err != nil {
		return err
	}
	a.backend = c
	return nil
}

func (a *App) initRealtime(ctx context.Context) {
	rt := a.cfg.Realtime
	if rt.Disabled {
		a.log.Info("realtime channel disabled")
		return
	}
	log := a.log.With("component", "realtime")
	a.realtime = realtime.New(a.cfg.Backend.WSURL,
		realtime.WithOrigin(a.cfg.Backend.Origin),
		realtime.WithMaxReconnectAttempts(rt.MaxReconnectAttempts),
		realtime.WithReconnectDelay(rt.ReconnectDelay, rt.MaxReconnectDelay),
		realtime.WithOnGiveUp(func(err error) {
			log.Warn("realtime channel gave up reconnecting; transcripts fall back to HTTP", "err", err)
		}),
		realtime.WithMetrics(a.metrics),
		realtime.WithLogger(log),
	)
	a.closers = append(a.closers, a.realtime.Close)

	cctx, cancel := context.WithTimeout(ctx, realtimeConnectTimeout)
	defer cancel()
	if err := a.realtime.Connect(cctx); err != nil {
		log.Warn("realtime channel not available yet", "url", a.cfg.Backend.WSURL, "err", err)
	}
}

// initGenerators orders the sources realtime, HTTP, then the local LLM.
func (a *App) initGenerators() error {
	var sources []generate.Named
	if a.realtime != nil {
		sources = append(sources, generate.Named{
			Name:   generate.SourceRealtime,
			Source: generate.RealtimeSource{Channel: a.realtime},
		})
	}
	sources = append(sources, generate.Named{
		Name:   generate.SourceHTTP,
		Source: generate.BackendSource{Client: a.backend},
	})
	if p := a.providers.Fallback; p != nil {
		g := a.cfg.Generator
		sources = append(sources, generate.Named{
			Name: generate.SourceLLM,
			Source: generate.NewLLMSource(p,
				generate.WithMaxTokens(g.MaxTokens),
				generate.WithTemperature(g.Temperature),
				generate.WithLLMLogger(a.log.With("component", "llm")),
			),
		})
	}

	gen, err := generate.NewGroup(sources,
		generate.WithBreaker(a.breakerConfig("")),
		generate.WithMetrics(a.metrics),
		generate.WithLogger(a.log.With("component", "generate")),
	)
	if err != nil {
		return err
	}
	a.gen = gen
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Wizard returns the session wizard.
func (a *App) Wizard() *wizard.Wizard { return a.wiz }

// Backend returns the backend client.
func (a *App) Backend() *backend.Client { return a.backend }

// Generators returns the transcript generator group.
func (a *App) Generators() *generate.Group { return a.gen }

// Checkers returns the readiness checks for the status server.
func (a *App) Checkers() []health.Checker {
	checks := []health.Checker{
		health.Backend(a.backend),
		health.Breakers(a.gen.States),
	}
	if a.realtime != nil {
		checks = append(checks, health.Realtime(a.realtime.Connected))
	}
	return checks
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change. Settings
// listed in d.RestartRequired are only logged.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SegmentPacingChanged {
		a.batch.SetPacing(d.NewSegmentDelay, d.NewConcurrency)
		a.log.Info("segment pacing changed", "delay", d.NewSegmentDelay, "concurrency", d.NewConcurrency)
	}
	if d.StaleAudioChanged {
		a.wiz.SetStaleAudioPolicy(d.NewStaleAudio)
		a.log.Info("stale audio policy changed", "policy", d.NewStaleAudio)
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel converts a config log level to its slog equivalent. Unknown
// values map to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
