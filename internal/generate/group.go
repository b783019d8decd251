package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/internal/resilience"
	"github.com/MrWong99/podwright/pkg/backend"
	"github.com/MrWong99/podwright/pkg/podcast"
)

// Source names used for metrics and logs.
const (
	SourceRealtime = "realtime"
	SourceHTTP     = "http"
	SourceLLM      = "llm"
)

// Named pairs a [Source] with the name it is reported under.
type Named struct {
	Name   string
	Source Source
}

// Result is a generated transcript and where it came from.
type Result struct {
	Text    string
	Source  string
	Elapsed time.Duration
}

// Group tries its sources in order until one returns a transcript. Each
// source sits behind its own circuit breaker, so a backend that keeps
// failing is skipped until its reset timeout passes.
type Group struct {
	fg      *resilience.FallbackGroup[Source]
	metrics *observe.Metrics
	log     *slog.Logger
}

// GroupOption configures a [Group].
type GroupOption func(*groupOptions)

type groupOptions struct {
	breaker resilience.CircuitBreakerConfig
	metrics *observe.Metrics
	log     *slog.Logger
}

// WithBreaker sets the breaker configuration used for every source. Name
// and OnStateChange are managed by the group.
func WithBreaker(cfg resilience.CircuitBreakerConfig) GroupOption {
	return func(o *groupOptions) { o.breaker = cfg }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) GroupOption {
	return func(o *groupOptions) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GroupOption {
	return func(o *groupOptions) { o.log = l }
}

// NewGroup creates a Group trying sources in the given order.
func NewGroup(sources []Named, opts ...GroupOption) (*Group, error) {
	if len(sources) == 0 {
		return nil, errors.New("generate: at least one source is required")
	}
	o := groupOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}

	cb := o.breaker
	if cb.IsFailure == nil {
		cb.IsFailure = backend.IsBreakerFailure
	}
	metrics := o.metrics
	cb.OnStateChange = func(name string, _, to resilience.State) {
		metrics.RecordBreakerTransition(context.Background(), "generate."+name, to.String())
	}

	fg := resilience.NewFallbackGroup(sources[0].Source, sources[0].Name, resilience.FallbackConfig{
		CircuitBreaker: cb,
		Logger:         o.log,
	})
	for _, s := range sources[1:] {
		fg.AddFallback(s.Name, s.Source)
	}
	return &Group{fg: fg, metrics: o.metrics, log: o.log}, nil
}

// Sources returns the source names in the order they are tried.
func (g *Group) Sources() []string { return g.fg.Names() }

// States reports the breaker state of every source.
func (g *Group) States() map[string]resilience.State { return g.fg.States() }

// Generate validates c and returns the first transcript any source
// produces. Validation failures are returned as [podcast.FieldErrors]
// without contacting a source.
func (g *Group) Generate(ctx context.Context, c podcast.Concept) (Result, error) {
	if err := podcast.ValidateConcept(c, nil); err != nil {
		return Result{}, err
	}

	log := observe.Logger(ctx, g.log)
	start := time.Now()
	text, source, err := resilience.ExecuteWithResult(ctx, g.fg, func(ctx context.Context, s Source) (string, error) {
		return s.Generate(ctx, c)
	})
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		source = "none"
	}
	g.metrics.RecordGeneration(ctx, source, outcome, elapsed.Seconds())

	if err != nil {
		log.Error("transcript generation failed", "topic", c.Topic, "err", err)
		return Result{}, fmt.Errorf("generate transcript: %w", err)
	}
	log.Info("transcript generated", "source", source, "elapsed", elapsed, "chars", len(text))
	return Result{Text: text, Source: source, Elapsed: elapsed}, nil
}
