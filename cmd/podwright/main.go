// Command podwright drives a podcast session against the podcast backend:
// concept, voices, transcript editing and audio rendering.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/podwright/internal/app"
	"github.com/MrWong99/podwright/internal/config"
	"github.com/MrWong99/podwright/internal/health"
	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/pkg/provider/llm"
	"github.com/MrWong99/podwright/pkg/provider/llm/anyllm"
	"github.com/MrWong99/podwright/pkg/provider/llm/openai"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults are used when empty)")
	planPath := flag.String("concept", "", "path to the YAML session plan (concept, speakers, presets)")
	interactive := flag.Bool("interactive", false, "edit the transcript in the line editor before rendering")
	outPath := flag.String("out", "", "write the final transcript to this file")
	flag.Parse()

	if *planPath == "" {
		fmt.Fprintln(os.Stderr, "podwright: -concept is required")
		flag.Usage()
		return 2
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	// ── Load configuration ────────────────────────────────────────────────────
	var (
		cfg     *config.Config
		watcher *config.Watcher
		live    atomic.Pointer[app.App]
	)
	if *configPath == "" {
		cfg = config.Default()
	} else {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			if a := live.Load(); a != nil {
				a.ApplyConfig(config.Diff(old, new))
			}
		}, config.WithWatcherLogger(logger))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "podwright: config file %q not found; omit -config to use the defaults\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "podwright: %v\n", err)
			}
			return 1
		}
		watcher = w
		defer watcher.Stop()
		cfg = w.Current()
	}
	level.Set(app.SlogLevel(cfg.Server.LogLevel))

	plan, err := app.LoadPlan(*planPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "podwright: %v\n", err)
		return 1
	}
	if *interactive {
		plan.Interactive = true
	}

	slog.Info("podwright starting",
		"version", version,
		"config", *configPath,
		"plan", *planPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(os.Stdout, cfg, plan)

	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithLevelVar(&level),
		app.WithMetrics(metrics),
		app.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	live.Store(application)

	// ── Status server (optional) ──────────────────────────────────────────────
	var statusSrv *http.Server
	if addr := cfg.Server.StatusAddr; addr != "" {
		statusSrv, err = startStatusServer(ctx, addr, tel.MetricsHandler, health.New(application.Checkers()...), metrics)
		if err != nil {
			slog.Error("failed to start status server", "addr", addr, "err", err)
			return 1
		}
	}

	// ── Session ───────────────────────────────────────────────────────────────
	exit := 0
	rep, runErr := application.Run(ctx, plan, os.Stdin, os.Stdout)
	rep.Print(os.Stdout)
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		slog.Info("session interrupted", "step", rep.Step)
		exit = 130
	default:
		slog.Error("session failed", "err", runErr)
		exit = 1
	}

	if *outPath != "" && rep.Transcript != "" {
		if err := os.WriteFile(*outPath, []byte(rep.Transcript+"\n"), 0o644); err != nil {
			slog.Error("failed to write transcript", "path", *outPath, "err", err)
			exit = 1
		} else {
			slog.Info("transcript written", "path", *outPath)
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if statusSrv != nil {
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("status server shutdown error", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Status server ─────────────────────────────────────────────────────────────

// startStatusServer serves /metrics, /healthz and /readyz on addr until ctx
// is done or the server is shut down.
func startStatusServer(ctx context.Context, addr string, metricsHandler http.Handler, h *health.Handler, m *observe.Metrics) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	h.Register(mux)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           observe.Middleware(m, slog.Default())(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server error", "err", err)
		}
	}()
	slog.Info("status server listening", "addr", ln.Addr().String())
	return srv, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the local transcript generators into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// Every any-llm backend takes an optional API key and base URL. For
	// ollama, llamacpp and llamafile the base URL is the local server.
	for _, providerName := range anyllm.Names {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("openai-native", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := config.OptString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if t := config.OptString(entry.Options, "timeout"); t != "" {
			d, err := time.ParseDuration(t)
			if err != nil {
				return nil, fmt.Errorf("openai-native: options.timeout: %w", err)
			}
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildProviders instantiates the configured fallback generator, if any.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	fb := cfg.Generator.Fallback
	if fb == nil {
		return ps, nil
	}
	p, err := reg.CreateLLM(*fb)
	if errors.Is(err, config.ErrProviderNotRegistered) {
		slog.Warn("fallback generator not available, skipping", "name", fb.Name)
		return ps, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", fb.Name, err)
	}
	ps.Fallback = p
	slog.Info("provider created", "kind", "llm", "name", fb.Name, "model", fb.Model)
	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, plan *app.Plan) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        Podwright - startup summary    ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Backend", cfg.Backend.BaseURL)
	if cfg.Realtime.Disabled {
		printRow(w, "Realtime", "(disabled)")
	} else {
		printRow(w, "Realtime", cfg.Backend.WSURL)
	}
	if fb := cfg.Generator.Fallback; fb != nil {
		printRow(w, "Fallback LLM", fb.Name+" / "+fb.Model)
	} else {
		printRow(w, "Fallback LLM", "(not configured)")
	}
	printRow(w, "Topic", plan.Concept.Topic)
	printRow(w, "Speakers", fmt.Sprintf("%d", len(plan.Concept.CharacterNames)))
	printRow(w, "Duration", fmt.Sprintf("%d min", plan.Concept.DurationMinutes))
	mode := "scripted"
	if plan.Interactive {
		mode = "interactive"
	}
	printRow(w, "Mode", mode)
	if cfg.Server.StatusAddr != "" {
		printRow(w, "Status addr", cfg.Server.StatusAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, label, value string) {
	if value == "" {
		value = "(none)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:16]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}
