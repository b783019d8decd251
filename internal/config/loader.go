package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/podwright/internal/transcript"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultBaseURL              = "http://localhost:8000"
	DefaultOrigin               = "http://localhost:3000"
	DefaultTimeout              = 5 * time.Minute
	DefaultConfigCacheTTL       = 5 * time.Minute
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = time.Second
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultSegmentDelay         = time.Second
	DefaultSegmentCacheSize     = 256
	DefaultMaxTokens            = 8192
	DefaultServiceName          = "podwright"
)

// ValidProviderNames lists the language model providers that ship with
// Podwright. Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	"openai-native",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset (zero) fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	b := &cfg.Backend
	if b.BaseURL == "" {
		b.BaseURL = DefaultBaseURL
	}
	b.BaseURL = strings.TrimRight(b.BaseURL, "/")
	if b.WSURL == "" {
		b.WSURL = DeriveWSURL(b.BaseURL)
	}
	if b.Origin == "" {
		b.Origin = DefaultOrigin
	}
	if b.Timeout == 0 {
		b.Timeout = DefaultTimeout
	}
	if b.ConfigCacheTTL == 0 {
		b.ConfigCacheTTL = DefaultConfigCacheTTL
	}

	rt := &cfg.Realtime
	if rt.MaxReconnectAttempts == 0 {
		rt.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if rt.ReconnectDelay == 0 {
		rt.ReconnectDelay = DefaultReconnectDelay
	}
	if rt.MaxReconnectDelay == 0 {
		rt.MaxReconnectDelay = DefaultMaxReconnectDelay
	}

	if cfg.Transcript.StaleAudio == "" {
		cfg.Transcript.StaleAudio = transcript.KeepStaleAudio
	}

	a := &cfg.Audio
	if a.SegmentDelay == 0 {
		a.SegmentDelay = DefaultSegmentDelay
	}
	if a.SegmentCacheSize == 0 {
		a.SegmentCacheSize = DefaultSegmentCacheSize
	}
	if a.SegmentConcurrency == 0 {
		a.SegmentConcurrency = 1
	}

	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = DefaultMaxTokens
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// DeriveWSURL turns the backend's HTTP root into its realtime endpoint:
// http becomes ws, https becomes wss, and "/api/ws" is appended.
func DeriveWSURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws"
	return u.String()
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if err := checkURL("backend.base_url", cfg.Backend.BaseURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if !cfg.Realtime.Disabled {
		if err := checkURL("backend.ws_url", cfg.Backend.WSURL, "ws", "wss"); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout must not be negative"))
	}
	if cfg.Backend.CircuitBreaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("backend.circuit_breaker.max_failures must not be negative"))
	}
	if cfg.Backend.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("backend.circuit_breaker.reset_timeout must not be negative"))
	}

	rt := cfg.Realtime
	if rt.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("realtime.max_reconnect_attempts must not be negative"))
	}
	if rt.ReconnectDelay < 0 || rt.MaxReconnectDelay < 0 {
		errs = append(errs, fmt.Errorf("realtime reconnect delays must not be negative"))
	}
	if rt.MaxReconnectDelay > 0 && rt.ReconnectDelay > rt.MaxReconnectDelay {
		errs = append(errs, fmt.Errorf("realtime.reconnect_delay %s exceeds realtime.max_reconnect_delay %s", rt.ReconnectDelay, rt.MaxReconnectDelay))
	}

	if cfg.Transcript.StaleAudio != "" && !cfg.Transcript.StaleAudio.IsValid() {
		errs = append(errs, fmt.Errorf("transcript.stale_audio %q is invalid; valid values: keep, clear", cfg.Transcript.StaleAudio))
	}

	a := cfg.Audio
	if a.SegmentConcurrency < 0 {
		errs = append(errs, fmt.Errorf("audio.segment_concurrency must not be negative"))
	}
	if a.SegmentConcurrency > 1 && a.SegmentDelay < 0 {
		slog.Warn("audio.segment_concurrency > 1 with no segment_delay; all segment requests start at once",
			"concurrency", a.SegmentConcurrency)
	}

	g := cfg.Generator
	if g.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("generator.max_tokens must not be negative"))
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generator.temperature %.2f is out of range [0, 2]", g.Temperature))
	}
	if fb := g.Fallback; fb != nil {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("generator.fallback.name is required"))
		} else {
			validateProviderName(fb.Name)
		}
		if fb.Model == "" {
			errs = append(errs, fmt.Errorf("generator.fallback.model is required"))
		}
	}
	if cfg.Realtime.Disabled && g.Fallback == nil {
		slog.Debug("realtime channel disabled; transcripts are generated over HTTP only")
	}

	return errors.Join(errs...)
}

func checkURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q is not a valid URL: %w", field, raw, err)
	}
	if !slices.Contains(schemes, u.Scheme) || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute %s URL", field, raw, strings.Join(schemes, " or "))
	}
	return nil
}

// validateProviderName logs a warning if name is not in
// [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}

// decodeBytes is used by the watcher to parse a file it has already read.
func decodeBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}
