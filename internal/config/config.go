// Package config provides the configuration schema, loader, provider
// registry and hot-reload watcher for Podwright.
package config

import (
	"time"

	"github.com/MrWong99/podwright/internal/transcript"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Podwright.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Audio      AudioConfig      `yaml:"audio"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds logging and status endpoint settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// StatusAddr is the listen address of the /metrics, /healthz and /readyz
	// endpoints (e.g. ":9090"). Empty disables the status server.
	StatusAddr string `yaml:"status_addr"`
}

// BackendConfig points at the podcast generation backend.
type BackendConfig struct {
	// BaseURL is the HTTP root of the backend, e.g. "http://localhost:8000".
	BaseURL string `yaml:"base_url"`

	// WSURL is the realtime endpoint. Derived from BaseURL when empty.
	WSURL string `yaml:"ws_url"`

	// Origin is sent on the WebSocket handshake. The backend rejects origins
	// outside its CORS list.
	Origin string `yaml:"origin"`

	// Timeout bounds JSON requests. Audio streams are bounded only by the
	// caller's context.
	Timeout time.Duration `yaml:"timeout"`

	// ConfigCacheTTL is how long option sets fetched from the backend are
	// reused. A negative value disables caching.
	ConfigCacheTTL time.Duration `yaml:"config_cache_ttl"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the breakers in front of the backend and the
// transcript sources.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// RealtimeConfig controls the WebSocket channel.
type RealtimeConfig struct {
	// Disabled skips the realtime channel; transcripts are generated over
	// plain HTTP only.
	Disabled bool `yaml:"disabled"`

	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay"`
}

// TranscriptConfig controls the editor.
type TranscriptConfig struct {
	// StaleAudio is "keep" or "clear". Hot-reloadable.
	StaleAudio transcript.StaleAudioPolicy `yaml:"stale_audio"`

	// ResolveSpeakers maps near-miss speaker names in generated transcripts
	// onto the configured characters.
	ResolveSpeakers bool `yaml:"resolve_speakers"`
}

// AudioConfig controls per-turn segment generation.
type AudioConfig struct {
	// SegmentDelay is the pause between segment requests. A negative value
	// disables pacing. Hot-reloadable.
	SegmentDelay time.Duration `yaml:"segment_delay"`

	// SegmentConcurrency above one runs segment requests in parallel.
	// Hot-reloadable.
	SegmentConcurrency int `yaml:"segment_concurrency"`

	// SegmentCacheSize is the number of rendered segments remembered for
	// the session. A negative value disables the memo.
	SegmentCacheSize int `yaml:"segment_cache_size"`
}

// GeneratorConfig configures transcript generation.
type GeneratorConfig struct {
	// Fallback, when set, generates transcripts with a local language model
	// if the backend cannot.
	Fallback *ProviderEntry `yaml:"fallback"`

	// MaxTokens caps the fallback model's output. Default 8192.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature for the fallback model. Zero keeps the provider default.
	Temperature float64 `yaml:"temperature"`
}

// ProviderEntry is the configuration block of a language model provider.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "openai",
	// "ollama", "openai-native").
	Name string `yaml:"name"`

	// APIKey authenticates with the provider's API if it needs one.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model (e.g. "gpt-4o", "llama3.1").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// TelemetryConfig names the service in exported metrics and traces.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}
