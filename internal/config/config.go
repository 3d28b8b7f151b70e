// Package config provides the configuration schema, loader, and provider registry
// for the voicetagger server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the voicetagger server.
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

// Slog maps l onto a [slog.Level]. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default values applied by [LoadFromReader] and [Default] to unset fields.
const (
	DefaultListenAddr        = ":5000"
	DefaultMaxUploadMB       = 25
	DefaultPhoneticThreshold = 0.70
	DefaultFuzzyThreshold    = 0.85
	DefaultServiceName       = "voicetagger"
	DefaultWhisperURL        = "http://127.0.0.1:8080"
)

// Config is the root configuration structure for voicetagger.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	NLP       NLPConfig       `yaml:"nlp"`
	Roster    RosterConfig    `yaml:"roster"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":5000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// MaxUploadMB caps the size of an uploaded voice note in mebibytes.
	MaxUploadMB int `yaml:"max_upload_mb"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	// "*" allows any origin. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`

	// EnableMCP mounts the MCP tool endpoint at /mcp.
	EnableMCP bool `yaml:"enable_mcp"`
}

// MaxUploadBytes returns MaxUploadMB in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the speech-to-text backends. STT is the primary;
// STTFallbacks are tried in order when it fails.
type ProvidersConfig struct {
	STT            ProviderEntry        `yaml:"stt"`
	STTFallbacks   []ProviderEntry      `yaml:"stt_fallbacks"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// Entries returns the primary followed by the fallbacks, skipping an unset
// primary.
func (p ProvidersConfig) Entries() []ProviderEntry {
	var out []ProviderEntry
	if p.STT.Name != "" {
		out = append(out, p.STT)
	}
	return append(out, p.STTFallbacks...)
}

// CircuitBreakerConfig tunes the per-provider circuit breakers. Zero values
// select the resilience package defaults.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry is the configuration block for one STT backend.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Required for
	// "whisper", which has no public default.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "nova-3", "whisper-1").
	// For "whisper-native" it is the path to the ggml model file.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above (e.g., "language").
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] when it is a non-empty string.
func (e ProviderEntry) StringOption(key string) (string, bool) {
	v, ok := e.Options[key].(string)
	return v, ok && v != ""
}

// NLPConfig configures the entity recogniser.
type NLPConfig struct {
	// ModelPath is a directory holding a trained prose NER model. Empty selects
	// the built-in model.
	ModelPath string `yaml:"model_path"`

	// AllowDegradedStart keeps the server running when the model fails to
	// load. Endpoints that need it answer 503 until restart.
	AllowDegradedStart bool `yaml:"allow_degraded_start"`
}

// RosterConfig lists the known contacts an extracted name is matched against.
type RosterConfig struct {
	Contacts []string `yaml:"contacts"`

	// PhoneticThreshold is the minimum Jaro-Winkler similarity for a contact
	// that shares a Double Metaphone code with the name.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// FuzzyThreshold is the minimum similarity for a match without phonetic
	// agreement.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	// ServiceName is reported as the OTel service.name resource attribute.
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given: a local
// whisper.cpp server as the only STT backend.
func Default() *Config {
	cfg := &Config{
		Providers: ProvidersConfig{
			STT: ProviderEntry{Name: "whisper", BaseURL: DefaultWhisperURL},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = DefaultMaxUploadMB
	}
	if cfg.Roster.PhoneticThreshold == 0 {
		cfg.Roster.PhoneticThreshold = DefaultPhoneticThreshold
	}
	if cfg.Roster.FuzzyThreshold == 0 {
		cfg.Roster.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}
