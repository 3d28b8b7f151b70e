package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the STT provider names registered by the binary.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"whisper", "whisper-native", "openai", "deepgram"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment settings onto cfg:
//
//   - PORT sets server.listen_addr to ":"+PORT
//   - VOICETAGGER_LOG_LEVEL sets server.log_level
//   - OPENAI_API_KEY and DEEPGRAM_API_KEY fill empty api_key fields of the
//     matching providers
//
// lookup is usually [os.LookupEnv]. The result is validated again.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if port, ok := lookup("PORT"); ok && port != "" {
		cfg.Server.ListenAddr = ":" + strings.TrimPrefix(port, ":")
	}
	if lvl, ok := lookup("VOICETAGGER_LOG_LEVEL"); ok && lvl != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(lvl))
	}

	keys := map[string]string{"openai": "OPENAI_API_KEY", "deepgram": "DEEPGRAM_API_KEY"}
	fill := func(e *ProviderEntry) {
		env, ok := keys[e.Name]
		if !ok || e.APIKey != "" {
			return
		}
		if v, ok := lookup(env); ok {
			e.APIKey = v
		}
	}
	fill(&cfg.Providers.STT)
	for i := range cfg.Providers.STTFallbacks {
		fill(&cfg.Providers.STTFallbacks[i])
	}
	return Validate(cfg)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadMB < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb %d must not be negative", cfg.Server.MaxUploadMB))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		if len(cfg.Providers.STTFallbacks) > 0 {
			errs = append(errs, errors.New("providers.stt_fallbacks is set but providers.stt is not configured"))
		} else {
			slog.Warn("no STT provider configured; /process_audio will not be available")
		}
	}
	seen := make(map[string]string)
	check := func(prefix string, e ProviderEntry) {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			return
		}
		validateProviderName(e.Name)
		key := e.Name + "|" + e.BaseURL + "|" + e.Model
		if prev, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s duplicates %s", prefix, prev))
		}
		seen[key] = prefix
		switch e.Name {
		case "whisper":
			if e.BaseURL == "" {
				errs = append(errs, fmt.Errorf("%s.base_url is required for whisper", prefix))
			}
		case "whisper-native":
			if e.Model == "" {
				errs = append(errs, fmt.Errorf("%s.model (ggml model path) is required for whisper-native", prefix))
			}
		case "openai", "deepgram":
			if e.APIKey == "" {
				slog.Warn("STT provider has no api_key; requests will be rejected", "provider", prefix, "name", e.Name)
			}
		}
	}
	if cfg.Providers.STT.Name != "" {
		check("providers.stt", cfg.Providers.STT)
	}
	for i, e := range cfg.Providers.STTFallbacks {
		check(fmt.Sprintf("providers.stt_fallbacks[%d]", i), e)
	}
	if cb := cfg.Providers.CircuitBreaker; cb.MaxFailures < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("providers.circuit_breaker values must not be negative"))
	}

	// Roster
	validateThreshold := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("roster.%s %.2f is out of range [0, 1]", name, v))
		}
	}
	validateThreshold("phonetic_threshold", cfg.Roster.PhoneticThreshold)
	validateThreshold("fuzzy_threshold", cfg.Roster.FuzzyThreshold)

	contactsSeen := make(map[string]int, len(cfg.Roster.Contacts))
	for i, c := range cfg.Roster.Contacts {
		prefix := fmt.Sprintf("roster.contacts[%d]", i)
		name := strings.TrimSpace(c)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s is empty", prefix))
			continue
		}
		folded := strings.ToLower(name)
		if prev, ok := contactsSeen[folded]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of roster.contacts[%d]", prefix, c, prev))
		}
		contactsSeen[folded] = i
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not found in
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
