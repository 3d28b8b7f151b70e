// Command voicetagger serves the voice-note addressee extraction API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/voicetagger/internal/app"
	"github.com/MrWong99/voicetagger/internal/config"
	"github.com/MrWong99/voicetagger/internal/observe"
	"github.com/MrWong99/voicetagger/internal/resilience"
	"github.com/MrWong99/voicetagger/pkg/nlp"
	"github.com/MrWong99/voicetagger/pkg/nlp/prose"
	"github.com/MrWong99/voicetagger/pkg/provider/stt"
	"github.com/MrWong99/voicetagger/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voicetagger/pkg/provider/stt/openai"
	"github.com/MrWong99/voicetagger/pkg/provider/stt/whisper"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const providerHTTPTimeout = 60 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (empty: built-in defaults)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment is read")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voicetagger: load %s: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicetagger: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicetagger: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(newLogger(os.Stderr, &level))

	slog.Info("voicetagger starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
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
	metrics, err := observe.NewMetrics(tel.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Speech-to-text ────────────────────────────────────────────────────────
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   providerHTTPTimeout,
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, httpClient, cfg.Roster.Contacts)

	transcriber, closers, err := buildSTT(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build stt providers", "err", err)
		return 1
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("stt provider close error", "err", err)
			}
		}
	}()

	// ── Language model ────────────────────────────────────────────────────────
	recognizer := nlp.Load(func() (nlp.Annotator, error) {
		a, err := prose.New(prose.WithModelPath(cfg.NLP.ModelPath))
		if err != nil {
			return nil, err
		}
		return a, nil
	})
	if err := recognizer.Ready(); err != nil {
		if !cfg.NLP.AllowDegradedStart {
			slog.Error("failed to load language model", "err", err)
			return 1
		}
		slog.Warn("language model unavailable; serving in degraded mode", "err", err)
	}

	// ── Application ───────────────────────────────────────────────────────────
	opts := []app.Option{
		app.WithVersion(version),
		app.WithLevelVar(&level),
		app.WithMetrics(metrics),
		app.WithTelemetry(tel),
	}
	if *configPath != "" {
		opts = append(opts, app.WithConfigFile(*configPath, config.WithEnv(os.LookupEnv)))
	}
	application, err := app.New(ctx, cfg, &app.Providers{STT: transcriber, Recognizer: recognizer}, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.DefaultShutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path, or starts from [config.Default] when path is empty,
// then applies environment overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in STT factories into reg. HTTP
// based providers share client so their calls are traced.
func registerBuiltinProviders(reg *config.Registry, client *http.Client, contacts []string) {
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithHTTPClient(client)}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.NativeOption
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(entry.Model, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []openai.Option{openai.WithHTTPClient(client)}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, openai.WithLanguage(lang))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if len(contacts) > 0 {
			opts = append(opts, deepgram.WithKeywords(contacts...))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// buildSTT creates the configured primary and fallback providers and wraps
// them in a [resilience.STTFallback], so even a single backend gets a circuit
// breaker and attempt metrics. Providers holding native resources are
// returned as closers.
func buildSTT(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (stt.Provider, []io.Closer, error) {
	entries := cfg.Providers.Entries()
	if len(entries) == 0 {
		slog.Warn("no stt provider configured")
		return nil, nil, nil
	}

	var (
		providers []stt.Provider
		names     []string
		closers   []io.Closer
	)
	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		if c, ok := p.(io.Closer); ok {
			closers = append(closers, c)
		}
		// Breakers are keyed by name; a second entry of the same kind needs
		// its own.
		name := entry.Name
		if seen[name] {
			name = fmt.Sprintf("%s#%d", name, i)
		}
		seen[name] = true
		providers = append(providers, p)
		names = append(names, name)
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	fb := resilience.NewSTTFallback(providers[0], names[0], resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Providers.CircuitBreaker.MaxFailures,
			ResetTimeout: cfg.Providers.CircuitBreaker.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("stt circuit breaker transition", "provider", name, "from", from.String(), "to", to.String())
				metrics.RecordBreakerTransition(name, to.String())
			},
		},
		Observe: metrics.RecordProviderAttempt,
	})
	for i := 1; i < len(providers); i++ {
		fb.AddFallback(names[i], providers[i])
	}
	slog.Info("stt providers ready", "order", fb.Names())
	return fb, closers, nil
}

func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
