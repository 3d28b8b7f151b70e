// Package app wires the voicetagger subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the pipeline and the
// HTTP surface, Run serves until the context is cancelled, and Shutdown
// releases what New acquired.
//
// For testing, inject doubles through [Providers] and the functional options
// (WithMetrics, WithLevelVar, ...). When an option is not provided, New falls
// back to process-wide defaults.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voicetagger/internal/config"
	"github.com/MrWong99/voicetagger/internal/health"
	"github.com/MrWong99/voicetagger/internal/mcpserver"
	"github.com/MrWong99/voicetagger/internal/observe"
	"github.com/MrWong99/voicetagger/internal/resilience"
	"github.com/MrWong99/voicetagger/internal/roster"
	"github.com/MrWong99/voicetagger/internal/server"
	"github.com/MrWong99/voicetagger/internal/tagger"
	"github.com/MrWong99/voicetagger/pkg/nlp"
	"github.com/MrWong99/voicetagger/pkg/provider/stt"
)

// DefaultShutdownTimeout bounds how long in-flight requests may take to
// finish once Run's context is cancelled.
const DefaultShutdownTimeout = 15 * time.Second

// Providers holds the externally built dependencies. Populated by main.go
// via the config registry.
type Providers struct {
	// STT transcribes uploads. Nil disables /process_audio (503).
	STT stt.Provider

	// Recognizer is the language model. A not-ready recognizer keeps the
	// server up in degraded mode.
	Recognizer *nlp.Recognizer
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	version         string
	levelVar        *slog.LevelVar
	metrics         *observe.Metrics
	telemetry       *observe.Provider
	watcher         *config.Watcher
	configPath      string
	watcherOpts     []config.WatcherOption
	shutdownTimeout time.Duration

	roster  *roster.Roster
	service *tagger.Service
	mcp     *mcpserver.Server
	server  *server.Server

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithLevelVar lets config reloads change the log level of the handler
// built around lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithMetrics injects the metrics sink instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry mounts p's Prometheus handler at /metrics and flushes p on
// Shutdown.
func WithTelemetry(p *observe.Provider) Option {
	return func(a *App) { a.telemetry = p }
}

// WithConfigFile watches path and hot-reloads the log level and roster when
// it changes. Pass [config.WithEnv] to re-apply environment overrides on each
// reload.
func WithConfigFile(path string, opts ...config.WatcherOption) Option {
	return func(a *App) {
		a.configPath = path
		a.watcherOpts = opts
	}
}

// WithShutdownTimeout overrides [DefaultShutdownTimeout].
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil || providers.Recognizer == nil {
		return nil, errors.New("app: recognizer is required")
	}

	a := &App{
		cfg:             cfg,
		providers:       providers,
		version:         "dev",
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.roster = roster.New(cfg.Roster.Contacts,
		roster.WithPhoneticThreshold(cfg.Roster.PhoneticThreshold),
		roster.WithFuzzyThreshold(cfg.Roster.FuzzyThreshold),
	)

	serviceOpts := []tagger.Option{
		tagger.WithRoster(a.roster),
		tagger.WithMetrics(a.metrics),
	}
	if providers.STT != nil {
		serviceOpts = append(serviceOpts, tagger.WithTranscriber(providers.STT))
	}
	a.service = tagger.New(providers.Recognizer, serviceOpts...)

	sttCheck := health.Configured("stt", a.service.CanTranscribe(), "no speech-to-text provider configured")
	serverOpts := []server.Option{server.WithMetrics(a.metrics)}
	if b, ok := providers.STT.(breakerReporter); ok {
		sttCheck = breakerCheck("stt", b)
		serverOpts = append(serverOpts, server.WithProviderStates(func() map[string]string {
			return stateNames(b.States())
		}))
	}
	serverOpts = append(serverOpts, server.WithHealth(health.New(
		health.ReadyFunc("nlp", a.service.Ready),
		sttCheck,
	)))
	if a.telemetry != nil {
		serverOpts = append(serverOpts, server.WithMetricsHandler(a.telemetry.MetricsHandler()))
		a.closers = append(a.closers, a.telemetry.Shutdown)
	}
	if cfg.Server.EnableMCP {
		a.mcp = mcpserver.New(a.service, a.version)
		serverOpts = append(serverOpts, server.WithMCPHandler(a.mcp.Handler()))
	}
	a.server = server.New(a.service, cfg.Server, serverOpts...)

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfig, a.watcherOpts...)
		if err != nil {
			return nil, fmt.Errorf("app: watch config: %w", err)
		}
		a.watcher = w
	}

	slog.InfoContext(ctx, "app initialised",
		"listen_addr", cfg.Server.ListenAddr,
		"stt", a.service.CanTranscribe(),
		"nlp_ready", a.service.Ready() == nil,
		"contacts", a.roster.Len(),
		"mcp", a.mcp != nil,
	)
	return a, nil
}

// Service returns the tagger pipeline.
func (a *App) Service() *tagger.Service { return a.service }

// Roster returns the live contact roster.
func (a *App) Roster() *roster.Roster { return a.roster }

// Run serves HTTP and, when configured, watches the config file. It blocks
// until ctx is cancelled or a component fails, and returns nil on a clean
// stop.
func (a *App) Run(ctx context.Context) error {
	return a.run(ctx, func(ctx context.Context) error {
		return a.server.Run(ctx, a.shutdownTimeout)
	})
}

// Serve is [App.Run] over an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	return a.run(ctx, func(ctx context.Context) error {
		return a.server.Serve(ctx, ln, a.shutdownTimeout)
	})
}

func (a *App) run(ctx context.Context, serve func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(ctx) })
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(ctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// applyConfig is the watcher callback. Only the log level and the roster are
// applied live.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RosterChanged {
		a.roster.Replace(new.Roster.Contacts)
		a.roster.SetThresholds(new.Roster.PhoneticThreshold, new.Roster.FuzzyThreshold)
		slog.Info("roster reloaded",
			"contacts", a.roster.Len(),
			"added", d.ContactsAdded,
			"removed", d.ContactsRemoved,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// breakerReporter is implemented by [resilience.STTFallback].
type breakerReporter interface {
	States() map[string]resilience.State
}

// breakerCheck fails readiness while every provider behind b has an open
// breaker. A half-open provider still counts as available.
func breakerCheck(name string, b breakerReporter) health.Checker {
	return health.Checker{
		Name: name,
		Check: func(context.Context) error {
			states := b.States()
			for _, st := range states {
				if st != resilience.StateOpen {
					return nil
				}
			}
			if len(states) == 0 {
				return errors.New("no speech-to-text provider configured")
			}
			return errors.New("every speech-to-text provider has an open circuit breaker")
		},
	}
}

func stateNames(states map[string]resilience.State) map[string]string {
	out := make(map[string]string, len(states))
	for name, st := range states {
		out[name] = st.String()
	}
	return out
}

// Shutdown runs the closers in order. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
