// Package railspreview clones Rails applications into a local workspace,
// provisions and launches them, and serves a sandboxed preview of the
// rendered home page.
package railspreview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/railspreview/internal/auth"
	"github.com/loykin/railspreview/internal/config"
	"github.com/loykin/railspreview/internal/detector"
	"github.com/loykin/railspreview/internal/env"
	"github.com/loykin/railspreview/internal/history"
	"github.com/loykin/railspreview/internal/history/factory"
	"github.com/loykin/railspreview/internal/launcher"
	"github.com/loykin/railspreview/internal/logger"
	"github.com/loykin/railspreview/internal/metrics"
	"github.com/loykin/railspreview/internal/preview"
	"github.com/loykin/railspreview/internal/provision"
	"github.com/loykin/railspreview/internal/runner"
	"github.com/loykin/railspreview/internal/scrape"
	"github.com/loykin/railspreview/internal/server"
	uitls "github.com/loykin/railspreview/internal/tls"
	"github.com/loykin/railspreview/internal/workspace"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.

type Config = config.Config

type LaunchResult = launcher.LaunchResult

type StopResult = launcher.StopResult

type CloneResult = workspace.CloneResult

type Status = launcher.Status

type Event = history.Event

type Kind = launcher.Kind

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

func DefaultConfig() (*Config, error) { return config.Default() }

type appOptions struct {
	log        *slog.Logger
	runner     runner.Runner
	registerer prometheus.Registerer
	sinks      []history.Sink
}

// Option customizes New.
type Option func(*appOptions)

// WithLogger replaces the logger built from the [log] table.
func WithLogger(l *slog.Logger) Option { return func(o *appOptions) { o.log = l } }

// WithRunner replaces the command runner used for git, gem, bundle, rails and lsof.
func WithRunner(r runner.Runner) Option { return func(o *appOptions) { o.runner = r } }

// WithRegisterer registers metrics on r instead of the default registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *appOptions) { o.registerer = r }
}

// WithHistorySink adds a sink next to the one configured by history.dsn.
func WithHistorySink(s history.Sink) Option {
	return func(o *appOptions) { o.sinks = append(o.sinks, s) }
}

// App wires the workspace, launcher, history and UI from a Config.
type App struct {
	cfg       *Config
	log       *slog.Logger
	logCloser io.Closer
	ws        *workspace.Workspace
	launcher  *launcher.Launcher
	history   *history.Recorder
	sampler   *metrics.ServerSampler
}

func New(cfg *Config, opts ...Option) (*App, error) {
	if cfg == nil {
		var err error
		if cfg, err = config.Default(); err != nil {
			return nil, err
		}
	}
	var o appOptions
	for _, fn := range opts {
		fn(&o)
	}
	a := &App{cfg: cfg, log: o.log}
	if a.log == nil {
		l, c, err := logger.New(cfg.LoggerConfig(), nil)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		a.log, a.logCloser = l, c
	}
	r := o.runner
	if r == nil {
		r = runner.Exec{}
	}

	ws, err := workspace.New(cfg.Workspace, r, a.log)
	if err != nil {
		return nil, err
	}
	a.ws = ws

	det, err := detector.New(cfg.Server.PortDetector, detector.LsofDetector{Runner: r})
	if err != nil {
		return nil, err
	}
	serverEnv, err := env.Build(cfg.Server.EnvFiles, cfg.Server.Env)
	if err != nil {
		return nil, fmt.Errorf("server env: %w", err)
	}

	sinks := o.sinks
	if cfg.History.DSN != "" {
		s, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		sinks = append([]history.Sink{s}, sinks...)
	}
	a.history = history.NewRecorder(a.log, sinks...)

	if cfg.Metrics.Enabled {
		reg := o.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if err := metrics.Register(reg); err != nil {
			_ = a.history.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		a.sampler = &metrics.ServerSampler{Interval: cfg.Metrics.SampleInterval, Log: a.log}
	}

	fetcher := scrape.New(
		&http.Client{Timeout: cfg.Server.RequestTimeout},
		scrape.Credentials{UserEnv: cfg.Credentials.UserEnv, PasswordEnv: cfg.Credentials.PasswordEnv},
		a.log,
	)
	a.launcher = launcher.New(launcher.Options{
		Host:         cfg.Server.Host,
		Bind:         cfg.Server.Bind,
		Port:         cfg.Server.Port,
		Command:      cfg.Server.Command,
		PollInterval: cfg.Server.PollInterval,
		ReadyTimeout: cfg.Server.ReadyTimeout,
		PIDFile:      cfg.Server.PIDFile,
		LogDir:       cfg.Server.LogDir,
		Env:          serverEnv,
		StrictRoutes: cfg.Routes.Strict,
	}, launcher.Deps{
		Workspace:   ws,
		Provisioner: provision.New(r, a.log, cfg.Tools(), cfg.Policies()),
		Fetcher:     fetcher,
		Detector:    det,
		Spawner:     launcher.ProcessSpawner{Log: cfg.LoggerConfig(), Logger: a.log},
		History:     a.history,
	}, a.log)
	return a, nil
}

func (a *App) Config() *Config { return a.cfg }

func (a *App) Logger() *slog.Logger { return a.log }

// Clone clones url into the workspace and records the outcome.
func (a *App) Clone(ctx context.Context, url string) CloneResult {
	res := a.ws.Clone(ctx, url)
	metrics.IncClone(res.Error == "")
	a.history.Record(context.WithoutCancel(ctx), history.Event{Type: history.EventClone, Record: history.Record{
		Repo:    res.Repo,
		URL:     url,
		Message: res.Message,
		Error:   res.Error,
	}})
	return res
}

// Repos lists the cloned repositories.
func (a *App) Repos() ([]string, error) { return a.ws.List() }

func (a *App) Launch(ctx context.Context, repo string) LaunchResult {
	return a.launcher.Launch(ctx, repo)
}

func (a *App) Stop(ctx context.Context) StopResult { return a.launcher.Stop(ctx) }

func (a *App) Status(ctx context.Context) Status { return a.launcher.Status(ctx) }

// Recent returns the newest history events, or nothing without a queryable sink.
func (a *App) Recent(ctx context.Context, limit int) ([]Event, error) {
	return a.history.Recent(ctx, limit)
}

// Usage is the last CPU/RSS sample of the running server; zero when metrics are off.
func (a *App) Usage() metrics.Usage {
	if a.sampler == nil {
		return metrics.Usage{}
	}
	return a.sampler.Last()
}

// Handler returns the UI handler. /metrics is mounted on it when metrics are
// enabled without a separate listen address.
func (a *App) Handler() http.Handler {
	return server.NewRouter(a, server.Options{
		BasePath: a.cfg.UI.BasePath,
		Auth:     auth.Basic{Username: a.cfg.UI.Username, PasswordHash: a.cfg.UI.PasswordHash},
		Metrics:  a.cfg.Metrics.Enabled && a.cfg.Metrics.Listen == "",
		Log:      a.log,
	}).Handler()
}

// Serve runs the UI (and the metrics listener when configured) until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	tlsCfg, err := uitls.Setup(a.cfg.TLSOptions())
	if err != nil {
		return fmt.Errorf("ui tls: %w", err)
	}
	ui := server.NewServer(a.cfg.UI.Listen, a.Handler())
	ui.TLSConfig = tlsCfg
	srvs := []*http.Server{ui}
	if a.cfg.Metrics.Enabled && a.cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srvs = append(srvs, server.NewServer(a.cfg.Metrics.Listen, mux))
	}
	if a.sampler != nil {
		a.sampler.Start(ctx, a.launcher.CurrentPID)
		defer a.sampler.Stop()
	}

	errCh := make(chan error, len(srvs))
	for _, s := range srvs {
		a.log.Info("listening", "addr", s.Addr, "tls", s.TLSConfig != nil)
		go func(s *http.Server) {
			var err error
			if s.TLSConfig != nil {
				err = s.ListenAndServeTLS("", "")
			} else {
				err = s.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", s.Addr, err)
			}
		}(s)
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, s := range srvs {
		_ = s.Shutdown(shutdownCtx)
	}
	return err
}

// Close flushes history sinks and the log file.
func (a *App) Close() error {
	err := a.history.Close()
	if a.logCloser != nil {
		err = errors.Join(err, a.logCloser.Close())
	}
	return err
}

// PreviewDocument is the standalone HTML of a launch preview: the page body
// with comments stripped and the collected stylesheets inlined.
func PreviewDocument(res LaunchResult) string {
	return preview.Document(scrape.ExtractBodyRegion(res.HTML), res.CSS)
}

// HashPassword returns a bcrypt hash for ui.password_hash.
func HashPassword(password string) (string, error) { return auth.HashPassword(password, 0) }
