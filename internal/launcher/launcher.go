// Package launcher runs the launch sequence for a cloned Rails app: port
// guard, provisioning, detached server spawn, readiness polling, home route
// resolution and content fetch. Every outcome becomes a LaunchResult.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loykin/railspreview/internal/detector"
	"github.com/loykin/railspreview/internal/history"
	"github.com/loykin/railspreview/internal/logger"
	"github.com/loykin/railspreview/internal/metrics"
	"github.com/loykin/railspreview/internal/process"
	"github.com/loykin/railspreview/internal/provision"
	"github.com/loykin/railspreview/internal/readiness"
	"github.com/loykin/railspreview/internal/routes"
	"github.com/loykin/railspreview/internal/scrape"
)

// Kind classifies a failed launch.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindToolFailure  Kind = "tool_failure"
	KindNetwork      Kind = "network"
	KindParseMiss    Kind = "parse_miss"
	KindTimeout      Kind = "timeout"
	KindPortInUse    Kind = "port_in_use"
	KindServerExited Kind = "server_exited"
	KindCancelled    Kind = "cancelled"
	KindBusy         Kind = "busy"
)

var (
	ErrLaunchInProgress = errors.New("a launch is already in progress")
	ErrPortInUse        = errors.New("port is already in use")
	ErrRouteNotFound    = errors.New("failed to resolve the home page route")
	ErrNoGemfile        = errors.New("repository has no Gemfile")
)

// LaunchResult is produced once per launch attempt and not modified after.
type LaunchResult struct {
	Message            string        `json:"message"`
	HTML               string        `json:"html,omitempty"`
	CSS                string        `json:"css,omitempty"`
	URL                string        `json:"url,omitempty"`
	Error              string        `json:"error,omitempty"`
	Kind               Kind          `json:"kind,omitempty"`
	Readiness          string        `json:"readiness,omitempty"`
	Repo               string        `json:"repo"`
	PID                int           `json:"pid,omitempty"`
	Status             int           `json:"status,omitempty"`
	Attempts           int           `json:"attempts,omitempty"`
	SkippedStylesheets []string      `json:"skipped_stylesheets,omitempty"`
	Duration           time.Duration `json:"duration"`
}

// OK reports whether the launch reached the fetch stage.
func (r LaunchResult) OK() bool { return r.Kind == "" }

// StopResult is produced by Stop.
type StopResult struct {
	Message string `json:"message"`
	Found   bool   `json:"found"`
	PIDs    []int  `json:"pids,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Collaborators. The concrete packages satisfy these; tests use fakes.
type (
	Workspace interface {
		Path(name string) (string, error)
	}
	Provisioner interface {
		Provision(ctx context.Context, repoPath string) ([]provision.StepResult, error)
	}
	Fetcher interface {
		Fetch(ctx context.Context, url string, credentialsRequired bool) (scrape.Page, error)
	}
	Server interface {
		PID() int
		Exited() <-chan struct{}
		Kill() error
	}
	Spawner interface {
		Spawn(spec process.Spec) (Server, error)
	}
	Killer interface {
		Kill(pid int) error
	}
)

// KillFunc adapts a function to Killer.
type KillFunc func(pid int) error

func (f KillFunc) Kill(pid int) error { return f(pid) }

// ProcessSpawner starts servers with the process package.
type ProcessSpawner struct {
	Log    logger.Config
	Logger *slog.Logger
}

func (s ProcessSpawner) Spawn(spec process.Spec) (Server, error) {
	p, err := process.Start(spec, s.Log, s.Logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options configures a Launcher.
type Options struct {
	Host         string // host used in URLs, e.g. localhost
	Bind         string // address passed to -b
	Port         int
	Command      string // server command, args -p/-b are appended
	PollInterval time.Duration
	ReadyTimeout time.Duration // zero polls until ctx is done
	PIDFile      string
	LogDir       string
	Env          []string // KEY=VALUE pairs added to the server environment
	StrictRoutes bool
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Bind == "" {
		o.Bind = "127.0.0.1"
	}
	if o.Port == 0 {
		o.Port = 4000
	}
	if o.Command == "" {
		o.Command = "rails server"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = readiness.DefaultInterval
	}
	return o
}

// Deps wires the collaborators. Workspace, Provisioner and Fetcher are
// required; the rest default to the real implementations.
type Deps struct {
	Workspace   Workspace
	Provisioner Provisioner
	Fetcher     Fetcher
	Detector    detector.PortDetector
	Spawner     Spawner
	Killer      Killer
	History     *history.Recorder
	// PortFree reports an error when the port cannot be bound.
	PortFree func(bind string, port int) error
}

// Launcher serializes launches; at most one sequence is in flight.
type Launcher struct {
	opts   Options
	deps   Deps
	log    *slog.Logger
	poller *readiness.Poller
	routes routes.Resolver

	launching sync.Mutex

	mu      sync.Mutex
	current Server
	repo    string
}

func New(opts Options, deps Deps, log *slog.Logger) *Launcher {
	opts = opts.withDefaults()
	if log == nil {
		log = logger.Discard()
	}
	if deps.Detector == nil {
		deps.Detector = detector.NetDetector{}
	}
	if deps.Spawner == nil {
		deps.Spawner = ProcessSpawner{Logger: log}
	}
	if deps.Killer == nil {
		deps.Killer = KillFunc(process.Kill)
	}
	if deps.PortFree == nil {
		deps.PortFree = portFree
	}
	return &Launcher{
		opts: opts,
		deps: deps,
		log:  log,
		poller: &readiness.Poller{
			Interval: opts.PollInterval,
			Timeout:  opts.ReadyTimeout,
			Log:      log,
		},
		routes: routes.Resolver{Strict: opts.StrictRoutes},
	}
}

// Options returns the effective options.
func (l *Launcher) Options() Options { return l.opts }

// BaseURL is the address the spawned server answers on.
func (l *Launcher) BaseURL() string {
	return "http://" + net.JoinHostPort(l.opts.Host, strconv.Itoa(l.opts.Port))
}

// Launch runs the whole sequence for repo. A concurrent call returns at once
// with Kind busy.
func (l *Launcher) Launch(ctx context.Context, repo string) LaunchResult {
	if !l.launching.TryLock() {
		return LaunchResult{Repo: repo, Message: "launch failed", Kind: KindBusy, Error: ErrLaunchInProgress.Error()}
	}
	defer l.launching.Unlock()

	start := time.Now()
	res := l.launch(ctx, repo)
	res.Duration = time.Since(start)
	if res.OK() {
		l.log.Info("launch finished", "repo", repo, "url", res.URL, "readiness", res.Readiness, "duration", res.Duration)
	} else {
		l.log.Error("launch failed", "repo", repo, "kind", res.Kind, "error", res.Error, "duration", res.Duration)
	}
	metrics.ObserveLaunch(res.Readiness, string(res.Kind), res.Duration.Seconds(), res.Attempts)
	l.deps.History.Record(context.WithoutCancel(ctx), history.Event{Type: history.EventLaunch, Record: history.Record{
		Repo:       repo,
		PID:        res.PID,
		Port:       l.opts.Port,
		URL:        res.URL,
		Readiness:  res.Readiness,
		Kind:       string(res.Kind),
		Message:    res.Message,
		Error:      res.Error,
		Attempts:   res.Attempts,
		DurationMS: res.Duration.Milliseconds(),
	}})
	return res
}

func (l *Launcher) launch(ctx context.Context, repo string) LaunchResult {
	res := LaunchResult{Repo: repo}
	fail := func(k Kind, err error) LaunchResult {
		res.Message = "launch failed"
		res.Kind = k
		res.Error = err.Error()
		return res
	}

	dir, err := l.deps.Workspace.Path(repo)
	if err != nil {
		return fail(KindNotFound, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Gemfile")); err != nil {
		return fail(KindNotFound, fmt.Errorf("%w: %s", ErrNoGemfile, repo))
	}

	if err := l.guardPort(ctx); err != nil {
		return fail(KindPortInUse, err)
	}

	steps, err := l.deps.Provisioner.Provision(ctx, dir)
	for _, s := range steps {
		if !s.Skipped && !s.Result.OK() {
			metrics.IncProvisionFailure(s.Step)
		}
	}
	// under the continue policy a cancelled provisioning run returns no error
	if cerr := ctx.Err(); cerr != nil {
		return fail(KindCancelled, cerr)
	}
	if err != nil {
		return fail(KindToolFailure, err)
	}

	spec := process.Spec{
		Name:    repo,
		Command: l.opts.Command,
		Args:    []string{"-p", strconv.Itoa(l.opts.Port), "-b", l.opts.Bind},
		WorkDir: dir,
		PIDFile: l.opts.PIDFile,
		LogDir:  l.opts.LogDir,
		Env:     l.opts.Env,
	}
	srv, err := l.deps.Spawner.Spawn(spec)
	if err != nil {
		return fail(KindToolFailure, fmt.Errorf("start server: %w", err))
	}
	res.PID = srv.PID()
	l.track(repo, srv)

	base := l.BaseURL()
	ready, err := l.poller.Wait(ctx, base+"/", srv.Exited())
	res.Attempts = ready.Attempts
	if err != nil {
		switch {
		case errors.Is(err, readiness.ErrServerExited):
			return fail(KindServerExited, err)
		case errors.Is(err, readiness.ErrReadinessTimeout):
			l.abandon(srv)
			return fail(KindTimeout, err)
		default:
			l.abandon(srv)
			return fail(KindCancelled, err)
		}
	}
	res.Readiness = ready.Readiness.String()

	home, ok, err := l.routes.ResolveFile(filepath.Join(dir, "config", "routes.rb"))
	if err != nil {
		return fail(KindParseMiss, fmt.Errorf("%w: %v", ErrRouteNotFound, err))
	}
	if !ok {
		return fail(KindParseMiss, ErrRouteNotFound)
	}
	res.URL = base + home

	page, err := l.deps.Fetcher.Fetch(ctx, res.URL, ready.Readiness.CredentialsRequired())
	if err != nil {
		return fail(KindNetwork, err)
	}
	res.Status = page.Status
	res.HTML = page.HTML
	res.CSS = page.CSS
	res.SkippedStylesheets = page.SkippedStylesheets
	res.Message = "server started"
	return res
}

// guardPort refuses to launch while anything holds the port.
func (l *Launcher) guardPort(ctx context.Context) error {
	pids, err := l.deps.Detector.PIDs(ctx, l.opts.Port)
	if err != nil {
		l.log.Warn("port inspection failed", "detector", l.deps.Detector.Describe(), "error", err)
	} else if len(pids) > 0 {
		return fmt.Errorf("%w: %d held by pid %s", ErrPortInUse, l.opts.Port, joinInts(pids))
	}
	if err := l.deps.PortFree(l.opts.Bind, l.opts.Port); err != nil {
		return fmt.Errorf("%w: %d: %v", ErrPortInUse, l.opts.Port, err)
	}
	return nil
}

// abandon kills a server that never became ready so it does not keep the
// port.
func (l *Launcher) abandon(srv Server) {
	if err := srv.Kill(); err != nil {
		l.log.Warn("failed to kill unready server", "pid", srv.PID(), "error", err)
	}
}

func (l *Launcher) track(repo string, srv Server) {
	l.mu.Lock()
	l.current, l.repo = srv, repo
	l.mu.Unlock()
}

// Stop sends SIGKILL to every process bound to the port.
func (l *Launcher) Stop(ctx context.Context) StopResult {
	res := l.stop(ctx)
	metrics.IncStop(res.Found)
	l.deps.History.Record(context.WithoutCancel(ctx), history.Event{Type: history.EventStop, Record: history.Record{
		Port:    l.opts.Port,
		Message: res.Message,
		Error:   res.Error,
		PID:     firstOr(res.PIDs, 0),
	}})
	return res
}

func (l *Launcher) stop(ctx context.Context) StopResult {
	pids, err := l.deps.Detector.PIDs(ctx, l.opts.Port)
	if err != nil {
		l.log.Error("port inspection failed", "port", l.opts.Port, "error", err)
		return StopResult{Message: "failed to inspect port", Error: err.Error()}
	}
	if len(pids) == 0 {
		l.log.Info("server process not found", "port", l.opts.Port)
		return StopResult{Message: "server process not found"}
	}
	var errs []error
	for _, pid := range pids {
		l.log.Info("killing server process", "pid", pid, "port", l.opts.Port)
		if err := l.deps.Killer.Kill(pid); err != nil {
			errs = append(errs, fmt.Errorf("kill %d: %w", pid, err))
		}
	}
	if l.opts.PIDFile != "" {
		_ = os.Remove(l.opts.PIDFile)
	}
	res := StopResult{Message: "server stopped", Found: true, PIDs: pids}
	if err := errors.Join(errs...); err != nil {
		res.Message = "failed to stop server"
		res.Error = err.Error()
	}
	return res
}

// Status describes the server currently associated with this launcher.
type Status struct {
	Running bool   `json:"running"`
	Repo    string `json:"repo,omitempty"`
	PID     int    `json:"pid,omitempty"`
	PIDs    []int  `json:"port_pids,omitempty"`
	URL     string `json:"url"`
	Error   string `json:"error,omitempty"`
}

// Status combines the tracked server, the pidfile left by an earlier run and
// the port owners.
func (l *Launcher) Status(ctx context.Context) Status {
	st := Status{URL: l.BaseURL()}
	st.Repo, st.PID = l.ownedServer(ctx)
	pids, err := l.deps.Detector.PIDs(ctx, l.opts.Port)
	if err != nil {
		st.Error = err.Error()
	}
	st.PIDs = pids
	st.Running = st.PID > 0 || len(pids) > 0
	return st
}

// CurrentPID returns the PID of the server started by this tool, or 0.
func (l *Launcher) CurrentPID() int {
	_, pid := l.ownedServer(context.Background())
	return pid
}

func (l *Launcher) ownedServer(ctx context.Context) (string, int) {
	l.mu.Lock()
	cur, repo := l.current, l.repo
	l.mu.Unlock()
	if cur != nil {
		select {
		case <-cur.Exited():
		default:
			return repo, cur.PID()
		}
	}
	if l.opts.PIDFile == "" {
		return "", 0
	}
	pid, spec, err := process.ReadPIDFile(l.opts.PIDFile)
	if err != nil || !process.Alive(ctx, pid) {
		return "", 0
	}
	if spec != nil {
		repo = spec.Name
	}
	return repo, pid
}

func portFree(bind string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(bind, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}

func firstOr(v []int, def int) int {
	if len(v) == 0 {
		return def
	}
	return v[0]
}
