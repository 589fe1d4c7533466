// Package process spawns the development server detached from the caller,
// records its PID and reaps it from a monitor goroutine.
package process

import (
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/railspreview/internal/logger"
)

// Status is a point-in-time view of a spawned server.
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitErr   error     `json:"exit_error,omitempty"`
}

// Process is a spawned server. It keeps running after Start returns; the
// Exited channel closes once the monitor has reaped it.
type Process struct {
	spec   Spec
	cmd    *exec.Cmd
	log    *slog.Logger
	exited chan struct{}

	mu     sync.Mutex
	status Status
}

// Start launches spec in its own session. Output goes to files in
// spec.LogDir (rotation limits from lc) or is discarded. The child holds the
// files itself, so it keeps logging after the caller exits.
func Start(spec Spec, lc logger.Config, log *slog.Logger) (*Process, error) {
	if log == nil {
		log = logger.Discard()
	}
	p := &Process{spec: spec, log: log, exited: make(chan struct{})}
	cmd := spec.BuildCommand()
	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(), spec.Env...)
	configureSysProcAttr(cmd)

	outF, errF, err := lc.ServerFiles(spec.LogDir, spec.Name)
	if err != nil {
		return nil, err
	}
	if outF != nil {
		cmd.Stdout, cmd.Stderr = outF, errF
	}
	err = cmd.Start()
	if outF != nil {
		_ = outF.Close()
		_ = errF.Close()
	}
	if err != nil {
		return nil, err
	}
	p.cmd = cmd
	p.status = Status{Name: spec.Name, Running: true, PID: cmd.Process.Pid, StartedAt: time.Now()}
	if spec.PIDFile != "" {
		if err := WritePIDFile(spec.PIDFile, cmd.Process.Pid, spec); err != nil {
			log.Warn("failed to write pid file", "path", spec.PIDFile, "error", err)
		}
	}
	log.Info("server process started", "name", spec.Name, "pid", cmd.Process.Pid, "cmd", cmd.String(), "dir", spec.WorkDir)
	go p.monitor()
	return p, nil
}

func (p *Process) monitor() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.status.Running = false
	p.status.StoppedAt = time.Now()
	p.status.ExitErr = err
	p.mu.Unlock()
	if p.spec.PIDFile != "" {
		if pid, _, rerr := ReadPIDFile(p.spec.PIDFile); rerr == nil && pid == p.status.PID {
			_ = os.Remove(p.spec.PIDFile)
		}
	}
	p.log.Info("server process exited", "name", p.spec.Name, "pid", p.status.PID, "error", err)
	close(p.exited)
}

// Exited is closed once the process has exited and been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// PID of the spawned process.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.PID
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Kill sends SIGKILL and waits briefly for the monitor to reap.
func (p *Process) Kill() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	if err := Kill(p.PID()); err != nil {
		return err
	}
	select {
	case <-p.exited:
	case <-time.After(2 * time.Second):
	}
	return nil
}
