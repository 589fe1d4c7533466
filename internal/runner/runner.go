// Package runner executes external tools (git, gem, bundle, rails) and
// captures their output for the caller to react to.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// Command is a single external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the current environment
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is produced by every invocation and discarded once the caller has
// decided on a follow-up action.
type Result struct {
	ExitStatus int
	Stdout     string
	Stderr     string
	// Err is set when the command could not be started or was interrupted.
	// A plain non-zero exit leaves Err nil.
	Err error
}

// OK reports a zero exit with no start error.
func (r Result) OK() bool { return r.ExitStatus == 0 && r.Err == nil }

// Runner runs commands. Implementations must be safe for sequential reuse.
type Runner interface {
	Run(ctx context.Context, c Command) Result
}

// Exec runs commands with os/exec.
type Exec struct{}

func (Exec) Run(ctx context.Context, c Command) Result {
	// #nosec G204
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}
	var ee *exec.ExitError
	switch {
	case errors.As(err, &ee) && ctx.Err() == nil:
		res.ExitStatus = ee.ExitCode()
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitStatus = 124
		res.Err = ctx.Err()
	default:
		res.ExitStatus = -1
		res.Err = err
	}
	return res
}
