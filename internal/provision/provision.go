// Package provision installs a Rails app's gems and prepares its database
// before the development server is started.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/railspreview/internal/runner"
)

// Policy decides what a failed step does to the rest of the sequence.
type Policy string

const (
	Continue Policy = "continue"
	Abort    Policy = "abort"
)

// Step names, also used as keys of the policy table.
const (
	StepGemInstall = "gem_install"
	StepBundle     = "bundle_install"
	StepDBCreate   = "db_create"
	StepDBMigrate  = "db_migrate"
	StepDBSeed     = "db_seed"
)

// Steps lists the sequence in execution order.
var Steps = []string{StepGemInstall, StepBundle, StepDBCreate, StepDBMigrate, StepDBSeed}

// ErrStepFailed wraps the failure of a step whose policy is Abort.
var ErrStepFailed = errors.New("provision step failed")

// Tools names the binaries invoked. Empty fields fall back to the defaults.
type Tools struct {
	Gem    string
	Bundle string
	Rails  string
}

func (t Tools) withDefaults() Tools {
	if t.Gem == "" {
		t.Gem = "gem"
	}
	if t.Bundle == "" {
		t.Bundle = "bundle"
	}
	if t.Rails == "" {
		t.Rails = "rails"
	}
	return t
}

// StepResult records one executed (or skipped) command.
type StepResult struct {
	Step    string
	Command string
	Result  runner.Result
	Skipped bool
	Note    string
}

// Provisioner runs the dependency and database steps for a repository.
type Provisioner struct {
	run    runner.Runner
	log    *slog.Logger
	tools  Tools
	policy map[string]Policy
}

// New builds a Provisioner. policy overrides the default Continue policy per step.
func New(r runner.Runner, log *slog.Logger, tools Tools, policy map[string]Policy) *Provisioner {
	p := &Provisioner{run: r, log: log, tools: tools.withDefaults(), policy: map[string]Policy{}}
	for _, s := range Steps {
		p.policy[s] = Continue
	}
	for k, v := range policy {
		p.policy[k] = v
	}
	return p
}

// PolicyFor returns the effective policy of a step.
func (p *Provisioner) PolicyFor(step string) Policy {
	if v, ok := p.policy[step]; ok {
		return v
	}
	return Continue
}

// Provision runs the whole sequence in repoPath. It returns every executed
// step; the error is non-nil when the Gemfile cannot be read or a step with
// an Abort policy failed.
func (p *Provisioner) Provision(ctx context.Context, repoPath string) ([]StepResult, error) {
	var out []StepResult

	gems, err := ReadGemfile(filepath.Join(repoPath, "Gemfile"))
	if err != nil {
		return nil, fmt.Errorf("read Gemfile: %w", err)
	}
	for _, g := range gems {
		res, err := p.ensureGem(ctx, g)
		out = append(out, res...)
		if err != nil {
			return out, err
		}
	}

	sr, err := p.step(ctx, StepBundle, runner.Command{Name: p.tools.Bundle, Args: []string{"install"}, Dir: repoPath})
	out = append(out, sr)
	if err != nil {
		return out, err
	}

	sr = p.exec(ctx, StepDBCreate, runner.Command{Name: p.tools.Rails, Args: []string{"db:create"}, Dir: repoPath})
	if strings.Contains(sr.Result.Stderr, "already exists") {
		p.log.Info("database already exists", "repo", repoPath)
		sr.Note = "database already exists"
	} else if err := p.check(sr); err != nil {
		return append(out, sr), err
	}
	out = append(out, sr)

	sr, err = p.step(ctx, StepDBMigrate, runner.Command{Name: p.tools.Rails, Args: []string{"db:migrate"}, Dir: repoPath})
	out = append(out, sr)
	if err != nil {
		return out, err
	}

	seeds := filepath.Join(repoPath, "db", "seeds.rb")
	if !HasSubstantiveLines(seeds) {
		p.log.Info("no seed file or it only contains comments", "path", seeds)
		return append(out, StepResult{Step: StepDBSeed, Skipped: true, Note: "no seed data"}), nil
	}
	sr, err = p.step(ctx, StepDBSeed, runner.Command{Name: p.tools.Rails, Args: []string{"db:seed"}, Dir: repoPath})
	return append(out, sr), err
}

// ensureGem installs a gem only when `gem list -i` reports it missing.
func (p *Provisioner) ensureGem(ctx context.Context, name string) ([]StepResult, error) {
	probe := runner.Command{Name: p.tools.Gem, Args: []string{"list", "-i", name}}
	res := p.run.Run(ctx, probe)
	if !strings.Contains(res.Stdout, "false") {
		return nil, nil
	}
	p.log.Info("installing missing gem", "gem", name)
	sr, err := p.step(ctx, StepGemInstall, runner.Command{Name: p.tools.Gem, Args: []string{"install", name}})
	return []StepResult{sr}, err
}

func (p *Provisioner) step(ctx context.Context, step string, c runner.Command) (StepResult, error) {
	sr := p.exec(ctx, step, c)
	return sr, p.check(sr)
}

func (p *Provisioner) exec(ctx context.Context, step string, c runner.Command) StepResult {
	p.log.Info("running command", "step", step, "cmd", c.String())
	res := p.run.Run(ctx, c)
	if res.Stdout != "" {
		p.log.Info("command output", "step", step, "stdout", res.Stdout)
	}
	if res.Stderr != "" {
		p.log.Error("command error output", "step", step, "stderr", res.Stderr)
	}
	if res.Err != nil {
		p.log.Error("command did not run", "step", step, "cmd", c.String(), "error", res.Err)
	} else if res.ExitStatus != 0 {
		p.log.Error("command failed", "step", step, "cmd", c.String(), "exit", res.ExitStatus)
	}
	return StepResult{Step: step, Command: c.String(), Result: res}
}

func (p *Provisioner) check(sr StepResult) error {
	if sr.Result.OK() || p.PolicyFor(sr.Step) != Abort {
		return nil
	}
	if sr.Result.Err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStepFailed, sr.Command, sr.Result.Err)
	}
	return fmt.Errorf("%w: %s exited with status %d", ErrStepFailed, sr.Command, sr.Result.ExitStatus)
}

// ParsePolicy validates a policy name from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case Continue:
		return Continue, nil
	case Abort:
		return Abort, nil
	}
	return "", fmt.Errorf("unknown provision policy %q (want continue or abort)", s)
}

// IsKnownStep reports whether name is a step of the sequence.
func IsKnownStep(name string) bool {
	for _, s := range Steps {
		if s == name {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
