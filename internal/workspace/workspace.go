// Package workspace manages the directory that holds cloned repositories.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loykin/railspreview/internal/runner"
)

var (
	ErrNotFound    = errors.New("repository not found")
	ErrInvalidName = errors.New("invalid repository name: allowed [A-Za-z0-9._-], no leading '.' and no '..'")
)

// CloneResult is returned by Clone for display.
type CloneResult struct {
	Message string   `json:"message"`
	Repo    string   `json:"repo,omitempty"`
	Repos   []string `json:"repos"`
	Error   string   `json:"error,omitempty"`
}

// Workspace is a directory of cloned repositories.
type Workspace struct {
	root   string
	git    string
	runner runner.Runner
	log    *slog.Logger
}

// New returns a Workspace rooted at root. The root is made absolute but not
// created until the first clone.
func New(root string, r runner.Runner, log *slog.Logger) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if r == nil {
		r = runner.Exec{}
	}
	return &Workspace{root: abs, git: "git", runner: r, log: log}, nil
}

// Root is the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Clone replaces any existing checkout named after the URL with a fresh
// `git clone`. Interactive credential prompts are disabled.
func (w *Workspace) Clone(ctx context.Context, url string) CloneResult {
	name := RepoName(url)
	if !IsSafeName(name) {
		w.log.Error("refusing to clone", "url", url, "name", name)
		return w.result(CloneResult{Message: "clone failed", Error: fmt.Sprintf("%s: %q", ErrInvalidName, name)})
	}
	if err := os.MkdirAll(w.root, 0o750); err != nil {
		return w.result(CloneResult{Message: "clone failed", Error: err.Error()})
	}
	target := filepath.Join(w.root, name)
	if filepath.Dir(target) != filepath.Clean(w.root) || filepath.Base(target) != name {
		w.log.Error("refusing to clone outside the workspace", "url", url, "dir", target)
		return w.result(CloneResult{Message: "clone failed", Error: fmt.Sprintf("%s: %q", ErrInvalidName, name)})
	}
	if _, err := os.Stat(target); err == nil {
		w.log.Info("removing existing checkout", "dir", target)
		if err := os.RemoveAll(target); err != nil {
			return w.result(CloneResult{Message: "clone failed", Error: err.Error()})
		}
	}

	cmd := runner.Command{
		Name: w.git,
		Args: []string{"clone", url, target},
		Dir:  w.root,
		Env:  []string{"GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=", "SSH_ASKPASS="},
	}
	w.log.Info("cloning repository", "url", url, "dir", target)
	res := w.runner.Run(ctx, cmd)
	if !res.OK() {
		msg := strings.TrimSpace(res.Stderr)
		if res.Err != nil {
			msg = res.Err.Error()
		}
		w.log.Error("git clone failed", "url", url, "exit", res.ExitStatus, "stderr", msg)
		return w.result(CloneResult{Message: "clone failed", Repo: name, Error: msg})
	}
	return w.result(CloneResult{Message: "repository cloned", Repo: name})
}

func (w *Workspace) result(r CloneResult) CloneResult {
	repos, err := w.List()
	if err != nil && r.Error == "" {
		r.Error = err.Error()
	}
	r.Repos = repos
	return r
}

// List returns the names of the top-level directories, sorted. A missing
// workspace yields an empty list.
func (w *Workspace) List() ([]string, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	repos := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			repos = append(repos, e.Name())
		}
	}
	sort.Strings(repos)
	return repos, nil
}

// Path resolves name to the absolute checkout directory.
func (w *Workspace) Path(name string) (string, error) {
	if !IsSafeName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p := filepath.Join(w.root, name)
	fi, err := os.Stat(p)
	if err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// RepoName derives the checkout directory from a clone URL: the last path
// segment with a trailing ".git" removed. scp-style URLs are supported.
func RepoName(url string) string {
	u := strings.TrimRight(strings.TrimSpace(url), "/")
	if i := strings.LastIndexAny(u, "/:"); i >= 0 {
		u = u[i+1:]
	}
	return strings.TrimSuffix(u, ".git")
}

// IsSafeName validates repository names used as directory names.
// Allowed characters: A-Z a-z 0-9 . _ - with no leading "." and no "..".
func IsSafeName(s string) bool {
	if s == "" || strings.HasPrefix(s, ".") || strings.Contains(s, "..") {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}
