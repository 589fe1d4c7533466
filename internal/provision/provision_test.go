package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/railspreview/internal/logger"
	"github.com/loykin/railspreview/internal/runner"
)

// fakeRunner records invocations and answers from a table keyed by command line.
type fakeRunner struct {
	calls   []string
	answers map[string]runner.Result
}

func (f *fakeRunner) Run(_ context.Context, c runner.Command) runner.Result {
	f.calls = append(f.calls, c.String())
	if r, ok := f.answers[c.String()]; ok {
		return r
	}
	return runner.Result{}
}

func (f *fakeRunner) ran(cmd string) bool {
	for _, c := range f.calls {
		if c == cmd {
			return true
		}
	}
	return false
}

func writeRepo(t *testing.T, gemfile, seeds string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Gemfile"), []byte(gemfile), 0o644); err != nil {
		t.Fatal(err)
	}
	if seeds != "" {
		if err := os.MkdirAll(filepath.Join(dir, "db"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "db", "seeds.rb"), []byte(seeds), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestParseGemfile(t *testing.T) {
	content := `source "https://rubygems.org"
gem 'rails', '~> 7.0'
  gem "pg"
# gem 'commented'
   # gem "indented_comment"
group :development do
  gem 'pry-byebug'
end
gemspec
`
	got := ParseGemfile(content)
	want := []string{"rails", "pg", "pry-byebug"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestLongLinesDoNotHideLaterContent(t *testing.T) {
	long := "# " + strings.Repeat("x", 200<<10) + "\n"
	if got := ParseGemfile(long + "gem 'rails'\n"); strings.Join(got, ",") != "rails" {
		t.Fatalf("gem after a long line: got %v", got)
	}
	p := filepath.Join(t.TempDir(), "seeds.rb")
	if err := os.WriteFile(p, []byte(long+"User.create!\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !HasSubstantiveLines(p) {
		t.Fatalf("seed line after a long comment was not seen")
	}
}

func TestHasSubstantiveLines(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]bool{
		"# comment\n# another\n":          false,
		"\n   \n":                         false,
		"# header\nUser.create!(name: 1)": true,
		"  Post.create!\n":                true,
	}
	i := 0
	for content, want := range cases {
		i++
		p := filepath.Join(dir, "seeds"+string(rune('a'+i))+".rb")
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if got := HasSubstantiveLines(p); got != want {
			t.Fatalf("%q: got %v want %v", content, got, want)
		}
	}
	if HasSubstantiveLines(filepath.Join(dir, "missing.rb")) {
		t.Fatalf("missing file must not count as substantive")
	}
}

func TestProvision_FullSequence(t *testing.T) {
	repo := writeRepo(t, "gem 'rails'\ngem 'devise'\n", "User.create!(name: 'a')\n")
	fr := &fakeRunner{answers: map[string]runner.Result{
		"gem list -i rails":  {Stdout: "true\n", ExitStatus: 0},
		"gem list -i devise": {Stdout: "false\n", ExitStatus: 1},
	}}
	p := New(fr, logger.Discard(), Tools{}, nil)
	steps, err := p.Provision(context.Background(), repo)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	want := []string{
		"gem list -i rails",
		"gem list -i devise",
		"gem install devise",
		"bundle install",
		"rails db:create",
		"rails db:migrate",
		"rails db:seed",
	}
	if strings.Join(fr.calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls:\n got %v\nwant %v", fr.calls, want)
	}
	if fr.ran("gem install rails") {
		t.Fatalf("installed gem must not be reinstalled")
	}
	if last := steps[len(steps)-1]; last.Step != StepDBSeed || last.Skipped {
		t.Fatalf("expected executed seed step, got %+v", last)
	}
}

func TestProvision_CommentOnlySeedsSkipped(t *testing.T) {
	repo := writeRepo(t, "gem 'rails'\n", "# This file should contain seeds\n# Example:\n")
	fr := &fakeRunner{answers: map[string]runner.Result{"gem list -i rails": {Stdout: "true"}}}
	steps, err := New(fr, logger.Discard(), Tools{}, nil).Provision(context.Background(), repo)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if fr.ran("rails db:seed") {
		t.Fatalf("seed must not run for a comment-only seeds file")
	}
	if last := steps[len(steps)-1]; !last.Skipped {
		t.Fatalf("expected skipped seed step, got %+v", last)
	}
}

func TestProvision_NoSeedsFile(t *testing.T) {
	repo := writeRepo(t, "", "")
	fr := &fakeRunner{}
	if _, err := New(fr, logger.Discard(), Tools{}, nil).Provision(context.Background(), repo); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if fr.ran("rails db:seed") {
		t.Fatalf("seed must not run without seeds file")
	}
}

func TestProvision_DatabaseAlreadyExistsTolerated(t *testing.T) {
	repo := writeRepo(t, "", "")
	fr := &fakeRunner{answers: map[string]runner.Result{
		"rails db:create": {ExitStatus: 1, Stderr: "Database 'app_development' already exists"},
	}}
	p := New(fr, logger.Discard(), Tools{}, map[string]Policy{StepDBCreate: Abort})
	steps, err := p.Provision(context.Background(), repo)
	if err != nil {
		t.Fatalf("already exists must be tolerated even under abort policy: %v", err)
	}
	if !fr.ran("rails db:migrate") {
		t.Fatalf("migrate should follow db:create")
	}
	found := false
	for _, s := range steps {
		if s.Step == StepDBCreate && s.Note != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("db_create step should carry an already-exists note: %+v", steps)
	}
}

func TestProvision_ContinuePolicyKeepsGoing(t *testing.T) {
	repo := writeRepo(t, "", "")
	fr := &fakeRunner{answers: map[string]runner.Result{
		"bundle install": {ExitStatus: 5, Stderr: "Could not find gem"},
	}}
	if _, err := New(fr, logger.Discard(), Tools{}, nil).Provision(context.Background(), repo); err != nil {
		t.Fatalf("default policy must continue: %v", err)
	}
	if !fr.ran("rails db:migrate") {
		t.Fatalf("sequence should continue after bundle failure")
	}
}

func TestProvision_AbortPolicyStops(t *testing.T) {
	repo := writeRepo(t, "", "")
	fr := &fakeRunner{answers: map[string]runner.Result{
		"bundle install": {ExitStatus: 5},
	}}
	p := New(fr, logger.Discard(), Tools{}, map[string]Policy{StepBundle: Abort})
	_, err := p.Provision(context.Background(), repo)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("expected ErrStepFailed, got %v", err)
	}
	if fr.ran("rails db:create") {
		t.Fatalf("sequence must stop after aborting step")
	}
}

func TestProvision_MissingGemfile(t *testing.T) {
	_, err := New(&fakeRunner{}, logger.Discard(), Tools{}, nil).Provision(context.Background(), t.TempDir())
	if err == nil {
		t.Fatalf("expected error for missing Gemfile")
	}
}

func TestProvision_CustomTools(t *testing.T) {
	repo := writeRepo(t, "", "")
	fr := &fakeRunner{}
	p := New(fr, logger.Discard(), Tools{Bundle: "bin/bundle", Rails: "bin/rails"}, nil)
	if _, err := p.Provision(context.Background(), repo); err != nil {
		t.Fatal(err)
	}
	if !fr.ran("bin/bundle install") || !fr.ran("bin/rails db:migrate") {
		t.Fatalf("custom tools not used: %v", fr.calls)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(" Abort "); err != nil || p != Abort {
		t.Fatalf("got %v %v", p, err)
	}
	if _, err := ParsePolicy("retry"); err == nil {
		t.Fatalf("expected error")
	}
	if !IsKnownStep(StepBundle) || IsKnownStep("deploy") {
		t.Fatalf("IsKnownStep mismatch")
	}
}
