package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestExecCapturesStreams(t *testing.T) {
	requireUnix(t)
	res := Exec{}.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo out; echo err 1>&2; exit 3"}})
	if res.ExitStatus != 3 || res.Err != nil {
		t.Fatalf("expected exit 3 without start error, got %+v", res)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("streams mixed up: %+v", res)
	}
	if res.OK() {
		t.Fatalf("non-zero exit must not be OK")
	}
}

func TestExecWorkDirAndEnv(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Gemfile"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := Exec{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "ls; echo $RP_TEST"},
		Dir:  dir,
		Env:  []string{"RP_TEST=hello"},
	})
	if !res.OK() {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if !strings.Contains(res.Stdout, "Gemfile") || !strings.Contains(res.Stdout, "hello") {
		t.Fatalf("dir/env not applied: %q", res.Stdout)
	}
}

func TestExecMissingBinary(t *testing.T) {
	res := Exec{}.Run(context.Background(), Command{Name: "__definitely_not_exists__"})
	if res.ExitStatus != -1 || res.Err == nil {
		t.Fatalf("expected start failure, got %+v", res)
	}
}

func TestExecTimeout(t *testing.T) {
	requireUnix(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := Exec{}.Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	if res.ExitStatus != 124 || res.Err == nil {
		t.Fatalf("expected timeout result, got %+v", res)
	}
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "rails", Args: []string{"db:create"}}
	if c.String() != "rails db:create" {
		t.Fatalf("got %q", c.String())
	}
}
