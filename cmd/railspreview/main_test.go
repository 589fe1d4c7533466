package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/railspreview"
)

func writeConfig(t *testing.T, workspace, extra string) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "railspreview.toml")
	data := "workspace = \"" + filepath.ToSlash(workspace) + "\"\n" +
		"[log]\nlevel = \"error\"\nno_color = true\n" +
		"[server]\npid_file = \"\"\nlog_dir = \"\"\n" + extra
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return file
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHelp(t *testing.T) {
	out, err := run(t, "--help")
	if err != nil {
		t.Fatalf("help should succeed: %v", err)
	}
	for _, sub := range []string{"clone", "start", "stop", "status", "serve", "history"} {
		if !strings.Contains(out, sub) {
			t.Fatalf("help missing %q: %s", sub, out)
		}
	}
}

func TestListRepos(t *testing.T) {
	ws := t.TempDir()
	for _, name := range []string{"shop", "blog"} {
		if err := os.MkdirAll(filepath.Join(ws, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	out, err := run(t, "list", "--config", writeConfig(t, ws, ""))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out != "blog\nshop\n" {
		t.Fatalf("list output = %q", out)
	}
}

func TestStartUnknownRepoFails(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "")
	out, err := run(t, "start", "ghost", "--config", cfg)
	if err == nil {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(out, "launch failed") || !strings.Contains(out, "not_found") {
		t.Fatalf("output = %q", out)
	}
}

func TestHistoryFromSQLite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	cfg := writeConfig(t, t.TempDir(), "[history]\ndsn = \"sqlite://"+filepath.ToSlash(db)+"\"\n")
	if _, err := run(t, "start", "ghost", "--config", cfg); err == nil {
		t.Fatalf("expected launch failure")
	}
	out, err := run(t, "history", "--config", cfg, "--limit", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "launch") || !strings.Contains(out, "ghost") || !strings.Contains(out, "not_found") {
		t.Fatalf("history output = %q", out)
	}
}

func TestHistoryWithoutSink(t *testing.T) {
	out, err := run(t, "history", "--config", writeConfig(t, t.TempDir(), ""))
	if err != nil || strings.TrimSpace(out) != "no history" {
		t.Fatalf("history = %q, %v", out, err)
	}
}

func TestBadConfigIsReported(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "port = 0\n")
	_, err := run(t, "list", "--config", cfg)
	if err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Fatalf("expected server.port error, got %v", err)
	}
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "hash-password", "--password", "hunter2")
	if err != nil || !strings.HasPrefix(out, "$2") {
		t.Fatalf("hash = %q, %v", out, err)
	}

	root := buildRoot()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetIn(strings.NewReader("from-stdin\n"))
	root.SetArgs([]string{"hash-password"})
	if err := root.Execute(); err != nil || !strings.HasPrefix(buf.String(), "$2") {
		t.Fatalf("stdin hash = %q, %v", buf.String(), err)
	}
}

func TestRemoteListAndStatus(t *testing.T) {
	ws := t.TempDir()
	if err := os.MkdirAll(filepath.Join(ws, "blog"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, err := railspreview.LoadConfig(writeConfig(t, ws, ""))
	if err != nil {
		t.Fatal(err)
	}
	app, err := railspreview.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = app.Close() }()
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	out, err := run(t, "list", "--api-url", srv.URL+"/api")
	if err != nil || out != "blog\n" {
		t.Fatalf("remote list = %q, %v", out, err)
	}
	out, err = run(t, "status", "--json", "--api-url", srv.URL+"/api")
	if err != nil || !strings.Contains(out, `"url"`) {
		t.Fatalf("remote status = %q, %v", out, err)
	}
}

func TestRemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()
	if _, err := run(t, "list", "--api-url", url+"/api"); err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}

func TestPrintEvents(t *testing.T) {
	var buf bytes.Buffer
	printEvents(&buf, []railspreview.Event{{
		Type:       "stop",
		OccurredAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}})
	if !strings.Contains(buf.String(), "stop") {
		t.Fatalf("events = %q", buf.String())
	}
}
