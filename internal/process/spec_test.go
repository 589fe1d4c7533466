package process

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBuildCommand(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
		want []string
	}{
		{"plain with args", Spec{Command: "rails server", Args: []string{"-p", "4000", "-b", "127.0.0.1"}}, []string{"rails", "server", "-p", "4000", "-b", "127.0.0.1"}},
		{"plain", Spec{Command: "  bin/dev "}, []string{"bin/dev"}},
		{"metachar", Spec{Command: "bundle exec rails s && true", Args: []string{"-p", "4000"}}, []string{"/bin/sh", "-c", "bundle exec rails s && true '-p' '4000'"}},
		{"explicit shell", Spec{Command: "sh -c 'rails s'", Args: []string{"-p", "4000"}}, []string{"/bin/sh", "-c", "rails s '-p' '4000'"}},
		{"empty", Spec{}, []string{"/bin/true"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := tc.spec.BuildCommand()
			if !reflect.DeepEqual(cmd.Args, tc.want) {
				t.Fatalf("args = %q, want %q", cmd.Args, tc.want)
			}
		})
	}
}

func TestJoinShellQuotes(t *testing.T) {
	if got := joinShell("run", []string{"it's"}); got != `run 'it'\''s'` {
		t.Fatalf("got %q", got)
	}
}

func TestReadPIDFileLegacyAndGarbage(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "legacy.pid")
	_ = os.WriteFile(legacy, []byte("1234\n"), 0o600)
	pid, spec, err := ReadPIDFile(legacy)
	if err != nil || pid != 1234 || spec != nil {
		t.Fatalf("legacy: pid=%d spec=%v err=%v", pid, spec, err)
	}

	junk := filepath.Join(dir, "junk.pid")
	_ = os.WriteFile(junk, []byte("99\n{not json"), 0o600)
	pid, spec, err = ReadPIDFile(junk)
	if err != nil || pid != 99 || spec != nil {
		t.Fatalf("junk meta: pid=%d spec=%v err=%v", pid, spec, err)
	}

	bad := filepath.Join(dir, "bad.pid")
	_ = os.WriteFile(bad, []byte("abc"), 0o600)
	if _, _, err := ReadPIDFile(bad); err == nil {
		t.Fatalf("expected error for non-numeric pid")
	}
	if _, _, err := ReadPIDFile(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestWritePIDFileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "server.pid")
	spec := Spec{Name: "shop", Command: "rails server", Args: []string{"-p", "4000"}}
	if err := WritePIDFile(path, 42, spec); err != nil {
		t.Fatal(err)
	}
	pid, got, err := ReadPIDFile(path)
	if err != nil || pid != 42 || got == nil || !reflect.DeepEqual(got.Args, spec.Args) {
		t.Fatalf("pid=%d spec=%+v err=%v", pid, got, err)
	}
}
