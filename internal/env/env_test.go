package env

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.env")
	second := filepath.Join(dir, "b.env")
	_ = os.WriteFile(first, []byte("# rails\nRAILS_ENV=development\nexport DB_HOST='db.local'\nPORT_HINT=1\n"), 0o600)
	_ = os.WriteFile(second, []byte("PORT_HINT=2\n\n"), 0o600)
	t.Setenv("RP_TEST_HOME", "/home/dev")

	got, err := Build([]string{first, second}, []string{
		"DATABASE_URL=postgres://${DB_HOST}/app",
		"CACHE=${RP_TEST_HOME}/cache",
		"RAILS_ENV=test",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"CACHE=/home/dev/cache",
		"DATABASE_URL=postgres://db.local/app",
		"DB_HOST=db.local",
		"PORT_HINT=2",
		"RAILS_ENV=test",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v\nwant %v", got, want)
	}
}

func TestBuildErrors(t *testing.T) {
	if _, err := Build([]string{filepath.Join(t.TempDir(), "missing.env")}, nil); err == nil {
		t.Fatalf("expected missing file error")
	}
	if _, err := Build(nil, []string{"NOEQUALS"}); err == nil {
		t.Fatalf("expected invalid entry error")
	}
	bad := filepath.Join(t.TempDir(), "bad.env")
	_ = os.WriteFile(bad, []byte("OK=1\njust words\n"), 0o600)
	if _, err := LoadFile(bad); err == nil {
		t.Fatalf("expected line error")
	}
}

func TestBuildEmpty(t *testing.T) {
	got, err := Build(nil, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v %v", got, err)
	}
}
