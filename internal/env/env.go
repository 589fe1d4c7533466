// Package env composes the extra environment handed to the spawned server
// from env files and inline KEY=VALUE entries.
package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Var maps names to values.
type Var map[string]string

// Build loads files in order, then applies vars, later entries overriding
// earlier ones. ${NAME} references are expanded against the composed set
// first and the process environment second. The result is sorted KEY=VALUE
// pairs suitable for appending to os.Environ().
func Build(files []string, vars []string) ([]string, error) {
	m := make(Var)
	for _, f := range files {
		fv, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		for k, v := range fv {
			m[k] = v
		}
	}
	for _, kv := range vars {
		k, v, ok := split(kv)
		if !ok {
			return nil, fmt.Errorf("invalid env entry %q: want KEY=VALUE", kv)
		}
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out, nil
}

// LoadFile parses a .env file with KEY=VALUE lines. Blank lines and lines
// starting with # are ignored, as is a leading "export ". Values wrapped in
// a matching pair of quotes are unquoted.
func LoadFile(path string) (Var, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(Var)
	for n, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := split(line)
		if !ok {
			return nil, fmt.Errorf("%s:%d: invalid line", path, n+1)
		}
		m[k] = unquote(v)
	}
	return m, nil
}

func split(kv string) (string, string, bool) {
	k, v, ok := strings.Cut(kv, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", false
	}
	return k, strings.TrimSpace(v), true
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// expand replaces ${NAME} once; unknown names become empty.
func expand(s string, m Var) string {
	return os.Expand(s, func(name string) string {
		if v, ok := m[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
}
