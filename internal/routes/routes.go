// Package routes finds the home page path of a Rails app from the text of
// its config/routes.rb.
//
// This is a text heuristic, not a Ruby parser. Two rules are tried in order
// and the first match of each rule wins:
//
//  1. a root declaration resolves to "/"
//  2. get '<path>', to: '<controller>#index' resolves to "/<path>"
//
// In the default (loose) mode rule 1 fires on the token "root" anywhere in
// the file, comments included. Strict mode ignores comment lines and only
// accepts "root" at the start of a line.
package routes

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	looseRoot  = regexp.MustCompile(`root`)
	strictRoot = regexp.MustCompile(`(?m)^\s*root\b`)
	indexRoute = regexp.MustCompile(`get\s+'([^']+)',\s+to:\s+'([^']+#index)'`)
)

// Resolver applies the ordered rules.
type Resolver struct {
	Strict bool
}

// Rule is one step of the ordered matcher. Match returns the resolved path.
type Rule struct {
	Name  string
	Match func(content string) (string, bool)
}

// Rules returns the rules in evaluation order.
func (r Resolver) Rules() []Rule {
	root := looseRoot
	if r.Strict {
		root = strictRoot
	}
	return []Rule{
		{Name: "root", Match: func(content string) (string, bool) {
			return "/", root.MatchString(content)
		}},
		{Name: "index", Match: func(content string) (string, bool) {
			m := indexRoute.FindStringSubmatch(content)
			if m == nil {
				return "", false
			}
			return "/" + strings.TrimPrefix(m[1], "/"), true
		}},
	}
}

// ResolveHomePath returns the home page path, or false when no rule matches.
func (r Resolver) ResolveHomePath(content string) (string, bool) {
	if r.Strict {
		content = stripComments(content)
	}
	for _, rule := range r.Rules() {
		if p, ok := rule.Match(content); ok {
			return p, true
		}
	}
	return "", false
}

// ResolveFile reads routes.rb at path and resolves it. The file is read on
// every call since the app's routes may change between launches.
func (r Resolver) ResolveFile(path string) (string, bool, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", false, err
	}
	p, ok := r.ResolveHomePath(string(b))
	return p, ok, nil
}

// ResolveHomePath resolves with the default loose rules.
func ResolveHomePath(content string) (string, bool) {
	return Resolver{}.ResolveHomePath(content)
}

func stripComments(content string) string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if i := strings.Index(line, " #"); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
