package provision

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var gemLine = regexp.MustCompile(`^\s*gem\s+["']([^"']+)["']`)

// ParseGemfile returns the gem names declared in a Gemfile, in file order.
// Comment lines are skipped; the match is line oriented, so declarations
// split across lines or built dynamically are not seen.
func ParseGemfile(content string) []string {
	var gems []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if m := gemLine.FindStringSubmatch(line); m != nil {
			gems = append(gems, m[1])
		}
	}
	return gems
}

// ReadGemfile reads and parses the Gemfile at path.
func ReadGemfile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return ParseGemfile(string(b)), nil
}

// HasSubstantiveLines reports whether the file exists and has at least one
// line that is neither blank nor a '#' comment.
func HasSubstantiveLines(path string) bool {
	if !fileExists(path) {
		return false
	}
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return true
		}
	}
	return false
}
