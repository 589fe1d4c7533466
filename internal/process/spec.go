package process

import (
	"os/exec"
	"strings"
)

// Spec describes the development server to spawn.
type Spec struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`  // e.g. "rails server"; shell syntax is honoured
	Args    []string `json:"args"`     // appended to Command, e.g. -p 4000 -b 127.0.0.1
	WorkDir string   `json:"work_dir"` // the cloned repository
	Env     []string `json:"env"`      // extra KEY=VALUE pairs on top of the parent env
	PIDFile string   `json:"pid_file"`
	LogDir  string   `json:"log_dir"` // stdout/stderr files go here when set
}

// BuildCommand constructs the *exec.Cmd for the spec. Plain commands are
// executed directly; commands with shell metacharacters or an explicit
// "sh -c" prefix run through /bin/sh with Args appended.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", joinShell(afterC, s.Args))
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", joinShell(cmdStr, s.Args))
	}
	parts := strings.Fields(cmdStr)
	args := append(parts[1:len(parts):len(parts)], s.Args...)
	// #nosec G204
	return exec.Command(parts[0], args...)
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes and returns the
// argument with one pair of surrounding quotes removed.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if strings.HasPrefix(trim, p) {
			after := strings.TrimSpace(trim[len(p):])
			if len(after) >= 2 {
				if (after[0] == '\'' && after[len(after)-1] == '\'') || (after[0] == '"' && after[len(after)-1] == '"') {
					after = after[1 : len(after)-1]
				}
			}
			return after, true
		}
	}
	return "", false
}

func joinShell(script string, args []string) string {
	if len(args) == 0 {
		return script
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return script + " " + strings.Join(quoted, " ")
}
