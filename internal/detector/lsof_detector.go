package detector

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/loykin/railspreview/internal/runner"
)

// LsofDetector shells out to `lsof -t -iTCP:<port> -sTCP:LISTEN`, which
// prints one PID per line and exits 1 when nothing matches. Only listeners
// count; clients holding keep-alive connections to the port, this process
// included, are not owners.
type LsofDetector struct {
	Runner runner.Runner
	Bin    string
}

func (d LsofDetector) PIDs(ctx context.Context, port int) ([]int, error) {
	bin := d.Bin
	if bin == "" {
		bin = "lsof"
	}
	r := d.Runner
	if r == nil {
		r = runner.Exec{}
	}
	res := r.Run(ctx, runner.Command{Name: bin, Args: []string{"-t", "-iTCP:" + strconv.Itoa(port), "-sTCP:LISTEN"}})
	if res.Err != nil {
		return nil, fmt.Errorf("run %s: %w", bin, res.Err)
	}
	if res.ExitStatus != 0 && strings.TrimSpace(res.Stdout) == "" {
		if strings.TrimSpace(res.Stderr) != "" {
			return nil, fmt.Errorf("%s exited %d: %s", bin, res.ExitStatus, strings.TrimSpace(res.Stderr))
		}
		return nil, nil
	}
	pids, err := ParsePIDs(res.Stdout)
	if err != nil {
		return nil, err
	}
	self := os.Getpid()
	return slices.DeleteFunc(pids, func(pid int) bool { return pid == self }), nil
}

func (d LsofDetector) Describe() string { return "lsof" }

// ParsePIDs parses one PID per line, ignoring blank lines.
func ParsePIDs(out string) ([]int, error) {
	var pids []int
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("invalid pid %q: %w", line, err)
		}
		pids = append(pids, pid)
	}
	return uniqueSorted(pids), nil
}
