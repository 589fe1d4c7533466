package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/loykin/railspreview"
)

func openApp(flags *GlobalFlags) (*railspreview.App, error) {
	cfg, err := railspreview.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return railspreview.New(cfg)
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

func printLaunch(w io.Writer, res railspreview.LaunchResult) {
	_, _ = fmt.Fprintf(w, "%s: %s\n", res.Repo, res.Message)
	if res.Kind != "" {
		_, _ = fmt.Fprintf(w, "  kind:      %s\n", res.Kind)
	}
	if res.Error != "" {
		_, _ = fmt.Fprintf(w, "  error:     %s\n", res.Error)
	}
	if res.PID > 0 {
		_, _ = fmt.Fprintf(w, "  pid:       %d\n", res.PID)
	}
	if res.Readiness != "" {
		_, _ = fmt.Fprintf(w, "  readiness: %s (%d probes)\n", res.Readiness, res.Attempts)
	}
	if res.URL != "" {
		_, _ = fmt.Fprintf(w, "  url:       %s (status %d)\n", res.URL, res.Status)
	}
	if len(res.SkippedStylesheets) > 0 {
		_, _ = fmt.Fprintf(w, "  skipped:   %s\n", strings.Join(res.SkippedStylesheets, ", "))
	}
	_, _ = fmt.Fprintf(w, "  took:      %s\n", res.Duration.Round(time.Millisecond))
}

func printStatus(w io.Writer, st railspreview.Status) {
	if !st.Running {
		_, _ = fmt.Fprintf(w, "no server running on %s\n", st.URL)
	} else {
		_, _ = fmt.Fprintf(w, "server running on %s", st.URL)
		if st.Repo != "" {
			_, _ = fmt.Fprintf(w, " repo=%s", st.Repo)
		}
		if st.PID > 0 {
			_, _ = fmt.Fprintf(w, " pid=%d", st.PID)
		}
		if len(st.PIDs) > 0 {
			_, _ = fmt.Fprintf(w, " port_pids=%v", st.PIDs)
		}
		_, _ = fmt.Fprintln(w)
	}
	if st.Error != "" {
		_, _ = fmt.Fprintf(w, "port inspection error: %s\n", st.Error)
	}
}

func printEvents(w io.Writer, events []railspreview.Event) {
	if len(events) == 0 {
		_, _ = fmt.Fprintln(w, "no history")
		return
	}
	for _, e := range events {
		line := fmt.Sprintf("%s  %-6s %-20s %s", e.OccurredAt.Local().Format("2006-01-02 15:04:05"), e.Type, e.Record.Repo, e.Record.Message)
		if e.Record.Kind != "" {
			line += " (" + e.Record.Kind + ")"
		}
		if e.Record.Error != "" {
			line += ": " + e.Record.Error
		}
		_, _ = fmt.Fprintln(w, line)
	}
}
