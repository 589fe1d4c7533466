package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where the tool writes its own log and how log files rotate.
// Rotation parameters follow lumberjack semantics and are shared with the
// spawned server's output files (see ServerFiles).
type Config struct {
	Level      string // debug, info, warn, error
	File       string // optional log file in addition to stderr
	NoColor    bool
	MaxSizeMB  int  // megabytes before rotation (default 10)
	MaxBackups int  // number of backups to keep (default 3)
	MaxAgeDays int  // days to keep (default 7)
	Compress   bool // gzip rotated files
}

// New builds the logger injected into every component.
// Console output goes to w (stderr when nil); when File is set, records are
// also written as plain text to a rotating file.
func New(c Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	if w == nil {
		w = os.Stderr
	}
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if c.NoColor {
		console = slog.NewTextHandler(w, opts)
	} else {
		console = NewColorTextHandler(w, opts, true)
	}
	if c.File == "" {
		return slog.New(console), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.File), 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	fw := c.rotating(c.File)
	return slog.New(fanout{console, slog.NewTextHandler(fw, opts)}), fw, nil
}

// ServerFiles opens the stdout and stderr files of a spawned server named
// name under dir. The child writes to them directly, so its output does not
// depend on the caller staying alive. A file past the size limit is rotated
// through lumberjack first.
func (c Config) ServerFiles(dir, name string) (*os.File, *os.File, error) {
	if dir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, err
	}
	stdout, err := c.openServerLog(filepath.Join(dir, fmt.Sprintf("%s.stdout.log", name)))
	if err != nil {
		return nil, nil, err
	}
	stderr, err := c.openServerLog(filepath.Join(dir, fmt.Sprintf("%s.stderr.log", name)))
	if err != nil {
		_ = stdout.Close()
		return nil, nil, err
	}
	return stdout, stderr, nil
}

func (c Config) openServerLog(path string) (*os.File, error) {
	limit := int64(valOr(c.MaxSizeMB, DefaultMaxSizeMB)) << 20
	if fi, err := os.Stat(path); err == nil && fi.Size() >= limit {
		rl := c.rotating(path)
		if err := rl.Rotate(); err != nil {
			return nil, fmt.Errorf("rotate %s: %w", path, err)
		}
		_ = rl.Close()
	}
	// #nosec G304
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
}

func (c Config) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Discard returns a logger that drops everything; handy for tests and embedding.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
