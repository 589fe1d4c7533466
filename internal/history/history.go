package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// EventType defines the kind of recorded event.
type EventType string

const (
	EventLaunch EventType = "launch"
	EventStop   EventType = "stop"
	EventClone  EventType = "clone"
)

// Record is the outcome of one launch, stop or clone.
type Record struct {
	Repo       string `json:"repo"`
	PID        int    `json:"pid"`
	Port       int    `json:"port"`
	URL        string `json:"url,omitempty"`
	Readiness  string `json:"readiness,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Event is a record stamped with its type and time, as exported to sinks.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Querier is implemented by sinks that can read events back, newest first.
type Querier interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Recorder fans events out to every sink. Send failures are logged and
// never returned to the caller. A nil Recorder discards events.
type Recorder struct {
	sinks []Sink
	log   *slog.Logger
}

func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks, log: log}
}

// Record stamps e with the current time when unset and sends it.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	for _, s := range r.sinks {
		if err := s.Send(ctx, e); err != nil && r.log != nil {
			r.log.Warn("history sink failed", "type", e.Type, "repo", e.Record.Repo, "error", err)
		}
	}
}

// Recent reads from the first sink that supports queries. Without one the
// result is empty.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Event, error) {
	if r == nil {
		return nil, nil
	}
	for _, s := range r.sinks {
		if q, ok := s.(Querier); ok {
			return q.Recent(ctx, limit)
		}
	}
	return nil, nil
}

func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
