package history

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/loykin/railspreview/internal/logger"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Close() error { m.closed = true; return nil }

type querySink struct{ memSink }

func (q *querySink) Recent(_ context.Context, limit int) ([]Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Event
	for i := len(q.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, q.events[i])
	}
	return out, nil
}

func TestRecorderFansOutAndStamps(t *testing.T) {
	failing := &memSink{err: errors.New("down")}
	a, b := &memSink{}, &querySink{}
	r := NewRecorder(logger.Discard(), failing, a, b)

	r.Record(context.Background(), Event{Type: EventLaunch, Record: Record{Repo: "blog", Message: "server started"}})
	r.Record(context.Background(), Event{Type: EventStop, Record: Record{Repo: "blog"}})

	if len(a.events) != 2 || len(b.events) != 2 {
		t.Fatalf("events not delivered past failing sink: a=%d b=%d", len(a.events), len(b.events))
	}
	if a.events[0].OccurredAt.IsZero() {
		t.Fatalf("OccurredAt not stamped")
	}
	recent, err := r.Recent(context.Background(), 1)
	if err != nil || len(recent) != 1 || recent[0].Type != EventStop {
		t.Fatalf("recent = %+v err=%v", recent, err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !failing.closed {
		t.Fatalf("sinks not closed")
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), Event{Type: EventClone})
	if ev, err := r.Recent(context.Background(), 5); ev != nil || err != nil {
		t.Fatalf("nil recorder should be empty")
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRecentWithoutQuerier(t *testing.T) {
	r := NewRecorder(nil, &memSink{})
	ev, err := r.Recent(context.Background(), 5)
	if ev != nil || err != nil {
		t.Fatalf("expected empty result, got %v %v", ev, err)
	}
}
