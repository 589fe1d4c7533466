package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/railspreview/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSink_SendAndRecent(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err, "Failed to create in-memory sink")
	defer func() { _ = sink.Close() }()
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	launch := history.Event{Type: history.EventLaunch, OccurredAt: at, Record: history.Record{
		Repo: "blog", PID: 4242, Port: 4000, URL: "http://localhost:4000/", Readiness: "open",
		Message: "server started", Attempts: 3, DurationMS: 15000,
	}}
	stop := history.Event{Type: history.EventStop, OccurredAt: at.Add(time.Minute), Record: history.Record{
		Port: 4000, Message: "server stopped",
	}}
	for _, e := range []history.Event{launch, stop} {
		require.NoError(t, sink.Send(ctx, e), "Send %s", e.Type)
	}

	got, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, history.EventStop, got[0].Type, "newest first")
	assert.Equal(t, history.EventLaunch, got[1].Type)
	assert.Equal(t, launch.Record, got[1].Record)
	assert.True(t, got[1].OccurredAt.Equal(at), "occurred_at = %v", got[1].OccurredAt)

	one, err := sink.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1, "limit not honoured")
}

func TestSQLiteSink_FileDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + path)
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), history.Event{Type: history.EventClone, OccurredAt: time.Now(), Record: history.Record{Repo: "shop"}}))
	_ = sink.Close()

	reopened, err := New(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1, "events not persisted")
	assert.Equal(t, "shop", got[0].Record.Repo)
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
