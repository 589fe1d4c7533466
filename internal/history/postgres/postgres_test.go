package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/railspreview/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	at := time.Now().UTC().Truncate(time.Millisecond)
	launch := history.Event{Type: history.EventLaunch, OccurredAt: at, Record: history.Record{
		Repo: "blog", PID: 777, Port: 4000, URL: "http://localhost:4000/", Readiness: "auth_required",
		Message: "server started", Attempts: 2, DurationMS: 9000,
	}}
	if err := sink.Send(ctx, launch); err != nil {
		t.Fatalf("Failed to send launch event: %v", err)
	}
	if err := sink.Send(ctx, history.Event{Type: history.EventStop, OccurredAt: at.Add(time.Second), Record: history.Record{Port: 4000, Message: "server stopped"}}); err != nil {
		t.Fatalf("Failed to send stop event: %v", err)
	}

	got, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Type != history.EventStop {
		t.Fatalf("unexpected events: %+v", got)
	}
	if got[1].Record != launch.Record || !got[1].OccurredAt.Equal(at) {
		t.Fatalf("launch mismatch: %+v", got[1])
	}
}

func TestPostgresSink_EmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
