package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/railspreview/internal/history"
)

// Options selects the server and table. Empty credentials fall back to the
// ClickHouse defaults.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(o Options) (*Sink, error) {
	if o.Database == "" {
		o.Database = "default"
	}
	if o.Username == "" {
		o.Username = "default"
	}
	if o.Table == "" {
		o.Table = "launch_history"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{o.Addr},
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.Username,
			Password: o.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	s := &Sink{conn: conn, table: o.Table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	err := s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			event String,
			occurred_at DateTime64(3),
			repo String,
			pid Int64,
			port Int32,
			url String,
			readiness String,
			kind String,
			message String,
			error String,
			attempts Int32,
			duration_ms Int64
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, repo)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse table %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	r := e.Record
	query := fmt.Sprintf(`INSERT INTO %s (event, occurred_at, repo, pid, port, url, readiness, kind, message, error, attempts, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	err := s.conn.Exec(ctx, query,
		string(e.Type), e.OccurredAt.UTC(), r.Repo, int64(r.PID), int32(r.Port), r.URL,
		r.Readiness, r.Kind, r.Message, r.Error, int32(r.Attempts), r.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(`
		SELECT event, occurred_at, repo, pid, port, url, readiness, kind, message, error, attempts, duration_ms
		FROM %s ORDER BY occurred_at DESC LIMIT %d`, s.table, limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []history.Event
	for rows.Next() {
		var (
			e              history.Event
			ev             string
			pid            int64
			port, attempts int32
		)
		r := &e.Record
		if err := rows.Scan(&ev, &e.OccurredAt, &r.Repo, &pid, &port, &r.URL, &r.Readiness, &r.Kind, &r.Message, &r.Error, &attempts, &r.DurationMS); err != nil {
			return nil, err
		}
		e.Type = history.EventType(ev)
		e.OccurredAt = e.OccurredAt.UTC()
		r.PID, r.Port, r.Attempts = int(pid), int(port), int(attempts)
		out = append(out, e)
	}
	return out, rows.Err()
}
