// Package readiness polls a freshly spawned server until it answers.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"syscall"
	"time"
)

// Readiness is how the server answered once it came up.
type Readiness int

const (
	Unknown Readiness = iota
	Open
	AuthRequired
)

func (r Readiness) String() string {
	switch r {
	case Open:
		return "open"
	case AuthRequired:
		return "auth_required"
	default:
		return "unknown"
	}
}

// CredentialsRequired reports whether follow-up requests need basic auth.
func (r Readiness) CredentialsRequired() bool { return r == AuthRequired }

var (
	ErrReadinessTimeout = errors.New("server did not become ready in time")
	ErrServerExited     = errors.New("server process exited before becoming ready")
)

const DefaultInterval = 5 * time.Second

// Poller probes a URL at a fixed interval.
type Poller struct {
	Client   *http.Client
	Interval time.Duration
	// Timeout bounds the whole wait; zero waits until ctx is done.
	Timeout time.Duration
	Log     *slog.Logger
}

// Result carries the readiness and how many probes it took.
type Result struct {
	Readiness Readiness
	Attempts  int
}

// Wait probes url every Interval, the first probe one interval after the
// call. A 200 yields Open and a 401 yields AuthRequired. Refused or reset
// connections, other statuses and other network errors keep the loop
// going. exited, when non-nil, aborts the wait once it is closed.
func (p *Poller) Wait(ctx context.Context, url string, exited <-chan struct{}) (Result, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: interval}
	}
	log := p.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var deadline <-chan time.Time
	if p.Timeout > 0 {
		t := time.NewTimer(p.Timeout)
		defer t.Stop()
		deadline = t.C
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var res Result
	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-deadline:
			return res, fmt.Errorf("%w after %d attempts (%s)", ErrReadinessTimeout, res.Attempts, p.Timeout)
		case <-exited:
			return res, ErrServerExited
		case <-tick.C:
		}
		res.Attempts++
		status, err := probe(ctx, client, url)
		switch {
		case err != nil && isConnDown(err):
			log.Debug("server not accepting connections yet", "url", url, "attempt", res.Attempts)
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Warn("readiness probe failed", "url", url, "attempt", res.Attempts, "error", err)
		case status == http.StatusOK:
			res.Readiness = Open
			log.Info("server is ready", "url", url, "attempts", res.Attempts)
			return res, nil
		case status == http.StatusUnauthorized:
			res.Readiness = AuthRequired
			log.Info("server is ready, basic auth required", "url", url, "attempts", res.Attempts)
			return res, nil
		default:
			log.Info("server not ready", "url", url, "status", status, "attempt", res.Attempts)
		}
	}
}

func probe(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func isConnDown(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
