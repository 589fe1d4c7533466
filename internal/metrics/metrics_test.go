package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg), "first register")
	require.NoError(t, Register(reg), "second register")

	ObserveLaunch("open", "", 12.5, 3)
	ObserveLaunch("", "timeout", 300, 60)
	IncStop(true)
	IncStop(false)
	IncProvisionFailure("bundle_install")
	IncClone(true)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	wantNames := map[string]bool{
		"railspreview_launch_total":                  false,
		"railspreview_launch_duration_seconds":       false,
		"railspreview_readiness_poll_attempts":       false,
		"railspreview_server_stops_total":            false,
		"railspreview_provision_step_failures_total": false,
		"railspreview_workspace_clones_total":        false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			assert.NotEmpty(t, mf.GetMetric(), "metric %s has no samples", n)
		}
		if n == "railspreview_launch_total" {
			assert.Len(t, mf.GetMetric(), 2, "label sets for launches")
		}
	}
	for n, ok := range wantNames {
		assert.True(t, ok, "expected to find metric %s", n)
	}
}

func TestHelpersNoopBeforeRegister(t *testing.T) {
	regOK.Store(false)
	// must not panic or record
	ObserveLaunch("open", "", 1, 1)
	IncStop(true)
	IncProvisionFailure("db_seed")
	IncClone(false)
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	require.NoError(t, Register(prometheus.DefaultRegisterer))
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	ObserveLaunch("auth_required", "", 2, 1)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), `railspreview_launch_total{kind="ok",readiness="auth_required"}`)
}

func TestSampleSelf(t *testing.T) {
	u, err := Sample(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), u.PID)
	assert.NotZero(t, u.RSSBytes)
}

func TestServerSampler(t *testing.T) {
	s := &ServerSampler{Interval: 10 * time.Millisecond}
	s.Start(context.Background(), os.Getpid)
	s.Start(context.Background(), os.Getpid) // no-op
	deadline := time.Now().Add(2 * time.Second)
	for s.Last().PID == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	assert.Equal(t, os.Getpid(), s.Last().PID, "sampler never recorded own pid")
	s.Stop()
}
