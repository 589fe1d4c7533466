package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	serverCPU = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "railspreview",
		Subsystem: "server",
		Name:      "cpu_percent",
		Help:      "CPU usage of the spawned development server.",
	})
	serverRSS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "railspreview",
		Subsystem: "server",
		Name:      "memory_rss_bytes",
		Help:      "Resident memory of the spawned development server.",
	})
)

// Usage is a single resource sample of a process.
type Usage struct {
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	NumThreads int32     `json:"num_threads"`
	SampledAt  time.Time `json:"sampled_at"`
}

// Sample reads CPU and memory usage of pid through gopsutil.
func Sample(ctx context.Context, pid int) (Usage, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Usage{}, err
	}
	u := Usage{PID: pid, SampledAt: time.Now()}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		u.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		u.RSSBytes = mem.RSS
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		u.NumThreads = n
	}
	return u, nil
}

// ServerSampler periodically samples the PID returned by pidFn into the
// server gauges. pidFn returning 0 clears them.
type ServerSampler struct {
	Interval time.Duration
	Log      *slog.Logger

	mu   sync.Mutex
	last Usage
	stop context.CancelFunc
	done chan struct{}
}

// Start begins sampling. Calling Start on a running sampler is a no-op.
func (s *ServerSampler) Start(ctx context.Context, pidFn func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, interval, pidFn, s.done)
}

func (s *ServerSampler) loop(ctx context.Context, interval time.Duration, pidFn func() int, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s.collect(ctx, pidFn())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *ServerSampler) collect(ctx context.Context, pid int) {
	var u Usage
	if pid > 0 {
		var err error
		u, err = Sample(ctx, pid)
		if err != nil && s.Log != nil {
			s.Log.Debug("server sample failed", "pid", pid, "error", err)
		}
	}
	s.mu.Lock()
	s.last = u
	s.mu.Unlock()
	if regOK.Load() {
		serverCPU.Set(u.CPUPercent)
		serverRSS.Set(float64(u.RSSBytes))
	}
}

// Last returns the most recent sample.
func (s *ServerSampler) Last() Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Stop ends sampling and waits for the loop to return.
func (s *ServerSampler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
}
