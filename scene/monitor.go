package scene

import (
	"context"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is the AR readiness sampling interval.
const DefaultPollInterval = 500 * time.Millisecond

// Probe reports AR capability. Adapter satisfies it.
type Probe interface {
	CanActivateAR() bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func() bool

// CanActivateAR calls f.
func (f ProbeFunc) CanActivateAR() bool { return f() }

// Monitor samples a Probe on a fixed interval and tracks the two-state
// NotReady/Ready machine. The capability surface has no change
// notification, so polling is the only signal.
type Monitor struct {
	probe    Probe
	interval time.Duration
	ready    atomic.Bool

	mu       sync.Mutex
	onChange []func(ready bool)
}

// NewMonitor creates a monitor. interval <= 0 selects DefaultPollInterval.
func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{probe: probe, interval: interval}
}

// OnChange registers fn for state transitions.
func (m *Monitor) OnChange(fn func(ready bool)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// Ready returns the last sampled state.
func (m *Monitor) Ready() bool {
	return m.ready.Load()
}

// Interval returns the sampling interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Sample polls the probe once and fires OnChange callbacks on a transition.
func (m *Monitor) Sample() bool {
	now := m.probe.CanActivateAR()
	if m.ready.Swap(now) == now {
		return now
	}
	log.Printf("[AR] readiness changed: %v", now)
	m.mu.Lock()
	fns := slices.Clone(m.onChange)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(now)
	}
	return now
}

// Run samples until ctx is done. The state is left as last observed.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Start runs the monitor in a goroutine. The returned stop func cancels
// sampling and waits for the goroutine to exit; it is safe to call more
// than once.
func (m *Monitor) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Gate decides whether the AR activation control is enabled.
type Gate struct {
	EnableAR bool
	Monitor  *Monitor
}

// Enabled is true only when AR is enabled by configuration and the monitor
// has observed readiness.
func (g Gate) Enabled() bool {
	return g.EnableAR && g.Monitor != nil && g.Monitor.Ready()
}
