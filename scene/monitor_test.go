package scene

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_DefaultInterval(t *testing.T) {
	m := NewMonitor(ProbeFunc(func() bool { return false }), 0)
	assert.Equal(t, 500*time.Millisecond, m.Interval())
}

func TestMonitor_SampleTransitions(t *testing.T) {
	var capable atomic.Bool
	m := NewMonitor(ProbeFunc(capable.Load), time.Hour)

	var mu sync.Mutex
	var changes []bool
	m.OnChange(func(ready bool) {
		mu.Lock()
		changes = append(changes, ready)
		mu.Unlock()
	})

	assert.False(t, m.Sample())
	assert.False(t, m.Ready())

	capable.Store(true)
	assert.True(t, m.Sample())
	assert.True(t, m.Sample())
	assert.True(t, m.Ready())

	capable.Store(false)
	assert.False(t, m.Sample())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, changes, "callbacks only on transitions")
}

func TestMonitor_StartStop(t *testing.T) {
	var capable atomic.Bool
	var samples atomic.Int32
	m := NewMonitor(ProbeFunc(func() bool {
		samples.Add(1)
		return capable.Load()
	}), 5*time.Millisecond)

	stop := m.Start(context.Background())
	capable.Store(true)
	require.Eventually(t, m.Ready, time.Second, time.Millisecond)

	stop()
	stop()
	after := samples.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, samples.Load(), "no sampling after stop")
}

func TestGate(t *testing.T) {
	var capable atomic.Bool
	m := NewMonitor(ProbeFunc(capable.Load), time.Hour)

	tests := []struct {
		name     string
		enableAR bool
		capable  bool
		want     bool
	}{
		{name: "disabled and not capable", enableAR: false, capable: false, want: false},
		{name: "enabled but not capable", enableAR: true, capable: false, want: false},
		{name: "disabled but capable", enableAR: false, capable: true, want: false},
		{name: "enabled and capable", enableAR: true, capable: true, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capable.Store(tt.capable)
			m.Sample()
			g := Gate{EnableAR: tt.enableAR, Monitor: m}
			assert.Equal(t, tt.want, g.Enabled())
		})
	}
	assert.False(t, Gate{EnableAR: true}.Enabled(), "nil monitor")
}

func TestGate_FollowsAdapter(t *testing.T) {
	a := NewAdapter(chairLoader(), NewStaticTextures(), WithPlatformAR(true))
	m := NewMonitor(a, time.Hour)
	g := Gate{EnableAR: true, Monitor: m}

	m.Sample()
	assert.False(t, g.Enabled(), "closed until a scene is ready")

	require.NoError(t, a.Load(context.Background(), "/models/a.glb"))
	m.Sample()
	assert.True(t, g.Enabled())

	a.SetPlatformAR(false)
	m.Sample()
	assert.False(t, g.Enabled())
}

func TestMonitor_OnChangeFromCallback(t *testing.T) {
	var capable atomic.Bool
	m := NewMonitor(ProbeFunc(capable.Load), time.Hour)

	var late atomic.Int32
	m.OnChange(func(bool) {
		m.OnChange(func(bool) { late.Add(1) })
	})

	capable.Store(true)
	m.Sample()
	assert.Equal(t, int32(0), late.Load(), "added during dispatch, not called in the same round")

	capable.Store(false)
	m.Sample()
	assert.Equal(t, int32(1), late.Load())
}
