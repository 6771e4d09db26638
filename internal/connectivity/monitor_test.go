package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeProber struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (p *fakeProber) Ping(ctx context.Context) error {
	p.calls.Add(1)
	if p.fail.Load() {
		return errors.New("unreachable")
	}
	return nil
}

func TestMonitor_SetNotifiesOnTransitionOnly(t *testing.T) {
	m := NewMonitor(true, nil, 0, zaptest.NewLogger(t))

	var mu sync.Mutex
	var seen []bool
	m.Subscribe(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, online)
	})

	assert.False(t, m.Set(true, "signal"))
	assert.True(t, m.Set(false, "signal"))
	assert.False(t, m.Set(false, "signal"))
	assert.True(t, m.Set(true, "signal"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true}, seen)
	assert.Len(t, m.History(), 2)
	assert.True(t, m.IsOnline())
}

func TestMonitor_Probe(t *testing.T) {
	p := &fakeProber{}
	m := NewMonitor(false, p, 0, zaptest.NewLogger(t))

	assert.True(t, m.Probe(context.Background()))
	assert.True(t, m.IsOnline())

	p.fail.Store(true)
	assert.False(t, m.Probe(context.Background()))
	assert.False(t, m.IsOnline())

	stats := m.Stats()
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.NotNil(t, stats.LastSuccess)
	assert.NotNil(t, stats.LastFailure)
	assert.False(t, stats.Online)
}

func TestMonitor_ProbeWithoutProberKeepsState(t *testing.T) {
	m := NewMonitor(true, nil, 0, zaptest.NewLogger(t))
	assert.True(t, m.Probe(context.Background()))
	assert.Empty(t, m.History())
}

func TestMonitor_HealthCheckLoop(t *testing.T) {
	p := &fakeProber{}
	p.fail.Store(true)
	m := NewMonitor(true, p, 10*time.Millisecond, zaptest.NewLogger(t))

	m.Start()
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, 5*time.Millisecond)

	p.fail.Store(false)
	require.Eventually(t, m.IsOnline, time.Second, 5*time.Millisecond)
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	p := &fakeProber{}
	m := NewMonitor(true, p, time.Hour, zaptest.NewLogger(t))
	m.Start()
	m.Stop()
	m.Stop()
}
