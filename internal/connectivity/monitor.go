// Package connectivity tracks whether the remote data gateway is reachable.
// The state changes on explicit signals (the browser's online/offline events)
// and on the result of periodic health probes.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Prober checks gateway reachability
type Prober interface {
	Ping(ctx context.Context) error
}

// Transition records a connectivity change
type Transition struct {
	Online    bool      `json:"online"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats describes the probe history
type Stats struct {
	Online       bool          `json:"online"`
	LastCheck    time.Time     `json:"last_check"`
	LastSuccess  *time.Time    `json:"last_success,omitempty"`
	LastFailure  *time.Time    `json:"last_failure,omitempty"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	AvgLatency   time.Duration `json:"avg_latency"`
}

const maxHistory = 100

// Monitor owns the connectivity state
type Monitor struct {
	mu sync.RWMutex

	online    bool
	history   []Transition
	listeners []func(online bool)
	stats     Stats
	latSum    time.Duration
	latCount  int

	prober   Prober
	interval time.Duration
	timeout  time.Duration
	running  bool
	stop     chan struct{}
	done     chan struct{}

	log *zap.Logger
}

// NewMonitor creates a monitor. A nil prober or a zero interval disables
// health probing; the state then only follows Set.
func NewMonitor(initial bool, prober Prober, interval time.Duration, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		online:   initial,
		history:  make([]Transition, 0),
		prober:   prober,
		interval: interval,
		timeout:  10 * time.Second,
		log:      log.Named("connectivity"),
	}
}

// Subscribe registers fn to be called on every transition. Callbacks run on
// the goroutine that caused the transition, outside the monitor lock.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// IsOnline returns the current state
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set changes the state and reports whether it was a transition
func (m *Monitor) Set(online bool, reason string) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	m.recordLocked(online, reason)
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
	return true
}

// Probe pings the gateway once and updates the state from the result
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.prober == nil {
		return m.IsOnline()
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := m.prober.Ping(ctx)
	latency := time.Since(start)

	m.mu.Lock()
	now := time.Now()
	m.stats.LastCheck = now
	if err != nil {
		m.stats.FailureCount++
		m.stats.LastFailure = &now
	} else {
		m.stats.SuccessCount++
		m.stats.LastSuccess = &now
		m.latSum += latency
		m.latCount++
		m.stats.AvgLatency = m.latSum / time.Duration(m.latCount)
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Debug("gateway probe failed", zap.Error(err))
		m.Set(false, "health_check_failed")
		return false
	}
	m.Set(true, "health_check_ok")
	return true
}

// Start begins periodic probing
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running || m.prober == nil || m.interval <= 0 {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.healthCheckLoop(m.stop, m.done)
}

// Stop ends periodic probing and waits for the loop to exit
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()
	<-done
}

// History returns the recorded transitions, oldest first
func (m *Monitor) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transition(nil), m.history...)
}

// Stats returns a copy of the probe statistics
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.stats
	s.Online = m.online
	return s
}

func (m *Monitor) healthCheckLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	for {
		select {
		case <-ticker.C:
			m.Probe(ctx)
		case <-stop:
			return
		}
	}
}

func (m *Monitor) recordLocked(online bool, reason string) {
	m.history = append(m.history, Transition{Online: online, Reason: reason, Timestamp: time.Now()})
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.log.Info("connectivity changed", zap.Bool("online", online), zap.String("reason", reason))
}
