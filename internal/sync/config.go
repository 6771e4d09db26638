package sync

import (
	"time"

	"github.com/xelth-com/modspace/internal/config"
)

// Config tunes the engine timers
type Config struct {
	// Debounce is the quiet period after the last write before a push
	Debounce time.Duration
	// Staleness is how old a cached document may get before a read
	// triggers a background refresh
	Staleness time.Duration
	// SweepInterval is the periodic sweep cadence
	SweepInterval time.Duration
	// UnloadFlush bounds the flush on page unload
	UnloadFlush time.Duration
	// PushTimeout bounds a single gateway call
	PushTimeout time.Duration
	Retry       RetryPolicy
}

// DefaultConfig returns the stock timings: 5s debounce, 5min staleness,
// 2min sweeps and unbounded retry without backoff.
func DefaultConfig() Config {
	return Config{
		Debounce:      5 * time.Second,
		Staleness:     5 * time.Minute,
		SweepInterval: 2 * time.Minute,
		UnloadFlush:   2 * time.Second,
		PushTimeout:   15 * time.Second,
	}
}

// ConfigFrom converts the file/env tuning into engine config
func ConfigFrom(sc *config.SyncConfig) Config {
	if sc == nil {
		return DefaultConfig()
	}
	return Config{
		Debounce:      sc.Debounce(),
		Staleness:     sc.Staleness(),
		SweepInterval: sc.SweepInterval(),
		UnloadFlush:   sc.UnloadFlush(),
		PushTimeout:   sc.PushTimeout(),
		Retry: RetryPolicy{
			MaxAttempts: sc.MaxAttempts,
			BaseDelay:   sc.BackoffBase(),
			MaxDelay:    sc.BackoffMax(),
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.Staleness <= 0 {
		c.Staleness = d.Staleness
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.UnloadFlush <= 0 {
		c.UnloadFlush = d.UnloadFlush
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = d.PushTimeout
	}
	return c
}
