package sync

import (
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RetryPolicy decides when a module whose push failed may be retried by an
// automatic sweep. The zero value retries on every sweep forever.
type RetryPolicy struct {
	// MaxAttempts parks a module after this many consecutive failures.
	// Zero means never.
	MaxAttempts int
	// BaseDelay is the wait after the first failure, doubled per further
	// failure. Zero disables backoff.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. Zero caps it at one day.
	MaxDelay time.Duration
}

// Parked reports whether n consecutive failures exhaust the policy
func (p RetryPolicy) Parked(n int) bool {
	return p.MaxAttempts > 0 && n >= p.MaxAttempts
}

// newBackOff returns the schedule of waits after consecutive failures, or
// nil when the policy has no backoff
func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	if p.BaseDelay <= 0 {
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = defaultMaxDelay
	}
	b.Reset()
	return b
}

const defaultMaxDelay = 24 * time.Hour

type retryState struct {
	failures    int
	backoff     *backoff.ExponentialBackOff
	nextAttempt time.Time
}

// eligibleLocked reports whether an automatic sweep may push id at now
func (e *Engine) eligibleLocked(id string, now time.Time) bool {
	st, ok := e.retries[id]
	if !ok {
		return true
	}
	if e.cfg.Retry.Parked(st.failures) {
		return false
	}
	return !now.Before(st.nextAttempt)
}

func (e *Engine) recordFailure(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.retries[id]
	if !ok {
		st = &retryState{}
		e.retries[id] = st
	}
	st.failures++
	if st.backoff == nil {
		st.backoff = e.cfg.Retry.newBackOff()
	}
	st.nextAttempt = e.now()
	if st.backoff != nil {
		st.nextAttempt = st.nextAttempt.Add(st.backoff.NextBackOff())
	}
	if e.cfg.Retry.Parked(st.failures) {
		e.log.Warn("module parked after repeated push failures",
			zap.String("module", id), zap.Int("failures", st.failures))
	}
}

func (e *Engine) resetRetry(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.retries, id)
}

// Parked returns the pending modules an automatic sweep will no longer
// retry, sorted
func (e *Engine) Parked() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []string
	for id, st := range e.retries {
		if e.cfg.Retry.Parked(st.failures) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
