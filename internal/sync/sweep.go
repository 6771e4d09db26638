package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SweepResult summarises one pass over the pending set
type SweepResult struct {
	Trigger   Trigger `json:"trigger"`
	Attempted int     `json:"attempted"`
	Synced    int     `json:"synced"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`
	Forgotten int     `json:"forgotten"`
}

type sweepOptions struct {
	// exclude is left out of this sweep
	exclude string
	// force ignores retry backoff and parking
	force bool
}

// sweep pushes every pending module once. Only one sweep runs at a time;
// a sweep requested while one is in flight is dropped, not queued.
func (e *Engine) sweep(ctx context.Context, trigger Trigger, opts sweepOptions) (SweepResult, error) {
	res := SweepResult{Trigger: trigger}

	if !e.conn.IsOnline() {
		e.metrics.Sweeps.WithLabelValues(string(trigger), "offline").Inc()
		return res, ErrOffline
	}

	e.mu.Lock()
	if e.sweeping {
		e.mu.Unlock()
		e.metrics.Sweeps.WithLabelValues(string(trigger), "in_flight").Inc()
		return res, ErrSyncInProgress
	}
	ids := e.store.Pending()
	if len(ids) == 0 {
		e.mu.Unlock()
		e.metrics.Sweeps.WithLabelValues(string(trigger), "empty").Inc()
		return res, nil
	}
	e.sweeping = true
	e.mu.Unlock()

	e.publishStatus()
	defer func() {
		e.endPass()
		e.publishStatus()
	}()

	e.log.Info("🔄 syncing pending modules",
		zap.String("trigger", string(trigger)),
		zap.Strings("modules", ids))

	for _, id := range ids {
		if id == opts.exclude {
			res.Skipped++
			continue
		}
		if !e.store.Has(id) {
			e.store.Forget(id)
			res.Forgotten++
			continue
		}
		if !opts.force {
			e.mu.Lock()
			ok := e.eligibleLocked(id, e.now())
			e.mu.Unlock()
			if !ok {
				res.Skipped++
				continue
			}
		}
		if ctx.Err() != nil {
			break
		}

		res.Attempted++
		switch err := e.push(ctx, id, trigger); {
		case err == nil:
			res.Synced++
		case err == errNoDocument:
			res.Attempted--
			res.Forgotten++
		default:
			res.Failed++
		}
	}

	e.metrics.Sweeps.WithLabelValues(string(trigger), "completed").Inc()
	e.log.Info("sync pass finished",
		zap.String("trigger", string(trigger)),
		zap.Int("synced", res.Synced),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped))

	if res.Synced > 0 {
		e.notify.ShowMessage(fmt.Sprintf("✅ %d items synchronized with the server", res.Synced))
	}
	return res, nil
}

// beginPass claims the single push slot shared by sweeps and the debounced
// push. It reports false when another pass holds it.
func (e *Engine) beginPass() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sweeping {
		return false
	}
	e.sweeping = true
	return true
}

func (e *Engine) endPass() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweeping = false
}
