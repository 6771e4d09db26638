package sync

import (
	"time"

	"go.uber.org/zap"
)

const (
	msgSynced       = "✅ Data synchronized with the server"
	msgOfflineLater = "📱 Offline - changes will sync automatically when the connection is restored"
	msgReconnected  = "🌐 Connection restored - syncing data..."
	msgWentOffline  = "📱 Offline mode - changes are saved locally"
)

// scheduleLocked restarts the shared debounce timer. Caller holds e.mu.
func (e *Engine) scheduleLocked() {
	if e.stopped {
		return
	}
	e.stopTimerLocked()
	gen := e.timerGen
	e.timer = time.AfterFunc(e.cfg.Debounce, func() { e.fireDebounce(gen) })
}

// stopTimerLocked cancels the pending debounce fire, if any. The generation
// bump makes a fire that already started return without effect.
func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

// CancelDebounce drops a scheduled debounce fire
func (e *Engine) CancelDebounce() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
}

// DebouncePending reports whether a debounce fire is scheduled
func (e *Engine) DebouncePending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer != nil
}

func (e *Engine) fireDebounce(gen uint64) {
	e.mu.Lock()
	if gen != e.timerGen || e.stopped {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	id := e.lastWritten
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	if !e.conn.IsOnline() {
		e.log.Info("📱 offline, debounced sync deferred", zap.String("module", id))
		e.notify.ShowMessage(msgOfflineLater)
		return
	}

	var failed string
	if id != "" && e.store.IsPending(id) {
		if !e.beginPass() {
			e.metrics.Sweeps.WithLabelValues(string(TriggerDebounce), "in_flight").Inc()
			e.log.Debug("sync in flight, debounced push left to it", zap.String("module", id))
			return
		}
		err := e.push(e.ctx, id, TriggerDebounce)
		e.endPass()
		switch {
		case err == nil:
			e.notify.ShowMessage(msgSynced)
		case err == errNoDocument:
		default:
			failed = id
			e.notify.ShowMessage("❌ Sync error: " + err.Error())
		}
		e.publishStatus()
	}

	if _, err := e.sweep(e.ctx, TriggerDebounce, sweepOptions{exclude: failed}); err != nil {
		e.log.Debug("follow-up sweep skipped", zap.Error(err))
	}
}
