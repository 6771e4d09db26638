package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// HandleConnectivity reacts to a connectivity transition. Going online
// sweeps the pending set in the background.
func (e *Engine) HandleConnectivity(online bool) {
	if !online {
		e.notify.ShowMessage(msgWentOffline)
		e.publishStatus()
		return
	}
	e.notify.ShowMessage(msgReconnected)
	e.publishStatus()
	e.sweepAsync(TriggerReconnect)
}

// HandleVisible reacts to the page becoming visible again
func (e *Engine) HandleVisible() {
	if !e.conn.IsOnline() || e.store.PendingCount() == 0 {
		return
	}
	e.sweepAsync(TriggerVisible)
}

// FlushOnUnload makes a bounded best-effort attempt to push everything
// pending before the page goes away. The outcome is only logged.
func (e *Engine) FlushOnUnload(ctx context.Context) {
	if e.store.PendingCount() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.UnloadFlush)
	defer cancel()

	res, err := e.sweep(ctx, TriggerUnload, sweepOptions{force: true})
	if err != nil {
		e.log.Info("unload flush skipped", zap.Error(err))
		return
	}
	e.log.Info("unload flush finished",
		zap.Int("synced", res.Synced),
		zap.Int("failed", res.Failed),
		zap.Int("still_pending", e.store.PendingCount()))
}

func (e *Engine) sweepAsync(trigger Trigger) {
	e.goTracked(func() {
		if _, err := e.sweep(e.ctx, trigger, sweepOptions{}); err != nil && !errors.Is(err, ErrSyncInProgress) {
			e.log.Debug("sweep skipped", zap.String("trigger", string(trigger)), zap.Error(err))
		}
	})
}

func (e *Engine) periodicLoop(stop <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.conn.IsOnline() && e.store.PendingCount() > 0 {
				if _, err := e.sweep(e.ctx, TriggerPeriodic, sweepOptions{}); err != nil {
					e.log.Debug("periodic sweep skipped", zap.Error(err))
				}
			}
		case <-stop:
			return
		}
	}
}
