package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/gateway"
)

// refreshAsync fetches id in the background and replaces the cached copy if
// the server's differs. At most one refresh per module runs at a time.
func (e *Engine) refreshAsync(id string, version uint64) {
	e.mu.Lock()
	if e.refreshing[id] || e.stopped {
		e.mu.Unlock()
		return
	}
	e.refreshing[id] = true
	e.mu.Unlock()

	started := e.goTracked(func() {
		defer func() {
			e.mu.Lock()
			delete(e.refreshing, id)
			e.mu.Unlock()
		}()
		e.refresh(e.ctx, id, version)
	})
	if !started {
		e.mu.Lock()
		delete(e.refreshing, id)
		e.mu.Unlock()
	}
}

func (e *Engine) refresh(ctx context.Context, id string, version uint64) {
	if e.store.IsPending(id) {
		e.metrics.Refreshes.WithLabelValues("pending").Inc()
		return
	}

	doc, err := e.fetch(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrNotFound):
		doc = e.defaults(id)
	default:
		e.metrics.Refreshes.WithLabelValues("error").Inc()
		e.log.Debug("background refresh failed", zap.String("module", id), zap.Error(err))
		return
	}

	current, ok := e.store.Get(id)
	if !ok || current.Version != version {
		e.metrics.Refreshes.WithLabelValues("superseded").Inc()
		return
	}

	// an identical copy leaves the entry and its sync time as they are
	if sameDocument(current.Doc, doc) {
		e.metrics.Refreshes.WithLabelValues("unchanged").Inc()
		return
	}

	if !e.store.ApplyRefresh(id, doc, version, e.now()) {
		e.metrics.Refreshes.WithLabelValues("superseded").Inc()
		return
	}
	e.metrics.Refreshes.WithLabelValues("updated").Inc()
	e.log.Info("🔄 document refreshed from server", zap.String("module", id))
	e.notify.DocumentRefreshed(id)
}

// sameDocument compares the compact serialisations of a and b
func sameDocument(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if err := json.Compact(&ca, a); err != nil {
		return false
	}
	if err := json.Compact(&cb, b); err != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
