package workspace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/ui"
)

// HandleSignal applies a browser lifecycle signal. It satisfies
// ui.SignalHandler.
func (w *Workspace) HandleSignal(ctx context.Context, sig ui.Signal) error {
	w.log.Debug("signal received",
		zap.String("type", sig.Type),
		zap.String("module", sig.Module),
		zap.String("action", sig.Action))

	switch sig.Type {
	case ui.SignalOnline:
		w.monitor.Set(true, "browser_online")
	case ui.SignalOffline:
		w.monitor.Set(false, "browser_offline")
	case ui.SignalVisible:
		w.engine.HandleVisible()
	case ui.SignalUnload:
		w.engine.FlushOnUnload(ctx)
	case ui.SignalActivate:
		return w.Activate(ctx, sig.Module)
	case ui.SignalAction:
		return w.HandleAction(ctx, sig.Module, sig.Action, sig.Payload)
	case ui.SignalSync:
		n, err := w.ForceSync(ctx)
		if err != nil {
			w.surface.Toast("❌ Sync error: " + err.Error())
			return err
		}
		if n == 0 {
			w.surface.Toast("✅ Nothing to synchronize")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSignal, sig.Type)
	}
	return nil
}
