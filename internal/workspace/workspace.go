// Package workspace is the shell every module runs inside. It owns the
// cache, the sync engine and the module registry, renders shell chrome into
// the UI surface and routes browser signals to the right component.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/api"
	"github.com/xelth-com/modspace/internal/buildinfo"
	"github.com/xelth-com/modspace/internal/cache"
	"github.com/xelth-com/modspace/internal/connectivity"
	"github.com/xelth-com/modspace/internal/defaults"
	"github.com/xelth-com/modspace/internal/gateway"
	"github.com/xelth-com/modspace/internal/registry"
	syncengine "github.com/xelth-com/modspace/internal/sync"
	"github.com/xelth-com/modspace/internal/ui"
)

var (
	ErrModuleNotActive  = errors.New("module is not active")
	ErrNoActions        = errors.New("module does not handle actions")
	ErrUnknownSignal    = errors.New("unknown signal")
	ErrInvalidWorkMode  = errors.New("work mode must be auto or local")
	ErrMalformedImport  = errors.New("unrecognised import format")
	ErrNoCurrentModule  = errors.New("no active module to export")
	errMissingComponent = errors.New("workspace requires store, gateway, monitor and surface")
)

// Title shown when no module is active
const ShellTitle = "Modular Workspace"

const (
	WorkModeLocal = "local"
	WorkModeAuto  = "auto"
)

// Gateway is the remote store including the bulk delete used by ClearAll
type Gateway interface {
	syncengine.Gateway
	DeleteAll(ctx context.Context) (*gateway.DeleteResult, error)
}

// Options wires a Workspace
type Options struct {
	Store    *cache.Store
	Gateway  Gateway
	Monitor  *connectivity.Monitor
	Registry *registry.Registry
	Surface  ui.Surface
	Sync     syncengine.Config

	Registerer prometheus.Registerer
	Logger     *zap.Logger
	Now        func() time.Time
}

// Workspace implements api.Workspace for modules and syncengine.Notifier for
// the engine
type Workspace struct {
	store    *cache.Store
	gw       Gateway
	monitor  *connectivity.Monitor
	registry *registry.Registry
	surface  ui.Surface
	engine   *syncengine.Engine
	log      *zap.Logger
	now      func() time.Time
}

var (
	_ api.Workspace       = (*Workspace)(nil)
	_ syncengine.Notifier = (*Workspace)(nil)
)

// New builds the workspace and its sync engine
func New(opts Options) (*Workspace, error) {
	if opts.Store == nil || opts.Gateway == nil || opts.Monitor == nil || opts.Surface == nil {
		return nil, errMissingComponent
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Registry == nil {
		opts.Registry = registry.New(opts.Logger)
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}

	w := &Workspace{
		store:    opts.Store,
		gw:       opts.Gateway,
		monitor:  opts.Monitor,
		registry: opts.Registry,
		surface:  opts.Surface,
		log:      opts.Logger.Named("workspace"),
		now:      opts.Now,
	}
	w.engine = syncengine.NewEngine(syncengine.Options{
		Store:        opts.Store,
		Gateway:      opts.Gateway,
		Connectivity: opts.Monitor,
		Defaults:     defaults.Provider(opts.Now),
		Notifier:     w,
		Config:       opts.Sync,
		Registerer:   opts.Registerer,
		Logger:       opts.Logger,
		Now:          opts.Now,
	})
	w.registry.OnChange(w.publishModules)
	w.monitor.Subscribe(w.engine.HandleConnectivity)
	return w, nil
}

// Register adds a module descriptor
func (w *Workspace) Register(d registry.Descriptor) error {
	return w.registry.Register(d)
}

// Registry exposes the module registry
func (w *Workspace) Registry() *registry.Registry { return w.registry }

// Engine exposes the sync engine
func (w *Workspace) Engine() *syncengine.Engine { return w.engine }

// Start seeds the cache for every registered module, starts background
// syncing and health probes and renders the initial shell.
func (w *Workspace) Start(ctx context.Context) error {
	w.engine.Bootstrap(ctx, w.registry.IDs())
	if err := w.engine.Start(); err != nil {
		return fmt.Errorf("start sync engine: %w", err)
	}
	w.monitor.Start()

	w.renderWelcome()
	w.publishModules()
	w.publishStatus(w.engine.Status())

	w.log.Info("🚀 workspace started",
		zap.Strings("modules", w.registry.IDs()),
		zap.Bool("online", w.monitor.IsOnline()),
		zap.String("work_mode", w.WorkMode()),
		zap.Int("pending", w.store.PendingCount()))
	return nil
}

// Close tears down the active module and stops background work. Pending
// documents stay pending in durable storage.
func (w *Workspace) Close(ctx context.Context) {
	if err := w.registry.Deactivate(ctx); err != nil {
		w.log.Warn("deactivate on close failed", zap.Error(err))
	}
	w.monitor.Stop()
	w.engine.Stop()
}

// Activate mounts moduleID, replacing the active module
func (w *Workspace) Activate(ctx context.Context, moduleID string) error {
	desc, ok := w.registry.Get(moduleID)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrNotRegistered, moduleID)
	}

	w.surface.Replace(ui.RegionContainer, loadingView(desc))

	err := w.registry.Activate(ctx, moduleID)
	switch {
	case err == nil:
		w.surface.Replace(ui.RegionTitle, titleView(desc.Name))
		w.log.Info("✅ module activated", zap.String("module", moduleID))
		return nil
	case errors.Is(err, registry.ErrSuperseded):
		return err
	}

	w.log.Error("❌ module failed to load", zap.String("module", moduleID), zap.Error(err))
	w.surface.Replace(ui.RegionNavigation, "")
	w.surface.Replace(ui.RegionActions, "")
	w.surface.Replace(ui.RegionContainer, errorView(desc, err))
	w.surface.Replace(ui.RegionTitle, titleView(ShellTitle))
	w.surface.Toast(fmt.Sprintf("❌ Error loading %s", desc.Name))
	return err
}

// HandleAction routes a UI action to the active module instance. An empty
// moduleID targets the current module.
func (w *Workspace) HandleAction(ctx context.Context, moduleID, action string, payload json.RawMessage) error {
	if moduleID == "" {
		moduleID = w.registry.Current()
	}
	if moduleID == "" || moduleID != w.registry.Current() {
		return fmt.Errorf("%w: %q", ErrModuleNotActive, moduleID)
	}
	inst, ok := w.registry.Instance(moduleID)
	if !ok || inst == nil {
		return fmt.Errorf("%w: %q", ErrModuleNotActive, moduleID)
	}
	handler, ok := inst.(api.ActionHandler)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoActions, moduleID)
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	if err := handler.HandleAction(ctx, action, payload); err != nil {
		w.log.Warn("action failed",
			zap.String("module", moduleID),
			zap.String("action", action),
			zap.Error(err))
		w.surface.Toast("❌ " + err.Error())
		return err
	}
	return nil
}

// ClearAll wipes every document on the server and locally and returns the
// shell to its welcome state. A failed server delete is logged; the local
// wipe always happens.
func (w *Workspace) ClearAll(ctx context.Context) (ClearResult, error) {
	var res ClearResult

	if err := w.registry.Deactivate(ctx); err != nil {
		w.log.Warn("deactivate before clear failed", zap.Error(err))
	}
	w.engine.CancelDebounce()

	deleted, err := w.gw.DeleteAll(ctx)
	if err != nil {
		w.log.Error("❌ failed to delete server data", zap.Error(err))
	} else {
		res.ServerCleared = true
		res.ServerDeleted = deleted.Deleted
		w.log.Info("🗑️ server data deleted",
			zap.Int("records", deleted.Deleted),
			zap.String("message", deleted.Message))
	}

	removed, err := w.store.ClearAll()
	res.LocalKeysRemoved = removed
	if err != nil {
		w.surface.Toast("❌ Error clearing data: " + err.Error())
		return res, fmt.Errorf("clear local cache: %w", err)
	}

	w.renderWelcome()
	w.publishModules()
	w.publishStatus(w.engine.Status())
	w.surface.Toast("🗑️ All data deleted (server and local)")
	w.log.Info("✅ workspace cleared",
		zap.Bool("server", res.ServerCleared),
		zap.Int("local_keys", removed))
	return res, nil
}

// ClearResult reports what ClearAll removed
type ClearResult struct {
	ServerCleared    bool `json:"server_cleared"`
	ServerDeleted    int  `json:"server_deleted"`
	LocalKeysRemoved int  `json:"local_keys_removed"`
}

// WorkMode returns the work mode. There is a single behaviour: writes are
// kept locally and pushed after the debounce delay. A legacy "auto" value
// read from storage reports as local.
func (w *Workspace) WorkMode() string {
	return WorkModeLocal
}

// SetWorkMode accepts the legacy values auto and local and stores local
func (w *Workspace) SetWorkMode(mode string) error {
	if mode != WorkModeAuto && mode != WorkModeLocal {
		return ErrInvalidWorkMode
	}
	if err := w.store.SetWorkMode(WorkModeLocal); err != nil {
		return fmt.Errorf("persist work mode: %w", err)
	}
	if mode != WorkModeLocal {
		w.log.Info("legacy work mode normalised", zap.String("requested", mode))
	}
	w.surface.Toast("🔧 Work mode: " + workModeDescription)
	w.publishStatus(w.engine.Status())
	return nil
}

const workModeDescription = "Local work - changes are saved locally and sync automatically after a few seconds"

// Status is the workspace snapshot served to the browser and /api/status
type Status struct {
	syncengine.Status
	CurrentModule string             `json:"current_module"`
	WorkMode      string             `json:"work_mode"`
	Connectivity  connectivity.Stats `json:"connectivity"`
	Build         buildinfo.Info     `json:"build"`
}

// Status returns the current snapshot
func (w *Workspace) Status() Status {
	return w.statusFrom(w.engine.Status())
}

func (w *Workspace) statusFrom(st syncengine.Status) Status {
	return Status{
		Status:        st,
		CurrentModule: w.registry.Current(),
		WorkMode:      w.WorkMode(),
		Connectivity:  w.monitor.Stats(),
		Build:         buildinfo.Get(),
	}
}

// ===== api.Workspace =====

func (w *Workspace) Read(ctx context.Context, moduleID string) (json.RawMessage, error) {
	return w.engine.Read(ctx, moduleID)
}

func (w *Workspace) Write(ctx context.Context, moduleID string, doc json.RawMessage) error {
	return w.engine.Write(ctx, moduleID, doc)
}

func (w *Workspace) UpdateNavigation(markup string) { w.surface.Replace(ui.RegionNavigation, markup) }
func (w *Workspace) UpdateActions(markup string)    { w.surface.Replace(ui.RegionActions, markup) }
func (w *Workspace) UpdateContainer(markup string)  { w.surface.Replace(ui.RegionContainer, markup) }
func (w *Workspace) ShowMessage(msg string)         { w.surface.Toast(msg) }
func (w *Workspace) CurrentModule() string          { return w.registry.Current() }
func (w *Workspace) IsOnline() bool                 { return w.monitor.IsOnline() }
func (w *Workspace) PendingCount() int              { return w.store.PendingCount() }

func (w *Workspace) ForceSync(ctx context.Context) (int, error) {
	res, err := w.engine.ForceSync(ctx)
	if err != nil {
		return 0, err
	}
	return res.Synced, nil
}

// ===== syncengine.Notifier =====

func (w *Workspace) SyncStatusChanged(st syncengine.Status) {
	w.publishStatus(st)
}

// DocumentRefreshed re-renders the active module after a newer server copy
// replaced one of the documents it may show
func (w *Workspace) DocumentRefreshed(moduleID string) {
	w.surface.Publish(ui.EventRefreshed, map[string]string{"module": moduleID})

	current := w.registry.Current()
	if current == "" {
		return
	}
	inst, ok := w.registry.Instance(current)
	if !ok {
		return
	}
	if r, ok := inst.(api.Refresher); ok {
		if err := r.Refresh(context.Background()); err != nil {
			w.log.Warn("refresh after server update failed",
				zap.String("module", current),
				zap.String("document", moduleID),
				zap.Error(err))
		}
	}
}

func (w *Workspace) publishStatus(st syncengine.Status) {
	w.surface.Publish(ui.EventStatus, w.statusFrom(st))
}

func (w *Workspace) publishModules() {
	w.surface.Publish(ui.EventModules, w.registry.List())
}

func (w *Workspace) renderWelcome() {
	w.surface.Replace(ui.RegionNavigation, "")
	w.surface.Replace(ui.RegionActions, "")
	w.surface.Replace(ui.RegionContainer, welcomeView())
	w.surface.Replace(ui.RegionTitle, titleView(ShellTitle))
}
