// Package sync keeps the local document cache and the remote gateway in
// step: read-through with background refresh, debounced write-back and
// sweeps of the pending set on reconnect, visibility, timer and unload.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/cache"
	"github.com/xelth-com/modspace/internal/gateway"
)

var (
	ErrInvalidDocument = errors.New("document is not valid JSON")
	ErrOffline         = errors.New("gateway is offline")
	ErrSyncInProgress  = errors.New("sync already in progress")
	ErrStopped         = errors.New("sync engine stopped")

	errNoDocument = errors.New("no cached document")
)

// Gateway is the remote document store
type Gateway interface {
	Get(ctx context.Context, moduleID string) (json.RawMessage, error)
	Save(ctx context.Context, moduleID string, doc json.RawMessage) error
}

// Connectivity reports whether the gateway is reachable
type Connectivity interface {
	IsOnline() bool
}

// Notifier receives user-facing feedback from the engine
type Notifier interface {
	ShowMessage(msg string)
	SyncStatusChanged(st Status)
	DocumentRefreshed(moduleID string)
}

// Trigger names what started a push or a sweep
type Trigger string

const (
	TriggerDebounce  Trigger = "debounce"
	TriggerReconnect Trigger = "reconnect"
	TriggerVisible   Trigger = "visible"
	TriggerPeriodic  Trigger = "periodic"
	TriggerManual    Trigger = "manual"
	TriggerUnload    Trigger = "unload"
)

// Status is a point-in-time view of the engine
type Status struct {
	Online       bool     `json:"online"`
	Syncing      bool     `json:"syncing"`
	Pending      []string `json:"pending"`
	PendingCount int      `json:"pending_count"`
	Parked       []string `json:"parked,omitempty"`
}

// Options wires an Engine
type Options struct {
	Store        *cache.Store
	Gateway      Gateway
	Connectivity Connectivity
	// Defaults returns the seed document for a module id
	Defaults   func(moduleID string) json.RawMessage
	Notifier   Notifier
	Config     Config
	Registerer prometheus.Registerer
	Logger     *zap.Logger
	Now        func() time.Time
}

// Engine is the sync engine
type Engine struct {
	mu sync.Mutex

	store    *cache.Store
	gw       Gateway
	conn     Connectivity
	defaults func(string) json.RawMessage
	notify   Notifier
	cfg      Config
	metrics  *Metrics
	log      *zap.Logger
	now      func() time.Time

	// debounce
	timer       *time.Timer
	timerGen    uint64
	lastWritten string

	sweeping   bool
	refreshing map[string]bool
	retries    map[string]*retryState

	running bool
	stopped bool
	stopCh  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates an engine. Writes are debounced as soon as it exists;
// Start only adds the periodic sweep.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Defaults == nil {
		opts.Defaults = func(string) json.RawMessage { return json.RawMessage(`{}`) }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:      opts.Store,
		gw:         opts.Gateway,
		conn:       opts.Connectivity,
		defaults:   opts.Defaults,
		notify:     opts.Notifier,
		cfg:        opts.Config.withDefaults(),
		metrics:    NewMetrics(opts.Registerer),
		log:        opts.Logger.Named("sync"),
		now:        opts.Now,
		refreshing: make(map[string]bool),
		retries:    make(map[string]*retryState),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the periodic sweep loop
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrStopped
	}
	if e.running {
		return errors.New("sync engine already running")
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.periodicLoop(e.stopCh)

	e.log.Info("🔄 sync engine started",
		zap.Duration("debounce", e.cfg.Debounce),
		zap.Duration("sweep_interval", e.cfg.SweepInterval),
		zap.Int("pending", e.store.PendingCount()))
	return nil
}

// Stop cancels the debounce timer and in-flight work and waits for every
// background goroutine. Pending ids stay pending.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.stopTimerLocked()
	if e.running {
		e.running = false
		close(e.stopCh)
	}
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.log.Info("🛑 sync engine stopped")
}

// Bootstrap seeds the cache for ids: from the gateway when online (falling
// back to the default document), otherwise from the defaults. Ids with an
// unconfirmed local change keep their cached document.
func (e *Engine) Bootstrap(ctx context.Context, ids []string) {
	online := e.conn.IsOnline()
	loaded, kept := 0, 0
	for _, id := range ids {
		if e.store.IsPending(id) {
			kept++
			continue
		}
		doc := e.defaults(id)
		if online {
			fetched, err := e.fetch(ctx, id)
			switch {
			case err == nil:
				doc = fetched
				loaded++
			case errors.Is(err, gateway.ErrNotFound):
			default:
				e.log.Warn("❌ failed to load fresh document, using default",
					zap.String("module", id), zap.Error(err))
			}
		}
		e.store.Seed(id, doc, e.now())
	}
	e.log.Info("cache bootstrapped",
		zap.Bool("online", online),
		zap.Int("modules", len(ids)),
		zap.Int("from_server", loaded),
		zap.Int("kept_pending", kept))
	e.publishStatus()
}

// Read returns the document for id. A cached copy is returned at once and
// refreshed in the background when stale; a miss is fetched from the gateway
// or falls back to the default document. Read fails only when ctx ends.
func (e *Engine) Read(ctx context.Context, id string) (json.RawMessage, error) {
	if entry, ok := e.store.Get(id); ok {
		if e.conn.IsOnline() && e.isStale(entry) {
			e.refreshAsync(id, entry.Version)
		}
		return entry.Doc, nil
	}

	doc := e.defaults(id)
	if e.conn.IsOnline() {
		fetched, err := e.fetch(ctx, id)
		switch {
		case err == nil:
			doc = fetched
		case errors.Is(err, gateway.ErrNotFound):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			e.log.Warn("fetch failed, using default document",
				zap.String("module", id), zap.Error(err))
		}
	}

	entry, _ := e.store.SeedIfAbsent(id, doc, e.now())
	return entry.Doc, nil
}

// Write stores doc for id locally and schedules a debounced push
func (e *Engine) Write(ctx context.Context, id string, doc json.RawMessage) error {
	if !json.Valid(doc) {
		return ErrInvalidDocument
	}
	e.store.Write(id, doc)

	e.mu.Lock()
	delete(e.retries, id)
	e.lastWritten = id
	e.scheduleLocked()
	e.mu.Unlock()

	e.log.Debug("document written, sync scheduled",
		zap.String("module", id),
		zap.Int("bytes", len(doc)),
		zap.Duration("in", e.cfg.Debounce))
	e.publishStatus()
	return nil
}

// ForceSync sweeps the pending set immediately, ignoring retry backoff and
// parked modules.
func (e *Engine) ForceSync(ctx context.Context) (SweepResult, error) {
	e.resetAllRetries()
	return e.sweep(ctx, TriggerManual, sweepOptions{force: true})
}

// Status returns the current engine status
func (e *Engine) Status() Status {
	pending := e.store.Pending()
	e.mu.Lock()
	syncing := e.sweeping
	e.mu.Unlock()
	return Status{
		Online:       e.conn.IsOnline(),
		Syncing:      syncing,
		Pending:      pending,
		PendingCount: len(pending),
		Parked:       e.Parked(),
	}
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) fetch(ctx context.Context, id string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PushTimeout)
	defer cancel()
	return e.gw.Get(ctx, id)
}

// push sends the current cached document of id. The pending mark is
// cleared only if the document did not change during the call.
func (e *Engine) push(ctx context.Context, id string, trigger Trigger) error {
	entry, ok := e.store.Get(id)
	if !ok {
		e.store.Forget(id)
		return errNoDocument
	}

	pctx, cancel := context.WithTimeout(ctx, e.cfg.PushTimeout)
	defer cancel()

	if err := e.gw.Save(pctx, id, entry.Doc); err != nil {
		e.metrics.Pushes.WithLabelValues(string(trigger), "error").Inc()
		e.recordFailure(id)
		e.log.Warn("❌ push failed",
			zap.String("module", id),
			zap.String("trigger", string(trigger)),
			zap.Error(err))
		return err
	}

	e.metrics.Pushes.WithLabelValues(string(trigger), "ok").Inc()
	e.resetRetry(id)
	cleared := e.store.MarkSynced(id, entry.Version, e.now())
	e.log.Debug("✅ pushed",
		zap.String("module", id),
		zap.String("trigger", string(trigger)),
		zap.Bool("cleared", cleared))
	return nil
}

func (e *Engine) isStale(entry cache.Entry) bool {
	if entry.SyncedAt.IsZero() {
		return true
	}
	return e.now().Sub(entry.SyncedAt) > e.cfg.Staleness
}

// goTracked runs fn on a goroutine the engine waits for on Stop. It returns
// false once the engine is stopped.
func (e *Engine) goTracked(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
	return true
}

func (e *Engine) publishStatus() {
	st := e.Status()
	e.metrics.Pending.Set(float64(st.PendingCount))
	e.notify.SyncStatusChanged(st)
}

func (e *Engine) resetAllRetries() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retries = make(map[string]*retryState)
}

type nopNotifier struct{}

func (nopNotifier) ShowMessage(string)       {}
func (nopNotifier) SyncStatusChanged(Status) {}
func (nopNotifier) DocumentRefreshed(string) {}
