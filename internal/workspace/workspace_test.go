package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xelth-com/modspace/internal/cache"
	"github.com/xelth-com/modspace/internal/connectivity"
	"github.com/xelth-com/modspace/internal/gateway"
	"github.com/xelth-com/modspace/internal/gateway/gatewaytest"
	"github.com/xelth-com/modspace/internal/localstore"
	"github.com/xelth-com/modspace/internal/modules/tasks"
	"github.com/xelth-com/modspace/internal/registry"
	"github.com/xelth-com/modspace/internal/schema"
	syncengine "github.com/xelth-com/modspace/internal/sync"
	"github.com/xelth-com/modspace/internal/ui"
	"github.com/xelth-com/modspace/internal/ui/uitest"
)

type harness struct {
	ws      *Workspace
	srv     *gatewaytest.Server
	surface *uitest.Recorder
	store   *cache.Store
	monitor *connectivity.Monitor
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)

	srv := gatewaytest.New("")
	t.Cleanup(srv.Close)

	store, err := cache.Open(localstore.NewMemory(), cache.Options{Logger: log})
	require.NoError(t, err)

	monitor := connectivity.NewMonitor(online, nil, 0, log)
	surface := uitest.NewRecorder()
	client := gateway.NewClient(gateway.Config{BaseURL: srv.BaseURL(), Timeout: 5 * time.Second}, log)

	ws, err := New(Options{
		Store:   store,
		Gateway: client,
		Monitor: monitor,
		Surface: surface,
		Sync:    syncengine.Config{Debounce: time.Hour, SweepInterval: time.Hour},
		Logger:  log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close(context.Background()) })

	return &harness{ws: ws, srv: srv, surface: surface, store: store, monitor: monitor}
}

type fakeInstance struct {
	mu        sync.Mutex
	actions   []string
	refreshes int
	destroyed bool
}

func (f *fakeInstance) HandleAction(ctx context.Context, action string, payload json.RawMessage) error {
	if action == "fail" {
		return errors.New("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action+" "+string(payload))
	return nil
}

func (f *fakeInstance) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakeInstance) Destroy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
	return nil
}

func (f *fakeInstance) snapshot() (actions []string, refreshes int, destroyed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...), f.refreshes, f.destroyed
}

func registerFake(t *testing.T, h *harness, id string) *fakeInstance {
	t.Helper()
	inst := &fakeInstance{}
	require.NoError(t, h.ws.Register(registry.Descriptor{
		ID:   id,
		Name: "Fake " + id,
		Load: func(ctx context.Context) (registry.Instance, error) {
			return inst, nil
		},
	}))
	return inst
}

func TestNew_RequiresComponents(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestWorkspace_StartBootstrapsAndRendersWelcome(t *testing.T) {
	h := newHarness(t, true)
	h.srv.Put(schema.TasksID, `{"scenarios":{}}`)
	require.NoError(t, h.ws.Register(tasks.Descriptor(h.ws, zaptest.NewLogger(t))))

	require.NoError(t, h.ws.Start(context.Background()))

	entry, ok := h.store.Get(schema.TasksID)
	require.True(t, ok)
	assert.JSONEq(t, `{"scenarios":{}}`, string(entry.Doc))
	assert.False(t, h.store.IsPending(schema.TasksID))

	assert.Contains(t, h.surface.Region(ui.RegionContainer), "Welcome")
	assert.Equal(t, ShellTitle, h.surface.Region(ui.RegionTitle))

	mods, ok := h.surface.Event(ui.EventModules)
	require.True(t, ok)
	require.Len(t, mods, 1)
	assert.Equal(t, schema.TasksID, mods.([]registry.Info)[0].ID)

	_, ok = h.surface.Event(ui.EventStatus)
	assert.True(t, ok)
}

func TestWorkspace_ActivateRendersModuleAndTitle(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.ws.Register(tasks.Descriptor(h.ws, zaptest.NewLogger(t))))
	ctx := context.Background()

	require.NoError(t, h.ws.Activate(ctx, schema.TasksID))

	assert.Equal(t, schema.TasksID, h.ws.CurrentModule())
	assert.Equal(t, "Tasks", h.surface.Region(ui.RegionTitle))
	assert.Contains(t, h.surface.Region(ui.RegionNavigation), "Personal")
	assert.NotContains(t, h.surface.Region(ui.RegionContainer), "loading-state")
}

func TestWorkspace_ActivateFailureRendersErrorState(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.ws.Register(registry.Descriptor{
		ID:   "broken",
		Name: "Broken",
		Load: func(ctx context.Context) (registry.Instance, error) {
			return nil, errors.New("missing <template>")
		},
	}))

	err := h.ws.Activate(context.Background(), "broken")
	require.Error(t, err)

	container := h.surface.Region(ui.RegionContainer)
	assert.Contains(t, container, "Error loading Broken")
	assert.Contains(t, container, `data-signal="activate"`)
	assert.Contains(t, container, `data-module="broken"`)
	assert.Contains(t, container, "missing &lt;template&gt;")
	assert.True(t, h.surface.HasToast("Error loading Broken"))
	assert.Empty(t, h.ws.CurrentModule())
}

func TestWorkspace_ActivateUnknownModule(t *testing.T) {
	h := newHarness(t, true)
	err := h.ws.Activate(context.Background(), "nope")
	assert.ErrorIs(t, err, registry.ErrNotRegistered)
}

func TestWorkspace_ActionSignalReachesActiveModule(t *testing.T) {
	h := newHarness(t, true)
	inst := registerFake(t, h, "fake")
	other := registerFake(t, h, "other")
	ctx := context.Background()

	require.NoError(t, h.ws.HandleSignal(ctx, ui.Signal{Type: ui.SignalActivate, Module: "fake"}))
	require.NoError(t, h.ws.HandleSignal(ctx, ui.Signal{
		Type:    ui.SignalAction,
		Action:  "ping",
		Payload: json.RawMessage(`{"id":1}`),
	}))

	actions, _, _ := inst.snapshot()
	assert.Equal(t, []string{`ping {"id":1}`}, actions)

	err := h.ws.HandleAction(ctx, "other", "ping", nil)
	assert.ErrorIs(t, err, ErrModuleNotActive)
	otherActions, _, _ := other.snapshot()
	assert.Empty(t, otherActions)

	err = h.ws.HandleAction(ctx, "", "fail", nil)
	require.EqualError(t, err, "boom")
	assert.True(t, h.surface.HasToast("boom"))
}

func TestWorkspace_ActionWithoutHandler(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.ws.Register(registry.Descriptor{
		ID:   "static",
		Name: "Static",
		Load: func(ctx context.Context) (registry.Instance, error) {
			return struct{}{}, nil
		},
	}))
	ctx := context.Background()
	require.NoError(t, h.ws.Activate(ctx, "static"))

	err := h.ws.HandleAction(ctx, "static", "anything", nil)
	assert.ErrorIs(t, err, ErrNoActions)
}

func TestWorkspace_TasksActionWritesLocally(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.ws.Register(tasks.Descriptor(h.ws, zaptest.NewLogger(t))))
	ctx := context.Background()
	require.NoError(t, h.ws.Activate(ctx, schema.TasksID))

	require.NoError(t, h.ws.HandleSignal(ctx, ui.Signal{
		Type:    ui.SignalAction,
		Module:  schema.TasksID,
		Action:  "add-task",
		Payload: json.RawMessage(`{"title":"Buy milk"}`),
	}))

	entry, ok := h.store.Get(schema.TasksID)
	require.True(t, ok)
	assert.Contains(t, string(entry.Doc), "Buy milk")
	assert.True(t, h.store.IsPending(schema.TasksID))
	assert.Equal(t, 1, h.ws.PendingCount())
	assert.Contains(t, h.surface.Region(ui.RegionContainer), "Buy milk")
	assert.Empty(t, h.srv.PushesFor(schema.TasksID))
}

func TestWorkspace_ConnectivitySignals(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.ws.HandleSignal(ctx, ui.Signal{Type: ui.SignalOffline}))
	assert.False(t, h.ws.IsOnline())
	assert.True(t, h.surface.HasToast("Offline mode"))

	require.NoError(t, h.ws.HandleSignal(ctx, ui.Signal{Type: ui.SignalOnline}))
	assert.True(t, h.ws.IsOnline())
	assert.True(t, h.surface.HasToast("Connection restored"))
}

func TestWorkspace_ReconnectPushesOfflineWrites(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	require.NoError(t, h.ws.Write(ctx, "fake", json.RawMessage(`{"n":1}`)))
	require.True(t, h.store.IsPending("fake"))

	require.NoError(t, h.ws.HandleSignal(ctx, ui.Signal{Type: ui.SignalOnline}))

	require.Eventually(t, func() bool {
		return !h.store.IsPending("fake")
	}, 2*time.Second, 10*time.Millisecond)
	doc, ok := h.srv.Doc("fake")
	require.True(t, ok)
	assert.JSONEq(t, `{"n":1}`, doc)
}

func TestWorkspace_SyncSignal(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.ws.HandleSignal(ctx, ui.Signal{Type: ui.SignalSync}))
	assert.True(t, h.surface.HasToast("Nothing to synchronize"))

	require.NoError(t, h.ws.Write(ctx, "fake", json.RawMessage(`{"n":2}`)))
	require.NoError(t, h.ws.HandleSignal(ctx, ui.Signal{Type: ui.SignalSync}))
	assert.False(t, h.store.IsPending("fake"))
	assert.True(t, h.surface.HasToast("1 items synchronized"))
}

func TestWorkspace_UnloadSignalFlushes(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.ws.Write(ctx, "fake", json.RawMessage(`{"n":3}`)))
	require.NoError(t, h.ws.HandleSignal(ctx, ui.Signal{Type: ui.SignalUnload}))

	assert.False(t, h.store.IsPending("fake"))
	assert.Len(t, h.srv.PushesFor("fake"), 1)
}

func TestWorkspace_UnknownSignal(t *testing.T) {
	h := newHarness(t, true)
	err := h.ws.HandleSignal(context.Background(), ui.Signal{Type: "reboot"})
	assert.ErrorIs(t, err, ErrUnknownSignal)
}

func TestWorkspace_DocumentRefreshedRerendersActiveModule(t *testing.T) {
	h := newHarness(t, true)
	inst := registerFake(t, h, "fake")
	require.NoError(t, h.ws.Activate(context.Background(), "fake"))

	h.ws.DocumentRefreshed("fake")

	_, refreshes, _ := inst.snapshot()
	assert.Equal(t, 1, refreshes)
	payload, ok := h.surface.Event(ui.EventRefreshed)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"module": "fake"}, payload)
}

func TestWorkspace_ClearAll(t *testing.T) {
	h := newHarness(t, true)
	inst := registerFake(t, h, "fake")
	ctx := context.Background()

	h.srv.Put("fake", `{"server":true}`)
	require.NoError(t, h.ws.Activate(ctx, "fake"))
	require.NoError(t, h.ws.Write(ctx, "fake", json.RawMessage(`{"local":true}`)))
	require.NoError(t, h.ws.SetWorkMode(WorkModeAuto))

	res, err := h.ws.ClearAll(ctx)
	require.NoError(t, err)

	assert.True(t, res.ServerCleared)
	assert.Equal(t, 1, res.ServerDeleted)
	_, onServer := h.srv.Doc("fake")
	assert.False(t, onServer)

	assert.Empty(t, h.store.IDs())
	assert.Zero(t, h.store.PendingCount())
	assert.Empty(t, h.store.WorkMode())
	assert.False(t, h.ws.Engine().DebouncePending())

	_, _, destroyed := inst.snapshot()
	assert.True(t, destroyed)
	assert.Empty(t, h.ws.CurrentModule())
	assert.Contains(t, h.surface.Region(ui.RegionContainer), "Welcome")
	assert.Empty(t, h.surface.Region(ui.RegionNavigation))
	assert.True(t, h.surface.HasToast("All data deleted"))
}

func TestWorkspace_ClearAllWipesLocallyWhenServerFails(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.ws.Write(ctx, "fake", json.RawMessage(`{"n":1}`)))
	h.srv.FailAll(true)

	res, err := h.ws.ClearAll(ctx)
	require.NoError(t, err)

	assert.False(t, res.ServerCleared)
	assert.Empty(t, h.store.IDs())
	assert.Zero(t, h.store.PendingCount())
}

func TestWorkspace_WorkMode(t *testing.T) {
	h := newHarness(t, true)
	assert.Equal(t, WorkModeLocal, h.ws.WorkMode())

	require.NoError(t, h.ws.SetWorkMode(WorkModeAuto))
	assert.Equal(t, WorkModeLocal, h.ws.WorkMode())
	assert.Equal(t, WorkModeLocal, h.store.WorkMode())
	assert.True(t, h.surface.HasToast("Local work"))

	assert.ErrorIs(t, h.ws.SetWorkMode("turbo"), ErrInvalidWorkMode)
	assert.Equal(t, WorkModeLocal, h.store.WorkMode())
}

func TestWorkspace_Status(t *testing.T) {
	h := newHarness(t, true)
	registerFake(t, h, "fake")
	ctx := context.Background()
	require.NoError(t, h.ws.Activate(ctx, "fake"))
	require.NoError(t, h.ws.Write(ctx, "fake", json.RawMessage(`{}`)))

	st := h.ws.Status()
	assert.True(t, st.Online)
	assert.Equal(t, "fake", st.CurrentModule)
	assert.Equal(t, WorkModeLocal, st.WorkMode)
	assert.Equal(t, []string{"fake"}, st.Pending)
	assert.Equal(t, 1, st.PendingCount)
	assert.NotEmpty(t, st.Build.GoVersion)

	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"pending_count":1`)
	assert.Contains(t, string(raw), `"current_module":"fake"`)
}

func TestWorkspace_ExportAll(t *testing.T) {
	h := newHarness(t, true)
	registerFake(t, h, "fake")
	ctx := context.Background()
	require.NoError(t, h.ws.Write(ctx, "fake", json.RawMessage(`{"a":1}`)))
	require.NoError(t, h.ws.Write(ctx, "fake_extra", json.RawMessage(`[1,2]`)))

	exp, err := h.ws.ExportAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, "complete-system", exp.ExportType)
	assert.Equal(t, FrameworkVersion, exp.FrameworkVersion)
	assert.JSONEq(t, `{"a":1}`, string(exp.Modules["fake"]))
	assert.JSONEq(t, `[1,2]`, string(exp.Modules["fake_extra"]))
	assert.NotContains(t, exp.Modules, schema.FrameworkID)
	assert.JSONEq(t, `{"theme":"light","language":"en"}`, string(exp.Framework.GlobalConfig))
}

func TestWorkspace_ExportModule(t *testing.T) {
	h := newHarness(t, true)
	registerFake(t, h, "fake")
	ctx := context.Background()

	_, err := h.ws.ExportModule(ctx, "")
	assert.ErrorIs(t, err, ErrNoCurrentModule)

	require.NoError(t, h.ws.Activate(ctx, "fake"))
	require.NoError(t, h.ws.Write(ctx, "fake", json.RawMessage(`{"a":2}`)))

	exp, err := h.ws.ExportModule(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "fake", exp.Module)
	assert.Equal(t, "Fake fake", exp.ModuleName)
	assert.JSONEq(t, `{"a":2}`, string(exp.Data))
}

func TestWorkspace_ImportCompleteSystem(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.ws.Write(ctx, "stale", json.RawMessage(`{"old":true}`)))
	require.NoError(t, h.ws.SetWorkMode(WorkModeAuto))

	payload := `{
		"exportType": "complete-system",
		"frameworkVersion": "4.0.0",
		"framework": {"currentModule": "tasks", "globalConfig": {"theme": "dark", "language": "es"}},
		"modules": {"tasks": {"t": 1}, "notes": {"n": 1}}
	}`
	res, err := h.ws.Import(ctx, []byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "complete-system", res.Kind)
	assert.Equal(t, []string{"notes", "tasks", schema.FrameworkID}, res.Imported)
	assert.Empty(t, res.Pending)

	doc, ok := h.srv.Doc("tasks")
	require.True(t, ok)
	assert.JSONEq(t, `{"t":1}`, doc)

	assert.False(t, h.store.Has("stale"))
	assert.Zero(t, h.store.PendingCount())
	entry, ok := h.store.Get("notes")
	require.True(t, ok)
	assert.JSONEq(t, `{"n":1}`, string(entry.Doc))
	assert.Equal(t, WorkModeLocal, h.store.WorkMode())
	assert.True(t, h.surface.HasToast("2 modules restored"))
}

func TestWorkspace_ImportModuleKeepsRefusedDocumentPending(t *testing.T) {
	h := newHarness(t, true)
	h.srv.FailSaves("notes", true)

	res, err := h.ws.Import(context.Background(), []byte(`{"module":"notes","moduleName":"Notes","data":{"n":2}}`))
	require.NoError(t, err)

	assert.Equal(t, "module", res.Kind)
	assert.Equal(t, []string{"notes"}, res.Pending)
	assert.True(t, h.store.IsPending("notes"))
	entry, ok := h.store.Get("notes")
	require.True(t, ok)
	assert.JSONEq(t, `{"n":2}`, string(entry.Doc))
	assert.True(t, h.surface.HasToast("Notes data imported"))
}

func TestWorkspace_ImportRejectsMalformedPayloadWithoutChanges(t *testing.T) {
	cases := map[string]string{
		"not json":            `{"module":`,
		"array":               `[1,2]`,
		"empty":               ``,
		"unknown shape":       `{"hello":"world"}`,
		"no version":          `{"exportType":"complete-system","modules":{"a":{}}}`,
		"null module data":    `{"exportType":"complete-system","frameworkVersion":"4.0.0","modules":{"a":null}}`,
		"module without data": `{"module":"tasks"}`,
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, true)
			ctx := context.Background()
			require.NoError(t, h.ws.Write(ctx, "keep", json.RawMessage(`{"k":1}`)))

			_, err := h.ws.Import(ctx, []byte(payload))
			assert.ErrorIs(t, err, ErrMalformedImport)

			assert.Empty(t, h.srv.Pushes())
			assert.True(t, h.store.Has("keep"))
			assert.True(t, h.store.IsPending("keep"))
		})
	}
}
