package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xelth-com/modspace/internal/auth"
	"github.com/xelth-com/modspace/internal/cache"
	"github.com/xelth-com/modspace/internal/config"
	"github.com/xelth-com/modspace/internal/connectivity"
	"github.com/xelth-com/modspace/internal/gateway"
	"github.com/xelth-com/modspace/internal/gateway/gatewaytest"
	"github.com/xelth-com/modspace/internal/localstore"
	"github.com/xelth-com/modspace/internal/middleware"
	"github.com/xelth-com/modspace/internal/modules/tasks"
	"github.com/xelth-com/modspace/internal/schema"
	syncengine "github.com/xelth-com/modspace/internal/sync"
	"github.com/xelth-com/modspace/internal/ui/uitest"
	"github.com/xelth-com/modspace/internal/workspace"
)

type testEnv struct {
	router  *Router
	ws      *workspace.Workspace
	srv     *gatewaytest.Server
	store   *cache.Store
	monitor *connectivity.Monitor
}

func newTestEnv(t *testing.T, access config.AccessConfig) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)

	srv := gatewaytest.New("")
	t.Cleanup(srv.Close)

	store, err := cache.Open(localstore.NewMemory(), cache.Options{Logger: log})
	require.NoError(t, err)

	monitor := connectivity.NewMonitor(true, nil, 0, log)
	reg := prometheus.NewRegistry()

	ws, err := workspace.New(workspace.Options{
		Store:      store,
		Gateway:    gateway.NewClient(gateway.Config{BaseURL: srv.BaseURL(), Timeout: 5 * time.Second}, log),
		Monitor:    monitor,
		Surface:    uitest.NewRecorder(),
		Sync:       syncengine.Config{Debounce: time.Hour, SweepInterval: time.Hour},
		Registerer: reg,
		Logger:     log,
	})
	require.NoError(t, err)
	require.NoError(t, ws.Register(tasks.Descriptor(ws, log)))
	require.NoError(t, ws.Start(context.Background()))
	t.Cleanup(func() { ws.Close(context.Background()) })

	router := NewRouter(Options{
		Workspace: ws,
		Gatherer:  reg,
		Static:    fstest.MapFS{"index.html": {Data: []byte("<html>shell</html>")}},
		Access:    access,
		Logger:    log,
	})
	return &testEnv{router: router, ws: ws, srv: srv, store: store, monitor: monitor}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t, config.AccessConfig{})

	rec := env.do("GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = env.do("GET", "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["online"])
	assert.Equal(t, float64(0), body["pending_count"])
}

func TestModulesAndActivation(t *testing.T) {
	env := newTestEnv(t, config.AccessConfig{})

	rec := env.do("GET", "/api/modules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	mods := decode(t, rec)["modules"].([]interface{})
	require.Len(t, mods, 1)
	assert.Equal(t, schema.TasksID, mods[0].(map[string]interface{})["id"])

	rec = env.do("POST", "/api/modules/tasks/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, schema.TasksID, env.ws.CurrentModule())

	rec = env.do("POST", "/api/modules/nope/activate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModuleAction(t *testing.T) {
	env := newTestEnv(t, config.AccessConfig{})

	rec := env.do("POST", "/api/modules/tasks/actions/add-task", `{"text":"x"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "module is not active yet")

	require.Equal(t, http.StatusOK, env.do("POST", "/api/modules/tasks/activate", "").Code)

	rec = env.do("POST", "/api/modules/tasks/actions/add-task", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataReadWrite(t *testing.T) {
	env := newTestEnv(t, config.AccessConfig{})
	env.monitor.Set(false, "test")

	rec := env.do("POST", "/api/data/notes", `{"notes":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["pending_count"])
	assert.True(t, env.store.IsPending("notes"))

	rec = env.do("GET", "/api/data/notes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"notes":[]}`, rec.Body.String())

	rec = env.do("POST", "/api/data/notes", `{broken`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForceSync(t *testing.T) {
	env := newTestEnv(t, config.AccessConfig{})
	env.monitor.Set(false, "test")
	require.Equal(t, http.StatusOK, env.do("POST", "/api/data/notes", `{"a":1}`).Code)

	rec := env.do("POST", "/api/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.monitor.Set(true, "test")
	require.Eventually(t, func() bool { return !env.store.IsPending("notes") }, 2*time.Second, 10*time.Millisecond)

	rec = env.do("POST", "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["pending_count"])
	doc, ok := env.srv.Doc("notes")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, doc)
}

func TestSignals(t *testing.T) {
	env := newTestEnv(t, config.AccessConfig{})

	rec := env.do("POST", "/api/signals/offline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.ws.IsOnline())

	rec = env.do("POST", "/api/signals/activate", `{"module":"tasks"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, schema.TasksID, env.ws.CurrentModule())

	rec = env.do("POST", "/api/signals/dance", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkMode(t *testing.T) {
	env := newTestEnv(t, config.AccessConfig{})

	rec := env.do("PUT", "/api/workmode", `{"mode":"auto"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, workspace.WorkModeLocal, decode(t, rec)["mode"])

	rec = env.do("PUT", "/api/workmode", `{"mode":"turbo"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("GET", "/api/workmode", "")
	assert.Equal(t, workspace.WorkModeLocal, decode(t, rec)["mode"])
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t, config.AccessConfig{})
	env.srv.Put("notes", `{"n":1}`)
	rec := env.do("GET", "/api/data/notes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do("GET", "/api/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "framework-modular-backup-")
	backup := rec.Body.String()
	assert.Contains(t, backup, `"exportType": "complete-system"`)

	rec = env.do("GET", "/api/export/current", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do("POST", "/api/import", `{"hello":"world"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do("POST", "/api/import", backup)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "complete-system", decode(t, rec)["kind"])
}

func TestClearAll(t *testing.T) {
	env := newTestEnv(t, config.AccessConfig{})
	env.srv.Put("notes", `{"n":1}`)

	rec := env.do("DELETE", "/api/data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, ok := env.srv.Doc("notes")
	assert.False(t, ok)
}

func TestMetricsAndStatic(t *testing.T) {
	env := newTestEnv(t, config.AccessConfig{})

	rec := env.do("GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modspace_")

	rec = env.do("GET", "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shell")
}

func TestAccessGuard(t *testing.T) {
	hash, err := auth.HashPassword("open-sesame")
	require.NoError(t, err)
	env := newTestEnv(t, config.AccessConfig{TokenSecret: "k", PasswordHash: hash, TokenTTL: time.Hour})

	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/status", "").Code)
	assert.Equal(t, http.StatusOK, env.do("GET", "/health", "").Code)

	rec := env.do("POST", "/auth/login", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do("POST", "/auth/login", `{"password":"open-sesame"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode(t, rec)["token"].(string)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.TokenCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	req := httptest.NewRequest("GET", "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	out := httptest.NewRecorder()
	env.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code)

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.AddCookie(cookie)
	out = httptest.NewRecorder()
	env.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code)
}
