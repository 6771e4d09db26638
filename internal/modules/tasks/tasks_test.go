package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xelth-com/modspace/internal/api"
	"github.com/xelth-com/modspace/internal/api/apitest"
	"github.com/xelth-com/modspace/internal/defaults"
	"github.com/xelth-com/modspace/internal/registry"
	"github.com/xelth-com/modspace/internal/schema"
)

func seeded(t *testing.T) *apitest.Workspace {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return apitest.New(map[string]json.RawMessage{
		schema.TasksID: defaults.Document(schema.TasksID, now),
	})
}

func action(t *testing.T, m *Module, name string, payload string) {
	t.Helper()
	require.NoError(t, m.HandleAction(context.Background(), name, json.RawMessage(payload)))
}

func TestLoad_RendersRegions(t *testing.T) {
	ws := seeded(t)
	m, err := Load(context.Background(), ws, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, m)

	nav, actions, container := ws.Regions()
	assert.Contains(t, nav, "Personal")
	assert.Contains(t, actions, "Work")
	assert.Contains(t, container, "No tasks yet.")
}

func TestDescriptor(t *testing.T) {
	ws := seeded(t)
	d := Descriptor(ws, zaptest.NewLogger(t))
	assert.Equal(t, schema.TasksID, d.ID)

	inst, err := d.Load(context.Background())
	require.NoError(t, err)
	_, ok := inst.(api.ActionHandler)
	assert.True(t, ok)
	_, ok = inst.(registry.Destroyer)
	assert.True(t, ok)
}

func TestHandleAction_TaskLifecycle(t *testing.T) {
	ws := seeded(t)
	m, err := Load(context.Background(), ws, zaptest.NewLogger(t))
	require.NoError(t, err)

	action(t, m, "add-task", `{"title":"<b>Buy milk</b>","projectId":"2"}`)
	action(t, m, "add-task", `{"title":"Write report"}`)

	var doc schema.TasksDocument
	require.NoError(t, json.Unmarshal(ws.Doc(schema.TasksID), &doc))
	sc := doc.Current()
	require.Len(t, sc.Data.Tasks, 2)
	assert.Equal(t, 2, sc.Data.Tasks[0].ProjectID)
	assert.Equal(t, 3, sc.Data.TaskIDCounter)

	_, _, container := ws.Regions()
	assert.Contains(t, container, "&lt;b&gt;Buy milk&lt;/b&gt;")
	assert.Contains(t, container, "2 open / 0 done")

	action(t, m, "toggle-task", `{"id":1}`)
	_, _, container = ws.Regions()
	assert.Contains(t, container, "1 open / 1 done")

	action(t, m, "clear-completed", ``)
	action(t, m, "delete-task", `{"id":2}`)

	require.NoError(t, json.Unmarshal(ws.Doc(schema.TasksID), &doc))
	assert.Empty(t, doc.Current().Data.Tasks)
	assert.Equal(t, 5, ws.Writes[schema.TasksID])
}

func TestHandleAction_Scenarios(t *testing.T) {
	ws := seeded(t)
	m, err := Load(context.Background(), ws, zaptest.NewLogger(t))
	require.NoError(t, err)

	action(t, m, "add-scenario", `{"name":"Work"}`)

	var doc schema.TasksDocument
	require.NoError(t, json.Unmarshal(ws.Doc(schema.TasksID), &doc))
	assert.Equal(t, 2, doc.CurrentScenario)
	assert.Len(t, doc.Scenarios, 2)

	action(t, m, "select-scenario", `{"id":1}`)
	require.NoError(t, json.Unmarshal(ws.Doc(schema.TasksID), &doc))
	assert.Equal(t, 1, doc.CurrentScenario)

	assert.Error(t, m.HandleAction(context.Background(), "select-scenario", json.RawMessage(`{"id":42}`)))
}

func TestHandleAction_Errors(t *testing.T) {
	ws := seeded(t)
	m, err := Load(context.Background(), ws, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, m.HandleAction(ctx, "fly", nil), ErrUnknownAction)
	assert.Error(t, m.HandleAction(ctx, "add-task", json.RawMessage(`{"title":"  "}`)))
	assert.Error(t, m.HandleAction(ctx, "toggle-task", json.RawMessage(`{"id":99}`)))

	require.NoError(t, m.Destroy(ctx))
	assert.Error(t, m.HandleAction(ctx, "add-task", json.RawMessage(`{"title":"x"}`)))
	assert.Zero(t, ws.Writes[schema.TasksID])
}

func TestLoad_EmptyDocumentGetsScenario(t *testing.T) {
	ws := apitest.New(nil)
	m, err := Load(context.Background(), ws, zaptest.NewLogger(t))
	require.NoError(t, err)

	action(t, m, "add-task", `{"title":"first"}`)
	var doc schema.TasksDocument
	require.NoError(t, json.Unmarshal(ws.Doc(schema.TasksID), &doc))
	require.NotNil(t, doc.Current())
	assert.Len(t, doc.Current().Data.Tasks, 1)
}

func TestSafeColor(t *testing.T) {
	assert.Equal(t, "#db4035", string(safeColor("#db4035")))
	assert.Equal(t, "#fff", string(safeColor("#fff")))
	assert.Empty(t, safeColor("red;background:url(x)"))
	assert.Empty(t, safeColor(""))
}
