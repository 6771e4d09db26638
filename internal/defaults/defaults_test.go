package defaults

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/modspace/internal/schema"
)

var fixed = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestDocument_Tasks(t *testing.T) {
	var doc schema.TasksDocument
	require.NoError(t, json.Unmarshal(Document(schema.TasksID, fixed), &doc))

	cur := doc.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "Personal", cur.Name)
	assert.Equal(t, "2026-03-14T09:26:53Z", cur.CreatedAt)
	assert.Len(t, cur.Data.Projects, 3)
	assert.Empty(t, cur.Data.Tasks)
	assert.Equal(t, 4, cur.Data.ProjectIDCounter)
	assert.Equal(t, 2, doc.ScenarioIDCounter)
}

func TestDocument_Notes(t *testing.T) {
	var doc schema.NotesDocument
	require.NoError(t, json.Unmarshal(Document(schema.NotesID, fixed), &doc))

	cur := doc.Current()
	require.NotNil(t, cur)
	assert.Len(t, cur.Data.Folders, 3)
	assert.Equal(t, 1, cur.Data.NoteIDCounter)
}

func TestDocument_Assistant(t *testing.T) {
	var doc schema.AssistantDocument
	require.NoError(t, json.Unmarshal(Document(schema.AssistantID, fixed), &doc))

	assert.Equal(t, "general", doc.CurrentContext)
	assert.Contains(t, doc.Contexts, "tasks")
	assert.Contains(t, doc.Contexts, "notes")
}

func TestDocument_Auxiliary(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{schema.AssistantMessagesID, `[]`},
		{schema.TasksAssistantMsgsID, `[]`},
		{"unknown-module", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.JSONEq(t, tt.want, string(Document(tt.id, fixed)))
		})
	}

	var cfg schema.AIConfig
	require.NoError(t, json.Unmarshal(Document(schema.AssistantAIConfigID, fixed), &cfg))
	assert.Equal(t, "gpt-4.1-nano", cfg.Model)
	assert.Equal(t, 10, cfg.HistoryLimit)
}

func TestDocument_IsDeterministic(t *testing.T) {
	a := Document(schema.TasksID, fixed)
	b := Provider(func() time.Time { return fixed })(schema.TasksID)
	assert.Equal(t, string(a), string(b))
}
