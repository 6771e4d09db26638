// Package defaults supplies the seed document for a module when neither the
// cache nor the gateway has one.
package defaults

import (
	"encoding/json"
	"time"

	"github.com/xelth-com/modspace/internal/schema"
)

var empty = json.RawMessage(`{}`)

// Document returns the seed for moduleID. Unknown ids get an empty object.
// now only stamps createdAt fields; the function has no side effects.
func Document(moduleID string, now time.Time) json.RawMessage {
	v := value(moduleID, now)
	if v == nil {
		return empty
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return empty
	}
	return raw
}

// Provider binds Document to a clock
func Provider(now func() time.Time) func(string) json.RawMessage {
	return func(moduleID string) json.RawMessage {
		return Document(moduleID, now())
	}
}

func value(moduleID string, now time.Time) any {
	created := now.UTC().Format(time.RFC3339)

	switch moduleID {
	case schema.TasksID:
		return &schema.TasksDocument{
			Scenarios: map[int]*schema.Scenario[schema.TaskData]{
				1: {
					ID: 1, Name: "Personal", Icon: "🏠",
					Description: "Default personal scenario",
					CreatedAt:   created,
					Data: schema.TaskData{
						Tasks: []schema.Task{},
						Projects: []schema.Project{
							{ID: 1, Name: "Work", Color: "#db4035"},
							{ID: 2, Name: "Personal", Color: "#ff9933"},
							{ID: 3, Name: "Study", Color: "#299438"},
						},
						TaskIDCounter:    1,
						ProjectIDCounter: 4,
						SubtaskIDCounter: 1000,
					},
				},
			},
			CurrentScenario:   1,
			ScenarioIDCounter: 2,
		}
	case schema.NotesID:
		return &schema.NotesDocument{
			Scenarios: map[int]*schema.Scenario[schema.NoteData]{
				1: {
					ID: 1, Name: "Personal", Icon: "🏠",
					Description: "Default personal scenario",
					CreatedAt:   created,
					Data: schema.NoteData{
						Notes: []schema.Note{},
						Folders: []schema.Folder{
							{ID: 1, Name: "General", Color: "#a8e6cf"},
							{ID: 2, Name: "Ideas", Color: "#ffd3a5"},
							{ID: 3, Name: "Work", Color: "#fd9b9b"},
						},
						NoteIDCounter:   1,
						FolderIDCounter: 4,
					},
				},
			},
			CurrentScenario:   1,
			ScenarioIDCounter: 2,
		}
	case schema.AssistantID:
		return &schema.AssistantDocument{
			Contexts: map[string]schema.AssistantContext{
				"general": {
					ID: "general", Name: "General", Icon: "🤖",
					Description:  "General assistant for any question",
					SystemPrompt: "You are a helpful, friendly assistant. Answer clearly and concisely.",
				},
				"tasks": {
					ID: "tasks", Name: "Tasks", Icon: "📋",
					Description:  "Specialised in task management and productivity",
					SystemPrompt: "You are an assistant specialised in task management and productivity. Help the user organise, plan and finish their tasks efficiently.",
				},
				"notes": {
					ID: "notes", Name: "Notes", Icon: "📝",
					Description:  "Specialised in organising notes and knowledge",
					SystemPrompt: "You are an assistant specialised in note taking and knowledge management. Help the user structure, categorise and find information.",
				},
			},
			CurrentContext: "general",
		}
	case schema.AssistantAIConfigID, schema.TasksAIConfigID:
		return &schema.AIConfig{
			Model:        "gpt-4.1-nano",
			MaxTokens:    1000,
			Temperature:  0.7,
			HistoryLimit: 10,
		}
	case schema.AssistantAIStatsID, schema.TasksAIStatsID:
		return &schema.AIStats{
			UsageHistory:  []schema.UsageEntry{},
			CurrentModel:  "GPT-4.1 nano",
			LastResetDate: now.Format("Mon Jan 02 2006"),
		}
	case schema.AssistantMessagesID, schema.TasksAssistantMsgsID:
		return []schema.ChatMessage{}
	case schema.FrameworkID:
		return &schema.GlobalConfig{Theme: "light", Language: "en"}
	}
	return nil
}
