// Package schema holds the document types the built-in modules store
// through the workspace cache. The cache itself never looks inside them.
package schema

// Module identifiers and their auxiliary document keys
const (
	TasksID              = "tasks"
	NotesID              = "notes"
	AssistantID          = "assistant"
	AssistantAIConfigID  = "assistant_aiConfig"
	AssistantAIStatsID   = "assistant_aiStats"
	AssistantMessagesID  = "assistant_messages"
	TasksAIConfigID      = "tasksModule_aiConfig"
	TasksAIStatsID       = "tasksModule_aiStats"
	TasksAssistantMsgsID = "tasksModule_assistantMessages"

	// FrameworkID holds the shell-wide settings, not a module
	FrameworkID = "framework"
)

// GlobalConfig is the framework document
type GlobalConfig struct {
	Theme    string `json:"theme"`
	Language string `json:"language"`
}

// Scenario is a named workspace inside a module document
type Scenario[T any] struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Data        T      `json:"data"`
}

// Scenarios is the common envelope of the tasks and notes documents
type Scenarios[T any] struct {
	Scenarios         map[int]*Scenario[T] `json:"scenarios"`
	CurrentScenario   int                  `json:"currentScenario"`
	ScenarioIDCounter int                  `json:"scenarioIdCounter"`
}

// Current returns the selected scenario, or nil
func (s *Scenarios[T]) Current() *Scenario[T] {
	if s.Scenarios == nil {
		return nil
	}
	return s.Scenarios[s.CurrentScenario]
}

type Project struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type Task struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	ProjectID int    `json:"projectId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type TaskData struct {
	Tasks            []Task    `json:"tasks"`
	Projects         []Project `json:"projects"`
	TaskIDCounter    int       `json:"taskIdCounter"`
	ProjectIDCounter int       `json:"projectIdCounter"`
	SubtaskIDCounter int       `json:"subtaskIdCounter"`
}

// TasksDocument is stored under TasksID
type TasksDocument = Scenarios[TaskData]

type Folder struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type Note struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	FolderID  int    `json:"folderId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type NoteData struct {
	Notes           []Note   `json:"notes"`
	Folders         []Folder `json:"folders"`
	NoteIDCounter   int      `json:"noteIdCounter"`
	FolderIDCounter int      `json:"folderIdCounter"`
}

// NotesDocument is stored under NotesID
type NotesDocument = Scenarios[NoteData]

// AssistantContext is a specialised persona of the assistant
type AssistantContext struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Icon         string `json:"icon"`
	Description  string `json:"description"`
	SystemPrompt string `json:"systemPrompt"`
}

// AssistantDocument is stored under AssistantID
type AssistantDocument struct {
	Contexts       map[string]AssistantContext `json:"contexts"`
	CurrentContext string                      `json:"currentContext"`
}

// AIConfig is stored under AssistantAIConfigID and TasksAIConfigID
type AIConfig struct {
	APIKey       string  `json:"apiKey"`
	Model        string  `json:"model"`
	MaxTokens    int     `json:"maxTokens"`
	Temperature  float64 `json:"temperature"`
	HistoryLimit int     `json:"historyLimit"`
}

type UsageEntry struct {
	Date   string  `json:"date"`
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// AIStats is stored under AssistantAIStatsID and TasksAIStatsID
type AIStats struct {
	TodayQueries  int          `json:"todayQueries"`
	TotalTokens   int          `json:"totalTokens"`
	EstimatedCost float64      `json:"estimatedCost"`
	UsageHistory  []UsageEntry `json:"usageHistory"`
	CurrentModel  string       `json:"currentModel"`
	LastResetDate string       `json:"lastResetDate"`
}

// ChatMessage is one entry of AssistantMessagesID
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}
