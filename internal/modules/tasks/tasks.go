// Package tasks is the built-in task list module.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/api"
	"github.com/xelth-com/modspace/internal/modules/markup"
	"github.com/xelth-com/modspace/internal/registry"
	"github.com/xelth-com/modspace/internal/schema"
)

var ErrUnknownAction = errors.New("unknown action")

// Descriptor registers the module against ws
func Descriptor(ws api.Workspace, log *zap.Logger) registry.Descriptor {
	return registry.Descriptor{
		ID:          schema.TasksID,
		Name:        "Tasks",
		Icon:        "✅",
		Description: "Task lists with projects, grouped by scenario",
		Version:     "1.0.0",
		Load: func(ctx context.Context) (registry.Instance, error) {
			return Load(ctx, ws, log)
		},
	}
}

// Module is a loaded tasks instance
type Module struct {
	mu        sync.Mutex
	ws        api.Workspace
	log       *zap.Logger
	now       func() time.Time
	destroyed bool
}

// Load renders the module into the workspace
func Load(ctx context.Context, ws api.Workspace, log *zap.Logger) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Module{ws: ws, log: log.Named("tasks"), now: time.Now}
	if err := m.render(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Refresh re-renders after the document changed underneath
func (m *Module) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil
	}
	return m.render(ctx)
}

// Destroy detaches the instance; later actions fail
func (m *Module) Destroy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	return nil
}

type actionPayload struct {
	ID        markup.ID `json:"id"`
	Title     string    `json:"title"`
	Name      string    `json:"name"`
	ProjectID markup.ID `json:"projectId"`
}

// HandleAction applies a UI action to the tasks document
func (m *Module) HandleAction(ctx context.Context, action string, payload json.RawMessage) error {
	var p actionPayload
	if err := markup.Decode(payload, &p); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return errors.New("tasks module is not active")
	}

	doc, err := api.ReadAs[schema.TasksDocument](ctx, m.ws, schema.TasksID)
	if err != nil {
		return err
	}
	sc := ensureScenario(&doc, m.now())

	switch action {
	case "add-task":
		title := strings.TrimSpace(p.Title)
		if title == "" {
			return errors.New("task title is required")
		}
		id := sc.Data.TaskIDCounter
		if id == 0 {
			id = 1
		}
		sc.Data.Tasks = append(sc.Data.Tasks, schema.Task{
			ID:        id,
			Title:     title,
			ProjectID: int(p.ProjectID),
			CreatedAt: m.now().UTC().Format(time.RFC3339),
		})
		sc.Data.TaskIDCounter = id + 1

	case "toggle-task":
		t := findTask(sc, int(p.ID))
		if t == nil {
			return fmt.Errorf("task %d not found", p.ID)
		}
		t.Completed = !t.Completed

	case "delete-task":
		kept := sc.Data.Tasks[:0]
		for _, t := range sc.Data.Tasks {
			if t.ID != int(p.ID) {
				kept = append(kept, t)
			}
		}
		sc.Data.Tasks = kept

	case "clear-completed":
		kept := sc.Data.Tasks[:0]
		for _, t := range sc.Data.Tasks {
			if !t.Completed {
				kept = append(kept, t)
			}
		}
		sc.Data.Tasks = kept

	case "select-scenario":
		if _, ok := doc.Scenarios[int(p.ID)]; !ok {
			return fmt.Errorf("scenario %d not found", p.ID)
		}
		doc.CurrentScenario = int(p.ID)

	case "add-scenario":
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return errors.New("scenario name is required")
		}
		id := doc.ScenarioIDCounter
		if id == 0 {
			id = len(doc.Scenarios) + 1
		}
		doc.Scenarios[id] = &schema.Scenario[schema.TaskData]{
			ID:        id,
			Name:      name,
			Icon:      "📁",
			CreatedAt: m.now().UTC().Format(time.RFC3339),
			Data: schema.TaskData{
				Tasks:            []schema.Task{},
				Projects:         sc.Data.Projects,
				TaskIDCounter:    1,
				ProjectIDCounter: sc.Data.ProjectIDCounter,
				SubtaskIDCounter: 1000,
			},
		}
		doc.ScenarioIDCounter = id + 1
		doc.CurrentScenario = id

	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	if err := api.WriteAs(ctx, m.ws, schema.TasksID, doc); err != nil {
		return err
	}
	m.log.Debug("action applied", zap.String("action", action))
	return m.render(ctx)
}

// ensureScenario returns the current scenario, creating a default one for
// documents that have none
func ensureScenario(doc *schema.TasksDocument, now time.Time) *schema.Scenario[schema.TaskData] {
	if doc.Scenarios == nil {
		doc.Scenarios = make(map[int]*schema.Scenario[schema.TaskData])
	}
	if sc := doc.Current(); sc != nil {
		return sc
	}
	for _, id := range scenarioIDs(doc.Scenarios) {
		doc.CurrentScenario = id
		return doc.Scenarios[id]
	}
	sc := &schema.Scenario[schema.TaskData]{
		ID:        1,
		Name:      "Personal",
		Icon:      "🏠",
		CreatedAt: now.UTC().Format(time.RFC3339),
		Data:      schema.TaskData{Tasks: []schema.Task{}, TaskIDCounter: 1},
	}
	doc.Scenarios[1] = sc
	doc.CurrentScenario = 1
	if doc.ScenarioIDCounter < 2 {
		doc.ScenarioIDCounter = 2
	}
	return sc
}

func findTask(sc *schema.Scenario[schema.TaskData], id int) *schema.Task {
	for i := range sc.Data.Tasks {
		if sc.Data.Tasks[i].ID == id {
			return &sc.Data.Tasks[i]
		}
	}
	return nil
}

func scenarioIDs[T any](m map[int]*schema.Scenario[T]) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

var (
	navTmpl = template.Must(template.New("tasks-nav").Parse(`<ul class="scenarios">
{{- range .Scenarios}}
<li><button class="nav-item{{if .Active}} active{{end}}" data-action="select-scenario" data-id="{{.ID}}">{{.Icon}} {{.Name}}</button></li>
{{- end}}
</ul>
<form class="inline-form" data-action="add-scenario"><input name="name" placeholder="New scenario"><button type="submit">➕</button></form>`))

	actionsTmpl = template.Must(template.New("tasks-actions").Parse(`<form class="inline-form" data-action="add-task">
<input name="title" placeholder="New task" required>
<select name="projectId"><option value="">No project</option>
{{- range .Projects}}<option value="{{.ID}}">{{.Name}}</option>{{end}}
</select>
<button type="submit">Add</button>
</form>
<button data-action="clear-completed">Clear completed</button>`))

	containerTmpl = template.Must(template.New("tasks-container").Parse(`<section class="tasks">
<h2>{{.Scenario}} <small>{{.Open}} open / {{.Done}} done</small></h2>
{{- if not .Tasks}}
<p class="empty">No tasks yet.</p>
{{- end}}
<ul class="task-list">
{{- range .Tasks}}
<li class="task{{if .Completed}} completed{{end}}">
<input type="checkbox" data-action="toggle-task" data-id="{{.ID}}"{{if .Completed}} checked{{end}}>
<span class="title">{{.Title}}</span>
{{- if .Project}} <span class="project" style="color:{{.Color}}">{{.Project}}</span>{{end}}
<button class="delete" data-action="delete-task" data-id="{{.ID}}">🗑️</button>
</li>
{{- end}}
</ul>
</section>`))
)

type scenarioView struct {
	ID     int
	Name   string
	Icon   string
	Active bool
}

type taskView struct {
	ID        int
	Title     string
	Completed bool
	Project   string
	Color     template.CSS
}

func (m *Module) render(ctx context.Context) error {
	doc, err := api.ReadAs[schema.TasksDocument](ctx, m.ws, schema.TasksID)
	if err != nil {
		return err
	}
	sc := ensureScenario(&doc, m.now())

	scenarios := make([]scenarioView, 0, len(doc.Scenarios))
	for _, id := range scenarioIDs(doc.Scenarios) {
		s := doc.Scenarios[id]
		scenarios = append(scenarios, scenarioView{ID: id, Name: s.Name, Icon: s.Icon, Active: id == doc.CurrentScenario})
	}

	projects := make(map[int]schema.Project, len(sc.Data.Projects))
	for _, p := range sc.Data.Projects {
		projects[p.ID] = p
	}
	tasks := make([]taskView, 0, len(sc.Data.Tasks))
	open, done := 0, 0
	for _, t := range sc.Data.Tasks {
		v := taskView{ID: t.ID, Title: t.Title, Completed: t.Completed}
		if p, ok := projects[t.ProjectID]; ok {
			v.Project = p.Name
			v.Color = safeColor(p.Color)
		}
		if t.Completed {
			done++
		} else {
			open++
		}
		tasks = append(tasks, v)
	}

	nav, err := markup.Render(navTmpl, struct{ Scenarios []scenarioView }{scenarios})
	if err != nil {
		return err
	}
	actions, err := markup.Render(actionsTmpl, struct{ Projects []schema.Project }{sc.Data.Projects})
	if err != nil {
		return err
	}
	container, err := markup.Render(containerTmpl, struct {
		Scenario   string
		Open, Done int
		Tasks      []taskView
	}{sc.Name, open, done, tasks})
	if err != nil {
		return err
	}

	m.ws.UpdateNavigation(nav)
	m.ws.UpdateActions(actions)
	m.ws.UpdateContainer(container)
	return nil
}

// safeColor lets through #rgb / #rrggbb values only
func safeColor(c string) template.CSS {
	if len(c) != 4 && len(c) != 7 || c[0] != '#' {
		return ""
	}
	for _, r := range c[1:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return ""
		}
	}
	return template.CSS(c)
}
