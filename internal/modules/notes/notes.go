// Package notes is the built-in notes module. Note bodies may contain HTML;
// it is sanitised before it reaches the page.
package notes

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

func Descriptor(ws api.Workspace, log *zap.Logger) registry.Descriptor {
	return registry.Descriptor{
		ID:          schema.NotesID,
		Name:        "Notes",
		Icon:        "📝",
		Description: "Rich-text notes organised in folders",
		Version:     "1.0.0",
		Load: func(ctx context.Context) (registry.Instance, error) {
			return Load(ctx, ws, log)
		},
	}
}

type Module struct {
	mu        sync.Mutex
	ws        api.Workspace
	log       *zap.Logger
	now       func() time.Time
	folder    int // 0 shows every folder
	destroyed bool
}

func Load(ctx context.Context, ws api.Workspace, log *zap.Logger) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Module{ws: ws, log: log.Named("notes"), now: time.Now}
	if err := m.render(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return nil
	}
	return m.render(ctx)
}

func (m *Module) Destroy(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	return nil
}

type actionPayload struct {
	ID       markup.ID `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	FolderID markup.ID `json:"folderId"`
}

func (m *Module) HandleAction(ctx context.Context, action string, payload json.RawMessage) error {
	var p actionPayload
	if err := markup.Decode(payload, &p); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return errors.New("notes module is not active")
	}

	if action == "select-folder" {
		m.folder = int(p.FolderID)
		return m.render(ctx)
	}

	doc, err := api.ReadAs[schema.NotesDocument](ctx, m.ws, schema.NotesID)
	if err != nil {
		return err
	}
	sc := ensureScenario(&doc, m.now())

	switch action {
	case "add-note":
		title := strings.TrimSpace(p.Title)
		if title == "" {
			return errors.New("note title is required")
		}
		id := sc.Data.NoteIDCounter
		if id == 0 {
			id = 1
		}
		sc.Data.Notes = append(sc.Data.Notes, schema.Note{
			ID:        id,
			Title:     title,
			Content:   p.Content,
			FolderID:  int(p.FolderID),
			CreatedAt: m.now().UTC().Format(time.RFC3339),
		})
		sc.Data.NoteIDCounter = id + 1

	case "update-note":
		n := findNote(sc, int(p.ID))
		if n == nil {
			return fmt.Errorf("note %d not found", p.ID)
		}
		if title := strings.TrimSpace(p.Title); title != "" {
			n.Title = title
		}
		n.Content = p.Content

	case "delete-note":
		kept := sc.Data.Notes[:0]
		for _, n := range sc.Data.Notes {
			if n.ID != int(p.ID) {
				kept = append(kept, n)
			}
		}
		sc.Data.Notes = kept

	case "select-scenario":
		if _, ok := doc.Scenarios[int(p.ID)]; !ok {
			return fmt.Errorf("scenario %d not found", p.ID)
		}
		doc.CurrentScenario = int(p.ID)
		m.folder = 0

	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	if err := api.WriteAs(ctx, m.ws, schema.NotesID, doc); err != nil {
		return err
	}
	return m.render(ctx)
}

func ensureScenario(doc *schema.NotesDocument, now time.Time) *schema.Scenario[schema.NoteData] {
	if doc.Scenarios == nil {
		doc.Scenarios = make(map[int]*schema.Scenario[schema.NoteData])
	}
	if sc := doc.Current(); sc != nil {
		return sc
	}
	if ids := scenarioIDs(doc.Scenarios); len(ids) > 0 {
		doc.CurrentScenario = ids[0]
		return doc.Scenarios[ids[0]]
	}
	sc := &schema.Scenario[schema.NoteData]{
		ID:        1,
		Name:      "Personal",
		Icon:      "🏠",
		CreatedAt: now.UTC().Format(time.RFC3339),
		Data:      schema.NoteData{Notes: []schema.Note{}, NoteIDCounter: 1},
	}
	doc.Scenarios[1] = sc
	doc.CurrentScenario = 1
	if doc.ScenarioIDCounter < 2 {
		doc.ScenarioIDCounter = 2
	}
	return sc
}

func findNote(sc *schema.Scenario[schema.NoteData], id int) *schema.Note {
	for i := range sc.Data.Notes {
		if sc.Data.Notes[i].ID == id {
			return &sc.Data.Notes[i]
		}
	}
	return nil
}

func scenarioIDs(m map[int]*schema.Scenario[schema.NoteData]) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

var (
	navTmpl = template.Must(template.New("notes-nav").Parse(`<ul class="folders">
<li><button class="nav-item{{if eq .Selected 0}} active{{end}}" data-action="select-folder" data-folder-id="0">📚 All notes</button></li>
{{- range .Folders}}
<li><button class="nav-item{{if eq $.Selected .ID}} active{{end}}" data-action="select-folder" data-folder-id="{{.ID}}">📁 {{.Name}}</button></li>
{{- end}}
</ul>`))

	actionsTmpl = template.Must(template.New("notes-actions").Parse(`<form class="stacked-form" data-action="add-note">
<input name="title" placeholder="Title" required>
<textarea name="content" placeholder="Write something..."></textarea>
<select name="folderId"><option value="">No folder</option>
{{- range .Folders}}<option value="{{.ID}}">{{.Name}}</option>{{end}}
</select>
<button type="submit">Save note</button>
</form>`))

	containerTmpl = template.Must(template.New("notes-container").Funcs(markup.Funcs).Parse(`<section class="notes">
<h2>{{.Scenario}} <small>{{len .Notes}} notes</small></h2>
{{- if not .Notes}}
<p class="empty">No notes here.</p>
{{- end}}
{{- range .Notes}}
<article class="note">
<header><h3>{{.Title}}</h3><button class="delete" data-action="delete-note" data-id="{{.ID}}">🗑️</button></header>
<div class="content">{{rich .Content}}</div>
</article>
{{- end}}
</section>`))
)

func (m *Module) render(ctx context.Context) error {
	doc, err := api.ReadAs[schema.NotesDocument](ctx, m.ws, schema.NotesID)
	if err != nil {
		return err
	}
	sc := ensureScenario(&doc, m.now())

	notes := make([]schema.Note, 0, len(sc.Data.Notes))
	for _, n := range sc.Data.Notes {
		if m.folder == 0 || n.FolderID == m.folder {
			notes = append(notes, n)
		}
	}

	nav, err := markup.Render(navTmpl, struct {
		Selected int
		Folders  []schema.Folder
	}{m.folder, sc.Data.Folders})
	if err != nil {
		return err
	}
	actions, err := markup.Render(actionsTmpl, struct{ Folders []schema.Folder }{sc.Data.Folders})
	if err != nil {
		return err
	}
	container, err := markup.Render(containerTmpl, struct {
		Scenario string
		Notes    []schema.Note
	}{sc.Name, notes})
	if err != nil {
		return err
	}

	m.ws.UpdateNavigation(nav)
	m.ws.UpdateActions(actions)
	m.ws.UpdateContainer(container)
	return nil
}
