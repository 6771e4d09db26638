// Package apitest provides an in-memory api.Workspace for module tests.
package apitest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/xelth-com/modspace/internal/api"
)

// Workspace records everything a module does with it
type Workspace struct {
	mu         sync.Mutex
	Docs       map[string]json.RawMessage
	Writes     map[string]int
	Navigation string
	Actions    string
	Container  string
	Messages   []string
	Current    string
	Online     bool
}

var _ api.Workspace = (*Workspace)(nil)

// New returns a workspace seeded with docs
func New(docs map[string]json.RawMessage) *Workspace {
	if docs == nil {
		docs = make(map[string]json.RawMessage)
	}
	return &Workspace{Docs: docs, Writes: make(map[string]int), Online: true}
}

func (w *Workspace) Read(ctx context.Context, id string) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	doc, ok := w.Docs[id]
	if !ok {
		return json.RawMessage(`{}`), nil
	}
	return doc, nil
}

func (w *Workspace) Write(ctx context.Context, id string, doc json.RawMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Docs[id] = doc
	w.Writes[id]++
	return nil
}

func (w *Workspace) UpdateNavigation(markup string) { w.set(&w.Navigation, markup) }
func (w *Workspace) UpdateActions(markup string)    { w.set(&w.Actions, markup) }
func (w *Workspace) UpdateContainer(markup string)  { w.set(&w.Container, markup) }

func (w *Workspace) ShowMessage(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Messages = append(w.Messages, msg)
}

func (w *Workspace) CurrentModule() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Current
}

func (w *Workspace) IsOnline() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Online
}

func (w *Workspace) PendingCount() int { return 0 }

func (w *Workspace) ForceSync(ctx context.Context) (int, error) { return 0, nil }

// Doc returns the stored document for id
func (w *Workspace) Doc(id string) json.RawMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Docs[id]
}

// Toasts returns the messages shown so far
func (w *Workspace) Toasts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.Messages...)
}

// Regions returns the current navigation, actions and container markup
func (w *Workspace) Regions() (nav, actions, container string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Navigation, w.Actions, w.Container
}

func (w *Workspace) set(field *string, markup string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	*field = markup
}
