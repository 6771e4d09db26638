// Package api is the surface module instances program against. Modules get
// a Workspace at load time and never reach into the shell's internals.
package api

import (
	"context"
	"encoding/json"
	"fmt"
)

// Workspace is the capability set handed to a module
type Workspace interface {
	// Read returns the module's document, from cache when possible
	Read(ctx context.Context, moduleID string) (json.RawMessage, error)
	// Write stores the document locally; it reaches the server later
	Write(ctx context.Context, moduleID string, doc json.RawMessage) error

	// UpdateNavigation, UpdateActions and UpdateContainer replace the
	// markup of a page region verbatim. Callers sanitise user content.
	UpdateNavigation(markup string)
	UpdateActions(markup string)
	UpdateContainer(markup string)
	ShowMessage(msg string)

	CurrentModule() string
	IsOnline() bool
	PendingCount() int
	// ForceSync pushes every pending module now and returns how many were
	// synchronized
	ForceSync(ctx context.Context) (int, error)
}

// ActionHandler is implemented by instances that react to UI actions such
// as "add-task" or "save-note"
type ActionHandler interface {
	HandleAction(ctx context.Context, action string, payload json.RawMessage) error
}

// Refresher is implemented by instances that re-render when their document
// was replaced by a newer server copy
type Refresher interface {
	Refresh(ctx context.Context) error
}

// ReadAs reads moduleID's document and decodes it into T
func ReadAs[T any](ctx context.Context, ws Workspace, moduleID string) (T, error) {
	var out T
	raw, err := ws.Read(ctx, moduleID)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s document: %w", moduleID, err)
	}
	return out, nil
}

// WriteAs encodes v and writes it as moduleID's document
func WriteAs[T any](ctx context.Context, ws Workspace, moduleID string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", moduleID, err)
	}
	return ws.Write(ctx, moduleID, raw)
}
