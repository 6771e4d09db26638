package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/schema"
)

const (
	// FrameworkVersion is stamped into complete exports
	FrameworkVersion = "4.0.0"
	exportTypeFull   = "complete-system"
	exportSource     = "modspace"
)

// FullExport is the complete-system backup format
type FullExport struct {
	Framework        FrameworkState             `json:"framework"`
	Modules          map[string]json.RawMessage `json:"modules"`
	ExportDate       string                     `json:"exportDate"`
	FrameworkVersion string                     `json:"frameworkVersion"`
	ExportType       string                     `json:"exportType"`
	Source           string                     `json:"source"`
}

// FrameworkState is the shell part of a complete export
type FrameworkState struct {
	CurrentModule string          `json:"currentModule,omitempty"`
	GlobalConfig  json.RawMessage `json:"globalConfig,omitempty"`
}

// ModuleExport is the single-module backup format
type ModuleExport struct {
	Module     string          `json:"module"`
	ModuleName string          `json:"moduleName,omitempty"`
	Data       json.RawMessage `json:"data"`
	ExportDate string          `json:"exportDate,omitempty"`
	Source     string          `json:"source,omitempty"`
}

// ImportResult reports an import
type ImportResult struct {
	Kind     string   `json:"kind"`
	Imported []string `json:"imported"`
	// Pending lists documents the gateway refused; they stay queued locally
	Pending []string `json:"pending,omitempty"`
}

// ExportAll collects the document of every registered module plus every
// other document held in the cache
func (w *Workspace) ExportAll(ctx context.Context) (*FullExport, error) {
	ids := w.registry.IDs()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range w.store.IDs() {
		if !seen[id] && id != schema.FrameworkID {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	modules := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		doc, err := w.Read(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", id, err)
		}
		modules[id] = doc
	}

	global, err := w.Read(ctx, schema.FrameworkID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", schema.FrameworkID, err)
	}

	w.log.Info("📤 complete export", zap.Int("documents", len(modules)))
	return &FullExport{
		Framework: FrameworkState{
			CurrentModule: w.registry.Current(),
			GlobalConfig:  global,
		},
		Modules:          modules,
		ExportDate:       w.now().UTC().Format(time.RFC3339Nano),
		FrameworkVersion: FrameworkVersion,
		ExportType:       exportTypeFull,
		Source:           exportSource,
	}, nil
}

// ExportModule exports one module's document. An empty moduleID exports the
// active module.
func (w *Workspace) ExportModule(ctx context.Context, moduleID string) (*ModuleExport, error) {
	if moduleID == "" {
		moduleID = w.registry.Current()
		if moduleID == "" {
			return nil, ErrNoCurrentModule
		}
	}
	name := moduleID
	if d, ok := w.registry.Get(moduleID); ok {
		name = d.Name
	}

	doc, err := w.Read(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", moduleID, err)
	}
	return &ModuleExport{
		Module:     moduleID,
		ModuleName: name,
		Data:       doc,
		ExportDate: w.now().UTC().Format(time.RFC3339Nano),
		Source:     exportSource,
	}, nil
}

type importEnvelope struct {
	ExportType       string                     `json:"exportType"`
	FrameworkVersion string                     `json:"frameworkVersion"`
	Framework        *FrameworkState            `json:"framework"`
	Modules          map[string]json.RawMessage `json:"modules"`

	Module     string          `json:"module"`
	ModuleName string          `json:"moduleName"`
	Data       json.RawMessage `json:"data"`
}

type importDoc struct {
	id  string
	doc json.RawMessage
}

// parseImport validates payload completely and returns the documents it
// carries, in a stable order
func parseImport(payload []byte) (kind string, docs []importDoc, label string, err error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", nil, "", fmt.Errorf("%w: expected a JSON object", ErrMalformedImport)
	}
	var env importEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return "", nil, "", fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}

	switch {
	case env.ExportType == exportTypeFull && env.FrameworkVersion != "":
		ids := make([]string, 0, len(env.Modules))
		for id := range env.Modules {
			if id == "" {
				return "", nil, "", fmt.Errorf("%w: empty module id", ErrMalformedImport)
			}
			if isNull(env.Modules[id]) {
				return "", nil, "", fmt.Errorf("%w: module %s has no data", ErrMalformedImport, id)
			}
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			docs = append(docs, importDoc{id: id, doc: env.Modules[id]})
		}
		if env.Framework != nil && !isNull(env.Framework.GlobalConfig) {
			docs = append(docs, importDoc{id: schema.FrameworkID, doc: env.Framework.GlobalConfig})
		}
		return exportTypeFull, docs, "", nil

	case env.Module != "" && !isNull(env.Data):
		label = env.ModuleName
		if label == "" {
			label = env.Module
		}
		return "module", []importDoc{{id: env.Module, doc: env.Data}}, label, nil
	}

	return "", nil, "", fmt.Errorf("%w: expected a complete-system export or a module export", ErrMalformedImport)
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// Import restores a complete-system or single-module export. The payload is
// validated before anything changes. Each document is pushed to the gateway
// and seeded into the cache; one the gateway refuses is queued as a local
// write instead of being dropped.
func (w *Workspace) Import(ctx context.Context, payload []byte) (*ImportResult, error) {
	kind, docs, label, err := parseImport(payload)
	if err != nil {
		return nil, err
	}

	if kind == exportTypeFull {
		if err := w.registry.Deactivate(ctx); err != nil {
			w.log.Warn("deactivate before import failed", zap.Error(err))
		}
		w.engine.CancelDebounce()
		mode := w.store.WorkMode()
		if _, err := w.store.ClearAll(); err != nil {
			return nil, fmt.Errorf("clear local cache: %w", err)
		}
		if mode != "" {
			if err := w.store.SetWorkMode(mode); err != nil {
				w.log.Warn("failed to restore work mode", zap.Error(err))
			}
		}
	}

	res := &ImportResult{Kind: kind}
	for _, d := range docs {
		if err := w.importOne(ctx, d); err != nil {
			w.log.Warn("❌ import push failed, kept pending",
				zap.String("module", d.id), zap.Error(err))
			res.Pending = append(res.Pending, d.id)
		}
		res.Imported = append(res.Imported, d.id)
	}

	if kind == exportTypeFull {
		w.renderWelcome()
		w.publishModules()
		modules := len(docs)
		if len(docs) > 0 && docs[len(docs)-1].id == schema.FrameworkID {
			modules--
		}
		w.surface.Toast(fmt.Sprintf("✅ Complete system imported: %d modules restored", modules))
	} else {
		w.surface.Toast(fmt.Sprintf("✅ %s data imported", label))
		if w.registry.Current() == docs[0].id {
			w.DocumentRefreshed(docs[0].id)
		}
	}
	w.publishStatus(w.engine.Status())

	w.log.Info("📥 import finished",
		zap.String("kind", kind),
		zap.Int("documents", len(res.Imported)),
		zap.Int("pending", len(res.Pending)))
	return res, nil
}

func (w *Workspace) importOne(ctx context.Context, d importDoc) error {
	if err := w.gw.Save(ctx, d.id, d.doc); err != nil {
		if werr := w.engine.Write(ctx, d.id, d.doc); werr != nil {
			return werr
		}
		return err
	}
	now := w.now()
	w.store.MarkSynced(d.id, w.store.Seed(d.id, d.doc, now), now)
	return nil
}
