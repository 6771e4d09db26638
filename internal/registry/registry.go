// Package registry holds the feature modules a workspace can mount and
// drives their lifecycle. At most one module is active; activations are
// serialised and a newer request displaces one that is still waiting.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrInvalidDescriptor = errors.New("module descriptor requires id, name and load")
	ErrNotRegistered     = errors.New("module not registered")
	ErrSuperseded        = errors.New("activation superseded by a newer request")
)

const (
	DefaultIcon    = "📋"
	DefaultVersion = "1.0.0"
)

// Instance is whatever a module's Load returns
type Instance any

// Destroyer is implemented by instances that hold resources
type Destroyer interface {
	Destroy(ctx context.Context) error
}

// Descriptor describes a module
type Descriptor struct {
	ID          string
	Name        string
	Icon        string
	Description string
	Version     string
	Load        func(ctx context.Context) (Instance, error)
	// Unload is optional and must be idempotent
	Unload func(ctx context.Context) error
}

// Info is the listing view of a descriptor
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Active      bool   `json:"active"`
}

type slot struct {
	desc     Descriptor
	instance Instance
}

type request struct {
	ctx  context.Context
	id   string
	done chan error
}

// Registry is safe for concurrent use
type Registry struct {
	mu        sync.Mutex
	order     []string
	slots     map[string]*slot
	current   string
	listeners []func()

	activating bool
	waiting    *request

	log *zap.Logger
}

func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		slots: make(map[string]*slot),
		log:   log.Named("registry"),
	}
}

// Register adds d, or replaces the descriptor registered under the same id.
// A replaced descriptor loses its live instance reference but keeps its
// position in listings.
func (r *Registry) Register(d Descriptor) error {
	if d.ID == "" || d.Name == "" || d.Load == nil {
		return ErrInvalidDescriptor
	}
	if d.Icon == "" {
		d.Icon = DefaultIcon
	}
	if d.Version == "" {
		d.Version = DefaultVersion
	}

	r.mu.Lock()
	if s, ok := r.slots[d.ID]; ok {
		s.desc = d
		s.instance = nil
	} else {
		r.slots[d.ID] = &slot{desc: d}
		r.order = append(r.order, d.ID)
	}
	r.mu.Unlock()

	r.log.Info("module registered", zap.String("module", d.ID), zap.String("version", d.Version))
	r.changed()
	return nil
}

// OnChange registers fn to run after registrations and (de)activations
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Activate makes id the active module, tearing down the current one first.
// While another activation runs the request waits; a newer request
// displaces it with ErrSuperseded.
func (r *Registry) Activate(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.slots[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	return r.enqueue(ctx, id)
}

// Deactivate tears down the active module, if any
func (r *Registry) Deactivate(ctx context.Context) error {
	return r.enqueue(ctx, "")
}

func (r *Registry) enqueue(ctx context.Context, id string) error {
	r.mu.Lock()
	if !r.activating {
		r.activating = true
		r.mu.Unlock()
		err := r.run(ctx, id)
		r.next()
		return err
	}

	req := &request{ctx: ctx, id: id, done: make(chan error, 1)}
	if r.waiting != nil {
		r.log.Debug("activation superseded", zap.String("module", r.waiting.id), zap.String("by", id))
		r.waiting.done <- ErrSuperseded
	}
	r.waiting = req
	r.mu.Unlock()

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		r.mu.Lock()
		if r.waiting == req {
			r.waiting = nil
			r.mu.Unlock()
			return ctx.Err()
		}
		r.mu.Unlock()
		return <-req.done
	}
}

// next hands the slot to the waiting request, if there is one
func (r *Registry) next() {
	r.mu.Lock()
	req := r.waiting
	if req == nil {
		r.activating = false
		r.mu.Unlock()
		return
	}
	r.waiting = nil
	r.mu.Unlock()

	go func() {
		req.done <- r.run(req.ctx, req.id)
		r.next()
	}()
}

func (r *Registry) run(ctx context.Context, id string) error {
	r.teardown(ctx)
	if id == "" {
		return nil
	}

	r.mu.Lock()
	s, ok := r.slots[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	load := s.desc.Load
	r.mu.Unlock()

	inst, err := load(ctx)
	if err != nil {
		r.log.Error("failed to load module", zap.String("module", id), zap.Error(err))
		r.changed()
		return fmt.Errorf("load module %s: %w", id, err)
	}

	r.mu.Lock()
	r.slots[id].instance = inst
	r.current = id
	r.mu.Unlock()

	r.log.Info("module activated", zap.String("module", id))
	r.changed()
	return nil
}

// teardown runs Destroy on the active instance, then the descriptor's
// Unload, then drops the instance. Errors are logged.
func (r *Registry) teardown(ctx context.Context) {
	r.mu.Lock()
	id := r.current
	if id == "" {
		r.mu.Unlock()
		return
	}
	s := r.slots[id]
	inst, unload := s.instance, s.desc.Unload
	r.mu.Unlock()

	if d, ok := inst.(Destroyer); ok {
		if err := d.Destroy(ctx); err != nil {
			r.log.Warn("module destroy failed", zap.String("module", id), zap.Error(err))
		}
	}
	if unload != nil {
		if err := unload(ctx); err != nil {
			r.log.Warn("module unload failed", zap.String("module", id), zap.Error(err))
		}
	}

	r.mu.Lock()
	s.instance = nil
	if r.current == id {
		r.current = ""
	}
	r.mu.Unlock()
	r.log.Debug("module unloaded", zap.String("module", id))
}

// Current returns the active module id, or ""
func (r *Registry) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Get returns the descriptor registered under id
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return Descriptor{}, false
	}
	return s.desc, true
}

// Instance returns the live instance of id
func (r *Registry) Instance(id string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.instance == nil {
		return nil, false
	}
	return s.instance, true
}

// IDs returns the module ids in registration order
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// List returns the modules in registration order
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		d := r.slots[id].desc
		out = append(out, Info{
			ID:          d.ID,
			Name:        d.Name,
			Icon:        d.Icon,
			Description: d.Description,
			Version:     d.Version,
			Active:      id == r.current,
		})
	}
	return out
}

func (r *Registry) changed() {
	r.mu.Lock()
	listeners := append([]func(){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
