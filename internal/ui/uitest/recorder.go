// Package uitest provides a ui.Surface that records what was rendered.
package uitest

import (
	"strings"
	"sync"

	"github.com/xelth-com/modspace/internal/ui"
)

// Recorder keeps the latest markup per region, every toast and the latest
// payload per published event type
type Recorder struct {
	mu      sync.Mutex
	regions map[ui.Region]string
	toasts  []string
	events  map[string]any
}

var _ ui.Surface = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{
		regions: make(map[ui.Region]string),
		events:  make(map[string]any),
	}
}

func (r *Recorder) Replace(region ui.Region, markup string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regions[region] = markup
}

func (r *Recorder) Toast(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, msg)
}

func (r *Recorder) Publish(eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[eventType] = payload
}

// Region returns the current markup of region
func (r *Recorder) Region(region ui.Region) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.regions[region]
}

// Toasts returns every toast shown so far
func (r *Recorder) Toasts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.toasts...)
}

// HasToast reports whether a toast containing substr was shown
func (r *Recorder) HasToast(substr string) bool {
	for _, t := range r.Toasts() {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}

// Event returns the latest payload published for eventType
func (r *Recorder) Event(eventType string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.events[eventType]
	return p, ok
}
