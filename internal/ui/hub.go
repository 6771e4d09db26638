package ui

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Hub maintains the connected browsers and fans events out to them
type Hub struct {
	// Registered clients: client ID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Last event per sticky key, replayed to new clients
	sticky map[string][]byte

	handler SignalHandler
	dedup   *deduplicator

	mu  sync.RWMutex
	log *zap.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sticky:     make(map[string][]byte),
		dedup:      newDeduplicator(),
		log:        log.Named("ui"),
	}
}

// SetSignalHandler routes inbound browser signals to h
func (h *Hub) SetSignalHandler(handler SignalHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// Run is the hub's main loop. It returns when ctx ends, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			for _, key := range sortedKeys(h.sticky) {
				select {
				case client.send <- h.sticky[key]:
				default:
				}
			}
			h.mu.Unlock()
			h.log.Debug("🖥️ browser connected", zap.String("client", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Debug("browser disconnected", zap.String("client", client.ID))
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Replace swaps the markup of region in every browser
func (h *Hub) Replace(region Region, markup string) {
	h.emit("region:"+string(region), Event{Type: EventReplace, Region: region, Markup: markup})
}

// Toast shows a transient message in every browser
func (h *Hub) Toast(msg string) {
	h.emit("", Event{Type: EventToast, Message: msg})
}

// Publish sends a typed event and remembers it for late joiners
func (h *Hub) Publish(eventType string, payload any) {
	h.emit("event:"+eventType, Event{Type: eventType, Payload: payload})
}

// ClientCount returns the number of connected browsers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) emit(stickyKey string, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to encode event", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if stickyKey != "" {
		h.sticky[stickyKey] = msg
	}
	for id, client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Buffer full, the browser is not keeping up
			h.log.Warn("dropping event for slow browser", zap.String("client", id), zap.String("type", ev.Type))
		}
	}
}

func (h *Hub) signalHandler() SignalHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
