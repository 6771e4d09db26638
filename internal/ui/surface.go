// Package ui pushes page updates to connected browsers and carries their
// lifecycle signals back. The page itself is a thin shell: every region's
// markup is rendered here and replaced wholesale in the browser.
package ui

import (
	"context"
	"encoding/json"
)

// Region is a replaceable area of the page
type Region string

const (
	RegionNavigation Region = "navigation"
	RegionActions    Region = "actions"
	RegionContainer  Region = "container"
	RegionTitle      Region = "title"
)

// Event types sent to the browser
const (
	EventReplace   = "replace"
	EventToast     = "toast"
	EventStatus    = "status"
	EventModules   = "modules"
	EventRefreshed = "refreshed"
	EventAck       = "ack"
)

// Surface is what the workspace renders into
type Surface interface {
	Replace(region Region, markup string)
	Toast(msg string)
	// Publish sends a typed event. The latest payload per type is replayed
	// to browsers that connect later.
	Publish(eventType string, payload any)
}

// Event is one server-to-browser message
type Event struct {
	Type    string `json:"type"`
	Region  Region `json:"region,omitempty"`
	Markup  string `json:"markup,omitempty"`
	Message string `json:"message,omitempty"`
	Payload any    `json:"payload,omitempty"`
	MsgID   string `json:"msgId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Signal types sent by the browser
const (
	SignalOnline   = "online"
	SignalOffline  = "offline"
	SignalVisible  = "visible"
	SignalUnload   = "unload"
	SignalActivate = "activate"
	SignalAction   = "action"
	SignalSync     = "sync"
)

// Signal is one browser-to-server message
type Signal struct {
	Type    string          `json:"type"`
	Module  string          `json:"module,omitempty"`
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	MsgID   string          `json:"msgId,omitempty"`
}

// SignalHandler consumes browser signals
type SignalHandler interface {
	HandleSignal(ctx context.Context, sig Signal) error
}

// SignalHandlerFunc adapts a function to SignalHandler
type SignalHandlerFunc func(ctx context.Context, sig Signal) error

func (f SignalHandlerFunc) HandleSignal(ctx context.Context, sig Signal) error {
	return f(ctx, sig)
}
