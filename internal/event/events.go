// Package event defines the events published by the editor core: events
// re-emitted from the preview frame and drag-and-drop lifecycle events.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event carries the canonical shape of every event on the bus.
type Event struct {
	ID         string
	Name       string
	Source     string // "frame" for events received over the channel, "editor" otherwise
	OccurredAt time.Time
	Payload    json.RawMessage
}

// Sources.
const (
	SourceFrame  = "frame"
	SourceEditor = "editor"
)

// Editor event names.
const (
	DragStarted      = "drag:start"
	DragDropped      = "drag:drop"
	DragCancelled    = "drag:cancel"
	ContainerUpdated = "container:updated"
	ContainerFailed  = "container:failed"
	PageParsed       = "page:parsed"
)

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	b, _ := json.Marshal(v)
	return b
}

// FromFrame wraps an event received from the preview frame.
func FromFrame(name string, payload json.RawMessage) Event {
	return Event{
		ID:         newID(),
		Name:       name,
		Source:     SourceFrame,
		OccurredAt: time.Now(),
		Payload:    payload,
	}
}

// New builds an editor event with a JSON-encoded payload.
func New(name string, payload any) Event {
	return Event{
		ID:         newID(),
		Name:       name,
		Source:     SourceEditor,
		OccurredAt: time.Now(),
		Payload:    mustJSON(payload),
	}
}

// DragPayload describes a component being dragged.
type DragPayload struct {
	ComponentID string `json:"componentId"`
	ContainerID string `json:"containerId"`
}

// DropPayload describes a completed move.
type DropPayload struct {
	ComponentID       string `json:"componentId"`
	SourceContainerID string `json:"sourceContainerId"`
	TargetContainerID string `json:"targetContainerId"`
	NextComponentID   string `json:"nextComponentId,omitempty"`
}

// ContainerPayload reports the outcome of persisting a container.
type ContainerPayload struct {
	ContainerID string `json:"containerId"`
	Error       string `json:"error,omitempty"`
}

// NewDragStarted is published when a drag gesture begins.
func NewDragStarted(p DragPayload) Event { return New(DragStarted, p) }

// NewDragDropped is published after the page model has been updated.
func NewDragDropped(p DropPayload) Event { return New(DragDropped, p) }

// NewDragCancelled is published when a gesture ends without a move.
func NewDragCancelled(p DragPayload) Event { return New(DragCancelled, p) }

// NewContainerUpdated is published after a container was persisted.
func NewContainerUpdated(containerID string) Event {
	return New(ContainerUpdated, ContainerPayload{ContainerID: containerID})
}

// NewContainerFailed is published when persisting a container failed.
func NewContainerFailed(containerID string, err error) Event {
	return New(ContainerFailed, ContainerPayload{ContainerID: containerID, Error: err.Error()})
}
