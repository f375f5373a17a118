// Package activity keeps the editing history of containers and components.
// Lifecycle events from the bus are indexed under every entity they touch,
// so the history of one container can be read without scanning the log.
package activity

import (
	"encoding/json"
	"time"
)

// Entity types entries are indexed by.
const (
	EntityContainer = "container"
	EntityComponent = "component"
)

// Categories.
const (
	CategoryGesture = "gesture"
	CategoryMove    = "move"
	CategoryPersist = "persist"
)

// Ref identifies an entity referenced by an event.
type Ref struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Role       string `json:"role"` // "subject", "source", "target"
}

// Entry is one event as seen from one referenced entity. One event
// produces an entry per entity it references.
type Entry struct {
	EventID           string          `json:"eventId"`
	EventName         string          `json:"eventName"`
	OccurredAt        time.Time       `json:"occurredAt"`
	IndexedEntityType string          `json:"indexedEntityType"`
	IndexedEntityID   string          `json:"indexedEntityId"`
	EntityRole        string          `json:"entityRole"`
	Refs              []Ref           `json:"refs"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"`
	Failed            bool            `json:"failed,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

// QueryOptions controls filtering and pagination for entity queries.
type QueryOptions struct {
	Since      *time.Time
	Until      *time.Time
	Categories []string
	Limit      int    // default 100, max 500
	Cursor     string // occurredAt of the last entry of the previous page
}

// DefaultQueryOptions returns options covering the last day.
func DefaultQueryOptions() QueryOptions {
	since := time.Now().Add(-24 * time.Hour)
	return QueryOptions{Since: &since, Limit: 100}
}
