// Package hst is the page-composer side of the site toolkit's REST surface:
// a client for persisting container order, and a small preview host that
// stores pages in SQLite, renders them with metadata markers and accepts
// container updates.
package hst

import (
	"errors"
	"fmt"
)

// Page is a stored preview page.
type Page struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ChannelID string `json:"channelId"`
}

// ComponentRecord is a stored container item.
type ComponentRecord struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// Body is trusted HTML rendered inside the component element.
	Body string `json:"body,omitempty"`
}

// ContainerRecord is a stored container with its items in order.
type ContainerRecord struct {
	ID           string            `json:"id"`
	PageID       string            `json:"pageId"`
	Label        string            `json:"label"`
	XType        string            `json:"xtype"`
	LockedBy     string            `json:"lockedBy,omitempty"`
	LastModified int64             `json:"lastModified"`
	Components   []ComponentRecord `json:"components"`
}

// ChildIDs returns the ids of the container's items in order.
func (c ContainerRecord) ChildIDs() []string {
	ids := make([]string, len(c.Components))
	for i, comp := range c.Components {
		ids[i] = comp.ID
	}
	return ids
}

var (
	ErrNotFound         = errors.New("hst: not found")
	ErrLocked           = errors.New("hst: container locked by another user")
	ErrStale            = errors.New("hst: container was modified by someone else")
	ErrUnknownComponent = errors.New("hst: unknown component")
)

// Error is a non-2xx response from the REST endpoint.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("hst: %d %s: %s", e.Status, e.Code, e.Message)
}

// Is maps well-known codes back to the sentinel errors.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == codeNotFound
	case ErrLocked:
		return e.Code == codeLocked
	case ErrStale:
		return e.Code == codeStale
	case ErrUnknownComponent:
		return e.Code == codeUnknownComponent
	}
	return false
}

const (
	codeNotFound         = "NOT_FOUND"
	codeLocked           = "LOCKED"
	codeStale            = "STALE"
	codeUnknownComponent = "UNKNOWN_COMPONENT"
	codeInvalidBody      = "INVALID_BODY"
	codeInvalidID        = "INVALID_ID"
	codeInternal         = "INTERNAL_ERROR"
)
