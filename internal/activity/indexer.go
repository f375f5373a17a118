package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matthewbaird/pagecomposer/internal/event"
)

// Indexer consumes lifecycle events from the bus and writes one entry per
// referenced entity.
type Indexer struct {
	store Store
}

// NewIndexer creates an indexer writing to store.
func NewIndexer(store Store) *Indexer {
	return &Indexer{store: store}
}

// HandleEvent indexes evt. Events that reference no container or component
// are ignored.
func (idx *Indexer) HandleEvent(ctx context.Context, evt event.Event) error {
	refs, summary, category, failed, err := describe(evt)
	if err != nil {
		return fmt.Errorf("indexing %s: %w", evt.Name, err)
	}
	if len(refs) == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(refs))
	seen := make(map[string]bool)
	for _, ref := range refs {
		key := ref.EntityType + ":" + ref.EntityID
		if ref.EntityID == "" || seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, Entry{
			EventID:           evt.ID,
			EventName:         evt.Name,
			OccurredAt:        evt.OccurredAt,
			IndexedEntityType: ref.EntityType,
			IndexedEntityID:   ref.EntityID,
			EntityRole:        ref.Role,
			Refs:              refs,
			Summary:           summary,
			Category:          category,
			Failed:            failed,
			Payload:           evt.Payload,
		})
	}
	return idx.store.WriteEntries(ctx, entries)
}

func describe(evt event.Event) (refs []Ref, summary, category string, failed bool, err error) {
	switch evt.Name {
	case event.DragStarted, event.DragCancelled:
		var p event.DragPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, "", "", false, err
		}
		refs = []Ref{
			{EntityType: EntityComponent, EntityID: p.ComponentID, Role: "subject"},
			{EntityType: EntityContainer, EntityID: p.ContainerID, Role: "source"},
		}
		verb := "picked up"
		if evt.Name == event.DragCancelled {
			verb = "put back"
		}
		return refs, fmt.Sprintf("component %s %s in container %s", p.ComponentID, verb, p.ContainerID), CategoryGesture, false, nil

	case event.DragDropped:
		var p event.DropPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, "", "", false, err
		}
		refs = []Ref{
			{EntityType: EntityComponent, EntityID: p.ComponentID, Role: "subject"},
			{EntityType: EntityContainer, EntityID: p.SourceContainerID, Role: "source"},
			{EntityType: EntityContainer, EntityID: p.TargetContainerID, Role: "target"},
		}
		summary = fmt.Sprintf("component %s moved from %s to %s", p.ComponentID, p.SourceContainerID, p.TargetContainerID)
		if p.NextComponentID != "" {
			summary += " before " + p.NextComponentID
		}
		return refs, summary, CategoryMove, false, nil

	case event.ContainerUpdated, event.ContainerFailed:
		var p event.ContainerPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, "", "", false, err
		}
		refs = []Ref{{EntityType: EntityContainer, EntityID: p.ContainerID, Role: "subject"}}
		if evt.Name == event.ContainerFailed {
			return refs, fmt.Sprintf("container %s could not be saved: %s", p.ContainerID, p.Error), CategoryPersist, true, nil
		}
		return refs, fmt.Sprintf("container %s saved", p.ContainerID), CategoryPersist, false, nil
	}
	return nil, "", "", false, nil
}
