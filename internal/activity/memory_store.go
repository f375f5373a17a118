package activity

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// Store reads and writes activity entries.
type Store interface {
	WriteEntries(ctx context.Context, entries []Entry) error
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []Entry, nextCursor string, totalCount int, err error)
}

// MemoryStore keeps entries in memory, dropping the oldest once the limit
// is reached.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	limit   int
}

// NewMemoryStore creates a store holding at most limit entries; zero means
// no limit.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: limit}
}

func (s *MemoryStore) WriteEntries(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	if s.limit > 0 && len(s.entries) > s.limit {
		s.entries = slices.Clone(s.entries[len(s.entries)-s.limit:])
	}
	return nil
}

func (s *MemoryStore) QueryByEntity(_ context.Context, entityType, entityID string, opts QueryOptions) ([]Entry, string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cursor time.Time
	if opts.Cursor != "" {
		if t, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			cursor = t
		}
	}

	var matched []Entry
	for _, e := range s.entries {
		if e.IndexedEntityType != entityType || e.IndexedEntityID != entityID {
			continue
		}
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.OccurredAt.After(*opts.Until) {
			continue
		}
		if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, e.Category) {
			continue
		}
		if !cursor.IsZero() && !e.OccurredAt.Before(cursor) {
			continue
		}
		matched = append(matched, e)
	}

	// Newest first.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	totalCount := len(matched)
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var nextCursor string
	if len(matched) > limit {
		matched = matched[:limit]
		nextCursor = matched[len(matched)-1].OccurredAt.Format(time.RFC3339Nano)
	}
	return matched, nextCursor, totalCount, nil
}
