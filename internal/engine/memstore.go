package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/skyhangar/flightline/model"
)

// MemoryStateStore is an in-memory StateStore for testing and
// single-instance deployments.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]model.WorkItem
}

// NewMemoryStateStore creates a new in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		items: make(map[string]model.WorkItem),
	}
}

// Create persists a new work item.
func (s *MemoryStateStore) Create(_ context.Context, item model.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("work item %q already exists", item.ID))
	}

	s.items[item.ID] = copyItem(item)
	return nil
}

// Load retrieves a work item by ID.
func (s *MemoryStateStore) Load(_ context.Context, itemID string) (model.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[itemID]
	if !exists {
		return model.WorkItem{}, model.NewNotFoundError(fmt.Sprintf("work item %q not found", itemID))
	}
	return copyItem(item), nil
}

// CompareAndSwap persists an updated item if its version still matches.
func (s *MemoryStateStore) CompareAndSwap(_ context.Context, item model.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.items[item.ID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("work item %q not found", item.ID))
	}

	if existing.Version != item.Version {
		return model.NewConflictError(fmt.Sprintf(
			"work item %q version conflict (expected %d, found %d)",
			item.ID, item.Version, existing.Version,
		))
	}

	next := copyItem(item)
	next.Version++
	s.items[item.ID] = next
	return nil
}

// List returns work items matching the filters, newest first.
func (s *MemoryStateStore) List(_ context.Context, filters model.WorkItemFilters) ([]model.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkItem
	for _, item := range s.items {
		if filters.Status != "" && item.State.Status != filters.Status {
			continue
		}
		if filters.TemplateID != "" && item.TemplateID != filters.TemplateID {
			continue
		}
		result = append(result, copyItem(item))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.WorkItem{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// Len returns the total number of items. For testing.
func (s *MemoryStateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// copyItem deep-copies a work item so callers never share history slices
// with the store.
func copyItem(item model.WorkItem) model.WorkItem {
	out := item
	out.State.History = make([]model.TransitionRecord, len(item.State.History))
	copy(out.State.History, item.State.History)
	return out
}
