package engine

import (
	"context"

	"github.com/skyhangar/flightline/model"
)

// StateStore persists work items with optimistic concurrency. The Version
// field on a loaded item is the concurrency token: CompareAndSwap only
// succeeds if the stored version still matches, and increments it.
type StateStore interface {
	// Create persists a new work item. Returns CONFLICT if the ID exists.
	Create(ctx context.Context, item model.WorkItem) error

	// Load retrieves a work item, including its full transition history.
	// Returns NOT_FOUND if the item doesn't exist.
	Load(ctx context.Context, itemID string) (model.WorkItem, error)

	// CompareAndSwap persists the updated item conditioned on item.Version
	// matching the stored version, as a single atomic write covering the
	// state fields and the newly appended history record. Returns CONFLICT
	// if the version has changed.
	CompareAndSwap(ctx context.Context, item model.WorkItem) error

	// List returns work items matching the filters, newest first.
	List(ctx context.Context, filters model.WorkItemFilters) ([]model.WorkItem, error)
}
