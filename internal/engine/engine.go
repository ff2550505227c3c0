package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skyhangar/flightline/model"
)

const defaultConflictRetries = 3

// TemplateResolver resolves workflow templates by ID. The engine re-resolves
// on every call rather than caching, so a freshly published template version
// is visible immediately.
type TemplateResolver interface {
	Resolve(templateID string) (model.WorkflowTemplate, error)
}

// Engine owns the only mutation path into a work item's workflow state. It
// validates actions, computes the resulting state, appends the audit record,
// and persists the two together behind a compare-and-swap.
type Engine struct {
	store     StateStore
	templates TemplateResolver
	retries   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithConflictRetries sets how many times Apply re-validates against a
// freshly loaded state after losing a compare-and-swap.
func WithConflictRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.retries = n
		}
	}
}

// NewEngine creates a workflow engine backed by the given store and
// template resolver.
func NewEngine(store StateStore, templates TemplateResolver, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		templates: templates,
		retries:   defaultConflictRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateParams describes a new work item.
type CreateParams struct {
	Title       string
	Description string
	TemplateID  string
	Priority    string
	CreatedBy   string
}

// CreateItem creates a work item at step 0 of its template with an empty
// history. The template must exist; its stage sequence governs the item for
// its whole lifetime.
func (e *Engine) CreateItem(ctx context.Context, params CreateParams) (model.WorkItem, error) {
	var details []model.FieldError
	if strings.TrimSpace(params.Title) == "" {
		details = append(details, model.FieldError{Field: "title", Code: "REQUIRED", Message: "Title is required"})
	}
	if params.TemplateID == "" {
		details = append(details, model.FieldError{Field: "template_id", Code: "REQUIRED", Message: "Template ID is required"})
	}
	if len(details) > 0 {
		return model.WorkItem{}, model.NewValidationError(details)
	}

	if _, err := e.templates.Resolve(params.TemplateID); err != nil {
		return model.WorkItem{}, err
	}

	now := time.Now().UTC()
	item := model.WorkItem{
		ID:          uuid.New().String(),
		Title:       params.Title,
		Description: params.Description,
		TemplateID:  params.TemplateID,
		Priority:    params.Priority,
		CreatedBy:   params.CreatedBy,
		State:       model.NewWorkflowState(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}

	if err := e.store.Create(ctx, item); err != nil {
		return model.WorkItem{}, err
	}
	return item, nil
}

// Apply validates and applies an action to a work item, returning the new
// item and the actions now available. Validation failures are returned
// verbatim with zero state mutation. A lost compare-and-swap is retried
// against the winner's state up to the configured bound, then surfaces as
// CONCURRENT_MODIFICATION.
func (e *Engine) Apply(ctx context.Context, itemID string, action Action) (model.WorkItem, []string, error) {
	var lastErr error

	for attempt := 0; attempt < e.retries; attempt++ {
		item, err := e.store.Load(ctx, itemID)
		if err != nil {
			return model.WorkItem{}, nil, err
		}

		tmpl, err := e.templates.Resolve(item.TemplateID)
		if err != nil {
			return model.WorkItem{}, nil, err
		}

		outcome, err := Validate(item.State, action, tmpl)
		if err != nil {
			return model.WorkItem{}, nil, err
		}

		next := applyOutcome(item, action, outcome)

		if err := e.store.CompareAndSwap(ctx, next); err != nil {
			if model.IsCode(err, model.ErrConflict) {
				lastErr = err
				continue
			}
			return model.WorkItem{}, nil, err
		}

		next.Version++
		return next, AvailableActions(next.State), nil
	}

	return model.WorkItem{}, nil, model.NewConcurrentModificationError(fmt.Sprintf(
		"work item %q was modified concurrently; gave up after %d attempts: %v",
		itemID, e.retries, lastErr,
	))
}

// applyOutcome builds the successor work item: unaffected fields copied,
// step and status updated, and one new transition record appended. The
// input item is not modified.
func applyOutcome(item model.WorkItem, action Action, outcome Outcome) model.WorkItem {
	now := time.Now().UTC()
	// Timestamps across one item's history never go backwards, even if the
	// wall clock does.
	if last := item.State.LastRecord(); last != nil && last.Timestamp.After(now) {
		now = last.Timestamp
	}

	record := model.TransitionRecord{
		ID:        uuid.New().String(),
		Action:    recordAction(action.Kind),
		FromStep:  item.State.CurrentStep,
		ToStep:    outcome.RecordToStep,
		Comment:   action.Comment,
		Actor:     action.Actor,
		Timestamp: now,
	}

	history := make([]model.TransitionRecord, len(item.State.History), len(item.State.History)+1)
	copy(history, item.State.History)

	next := item
	next.State = model.WorkflowState{
		CurrentStep: outcome.Step,
		Status:      outcome.Status,
		History:     append(history, record),
	}
	next.UpdatedAt = now
	return next
}

// GetItem returns a work item by ID.
func (e *Engine) GetItem(ctx context.Context, itemID string) (model.WorkItem, error) {
	return e.store.Load(ctx, itemID)
}

// GetAvailableActions returns the action names currently legal for the
// item. Read-only; same derivation Apply uses, without mutation.
func (e *Engine) GetAvailableActions(ctx context.Context, itemID string) ([]string, error) {
	item, err := e.store.Load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return AvailableActions(item.State), nil
}

// GetHistory returns the ordered transition history of a work item as a
// read-only projection.
func (e *Engine) GetHistory(ctx context.Context, itemID string) ([]model.TransitionRecord, error) {
	item, err := e.store.Load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	history := make([]model.TransitionRecord, len(item.State.History))
	copy(history, item.State.History)
	return history, nil
}

// ListItems returns work item summaries matching the filters, enriched with
// the current stage name from each item's template.
func (e *Engine) ListItems(ctx context.Context, filters model.WorkItemFilters) ([]model.WorkItemSummary, error) {
	items, err := e.store.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.WorkItemSummary, 0, len(items))
	for _, item := range items {
		summary := model.WorkItemSummary{
			ID:          item.ID,
			Title:       item.Title,
			TemplateID:  item.TemplateID,
			CurrentStep: item.State.CurrentStep,
			Status:      item.State.Status,
			Priority:    item.Priority,
			CreatedBy:   item.CreatedBy,
			CreatedAt:   item.CreatedAt,
			UpdatedAt:   item.UpdatedAt,
		}
		if tmpl, err := e.templates.Resolve(item.TemplateID); err == nil {
			summary.CurrentStage = tmpl.Stage(item.State.CurrentStep)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
