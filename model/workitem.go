package model

import "time"

// Work item status constants.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Transition record action constants. These name what already happened, as
// recorded in a work item's history.
const (
	ActionApproved  = "approved"
	ActionRejected  = "rejected"
	ActionCancelled = "cancelled"
)

// Requestable action names, as exposed to callers and accepted by Apply.
const (
	RequestApprove = "approve"
	RequestReject  = "reject"
	RequestCancel  = "cancel"
)

// WorkItem is the central entity flowing through an approval workflow. The
// engine owns the State field exclusively; everything else is descriptive
// metadata set at creation time.
type WorkItem struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	TemplateID  string        `json:"template_id"`
	Priority    string        `json:"priority,omitempty"`
	CreatedBy   string        `json:"created_by"`
	State       WorkflowState `json:"state"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	// Version is the optimistic concurrency token. It is assigned by the
	// state store and incremented on every successful compare-and-swap.
	Version int `json:"version"`
}

// WorkflowState is the mutable projection of a work item's workflow progress.
// CurrentStep indexes into the template's stage sequence while Status is
// active; it is frozen for audit once the item reaches a terminal status.
type WorkflowState struct {
	CurrentStep int                `json:"current_step"`
	Status      string             `json:"status"`
	History     []TransitionRecord `json:"history"`
}

// IsTerminal reports whether no further transitions are legal.
func (s WorkflowState) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusCancelled
}

// LastRecord returns the most recent history entry, or nil if the history
// is empty.
func (s WorkflowState) LastRecord() *TransitionRecord {
	if len(s.History) == 0 {
		return nil
	}
	return &s.History[len(s.History)-1]
}

// NewWorkflowState returns the initial state of a freshly created work item.
func NewWorkflowState() WorkflowState {
	return WorkflowState{
		CurrentStep: 0,
		Status:      StatusActive,
		History:     []TransitionRecord{},
	}
}

// TransitionRecord is one immutable audit entry describing a single applied
// action. Records are identified by position in the history; the ID exists
// only for persistence.
type TransitionRecord struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	FromStep  int       `json:"from_step"`
	ToStep    int       `json:"to_step"`
	Comment   string    `json:"comment,omitempty"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkItemSummary is a lightweight representation of a work item used in
// list views.
type WorkItemSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	TemplateID   string    `json:"template_id"`
	CurrentStep  int       `json:"current_step"`
	CurrentStage string    `json:"current_stage,omitempty"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ActionResult is the outcome of applying an action to a work item, as
// returned to callers and cached by the idempotency store.
type ActionResult struct {
	Item             WorkItem `json:"item"`
	AvailableActions []string `json:"available_actions"`
}

// WorkItemFilters are optional filters for listing work items.
type WorkItemFilters struct {
	TemplateID string
	Status     string
	Limit      int
	Offset     int
}
