// Package engine implements the deterministic workflow transition engine:
// validation and application of approve, reject, and cancel actions on work
// items moving through an ordered stage sequence, with an append-only audit
// history and optimistic-concurrency persistence.
package engine

import (
	"fmt"

	"github.com/skyhangar/flightline/model"
)

// Action is a requested transition on a work item. The set of kinds is
// closed: approve, reject, cancel.
type Action struct {
	// Kind is one of model.RequestApprove, model.RequestReject,
	// model.RequestCancel.
	Kind string

	// TargetStep is the step a rejection sends the item back to. Ignored
	// for approve and cancel.
	TargetStep int

	// Comment is mandatory for reject, optional otherwise.
	Comment string

	// Actor identifies who requested the action. Authorization happens
	// before the engine is invoked; the engine only records the claim.
	Actor string
}

// ValidateShape checks the structural fields of an action before it reaches
// the transition validator. Kind must be a known action and Actor non-empty.
func (a Action) ValidateShape() error {
	switch a.Kind {
	case model.RequestApprove, model.RequestReject, model.RequestCancel:
	default:
		return model.NewBadRequestError(fmt.Sprintf("unknown action %q", a.Kind))
	}
	if a.Actor == "" {
		return model.NewBadRequestError("action requires an actor")
	}
	return nil
}

// recordAction maps a request kind to the history record action name.
func recordAction(kind string) string {
	switch kind {
	case model.RequestApprove:
		return model.ActionApproved
	case model.RequestReject:
		return model.ActionRejected
	case model.RequestCancel:
		return model.ActionCancelled
	}
	return kind
}
