package engine

import (
	"fmt"

	"github.com/skyhangar/flightline/model"
)

// Outcome is the computed result of a legal transition. The validator
// produces it; the engine turns it into a new state plus a history record.
type Outcome struct {
	// Step is the resulting current step index. On completion it stays at
	// the last valid index rather than running past the sequence.
	Step int

	// Status is the resulting work item status.
	Status string

	// RecordToStep is the to_step written into the transition record. For
	// a completing approval this equals the last index; for a cancel it
	// equals the unchanged current step.
	RecordToStep int
}

// Validate decides whether the requested action is legal for the given state
// under the given template, and computes the resulting step and status. It
// is purely computational: no side effects, no clock, no store access.
//
// Rules are checked in order: terminal guard, action-specific structure
// (comment, target range), then the self-approval policy.
func Validate(state model.WorkflowState, action Action, tmpl model.WorkflowTemplate) (Outcome, error) {
	if err := action.ValidateShape(); err != nil {
		return Outcome{}, err
	}

	// Terminal states accept no further transitions, including repeated
	// cancel.
	if state.IsTerminal() {
		return Outcome{}, model.NewTerminalStateError(
			fmt.Sprintf("work item is %s; no further actions are legal", state.Status),
		)
	}

	switch action.Kind {
	case model.RequestApprove:
		return validateApprove(state, action, tmpl)
	case model.RequestReject:
		return validateReject(state, action, tmpl)
	case model.RequestCancel:
		// Legal from any non-terminal state. The step index is left
		// unchanged for audit purposes.
		return Outcome{
			Step:         state.CurrentStep,
			Status:       model.StatusCancelled,
			RecordToStep: state.CurrentStep,
		}, nil
	}

	return Outcome{}, model.NewBadRequestError(fmt.Sprintf("unknown action %q", action.Kind))
}

func validateApprove(state model.WorkflowState, action Action, tmpl model.WorkflowTemplate) (Outcome, error) {
	if err := checkSelfApproval(state, action, tmpl); err != nil {
		return Outcome{}, err
	}

	// A stage may require more than one distinct approver before the item
	// advances. Approvals short of the quorum are recorded in place.
	if tmpl.MinApprovals > 1 {
		approvers := stepApprovers(state)
		approvers[action.Actor] = true
		if len(approvers) < tmpl.MinApprovals {
			return Outcome{
				Step:         state.CurrentStep,
				Status:       model.StatusActive,
				RecordToStep: state.CurrentStep,
			}, nil
		}
	}

	next := state.CurrentStep + 1
	if next >= len(tmpl.StageSequence) {
		// Final approval: the item completes and the index stays at the
		// last valid position.
		return Outcome{
			Step:         tmpl.LastStepIndex(),
			Status:       model.StatusCompleted,
			RecordToStep: tmpl.LastStepIndex(),
		}, nil
	}
	return Outcome{
		Step:         next,
		Status:       model.StatusActive,
		RecordToStep: next,
	}, nil
}

func validateReject(state model.WorkflowState, action Action, tmpl model.WorkflowTemplate) (Outcome, error) {
	if action.Comment == "" {
		return Outcome{}, model.NewMissingCommentError("rejection requires a comment")
	}

	// A rejection may only move backward or stay, never forward.
	if action.TargetStep < 0 || action.TargetStep > state.CurrentStep {
		return Outcome{}, model.NewInvalidTargetStepError(fmt.Sprintf(
			"target step %d is outside the legal range [0, %d]",
			action.TargetStep, state.CurrentStep,
		))
	}

	if err := checkSelfApproval(state, action, tmpl); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Step:         action.TargetStep,
		Status:       model.StatusActive,
		RecordToStep: action.TargetStep,
	}, nil
}

// checkSelfApproval rejects an action whose actor matches the actor of the
// immediately preceding approved/rejected record at the same step, unless
// the template permits it. This is policy, not a hard invariant.
func checkSelfApproval(state model.WorkflowState, action Action, tmpl model.WorkflowTemplate) error {
	if tmpl.AllowSelfApproval {
		return nil
	}
	last := state.LastRecord()
	if last == nil {
		return nil
	}
	if last.Action != model.ActionApproved && last.Action != model.ActionRejected {
		return nil
	}
	if last.ToStep == state.CurrentStep && last.Actor == action.Actor {
		return model.NewSelfApprovalError(fmt.Sprintf(
			"actor %q already acted on step %d", action.Actor, state.CurrentStep,
		))
	}
	return nil
}

// stepApprovers returns the distinct actors whose trailing approvals were
// recorded in place at the current step (a quorum still being gathered).
func stepApprovers(state model.WorkflowState) map[string]bool {
	approvers := make(map[string]bool)
	for i := len(state.History) - 1; i >= 0; i-- {
		r := state.History[i]
		if r.Action != model.ActionApproved || r.FromStep != state.CurrentStep || r.ToStep != state.CurrentStep {
			break
		}
		approvers[r.Actor] = true
	}
	return approvers
}

// AvailableActions derives the set of legal action names from a state. Any
// active item accepts all three actions (an approval at the last index is
// the completing approval); terminal items accept none.
func AvailableActions(state model.WorkflowState) []string {
	if state.IsTerminal() {
		return []string{}
	}
	return []string{model.RequestApprove, model.RequestReject, model.RequestCancel}
}
