package template

import (
	"fmt"

	"github.com/skyhangar/flightline/model"
)

// VError describes a single validation error in a template.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks templates structurally and for cross-template ID
// collisions.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all templates. An empty result means the set is loadable.
func (v *Validator) Validate(templates []model.WorkflowTemplate) []VError {
	var errs []VError

	seen := make(map[string]string, len(templates))
	for i, tmpl := range templates {
		prefix := fmt.Sprintf("templates[%d]", i)
		errs = append(errs, v.validateTemplate(prefix, tmpl)...)

		if tmpl.ID == "" {
			continue
		}
		if prev, dup := seen[tmpl.ID]; dup {
			errs = append(errs, VError{
				Path:    prefix + ".id",
				Code:    "DUPLICATE_ID",
				Message: fmt.Sprintf("template %q already defined in %s", tmpl.ID, prev),
			})
			continue
		}
		seen[tmpl.ID] = tmpl.SourceFile
	}

	return errs
}

func (v *Validator) validateTemplate(prefix string, tmpl model.WorkflowTemplate) []VError {
	var errs []VError

	if tmpl.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if tmpl.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if tmpl.Version == "" {
		errs = append(errs, VError{Path: prefix + ".version", Code: "REQUIRED", Message: "version is required"})
	}

	if len(tmpl.StageSequence) == 0 {
		errs = append(errs, VError{Path: prefix + ".stage_sequence", Code: "REQUIRED", Message: "at least one stage is required"})
	}

	stages := make(map[string]bool, len(tmpl.StageSequence))
	for i, stage := range tmpl.StageSequence {
		sp := fmt.Sprintf("%s.stage_sequence[%d]", prefix, i)
		if stage == "" {
			errs = append(errs, VError{Path: sp, Code: "REQUIRED", Message: "stage identifier must not be empty"})
			continue
		}
		if stages[stage] {
			errs = append(errs, VError{Path: sp, Code: "DUPLICATE_STAGE", Message: fmt.Sprintf("stage %q appears more than once", stage)})
		}
		stages[stage] = true
	}

	if tmpl.MinApprovals < 1 {
		errs = append(errs, VError{Path: prefix + ".min_approvals", Code: "RANGE", Message: "min_approvals must be at least 1"})
	}
	if tmpl.EscalationTimeout != "" {
		if _, ok := tmpl.EscalationAfter(); !ok {
			errs = append(errs, VError{
				Path:    prefix + ".escalation_timeout",
				Code:    "INVALID_DURATION",
				Message: fmt.Sprintf("escalation_timeout %q is not a positive duration", tmpl.EscalationTimeout),
			})
		}
	}

	return errs
}
