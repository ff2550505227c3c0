package model

import "time"

// WorkflowTemplate is the immutable description of a stage sequence and its
// approval rules. Templates are loaded from YAML files at startup; once a
// work item references a template ID, that template's sequence must not
// change shape. Edits require a new template version.
type WorkflowTemplate struct {
	ID          string `yaml:"id"          json:"id"`
	Name        string `yaml:"name"        json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Version     string `yaml:"version"     json:"version"`

	// StageSequence is the ordered list of stage identifiers a work item
	// passes through. Never empty, no duplicates.
	StageSequence []string `yaml:"stage_sequence" json:"stage_sequence"`

	// MinApprovals is the number of distinct approving actors required to
	// leave a stage. Zero is normalized to 1 at load time.
	MinApprovals int `yaml:"min_approvals" json:"min_approvals"`

	// AllowSelfApproval permits the same actor to act twice in a row at
	// the same step.
	AllowSelfApproval bool `yaml:"allow_self_approval" json:"allow_self_approval"`

	// EscalationTimeout is how long an item may sit at one step before the
	// escalation processor intervenes, as a duration string ("72h").
	// Empty disables escalation for the template.
	EscalationTimeout string `yaml:"escalation_timeout" json:"escalation_timeout,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// EscalationAfter parses the escalation timeout. The second return is false
// when escalation is disabled or the value does not parse.
func (t WorkflowTemplate) EscalationAfter() (time.Duration, bool) {
	if t.EscalationTimeout == "" {
		return 0, false
	}
	d, err := time.ParseDuration(t.EscalationTimeout)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// LastStepIndex returns the index of the final stage.
func (t WorkflowTemplate) LastStepIndex() int {
	return len(t.StageSequence) - 1
}

// Stage returns the stage identifier at the given index, or "" if the index
// is out of range.
func (t WorkflowTemplate) Stage(index int) string {
	if index < 0 || index >= len(t.StageSequence) {
		return ""
	}
	return t.StageSequence[index]
}
