package powertree

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUnknownUseCase = errors.New("unknown use case")
	ErrUnknownNode    = errors.New("unknown node")
	ErrDuplicateID    = errors.New("duplicate id")
	ErrUnknownMode    = errors.New("unknown mode")
	ErrModeExists     = errors.New("mode already exists")
	ErrProtectedMode  = errors.New("mode cannot be removed")
	ErrNotPowerSource = errors.New("not a power source")
	ErrUseCaseExists  = errors.New("use case already exists")
	ErrNotComponent   = errors.New("not a component")
	ErrWouldCycle     = errors.New("would create a supply loop")
)

// IssueKind classifies a finding about the model or a computation
type IssueKind int

const (
	IssueCycleDetected IssueKind = iota
	IssueDanglingSource
	IssueDuplicateID
	IssueMissingSourceMode
	IssueMissingOnMode
	IssueUnknownComponentMode
	IssueMissingGroupBlend
	IssueBlendNot100
	IssueEfficiencyRange
	IssueNegativeValue
	IssueUnknownUseCase
	IssueUnknownReference
	IssueHoursNotDay
)

func (k IssueKind) String() string {
	switch k {
	case IssueCycleDetected:
		return "cycle_detected"
	case IssueDanglingSource:
		return "dangling_source"
	case IssueDuplicateID:
		return "duplicate_id"
	case IssueMissingSourceMode:
		return "missing_source_mode"
	case IssueMissingOnMode:
		return "missing_on_mode"
	case IssueUnknownComponentMode:
		return "unknown_component_mode"
	case IssueMissingGroupBlend:
		return "missing_group_blend"
	case IssueBlendNot100:
		return "blend_not_100"
	case IssueEfficiencyRange:
		return "efficiency_range"
	case IssueNegativeValue:
		return "negative_value"
	case IssueUnknownUseCase:
		return "unknown_use_case"
	case IssueUnknownReference:
		return "unknown_reference"
	case IssueHoursNotDay:
		return "hours_not_day"
	default:
		return "unknown"
	}
}

// Severity ranks issues: structural faults are errors, configuration gaps are warnings
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Severity returns how serious an issue of this kind is
func (k IssueKind) Severity() Severity {
	switch k {
	case IssueCycleDetected, IssueDanglingSource, IssueDuplicateID:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// Issue is a non-fatal finding. Computations always complete; issues explain
// where a default was substituted or a branch was cut.
type Issue struct {
	Kind   IssueKind
	NodeID string // Node, group, use case or profile the issue is about
	Detail string
}

func (i Issue) String() string {
	if i.NodeID == "" {
		return fmt.Sprintf("%s %s: %s", i.Kind.Severity(), i.Kind, i.Detail)
	}
	return fmt.Sprintf("%s %s [%s]: %s", i.Kind.Severity(), i.Kind, i.NodeID, i.Detail)
}

// HasErrors reports whether any issue is error-severity
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool {
		return i.Kind.Severity() == SeverityError
	})
}

// sortIssues orders errors first, then by kind, subject and detail
func sortIssues(issues []Issue) {
	slices.SortStableFunc(issues, func(a, b Issue) int {
		return cmp.Or(
			cmp.Compare(b.Kind.Severity(), a.Kind.Severity()),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.NodeID, b.NodeID),
			cmp.Compare(a.Detail, b.Detail),
		)
	})
}
