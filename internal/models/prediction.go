package models

import (
	"fmt"
	"time"
)

// ActionTier enumerates the decision tiers recommended by the classifier.
type ActionTier string

const (
	ActionAutonomous ActionTier = "autonomous"
	ActionAssisted   ActionTier = "assisted"
	ActionManual     ActionTier = "manual"
)

// Outcome captures the terminal result reported by the executor.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRollback Outcome = "rollback"
	OutcomeFailed   Outcome = "failed"
)

// IssueType enumerates issue categories assigned by the classifier.
type IssueType string

const (
	IssueBroken      IssueType = "broken"
	IssueMissing     IssueType = "missing"
	IssueImprovement IssueType = "improvement"
)

// ConfidencePrediction is one prediction/outcome record per resolved issue.
// A second write with the same IssueID overwrites the prior record.
type ConfidencePrediction struct {
	IssueID               string     `json:"issue_id"`
	PredictedConfidence   float64    `json:"predicted_confidence"`
	PredictedAction       ActionTier `json:"predicted_action"`
	ActualOutcome         Outcome    `json:"actual_outcome"`
	ResolutionTimeMinutes float64    `json:"resolution_time_minutes"`
	IssueType             IssueType  `json:"issue_type"`
	Timestamp             time.Time  `json:"timestamp"`

	// Free-form tags carried through for reporting, unused in calculations.
	Severity string `json:"severity,omitempty"`
	Component string `json:"component,omitempty"`
	BaseType  string `json:"baseType,omitempty"`
}

// Succeeded reports whether the executor resolved the issue without rollback.
func (p ConfidencePrediction) Succeeded() bool {
	return p.ActualOutcome == OutcomeSuccess
}

// Validate checks the record invariants from the data model.
func (p ConfidencePrediction) Validate() error {
	if p.IssueID == "" {
		return fmt.Errorf("issue_id is required")
	}
	if p.PredictedConfidence < 0 || p.PredictedConfidence > 1 {
		return fmt.Errorf("predicted_confidence %f outside [0,1]", p.PredictedConfidence)
	}
	switch p.PredictedAction {
	case ActionAutonomous, ActionAssisted, ActionManual:
	default:
		return fmt.Errorf("unknown predicted_action %q", p.PredictedAction)
	}
	switch p.ActualOutcome {
	case OutcomeSuccess, OutcomeRollback, OutcomeFailed:
	default:
		return fmt.Errorf("unknown actual_outcome %q", p.ActualOutcome)
	}
	switch p.IssueType {
	case IssueBroken, IssueMissing, IssueImprovement:
	default:
		return fmt.Errorf("unknown issue_type %q", p.IssueType)
	}
	if p.ResolutionTimeMinutes < 0 {
		return fmt.Errorf("resolution_time_minutes must be non-negative")
	}
	return nil
}

// TimeRange bounds a record query window. Both ends are inclusive.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range. A zero range matches everything.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// IsZero reports whether no bounds were set.
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// MalformedRecord describes a stored record that could not be parsed.
// Such records are skipped and reported as warnings; loads never abort on them.
type MalformedRecord struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}
