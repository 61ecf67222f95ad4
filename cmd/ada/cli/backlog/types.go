// Package backlog manages the feature backlog persisted at
// feature-list.json in the project root.
package backlog

import (
	"fmt"
)

// Status is the lifecycle state of a feature.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// Category classifies the kind of work a feature represents.
type Category string

const (
	CategoryFunctional     Category = "functional"
	CategoryInfrastructure Category = "infrastructure"
	CategoryTesting        Category = "testing"
	CategoryDocumentation  Category = "documentation"
	CategoryBugfix         Category = "bugfix"
	CategoryRefactor       Category = "refactor"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryFunctional, CategoryInfrastructure, CategoryTesting,
		CategoryDocumentation, CategoryBugfix, CategoryRefactor:
		return true
	}
	return false
}

// Feature is one unit of work in the backlog.
type Feature struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Category           Category `json:"category"`
	Priority           int      `json:"priority"`
	Status             Status   `json:"status"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	DependsOn          []string `json:"depends_on,omitempty"`
	SessionsSpent      int      `json:"sessions_spent"`

	// ImplementationNotes accumulates handoff notes and verification
	// failure context across sessions, one entry per note.
	ImplementationNotes []string `json:"implementation_notes,omitempty"`

	// ModelOverride selects a model for this feature instead of the
	// configured default.
	ModelOverride string `json:"model_override,omitempty"`

	// BlockedReason records why the feature was marked blocked.
	BlockedReason string `json:"blocked_reason,omitempty"`
}

// Document is the feature-list.json schema: project identity plus the
// ordered feature list.
type Document struct {
	ProjectName string     `json:"project_name"`
	ProjectPath string     `json:"project_path"`
	Features    []*Feature `json:"features"`
}

// Validate checks a single feature's fields.
func (f *Feature) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("feature with name %q has empty id", f.Name)
	}
	if f.Name == "" {
		return fmt.Errorf("feature %s has empty name", f.ID)
	}
	if !f.Category.Valid() {
		return fmt.Errorf("feature %s has unknown category %q", f.ID, f.Category)
	}
	if !f.Status.Valid() {
		return fmt.Errorf("feature %s has unknown status %q", f.ID, f.Status)
	}
	return nil
}

// Counts summarizes the backlog by status.
type Counts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Blocked    int `json:"blocked"`
}

// CompletionPct returns the completed fraction as a percentage.
func (c Counts) CompletionPct() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Completed) / float64(c.Total) * 100
}
