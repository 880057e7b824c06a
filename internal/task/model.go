// Package task implements the ordering and claim coordination engine: dense
// per-column positioning, WIP admission, dependency blocking, goal anchoring,
// and the atomic claim protocol used by autonomous agents.
package task

import "errors"

// Type classifies a task. Goals are containers; work and defects are
// chargeable against WIP limits.
type Type string

// Task types.
const (
	TypeWork   Type = "work"
	TypeDefect Type = "defect"
	TypeGoal   Type = "goal"
)

// Chargeable reports whether tasks of this type count toward WIP limits.
func (t Type) Chargeable() bool {
	return t == TypeWork || t == TypeDefect
}

// Prefix returns the identifier prefix for the type.
func (t Type) Prefix() string {
	switch t {
	case TypeWork:
		return "W"
	case TypeDefect:
		return "D"
	case TypeGoal:
		return "G"
	}
	return ""
}

// Valid reports whether t is a known task type.
func (t Type) Valid() bool {
	return t.Prefix() != ""
}

// Status is the lifecycle state of a task.
type Status string

// Task statuses. Completed is terminal; archival is an orthogonal soft-delete
// flag, not a status.
const (
	StatusOpen       Status = "open"
	StatusBlocked    Status = "blocked"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ReviewStatus is the outcome recorded by a reviewer.
type ReviewStatus string

// Review statuses.
const (
	ReviewPending          ReviewStatus = "pending"
	ReviewApproved         ReviewStatus = "approved"
	ReviewChangesRequested ReviewStatus = "changes_requested"
	ReviewRejected         ReviewStatus = "rejected"
)

// Task is the central mutable entity. Timestamps are RFC3339 UTC strings;
// empty means unset.
type Task struct {
	ID         int64
	Identifier string
	Type       Type
	BoardID    int64
	ColumnID   int64
	Position   int
	ParentID   *int64

	Title       string
	Description string
	Priority    int
	Status      Status

	Dependencies         []string
	RequiredCapabilities []string
	KeyFiles             []string

	NeedsReview  bool
	ReviewStatus ReviewStatus

	AssignedToID   string
	ClaimedAt      string
	ClaimExpiresAt string
	CompletedAt    string
	CompletedByID  string
	ReviewedAt     string
	ArchivedAt     string

	CreatedAt string
	UpdatedAt string
}

// Archived reports whether the task has been soft-deleted.
func (t Task) Archived() bool {
	return t.ArchivedAt != ""
}

// HistoryEntry is one append-only audit record for a task.
type HistoryEntry struct {
	ID        int64
	TaskID    int64
	Event     string
	Actor     string
	Detail    string
	CreatedAt string
}

// Domain outcomes returned as explicit error values. Callers match them with
// errors.Is; none of them leaves partial state behind.
var (
	ErrNotFound           = errors.New("task not found")
	ErrWIPLimitReached    = errors.New("column is at capacity")
	ErrNoTasksAvailable   = errors.New("no tasks available")
	ErrNotAuthorized      = errors.New("not the claim holder")
	ErrNotClaimed         = errors.New("task is not claimed")
	ErrInvalidStatus      = errors.New("task status does not allow this operation")
	ErrInvalidColumn      = errors.New("task is not in the required column")
	ErrReviewNotPerformed = errors.New("review has not been performed")
	ErrHasDependents      = errors.New("other tasks depend on this task")
)
