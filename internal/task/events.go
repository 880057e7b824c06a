package task

import (
	"time"

	"github.com/google/uuid"
)

// EventKind labels a change event.
type EventKind string

// Change event kinds emitted after a mutating operation commits.
const (
	EventCreated         EventKind = "task_created"
	EventMoved           EventKind = "task_moved"
	EventClaimed         EventKind = "task_claimed"
	EventUnclaimed       EventKind = "task_unclaimed"
	EventCompleted       EventKind = "task_completed"
	EventReviewRequested EventKind = "task_review_requested"
	EventReviewed        EventKind = "task_reviewed"
	EventUnblocked       EventKind = "task_unblocked"
	EventArchived        EventKind = "task_archived"
	EventUnarchived      EventKind = "task_unarchived"
	EventDeleted         EventKind = "task_deleted"
)

// Event is a change notification carrying the affected task. Events are
// published only after the surrounding transaction commits.
type Event struct {
	ID         string
	Kind       EventKind
	Task       Task
	OccurredAt string
}

func newEvent(kind EventKind, t Task) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Task:       t,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}
