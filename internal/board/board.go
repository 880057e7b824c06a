// Package board manages boards and their ordered columns.
//
// Columns carry an explicit workflow phase instead of deriving protocol meaning
// from display names; free-form boards leave the phase empty.
package board

// Phase tags a column with its role in the agent claim/review protocol.
type Phase string

// Workflow phases for AI-optimized boards. PhaseNone marks a purely positional
// column with no protocol semantics.
const (
	PhaseNone    Phase = ""
	PhaseBacklog Phase = "backlog"
	PhaseReady   Phase = "ready"
	PhaseDoing   Phase = "doing"
	PhaseReview  Phase = "review"
	PhaseDone    Phase = "done"
)

// Valid reports whether p is a known phase value.
func (p Phase) Valid() bool {
	switch p {
	case PhaseNone, PhaseBacklog, PhaseReady, PhaseDoing, PhaseReview, PhaseDone:
		return true
	}
	return false
}

// Board owns an ordered set of columns.
type Board struct {
	ID          int64
	Name        string
	AIOptimized bool
	CreatedAt   string
}

// Column is an ordered container of tasks within a board.
type Column struct {
	ID       int64
	BoardID  int64
	Name     string
	Position int
	WIPLimit int
	Phase    Phase
}
