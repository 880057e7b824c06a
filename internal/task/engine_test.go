package task

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentboard/agentboard/internal/board"
	"github.com/agentboard/agentboard/internal/db"
)

// engine bundles a service backed by a real sqlite file with an AI-optimized
// board created from the built-in template.
type engine struct {
	db      *sql.DB
	svc     *Service
	boards  *board.Store
	board   board.Board
	backlog board.Column
	ready   board.Column
	doing   board.Column
	review  board.Column
	done    board.Column
}

func newEngine(t *testing.T, opts ...Option) *engine {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	boards := board.NewStore(database)
	def, err := board.AITemplate(0)
	require.NoError(t, err)
	b, err := boards.Create(context.Background(), "test board", def)
	require.NoError(t, err)
	cols, err := boards.Columns(context.Background(), b.ID)
	require.NoError(t, err)

	e := &engine{
		db:     database,
		svc:    NewService(database, boards, opts...),
		boards: boards,
		board:  b,
	}
	for _, c := range cols {
		switch c.Phase {
		case board.PhaseBacklog:
			e.backlog = c
		case board.PhaseReady:
			e.ready = c
		case board.PhaseDoing:
			e.doing = c
		case board.PhaseReview:
			e.review = c
		case board.PhaseDone:
			e.done = c
		}
	}
	return e
}

func (e *engine) add(t *testing.T, p CreateTaskParams) Task {
	t.Helper()
	if p.Type == "" {
		p.Type = TypeWork
	}
	created, err := e.svc.CreateTask(context.Background(), p)
	require.NoError(t, err)
	return created
}

func (e *engine) addWork(t *testing.T, columnID int64, title string) Task {
	t.Helper()
	return e.add(t, CreateTaskParams{ColumnID: columnID, Type: TypeWork, Title: title})
}

func (e *engine) tasks(t *testing.T, columnID int64) []Task {
	t.Helper()
	items, err := e.svc.ColumnTasks(context.Background(), columnID)
	require.NoError(t, err)
	return items
}

// identifiers returns the column's active task identifiers in position order.
func (e *engine) identifiers(t *testing.T, columnID int64) []string {
	t.Helper()
	items := e.tasks(t, columnID)
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Identifier
	}
	return out
}

// requireDense asserts a column holds exactly 0..n-1 positions in order.
func requireDense(t *testing.T, items []Task) {
	t.Helper()
	for i, item := range items {
		require.Equal(t, i, item.Position, "task %s out of place", item.Identifier)
	}
}

func mustDefinition(t *testing.T) board.Definition {
	t.Helper()
	def, err := board.AITemplate(0)
	require.NoError(t, err)
	return def
}

// mustPlainDefinition is a free-form board without workflow phases.
func mustPlainDefinition() board.Definition {
	return board.Definition{Columns: []board.ColumnDefinition{
		{Name: "To Do"},
		{Name: "Done"},
	}}
}

// expireLease backdates a task's claim so the next claim attempt may steal it.
func (e *engine) expireLease(t *testing.T, taskID int64) {
	t.Helper()
	_, err := e.db.Exec(`UPDATE tasks SET claim_expires_at='2000-01-01T00:00:00Z' WHERE id=?`, taskID)
	require.NoError(t, err)
}
