package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/agentboard/agentboard/internal/board"
	"github.com/agentboard/agentboard/internal/config"
)

// Service is the task state machine: every mutating operation runs inside a
// single transaction against the shared store, which is the sole
// synchronization point. Change events are published after commit.
type Service struct {
	db       *sql.DB
	boards   *board.Store
	hooks    HookProvider
	lease    time.Duration
	validate *validator.Validate

	mu          sync.Mutex
	subscribers []func(Event)
}

// Option configures a Service.
type Option func(*Service)

// WithLease overrides the claim lease duration.
func WithLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lease = d
		}
	}
}

// WithHookProvider overrides the hook metadata provider.
func WithHookProvider(h HookProvider) Option {
	return func(s *Service) {
		if h != nil {
			s.hooks = h
		}
	}
}

// NewService creates the engine service.
func NewService(db *sql.DB, boards *board.Store, opts ...Option) *Service {
	s := &Service{
		db:       db,
		boards:   boards,
		hooks:    EnvHookProvider{},
		lease:    config.DefaultLeaseMinutes * time.Minute,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a change-event consumer. Handlers run synchronously
// after the mutating transaction commits.
func (s *Service) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Service) publish(events []Event) {
	s.mu.Lock()
	subs := make([]func(Event), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()
	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

type eventBuffer struct {
	events []Event
}

func (b *eventBuffer) add(kind EventKind, t Task) {
	b.events = append(b.events, newEvent(kind, t))
}

// inTx runs fn inside a transaction; any failure aborts the whole
// transaction so partial mutations are never observable. Buffered events are
// published only after commit.
func (s *Service) inTx(ctx context.Context, fn func(tx *sql.Tx, ev *eventBuffer) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	var buf eventBuffer
	if err := fn(tx, &buf); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	s.publish(buf.events)
	return nil
}

func loadColumn(ctx context.Context, q dbtx, id int64) (board.Column, error) {
	row := q.QueryRowContext(ctx, `SELECT id, board_id, name, position, wip_limit, phase FROM columns WHERE id=?`, id)
	var c board.Column
	var phase string
	if err := row.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.WIPLimit, &phase); err != nil {
		if err == sql.ErrNoRows {
			return board.Column{}, fmt.Errorf("column %d not found", id)
		}
		return board.Column{}, fmt.Errorf("read column: %w", err)
	}
	c.Phase = board.Phase(phase)
	return c, nil
}

func loadColumnByPhase(ctx context.Context, q dbtx, boardID int64, phase board.Phase) (board.Column, error) {
	row := q.QueryRowContext(ctx, `SELECT id, board_id, name, position, wip_limit, phase FROM columns
		WHERE board_id=? AND phase=?`, boardID, string(phase))
	var c board.Column
	var p string
	if err := row.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.WIPLimit, &p); err != nil {
		if err == sql.ErrNoRows {
			return board.Column{}, fmt.Errorf("board %d has no %s column", boardID, phase)
		}
		return board.Column{}, fmt.Errorf("read column: %w", err)
	}
	c.Phase = board.Phase(p)
	return c, nil
}

func loadBoard(ctx context.Context, q dbtx, id int64) (board.Board, error) {
	row := q.QueryRowContext(ctx, `SELECT id, name, ai_optimized, created_at FROM boards WHERE id=?`, id)
	var b board.Board
	if err := row.Scan(&b.ID, &b.Name, &b.AIOptimized, &b.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return board.Board{}, fmt.Errorf("board %d not found", id)
		}
		return board.Board{}, fmt.Errorf("read board: %w", err)
	}
	return b, nil
}

// Get fetches a task by identifier.
func (s *Service) Get(ctx context.Context, identifier string) (Task, error) {
	return taskByIdentifier(ctx, s.db, identifier)
}

// ColumnTasks lists a column's active tasks in position order.
func (s *Service) ColumnTasks(ctx context.Context, columnID int64) ([]Task, error) {
	return columnTasks(ctx, s.db, columnID)
}

// BoardTasks lists a board's active tasks grouped by column order.
func (s *Service) BoardTasks(ctx context.Context, boardID int64) ([]Task, error) {
	return queryTasks(ctx, s.db, `SELECT `+taskColumns+` FROM tasks
		WHERE board_id=? AND archived_at IS NULL
		ORDER BY (SELECT position FROM columns WHERE columns.id=tasks.column_id), position`, boardID)
}

// Dependents returns the active tasks listing the identifier as a dependency.
func (s *Service) Dependents(ctx context.Context, identifier string) ([]Task, error) {
	t, err := taskByIdentifier(ctx, s.db, identifier)
	if err != nil {
		return nil, err
	}
	return dependencyHolders(ctx, s.db, t.Identifier)
}

// History returns a task's append-only audit trail.
func (s *Service) History(ctx context.Context, identifier string) ([]HistoryEntry, error) {
	t, err := taskByIdentifier(ctx, s.db, identifier)
	if err != nil {
		return nil, err
	}
	return historyEntries(ctx, s.db, t.ID)
}

// CreateTaskParams describes a new task.
type CreateTaskParams struct {
	ColumnID             int64  `validate:"required"`
	Type                 Type   `validate:"required"`
	Title                string `validate:"required"`
	Description          string
	Priority             int
	ParentIdentifier     string
	Dependencies         []string
	RequiredCapabilities []string
	KeyFiles             []string
	NeedsReview          bool
}

// CreateTask appends a task to a column, minting its identifier and
// recording creation history. Chargeable tasks are WIP-checked against the
// column; goals are exempt.
func (s *Service) CreateTask(ctx context.Context, p CreateTaskParams) (Task, error) {
	if err := s.validate.Struct(p); err != nil {
		return Task{}, fmt.Errorf("invalid task: %w", err)
	}
	if !p.Type.Valid() {
		return Task{}, fmt.Errorf("unknown task type %q", p.Type)
	}
	var out Task
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		col, err := loadColumn(ctx, tx, p.ColumnID)
		if err != nil {
			return err
		}
		if err := checkAdmission(ctx, tx, col, p.Type); err != nil {
			return err
		}
		var parentID *int64
		if p.ParentIdentifier != "" {
			if p.Type == TypeGoal {
				return fmt.Errorf("a goal cannot have a parent")
			}
			parent, err := taskByIdentifier(ctx, tx, p.ParentIdentifier)
			if err != nil {
				return err
			}
			if parent.Type != TypeGoal {
				return fmt.Errorf("parent %s is not a goal", parent.Identifier)
			}
			parentID = &parent.ID
		}
		identifier, err := allocateIdentifier(ctx, tx, p.Type)
		if err != nil {
			return err
		}
		pos, err := appendIndex(ctx, tx, col.ID)
		if err != nil {
			return err
		}
		now := nowString()
		t := Task{
			Identifier:           identifier,
			Type:                 p.Type,
			BoardID:              col.BoardID,
			ColumnID:             col.ID,
			Position:             pos,
			ParentID:             parentID,
			Title:                p.Title,
			Description:          p.Description,
			Priority:             p.Priority,
			Status:               StatusOpen,
			Dependencies:         p.Dependencies,
			RequiredCapabilities: p.RequiredCapabilities,
			KeyFiles:             p.KeyFiles,
			NeedsReview:          p.NeedsReview,
			ReviewStatus:         ReviewPending,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := insertTask(ctx, tx, &t); err != nil {
			return err
		}
		if _, err := recomputeStatus(ctx, tx, &t); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, t.ID, "created", "", ""); err != nil {
			return err
		}
		ev.add(EventCreated, t)
		out = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

// ChildParams describes one child in a goal creation batch. Dependencies may
// reference sibling children by 0-based batch index before their identifiers
// exist.
type ChildParams struct {
	Type                 Type   `validate:"required"`
	Title                string `validate:"required"`
	Description          string
	Priority             int
	Dependencies         []string
	RequiredCapabilities []string
	KeyFiles             []string
	NeedsReview          bool
}

// CreateGoalParams describes a goal with optional children created in one
// request.
type CreateGoalParams struct {
	ColumnID    int64  `validate:"required"`
	Title       string `validate:"required"`
	Description string
	Children    []ChildParams `validate:"dive"`
}

// CreateGoal creates a goal and its children atomically. The whole batch of
// identifiers is pre-allocated so index placeholders can be substituted
// before any row is written; any child failure aborts the entire creation.
func (s *Service) CreateGoal(ctx context.Context, p CreateGoalParams) (Task, []Task, error) {
	if err := s.validate.Struct(p); err != nil {
		return Task{}, nil, fmt.Errorf("invalid goal: %w", err)
	}
	for _, child := range p.Children {
		if !child.Type.Chargeable() {
			return Task{}, nil, fmt.Errorf("goal children must be work or defect tasks")
		}
	}
	var goal Task
	var children []Task
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		col, err := loadColumn(ctx, tx, p.ColumnID)
		if err != nil {
			return err
		}
		if col.WIPLimit > 0 && len(p.Children) > 0 {
			n, err := chargeableCount(ctx, tx, col.ID)
			if err != nil {
				return err
			}
			if n+len(p.Children) > col.WIPLimit {
				return ErrWIPLimitReached
			}
		}

		// Pre-allocate every identifier in the batch, in child order, before
		// writing rows: work and defect counters advance independently.
		goalIdentifier, err := allocateIdentifier(ctx, tx, TypeGoal)
		if err != nil {
			return err
		}
		counts := map[Type]int{}
		for _, child := range p.Children {
			counts[child.Type]++
		}
		pools := map[Type][]string{}
		for typ, n := range counts {
			ids, err := allocateIdentifiers(ctx, tx, typ, n)
			if err != nil {
				return err
			}
			pools[typ] = ids
		}
		batch := make([]string, len(p.Children))
		for i, child := range p.Children {
			batch[i] = pools[child.Type][0]
			pools[child.Type] = pools[child.Type][1:]
		}

		now := nowString()
		pos, err := appendIndex(ctx, tx, col.ID)
		if err != nil {
			return err
		}
		goal = Task{
			Identifier:   goalIdentifier,
			Type:         TypeGoal,
			BoardID:      col.BoardID,
			ColumnID:     col.ID,
			Position:     pos,
			Title:        p.Title,
			Description:  p.Description,
			Status:       StatusOpen,
			ReviewStatus: ReviewPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := insertTask(ctx, tx, &goal); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, goal.ID, "created", "", ""); err != nil {
			return err
		}
		ev.add(EventCreated, goal)

		children = children[:0]
		for i, childParams := range p.Children {
			deps, err := resolvePlaceholders(childParams.Dependencies, batch)
			if err != nil {
				return err
			}
			childPos, err := appendIndex(ctx, tx, col.ID)
			if err != nil {
				return err
			}
			child := Task{
				Identifier:           batch[i],
				Type:                 childParams.Type,
				BoardID:              col.BoardID,
				ColumnID:             col.ID,
				Position:             childPos,
				ParentID:             &goal.ID,
				Title:                childParams.Title,
				Description:          childParams.Description,
				Priority:             childParams.Priority,
				Status:               StatusOpen,
				Dependencies:         deps,
				RequiredCapabilities: childParams.RequiredCapabilities,
				KeyFiles:             childParams.KeyFiles,
				NeedsReview:          childParams.NeedsReview,
				ReviewStatus:         ReviewPending,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			if err := insertTask(ctx, tx, &child); err != nil {
				return err
			}
			if _, err := recomputeStatus(ctx, tx, &child); err != nil {
				return err
			}
			if err := insertHistory(ctx, tx, child.ID, "created", "", ""); err != nil {
				return err
			}
			ev.add(EventCreated, child)
			children = append(children, child)
		}
		return nil
	})
	if err != nil {
		return Task{}, nil, err
	}
	return goal, children, nil
}

// Move relocates a task to a column and index. Same-column moves reposition
// in place; cross-column moves of chargeable tasks are WIP-checked against
// the destination. A child changing columns re-anchors its goal.
func (s *Service) Move(ctx context.Context, identifier string, targetColumnID int64, targetIndex int) (Task, error) {
	var out Task
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		t, err := taskByIdentifier(ctx, tx, identifier)
		if err != nil {
			return err
		}
		if t.Archived() {
			return fmt.Errorf("task %s is archived", identifier)
		}
		if targetColumnID == t.ColumnID {
			newIdx, err := moveWithinColumn(ctx, tx, t, targetIndex)
			if err != nil {
				return err
			}
			if newIdx != t.Position {
				t.Position = newIdx
				if err := insertHistory(ctx, tx, t.ID, "moved", "", moveDetail(t.ColumnID, newIdx)); err != nil {
					return err
				}
				ev.add(EventMoved, t)
			}
			out = t
			return nil
		}

		target, err := loadColumn(ctx, tx, targetColumnID)
		if err != nil {
			return err
		}
		if target.BoardID != t.BoardID {
			return fmt.Errorf("column %d belongs to another board", targetColumnID)
		}
		if err := checkAdmission(ctx, tx, target, t.Type); err != nil {
			return err
		}
		n, err := activeCount(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		idx := clampInsertIndex(targetIndex, n)
		if err := moveAcrossColumns(ctx, tx, &t, target.ID, idx); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, t.ID, "moved", "", moveDetail(target.ID, idx)); err != nil {
			return err
		}
		ev.add(EventMoved, t)
		if goal, err := repositionParentGoal(ctx, tx, t); err != nil {
			return err
		} else if goal != nil {
			ev.add(EventMoved, *goal)
		}
		out = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

// moveAcrossColumns executes the ledger sequence for a cross-column move:
// park the task, close the source gap, open the destination gap, place.
func moveAcrossColumns(ctx context.Context, tx dbtx, t *Task, targetColumnID int64, idx int) error {
	if err := parkPosition(ctx, tx, t.ID); err != nil {
		return err
	}
	if err := closeGap(ctx, tx, t.ColumnID, t.Position); err != nil {
		return err
	}
	if err := openGap(ctx, tx, targetColumnID, idx); err != nil {
		return err
	}
	if err := placeTask(ctx, tx, t.ID, targetColumnID, idx); err != nil {
		return err
	}
	t.ColumnID = targetColumnID
	t.Position = idx
	return nil
}

func moveDetail(columnID int64, index int) string {
	detail, _ := json.Marshal(map[string]any{"column_id": columnID, "index": index})
	return string(detail)
}

// Reorder rewrites a column's ordering to the given task ids. The list must
// cover exactly the column's active tasks.
func (s *Service) Reorder(ctx context.Context, columnID int64, orderedIDs []int64) error {
	return s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		changed, err := renumberToOrder(ctx, tx, columnID, orderedIDs)
		if err != nil {
			return err
		}
		for _, id := range changed {
			t, err := taskByID(ctx, tx, id)
			if err != nil {
				return err
			}
			ev.add(EventMoved, t)
		}
		return nil
	})
}

// Archive soft-deletes a task: it leaves active listings and WIP counts, its
// siblings are renumbered, and its position is parked until unarchival.
func (s *Service) Archive(ctx context.Context, identifier string) (Task, error) {
	var out Task
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		t, err := taskByIdentifier(ctx, tx, identifier)
		if err != nil {
			return err
		}
		if t.Archived() {
			out = t
			return nil
		}
		now := nowString()
		if err := parkPosition(ctx, tx, t.ID); err != nil {
			return err
		}
		if err := closeGap(ctx, tx, t.ColumnID, t.Position); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET archived_at=?, updated_at=? WHERE id=?`,
			now, now, t.ID); err != nil {
			return fmt.Errorf("archive task: %w", err)
		}
		if err := insertHistory(ctx, tx, t.ID, "archived", "", ""); err != nil {
			return err
		}
		t.ArchivedAt = now
		t.Position = int(-t.ID)
		ev.add(EventArchived, t)
		out = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

// Unarchive restores a task at the end of its column.
func (s *Service) Unarchive(ctx context.Context, identifier string) (Task, error) {
	var out Task
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		t, err := taskByIdentifier(ctx, tx, identifier)
		if err != nil {
			return err
		}
		if !t.Archived() {
			out = t
			return nil
		}
		pos, err := appendIndex(ctx, tx, t.ColumnID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET archived_at=NULL, position=?, updated_at=? WHERE id=?`,
			pos, nowString(), t.ID); err != nil {
			return fmt.Errorf("unarchive task: %w", err)
		}
		if err := insertHistory(ctx, tx, t.ID, "unarchived", "", ""); err != nil {
			return err
		}
		t.ArchivedAt = ""
		t.Position = pos
		ev.add(EventUnarchived, t)
		out = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

// dependencyHolders returns non-archived tasks listing the identifier as a
// dependency.
func dependencyHolders(ctx context.Context, q dbtx, identifier string) ([]Task, error) {
	pattern := `%"` + identifier + `"%`
	candidates, err := queryTasks(ctx, q, `SELECT `+taskColumns+` FROM tasks
		WHERE archived_at IS NULL AND dependencies_json LIKE ? ORDER BY id`, pattern)
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, t := range candidates {
		for _, dep := range t.Dependencies {
			if dep == identifier {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

// Delete removes a task permanently. Deletion is blocked while other active
// tasks depend on it; deleting a goal's last remaining child cascades to the
// goal. Archived children count as remaining, so a goal outlives them.
func (s *Service) Delete(ctx context.Context, identifier string) (Task, error) {
	var out Task
	err := s.inTx(ctx, func(tx *sql.Tx, ev *eventBuffer) error {
		t, err := taskByIdentifier(ctx, tx, identifier)
		if err != nil {
			return err
		}
		holders, err := dependencyHolders(ctx, tx, t.Identifier)
		if err != nil {
			return err
		}
		if len(holders) > 0 {
			return ErrHasDependents
		}
		if t.Type == TypeGoal {
			n, err := childCount(ctx, tx, t.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("goal %s still has children", t.Identifier)
			}
		}
		if err := deleteRow(ctx, tx, t); err != nil {
			return err
		}
		ev.add(EventDeleted, t)

		if t.ParentID != nil {
			remaining, err := childCount(ctx, tx, *t.ParentID)
			if err != nil {
				return err
			}
			if remaining == 0 {
				goal, err := taskByID(ctx, tx, *t.ParentID)
				if err != nil {
					return err
				}
				if err := deleteRow(ctx, tx, goal); err != nil {
					return err
				}
				ev.add(EventDeleted, goal)
			}
		}
		out = t
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return out, nil
}

func deleteRow(ctx context.Context, tx dbtx, t Task) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, t.ID); err != nil {
		return fmt.Errorf("delete task %s: %w", t.Identifier, err)
	}
	if t.Archived() {
		return nil
	}
	return closeGap(ctx, tx, t.ColumnID, t.Position)
}
