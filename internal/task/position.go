package task

import (
	"context"
	"fmt"
)

// The position ledger keeps every column's non-archived tasks at dense
// positions 0..n-1 under a UNIQUE(column_id, position) constraint. Rows are
// never shifted in place: affected rows are first parked at -id (disjoint and
// unique by construction), then final positions are written in a second pass,
// so no intermediate state can collide.

type positioned struct {
	id       int64
	position int
}

func activePositions(ctx context.Context, q dbtx, columnID int64) ([]positioned, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, position FROM tasks
		WHERE column_id=? AND archived_at IS NULL ORDER BY position`, columnID)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()
	var out []positioned
	for rows.Next() {
		var p positioned
		if err := rows.Scan(&p.id, &p.position); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return out, nil
}

func activeCount(ctx context.Context, q dbtx, columnID int64) (int, error) {
	var n int
	row := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE column_id=? AND archived_at IS NULL`, columnID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count column tasks: %w", err)
	}
	return n, nil
}

// parkPosition stages one task at its temporary slot.
func parkPosition(ctx context.Context, tx dbtx, taskID int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET position=-id WHERE id=?`, taskID); err != nil {
		return fmt.Errorf("park task %d: %w", taskID, err)
	}
	return nil
}

func setPosition(ctx context.Context, tx dbtx, taskID int64, position int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET position=? WHERE id=?`, position, taskID); err != nil {
		return fmt.Errorf("set position of task %d: %w", taskID, err)
	}
	return nil
}

// placeTask writes a task's final column and position.
func placeTask(ctx context.Context, tx dbtx, taskID, columnID int64, position int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET column_id=?, position=?, updated_at=? WHERE id=?`,
		columnID, position, nowString(), taskID); err != nil {
		return fmt.Errorf("place task %d: %w", taskID, err)
	}
	return nil
}

// openGap shifts every active position >= from up by one.
func openGap(ctx context.Context, tx dbtx, columnID int64, from int) error {
	return shiftRange(ctx, tx, columnID, from, +1)
}

// closeGap shifts every active position > removed down by one.
func closeGap(ctx context.Context, tx dbtx, columnID int64, removed int) error {
	return shiftRange(ctx, tx, columnID, removed+1, -1)
}

func shiftRange(ctx context.Context, tx dbtx, columnID int64, from, delta int) error {
	items, err := activePositions(ctx, tx, columnID)
	if err != nil {
		return err
	}
	var affected []positioned
	for _, p := range items {
		if p.position >= from {
			affected = append(affected, p)
		}
	}
	for _, p := range affected {
		if err := parkPosition(ctx, tx, p.id); err != nil {
			return err
		}
	}
	for _, p := range affected {
		if err := setPosition(ctx, tx, p.id, p.position+delta); err != nil {
			return err
		}
	}
	return nil
}

// renumberToOrder rewrites a column so its active tasks hold positions
// matching the given id order. Only rows whose position changes are touched;
// their ids are returned.
func renumberToOrder(ctx context.Context, tx dbtx, columnID int64, orderedIDs []int64) ([]int64, error) {
	current, err := activePositions(ctx, tx, columnID)
	if err != nil {
		return nil, err
	}
	if len(current) != len(orderedIDs) {
		return nil, fmt.Errorf("reorder lists %d tasks, column has %d", len(orderedIDs), len(current))
	}
	byID := make(map[int64]int, len(current))
	for _, p := range current {
		byID[p.id] = p.position
	}
	var changed []positioned
	for idx, id := range orderedIDs {
		old, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("task %d is not an active task of column %d", id, columnID)
		}
		delete(byID, id)
		if old != idx {
			changed = append(changed, positioned{id: id, position: idx})
		}
	}
	for _, p := range changed {
		if err := parkPosition(ctx, tx, p.id); err != nil {
			return nil, err
		}
	}
	ids := make([]int64, 0, len(changed))
	for _, p := range changed {
		if err := setPosition(ctx, tx, p.id, p.position); err != nil {
			return nil, err
		}
		ids = append(ids, p.id)
	}
	return ids, nil
}

// moveWithinColumn repositions a task inside its own column. The index clamps
// to the end; moving to the current position is a no-op.
func moveWithinColumn(ctx context.Context, tx dbtx, t Task, newIndex int) (int, error) {
	items, err := activePositions(ctx, tx, t.ColumnID)
	if err != nil {
		return 0, err
	}
	n := len(items)
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > n-1 {
		newIndex = n - 1
	}
	if newIndex == t.Position {
		return newIndex, nil
	}
	order := make([]int64, 0, n)
	for _, p := range items {
		if p.id != t.ID {
			order = append(order, p.id)
		}
	}
	order = append(order[:newIndex], append([]int64{t.ID}, order[newIndex:]...)...)
	if _, err := renumberToOrder(ctx, tx, t.ColumnID, order); err != nil {
		return 0, err
	}
	return newIndex, nil
}

// appendIndex returns the next free index at the end of a column.
func appendIndex(ctx context.Context, q dbtx, columnID int64) (int, error) {
	return activeCount(ctx, q, columnID)
}

// clampInsertIndex clamps a desired insert index for a column of n tasks.
func clampInsertIndex(idx, n int) int {
	if idx < 0 {
		return 0
	}
	if idx > n {
		return n
	}
	return idx
}
