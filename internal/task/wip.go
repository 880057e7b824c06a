package task

import (
	"context"
	"fmt"

	"github.com/agentboard/agentboard/internal/board"
)

// chargeableCount counts a column's non-archived work and defect tasks.
// Goals never count toward WIP.
func chargeableCount(ctx context.Context, q dbtx, columnID int64) (int, error) {
	var n int
	row := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks
		WHERE column_id=? AND archived_at IS NULL AND task_type IN (?, ?)`,
		columnID, string(TypeWork), string(TypeDefect))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count chargeable tasks: %w", err)
	}
	return n, nil
}

// admits reports whether the column accepts one more chargeable task.
// A zero WIP limit means unlimited.
func admits(ctx context.Context, q dbtx, col board.Column) (bool, error) {
	if col.WIPLimit <= 0 {
		return true, nil
	}
	n, err := chargeableCount(ctx, q, col.ID)
	if err != nil {
		return false, err
	}
	return n < col.WIPLimit, nil
}

// checkAdmission returns ErrWIPLimitReached when a chargeable task of the
// given type may not enter the column.
func checkAdmission(ctx context.Context, q dbtx, col board.Column, typ Type) error {
	if !typ.Chargeable() {
		return nil
	}
	ok, err := admits(ctx, q, col)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWIPLimitReached
	}
	return nil
}
