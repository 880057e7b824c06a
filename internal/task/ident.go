package task

import (
	"context"
	"fmt"
)

// allocateIdentifiers reserves n consecutive identifiers of the given type
// from the per-type counter, inside the caller's transaction. Batch callers
// (goal plus children) reserve everything up front so index placeholders can
// be substituted before any task row is written.
func allocateIdentifiers(ctx context.Context, tx dbtx, typ Type, n int) ([]string, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown task type %q", typ)
	}
	if n <= 0 {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO identifier_counters(task_type, next_value) VALUES(?, 1)
		ON CONFLICT(task_type) DO NOTHING`, string(typ)); err != nil {
		return nil, fmt.Errorf("seed identifier counter: %w", err)
	}
	var next int64
	row := tx.QueryRowContext(ctx, `SELECT next_value FROM identifier_counters WHERE task_type=?`, string(typ))
	if err := row.Scan(&next); err != nil {
		return nil, fmt.Errorf("read identifier counter: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE identifier_counters SET next_value=? WHERE task_type=?`,
		next+int64(n), string(typ)); err != nil {
		return nil, fmt.Errorf("advance identifier counter: %w", err)
	}
	out := make([]string, 0, n)
	for i := range n {
		out = append(out, fmt.Sprintf("%s%d", typ.Prefix(), next+int64(i)))
	}
	return out, nil
}

// allocateIdentifier reserves a single identifier.
func allocateIdentifier(ctx context.Context, tx dbtx, typ Type) (string, error) {
	ids, err := allocateIdentifiers(ctx, tx, typ, 1)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}
