package task

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Dependencies reference tasks by human identifier, not row id, so they
// survive display renumbering. Resolution happens on every read; the mapping
// is never cached.

// dependencyStatus looks up the status of a dependency identifier. A missing
// identifier counts as incomplete.
func dependencyStatus(ctx context.Context, q dbtx, identifier string) (Status, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT status FROM tasks WHERE identifier=? AND archived_at IS NULL`, identifier)
	var status string
	if err := row.Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read dependency %s: %w", identifier, err)
	}
	return Status(status), true, nil
}

// depsSatisfied reports whether every dependency resolves to a completed task.
func depsSatisfied(ctx context.Context, q dbtx, deps []string) (bool, error) {
	for _, dep := range deps {
		status, found, err := dependencyStatus(ctx, q, dep)
		if err != nil {
			return false, err
		}
		if !found || status != StatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// recomputeStatus applies the dependency rule to t and persists any change.
// Completed tasks are never demoted; only blocked tasks are promoted to open.
func recomputeStatus(ctx context.Context, tx dbtx, t *Task) (bool, error) {
	if t.Status == StatusCompleted {
		return false, nil
	}
	satisfied, err := depsSatisfied(ctx, tx, t.Dependencies)
	if err != nil {
		return false, err
	}
	var next Status
	switch {
	case !satisfied:
		next = StatusBlocked
	case t.Status == StatusBlocked:
		next = StatusOpen
	default:
		return false, nil
	}
	if next == t.Status {
		return false, nil
	}
	if err := setStatus(ctx, tx, t.ID, next); err != nil {
		return false, err
	}
	t.Status = next
	return true, nil
}

// blockedDependents returns blocked tasks whose dependency set contains the
// identifier. The LIKE prefilter is confirmed against the parsed list.
func blockedDependents(ctx context.Context, q dbtx, identifier string) ([]Task, error) {
	pattern := `%"` + identifier + `"%`
	candidates, err := queryTasks(ctx, q, `SELECT `+taskColumns+` FROM tasks
		WHERE status=? AND archived_at IS NULL AND dependencies_json LIKE ? ORDER BY id`,
		string(StatusBlocked), pattern)
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

// unblockDependents re-evaluates the direct dependents of a completed task
// and returns those that became open. Re-evaluation is one hop: transitive
// dependents are only re-checked when their own dependencies complete.
func unblockDependents(ctx context.Context, tx dbtx, identifier string) ([]Task, error) {
	dependents, err := blockedDependents(ctx, tx, identifier)
	if err != nil {
		return nil, err
	}
	var opened []Task
	for i := range dependents {
		changed, err := recomputeStatus(ctx, tx, &dependents[i])
		if err != nil {
			return nil, err
		}
		if changed && dependents[i].Status == StatusOpen {
			opened = append(opened, dependents[i])
		}
	}
	return opened, nil
}

// resolvePlaceholders substitutes index placeholders in a dependency list
// with pre-allocated batch identifiers. A bare decimal entry refers to the
// i-th child of the same creation batch.
func resolvePlaceholders(deps []string, batch []string) ([]string, error) {
	if len(deps) == 0 {
		return deps, nil
	}
	out := make([]string, len(deps))
	for i, dep := range deps {
		idx, err := strconv.Atoi(dep)
		if err != nil {
			out[i] = dep
			continue
		}
		if idx < 0 || idx >= len(batch) {
			return nil, fmt.Errorf("dependency index %d out of range for batch of %d", idx, len(batch))
		}
		out[i] = batch[idx]
	}
	return out, nil
}
