package task

import (
	"context"
	"fmt"
)

// Claim eligibility and the conditional claim write. The claim transition is
// the only concurrency-critical path: it is a single-row UPDATE guarded by
// the task's current status and lease, never a read-then-write.

// capabilitiesCover reports whether the agent's capabilities are a superset
// of the task's requirements. An empty requirement matches any agent.
func capabilitiesCover(have, need []string) bool {
	if len(need) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, c := range need {
		if !set[c] {
			return false
		}
	}
	return true
}

// leaseExpired reports whether a claim lease has lapsed at the given instant.
// Expiry is evaluated lazily; there is no background reaper.
func leaseExpired(t Task, now string) bool {
	return t.ClaimExpiresAt != "" && t.ClaimExpiresAt <= now
}

// claimable reports whether a task can be claimed right now: open, or
// in-progress with an expired lease (reclaimable).
func claimable(t Task, now string) bool {
	if t.Archived() {
		return false
	}
	switch t.Status {
	case StatusOpen:
		return true
	case StatusInProgress:
		return leaseExpired(t, now)
	}
	return false
}

// inProgressKeyFiles collects the key files of in-progress tasks in the given
// columns. Two agents must never work files shared with an active claim.
func inProgressKeyFiles(ctx context.Context, q dbtx, columnIDs ...int64) (map[string]bool, error) {
	out := map[string]bool{}
	for _, columnID := range columnIDs {
		tasks, err := queryTasks(ctx, q, `SELECT `+taskColumns+` FROM tasks
			WHERE column_id=? AND archived_at IS NULL AND status=?`, columnID, string(StatusInProgress))
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			for _, f := range t.KeyFiles {
				out[f] = true
			}
		}
	}
	return out, nil
}

func keyFileConflict(t Task, busy map[string]bool) bool {
	for _, f := range t.KeyFiles {
		if busy[f] {
			return true
		}
	}
	return false
}

// nextEligibleTask scans the ready column by priority descending then
// position ascending and returns the first task the agent may claim.
func nextEligibleTask(ctx context.Context, q dbtx, readyID, doingID, reviewID int64, capabilities []string, now string) (Task, bool, error) {
	candidates, err := queryTasks(ctx, q, `SELECT `+taskColumns+` FROM tasks
		WHERE column_id=? AND archived_at IS NULL AND task_type != ?
		ORDER BY priority DESC, position ASC`, readyID, string(TypeGoal))
	if err != nil {
		return Task{}, false, err
	}
	busy, err := inProgressKeyFiles(ctx, q, doingID, reviewID)
	if err != nil {
		return Task{}, false, err
	}
	for _, t := range candidates {
		if !claimable(t, now) {
			continue
		}
		if !capabilitiesCover(capabilities, t.RequiredCapabilities) {
			continue
		}
		if keyFileConflict(t, busy) {
			continue
		}
		satisfied, err := depsSatisfied(ctx, q, t.Dependencies)
		if err != nil {
			return Task{}, false, err
		}
		if !satisfied {
			continue
		}
		return t, true, nil
	}
	return Task{}, false, nil
}

// casClaim is the atomic claim write. It succeeds only if the row still
// satisfies "open, or in-progress with an expired lease" at write time;
// zero rows affected means another agent won the race.
func casClaim(ctx context.Context, tx dbtx, taskID int64, agent, now, expires string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE tasks
		SET status=?, assigned_to_id=?, claimed_at=?, claim_expires_at=?, updated_at=?
		WHERE id=? AND archived_at IS NULL
		AND (status=? OR (status=? AND claim_expires_at IS NOT NULL AND claim_expires_at<=?))`,
		string(StatusInProgress), agent, now, expires, now,
		taskID, string(StatusOpen), string(StatusInProgress), now)
	if err != nil {
		return false, fmt.Errorf("claim task %d: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
