package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const taskColumns = `id, identifier, task_type, board_id, column_id, position, parent_id,
	title, description, priority, status, dependencies_json, capabilities_json, key_files_json,
	needs_review, review_status, assigned_to_id, claimed_at, claim_expires_at,
	completed_at, completed_by_id, reviewed_at, archived_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var typ, status, review string
	var parentID sql.NullInt64
	var depsJSON, capsJSON, filesJSON string
	var assignedTo, claimedAt, claimExpiresAt, completedAt, completedBy, reviewedAt, archivedAt sql.NullString
	err := row.Scan(&t.ID, &t.Identifier, &typ, &t.BoardID, &t.ColumnID, &t.Position, &parentID,
		&t.Title, &t.Description, &t.Priority, &status, &depsJSON, &capsJSON, &filesJSON,
		&t.NeedsReview, &review, &assignedTo, &claimedAt, &claimExpiresAt,
		&completedAt, &completedBy, &reviewedAt, &archivedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	t.Type = Type(typ)
	t.Status = Status(status)
	t.ReviewStatus = ReviewStatus(review)
	if parentID.Valid {
		t.ParentID = &parentID.Int64
	}
	if err := json.Unmarshal([]byte(depsJSON), &t.Dependencies); err != nil {
		return Task{}, fmt.Errorf("parse dependencies: %w", err)
	}
	if err := json.Unmarshal([]byte(capsJSON), &t.RequiredCapabilities); err != nil {
		return Task{}, fmt.Errorf("parse capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(filesJSON), &t.KeyFiles); err != nil {
		return Task{}, fmt.Errorf("parse key files: %w", err)
	}
	t.AssignedToID = assignedTo.String
	t.ClaimedAt = claimedAt.String
	t.ClaimExpiresAt = claimExpiresAt.String
	t.CompletedAt = completedAt.String
	t.CompletedByID = completedBy.String
	t.ReviewedAt = reviewedAt.String
	t.ArchivedAt = archivedAt.String
	return t, nil
}

func taskByID(ctx context.Context, q dbtx, id int64) (Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("read task %d: %w", id, err)
	}
	return t, nil
}

func taskByIdentifier(ctx context.Context, q dbtx, identifier string) (Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE identifier=?`, identifier)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Task{}, ErrNotFound
		}
		return Task{}, fmt.Errorf("read task %s: %w", identifier, err)
	}
	return t, nil
}

func queryTasks(ctx context.Context, q dbtx, query string, args ...any) ([]Task, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// columnTasks returns a column's non-archived tasks in position order.
func columnTasks(ctx context.Context, q dbtx, columnID int64) ([]Task, error) {
	return queryTasks(ctx, q, `SELECT `+taskColumns+` FROM tasks
		WHERE column_id=? AND archived_at IS NULL ORDER BY position`, columnID)
}

// childTasks returns a goal's non-archived children.
func childTasks(ctx context.Context, q dbtx, parentID int64) ([]Task, error) {
	return queryTasks(ctx, q, `SELECT `+taskColumns+` FROM tasks
		WHERE parent_id=? AND archived_at IS NULL ORDER BY id`, parentID)
}

// childCount counts a goal's children, archived ones included. Rows still
// referencing the goal keep it alive regardless of archival.
func childCount(ctx context.Context, q dbtx, parentID int64) (int, error) {
	var n int
	row := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE parent_id=?`, parentID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count children: %w", err)
	}
	return n, nil
}

func insertTask(ctx context.Context, tx dbtx, t *Task) error {
	depsJSON, capsJSON, filesJSON, err := marshalLists(t)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(identifier, task_type, board_id, column_id, position, parent_id,
		title, description, priority, status, dependencies_json, capabilities_json, key_files_json,
		needs_review, review_status, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Identifier, string(t.Type), t.BoardID, t.ColumnID, t.Position, nullableInt64Ptr(t.ParentID),
		t.Title, t.Description, t.Priority, string(t.Status), depsJSON, capsJSON, filesJSON,
		t.NeedsReview, string(t.ReviewStatus), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.Identifier, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read task id: %w", err)
	}
	t.ID = id
	return nil
}

func marshalLists(t *Task) (deps, caps, files string, err error) {
	deps, err = marshalStringList(t.Dependencies)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal dependencies: %w", err)
	}
	caps, err = marshalStringList(t.RequiredCapabilities)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal capabilities: %w", err)
	}
	files, err = marshalStringList(t.KeyFiles)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal key files: %w", err)
	}
	return deps, caps, files, nil
}

func marshalStringList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func setStatus(ctx context.Context, tx dbtx, id int64, status Status) error {
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`,
		string(status), nowString(), id); err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx dbtx, taskID int64, event, actor, detail string) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO task_history(task_id, event, actor, detail_json, created_at)
		VALUES(?, ?, ?, ?, ?)`, taskID, event, actor, nullableString(detail), nowString()); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func historyEntries(ctx context.Context, q dbtx, taskID int64) ([]HistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, task_id, event, actor, detail_json, created_at
		FROM task_history WHERE task_id=? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var detail sql.NullString
		if err := rows.Scan(&h.ID, &h.TaskID, &h.Event, &h.Actor, &detail, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Detail = detail.String
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64Ptr(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}
