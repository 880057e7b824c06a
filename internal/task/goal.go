package task

import (
	"context"
	"fmt"

	"github.com/agentboard/agentboard/internal/board"
)

type columnInfo struct {
	id    int64
	order int
	phase board.Phase
}

func boardColumnInfo(ctx context.Context, q dbtx, boardID int64) ([]columnInfo, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, position, phase FROM columns WHERE board_id=? ORDER BY position`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query board columns: %w", err)
	}
	defer rows.Close()
	var out []columnInfo
	for rows.Next() {
		var c columnInfo
		var phase string
		if err := rows.Scan(&c.id, &c.order, &phase); err != nil {
			return nil, fmt.Errorf("scan board column: %w", err)
		}
		c.phase = board.Phase(phase)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board columns: %w", err)
	}
	return out, nil
}

// repositionGoal re-anchors a goal after one of its children changed columns.
// The goal follows its least-advanced child (earliest column in board order;
// when every child is done that is the done column) and lands immediately
// before the least-positioned co-located child, after any goals already at
// the top of that column. Position-only child reordering never moves a goal,
// so callers invoke this only on column changes.
func repositionGoal(ctx context.Context, tx dbtx, goal Task) (Task, bool, error) {
	if goal.Type != TypeGoal {
		return goal, false, fmt.Errorf("task %s is not a goal", goal.Identifier)
	}
	children, err := childTasks(ctx, tx, goal.ID)
	if err != nil {
		return goal, false, err
	}
	if len(children) == 0 {
		return goal, false, nil
	}
	columns, err := boardColumnInfo(ctx, tx, goal.BoardID)
	if err != nil {
		return goal, false, err
	}
	order := make(map[int64]int, len(columns))
	for _, c := range columns {
		order[c.id] = c.order
	}

	// Least-advanced child picks the required column; ties collapse to the
	// same column so board order breaks them for free.
	requiredID := children[0].ColumnID
	for _, child := range children[1:] {
		if order[child.ColumnID] < order[requiredID] {
			requiredID = child.ColumnID
		}
	}
	if requiredID == goal.ColumnID {
		return goal, false, nil
	}

	siblings, err := columnTasks(ctx, tx, requiredID)
	if err != nil {
		return goal, false, err
	}
	minChildPos := -1
	for _, s := range siblings {
		if s.ParentID != nil && *s.ParentID == goal.ID {
			minChildPos = s.Position
			break
		}
	}
	if minChildPos < 0 {
		return goal, false, fmt.Errorf("goal %s has no child in its required column", goal.Identifier)
	}
	leadingGoals := 0
	for _, s := range siblings {
		if s.Type != TypeGoal {
			break
		}
		leadingGoals++
	}
	target := leadingGoals
	if target > minChildPos {
		target = minChildPos
	}

	if err := parkPosition(ctx, tx, goal.ID); err != nil {
		return goal, false, err
	}
	if err := closeGap(ctx, tx, goal.ColumnID, goal.Position); err != nil {
		return goal, false, err
	}
	if err := openGap(ctx, tx, requiredID, target); err != nil {
		return goal, false, err
	}
	if err := placeTask(ctx, tx, goal.ID, requiredID, target); err != nil {
		return goal, false, err
	}
	goal.ColumnID = requiredID
	goal.Position = target
	return goal, true, nil
}

// repositionParentGoal runs the goal positioner for a moved child, if any.
func repositionParentGoal(ctx context.Context, tx dbtx, child Task) (*Task, error) {
	if child.ParentID == nil {
		return nil, nil
	}
	goal, err := taskByID(ctx, tx, *child.ParentID)
	if err != nil {
		return nil, err
	}
	moved := false
	goal, moved, err = repositionGoal(ctx, tx, goal)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, nil
	}
	return &goal, nil
}
