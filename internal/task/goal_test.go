package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGoalWithChildren(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	goal, children, err := e.svc.CreateGoal(ctx, CreateGoalParams{
		ColumnID: e.ready.ID,
		Title:    "release",
		Children: []ChildParams{
			{Type: TypeWork, Title: "build"},
			{Type: TypeDefect, Title: "fix"},
			{Type: TypeWork, Title: "ship", Dependencies: []string{"0", "1"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "G1", goal.Identifier)
	require.Len(t, children, 3)
	assert.Equal(t, "W1", children[0].Identifier)
	assert.Equal(t, "D1", children[1].Identifier)
	assert.Equal(t, "W2", children[2].Identifier)

	// Index placeholders resolved to sibling identifiers.
	assert.Equal(t, []string{"W1", "D1"}, children[2].Dependencies)
	assert.Equal(t, StatusBlocked, children[2].Status)
	for _, child := range children {
		require.NotNil(t, child.ParentID)
		assert.Equal(t, goal.ID, *child.ParentID)
	}
	assert.Equal(t, []string{"G1", "W1", "D1", "W2"}, e.identifiers(t, e.ready.ID))
}

func TestCreateGoalRejectsGoalChildren(t *testing.T) {
	e := newEngine(t)
	_, _, err := e.svc.CreateGoal(context.Background(), CreateGoalParams{
		ColumnID: e.ready.ID,
		Title:    "nested",
		Children: []ChildParams{{Type: TypeGoal, Title: "inner"}},
	})
	assert.ErrorContains(t, err, "work or defect")
}

func TestGoalFollowsClaimedChild(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	goal, _, err := e.svc.CreateGoal(ctx, CreateGoalParams{
		ColumnID: e.ready.ID,
		Title:    "release",
		Children: []ChildParams{{Type: TypeWork, Title: "only"}},
	})
	require.NoError(t, err)

	_, err = e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1"})
	require.NoError(t, err)

	// The lone child moved to doing, so the goal re-anchors there ahead of it.
	got, err := e.svc.Get(ctx, goal.Identifier)
	require.NoError(t, err)
	assert.Equal(t, e.doing.ID, got.ColumnID)
	assert.Equal(t, []string{"G1", "W1"}, e.identifiers(t, e.doing.ID))
	assert.Empty(t, e.tasks(t, e.ready.ID))
}

func TestGoalStaysWithLeastAdvancedChild(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	goal, _, err := e.svc.CreateGoal(ctx, CreateGoalParams{
		ColumnID: e.ready.ID,
		Title:    "release",
		Children: []ChildParams{
			{Type: TypeWork, Title: "one"},
			{Type: TypeWork, Title: "two"},
		},
	})
	require.NoError(t, err)

	_, err = e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1", Identifier: "W1"})
	require.NoError(t, err)

	// One child is still in ready; the goal does not advance.
	got, err := e.svc.Get(ctx, goal.Identifier)
	require.NoError(t, err)
	assert.Equal(t, e.ready.ID, got.ColumnID)
}

func TestPositionOnlyReorderKeepsGoal(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	goal, _, err := e.svc.CreateGoal(ctx, CreateGoalParams{
		ColumnID: e.ready.ID,
		Title:    "release",
		Children: []ChildParams{
			{Type: TypeWork, Title: "one"},
			{Type: TypeWork, Title: "two"},
		},
	})
	require.NoError(t, err)

	_, err = e.svc.Move(ctx, "W2", e.ready.ID, 1)
	require.NoError(t, err)

	got, err := e.svc.Get(ctx, goal.Identifier)
	require.NoError(t, err)
	assert.Equal(t, e.ready.ID, got.ColumnID)
	assert.Equal(t, 0, got.Position)
}

func TestDeleteGoalWithChildrenFails(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	goal, _, err := e.svc.CreateGoal(ctx, CreateGoalParams{
		ColumnID: e.ready.ID,
		Title:    "release",
		Children: []ChildParams{{Type: TypeWork, Title: "one"}},
	})
	require.NoError(t, err)

	_, err = e.svc.Delete(ctx, goal.Identifier)
	assert.ErrorContains(t, err, "still has children")
}

func TestDeleteLastChildCascadesToGoal(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	goal, children, err := e.svc.CreateGoal(ctx, CreateGoalParams{
		ColumnID: e.ready.ID,
		Title:    "release",
		Children: []ChildParams{
			{Type: TypeWork, Title: "one"},
			{Type: TypeWork, Title: "two"},
		},
	})
	require.NoError(t, err)

	_, err = e.svc.Delete(ctx, children[0].Identifier)
	require.NoError(t, err)
	_, err = e.svc.Get(ctx, goal.Identifier)
	require.NoError(t, err)

	_, err = e.svc.Delete(ctx, children[1].Identifier)
	require.NoError(t, err)
	_, err = e.svc.Get(ctx, goal.Identifier)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, e.tasks(t, e.ready.ID))
	requireDense(t, e.tasks(t, e.ready.ID))
}

func TestArchivedChildKeepsGoalAlive(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	goal, children, err := e.svc.CreateGoal(ctx, CreateGoalParams{
		ColumnID: e.ready.ID,
		Title:    "release",
		Children: []ChildParams{
			{Type: TypeWork, Title: "one"},
			{Type: TypeWork, Title: "two"},
		},
	})
	require.NoError(t, err)

	_, err = e.svc.Archive(ctx, children[0].Identifier)
	require.NoError(t, err)

	// Deleting the active child must not cascade while the archived sibling
	// still references the goal.
	_, err = e.svc.Delete(ctx, children[1].Identifier)
	require.NoError(t, err)
	_, err = e.svc.Get(ctx, goal.Identifier)
	require.NoError(t, err)

	// Removing the archived child takes the goal with it.
	_, err = e.svc.Delete(ctx, children[0].Identifier)
	require.NoError(t, err)
	_, err = e.svc.Get(ctx, goal.Identifier)
	assert.ErrorIs(t, err, ErrNotFound)
}
