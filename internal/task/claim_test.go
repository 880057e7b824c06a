package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimMovesToDoing(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.addWork(t, e.ready.ID, "a")

	result, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1"})
	require.NoError(t, err)

	claimed := result.Task
	assert.Equal(t, StatusInProgress, claimed.Status)
	assert.Equal(t, "a1", claimed.AssignedToID)
	assert.Equal(t, e.doing.ID, claimed.ColumnID)
	assert.NotEmpty(t, claimed.ClaimedAt)
	assert.Greater(t, claimed.ClaimExpiresAt, claimed.ClaimedAt)

	assert.Equal(t, TransitionClaim, result.Hook.Transition)
	assert.True(t, result.Hook.Blocking)
	assert.Equal(t, "W1", result.Hook.Env["AGENTBOARD_TASK"])
	assert.Equal(t, "a1", result.Hook.Env["AGENTBOARD_AGENT"])
}

func TestClaimOrderPriorityThenPosition(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.add(t, CreateTaskParams{ColumnID: e.ready.ID, Title: "low first", Priority: 1})
	e.add(t, CreateTaskParams{ColumnID: e.ready.ID, Title: "high", Priority: 5})
	e.add(t, CreateTaskParams{ColumnID: e.ready.ID, Title: "low second", Priority: 1})

	first, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "W2", first.Task.Identifier)

	second, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a2"})
	require.NoError(t, err)
	assert.Equal(t, "W1", second.Task.Identifier)
}

func TestClaimSkipsMismatchedCapabilities(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.add(t, CreateTaskParams{ColumnID: e.ready.ID, Title: "python work", Priority: 9, RequiredCapabilities: []string{"python"}})
	e.add(t, CreateTaskParams{ColumnID: e.ready.ID, Title: "anyone"})

	got, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "rustacean", Capabilities: []string{"rust"}})
	require.NoError(t, err)
	assert.Equal(t, "W2", got.Task.Identifier)

	got, err = e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "pythonista", Capabilities: []string{"python", "sql"}})
	require.NoError(t, err)
	assert.Equal(t, "W1", got.Task.Identifier)
}

func TestClaimSkipsKeyFileConflicts(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.add(t, CreateTaskParams{ColumnID: e.ready.ID, Title: "first", Priority: 2, KeyFiles: []string{"core/engine.go"}})
	e.add(t, CreateTaskParams{ColumnID: e.ready.ID, Title: "overlaps", Priority: 1, KeyFiles: []string{"core/engine.go", "api/handler.go"}})
	e.add(t, CreateTaskParams{ColumnID: e.ready.ID, Title: "disjoint", KeyFiles: []string{"docs/readme.md"}})

	first, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1"})
	require.NoError(t, err)
	require.Equal(t, "W1", first.Task.Identifier)

	// W2 shares a key file with the in-progress W1, so W3 wins despite order.
	second, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a2"})
	require.NoError(t, err)
	assert.Equal(t, "W3", second.Task.Identifier)
}

func TestClaimSkipsBlockedTasks(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.addWork(t, e.ready.ID, "first")
	e.add(t, CreateTaskParams{ColumnID: e.ready.ID, Title: "second", Priority: 9, Dependencies: []string{"W1"}})

	got, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "W1", got.Task.Identifier)
}

func TestClaimSpecificIdentifier(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.addWork(t, e.ready.ID, "a")
	e.addWork(t, e.ready.ID, "b")
	e.addWork(t, e.backlog.ID, "not ready")

	got, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1", Identifier: "W2"})
	require.NoError(t, err)
	assert.Equal(t, "W2", got.Task.Identifier)

	// A task outside the ready column is not claimable by name either.
	_, err = e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1", Identifier: "W3"})
	assert.ErrorIs(t, err, ErrNoTasksAvailable)
}

func TestClaimSpecificIdentifierRejectsGoal(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	goal, _, err := e.svc.CreateGoal(ctx, CreateGoalParams{
		ColumnID: e.ready.ID,
		Title:    "release",
		Children: []ChildParams{{Type: TypeWork, Title: "only"}},
	})
	require.NoError(t, err)

	// Goals position work; only their children carry an agent's claim.
	_, err = e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1", Identifier: goal.Identifier})
	assert.ErrorIs(t, err, ErrNoTasksAvailable)

	got, err := e.svc.Get(ctx, goal.Identifier)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Status)
	assert.Empty(t, got.AssignedToID)
	assert.Equal(t, e.ready.ID, got.ColumnID)
}

func TestClaimExclusive(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.addWork(t, e.ready.ID, "only")

	_, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1"})
	require.NoError(t, err)

	_, err = e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a2"})
	assert.ErrorIs(t, err, ErrNoTasksAvailable)
}

func TestClaimAfterUnclaim(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	created := e.addWork(t, e.ready.ID, "only")

	first, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1"})
	require.NoError(t, err)
	require.Equal(t, "a1", first.Task.AssignedToID)

	_, err = e.svc.Unclaim(ctx, created.Identifier, "a1", "switching tasks")
	require.NoError(t, err)
	second, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a2"})
	require.NoError(t, err)
	assert.Equal(t, "a2", second.Task.AssignedToID)
}

func TestClaimStealsExpiredInProgress(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	created := e.addWork(t, e.ready.ID, "only")

	_, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1"})
	require.NoError(t, err)
	_, err = e.svc.Move(ctx, created.Identifier, e.ready.ID, 0)
	require.NoError(t, err)
	e.expireLease(t, created.ID)

	got, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a2"})
	require.NoError(t, err)
	assert.Equal(t, "a2", got.Task.AssignedToID)
	assert.Equal(t, StatusInProgress, got.Task.Status)
}

func TestClaimBlockedByDoingWIP(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.boards.SetWIPLimit(ctx, e.doing.ID, 1))
	e.addWork(t, e.ready.ID, "a")
	e.addWork(t, e.ready.ID, "b")

	_, err := e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a1"})
	require.NoError(t, err)

	_, err = e.svc.Claim(ctx, ClaimRequest{BoardID: e.board.ID, Agent: "a2"})
	assert.ErrorIs(t, err, ErrNoTasksAvailable)
}

func TestClaimRequiresAIOptimizedBoard(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	plain, err := e.boards.Create(ctx, "plain", mustPlainDefinition())
	require.NoError(t, err)

	_, err = e.svc.Claim(ctx, ClaimRequest{BoardID: plain.ID, Agent: "a1"})
	assert.ErrorContains(t, err, "not AI-optimized")
}

func TestNextEligibleIsReadOnly(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.addWork(t, e.ready.ID, "a")

	got, found, err := e.svc.NextEligible(ctx, e.board.ID, nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "W1", got.Identifier)

	// Preview does not claim.
	after, err := e.svc.Get(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, after.Status)
	assert.Empty(t, after.AssignedToID)
}

func TestCapabilitiesCover(t *testing.T) {
	assert.True(t, capabilitiesCover(nil, nil))
	assert.True(t, capabilitiesCover([]string{"go"}, nil))
	assert.True(t, capabilitiesCover([]string{"go", "sql"}, []string{"sql"}))
	assert.False(t, capabilitiesCover([]string{"go"}, []string{"sql"}))
	assert.False(t, capabilitiesCover(nil, []string{"sql"}))
}
