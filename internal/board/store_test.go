package board

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentboard/agentboard/internal/db"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewStore(database)
}

func TestAITemplate(t *testing.T) {
	def, err := AITemplate(0)
	require.NoError(t, err)
	assert.True(t, def.AIOptimized)
	require.Len(t, def.Columns, 5)

	phases := make([]Phase, len(def.Columns))
	for i, col := range def.Columns {
		phases[i] = col.Phase
	}
	assert.Equal(t, []Phase{PhaseBacklog, PhaseReady, PhaseDoing, PhaseReview, PhaseDone}, phases)
	assert.Equal(t, 3, def.Columns[2].WIPLimit)

	override, err := AITemplate(7)
	require.NoError(t, err)
	assert.Equal(t, 7, override.Columns[2].WIPLimit)
}

func TestLoadDefinitionValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"no columns", "name: empty\ncolumns: []\n", "no columns"},
		{"nameless column", "columns:\n  - phase: doing\n", "without a name"},
		{"unknown phase", "columns:\n  - name: X\n    phase: limbo\n", "unknown workflow phase"},
		{"duplicate phase", "columns:\n  - name: A\n    phase: doing\n  - name: B\n    phase: doing\n", "duplicate workflow phase"},
		{"negative wip", "columns:\n  - name: A\n    wip_limit: -1\n", "negative wip"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadDefinition([]byte(tc.yaml))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadDefinitionAllowsPhaselessColumns(t *testing.T) {
	def, err := LoadDefinition([]byte("columns:\n  - name: A\n  - name: B\n"))
	require.NoError(t, err)
	assert.Len(t, def.Columns, 2)
	assert.Equal(t, PhaseNone, def.Columns[0].Phase)
}

func TestCreateAndFetch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	def, err := AITemplate(0)
	require.NoError(t, err)

	b, err := s.Create(ctx, "main", def)
	require.NoError(t, err)
	assert.True(t, b.AIOptimized)
	assert.NotEmpty(t, b.CreatedAt)

	got, err := s.Board(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "main", got.Name)

	cols, err := s.Columns(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, cols, 5)
	for i, col := range cols {
		assert.Equal(t, i, col.Position)
	}

	doing, err := s.ColumnByPhase(ctx, b.ID, PhaseDoing)
	require.NoError(t, err)
	assert.Equal(t, "Doing", doing.Name)

	all, err := s.Boards(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateUsesDefinitionName(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	def, err := LoadDefinition([]byte("name: from yaml\ncolumns:\n  - name: A\n"))
	require.NoError(t, err)
	b, err := s.Create(ctx, "", def)
	require.NoError(t, err)
	assert.Equal(t, "from yaml", b.Name)

	_, err = s.Create(ctx, "", Definition{Columns: []ColumnDefinition{{Name: "A"}}})
	assert.ErrorContains(t, err, "name is required")
}

func TestBoardNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Board(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetWIPLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	def, err := AITemplate(0)
	require.NoError(t, err)
	b, err := s.Create(ctx, "main", def)
	require.NoError(t, err)
	doing, err := s.ColumnByPhase(ctx, b.ID, PhaseDoing)
	require.NoError(t, err)

	require.NoError(t, s.SetWIPLimit(ctx, doing.ID, 9))
	got, err := s.Column(ctx, doing.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.WIPLimit)

	assert.Error(t, s.SetWIPLimit(ctx, doing.ID, -1))
	assert.ErrorIs(t, s.SetWIPLimit(ctx, 9999, 1), ErrNotFound)
}
