package board

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a board or column does not exist.
var ErrNotFound = fmt.Errorf("board: not found")

// Store manages board and column persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a board store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Definition describes a board layout for creation or import.
type Definition struct {
	Name        string             `yaml:"name,omitempty"`
	AIOptimized bool               `yaml:"ai_optimized,omitempty"`
	Columns     []ColumnDefinition `yaml:"columns"`
}

// ColumnDefinition describes one column in a Definition.
type ColumnDefinition struct {
	Name     string `yaml:"name"`
	Phase    Phase  `yaml:"phase,omitempty"`
	WIPLimit int    `yaml:"wip_limit,omitempty"`
}

//go:embed template.yaml
var aiTemplateYAML []byte

// LoadDefinition parses and validates a YAML board definition.
func LoadDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse board definition: %w", err)
	}
	if len(def.Columns) == 0 {
		return Definition{}, fmt.Errorf("board definition has no columns")
	}
	seen := map[Phase]bool{}
	for _, col := range def.Columns {
		if col.Name == "" {
			return Definition{}, fmt.Errorf("board definition column without a name")
		}
		if !col.Phase.Valid() {
			return Definition{}, fmt.Errorf("unknown workflow phase %q", col.Phase)
		}
		if col.WIPLimit < 0 {
			return Definition{}, fmt.Errorf("column %q has negative wip limit", col.Name)
		}
		if col.Phase != PhaseNone {
			if seen[col.Phase] {
				return Definition{}, fmt.Errorf("duplicate workflow phase %q", col.Phase)
			}
			seen[col.Phase] = true
		}
	}
	return def, nil
}

// AITemplate returns the built-in 5-column claim/review layout. A positive
// doingWIP overrides the template's Doing column limit.
func AITemplate(doingWIP int) (Definition, error) {
	def, err := LoadDefinition(aiTemplateYAML)
	if err != nil {
		return Definition{}, fmt.Errorf("built-in board template: %w", err)
	}
	def.AIOptimized = true
	if doingWIP > 0 {
		for i := range def.Columns {
			if def.Columns[i].Phase == PhaseDoing {
				def.Columns[i].WIPLimit = doingWIP
			}
		}
	}
	return def, nil
}

// Create inserts a board and its columns in one transaction.
func (s *Store) Create(ctx context.Context, name string, def Definition) (Board, error) {
	if name == "" {
		name = def.Name
	}
	if name == "" {
		return Board{}, fmt.Errorf("board name is required")
	}
	createdAt := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return Board{}, fmt.Errorf("begin create board: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO boards(name, ai_optimized, created_at) VALUES(?, ?, ?)`,
		name, def.AIOptimized, createdAt)
	if err != nil {
		_ = tx.Rollback()
		return Board{}, fmt.Errorf("insert board: %w", err)
	}
	boardID, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return Board{}, fmt.Errorf("read board id: %w", err)
	}
	for i, col := range def.Columns {
		if _, err := tx.ExecContext(ctx, `INSERT INTO columns(board_id, name, position, wip_limit, phase) VALUES(?, ?, ?, ?, ?)`,
			boardID, col.Name, i, col.WIPLimit, string(col.Phase)); err != nil {
			_ = tx.Rollback()
			return Board{}, fmt.Errorf("insert column %q: %w", col.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Board{}, fmt.Errorf("commit create board: %w", err)
	}
	return Board{ID: boardID, Name: name, AIOptimized: def.AIOptimized, CreatedAt: createdAt}, nil
}

// Board fetches a board by id.
func (s *Store) Board(ctx context.Context, id int64) (Board, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, ai_optimized, created_at FROM boards WHERE id=?`, id)
	var b Board
	if err := row.Scan(&b.ID, &b.Name, &b.AIOptimized, &b.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Board{}, ErrNotFound
		}
		return Board{}, fmt.Errorf("read board: %w", err)
	}
	return b, nil
}

// Boards lists all boards ordered by id.
func (s *Store) Boards(ctx context.Context) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, ai_optimized, created_at FROM boards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer rows.Close()
	var out []Board
	for rows.Next() {
		var b Board
		if err := rows.Scan(&b.ID, &b.Name, &b.AIOptimized, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return out, nil
}

// Column fetches a column by id.
func (s *Store) Column(ctx context.Context, id int64) (Column, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, board_id, name, position, wip_limit, phase FROM columns WHERE id=?`, id)
	return scanColumn(row)
}

// Columns lists a board's columns in board order.
func (s *Store) Columns(ctx context.Context, boardID int64) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, board_id, name, position, wip_limit, phase FROM columns WHERE board_id=? ORDER BY position`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()
	var out []Column
	for rows.Next() {
		var c Column
		var phase string
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.WIPLimit, &phase); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.Phase = Phase(phase)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return out, nil
}

// ColumnByPhase resolves the column carrying a workflow phase on a board.
func (s *Store) ColumnByPhase(ctx context.Context, boardID int64, phase Phase) (Column, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, board_id, name, position, wip_limit, phase FROM columns WHERE board_id=? AND phase=?`, boardID, string(phase))
	return scanColumn(row)
}

// SetWIPLimit updates a column's WIP limit.
func (s *Store) SetWIPLimit(ctx context.Context, columnID int64, limit int) error {
	if limit < 0 {
		return fmt.Errorf("wip limit must be >= 0")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE columns SET wip_limit=? WHERE id=?`, limit, columnID)
	if err != nil {
		return fmt.Errorf("update wip limit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanColumn(row *sql.Row) (Column, error) {
	var c Column
	var phase string
	if err := row.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.WIPLimit, &phase); err != nil {
		if err == sql.ErrNoRows {
			return Column{}, ErrNotFound
		}
		return Column{}, fmt.Errorf("read column: %w", err)
	}
	c.Phase = Phase(phase)
	return c, nil
}
