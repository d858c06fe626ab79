package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MJE43/minesweep-relay/internal/engine"
)

var (
	// ErrBombTriggered is returned when a reveal lands on a bomb.
	ErrBombTriggered = errors.New("bomb triggered")

	// ErrOutOfBounds is returned for coordinates outside the grid.
	ErrOutOfBounds = errors.New("position out of bounds")

	// ErrInvalidBoard is returned when a decoded board is structurally inconsistent.
	ErrInvalidBoard = errors.New("invalid board")
)

// Board owns the grid for one round. It is not safe for concurrent use; each
// session has exactly one mutator.
type Board struct {
	minefield [][]Tile
	rows      int
	cols      int
	bombCount int
}

// New builds a board with bombs placed by a time-seeded source.
func New(rows, cols, bombCount int) (*Board, error) {
	return NewWithSource(rows, cols, bombCount, nil)
}

// NewWithSource builds a board with bombs placed by src.
func NewWithSource(rows, cols, bombCount int, src engine.Source) (*Board, error) {
	field, err := engine.Generate(rows, cols, bombCount, src)
	if err != nil {
		return nil, err
	}

	minefield := make([][]Tile, rows)
	for i := range minefield {
		minefield[i] = make([]Tile, cols)
		for j := range minefield[i] {
			minefield[i][j] = Tile{
				State:    Hidden,
				Position: Position{Row: i, Col: j},
				Value:    field[i][j],
			}
		}
	}

	return &Board{
		minefield: minefield,
		rows:      rows,
		cols:      cols,
		bombCount: bombCount,
	}, nil
}

// Rows is the number of tile rows.
func (b *Board) Rows() int { return b.rows }

// Cols is the number of tiles per row.
func (b *Board) Cols() int { return b.cols }

// BombCount is the number of bombs the board was generated with.
func (b *Board) BombCount() int { return b.bombCount }

// Contains reports whether (i, j) is on the grid.
func (b *Board) Contains(i, j int) bool {
	return i >= 0 && i < b.rows && j >= 0 && j < b.cols
}

// Tile returns a copy of the tile at (i, j).
func (b *Board) Tile(i, j int) (Tile, error) {
	if !b.Contains(i, j) {
		return Tile{}, fmt.Errorf("%w: (%d,%d) on %dx%d board", ErrOutOfBounds, i, j, b.rows, b.cols)
	}
	return b.minefield[i][j], nil
}

// IterField returns a copy of every row for read-only traversal.
func (b *Board) IterField() [][]Tile {
	rows := make([][]Tile, b.rows)
	for i, row := range b.minefield {
		rows[i] = append([]Tile(nil), row...)
	}
	return rows
}

// ResolveClick applies a click to (i, j): a hidden tile is revealed, a
// revealed tile is chorded and a flagged tile is left alone. When the reveal
// hits a bomb, *state is set to GameOver and ErrBombTriggered is returned.
func (b *Board) ResolveClick(state *GameState, i, j int) error {
	if !b.Contains(i, j) {
		return fmt.Errorf("%w: (%d,%d) on %dx%d board", ErrOutOfBounds, i, j, b.rows, b.cols)
	}

	var err error
	switch b.minefield[i][j].State {
	case Hidden:
		err = b.reveal(i, j, false)
	case Revealed:
		err = b.reveal(i, j, true)
	case Flagged:
		return nil
	}

	if errors.Is(err, ErrBombTriggered) && state != nil {
		*state = GameOver
	}
	return err
}

// ResolveFlag toggles Hidden and Flagged. Revealed tiles are unaffected.
func (b *Board) ResolveFlag(i, j int) error {
	if !b.Contains(i, j) {
		return fmt.Errorf("%w: (%d,%d) on %dx%d board", ErrOutOfBounds, i, j, b.rows, b.cols)
	}

	t := &b.minefield[i][j]
	switch t.State {
	case Hidden:
		t.State = Flagged
	case Flagged:
		t.State = Hidden
	}
	return nil
}

// CheckGameState returns InGame while any safe tile is still hidden or
// flagged, and Won otherwise. Bombs never need to be flagged.
func (b *Board) CheckGameState() GameState {
	for _, row := range b.minefield {
		for _, t := range row {
			if !t.Value.IsBomb() && t.State != Revealed {
				return InGame
			}
		}
	}
	return Won
}

type workItem struct {
	i, j  int
	chain bool
}

// reveal runs the flood fill from (startI, startJ). Tiles revealed before a
// bomb is reached stay revealed.
func (b *Board) reveal(startI, startJ int, startChain bool) error {
	processed := make([]bool, b.rows*b.cols)
	stack := []workItem{{i: startI, j: startJ, chain: startChain}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx := item.i*b.cols + item.j
		if processed[idx] {
			continue
		}
		processed[idx] = true

		t := &b.minefield[item.i][item.j]
		if t.State == Flagged {
			continue
		}

		flagCount := 0
		engine.Neighbors(b.rows, b.cols, item.i, item.j, func(ni, nj int) {
			if b.minefield[ni][nj].State == Flagged {
				flagCount++
			}
		})

		n, safe := t.Value.Count()
		if !safe {
			return fmt.Errorf("%w at (%d,%d)", ErrBombTriggered, item.i, item.j)
		}

		t.State = Revealed
		chain := item.chain || n == 0
		if chain && flagCount == int(n) {
			engine.Neighbors(b.rows, b.cols, item.i, item.j, func(ni, nj int) {
				stack = append(stack, workItem{i: ni, j: nj})
			})
		}
	}

	return nil
}

// String dumps the full layout, bombs included, with hidden tiles in
// brackets and flags marked F.
func (b *Board) String() string {
	var sb strings.Builder
	sb.WriteString("    ")
	for j := 0; j < b.cols; j++ {
		fmt.Fprintf(&sb, "%3d", j)
	}
	sb.WriteByte('\n')

	for i, row := range b.minefield {
		fmt.Fprintf(&sb, "%3d:", i)
		for _, t := range row {
			glyph := "*"
			if n, ok := t.Value.Count(); ok {
				glyph = fmt.Sprintf("%d", n)
				if n == 0 {
					glyph = "."
				}
			}
			switch t.State {
			case Hidden:
				fmt.Fprintf(&sb, "[%s]", glyph)
			case Flagged:
				fmt.Fprintf(&sb, "F%s ", glyph)
			default:
				fmt.Fprintf(&sb, " %s ", glyph)
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

type boardJSON struct {
	Minefield   [][]Tile `json:"minefield"`
	TileRows    int      `json:"tile_rows"`
	TileColumns int      `json:"tile_columns"`
	BombCount   int      `json:"bomb_count"`
}

// MarshalJSON encodes the whole board, tile values included.
func (b *Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(boardJSON{
		Minefield:   b.minefield,
		TileRows:    b.rows,
		TileColumns: b.cols,
		BombCount:   b.bombCount,
	})
}

// UnmarshalJSON decodes a board and checks that the grid matches its declared
// dimensions and that every tile sits at its own position. The bomb count is
// taken as recorded.
func (b *Board) UnmarshalJSON(data []byte) error {
	var raw boardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.TileRows <= 0 || raw.TileColumns <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidBoard, raw.TileRows, raw.TileColumns)
	}
	if len(raw.Minefield) != raw.TileRows {
		return fmt.Errorf("%w: %d rows declared, %d present", ErrInvalidBoard, raw.TileRows, len(raw.Minefield))
	}
	for i, row := range raw.Minefield {
		if len(row) != raw.TileColumns {
			return fmt.Errorf("%w: row %d has %d tiles, want %d", ErrInvalidBoard, i, len(row), raw.TileColumns)
		}
		for j, t := range row {
			if t.Position.Row != i || t.Position.Col != j {
				return fmt.Errorf("%w: tile at (%d,%d) claims position (%d,%d)",
					ErrInvalidBoard, i, j, t.Position.Row, t.Position.Col)
			}
		}
	}

	b.minefield = raw.Minefield
	b.rows = raw.TileRows
	b.cols = raw.TileColumns
	b.bombCount = raw.BombCount
	return nil
}
