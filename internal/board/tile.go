package board

import (
	"encoding/json"
	"fmt"

	"github.com/MJE43/minesweep-relay/internal/engine"
)

// TileState is the player-visible state of a tile.
type TileState int

const (
	Hidden TileState = iota
	Revealed
	Flagged
)

var tileStateNames = map[TileState]string{
	Hidden:   "Hidden",
	Revealed: "Revealed",
	Flagged:  "Flagged",
}

func (s TileState) String() string {
	if name, ok := tileStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TileState(%d)", int(s))
}

func (s TileState) MarshalJSON() ([]byte, error) {
	name, ok := tileStateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown tile state %d", int(s))
	}
	return json.Marshal(name)
}

func (s *TileState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decode tile state: %w", err)
	}
	for state, n := range tileStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown tile state %q", name)
}

// Position is a (row, col) grid index. It encodes as a two element array.
type Position struct {
	Row int
	Col int
}

func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Row, p.Col})
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var rc [2]int
	if err := json.Unmarshal(data, &rc); err != nil {
		return fmt.Errorf("decode position: %w", err)
	}
	if rc[0] < 0 || rc[1] < 0 {
		return fmt.Errorf("negative position [%d,%d]", rc[0], rc[1])
	}
	p.Row, p.Col = rc[0], rc[1]
	return nil
}

// Tile is one cell of the board. Position and Value are fixed once the board
// is built; only State changes during play.
type Tile struct {
	State    TileState    `json:"state"`
	Position Position     `json:"position"`
	Value    engine.Value `json:"value"`
}
