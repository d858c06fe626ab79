package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/MJE43/minesweep-relay/internal/game"
)

// Setup is the client's opening request: [tileSize, rows, cols, bombCount].
type Setup struct {
	TileSize int
	Rows     int
	Cols     int
	Bombs    int
}

// SetupFromConfig builds the setup message for a board config.
func SetupFromConfig(cfg game.Config) Setup {
	return Setup{TileSize: cfg.TileSize, Rows: cfg.Rows, Cols: cfg.Cols, Bombs: cfg.Bombs}
}

// Config returns the board config the setup asks for.
func (s Setup) Config() game.Config {
	return game.Config{TileSize: s.TileSize, Rows: s.Rows, Cols: s.Cols, Bombs: s.Bombs}
}

func (s Setup) MarshalJSON() ([]byte, error) {
	if s.TileSize < 0 || s.Rows < 0 || s.Cols < 0 || s.Bombs < 0 {
		return nil, fmt.Errorf("setup fields must be unsigned: %+v", s)
	}
	return json.Marshal([4]int{s.TileSize, s.Rows, s.Cols, s.Bombs})
}

func (s *Setup) UnmarshalJSON(data []byte) error {
	var fields []uint32
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) != 4 {
		return fmt.Errorf("setup needs 4 fields, got %d", len(fields))
	}
	s.TileSize = int(fields[0])
	s.Rows = int(fields[1])
	s.Cols = int(fields[2])
	s.Bombs = int(fields[3])
	return nil
}

// ActionKind tags an Action.
type ActionKind int

const (
	ActionReveal ActionKind = iota
	ActionToggleFlag
	ActionWon
	ActionQuit
)

func (k ActionKind) String() string {
	switch k {
	case ActionReveal:
		return "Reveal"
	case ActionToggleFlag:
		return "ToggleFlag"
	case ActionWon:
		return "Won"
	case ActionQuit:
		return "Quit"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is one move sent by the client. Row and Col are only meaningful for
// Reveal and ToggleFlag.
type Action struct {
	Kind ActionKind
	Row  int
	Col  int
}

func Reveal(row, col int) Action     { return Action{Kind: ActionReveal, Row: row, Col: col} }
func ToggleFlag(row, col int) Action { return Action{Kind: ActionToggleFlag, Row: row, Col: col} }
func Won() Action                    { return Action{Kind: ActionWon} }
func Quit() Action                   { return Action{Kind: ActionQuit} }

// HasPosition reports whether the action targets a tile.
func (a Action) HasPosition() bool {
	return a.Kind == ActionReveal || a.Kind == ActionToggleFlag
}

func (a Action) String() string {
	if a.HasPosition() {
		return fmt.Sprintf("%s(%d,%d)", a.Kind, a.Row, a.Col)
	}
	return a.Kind.String()
}

// MarshalJSON encodes {"Reveal":[r,c]}, {"ToggleFlag":[r,c]}, "Won" or "Quit".
func (a Action) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ActionWon, ActionQuit:
		return json.Marshal(a.Kind.String())
	case ActionReveal, ActionToggleFlag:
		if a.Row < 0 || a.Col < 0 {
			return nil, fmt.Errorf("action %s has negative coordinates", a)
		}
		return json.Marshal(map[string][2]int{a.Kind.String(): {a.Row, a.Col}})
	default:
		return nil, fmt.Errorf("unknown action kind %d", int(a.Kind))
	}
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		switch unit {
		case "Won":
			*a = Won()
		case "Quit":
			*a = Quit()
		default:
			return fmt.Errorf("unknown action %q", unit)
		}
		return nil
	}

	var tagged map[string][]uint32
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("action must have exactly one tag, got %d", len(tagged))
	}
	for tag, rc := range tagged {
		if len(rc) != 2 {
			return fmt.Errorf("action %s needs [row,col], got %d values", tag, len(rc))
		}
		switch tag {
		case "Reveal":
			*a = Reveal(int(rc[0]), int(rc[1]))
		case "ToggleFlag":
			*a = ToggleFlag(int(rc[0]), int(rc[1]))
		default:
			return fmt.Errorf("unknown action %q", tag)
		}
	}
	return nil
}
