package scripting

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/MJE43/minesweep-relay/internal/board"
	"github.com/MJE43/minesweep-relay/internal/protocol"
)

// View is what move() receives: the board as a player sees it.
type View struct {
	Rows         int
	Cols         int
	Bombs        int
	State        board.GameState
	Moves        int
	LastRejected bool
	Tiles        [][]int
}

// ViewOf masks b for a script. Hidden tiles never expose their value.
func ViewOf(b *board.Board, state board.GameState) View {
	field := b.IterField()
	tiles := make([][]int, len(field))
	for i, row := range field {
		tiles[i] = make([]int, len(row))
		for j, t := range row {
			tiles[i][j] = tileCode(t)
		}
	}
	return View{
		Rows:  b.Rows(),
		Cols:  b.Cols(),
		Bombs: b.BombCount(),
		State: state,
		Tiles: tiles,
	}
}

func tileCode(t board.Tile) int {
	switch t.State {
	case board.Flagged:
		return CodeFlagged
	case board.Revealed:
		if t.Value.IsBomb() {
			return CodeBomb
		}
		n, _ := t.Value.Count()
		return int(n)
	default:
		return CodeHidden
	}
}

// export converts the view into plain JS-friendly values.
func (v View) export() map[string]interface{} {
	tiles := make([]interface{}, len(v.Tiles))
	for i, row := range v.Tiles {
		r := make([]interface{}, len(row))
		for j, c := range row {
			r[j] = c
		}
		tiles[i] = r
	}
	return map[string]interface{}{
		"rows":         v.Rows,
		"cols":         v.Cols,
		"bombs":        v.Bombs,
		"state":        v.State.String(),
		"moves":        v.Moves,
		"lastRejected": v.LastRejected,
		"tiles":        tiles,
	}
}

// decodeMove accepts {type, row, col} objects, or the bare strings "won"
// and "quit".
func decodeMove(rt *goja.Runtime, v goja.Value) (protocol.Action, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return protocol.Action{}, fmt.Errorf("move() returned nothing")
	}
	if s, ok := v.Export().(string); ok {
		return simpleMove(s)
	}

	obj := v.ToObject(rt)
	typ := obj.Get("type")
	if typ == nil || goja.IsUndefined(typ) {
		return protocol.Action{}, fmt.Errorf("move() result has no type")
	}

	switch kind := strings.ToLower(typ.String()); kind {
	case "reveal", "flag", "toggleflag":
		row, err := coord(obj, "row")
		if err != nil {
			return protocol.Action{}, err
		}
		col, err := coord(obj, "col")
		if err != nil {
			return protocol.Action{}, err
		}
		if kind == "reveal" {
			return protocol.Reveal(row, col), nil
		}
		return protocol.ToggleFlag(row, col), nil
	default:
		return simpleMove(kind)
	}
}

func simpleMove(s string) (protocol.Action, error) {
	switch strings.ToLower(s) {
	case "won", "win":
		return protocol.Won(), nil
	case "quit":
		return protocol.Quit(), nil
	default:
		return protocol.Action{}, fmt.Errorf("unknown move type %q", s)
	}
}

func coord(obj *goja.Object, name string) (int, error) {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, fmt.Errorf("move() result is missing %s", name)
	}
	n := v.ToInteger()
	if n < 0 {
		return 0, fmt.Errorf("move() %s %d is negative", name, n)
	}
	return int(n), nil
}
