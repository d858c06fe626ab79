package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/MJE43/minesweep-relay/internal/board"
)

// Render writes the player's view of b: hidden tiles as '#', flags as 'F',
// revealed counts as digits and empty tiles as '.'. Bombs show as '*' only
// once the game is lost.
func Render(w io.Writer, b *board.Board, state board.GameState) error {
	var sb strings.Builder
	sb.WriteString("    ")
	for j := 0; j < b.Cols(); j++ {
		fmt.Fprintf(&sb, "%3d", j)
	}
	sb.WriteByte('\n')

	for i, row := range b.IterField() {
		fmt.Fprintf(&sb, "%3d:", i)
		for _, t := range row {
			sb.WriteString("  ")
			sb.WriteByte(glyph(t, state))
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "state=%s bombs=%d\n", state, b.BombCount())

	_, err := io.WriteString(w, sb.String())
	return err
}

func glyph(t board.Tile, state board.GameState) byte {
	if t.Value.IsBomb() && state == board.GameOver && t.State != board.Flagged {
		return '*'
	}
	switch t.State {
	case board.Flagged:
		return 'F'
	case board.Revealed:
		n, _ := t.Value.Count()
		if n == 0 {
			return '.'
		}
		return byte('0' + n)
	default:
		return '#'
	}
}
