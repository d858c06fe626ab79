package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MJE43/minesweep-relay/internal/game"
	"github.com/MJE43/minesweep-relay/internal/protocol"
)

// ErrUnknownCommand is returned for lines ParseCommand does not understand.
var ErrUnknownCommand = errors.New("unknown command")

// ParseCommand reads one line of player input:
//
//	r <row> <col>   reveal (or chord a revealed tile)
//	f <row> <col>   toggle a flag
//	w               claim the win
//	q               quit
//
// Coordinates go through game.ParseCount, so stray characters are ignored.
func ParseCommand(line string) (protocol.Action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return protocol.Action{}, fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}

	verb := strings.ToLower(fields[0])
	switch verb {
	case "w", "won", "win":
		return protocol.Won(), nil
	case "q", "quit", "exit":
		return protocol.Quit(), nil
	case "r", "reveal", "f", "flag":
	default:
		return protocol.Action{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}

	if len(fields) != 3 {
		return protocol.Action{}, fmt.Errorf("%w: %s needs <row> <col>", ErrUnknownCommand, verb)
	}
	row, err := game.ParseCount(fields[1])
	if err != nil {
		return protocol.Action{}, fmt.Errorf("row: %w", err)
	}
	col, err := game.ParseCount(fields[2])
	if err != nil {
		return protocol.Action{}, fmt.Errorf("col: %w", err)
	}

	if verb == "f" || verb == "flag" {
		return protocol.ToggleFlag(row, col), nil
	}
	return protocol.Reveal(row, col), nil
}
