package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/MJE43/minesweep-relay/internal/board"
	"github.com/MJE43/minesweep-relay/internal/engine"
	"github.com/MJE43/minesweep-relay/internal/game"
	"github.com/MJE43/minesweep-relay/internal/protocol"
)

// Driver applies player actions to a game, either in process or through a
// remote server, and exposes the resulting board.
type Driver interface {
	Send(ctx context.Context, action protocol.Action) (board.GameState, error)
	Board() *board.Board
	Session() *game.Session
}

var _ Driver = (*Client)(nil)
var _ Driver = (*Local)(nil)

// Local plays a session in process with no networking.
type Local struct {
	session *game.Session
}

// NewLocal starts an in-process session.
func NewLocal(cfg game.Config, src engine.Source) (*Local, error) {
	s := game.NewSession(cfg, src)
	if err := s.Start(); err != nil {
		return nil, err
	}
	return &Local{session: s}, nil
}

// Send applies the action with the same acceptance rules as the server.
func (l *Local) Send(_ context.Context, action protocol.Action) (board.GameState, error) {
	s := l.session
	switch action.Kind {
	case protocol.ActionReveal:
		if err := s.Reveal(action.Row, action.Col); err != nil && !errors.Is(err, board.ErrBombTriggered) {
			return s.State(), fmt.Errorf("%s: %w: %w", action, protocol.ErrActionRejected, err)
		}
	case protocol.ActionToggleFlag:
		if err := s.ToggleFlag(action.Row, action.Col); err != nil {
			return s.State(), fmt.Errorf("%s: %w: %w", action, protocol.ErrActionRejected, err)
		}
	case protocol.ActionWon:
		if !s.ClaimWin() {
			return s.State(), fmt.Errorf("%s: %w", action, protocol.ErrActionRejected)
		}
	case protocol.ActionQuit:
		s.Quit()
	}
	return s.State(), nil
}

func (l *Local) Board() *board.Board    { return l.session.Board() }
func (l *Local) Session() *game.Session { return l.session }
