package scripting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MJE43/minesweep-relay/internal/board"
	"github.com/MJE43/minesweep-relay/internal/client"
	"github.com/MJE43/minesweep-relay/internal/game"
	"github.com/MJE43/minesweep-relay/internal/protocol"
)

// ErrStalled is returned when a script keeps proposing moves the game refuses.
var ErrStalled = errors.New("script stalled: too many rejected moves in a row")

const defaultMaxRejects = 25

// Options tune a Player.
type Options struct {
	CallTimeout time.Duration // bound on each move() call
	MaxRejects  int           // consecutive refusals before giving up
	Delay       time.Duration // pause between moves
}

// Result summarizes one scripted game.
type Result struct {
	State    board.GameState `json:"state"`
	Outcome  game.Outcome    `json:"outcome"`
	Moves    int             `json:"moves"`
	Rejected int             `json:"rejected"`
	Logs     []LogEntry      `json:"logs"`
}

// Player drives a game with a user script that defines move(view).
type Player struct {
	vm   *VM
	opts Options
	log  *logrus.Entry
}

// NewPlayer compiles source and checks that it defines move().
func NewPlayer(source string, opts Options, log *logrus.Entry) (*Player, error) {
	if opts.MaxRejects <= 0 {
		opts.MaxRejects = defaultMaxRejects
	}
	vm := NewVM(opts.CallTimeout)
	if err := vm.Execute(source); err != nil {
		return nil, err
	}
	if !vm.HasMoveFunc() {
		return nil, ErrNoMoveFunc
	}
	return &Player{vm: vm, opts: opts, log: log}, nil
}

// Run asks the script for moves and sends them through d until the round
// ends, the script quits or ctx is cancelled. A cleared board is claimed
// with a Won action before returning.
func (p *Player) Run(ctx context.Context, d client.Driver) (Result, error) {
	var (
		res          Result
		lastRejected bool
		streak       int
	)
	finish := func(err error) (Result, error) {
		s := d.Session()
		res.State = s.State()
		res.Outcome = s.Outcome()
		res.Logs = p.vm.GetLogs()
		return res, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		s := d.Session()
		switch {
		case s.State() == board.Won:
			if _, err := d.Send(ctx, protocol.Won()); err != nil {
				return finish(fmt.Errorf("claim win: %w", err))
			}
			res.Moves++
			return finish(nil)
		case !s.Playable():
			return finish(nil)
		}

		view := ViewOf(d.Board(), s.State())
		view.Moves = res.Moves
		view.LastRejected = lastRejected

		action, err := p.vm.CallMove(view)
		if err != nil {
			return finish(err)
		}
		if p.vm.IsStopRequested() {
			action = protocol.Quit()
		}

		_, err = d.Send(ctx, action)
		switch {
		case errors.Is(err, protocol.ErrActionRejected):
			res.Rejected++
			streak++
			lastRejected = true
			p.log.WithField("action", action.String()).Debug("script move rejected")
			if streak >= p.opts.MaxRejects {
				return finish(ErrStalled)
			}
		case err != nil:
			return finish(err)
		default:
			res.Moves++
			streak = 0
			lastRejected = false
		}

		if action.Kind == protocol.ActionWon || action.Kind == protocol.ActionQuit {
			if err == nil {
				return finish(nil)
			}
		}

		if p.opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return finish(ctx.Err())
			case <-time.After(p.opts.Delay):
			}
		}
	}
}

// Logs returns the script's log buffer.
func (p *Player) Logs() []LogEntry {
	return p.vm.GetLogs()
}
