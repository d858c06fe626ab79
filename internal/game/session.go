package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/minesweep-relay/internal/board"
	"github.com/MJE43/minesweep-relay/internal/engine"
)

// ErrNotInGame is returned for moves made outside the InGame state.
var ErrNotInGame = errors.New("session is not in game")

// Outcome summarises how a session ended.
type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeWon        Outcome = "won"
	OutcomeLost       Outcome = "lost"
	OutcomeQuit       Outcome = "quit"
)

// Session drives one board through the game lifecycle. It has a single
// mutator and is not safe for concurrent use.
type Session struct {
	ID        uuid.UUID
	Config    Config
	StartedAt time.Time

	src   engine.Source
	board *board.Board
	state board.GameState
	moves int
	quit  bool
}

// NewSession returns a session in the Menu state. A nil src places bombs with
// a time-seeded source.
func NewSession(cfg Config, src engine.Source) *Session {
	return &Session{
		ID:     uuid.New(),
		Config: cfg,
		src:    src,
		state:  board.Menu,
	}
}

// FromBoard wraps an already built board, such as one received from a
// server, in a session that is already InGame.
func FromBoard(b *board.Board) *Session {
	return &Session{
		ID: uuid.New(),
		Config: Config{
			TileSize: DefaultTileSize,
			Rows:     b.Rows(),
			Cols:     b.Cols(),
			Bombs:    b.BombCount(),
		},
		StartedAt: time.Now(),
		board:     b,
		state:     b.CheckGameState(),
	}
}

// Start builds the board and moves Menu to InGame.
func (s *Session) Start() error {
	if s.state != board.Menu {
		return fmt.Errorf("start from %v: %w", s.state, ErrNotInGame)
	}
	if err := s.Config.Validate(); err != nil {
		return err
	}

	b, err := board.NewWithSource(s.Config.Rows, s.Config.Cols, s.Config.Bombs, s.src)
	if err != nil {
		return fmt.Errorf("build board: %w", err)
	}

	s.board = b
	s.StartedAt = time.Now()
	s.state = b.CheckGameState()
	if s.state == board.Won {
		// A board made only of bombs has nothing left to reveal.
		return nil
	}
	s.state = board.InGame
	return nil
}

// Reset discards the current board and starts a new round with the same config.
func (s *Session) Reset(src engine.Source) error {
	s.src = src
	s.board = nil
	s.state = board.Menu
	s.moves = 0
	s.quit = false
	return s.Start()
}

// Reveal clicks (i, j). A bomb moves the session to GameOver and returns
// board.ErrBombTriggered; any other move re-scans for a win.
func (s *Session) Reveal(i, j int) error {
	if !s.Playable() {
		return fmt.Errorf("reveal (%d,%d) in %v: %w", i, j, s.state, ErrNotInGame)
	}
	if err := s.board.ResolveClick(&s.state, i, j); err != nil {
		if errors.Is(err, board.ErrBombTriggered) {
			s.moves++
		}
		return err
	}
	s.moves++
	s.state = s.board.CheckGameState()
	return nil
}

// ToggleFlag flags or unflags (i, j).
func (s *Session) ToggleFlag(i, j int) error {
	if !s.Playable() {
		return fmt.Errorf("flag (%d,%d) in %v: %w", i, j, s.state, ErrNotInGame)
	}
	if err := s.board.ResolveFlag(i, j); err != nil {
		return err
	}
	s.moves++
	return nil
}

// ClaimWin checks a peer's claim that the round is won against the board.
func (s *Session) ClaimWin() bool {
	if s.board == nil || s.quit {
		return false
	}
	if s.state == board.InGame {
		s.state = s.board.CheckGameState()
	}
	return s.state == board.Won
}

// Playable reports whether reveal and flag moves are accepted.
func (s *Session) Playable() bool {
	return s.state == board.InGame && !s.quit
}

// Quit abandons the session.
func (s *Session) Quit() {
	s.quit = true
}

func (s *Session) State() board.GameState { return s.state }
func (s *Session) Board() *board.Board    { return s.board }
func (s *Session) Moves() int             { return s.moves }

// Outcome reports the result so far.
func (s *Session) Outcome() Outcome {
	switch {
	case s.state == board.Won:
		return OutcomeWon
	case s.state == board.GameOver:
		return OutcomeLost
	case s.quit:
		return OutcomeQuit
	default:
		return OutcomeInProgress
	}
}
