package scripting

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/minesweep-relay/internal/board"
	"github.com/MJE43/minesweep-relay/internal/client"
	"github.com/MJE43/minesweep-relay/internal/engine"
	"github.com/MJE43/minesweep-relay/internal/game"
	"github.com/MJE43/minesweep-relay/internal/logging"
	"github.com/MJE43/minesweep-relay/internal/protocol"
)

type scripted struct {
	draws []int
}

func (s *scripted) Intn(n int) int {
	v := s.draws[0]
	s.draws = s.draws[1:]
	return v
}

// newLine returns a 1x3 game laid out as: B 1 0
func newLine(t *testing.T) *client.Local {
	t.Helper()
	l, err := client.NewLocal(game.Config{Rows: 1, Cols: 3, Bombs: 1}, &scripted{draws: []int{0, 0}})
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	return l
}

func newPlayer(t *testing.T, source string, opts Options) *Player {
	t.Helper()
	p, err := NewPlayer(source, opts, logging.Discard())
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}
	return p
}

const sweepRightToLeft = `
	function move(view) {
		for (var i = 0; i < view.rows; i++) {
			for (var j = view.cols - 1; j >= 0; j--) {
				if (view.tiles[i][j] === HIDDEN) {
					return {type: "reveal", row: i, col: j}
				}
			}
		}
		return "won"
	}
`

func TestPlayerWins(t *testing.T) {
	p := newPlayer(t, sweepRightToLeft, Options{})
	res, err := p.Run(context.Background(), newLine(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.State != board.Won || res.Outcome != game.OutcomeWon {
		t.Errorf("expected a win, got %v/%v", res.State, res.Outcome)
	}
	// One reveal cascades to the 1, then the win claim.
	if res.Moves != 2 {
		t.Errorf("expected 2 moves, got %d", res.Moves)
	}
}

func TestPlayerHitsBomb(t *testing.T) {
	p := newPlayer(t, `function move(view) { return {type: "reveal", row: 0, col: 0} }`, Options{})
	res, err := p.Run(context.Background(), newLine(t))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.State != board.GameOver || res.Outcome != game.OutcomeLost {
		t.Errorf("expected a loss, got %v/%v", res.State, res.Outcome)
	}
	if res.Moves != 1 {
		t.Errorf("expected 1 move, got %d", res.Moves)
	}
}

func TestSolverScript(t *testing.T) {
	source, err := os.ReadFile("../../scripts/solver.js")
	if err != nil {
		t.Fatalf("read solver: %v", err)
	}
	cfg, _ := game.Preset("beginner")
	for nonce := uint64(0); nonce < 5; nonce++ {
		l, err := client.NewLocal(cfg, engine.NewSeededSource("solver", "test", nonce))
		if err != nil {
			t.Fatalf("NewLocal failed: %v", err)
		}
		res, err := newPlayer(t, string(source), Options{}).Run(context.Background(), l)
		if err != nil {
			t.Fatalf("nonce %d: Run failed: %v", nonce, err)
		}
		if !res.State.Terminal() {
			t.Errorf("nonce %d: expected the round to end, got %v", nonce, res.State)
		}
		if res.Rejected != 0 {
			t.Errorf("nonce %d: solver made %d rejected moves", nonce, res.Rejected)
		}
	}
}

func TestPlayerStop(t *testing.T) {
	script := `
		function move(view) {
			log("giving up after", view.moves, "moves")
			stop()
			return {type: "reveal", row: 0, col: 2}
		}
	`
	p := newPlayer(t, script, Options{})
	l := newLine(t)
	res, err := p.Run(context.Background(), l)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Outcome != game.OutcomeQuit {
		t.Errorf("expected quit, got %v", res.Outcome)
	}
	if tile, _ := l.Board().Tile(0, 2); tile.State != board.Hidden {
		t.Error("move returned alongside stop() was applied")
	}
	if len(res.Logs) != 1 || res.Logs[0].Message != "giving up after 0 moves" {
		t.Errorf("unexpected logs %+v", res.Logs)
	}
}

func TestPlayerStalls(t *testing.T) {
	script := `
		var seen = 0
		function move(view) {
			if (view.lastRejected) seen++
			return {type: "flag", row: 9, col: 9}
		}
	`
	p := newPlayer(t, script, Options{MaxRejects: 3})
	res, err := p.Run(context.Background(), newLine(t))
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("expected ErrStalled, got %v", err)
	}
	if res.Rejected != 3 || res.Moves != 0 {
		t.Errorf("expected 3 rejections and no moves, got %d/%d", res.Rejected, res.Moves)
	}
	if got := p.vm.runtime.Get("seen").ToInteger(); got != 2 {
		t.Errorf("expected lastRejected on 2 calls, got %d", got)
	}
}

func TestPlayerTimeout(t *testing.T) {
	p := newPlayer(t, `function move(view) { for (;;) {} }`, Options{CallTimeout: 50 * time.Millisecond})
	_, err := p.Run(context.Background(), newLine(t))
	if !errors.Is(err, ErrScriptTimeout) {
		t.Fatalf("expected ErrScriptTimeout, got %v", err)
	}
}

func TestPlayerCancelled(t *testing.T) {
	p := newPlayer(t, sweepRightToLeft, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Run(ctx, newLine(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Moves != 0 {
		t.Errorf("expected no moves, got %d", res.Moves)
	}
}

func TestNewPlayerErrors(t *testing.T) {
	if _, err := NewPlayer(`var x = 1`, Options{}, logging.Discard()); !errors.Is(err, ErrNoMoveFunc) {
		t.Errorf("expected ErrNoMoveFunc, got %v", err)
	}
	if _, err := NewPlayer(`function move( {`, Options{}, logging.Discard()); err == nil {
		t.Error("expected a syntax error")
	}
	if _, err := NewPlayer(`var move = 3`, Options{}, logging.Discard()); !errors.Is(err, ErrNoMoveFunc) {
		t.Errorf("expected ErrNoMoveFunc for a non-function, got %v", err)
	}
}

func TestSandboxGlobals(t *testing.T) {
	vm := NewVM(0)
	script := `log([typeof require, typeof fetch, typeof XMLHttpRequest, typeof eval, typeof Function].join(","))`
	if err := vm.Execute(script); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	logs := vm.GetLogs()
	if len(logs) != 1 || logs[0].Message != "undefined,undefined,undefined,undefined,undefined" {
		t.Errorf("unexpected sandbox globals %+v", logs)
	}
}

func TestViewOfMasksHiddenTiles(t *testing.T) {
	l := newLine(t)
	ctx := context.Background()
	if _, err := l.Send(ctx, protocol.ToggleFlag(0, 1)); err != nil {
		t.Fatalf("ToggleFlag failed: %v", err)
	}

	v := ViewOf(l.Board(), l.Session().State())
	want := []int{CodeHidden, CodeFlagged, CodeHidden}
	for j, code := range want {
		if v.Tiles[0][j] != code {
			t.Errorf("tile (0,%d): got %d, want %d", j, v.Tiles[0][j], code)
		}
	}

	if _, err := l.Send(ctx, protocol.Reveal(0, 2)); err != nil {
		t.Fatalf("Reveal failed: %v", err)
	}
	v = ViewOf(l.Board(), l.Session().State())
	if v.Tiles[0][0] != CodeHidden || v.Tiles[0][2] != 0 {
		t.Errorf("unexpected tiles after reveal %v", v.Tiles[0])
	}
	if v.Rows != 1 || v.Cols != 3 || v.Bombs != 1 {
		t.Errorf("unexpected dimensions %dx%d/%d", v.Rows, v.Cols, v.Bombs)
	}
}

func TestDecodeMove(t *testing.T) {
	tests := []struct {
		expr    string
		want    protocol.Action
		wantErr bool
	}{
		{`({type: "reveal", row: 2, col: 3})`, protocol.Reveal(2, 3), false},
		{`({type: "FLAG", row: 0, col: 1})`, protocol.ToggleFlag(0, 1), false},
		{`({type: "toggleflag", row: 4, col: 4})`, protocol.ToggleFlag(4, 4), false},
		{`({type: "won"})`, protocol.Won(), false},
		{`"quit"`, protocol.Quit(), false},
		{`"win"`, protocol.Won(), false},
		{`({type: "reveal", row: 1})`, protocol.Action{}, true},
		{`({type: "reveal", row: -1, col: 0})`, protocol.Action{}, true},
		{`({row: 1, col: 1})`, protocol.Action{}, true},
		{`({type: "dig", row: 1, col: 1})`, protocol.Action{}, true},
		{`undefined`, protocol.Action{}, true},
		{`null`, protocol.Action{}, true},
	}
	rt := goja.New()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := rt.RunString(tt.expr)
			if err != nil {
				t.Fatalf("RunString failed: %v", err)
			}
			got, err := decodeMove(rt, v)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
