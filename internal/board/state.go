package board

import (
	"encoding/json"
	"fmt"
)

// GameState is the lifecycle of one round.
type GameState int

const (
	Menu GameState = iota
	InGame
	Won
	GameOver
)

func (s GameState) String() string {
	switch s {
	case Menu:
		return "menu"
	case InGame:
		return "in_game"
	case Won:
		return "won"
	case GameOver:
		return "game_over"
	default:
		return fmt.Sprintf("GameState(%d)", int(s))
	}
}

// Terminal reports whether no further moves are accepted.
func (s GameState) Terminal() bool {
	return s == Won || s == GameOver
}

func (s GameState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
