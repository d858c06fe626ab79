package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MJE43/minesweep-relay/internal/board"
)

// MaxDatagram is the largest UDP payload over IPv4.
const MaxDatagram = 65507

// minTileBytes is the shortest encoding of one tile plus its separator:
// {"state":"Hidden","position":[0,0],"value":"Bomb"},
const minTileBytes = 51

// MaxCells bounds rows*cols for a board that could still fit in one setup
// reply. Larger setups are refused before any board is built.
const MaxCells = MaxDatagram / minTileBytes

var (
	ErrDecode         = errors.New("malformed message")
	ErrSetupRejected  = errors.New("setup rejected by server")
	ErrActionRejected = errors.New("action rejected by server")
	ErrBoardTooLarge  = errors.New("board does not fit in one datagram")
)

// Request is a decoded client datagram: exactly one of Setup and Action is set.
type Request struct {
	Setup  *Setup
	Action *Action
}

// DecodeRequest classifies a client datagram. Setups are JSON arrays; every
// other payload is parsed as an action.
func DecodeRequest(data []byte) (Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Request{}, fmt.Errorf("%w: empty datagram", ErrDecode)
	}

	if trimmed[0] == '[' {
		s, err := DecodeSetup(trimmed)
		if err != nil {
			return Request{}, err
		}
		return Request{Setup: &s}, nil
	}

	a, err := DecodeAction(trimmed)
	if err != nil {
		return Request{}, err
	}
	return Request{Action: &a}, nil
}

func EncodeSetup(s Setup) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSetup(data []byte) (Setup, error) {
	var s Setup
	if err := json.Unmarshal(data, &s); err != nil {
		return Setup{}, fmt.Errorf("%w: setup: %w", ErrDecode, err)
	}
	return s, nil
}

func EncodeAction(a Action) ([]byte, error) {
	return json.Marshal(a)
}

func DecodeAction(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, fmt.Errorf("%w: action: %w", ErrDecode, err)
	}
	return a, nil
}

// EncodeBoard serializes the whole board for the setup reply.
func EncodeBoard(b *board.Board) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxDatagram {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrBoardTooLarge, len(data), b.Rows(), b.Cols())
	}
	return data, nil
}

// DecodeBoard parses a setup reply. A bare false is the server's refusal.
func DecodeBoard(data []byte) (*board.Board, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("false")) {
		return nil, ErrSetupRejected
	}

	var b board.Board
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return nil, fmt.Errorf("%w: board: %w", ErrDecode, err)
	}
	return &b, nil
}

func EncodeAck(ok bool) []byte {
	if ok {
		return []byte("true")
	}
	return []byte("false")
}

func DecodeAck(data []byte) (bool, error) {
	var ok bool
	if err := json.Unmarshal(data, &ok); err != nil {
		return false, fmt.Errorf("%w: ack: %w", ErrDecode, err)
	}
	return ok, nil
}
