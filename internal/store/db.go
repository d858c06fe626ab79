package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a session id has no ledger row.
var ErrNotFound = errors.New("session not found")

// DB is the session ledger. It records session metadata and outcome counters
// only; board contents are never stored.
type DB interface {
	Close() error
	Migrate(ctx context.Context) error
	SaveSession(s *Session) error
	UpdateSession(s *Session) error
	GetSession(id string) (*Session, error)
	ListSessions(query SessionsQuery) (*SessionsList, error)
	Stats() (*Stats, error)
}

// SessionsQuery represents query parameters for listing sessions
type SessionsQuery struct {
	Outcome string `json:"outcome,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// SessionsList represents a paginated sessions response
type SessionsList struct {
	Sessions   []Session `json:"sessions"`
	TotalCount int       `json:"totalCount"`
	Page       int       `json:"page"`
	PerPage    int       `json:"perPage"`
	TotalPages int       `json:"totalPages"`
}

// Session is one ledger row.
type Session struct {
	ID            string     `json:"id" db:"id"`
	Peer          string     `json:"peer" db:"peer"`
	TileSize      int        `json:"tile_size" db:"tile_size"`
	Rows          int        `json:"rows" db:"board_rows"`
	Cols          int        `json:"cols" db:"board_cols"`
	Bombs         int        `json:"bombs" db:"bombs"`
	Seeded        bool       `json:"seeded" db:"seeded"`
	SeedHash      string     `json:"seed_hash,omitempty" db:"seed_hash"` // SHA256 of the server seed only
	Outcome       string     `json:"outcome" db:"outcome"`
	Moves         int        `json:"moves" db:"moves"`
	Rejected      int        `json:"rejected" db:"rejected"`
	EngineVersion string     `json:"engine_version" db:"engine_version"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// Stats aggregates the ledger.
type Stats struct {
	TotalSessions int             `json:"total_sessions"`
	Won           int             `json:"won"`
	Lost          int             `json:"lost"`
	Quit          int             `json:"quit"`
	InProgress    int             `json:"in_progress"`
	TotalMoves    int             `json:"total_moves"`
	WinRate       decimal.Decimal `json:"win_rate"`
	BombDensity   decimal.Decimal `json:"bomb_density"`
}
