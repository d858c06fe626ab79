package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the ledger at path. ":memory:" keeps it in process.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// HashSeed returns the hex SHA256 of a server seed, or "" for an empty seed.
func HashSeed(serverSeed string) string {
	if serverSeed == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(hash[:])
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded goose migrations. Running it again is a no-op.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// SaveSession inserts a new ledger row, assigning an id and creation time when missing.
func (s *SQLiteDB) SaveSession(sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if sess.Outcome == "" {
		sess.Outcome = "in_progress"
	}

	query := `INSERT INTO sessions (
		id, peer, tile_size, board_rows, board_cols, bombs, seeded, seed_hash,
		outcome, moves, rejected, engine_version, created_at, ended_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		sess.ID, sess.Peer, sess.TileSize, sess.Rows, sess.Cols, sess.Bombs,
		boolToInt(sess.Seeded), sess.SeedHash, sess.Outcome, sess.Moves, sess.Rejected,
		sess.EngineVersion, sess.CreatedAt.UTC(), nullTime(sess.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// UpdateSession rewrites the mutable counters of an existing row.
func (s *SQLiteDB) UpdateSession(sess *Session) error {
	query := `UPDATE sessions SET
		outcome = ?, moves = ?, rejected = ?, ended_at = ?
		WHERE id = ?`

	res, err := s.db.Exec(query, sess.Outcome, sess.Moves, sess.Rejected, nullTime(sess.EndedAt), sess.ID)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", sess.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", sess.ID, ErrNotFound)
	}
	return nil
}

const sessionColumns = `id, peer, tile_size, board_rows, board_cols, bombs, seeded, seed_hash,
	outcome, moves, rejected, engine_version, created_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var seeded int
	var endedAt sql.NullTime

	err := row.Scan(
		&sess.ID, &sess.Peer, &sess.TileSize, &sess.Rows, &sess.Cols, &sess.Bombs,
		&seeded, &sess.SeedHash, &sess.Outcome, &sess.Moves, &sess.Rejected,
		&sess.EngineVersion, &sess.CreatedAt, &endedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Seeded = seeded == 1
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	return &sess, nil
}

// GetSession retrieves a session by ID
func (s *SQLiteDB) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions retrieves sessions newest first with pagination and an optional outcome filter
func (s *SQLiteDB) ListSessions(query SessionsQuery) (*SessionsList, error) {
	whereClause := ""
	args := []any{}

	if query.Outcome != "" {
		whereClause = "WHERE outcome = ?"
		args = append(args, query.Outcome)
	}

	var totalCount int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = 50
	}
	if query.Page <= 0 {
		query.Page = 1
	}

	totalPages := (totalCount + query.PerPage - 1) / query.PerPage
	offset := (query.Page - 1) * query.PerPage

	mainQuery := `SELECT ` + sessionColumns + ` FROM sessions ` + whereClause + `
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`
	args = append(args, query.PerPage, offset)

	rows, err := s.db.Query(mainQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return &SessionsList{
		Sessions:   sessions,
		TotalCount: totalCount,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: totalPages,
	}, nil
}

// Stats aggregates outcomes across the ledger. WinRate counts finished
// sessions only; BombDensity is total bombs over total cells.
func (s *SQLiteDB) Stats() (*Stats, error) {
	query := `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN outcome = 'won' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = 'lost' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = 'quit' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome = 'in_progress' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(moves), 0),
		COALESCE(SUM(bombs), 0),
		COALESCE(SUM(board_rows * board_cols), 0)
		FROM sessions`

	var st Stats
	var bombs, cells int64
	err := s.db.QueryRow(query).Scan(
		&st.TotalSessions, &st.Won, &st.Lost, &st.Quit, &st.InProgress,
		&st.TotalMoves, &bombs, &cells,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sessions: %w", err)
	}

	st.WinRate = decimal.Zero
	if finished := st.Won + st.Lost + st.Quit; finished > 0 {
		st.WinRate = decimal.NewFromInt(int64(st.Won)).
			DivRound(decimal.NewFromInt(int64(finished)), 4)
	}
	st.BombDensity = decimal.Zero
	if cells > 0 {
		st.BombDensity = decimal.NewFromInt(bombs).DivRound(decimal.NewFromInt(cells), 4)
	}

	return &st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
