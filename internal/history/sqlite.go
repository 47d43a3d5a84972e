package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hammamikhairi/voicecart/internal/logger"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps history in a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
}

// OpenSQLite opens (or creates) the database at path and applies the
// schema.
func OpenSQLite(path string, log *logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history db: %w", err)
	}
	log.Debug("history: sqlite store at %s", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS commands (
			id TEXT PRIMARY KEY,
			activation_id TEXT,
			transcript TEXT NOT NULL,
			category TEXT,
			action TEXT NOT NULL,
			confidence REAL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS commands_created_at ON commands(created_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Append records an entry, assigning an ID and time when missing.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO commands(id, activation_id, transcript, category, action, confidence, created_at) VALUES(?,?,?,?,?,?,?)`,
		e.ID, e.ActivationID, e.Transcript, e.Category, e.Action, e.Confidence, e.At.UnixNano())
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	s.log.Debug("history: stored %q as %s", e.Transcript, e.Action)
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, activation_id, transcript, category, action, confidence, created_at
		 FROM commands ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			activation sql.NullString
			category   sql.NullString
			confidence sql.NullFloat64
			at         int64
		)
		if err := rows.Scan(&e.ID, &activation, &e.Transcript, &category, &e.Action, &confidence, &at); err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		e.ActivationID = activation.String
		e.Category = category.String
		e.Confidence = confidence.Float64
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
