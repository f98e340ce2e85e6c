package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/govlegible/civitas/pkg/consent"
)

// SQLiteStore persists cases in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed case store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureCaseSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLiteStore opens (or creates) a case store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(db)
}

func ensureCaseSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cases (
			user_id TEXT NOT NULL,
			service_id TEXT NOT NULL,
			state TEXT,
			decisions_json TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, service_id)
		);
	`)
	return err
}

// Get returns the case for (user, service), or nil when none exists.
func (s *SQLiteStore) Get(ctx context.Context, userID, serviceID string) (*Case, error) {
	var (
		c             Case
		decisionsJSON string
		created       time.Time
		updated       time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, service_id, state, decisions_json, created_at, updated_at
		FROM cases WHERE user_id = ? AND service_id = ?
	`, userID, serviceID).Scan(&c.UserID, &c.ServiceID, &c.State, &decisionsJSON, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = created
	c.UpdatedAt = updated
	if decisionsJSON != "" {
		var decisions []consent.Decision
		if err := json.Unmarshal([]byte(decisionsJSON), &decisions); err != nil {
			return nil, err
		}
		c.Decisions = decisions
	}
	return &c, nil
}

// Put inserts or replaces the case record.
func (s *SQLiteStore) Put(ctx context.Context, c Case) error {
	decisions, err := json.Marshal(c.Decisions)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cases (user_id, service_id, state, decisions_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, service_id) DO UPDATE SET
			state = excluded.state,
			decisions_json = excluded.decisions_json,
			updated_at = excluded.updated_at
	`, c.UserID, c.ServiceID, c.State, string(decisions), c.CreatedAt.UTC(), c.UpdatedAt)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
