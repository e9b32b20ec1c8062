package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	username TEXT PRIMARY KEY,
	year INTEGER NOT NULL,
	activity_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	updated_at DATETIME NOT NULL
);`

const sqliteUpsert = `
INSERT INTO snapshots (username, year, activity_type, payload, timestamp, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(username) DO UPDATE SET
	year = excluded.year,
	activity_type = excluded.activity_type,
	payload = excluded.payload,
	timestamp = excluded.timestamp,
	updated_at = excluded.updated_at`

// SQLiteStore keeps snapshots in a single sqlite table keyed by username
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewSQLiteStore opens (or creates) the database at path
func NewSQLiteStore(path string, log logger.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, apperrors.Configuration("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshots table: %w", err)
	}

	if log == nil {
		log = logger.GetLogger()
	}
	return &SQLiteStore{db: db, logger: log}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, snap Snapshot) (err error) {
	defer func() { observe("sqlite", "put", err) }()

	if err := snap.Validate(); err != nil {
		return err
	}
	snap.Username = Key(snap.Username)
	payload, err := encode(snap)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, sqliteUpsert,
		snap.Username, snap.Year, snap.ActivityType, string(payload), snap.Timestamp, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	s.logger.DebugWithFields("Snapshot saved", map[string]interface{}{
		"backend":  "sqlite",
		"username": snap.Username,
		"year":     snap.Year,
	})
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, username string) (snap Snapshot, err error) {
	defer func() { observe("sqlite", "get", err) }()

	key := Key(username)
	if key == "" {
		return Snapshot{}, apperrors.Validation("snapshot username is required")
	}

	var payload string
	err = s.db.QueryRowContext(ctx, "SELECT payload FROM snapshots WHERE username = ?", key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decode([]byte(payload))
}

// Count returns the number of stored snapshots
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
