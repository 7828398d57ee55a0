package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS scenarios (
	source       TEXT    NOT NULL,
	station      INTEGER NOT NULL,
	generated_at INTEGER NOT NULL,
	status       TEXT    NOT NULL,
	analog_year  INTEGER,
	payload      TEXT    NOT NULL,
	PRIMARY KEY (source, station)
);`

// SQLiteStore implements the Store interface on a local SQLite database, so
// the latest scenarios survive restarts without a Redis deployment.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Put upserts the snapshot of a source and station.
func (s *SQLiteStore) Put(ctx context.Context, snapshot Snapshot) error {
	if err := validSource(snapshot.Source); err != nil {
		return err
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scenarios (source, station, generated_at, status, analog_year, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, station) DO UPDATE SET
			generated_at = excluded.generated_at,
			status       = excluded.status,
			analog_year  = excluded.analog_year,
			payload      = excluded.payload`,
		snapshot.Source,
		snapshot.Station,
		snapshot.GeneratedAt.UnixMilli(),
		snapshot.Status,
		sql.NullInt64{Int64: int64(snapshot.AnalogYear), Valid: snapshot.AnalogYear != 0},
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot in sqlite: %w", err)
	}
	return nil
}

// GetLatest retrieves the snapshot of a source and station.
func (s *SQLiteStore) GetLatest(ctx context.Context, source string, station int) (Snapshot, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM scenarios WHERE source = ? AND station = ?`,
		source, station,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to get snapshot from sqlite: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snapshot, true, nil
}

// Sources returns the distinct source names with stored snapshots.
func (s *SQLiteStore) Sources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM scenarios ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
