package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"

	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/observability"
)

//go:embed schema.sql
var schemaSQL string

const (
	// recentKeep is how many recent locations are retained on disk.
	recentKeep = 10
	// recentReturn is how many Recent hands back for quick re-selection.
	recentReturn = 5
)

// SQLiteStore implements domain.Store on a local SQLite database, the
// service's equivalent of the browser's durable key-value storage.
type SQLiteStore struct {
	db        *sql.DB
	retention time.Duration
	clock     clockwork.Clock
	metrics   *observability.Metrics
}

// NewSQLiteStore opens (creating if needed) the store at dbPath. Records
// older than retention are treated as absent by Load.
func NewSQLiteStore(dbPath string, retention time.Duration, clock clockwork.Clock, metrics *observability.Metrics) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open location store: %w", err)
	}

	// WAL keeps readers unblocked while a save is in flight.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:        db,
		retention: retention,
		clock:     clock,
		metrics:   metrics,
	}, nil
}

// Save writes loc as the current record and promotes it in the recent list.
// An existing recent entry with the same city and state is replaced, and the
// list is truncated to the newest entries.
func (s *SQLiteStore) Save(ctx context.Context, loc domain.LocationRecord) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		s.metrics.StoreOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("encode location: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.metrics.StoreOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := s.clock.Now().UnixMilli()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO current_location (id, payload, saved_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		string(payload), now)
	if err != nil {
		s.metrics.StoreOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("save current location: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recent_locations (city, state, payload, used_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (city, state) DO UPDATE SET payload = excluded.payload, used_at = excluded.used_at`,
		loc.City, loc.State, string(payload), now)
	if err != nil {
		s.metrics.StoreOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("save recent location: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM recent_locations WHERE rowid NOT IN (
			SELECT rowid FROM recent_locations ORDER BY used_at DESC LIMIT ?
		)`, recentKeep)
	if err != nil {
		s.metrics.StoreOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("trim recent locations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.metrics.StoreOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("commit save: %w", err)
	}

	s.metrics.StoreOperations.WithLabelValues("save", "ok").Inc()
	return nil
}

// Load returns the current record, or nil when none exists or the stored
// record has aged past the retention window. A stale record is cleared as a
// side effect so the next read is cheap.
func (s *SQLiteStore) Load(ctx context.Context) (*domain.LocationRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM current_location WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		s.metrics.StoreOperations.WithLabelValues("load", "ok").Inc()
		return nil, nil
	}
	if err != nil {
		s.metrics.StoreOperations.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("load current location: %w", err)
	}

	var loc domain.LocationRecord
	if err := json.Unmarshal([]byte(payload), &loc); err != nil {
		s.metrics.StoreOperations.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("decode current location: %w", err)
	}

	if loc.Age(s.clock.Now()) > s.retention {
		if err := s.Clear(ctx); err != nil {
			return nil, err
		}
		s.metrics.StoreOperations.WithLabelValues("load", "ok").Inc()
		return nil, nil
	}

	s.metrics.StoreOperations.WithLabelValues("load", "ok").Inc()
	return &loc, nil
}

// Clear removes the current record, leaving the recent list intact.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM current_location`); err != nil {
		s.metrics.StoreOperations.WithLabelValues("clear", "error").Inc()
		return fmt.Errorf("clear current location: %w", err)
	}
	s.metrics.StoreOperations.WithLabelValues("clear", "ok").Inc()
	return nil
}

// Recent returns up to 5 most recently used records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context) ([]domain.LocationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM recent_locations ORDER BY used_at DESC LIMIT ?`, recentReturn)
	if err != nil {
		s.metrics.StoreOperations.WithLabelValues("recent", "error").Inc()
		return nil, fmt.Errorf("query recent locations: %w", err)
	}
	defer rows.Close()

	var recents []domain.LocationRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			s.metrics.StoreOperations.WithLabelValues("recent", "error").Inc()
			return nil, fmt.Errorf("scan recent location: %w", err)
		}
		var loc domain.LocationRecord
		if err := json.Unmarshal([]byte(payload), &loc); err != nil {
			s.metrics.StoreOperations.WithLabelValues("recent", "error").Inc()
			return nil, fmt.Errorf("decode recent location: %w", err)
		}
		recents = append(recents, loc)
	}
	if err := rows.Err(); err != nil {
		s.metrics.StoreOperations.WithLabelValues("recent", "error").Inc()
		return nil, fmt.Errorf("iterate recent locations: %w", err)
	}

	s.metrics.StoreOperations.WithLabelValues("recent", "ok").Inc()
	return recents, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
