package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/storage"

	_ "modernc.org/sqlite"
)

const insertQuery = `INSERT OR IGNORE INTO events (event_id, measurement_id, event_type, user_id, ts_ns, processed, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`

// Store is an embedded single-file engine for small deployments.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite has one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		measurement_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		user_id TEXT,
		ts_ns INTEGER NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL
	)`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS events_ts_idx ON events (ts_ns)`)
	return err
}

func (s *Store) StoreEvents(ctx context.Context, batch []*domain.EventEnvelope) (err error) {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, env := range batch {
		r, rerr := storage.ToRow(env)
		if rerr != nil {
			return rerr
		}
		if _, err = tx.ExecContext(ctx, insertQuery,
			r.EventID.String(), r.MeasurementID, r.EventType, r.UserID,
			r.Timestamp.UnixNano(), r.Processed, string(r.Payload),
		); err != nil {
			return fmt.Errorf("insert event %s: %w", r.EventID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*domain.EventEnvelope, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM events WHERE event_id = ?`, id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return storage.Row{EventID: id, Payload: []byte(payload)}.Envelope()
}

func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
