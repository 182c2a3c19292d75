package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/storage"
)

// maxRowsPerStatement keeps a single INSERT under the 65535 bind parameter limit.
const maxRowsPerStatement = 5000

var insertColumns = []string{"event_id", "measurement_id", "event_type", "user_id", "ts", "processed", "payload"}

type Store struct {
	db *DB
}

func NewStore(db *DB) *Store { return &Store{db: db} }

// StoreEvents inserts the batch in one transaction. Rows whose event_id
// already exists are skipped, so a replayed batch is harmless.
func (s *Store) StoreEvents(ctx context.Context, batch []*domain.EventEnvelope) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]storage.Row, 0, len(batch))
	for _, env := range batch {
		r, err := storage.ToRow(env)
		if err != nil {
			return err
		}
		rows = append(rows, r)
	}

	return pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		for start := 0; start < len(rows); start += maxRowsPerStatement {
			end := min(start+maxRowsPerStatement, len(rows))
			sql, args := buildInsert(rows[start:end])
			if _, err := tx.Exec(ctx, sql, args...); err != nil {
				return fmt.Errorf("insert events: %w", err)
			}
		}
		return nil
	})
}

func buildInsert(rows []storage.Row) (string, []any) {
	placeholders := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*len(insertColumns))

	argi := 1
	for _, r := range rows {
		ph := make([]string, 0, len(insertColumns))
		for range insertColumns {
			ph = append(ph, fmt.Sprintf("$%d", argi))
			argi++
		}
		ph[len(ph)-1] += "::jsonb"
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
		args = append(args, r.EventID.String(), r.MeasurementID, r.EventType, r.UserID, r.Timestamp, r.Processed, string(r.Payload))
	}

	sql := "INSERT INTO events (" + strings.Join(insertColumns, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" ON CONFLICT (event_id) DO NOTHING"
	return sql, args
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*domain.EventEnvelope, error) {
	var payload []byte
	err := s.db.Pool.QueryRow(ctx, "SELECT payload FROM events WHERE event_id = $1", id.String()).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return storage.Row{EventID: id, Payload: payload}.Envelope()
}

func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.db.Pool.Exec(ctx, "DELETE FROM events WHERE ts < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }
