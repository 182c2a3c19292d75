package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/analytics/internal/domain"
)

// Engine persists envelopes. StoreEvents is all-or-nothing: either every
// envelope in the batch is durable or none is. GetEvent returns nil, nil
// when the id is unknown.
type Engine interface {
	StoreEvents(ctx context.Context, batch []*domain.EventEnvelope) error
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.EventEnvelope, error)
}

// Purger deletes envelopes ingested before cutoff and reports how many.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the full set of capabilities every driver provides.
type Store interface {
	Engine
	Purger
	Pinger
}

// Row is the flat form shared by the SQL engines. Payload is the full
// envelope JSON; the other columns exist for lookup and purging.
type Row struct {
	EventID       uuid.UUID
	MeasurementID string
	EventType     string
	UserID        *string
	Timestamp     time.Time
	Processed     bool
	Payload       []byte
}

func ToRow(env *domain.EventEnvelope) (Row, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return Row{}, fmt.Errorf("encode envelope %s: %w", env.EventID, err)
	}
	var uid *string
	if id := env.Event.Params().UserID; id != "" {
		uid = &id
	}
	return Row{
		EventID:       env.EventID,
		MeasurementID: env.MeasurementID,
		EventType:     string(env.Event.Kind()),
		UserID:        uid,
		Timestamp:     env.Timestamp,
		Processed:     env.Processed,
		Payload:       payload,
	}, nil
}

func (r Row) Envelope() (*domain.EventEnvelope, error) {
	var env domain.EventEnvelope
	if err := json.Unmarshal(r.Payload, &env); err != nil {
		return nil, fmt.Errorf("decode envelope %s: %w", r.EventID, err)
	}
	return &env, nil
}
