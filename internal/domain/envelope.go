package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventEnvelope wraps one Event with ingestion metadata.
// EventID and Timestamp are assigned by NewEnvelope and never reassigned.
type EventEnvelope struct {
	EventID       uuid.UUID
	MeasurementID string
	Timestamp     time.Time
	Event         Event
	Processed     bool
}

// NewEnvelope assigns a fresh identifier and the current UTC time.
func NewEnvelope(measurementID string, ev Event) *EventEnvelope {
	return &EventEnvelope{
		EventID:       uuid.New(),
		MeasurementID: measurementID,
		Timestamp:     time.Now().UTC(),
		Event:         ev,
	}
}

type envelopeJSON struct {
	EventID       uuid.UUID       `json:"event_id"`
	MeasurementID string          `json:"measurement_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Event         json.RawMessage `json:"event"`
	Processed     bool            `json:"processed"`
}

func (e *EventEnvelope) MarshalJSON() ([]byte, error) {
	raw, err := MarshalEvent(e.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeJSON{
		EventID:       e.EventID,
		MeasurementID: e.MeasurementID,
		Timestamp:     e.Timestamp,
		Event:         raw,
		Processed:     e.Processed,
	})
}

func (e *EventEnvelope) UnmarshalJSON(data []byte) error {
	var aux envelopeJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ev, err := UnmarshalEvent(aux.Event)
	if err != nil {
		return fmt.Errorf("envelope %s: %w", aux.EventID, err)
	}
	*e = EventEnvelope{
		EventID:       aux.EventID,
		MeasurementID: aux.MeasurementID,
		Timestamp:     aux.Timestamp,
		Event:         ev,
		Processed:     aux.Processed,
	}
	return nil
}

// EventBatch is a transport grouping of envelopes. It is never persisted as a
// unit; only its members are.
type EventBatch struct {
	BatchID   uuid.UUID
	Events    []*EventEnvelope
	CreatedAt time.Time
}

func NewBatch(events []*EventEnvelope) EventBatch {
	return EventBatch{
		BatchID:   uuid.New(),
		Events:    events,
		CreatedAt: time.Now().UTC(),
	}
}

func (b EventBatch) Size() int { return len(b.Events) }
