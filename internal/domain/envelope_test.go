package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	before := time.Now().UTC()

	a := NewEnvelope("G-1234567890", &SessionStart{})
	b := NewEnvelope("G-1234567890", &SessionStart{})

	assert.NotEqual(t, uuid.Nil, a.EventID)
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.Equal(t, time.UTC, a.Timestamp.Location())
	assert.False(t, a.Timestamp.Before(before))
	assert.False(t, a.Processed)
}

func TestEnvelopeJSON(t *testing.T) {
	env := NewEnvelope("G-1234567890", &Purchase{
		TransactionID: "T-9",
		Value:         ptr(12.5),
		Currency:      "USD",
		EventParams:   EventParams{UserID: "u1"},
	})
	env.Processed = true

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, string(m["event"]), `"event_type":"purchase"`)

	var decoded EventEnvelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.MeasurementID, decoded.MeasurementID)
	assert.True(t, env.Timestamp.Equal(decoded.Timestamp))
	assert.True(t, decoded.Processed)
	assert.Equal(t, env.Event, decoded.Event)
}

func TestNewBatch(t *testing.T) {
	events := []*EventEnvelope{
		NewEnvelope("G-1", &SessionStart{}),
		NewEnvelope("G-1", &Scroll{PercentScrolled: 10}),
	}

	b := NewBatch(events)

	assert.NotEqual(t, uuid.Nil, b.BatchID)
	assert.Equal(t, 2, b.Size())
	assert.Same(t, events[0], b.Events[0])
}

func TestValidateEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		env    *EventEnvelope
		fields []string
	}{
		{"valid page view", NewEnvelope("G-1", &PageView{PageTitle: "Home", PageLocation: "/"}), nil},
		{"empty measurement id", NewEnvelope("", &SessionStart{}), []string{"measurement_id"}},
		{"missing event", &EventEnvelope{MeasurementID: "G-1"}, []string{"event"}},
		{"purchase without required fields", NewEnvelope("G-1", &Purchase{}), []string{"transaction_id", "value", "currency"}},
		{"negative purchase value", NewEnvelope("G-1", &Purchase{TransactionID: "T", Value: ptr(-1), Currency: "USD"}), []string{"value"}},
		{"checkout without value", NewEnvelope("G-1", &BeginCheckout{Currency: "USD"}), []string{"value"}},
		{"bad item", NewEnvelope("G-1", &AddToCart{Items: []Item{{ItemID: "a", Price: -1}}}), []string{"items[0].item_name", "items[0].price", "items[0].quantity"}},
		{"scroll over 100", NewEnvelope("G-1", &Scroll{PercentScrolled: 101}), []string{"percent_scrolled"}},
		{"video without url", NewEnvelope("G-1", &VideoStart{VideoTitle: "t"}), []string{"video_url"}},
		{"custom without name", NewEnvelope("G-1", &Custom{}), []string{"name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnvelope(tt.env)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEvent)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			got := make([]string, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				got = append(got, f.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

// lookalike carries the shared params and a Kind but no variant marker.
type lookalike struct{ EventParams }

func (*lookalike) Kind() Kind { return "lookalike" }

// forged passes the interface check from inside the package with a kind New
// does not know.
type forged struct{ EventParams }

func (*forged) Kind() Kind { return "forged" }
func (*forged) isEvent() {}

func TestEventIsSealed(t *testing.T) {
	_, ok := any(&lookalike{}).(Event)
	assert.False(t, ok, "embedding EventParams must not satisfy Event")

	err := ValidateEnvelope(NewEnvelope("G-1", &forged{}))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "event_type", verr.Fields[0].Field)
	assert.Contains(t, verr.Fields[0].Msg, `"forged"`)
}

func TestNewUnknownKind(t *testing.T) {
	ev, ok := New("nope")
	assert.False(t, ok)
	assert.Nil(t, ev)

	for _, k := range Kinds() {
		ev, ok := New(k)
		require.True(t, ok, k)
		assert.Equal(t, k, ev.Kind())
	}
}
