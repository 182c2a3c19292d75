package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/analytics/internal/domain"
)

func TestRowRoundTrip(t *testing.T) {
	env := domain.NewEnvelope("G-1", &domain.Search{SearchTerm: "boots", EventParams: domain.EventParams{UserID: "u1"}})
	env.Processed = true

	row, err := ToRow(env)
	require.NoError(t, err)

	assert.Equal(t, env.EventID, row.EventID)
	assert.Equal(t, "search", row.EventType)
	require.NotNil(t, row.UserID)
	assert.Equal(t, "u1", *row.UserID)
	assert.True(t, row.Processed)

	back, err := row.Envelope()
	require.NoError(t, err)
	assert.Equal(t, env.EventID, back.EventID)
	assert.True(t, env.Timestamp.Equal(back.Timestamp))
	assert.Equal(t, env.Event, back.Event)
}

func TestToRow_NoUserID(t *testing.T) {
	row, err := ToRow(domain.NewEnvelope("G-1", &domain.SessionStart{}))
	require.NoError(t, err)
	assert.Nil(t, row.UserID)
}

func TestRowEnvelope_Corrupt(t *testing.T) {
	_, err := Row{Payload: []byte(`{"event":{"event_type":"nope"}}`)}.Envelope()
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}
