package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalEvent encodes ev as a flat JSON object. The variant's fields and its
// EventParams share one level, and the discriminator is stored under "event_type".
func MarshalEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	buf.WriteString(`{"event_type":`)
	kind, _ := json.Marshal(string(ev.Kind()))
	buf.Write(kind)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// UnmarshalEvent decodes the output of MarshalEvent. An unknown or missing
// event_type is an ErrInvalidEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var head struct {
		EventType Kind `json:"event_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if head.EventType == "" {
		return nil, fmt.Errorf("%w: event_type: required", ErrInvalidEvent)
	}
	ev, ok := New(head.EventType)
	if !ok {
		return nil, fmt.Errorf("%w: event_type: unknown %q", ErrInvalidEvent, head.EventType)
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, head.EventType, err)
	}
	return ev, nil
}
