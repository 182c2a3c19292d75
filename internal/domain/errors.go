package domain

import (
	"errors"
	"strings"
)

// Pipeline error taxonomy. Callers wrap these with fmt.Errorf("...: %w", err)
// and match with errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrStorage       = errors.New("storage error")
	ErrChannelClosed = errors.New("channel closed")
	ErrQueueFull     = errors.New("queue full")
	ErrPrivacy       = errors.New("privacy policy violation")
)

// ValidationError carries every field-level problem found in one envelope.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return ErrInvalidEvent.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidEvent }
