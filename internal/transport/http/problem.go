package transporthttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"example.com/analytics/internal/domain"
)

type Problem struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title,omitempty"`
	Status   int                 `json:"status,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

func WriteProblem(w http.ResponseWriter, status int, title, detail string, errs map[string][]string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:  title,
		Status: status,
		Detail: detail,
		Errors: errs,
	})
}

// WriteError maps a pipeline error onto a problem response.
func WriteError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteProblem(w, http.StatusBadRequest, "validation failed", "one or more fields are invalid", fieldErrors("", verr.Fields))
	case errors.Is(err, domain.ErrInvalidEvent):
		WriteProblem(w, http.StatusBadRequest, "invalid event", err.Error(), nil)
	case errors.Is(err, domain.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		WriteProblem(w, http.StatusServiceUnavailable, "overloaded", "ingest queue is full, please retry", nil)
	case errors.Is(err, domain.ErrChannelClosed):
		WriteProblem(w, http.StatusServiceUnavailable, "unavailable", "pipeline is shutting down", nil)
	default:
		WriteProblem(w, http.StatusInternalServerError, "server error", err.Error(), nil)
	}
}

func fieldErrors(prefix string, fields []domain.FieldError) map[string][]string {
	out := make(map[string][]string, len(fields))
	for _, fe := range fields {
		out[prefix+fe.Field] = append(out[prefix+fe.Field], fe.Msg)
	}
	return out
}
