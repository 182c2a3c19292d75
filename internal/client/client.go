// Package client sends events to the analytics ingress over HTTP and reads
// back metrics and stored events.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"example.com/analytics/internal/collector"
	"example.com/analytics/internal/domain"
)

const (
	DefaultEndpoint = "http://localhost:8080"
	DefaultTimeout  = 10 * time.Second
)

// ErrNoMeasurementID is returned by the Track methods until a measurement id is set.
var ErrNoMeasurementID = fmt.Errorf("%w: measurement id required", domain.ErrConfiguration)

var errBadResponse = errors.New("malformed response")

// APIError is a non-2xx answer from the server, decoded from its problem body
// when there is one.
type APIError struct {
	StatusCode int                 `json:"status"`
	Title      string              `json:"title"`
	Detail     string              `json:"detail"`
	Errors     map[string][]string `json:"errors"`
}

func (e *APIError) Error() string {
	msg := "unexpected status " + strconv.Itoa(e.StatusCode)
	if e.Title != "" {
		msg += ": " + e.Title
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusTooManyRequests
}

// Receipt acknowledges a single tracked event. EventID is uuid.Nil when the
// server suppressed the event.
type Receipt struct {
	Status  string    `json:"status"`
	EventID uuid.UUID `json:"event_id"`
}

func (r Receipt) Suppressed() bool { return r.Status == collector.Suppressed.String() }

type BatchReceipt struct {
	BatchID       uuid.UUID `json:"batch_id"`
	AcceptedCount int       `json:"accepted_count"`
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = strings.TrimRight(endpoint, "/") }
}

// WithTimeout bounds each HTTP attempt, not the whole retry sequence.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.http.Timeout = d } }

func WithAPIKey(key string) Option { return func(c *Client) { c.apiKey = key } }

func WithMeasurementID(id string) Option { return func(c *Client) { c.measurementID = id } }

// WithIdentity attaches a visitor identity to every tracked event.
func WithIdentity(id *Identity) Option { return func(c *Client) { c.identity = id } }

// WithRetries retries track calls that fail with 429, 503 or a transport
// error, up to n more times with exponential backoff.
func WithRetries(n uint64) Option { return func(c *Client) { c.retries = n } }

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// Client is safe for concurrent use.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	retries  uint64
	identity *Identity
	// newBackOff is swapped in tests to keep retries fast.
	newBackOff func() backoff.BackOff

	mu            sync.RWMutex
	measurementID string
}

func New(opts ...Option) *Client {
	c := &Client{
		endpoint: DefaultEndpoint,
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetMeasurementID(id string) {
	c.mu.Lock()
	c.measurementID = id
	c.mu.Unlock()
}

func (c *Client) MeasurementID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.measurementID
}

type trackReq struct {
	MeasurementID string          `json:"measurement_id"`
	Event         json.RawMessage `json:"event"`
}

type trackBatchReq struct {
	MeasurementID string            `json:"measurement_id"`
	Events        []json.RawMessage `json:"events"`
}

// TrackEvent sends one event to /api/v1/collect.
func (c *Client) TrackEvent(ctx context.Context, ev domain.Event) (Receipt, error) {
	mid := c.MeasurementID()
	if mid == "" {
		return Receipt{}, ErrNoMeasurementID
	}
	raw, err := c.encode(ev)
	if err != nil {
		return Receipt{}, err
	}

	var out Receipt
	err = c.send(ctx, "/api/v1/collect", trackReq{MeasurementID: mid, Event: raw}, &out)
	return out, err
}

// TrackBatch sends events to /api/v1/collect/batch in one request. The server
// keeps the events it accepted before the first rejected one.
func (c *Client) TrackBatch(ctx context.Context, events []domain.Event) (BatchReceipt, error) {
	mid := c.MeasurementID()
	if mid == "" {
		return BatchReceipt{}, ErrNoMeasurementID
	}
	req := trackBatchReq{MeasurementID: mid, Events: make([]json.RawMessage, 0, len(events))}
	for i, ev := range events {
		raw, err := c.encode(ev)
		if err != nil {
			return BatchReceipt{}, fmt.Errorf("event %d: %w", i, err)
		}
		req.Events = append(req.Events, raw)
	}

	var out BatchReceipt
	err := c.send(ctx, "/api/v1/collect/batch", req, &out)
	return out, err
}

func (c *Client) encode(ev domain.Event) (json.RawMessage, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: event is required", domain.ErrInvalidEvent)
	}
	c.identity.apply(ev.Params())
	return domain.MarshalEvent(ev)
}

func (c *Client) send(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if c.retries == 0 {
		return c.do(ctx, http.MethodPost, path, payload, out)
	}
	op := func() error {
		err := c.do(ctx, http.MethodPost, path, payload, out)
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && !apiErr.Temporary():
			return backoff.Permanent(err)
		case errors.Is(err, errBadResponse):
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.retries), ctx)
	return backoff.Retry(op, b)
}

// Metrics fetches the collector counters.
func (c *Client) Metrics(ctx context.Context) (collector.Snapshot, error) {
	var s collector.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/metrics", nil, &s)
	return s, err
}

// GetEvent returns nil, nil when the server has no event with that id.
func (c *Client) GetEvent(ctx context.Context, id uuid.UUID) (*domain.EventEnvelope, error) {
	var env domain.EventEnvelope
	err := c.do(ctx, http.MethodGet, "/api/v1/events/"+id.String(), nil, &env)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &env, nil
}

// Ready returns nil when the server reports its storage reachable.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w from %s: %w", errBadResponse, path, err)
	}
	return nil
}
