package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"example.com/analytics/internal/collector"
	"example.com/analytics/internal/config"
	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/logger"
	"example.com/analytics/internal/storage"
)

// Collector is the pipeline ingress the handlers feed.
type Collector interface {
	Track(ctx context.Context, env *domain.EventEnvelope) (collector.Outcome, error)
	CollectBatch(ctx context.Context, batch domain.EventBatch) error
	Metrics() *collector.Metrics
}

// RealtimeCounter serves per-day counts for a measurement id.
type RealtimeCounter interface {
	Count(ctx context.Context, measurementID string, day time.Time) (int64, error)
	CountByType(ctx context.Context, measurementID string, day time.Time) (map[string]int64, error)
}

type ServerDeps struct {
	Cfg       config.Server
	Collector Collector
	Events    storage.Engine
	Ready     storage.Pinger
	Realtime  RealtimeCounter // optional
	Log       *zap.Logger
	Now       func() time.Time
}

func decodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		WriteProblem(w, http.StatusRequestEntityTooLarge, "payload too large",
			fmt.Sprintf("body exceeds %d bytes", tooBig.Limit), nil)
		return
	}
	WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if d.Ready != nil {
		if err := d.Ready.Ping(r.Context()); err != nil {
			d.Log.Warn("readiness check failed", zap.Error(err))
			WriteProblem(w, http.StatusServiceUnavailable, "not ready", "storage not reachable", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Collect ---

type collectReq struct {
	MeasurementID string          `json:"measurement_id"`
	Event         json.RawMessage `json:"event"`
}

type batchReq struct {
	MeasurementID string            `json:"measurement_id"`
	Events        []json.RawMessage `json:"events"`
}

// envelope decodes one event and applies request-level signals to it.
func (d *ServerDeps) envelope(r *http.Request, measurementID string, raw json.RawMessage) (*domain.EventEnvelope, error) {
	ev, err := domain.UnmarshalEvent(raw)
	if err != nil {
		return nil, err
	}
	p := ev.Params()
	if r.Header.Get("DNT") == "1" {
		p.DoNotTrack = true
	}
	if p.IPAddress == "" {
		p.IPAddress = clientIP(r, d.Cfg.TrustForwardedFor)
	}
	if p.UserAgent == "" {
		p.UserAgent = r.UserAgent()
	}
	return domain.NewEnvelope(measurementID, ev), nil
}

// clientIP reads X-Forwarded-For only when the server sits behind a proxy
// that sets it; otherwise any client could choose the stored address.
func clientIP(r *http.Request, trustForwarded bool) string {
	if fwd := r.Header.Get("X-Forwarded-For"); trustForwarded && fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (d *ServerDeps) HandleCollect(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req collectReq
	if err := decodeJSONStrict(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	env, err := d.envelope(r, req.MeasurementID, req.Event)
	if err != nil {
		WriteError(w, err)
		return
	}
	outcome, err := d.Collector.Track(r.Context(), env)
	if err != nil {
		logger.Get(r.Context()).Debug("collect rejected", zap.String("measurement_id", req.MeasurementID), zap.Error(err))
		WriteError(w, err)
		return
	}
	if outcome == collector.Suppressed {
		// Nothing is stored, so there is no id to hand out.
		writeJSON(w, http.StatusAccepted, map[string]string{"status": outcome.String()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": outcome.String(), "event_id": env.EventID.String()})
}

func (d *ServerDeps) HandleCollectBatch(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var req batchReq
	if err := decodeJSONStrict(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if limit := d.Cfg.MaxBatchEvents; limit > 0 && len(req.Events) > limit {
		WriteProblem(w, http.StatusBadRequest, "validation failed", "too many events",
			map[string][]string{"events": {"max " + strconv.Itoa(limit) + " events"}})
		return
	}

	envs := make([]*domain.EventEnvelope, 0, len(req.Events))
	for i, raw := range req.Events {
		env, err := d.envelope(r, req.MeasurementID, raw)
		if err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid event", err.Error(),
				map[string][]string{"events[" + strconv.Itoa(i) + "]": {err.Error()}})
			return
		}
		envs = append(envs, env)
	}

	batch := domain.NewBatch(envs)
	if err := d.Collector.CollectBatch(r.Context(), batch); err != nil {
		logger.Get(r.Context()).Debug("batch rejected", zap.String("batch_id", batch.BatchID.String()), zap.Error(err))
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":       batch.BatchID.String(),
		"accepted_count": batch.Size(),
	})
}

// --- Metrics ---

func (d *ServerDeps) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Collector.Metrics().Snapshot())
}

// --- Events ---

func (d *ServerDeps) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "id must be a uuid", nil)
		return
	}
	env, err := d.Events.GetEvent(r.Context(), id)
	if err != nil {
		logger.Get(r.Context()).Error("get event", zap.Stringer("event_id", id), zap.Error(err))
		WriteProblem(w, http.StatusInternalServerError, "query error", err.Error(), nil)
		return
	}
	if env == nil {
		WriteProblem(w, http.StatusNotFound, "not found", "no event with id "+id.String(), nil)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

// --- Realtime ---

type realtimeResp struct {
	MeasurementID string           `json:"measurement_id"`
	Date          string           `json:"date"`
	Count         int64            `json:"count"`
	ByType        map[string]int64 `json:"by_type,omitempty"`
}

func (d *ServerDeps) HandleGetRealtime(w http.ResponseWriter, r *http.Request) {
	mid := r.PathValue("measurement_id")
	day := d.Now().UTC()
	if s := r.URL.Query().Get("date"); s != "" {
		parsed, err := time.Parse(time.DateOnly, s)
		if err != nil {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "date must be YYYY-MM-DD", nil)
			return
		}
		day = parsed
	}

	ctx := r.Context()
	n, err := d.Realtime.Count(ctx, mid, day)
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, "query error", err.Error(), nil)
		return
	}
	byType, err := d.Realtime.CountByType(ctx, mid, day)
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, "query error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, realtimeResp{MeasurementID: mid, Date: day.Format(time.DateOnly), Count: n, ByType: byType})
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	auth := APIKeyAuth(d.Cfg.APIKeySet())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.HandleHealthz)
	mux.HandleFunc("GET /readyz", d.HandleReadyz)

	var collect http.Handler = http.HandlerFunc(d.HandleCollect)
	collect = BodyLimit(d.Cfg.MaxBodyBytes)(collect)
	collect = RequireJSON(collect)
	collect = auth(collect)
	mux.Handle("POST /api/v1/collect", collect)

	var collectBatch http.Handler = http.HandlerFunc(d.HandleCollectBatch)
	collectBatch = BodyLimit(d.Cfg.MaxBodyBytes)(collectBatch)
	collectBatch = RequireJSON(collectBatch)
	collectBatch = auth(collectBatch)
	mux.Handle("POST /api/v1/collect/batch", collectBatch)

	var getMetrics http.Handler = http.HandlerFunc(d.HandleGetMetrics)
	getMetrics = RateLimitPerMinute(d.Cfg.MetricsRatePerMin)(getMetrics)
	getMetrics = auth(getMetrics)
	mux.Handle("GET /api/v1/metrics", getMetrics)

	mux.Handle("GET /api/v1/events/{id}", auth(http.HandlerFunc(d.HandleGetEvent)))

	if d.Realtime != nil {
		mux.Handle("GET /api/v1/realtime/{measurement_id}", auth(http.HandlerFunc(d.HandleGetRealtime)))
	}

	var h http.Handler = mux
	h = RequestLogger(d.Log)(h)
	h = Recover(d.Log)(h)
	return otelhttp.NewHandler(h, "analytics-api")
}
