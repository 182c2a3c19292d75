package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/analytics/internal/collector"
	"example.com/analytics/internal/config"
	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/privacy"
	"example.com/analytics/internal/queue"
	"example.com/analytics/internal/storage/memory"
	transporthttp "example.com/analytics/internal/transport/http"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewMeasurementID(t *testing.T) {
	re := regexp.MustCompile(`^G-[0-9A-F]{10}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newMeasurementID()
		assert.Regexp(t, re, id)
		seen[id] = true
	}
	assert.Len(t, seen, 100)
}

func TestSiteCreate(t *testing.T) {
	out, err := run(t, "site-create", "--name", "Shop", "--domain", "shop.example.com")

	require.NoError(t, err)
	assert.Contains(t, out, "Shop")
	assert.Regexp(t, `Measurement ID: G-[0-9A-F]{10}`, out)

	_, err = run(t, "site-create", "--name", "Shop")
	assert.Error(t, err)
}

type api struct {
	url   string
	store *memory.Store
}

// newAPI serves the real router over an in-memory store that requires key k1.
func newAPI(t *testing.T) *api {
	t.Helper()
	cfg := config.Default()
	cfg.Server.APIKeys = []string{"k1"}
	filter, err := privacy.New(cfg.Privacy)
	require.NoError(t, err)
	q := queue.New(queue.Unbounded, 0)
	t.Cleanup(q.Close)
	c := collector.New(filter, q, zap.NewNop())
	store := memory.New()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Collect(ctx, domain.NewEnvelope("G-1", &domain.SessionStart{})))
	}

	deps := &transporthttp.ServerDeps{Cfg: cfg.Server, Collector: c, Events: store, Ready: store, Log: zap.NewNop()}
	srv := httptest.NewServer(deps.Router())
	t.Cleanup(srv.Close)
	return &api{url: srv.URL, store: store}
}

func TestStatus(t *testing.T) {
	srv := newAPI(t)

	out, err := run(t, "status", "--addr", srv.url, "--api-key", "k1")

	require.NoError(t, err)
	assert.Contains(t, out, "Status:            ready")
	assert.Contains(t, out, "Events collected:  3")
	assert.Contains(t, out, "Abandoned:         0")

	_, err = run(t, "status", "--addr", srv.url, "--api-key", "bad")
	assert.ErrorContains(t, err, "unexpected status 401")

	_, err = run(t, "status", "--addr", "http://127.0.0.1:1")
	assert.ErrorContains(t, err, "server unreachable")
}

func TestGetEvent(t *testing.T) {
	srv := newAPI(t)
	stored := domain.NewEnvelope("G-1", &domain.Search{SearchTerm: "lamp"})
	require.NoError(t, srv.store.StoreEvents(context.Background(), []*domain.EventEnvelope{stored}))

	out, err := run(t, "get-event", stored.EventID.String(), "--addr", srv.url, "--api-key", "k1")
	require.NoError(t, err)
	assert.Contains(t, out, stored.EventID.String())
	assert.Contains(t, out, `"search_term": "lamp"`)

	_, err = run(t, "get-event", uuid.NewString(), "--addr", srv.url, "--api-key", "k1")
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, "get-event", "nope", "--addr", srv.url)
	assert.ErrorContains(t, err, "invalid event id")
}

func TestNotAvailable(t *testing.T) {
	out, err := run(t, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "report is not yet available")
}

func TestRetentionSweep(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("STORAGE_SQLITE_PATH", t.TempDir()+"/events.db")
	t.Setenv("PRIVACY_DATA_RETENTION_DAYS", "30")

	out, err := run(t, "retention-sweep")

	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 0 events older than 30 days")
}
