package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.PasteOp(OpCreate)
	m.View()
	m.Pruned(3)
	m.ObserveRequest("/api/new", http.MethodPost, 200, time.Millisecond)
}

func TestCounters(t *testing.T) {
	m := New()
	m.PasteOp(OpCreate)
	m.PasteOp(OpCreate)
	m.PasteOp(OpDelete)
	m.View()
	m.Pruned(4)
	m.Pruned(0)

	body := scrape(t, m)
	assert.Contains(t, body, `pasties_paste_operations_total{op="create"} 2`)
	assert.Contains(t, body, `pasties_paste_operations_total{op="delete"} 1`)
	assert.Contains(t, body, "pasties_paste_views_total 1")
	assert.Contains(t, body, "pasties_pastes_pruned_total 4")
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveRequest("/api/:url", http.MethodGet, 404, 5*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `pasties_http_request_duration_seconds_count{method="GET",route="/api/:url",status="404"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
