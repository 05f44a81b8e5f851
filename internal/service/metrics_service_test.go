package service

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/reports", http.StatusCreated, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/reports", http.StatusOK, 10*time.Millisecond)
	m.ObserveReportWrite("create", nil, 5*time.Millisecond)
	m.ObserveReportWrite("update", errors.New("rollback"), 5*time.Millisecond)
	m.RecordWebhook(true)
	m.RecordCacheOperation(false)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 15.0, snap.AverageRequestDurationMs, 0.01)
	assert.Equal(t, uint64(1), snap.ReportWrites)
	assert.Equal(t, uint64(1), snap.ReportWriteFailures)
	assert.Equal(t, uint64(1), snap.WebhooksDelivered)
	assert.Zero(t, snap.CacheHitRatio)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveReportWrite("import", nil, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `report_writes_total{operation="import",outcome="ok"} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveReportWrite("create", nil, time.Millisecond)
	m.RecordWebhook(false)
	assert.Zero(t, m.Snapshot().RequestsTotal)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
