package display

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metamac/internal/health"
)

func TestHandleStatusReportsLastUpdate(t *testing.T) {
	srv := NewStatusServer("127.0.0.1:0")
	srv.Update(testSuite(t), 0.4, health.Snapshot{CPUPercent: 12.5, MemUsedBytes: 2_000_000, MemTotal: 8_000_000})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "b", body["active"])
	assert.InDelta(t, 0.4, body["pcoll"], 1e-9)
	weights, ok := body["weights"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, weights, "a")
	assert.Contains(t, weights, "b")
}

func TestHandleStatusBeforeAnyUpdateReturnsEmptySnapshot(t *testing.T) {
	srv := NewStatusServer("127.0.0.1:0")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
