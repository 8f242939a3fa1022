package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sejmwatch/sejmaudit/internal/api"
)

func testServer(status api.StatusFunc) *httptest.Server {
	reg := prometheus.NewRegistry()
	srv := api.NewServer("127.0.0.1:0", status, reg, zap.NewNop())
	return httptest.NewServer(srv.Handler())
}

func TestHealthz(t *testing.T) {
	ts := testServer(nil)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestStatusSnapshot(t *testing.T) {
	started := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	ts := testServer(func() api.Status {
		return api.Status{
			RunID:              "run-1",
			StartedAt:          started,
			Terms:              []int{9, 10},
			ProcessesDone:      42,
			AttachmentsScanned: 137,
			HighRisk:           3,
			SegmentsWritten:    2,
		}
	})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	var got api.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, []int{9, 10}, got.Terms)
	assert.Equal(t, int64(42), got.ProcessesDone)
	assert.Equal(t, int64(3), got.HighRisk)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "audit_test_total", Help: "test"})
	require.NoError(t, reg.Register(counter))
	counter.Inc()

	srv := api.NewServer("127.0.0.1:0", nil, reg, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
