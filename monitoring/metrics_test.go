package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.ObservePrediction("http", OutcomeOK, 0.42, 3*time.Millisecond)
	m.ObservePrediction("http", OutcomeOK, 0.91, time.Millisecond)
	m.ObservePrediction("ws", OutcomeValidation, 0, time.Millisecond)
	m.ObserveReload(nil)
	m.ObserveReload(errors.New("corrupt"))
	m.ObserveReload(errors.New("corrupt"))
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.predictions.WithLabelValues("http", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictions.WithLabelValues("ws", OutcomeValidation)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reloads.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reloads.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 1, testutil.CollectAndCount(m.probabilities))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("POST", "/predict", "200")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sepsiswatch_http_requests_total{code="200",method="POST",route="/predict"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
