package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/memorymate/companion/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "text"})
}

func TestHTTPMiddleware(t *testing.T) {
	m := NewMetrics(true, false, testLogger())

	handler := m.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.TotalHTTPRequestsCounter))
	require.Contains(t, m.HTTPRequestsCounters, http.StatusNotFound)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.HTTPRequestsCounters[http.StatusNotFound]))
}

func TestObserveModelCall(t *testing.T) {
	m := NewMetrics(false, true, testLogger())

	m.ObserveModelCall("chat", 120*time.Millisecond, nil)
	m.ObserveModelCall("chat", 80*time.Millisecond, errors.New("boom"))
	m.ObserveModelCall("quiz", 200*time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ModelCallsCounter.WithLabelValues("chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCallErrorsCounter.WithLabelValues("chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCallsCounter.WithLabelValues("quiz")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ModelCallErrorsCounter.WithLabelValues("quiz")))
}

func TestIncrementStorageOperation(t *testing.T) {
	m := NewMetrics(false, true, testLogger())

	m.IncrementStorageOperation("set")
	m.IncrementStorageOperation("set")
	m.IncrementStorageOperation("get")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StorageOperationCounter.WithLabelValues("set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageOperationCounter.WithLabelValues("get")))
}

func TestDisabledCollectorsAreNoOps(t *testing.T) {
	m := NewMetrics(false, false, testLogger())

	// Must not panic when collectors are disabled.
	m.ObserveModelCall("chat", time.Second, nil)
	m.IncrementStorageOperation("get")
}
