package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/chunkstream-go/pkg/connection"
)

func newTestConnectionMetrics(t *testing.T) (*ConnectionMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := NewConnectionMetrics(MetricsConfig{Registerer: reg})
	require.NoError(t, err)
	return m, reg
}

func TestConnectionMetricsStateGauge(t *testing.T) {
	m, _ := newTestConnectionMetrics(t)
	duplex := connection.KindDuplex

	m.StateChanged(duplex, connection.HealthClosed, connection.HealthConnecting)
	m.StateChanged(duplex, connection.HealthConnecting, connection.HealthConnected)
	m.StateChanged(connection.KindPushStream, connection.HealthClosed, connection.HealthConnecting)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.state.WithLabelValues("duplex", "connected")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.state.WithLabelValues("duplex", "connecting")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.state.WithLabelValues("push_stream", "connecting")))

	m.StateChanged(duplex, connection.HealthConnected, connection.HealthError)
	m.StateChanged(duplex, connection.HealthError, connection.HealthClosed)

	assert.Equal(t, float64(0), testutil.ToFloat64(m.state.WithLabelValues("duplex", "connected")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.state.WithLabelValues("duplex", "error")))
}

func TestConnectionMetricsCounters(t *testing.T) {
	m, reg := newTestConnectionMetrics(t)
	kind := connection.KindPushStream

	m.ConnectFinished(kind, 12*time.Millisecond, nil)
	m.ConnectFinished(kind, 3*time.Millisecond, errors.New("refused"))
	m.ReconnectScheduled(kind, 1, time.Second)
	m.ReconnectScheduled(kind, 2, 2*time.Second)
	m.RetryExhausted(kind)
	m.ChunkDelivered(kind, 5)
	m.ChunkDelivered(kind, 7)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.reconnects.WithLabelValues("push_stream")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.retryExhausted.WithLabelValues("push_stream")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.chunks.WithLabelValues("push_stream")))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.chunkBytes.WithLabelValues("push_stream")))

	count, err := testutil.GatherAndCount(reg, "chunkstream_connect_duration_milliseconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count) // one series per status
}

func TestConnectionMetricsAsObserver(t *testing.T) {
	m, _ := newTestConnectionMetrics(t)

	var obs connection.Observer = connection.MultiObserver{connection.NopObserver{}, m}
	obs.ChunkDelivered(connection.KindDuplex, 3)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.chunkBytes.WithLabelValues("duplex")))
}

func TestMetricsReuseRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := NewConnectionMetrics(MetricsConfig{Registerer: reg})
	require.NoError(t, err)
	second, err := NewConnectionMetrics(MetricsConfig{Registerer: reg})
	require.NoError(t, err)

	first.ChunkDelivered(connection.KindDuplex, 1)
	second.ChunkDelivered(connection.KindDuplex, 1)

	assert.Equal(t, float64(2), testutil.ToFloat64(first.chunks.WithLabelValues("duplex")))
}

func TestMetricsRegistrationConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chunkstream",
		Name:      "chunks_total",
		Help:      "conflicting definition",
	}))

	_, err := NewConnectionMetrics(MetricsConfig{Registerer: reg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register metrics")
}

func TestProxyMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewProxyMetrics(MetricsConfig{Registerer: reg, Namespace: "test"})
	require.NoError(t, err)

	m.RecordRequest("openai", http.StatusOK)
	m.RecordRequest("openai", http.StatusOK)
	m.RecordRequest("", http.StatusBadRequest)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requests.WithLabelValues("openai", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("unknown", "400")))

	done := m.StreamStarted("openai")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.inFlight))
	done(42)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.inFlight))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.streamBytes.WithLabelValues("openai")))

	expected := `
# HELP test_proxy_streams_in_flight Number of proxied streams currently open
# TYPE test_proxy_streams_in_flight gauge
test_proxy_streams_in_flight 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_proxy_streams_in_flight"))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewProxyMetrics(MetricsConfig{Registerer: reg})
	require.NoError(t, err)
	m.RecordRequest("groq", http.StatusBadGateway)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chunkstream_proxy_requests_total{provider="groq",status="502"} 1`)
}
