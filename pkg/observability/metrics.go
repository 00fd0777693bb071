package observability

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ajitpratap0/chunkstream-go/pkg/connection"
)

// MetricsConfig configures the Prometheus collectors
type MetricsConfig struct {
	// Metric options
	Namespace        string    // Prometheus namespace (default: chunkstream)
	Subsystem        string    // Prometheus subsystem
	HistogramBuckets []float64 // Custom histogram buckets for latency in milliseconds

	// Labels to add to all metrics
	ConstLabels prometheus.Labels

	// Registerer receives the collectors (default: prometheus.DefaultRegisterer)
	Registerer prometheus.Registerer
}

func (c MetricsConfig) withDefaults() MetricsConfig {
	if c.Namespace == "" {
		c.Namespace = "chunkstream"
	}
	if c.HistogramBuckets == nil {
		// Default buckets for milliseconds
		c.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.DefaultRegisterer
	}
	return c
}

// ConnectionMetrics records connection lifecycle events. It implements
// connection.Observer and can be shared by any number of connections.
type ConnectionMetrics struct {
	state           *prometheus.GaugeVec
	connectDuration *prometheus.HistogramVec
	reconnects      *prometheus.CounterVec
	retryExhausted  *prometheus.CounterVec
	chunks          *prometheus.CounterVec
	chunkBytes      *prometheus.CounterVec
}

var _ connection.Observer = (*ConnectionMetrics)(nil)

// NewConnectionMetrics creates and registers the connection collectors
func NewConnectionMetrics(config MetricsConfig) (*ConnectionMetrics, error) {
	config = config.withDefaults()

	m := &ConnectionMetrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "connection_state",
				Help:        "Number of connections currently in each non-closed health state",
				ConstLabels: config.ConstLabels,
			},
			[]string{"kind", "state"},
		),
		connectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "connect_duration_milliseconds",
				Help:        "Duration of connection handshakes in milliseconds",
				Buckets:     config.HistogramBuckets,
				ConstLabels: config.ConstLabels,
			},
			[]string{"kind", "status"},
		),
		reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "reconnects_total",
				Help:        "Total number of scheduled reconnect attempts",
				ConstLabels: config.ConstLabels,
			},
			[]string{"kind"},
		),
		retryExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "retry_exhausted_total",
				Help:        "Total number of connections that gave up reconnecting",
				ConstLabels: config.ConstLabels,
			},
			[]string{"kind"},
		),
		chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "chunks_total",
				Help:        "Total number of chunks delivered to message handlers",
				ConstLabels: config.ConstLabels,
			},
			[]string{"kind"},
		),
		chunkBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "chunk_bytes_total",
				Help:        "Total number of bytes delivered to message handlers",
				ConstLabels: config.ConstLabels,
			},
			[]string{"kind"},
		),
	}

	reg := &registrar{r: config.Registerer}
	m.state = adopt(reg, m.state)
	m.connectDuration = adopt(reg, m.connectDuration)
	m.reconnects = adopt(reg, m.reconnects)
	m.retryExhausted = adopt(reg, m.retryExhausted)
	m.chunks = adopt(reg, m.chunks)
	m.chunkBytes = adopt(reg, m.chunkBytes)
	if reg.err != nil {
		return nil, reg.err
	}
	return m, nil
}

// StateChanged moves one connection between state gauges. Closed is the
// resting state and is not tracked.
func (m *ConnectionMetrics) StateChanged(kind connection.Kind, from, to connection.Health) {
	if from != connection.HealthClosed {
		m.state.WithLabelValues(string(kind), from.String()).Dec()
	}
	if to != connection.HealthClosed {
		m.state.WithLabelValues(string(kind), to.String()).Inc()
	}
}

// ConnectFinished records the handshake duration
func (m *ConnectionMetrics) ConnectFinished(kind connection.Kind, took time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.connectDuration.WithLabelValues(string(kind), status).Observe(float64(took.Milliseconds()))
}

// ReconnectScheduled counts a reconnect
func (m *ConnectionMetrics) ReconnectScheduled(kind connection.Kind, _ int, _ time.Duration) {
	m.reconnects.WithLabelValues(string(kind)).Inc()
}

// RetryExhausted counts a connection giving up
func (m *ConnectionMetrics) RetryExhausted(kind connection.Kind) {
	m.retryExhausted.WithLabelValues(string(kind)).Inc()
}

// ChunkDelivered counts a delivered chunk and its size
func (m *ConnectionMetrics) ChunkDelivered(kind connection.Kind, size int) {
	m.chunks.WithLabelValues(string(kind)).Inc()
	m.chunkBytes.WithLabelValues(string(kind)).Add(float64(size))
}

// ProxyMetrics records proxy request outcomes
type ProxyMetrics struct {
	requests       *prometheus.CounterVec
	streamDuration *prometheus.HistogramVec
	streamBytes    *prometheus.CounterVec
	inFlight       prometheus.Gauge
}

// NewProxyMetrics creates and registers the proxy collectors
func NewProxyMetrics(config MetricsConfig) (*ProxyMetrics, error) {
	config = config.withDefaults()

	m := &ProxyMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "proxy_requests_total",
				Help:        "Total number of proxied stream requests",
				ConstLabels: config.ConstLabels,
			},
			[]string{"provider", "status"},
		),
		streamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "proxy_stream_duration_milliseconds",
				Help:        "Duration of proxied streams in milliseconds",
				Buckets:     config.HistogramBuckets,
				ConstLabels: config.ConstLabels,
			},
			[]string{"provider"},
		),
		streamBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "proxy_stream_bytes_total",
				Help:        "Total number of upstream bytes streamed to clients",
				ConstLabels: config.ConstLabels,
			},
			[]string{"provider"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "proxy_streams_in_flight",
				Help:        "Number of proxied streams currently open",
				ConstLabels: config.ConstLabels,
			},
		),
	}

	reg := &registrar{r: config.Registerer}
	m.requests = adopt(reg, m.requests)
	m.streamDuration = adopt(reg, m.streamDuration)
	m.streamBytes = adopt(reg, m.streamBytes)
	m.inFlight = adopt(reg, m.inFlight)
	if reg.err != nil {
		return nil, reg.err
	}
	return m, nil
}

// RecordRequest counts a finished request by provider and HTTP status
func (m *ProxyMetrics) RecordRequest(provider string, status int) {
	if provider == "" {
		provider = "unknown"
	}
	m.requests.WithLabelValues(provider, strconv.Itoa(status)).Inc()
}

// StreamStarted marks a stream as open and returns the function that closes
// it, recording its duration and byte count.
func (m *ProxyMetrics) StreamStarted(provider string) func(bytes int64) {
	m.inFlight.Inc()
	start := time.Now()
	return func(bytes int64) {
		m.inFlight.Dec()
		m.streamDuration.WithLabelValues(provider).Observe(float64(time.Since(start).Milliseconds()))
		m.streamBytes.WithLabelValues(provider).Add(float64(bytes))
	}
}

// Handler serves the metrics gathered from g, or from the default gatherer
// when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// registrar registers collectors and remembers the first failure. A
// collector that is already registered is replaced by the existing one so
// repeated construction against one registry shares series.
type registrar struct {
	r   prometheus.Registerer
	err error
}

func adopt[C prometheus.Collector](reg *registrar, c C) C {
	if reg.err != nil {
		return c
	}
	if err := reg.r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		reg.err = fmt.Errorf("failed to register metrics: %w", err)
	}
	return c
}
