package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	streamerrors "github.com/ajitpratap0/chunkstream-go/pkg/errors"
)

func newTestLogger(buf *bytes.Buffer) Logger {
	f := NewTextFormatter()
	f.DisableColors = true
	return New(buf, f)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetLevel(DebugLevel)

	logger.Debug("Debug message", String("key", "value"))
	logger.Info("Info message", Int("count", 42))
	logger.Warn("Warning message", Bool("flag", true))
	logger.Error("Error message", ErrorField(errors.New("test error")))

	output := buf.String()
	assert.Contains(t, output, "[DEBUG] Debug message")
	assert.Contains(t, output, "[INFO] Info message")
	assert.Contains(t, output, "[WARN] Warning message")
	assert.Contains(t, output, "[ERROR] Error message")
	assert.Contains(t, output, "key=value")
	assert.Contains(t, output, "count=42")
	assert.Contains(t, output, "flag=true")
	assert.Contains(t, output, `error="test error"`)
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetLevel(WarnLevel)

	logger.Debug("Debug message")
	logger.Info("Info message")
	logger.Warn("Warning message")
	logger.Error("Error message")

	output := buf.String()
	assert.NotContains(t, output, "Debug message")
	assert.NotContains(t, output, "Info message")
	assert.Contains(t, output, "Warning message")
	assert.Contains(t, output, "Error message")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewFormatter(t *testing.T) {
	f, err := NewFormatter("json")
	require.NoError(t, err)
	assert.IsType(t, &JSONFormatter{}, f)

	f, err = NewFormatter("")
	require.NoError(t, err)
	assert.IsType(t, &TextFormatter{}, f)

	_, err = NewFormatter("xml")
	assert.Error(t, err)
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf).WithFields(
		String("service", "chunkproxy"),
		String("version", "1.0.0"),
	)

	logger.Info("Test message", String("kind", "duplex"))

	output := buf.String()
	assert.Contains(t, output, "service=chunkproxy")
	assert.Contains(t, output, "version=1.0.0")
	assert.Contains(t, output, "kind=duplex")
}

func TestWithFieldsDoesNotLeakIntoParent(t *testing.T) {
	var buf bytes.Buffer
	parent := newTestLogger(&buf)
	_ = parent.WithFields(String("child", "yes"))

	parent.Info("parent message")
	assert.NotContains(t, buf.String(), "child=yes")
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithRequestID(context.Background(), "test-request-123")
	ctx = ContextWithConnectionID(ctx, "conn-7")

	newTestLogger(&buf).WithContext(ctx).Info("Test message")

	output := buf.String()
	assert.Contains(t, output, "[test-request-123]")
	assert.Contains(t, output, "<conn-7>")
	assert.NotContains(t, output, "connection_id=")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	err := streamerrors.NotConnected("duplex", "closed").
		WithContext(&streamerrors.Context{
			RequestID:    "req-123",
			ConnectionID: "conn-1",
			Component:    "connection",
			Operation:    "send",
		})

	newTestLogger(&buf).WithError(err).Error("Operation failed")

	output := buf.String()
	assert.Contains(t, output, "Operation failed !NotConnected/1001")
	assert.Contains(t, output, "error=")
	assert.Contains(t, output, "error_category=usage")
	assert.NotContains(t, output, "error_code=")
	assert.NotContains(t, output, "error_severity=")
	assert.Contains(t, output, "[req-123]")
	assert.Contains(t, output, "<conn-1>")
	assert.Contains(t, output, "connection/send:")
}

func TestWithPlainError(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf).WithError(errors.New("boom")).Error("failed")

	output := buf.String()
	assert.Contains(t, output, "error=boom")
	assert.NotContains(t, output, "error_code")
}

func TestTextFormatterConnectionEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf).WithFields(
		Component("connection"),
		String("kind", "push_stream"),
		String("url", "http://localhost:8080/api/stream"),
		ConnectionID("c-42"),
	)

	logger.Debug("Health changed", String("from", "connecting"), String("to", "connected"))

	output := buf.String()
	assert.Contains(t, output, "<c-42 push_stream> connection: Health changed (connecting -> connected)")
	assert.Contains(t, output, "url=http://localhost:8080/api/stream")
	assert.NotContains(t, output, "kind=")
	assert.NotContains(t, output, "from=")
}

func TestJSONFormatterGroupsConnectionAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter()).WithFields(
		String("kind", "duplex"),
		String("url", "ws://localhost:8081/ws"),
		ConnectionID("c-7"),
	)

	err := streamerrors.RetryExhausted("duplex", "ws://localhost:8081/ws", 5, time.Second, errors.New("refused"))
	logger.WithError(err).Warn("Giving up reconnecting", String("from", "error"), String("to", "closed"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))

	assert.Equal(t, map[string]interface{}{
		"id":   "c-7",
		"kind": "duplex",
		"url":  "ws://localhost:8081/ws",
	}, entry["connection"])
	assert.Equal(t, map[string]interface{}{"from": "error", "to": "closed"}, entry["transition"])

	coded, ok := entry["error"].(map[string]interface{})
	require.True(t, ok, "expected error object, got %v", entry["error"])
	assert.Equal(t, float64(streamerrors.CodeRetryExhausted), coded["code"])
	assert.Equal(t, "RetryExhausted", coded["name"])
	assert.Equal(t, "transport", coded["category"])
	assert.Contains(t, coded["message"], "gave up after 5 reconnect attempts")

	assert.NotContains(t, entry, "connection_id")
	assert.NotContains(t, entry, "error_code")
	assert.NotContains(t, entry, "kind")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	logger.Info("Test message",
		String("key", "value"),
		Int("count", 42),
		Bool("flag", true),
	)

	var entry map[string]interface{}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Test message", entry["message"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, float64(42), entry["count"])
	assert.Equal(t, true, entry["flag"])
	assert.Contains(t, entry, "timestamp")
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	logger.Info("Test fields",
		String("string", "value"),
		Int64("int64", 1<<40),
		Duration("delay", 1500*time.Millisecond),
		Time("time", time.Now()),
		Any("any", map[string]int{"a": 1, "b": 2}),
		ErrorField(errors.New("test error")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))

	assert.Equal(t, "value", entry["string"])
	assert.Equal(t, float64(1<<40), entry["int64"])
	assert.Equal(t, "test error", entry["error"])
	assert.Equal(t, float64(1500), entry["delay_ms"])
	assert.IsType(t, "", entry["time"])

	anyVal, ok := entry["any"].(map[string]interface{})
	require.True(t, ok, "expected any field as map")
	assert.Equal(t, float64(1), anyVal["a"])
}

func TestConcurrentChildLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.WithFields(Int("worker", i)).Info("tick")
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var entry map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(line), &entry))
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Info("ignored")
	assert.Equal(t, logger, logger.WithFields(String("a", "b")))
	assert.Equal(t, FatalLevel, logger.GetLevel())
}

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetLevel(DebugLevel)
	std := NewStdLogger(logger.WithFields(Component("http")), WarnLevel)

	std.Printf("http: TLS handshake error from %s", "127.0.0.1:5000")
	std.Printf("ERROR: accept failed")

	output := buf.String()
	assert.Contains(t, output, "[WARN] http: http: TLS handshake error")
	assert.Contains(t, output, "[ERROR] http: accept failed")
}

func TestGlobalLogger(t *testing.T) {
	previous := GetGlobalLogger()
	defer SetGlobalLogger(previous)

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetLevel(DebugLevel)
	SetGlobalLogger(logger)

	Debug("Debug message", String("key", "value"))
	Info("Info message")
	Warn("Warning message")
	LogError("Error message")

	output := buf.String()
	assert.Contains(t, output, "Debug message")
	assert.Contains(t, output, "Info message")
	assert.Contains(t, output, "Warning message")
	assert.Contains(t, output, "Error message")
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	var seen string
	handler := RequestIDMiddleware(nil)(HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("data: hi\n\n"))
		w.(http.Flusher).Flush()
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/stream", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
	assert.True(t, rec.Flushed)

	output := buf.String()
	assert.Contains(t, output, "HTTP request completed")
	assert.Contains(t, output, "status=202")
	assert.Contains(t, output, "flushes=1")
	assert.Contains(t, output, "[abc-123]")
}

func TestRequestIDMiddlewareGenerates(t *testing.T) {
	gen := &PrefixedGenerator{Prefix: "req", Generator: &UUIDGenerator{}}
	handler := RequestIDMiddleware(gen)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req-"))
}
