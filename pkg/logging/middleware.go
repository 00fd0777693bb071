package logging

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPMiddleware logs the start and completion of every request. The request
// ID comes from X-Request-ID when present and is generated otherwise.
func HTTPMiddleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := RequestIDFromContext(r.Context())
			if requestID == "" {
				requestID = r.Header.Get("X-Request-ID")
			}
			if requestID == "" {
				requestID = uuid.New().String()
			}

			r = r.WithContext(ContextWithRequestID(r.Context(), requestID))

			reqLogger := logger.WithFields(
				String(requestKey, requestID),
				String("method", r.Method),
				String("path", r.URL.Path),
				String("remote_addr", r.RemoteAddr),
			)
			reqLogger.Debug("HTTP request started")

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			start := time.Now()
			next.ServeHTTP(rw, r)

			done := reqLogger.WithFields(
				Int("status", rw.statusCode),
				Int("bytes", rw.bytesWritten),
				Int("flushes", rw.flushes),
				Duration("duration", time.Since(start)),
			)
			if rw.statusCode >= http.StatusInternalServerError {
				done.Warn("HTTP request completed")
			} else {
				done.Info("HTTP request completed")
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture response details.
// It forwards Flush so streamed responses keep working behind the middleware.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	flushes      int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(data)
	rw.bytesWritten += n
	return n, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		rw.flushes++
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestIDGenerator generates unique request IDs
type RequestIDGenerator interface {
	Generate() string
}

// UUIDGenerator generates UUID request IDs
type UUIDGenerator struct{}

// Generate generates a new UUID
func (g *UUIDGenerator) Generate() string {
	return uuid.New().String()
}

// PrefixedGenerator generates prefixed request IDs
type PrefixedGenerator struct {
	Prefix    string
	Generator RequestIDGenerator
}

// Generate generates a new prefixed ID
func (g *PrefixedGenerator) Generate() string {
	return fmt.Sprintf("%s-%s", g.Prefix, g.Generator.Generate())
}

// RequestIDMiddleware extracts or generates request IDs and echoes them in
// the X-Request-ID response header.
func RequestIDMiddleware(generator RequestIDGenerator) func(http.Handler) http.Handler {
	if generator == nil {
		generator = &UUIDGenerator{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = r.Header.Get("X-Correlation-ID")
			}
			if requestID == "" {
				requestID = generator.Generate()
			}

			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), requestID)))
		})
	}
}
