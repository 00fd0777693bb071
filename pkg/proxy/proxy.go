// Package proxy implements the key-injection endpoint that push-stream
// connections talk to. A client posts a provider-neutral request; the proxy
// looks up the provider's secret in process configuration, forwards the
// request upstream and streams the raw response body back unchanged.
package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	streamerrors "github.com/ajitpratap0/chunkstream-go/pkg/errors"
	"github.com/ajitpratap0/chunkstream-go/pkg/logging"
	"github.com/ajitpratap0/chunkstream-go/pkg/observability"
	"github.com/ajitpratap0/chunkstream-go/pkg/provider"
)

const (
	// StreamPath is where push-stream connections post their payload.
	StreamPath = "/api/stream"
	// HealthPath reports liveness.
	HealthPath = "/healthz"

	defaultMaxBodyBytes = 1 << 20
	copyBufferSize      = 4096
	maxUpstreamExcerpt  = 512
)

// SecretSource looks up provider secrets by configuration key.
type SecretSource interface {
	LookupSecret(key string) (string, bool)
}

// SecretSourceFunc adapts a function to SecretSource.
type SecretSourceFunc func(key string) (string, bool)

func (f SecretSourceFunc) LookupSecret(key string) (string, bool) {
	return f(key)
}

// EnvSecrets reads secrets from the process environment.
var EnvSecrets SecretSource = SecretSourceFunc(os.LookupEnv)

// Request is the body accepted on StreamPath.
type Request struct {
	Provider string             `json:"provider"`
	Messages []provider.Message `json:"messages"`
	Model    string             `json:"model,omitempty"`
}

// Config configures the proxy handler.
type Config struct {
	Registry     *provider.Registry
	Secrets      SecretSource
	Client       *http.Client
	Logger       logging.Logger
	Metrics      *observability.ProxyMetrics
	Tracing      *observability.TracingProvider
	MaxBodyBytes int64
}

// Handler serves the proxy routes.
type Handler struct {
	registry     *provider.Registry
	secrets      SecretSource
	client       *http.Client
	logger       logging.Logger
	metrics      *observability.ProxyMetrics
	tracing      *observability.TracingProvider
	maxBodyBytes int64
	router       chi.Router
}

// New creates a proxy handler. Registry defaults to the built-in providers,
// Secrets to the environment and Client to one without a timeout.
func New(cfg Config) *Handler {
	h := &Handler{
		registry:     cfg.Registry,
		secrets:      cfg.Secrets,
		client:       cfg.Client,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		tracing:      cfg.Tracing,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	if h.registry == nil {
		h.registry = provider.DefaultRegistry()
	}
	if h.secrets == nil {
		h.secrets = EnvSecrets
	}
	if h.client == nil {
		h.client = &http.Client{}
	}
	if h.logger == nil {
		h.logger = logging.GetGlobalLogger()
	}
	h.logger = h.logger.WithFields(logging.Component("proxy"))
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(logging.HTTPMiddleware(h.logger))
	if h.tracing != nil {
		r.Use(observability.TracingMiddleware(h.tracing))
	}
	r.Get(HealthPath, h.handleHealth)
	r.Post(StreamPath, h.handleStream)
	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": h.registry.Names(),
	})
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.WithContext(ctx)

	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.fail(w, r, "", streamerrors.WrapError(err, streamerrors.CodeMissingPayload,
			"request body must be a JSON object with provider and messages",
			streamerrors.CategoryUsage, streamerrors.SeverityError))
		return
	}

	adapter, err := h.registry.Lookup(req.Provider)
	if err != nil {
		// unknown names stay out of metric labels
		h.fail(w, r, "", err)
		return
	}

	secret, ok := h.secrets.LookupSecret(adapter.SecretEnv)
	if !ok || secret == "" {
		h.fail(w, r, req.Provider, streamerrors.ProviderNotConfigured(adapter.Name, adapter.SecretEnv))
		return
	}

	upstreamReq, err := adapter.NewRequest(ctx, secret, req.Messages, req.Model)
	if err != nil {
		h.fail(w, r, req.Provider, err)
		return
	}
	if h.tracing != nil {
		var span trace.Span
		ctx, span = h.tracing.StartOperationSpan(ctx, "proxy.upstream", trace.SpanKindClient,
			attribute.String("provider", adapter.Name),
			attribute.String("model", adapter.Model(req.Model)),
		)
		defer span.End()
		upstreamReq = upstreamReq.WithContext(ctx)
		h.tracing.Inject(ctx, upstreamReq.Header)
	}

	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		observability.RecordError(ctx, err)
		h.fail(w, r, req.Provider, streamerrors.UpstreamError(adapter.Name, 0, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamExcerpt))
		upstreamErr := streamerrors.UpstreamError(adapter.Name, resp.StatusCode, nil)
		if len(excerpt) > 0 {
			upstreamErr = upstreamErr.WithDetail(string(excerpt))
		}
		observability.RecordError(ctx, upstreamErr)
		h.fail(w, r, req.Provider, upstreamErr)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	h.recordRequest(req.Provider, http.StatusOK)

	var streamDone func(int64)
	if h.metrics != nil {
		streamDone = h.metrics.StreamStarted(adapter.Name)
	}

	start := time.Now()
	written, copyErr := copyFlushing(w, resp.Body)
	if streamDone != nil {
		streamDone(written)
	}

	fields := []logging.Field{
		logging.String("provider", adapter.Name),
		logging.Int64("bytes", written),
		logging.Duration("duration", time.Since(start)),
	}
	switch {
	case copyErr == nil:
		logger.Debug("Upstream stream finished", fields...)
	case ctx.Err() != nil:
		logger.Debug("Client went away mid-stream", fields...)
	default:
		observability.RecordError(ctx, copyErr)
		logger.WithError(copyErr).Warn("Upstream stream broke", fields...)
	}
}

// copyFlushing copies src to w, flushing after every read so chunks reach
// the client as they arrive.
func copyFlushing(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)

	var written int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return written, ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, providerName string, err error) {
	status := streamerrors.HTTPStatusFor(err)
	h.recordRequest(providerName, status)

	logger := h.logger.WithContext(r.Context()).WithError(err).
		WithFields(logging.String("provider", providerName), logging.Int("status", status))
	switch {
	case status < http.StatusInternalServerError:
		logger.Info("Stream request rejected")
	case streamerrors.IsCategory(err, streamerrors.CategoryProvider):
		logger.Warn("Provider request failed")
	default:
		logger.Error("Stream request failed")
	}

	body := map[string]any{"message": err.Error()}
	if se, ok := streamerrors.AsStreamError(err); ok {
		body = se.ToJSON()
		delete(body, "cause")
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func (h *Handler) recordRequest(providerName string, status int) {
	if h.metrics != nil {
		h.metrics.RecordRequest(providerName, status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
