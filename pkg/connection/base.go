package connection

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	streamerrors "github.com/ajitpratap0/chunkstream-go/pkg/errors"
	"github.com/ajitpratap0/chunkstream-go/pkg/logging"
)

const (
	defaultBackoffStep      = time.Second
	defaultMaxBackoff       = 30 * time.Second
	defaultDuplexMaxRetries = 5

	instrumentationName = "github.com/ajitpratap0/chunkstream-go/pkg/connection"
)

// base holds what both transport variants share: the state record, the
// handler, the attempt generation and the reconnect timer, all guarded by mu.
//
// Every attempt runs under its own generation. Close and each new attempt
// bump gen, so events carrying an older generation are stale and dropped.
type base struct {
	kind          Kind
	id            string
	url           string
	header        http.Header
	backoff       BackoffPolicy
	autoReconnect bool
	logger        logging.Logger
	observer      Observer
	tracer        trace.Tracer

	mu      sync.Mutex
	state   State
	handler MessageHandler
	gen     uint64
	cancel  context.CancelFunc
	timer   *time.Timer

	// current mirrors gen for the last check before a handler call, which
	// happens outside mu.
	current atomic.Uint64
}

func newBase(cfg Config) *base {
	id := uuid.NewString()

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return &base{
		kind:          cfg.Kind,
		id:            id,
		url:           cfg.URL,
		header:        cfg.Header.Clone(),
		backoff:       cfg.Backoff,
		autoReconnect: cfg.AutoReconnect,
		logger: logger.WithFields(
			logging.Component("connection"),
			logging.String("kind", string(cfg.Kind)),
			logging.String("url", cfg.URL),
			logging.ConnectionID(id),
		),
		observer: observer,
		tracer:   otel.Tracer(instrumentationName),
		state:    InitialState(cfg.AutoReconnect),
	}
}

// OnMessage registers the single message handler, replacing the previous one.
func (b *base) OnMessage(handler MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// Health reports the current lifecycle phase.
func (b *base) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Health
}

// State returns a snapshot of the state record.
func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Kind reports the transport variant.
func (b *base) Kind() Kind { return b.kind }

// URL returns the remote endpoint.
func (b *base) URL() string { return b.url }

// ID returns the connection identifier.
func (b *base) ID() string { return b.id }

func (b *base) setStateLocked(next State) {
	prev := b.state
	b.state = next
	if prev.Health != next.Health {
		b.observer.StateChanged(b.kind, prev.Health, next.Health)
		b.logger.Debug("Health changed",
			logging.String("from", prev.Health.String()),
			logging.String("to", next.Health.String()),
		)
	}
}

// beginAttemptLocked invalidates the previous attempt and returns the
// generation of the new one.
func (b *base) beginAttemptLocked() uint64 {
	b.stopTimerLocked()
	b.cancelLocked()
	return b.nextGenLocked()
}

func (b *base) nextGenLocked() uint64 {
	b.gen++
	b.current.Store(b.gen)
	return b.gen
}

func (b *base) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *base) cancelLocked() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// closeLocked is the shared part of Close: retries are disabled first, then
// every pending timer, handshake and read is invalidated.
func (b *base) closeLocked() {
	b.setStateLocked(b.state.Closed())
	b.stopTimerLocked()
	b.cancelLocked()
	b.nextGenLocked()
}

// deliver hands chunk to the current handler unless gen is stale. It reports
// whether the attempt is still current. The handler runs outside mu so it
// may call Send or Close.
func (b *base) deliver(gen uint64, chunk string) bool {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return false
	}
	handler := b.handler
	b.mu.Unlock()

	if handler == nil {
		return true
	}
	if b.current.Load() != gen {
		return false
	}
	b.observer.ChunkDelivered(b.kind, len(chunk))
	handler(chunk)
	return true
}

// scheduleRetryLocked arms the reconnect timer when the policy allows it.
// restart runs on the timer goroutine with the generation current at
// scheduling time and must re-check it.
func (b *base) scheduleRetryLocked(cause error, restart func(gen uint64)) {
	if !b.state.ShouldRetry {
		b.logger.Debug("Reconnect disabled, staying down", logging.String("health", b.state.Health.String()))
		return
	}

	if b.backoff.Exhausted(b.state.RetryCount) {
		exhausted := streamerrors.RetryExhausted(
			string(b.kind), b.url, b.state.RetryCount, b.backoff.Delay(b.state.RetryCount-1), cause,
		).WithContext(&streamerrors.Context{
			ConnectionID: b.id,
			Endpoint:     b.url,
			Component:    "connection",
			Operation:    "reconnect",
			Timestamp:    time.Now(),
		})
		b.logger.WithError(exhausted).Warn("Giving up reconnecting",
			logging.Int("attempts", b.state.RetryCount))
		b.observer.RetryExhausted(b.kind)
		return
	}

	delay := b.backoff.Delay(b.state.RetryCount)
	b.setStateLocked(b.state.RetryScheduled())
	attempt := b.state.RetryCount
	gen := b.gen

	b.observer.ReconnectScheduled(b.kind, attempt, delay)
	b.logger.Info("Reconnect scheduled",
		logging.Int("attempt", attempt),
		logging.Duration("delay", delay),
	)

	b.timer = time.AfterFunc(delay, func() { restart(gen) })
}

// takeRetryLocked claims a fired reconnect timer. It fails when the timer
// belongs to an invalidated attempt or retries were disabled meanwhile.
func (b *base) takeRetryLocked(gen uint64) (uint64, bool) {
	if gen != b.gen || !b.state.ShouldRetry {
		return 0, false
	}
	b.timer = nil
	b.setStateLocked(b.state.Connecting())
	return b.beginAttemptLocked(), true
}

func (b *base) startSpan(ctx context.Context, reconnect bool) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "connection.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("connection.kind", string(b.kind)),
			attribute.String("connection.id", b.id),
			attribute.String("connection.url", b.url),
			attribute.Bool("connection.reconnect", reconnect),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
