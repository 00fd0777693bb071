package connection

import (
	"context"
	"net/http"
	"net/url"

	streamerrors "github.com/ajitpratap0/chunkstream-go/pkg/errors"
	"github.com/ajitpratap0/chunkstream-go/pkg/logging"
)

// Kind selects the transport variant behind a Connection.
type Kind string

const (
	// KindDuplex is a persistent bidirectional socket (WebSocket).
	KindDuplex Kind = "duplex"
	// KindPushStream is a single POST whose chunked response body is consumed
	// until it ends.
	KindPushStream Kind = "push_stream"
)

// MessageHandler receives one text chunk, in arrival order.
type MessageHandler func(chunk string)

// Connection is the contract shared by every transport variant. Only duplex
// connections can send; use AsSender to reach that capability.
type Connection interface {
	// Connect opens the transport. Failures of this first attempt are
	// returned; later drops are handled by the reconnect policy.
	// Duplex connections ignore payload; push-stream connections require it.
	Connect(ctx context.Context, payload string) error

	// OnMessage registers the single message handler, replacing any
	// previously registered one.
	OnMessage(handler MessageHandler)

	// Close disables reconnects, cancels pending work and releases the
	// transport. It is idempotent and never fails.
	Close() error

	// Health reports the current lifecycle phase.
	Health() Health

	// State returns a snapshot of the full state record.
	State() State

	// Kind reports which transport variant this is.
	Kind() Kind

	// URL returns the remote endpoint.
	URL() string

	// ID returns the identifier used in logs and traces.
	ID() string
}

// Sender is the optional send capability of duplex connections.
type Sender interface {
	// Send writes one message. It fails with a NotConnected error unless the
	// connection is connected; data is never queued.
	Send(data string) error
}

// AsSender resolves the send capability from the connection's kind.
func AsSender(c Connection) (Sender, bool) {
	if c == nil || c.Kind() != KindDuplex {
		return nil, false
	}
	s, ok := c.(Sender)
	return s, ok
}

// Config holds everything needed to build a Connection. Only Kind and URL
// are required; NewConnection fills the rest from DefaultConfig.
type Config struct {
	Kind   Kind        `json:"kind"`
	URL    string      `json:"url"`
	Header http.Header `json:"header,omitempty"`

	// AutoReconnect is the initial value of State.ShouldRetry.
	AutoReconnect bool          `json:"auto_reconnect"`
	Backoff       BackoffPolicy `json:"backoff"`

	// ReadBufferSize bounds a single push-stream read.
	ReadBufferSize int `json:"read_buffer_size"`

	// Transport primitives. Tests substitute fakes here.
	Dialer  SocketDialer  `json:"-"`
	Fetcher StreamFetcher `json:"-"`

	Logger   logging.Logger `json:"-"`
	Observer Observer       `json:"-"`
}

const defaultReadBufferSize = 4096

// DefaultConfig returns the configuration used by New for kind.
// Duplex connections give up after five reconnects; push-stream connections
// restart indefinitely with the delay capped at thirty seconds.
func DefaultConfig(kind Kind) Config {
	cfg := Config{
		Kind:           kind,
		AutoReconnect:  true,
		ReadBufferSize: defaultReadBufferSize,
		Backoff: BackoffPolicy{
			Step:     defaultBackoffStep,
			MaxDelay: defaultMaxBackoff,
		},
	}

	switch kind {
	case KindDuplex:
		cfg.Backoff.MaxRetries = defaultDuplexMaxRetries
	case KindPushStream:
		cfg.Backoff.MaxRetries = UnlimitedRetries
	}
	return cfg
}

// NewConnection builds a connection from cfg. No I/O is performed until
// Connect is called. Unknown kinds yield an UnsupportedKind error.
func NewConnection(cfg Config) (Connection, error) {
	switch cfg.Kind {
	case KindDuplex, KindPushStream:
	default:
		return nil, streamerrors.UnsupportedKind(string(cfg.Kind))
	}

	if err := validateURL(cfg.Kind, cfg.URL); err != nil {
		return nil, err
	}
	if err := cfg.Backoff.Validate(); err != nil {
		return nil, err
	}

	b := newBase(cfg)
	if cfg.Kind == KindDuplex {
		dialer := cfg.Dialer
		if dialer == nil {
			dialer = NewWebSocketDialer(nil)
		}
		return newDuplexConnection(b, dialer), nil
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil)
	}
	bufSize := cfg.ReadBufferSize
	if bufSize <= 0 {
		bufSize = defaultReadBufferSize
	}
	return newPushStreamConnection(b, fetcher, bufSize), nil
}

// New builds a connection of kind for rawURL with default settings.
// It panics on an unknown kind or an unusable URL.
func New(kind Kind, rawURL string) Connection {
	cfg := DefaultConfig(kind)
	cfg.URL = rawURL
	return MustNewConnection(cfg)
}

// MustNewConnection is like NewConnection but panics on error.
func MustNewConnection(cfg Config) Connection {
	conn, err := NewConnection(cfg)
	if err != nil {
		panic(err)
	}
	return conn
}

func validateURL(kind Kind, rawURL string) error {
	if rawURL == "" {
		return errInvalidConfig("url", "must not be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return errInvalidConfig("url", err.Error())
	}

	switch kind {
	case KindDuplex:
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return errInvalidConfig("url", "duplex connections need a ws:// or wss:// URL")
		}
	case KindPushStream:
		if u.Scheme != "http" && u.Scheme != "https" {
			return errInvalidConfig("url", "push-stream connections need an http:// or https:// URL")
		}
	}
	return nil
}

func errInvalidConfig(parameter, reason string) error {
	return streamerrors.InvalidConfig(parameter, reason)
}
