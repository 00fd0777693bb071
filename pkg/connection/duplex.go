package connection

import (
	"context"
	"time"

	streamerrors "github.com/ajitpratap0/chunkstream-go/pkg/errors"
	"github.com/ajitpratap0/chunkstream-go/pkg/logging"
)

// DuplexConnection is a persistent bidirectional connection. Inbound messages
// go to the registered handler; Send writes outbound messages. Unexpected
// drops are retried according to the backoff policy until it is exhausted.
type DuplexConnection struct {
	*base
	dialer SocketDialer

	// socket is guarded by base.mu.
	socket Socket
}

var (
	_ Connection = (*DuplexConnection)(nil)
	_ Sender     = (*DuplexConnection)(nil)
)

func newDuplexConnection(b *base, dialer SocketDialer) *DuplexConnection {
	return &DuplexConnection{base: b, dialer: dialer}
}

// Connect opens the socket. It returns immediately when already connected.
// Any other call starts a fresh attempt: a pending reconnect or in-flight
// handshake is superseded, retries are re-enabled and the counter is reset.
// The payload is ignored.
func (c *DuplexConnection) Connect(ctx context.Context, _ string) error {
	c.mu.Lock()
	if c.state.Health == HealthConnected {
		c.mu.Unlock()
		return nil
	}

	c.setStateLocked(c.state.Reopened(c.autoReconnect).Connecting())
	gen := c.beginAttemptLocked()
	attemptCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	return c.open(attemptCtx, gen, false)
}

// open dials and, on success, installs the socket and starts its read loop.
// A failed reconnect is treated as another drop; a failed first attempt is
// returned to the caller.
func (c *DuplexConnection) open(ctx context.Context, gen uint64, reconnect bool) error {
	spanCtx, span := c.startSpan(ctx, reconnect)
	start := time.Now()
	socket, dialErr := c.dialer.Dial(spanCtx, c.url, c.header)
	took := time.Since(start)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if socket != nil {
			_ = socket.Close()
		}
		err := streamerrors.ConnectionClosed(string(c.kind), "connect")
		endSpan(span, err)
		return err
	}

	c.cancelLocked()

	var err error
	if dialErr != nil {
		err = streamerrors.TransportError(string(c.kind), c.url, "connect", dialErr)
	}
	c.observer.ConnectFinished(c.kind, took, err)

	if err != nil {
		c.setStateLocked(c.state.Failed())
		c.logger.WithError(err).Warn("Connect failed", logging.Bool("reconnect", reconnect))
		if reconnect {
			c.scheduleRetryLocked(err, c.reconnect)
		}
		c.mu.Unlock()
		endSpan(span, err)
		return err
	}

	c.socket = socket
	c.setStateLocked(c.state.Opened())
	c.logger.Info("Connected", logging.Duration("took", took))
	c.mu.Unlock()
	endSpan(span, nil)

	go c.readLoop(socket, gen)
	return nil
}

func (c *DuplexConnection) reconnect(gen uint64) {
	c.mu.Lock()
	next, ok := c.takeRetryLocked(gen)
	if !ok {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	_ = c.open(ctx, next, true)
}

func (c *DuplexConnection) readLoop(socket Socket, gen uint64) {
	for {
		msg, err := socket.ReadMessage()
		if err != nil {
			c.dropped(socket, gen, err)
			return
		}
		if !c.deliver(gen, msg) {
			return
		}
	}
}

// dropped handles the end of a socket that was not closed by Close.
func (c *DuplexConnection) dropped(socket Socket, gen uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	c.socket = nil
	_ = socket.Close()

	if endedGracefully(cause) {
		c.setStateLocked(c.state.Ended())
		c.logger.Info("Remote closed the connection")
	} else {
		c.setStateLocked(c.state.Failed())
		c.logger.WithError(cause).Warn("Connection dropped")
	}
	c.scheduleRetryLocked(cause, c.reconnect)
}

// Send writes data as one text message. It fails with a NotConnected error
// unless the connection is connected.
func (c *DuplexConnection) Send(data string) error {
	c.mu.Lock()
	socket := c.socket
	health := c.state.Health
	c.mu.Unlock()

	if health != HealthConnected || socket == nil {
		return streamerrors.NotConnected(string(c.kind), health.String())
	}
	if err := socket.WriteMessage(data); err != nil {
		return streamerrors.TransportError(string(c.kind), c.url, "send", err)
	}
	return nil
}

// Close disables reconnects, stops any pending reconnect or handshake and
// closes the socket. It is safe to call at any time, any number of times.
func (c *DuplexConnection) Close() error {
	c.mu.Lock()
	c.closeLocked()
	socket := c.socket
	c.socket = nil
	c.mu.Unlock()

	if socket != nil {
		_ = socket.Close()
		c.logger.Info("Connection closed")
	}
	return nil
}
