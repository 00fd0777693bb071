package connection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/text/encoding/unicode"
	xtransform "golang.org/x/text/transform"

	streamerrors "github.com/ajitpratap0/chunkstream-go/pkg/errors"
	"github.com/ajitpratap0/chunkstream-go/pkg/logging"
)

const maxErrorBodyExcerpt = 512

var errNoBody = errors.New("response has no readable body")

// PushStreamConnection posts one payload and streams the response body to the
// handler until it ends. When the body ends the same payload is posted again
// after the backoff delay, for as long as retries are enabled.
type PushStreamConnection struct {
	*base
	fetcher        StreamFetcher
	readBufferSize int

	// payload is guarded by base.mu.
	payload string
}

var _ Connection = (*PushStreamConnection)(nil)

func newPushStreamConnection(b *base, fetcher StreamFetcher, readBufferSize int) *PushStreamConnection {
	return &PushStreamConnection{base: b, fetcher: fetcher, readBufferSize: readBufferSize}
}

// Connect posts payload and starts streaming the response. An empty payload
// fails with a MissingPayload error before any network I/O. ctx bounds the
// handshake only; the stream lasts until it ends or Close is called.
// Calling Connect on a live connection replaces its stream.
func (c *PushStreamConnection) Connect(ctx context.Context, payload string) error {
	if payload == "" {
		return streamerrors.MissingPayload(string(c.kind))
	}

	c.mu.Lock()
	c.payload = payload
	c.setStateLocked(c.state.Reopened(c.autoReconnect).Connecting())
	gen := c.beginAttemptLocked()
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	return c.start(ctx, streamCtx, cancel, gen, false)
}

// start performs one request. handshakeCtx may abort the request until the
// response headers arrive; streamCtx covers the whole stream.
func (c *PushStreamConnection) start(handshakeCtx, streamCtx context.Context, cancel context.CancelFunc, gen uint64, restart bool) error {
	c.mu.Lock()
	payload := c.payload
	c.mu.Unlock()

	spanCtx, span := c.startSpan(streamCtx, restart)
	stop := context.AfterFunc(handshakeCtx, cancel)
	start := time.Now()
	resp, fetchErr := c.fetcher.Fetch(spanCtx, c.url, payload, c.header)
	took := time.Since(start)
	if !stop() && fetchErr == nil {
		// The caller gave up while the headers were arriving.
		_ = resp.Body.Close()
		fetchErr = handshakeCtx.Err()
	}

	err := c.checkResponse(resp, fetchErr)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if err == nil {
			_ = resp.Body.Close()
		}
		err = streamerrors.ConnectionClosed(string(c.kind), "connect")
		endSpan(span, err)
		return err
	}

	c.observer.ConnectFinished(c.kind, took, err)

	if err != nil {
		c.cancelLocked()
		c.setStateLocked(c.state.Failed())
		c.logger.WithError(err).Warn("Stream request failed", logging.Bool("restart", restart))
		if restart {
			c.scheduleRetryLocked(err, c.restart)
		}
		c.mu.Unlock()
		endSpan(span, err)
		if restart {
			return nil
		}
		return err
	}

	c.setStateLocked(c.state.Streaming())
	c.logger.Info("Stream opened",
		logging.Int("status", resp.StatusCode),
		logging.Duration("took", took),
	)
	c.mu.Unlock()
	endSpan(span, nil)

	go c.readLoop(streamCtx, resp.Body, gen)
	return nil
}

// checkResponse turns a fetch result into a TransportError when the attempt
// cannot stream. Non-success bodies are drained into a bounded excerpt.
func (c *PushStreamConnection) checkResponse(resp *http.Response, fetchErr error) error {
	if fetchErr != nil {
		return streamerrors.TransportError(string(c.kind), c.url, "connect", fetchErr)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var excerpt []byte
		if resp.Body != nil {
			excerpt, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyExcerpt))
			_ = resp.Body.Close()
		}
		return streamerrors.HTTPStatusError(string(c.kind), c.url, resp.StatusCode, string(excerpt))
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
		return streamerrors.TransportError(string(c.kind), c.url, "connect", errNoBody)
	}
	return nil
}

func (c *PushStreamConnection) restart(gen uint64) {
	c.mu.Lock()
	next, ok := c.takeRetryLocked(gen)
	if !ok {
		c.mu.Unlock()
		return
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	_ = c.start(streamCtx, streamCtx, cancel, next, true)
}

// readLoop decodes the body as UTF-8 and forwards each read as one chunk.
// Runes split across reads are held back until complete.
func (c *PushStreamConnection) readLoop(ctx context.Context, body io.ReadCloser, gen uint64) {
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer func() {
		stop()
		_ = body.Close()
	}()

	reader := xtransform.NewReader(body, unicode.UTF8.NewDecoder())
	buf := make([]byte, c.readBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if !c.deliver(gen, string(buf[:n])) {
				return
			}
		}
		if err != nil {
			c.ended(gen, err)
			return
		}
	}
}

// ended handles the end of a stream that was not stopped by Close.
func (c *PushStreamConnection) ended(gen uint64, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	c.cancelLocked()

	if errors.Is(cause, io.EOF) {
		c.setStateLocked(c.state.Ended())
		c.logger.Info("Stream ended")
	} else {
		c.setStateLocked(c.state.Failed())
		c.logger.WithError(cause).Warn("Stream interrupted")
	}
	c.scheduleRetryLocked(cause, c.restart)
}

// Close disables restarts, cancels the in-flight request and stops the read
// loop before it forwards another chunk. It is idempotent.
func (c *PushStreamConnection) Close() error {
	c.mu.Lock()
	live := c.state.Live() || c.timer != nil
	c.closeLocked()
	c.mu.Unlock()

	if live {
		c.logger.Info("Connection closed")
	}
	return nil
}
