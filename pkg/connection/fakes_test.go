package connection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

var errFakeSocketClosed = errors.New("fake socket closed")

type frame struct {
	msg string
	err error
}

// fakeSocket is an in-memory Socket. Frames pushed with deliver/fail are
// returned by ReadMessage in order.
type fakeSocket struct {
	in     chan frame
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []string
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan frame, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) deliver(msgs ...string) {
	for _, m := range msgs {
		s.in <- frame{msg: m}
	}
}

func (s *fakeSocket) fail(err error) {
	s.in <- frame{err: err}
}

func (s *fakeSocket) ReadMessage() (string, error) {
	select {
	case f := <-s.in:
		return f.msg, f.err
	case <-s.closed:
		return "", errFakeSocketClosed
	}
}

func (s *fakeSocket) WriteMessage(data string) error {
	select {
	case <-s.closed:
		return errFakeSocketClosed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) sentMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// fakeDialer hands out sockets produced by next, counting every dial.
type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	sockets []*fakeSocket
	next    func(ctx context.Context, attempt int) (*fakeSocket, error)
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, _ http.Header) (Socket, error) {
	d.mu.Lock()
	d.dials++
	attempt := d.dials
	next := d.next
	d.mu.Unlock()

	var (
		s   *fakeSocket
		err error
	)
	if next != nil {
		s, err = next(ctx, attempt)
	} else {
		s = newFakeSocket()
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.sockets = append(d.sockets, s)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sockets) {
		return nil
	}
	return d.sockets[i]
}

// fakeStream is one response body the test writes into.
type fakeStream struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newFakeStream() *fakeStream {
	r, w := io.Pipe()
	return &fakeStream{r: r, w: w}
}

func (s *fakeStream) write(chunk string) error {
	_, err := s.w.Write([]byte(chunk))
	return err
}

func (s *fakeStream) end() {
	_ = s.w.Close()
}

func (s *fakeStream) breakWith(err error) {
	_ = s.w.CloseWithError(err)
}

// fakeFetcher records payloads and answers with responses produced by next.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads []string
	headers  []http.Header
	streams  []*fakeStream
	next     func(ctx context.Context, attempt int) (*http.Response, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string, payload string, header http.Header) (*http.Response, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	f.headers = append(f.headers, header)
	attempt := len(f.payloads)
	next := f.next
	f.mu.Unlock()

	if next != nil {
		return next(ctx, attempt)
	}
	stream := newFakeStream()
	f.mu.Lock()
	f.streams = append(f.streams, stream)
	f.mu.Unlock()
	return streamResponse(stream), nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeFetcher) stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.streams) {
		return nil
	}
	return f.streams[i]
}

func (f *fakeFetcher) allPayloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.payloads...)
}

func streamResponse(s *fakeStream) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       s.r,
	}
}

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// collector accumulates chunks delivered to a handler.
type collector struct {
	mu     sync.Mutex
	chunks []string
}

func (c *collector) handle(chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chunks...)
}

func (c *collector) joined() string {
	return strings.Join(c.all(), "")
}

type observed struct {
	transitions []string
	connects    int
	connectErrs int
	scheduled   []time.Duration
	exhausted   int
	chunkBytes  int
}

// recordingObserver keeps every event it sees.
type recordingObserver struct {
	mu  sync.Mutex
	obs observed
}

func (o *recordingObserver) StateChanged(_ Kind, from, to Health) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs.transitions = append(o.obs.transitions, from.String()+"->"+to.String())
}

func (o *recordingObserver) ConnectFinished(_ Kind, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs.connects++
	if err != nil {
		o.obs.connectErrs++
	}
}

func (o *recordingObserver) ReconnectScheduled(_ Kind, _ int, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs.scheduled = append(o.obs.scheduled, delay)
}

func (o *recordingObserver) RetryExhausted(Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs.exhausted++
}

func (o *recordingObserver) ChunkDelivered(_ Kind, size int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs.chunkBytes += size
}

func (o *recordingObserver) snapshot() observed {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := o.obs
	snap.transitions = append([]string(nil), o.obs.transitions...)
	snap.scheduled = append([]time.Duration(nil), o.obs.scheduled...)
	return snap
}
