package connection

import (
	"context"
	"net/http"
	"strings"
)

// StreamFetcher issues the single request of a push-stream connection and
// returns the response whose body is then streamed. It is the injection point
// for push-stream connections; the body must stop yielding data once ctx is
// cancelled.
type StreamFetcher interface {
	Fetch(ctx context.Context, url, payload string, header http.Header) (*http.Response, error)
}

// StreamFetcherFunc adapts a function to StreamFetcher.
type StreamFetcherFunc func(ctx context.Context, url, payload string, header http.Header) (*http.Response, error)

// Fetch calls f.
func (f StreamFetcherFunc) Fetch(ctx context.Context, url, payload string, header http.Header) (*http.Response, error) {
	return f(ctx, url, payload, header)
}

// HTTPFetcher POSTs the payload with an *http.Client.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher wraps client. A nil client gets one without a timeout,
// since a stream may legitimately stay open for a long time.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{client: client}
}

// Fetch sends payload as a JSON POST asking for an event stream.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, payload string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(payload))
	if err != nil {
		return nil, err
	}

	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/event-stream")
	}
	req.Header.Set("Cache-Control", "no-cache")

	return f.client.Do(req)
}
