package benchmarks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ajitpratap0/chunkstream-go/pkg/connection"
	"github.com/ajitpratap0/chunkstream-go/pkg/logging"
	"github.com/ajitpratap0/chunkstream-go/pkg/provider"
	"github.com/ajitpratap0/chunkstream-go/pkg/proxy"
	"github.com/ajitpratap0/chunkstream-go/pkg/transform"
)

const benchSecretKey = "BENCH_API_KEY"

// sseStream builds n chat-completion events followed by the terminator.
func sseStream(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "data: {\"choices\":[{\"delta\":{\"content\":\"token%d \"}}]}\n\n", i)
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

// BenchmarkTransform benchmarks chunk reduction to text
func BenchmarkTransform(b *testing.B) {
	event := `data: {"choices":[{"delta":{"content":"hello"}}]}`
	text := transform.EventText("choices", "0", "delta", "content")

	b.Run("EventText", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := text(event); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("EventBuffer/100", func(b *testing.B) {
		benchmarkEventBuffer(b, sseStream(100), 64)
	})

	b.Run("EventBuffer/1000", func(b *testing.B) {
		benchmarkEventBuffer(b, sseStream(1000), 64)
	})
}

// benchmarkEventBuffer feeds a stream in fixed-size pieces, the way a
// push-stream connection delivers it
func benchmarkEventBuffer(b *testing.B, stream string, pieceSize int) {
	b.SetBytes(int64(len(stream)))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		var buf transform.EventBuffer
		events := 0
		for off := 0; off < len(stream); off += pieceSize {
			end := min(off+pieceSize, len(stream))
			events += len(buf.Push(stream[off:end]))
		}
		if events == 0 {
			b.Fatal("no events reassembled")
		}
	}
}

// BenchmarkProxyStream benchmarks a full request through the proxy
func BenchmarkProxyStream(b *testing.B) {
	for _, n := range []int{10, 100} {
		b.Run(fmt.Sprintf("Events/%d", n), func(b *testing.B) {
			srv := newBenchProxy(b, sseStream(n))
			body := `{"provider":"bench","messages":[{"role":"user","content":"hi"}]}`

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				resp, err := http.Post(srv.URL+proxy.StreamPath, "application/json", strings.NewReader(body))
				if err != nil {
					b.Fatal(err)
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					b.Fatalf("status %d", resp.StatusCode)
				}
			}
		})
	}
}

// BenchmarkPushStreamConnection benchmarks a push-stream connection
// consuming a proxied stream until the server closes it
func BenchmarkPushStreamConnection(b *testing.B) {
	srv := newBenchProxy(b, sseStream(100))
	payload := `{"provider":"bench","messages":[{"role":"user","content":"hi"}]}`

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg := connection.DefaultConfig(connection.KindPushStream)
		cfg.URL = srv.URL + proxy.StreamPath
		cfg.AutoReconnect = false
		cfg.Logger = logging.NewNop()
		conn := connection.MustNewConnection(cfg)

		var (
			mu     sync.Mutex
			events int
			buf    transform.EventBuffer
		)
		conn.OnMessage(func(chunk string) {
			mu.Lock()
			events += len(buf.Push(chunk))
			mu.Unlock()
		})

		if err := conn.Connect(context.Background(), payload); err != nil {
			b.Fatal(err)
		}
		deadline := time.Now().Add(5 * time.Second)
		for conn.State().Live() {
			if time.Now().After(deadline) {
				b.Fatal("stream did not finish")
			}
			time.Sleep(time.Millisecond)
		}
		_ = conn.Close()

		mu.Lock()
		got := events
		mu.Unlock()
		if got != 101 {
			b.Fatalf("expected 101 events, got %d", got)
		}
	}
}

func newBenchProxy(b *testing.B, reply string) *httptest.Server {
	b.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, reply)
	}))
	b.Cleanup(upstream.Close)

	adapter, err := provider.DefaultRegistry().Lookup(provider.OpenAI)
	if err != nil {
		b.Fatal(err)
	}
	adapter.Name = "bench"
	adapter.URL = upstream.URL
	adapter.SecretEnv = benchSecretKey

	srv := httptest.NewServer(proxy.New(proxy.Config{
		Registry: provider.NewRegistry(adapter),
		Secrets: proxy.SecretSourceFunc(func(key string) (string, bool) {
			return "sk-bench", key == benchSecretKey
		}),
		Logger: logging.NewNop(),
	}))
	b.Cleanup(srv.Close)
	return srv
}
