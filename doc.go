// Package chunkstream opens live, text-chunk-delivering connections without
// the caller knowing which transport carries them.
//
// A connection is either a persistent WebSocket (KindDuplex), which can also
// send, or an HTTP POST whose streamed response body is consumed chunk by
// chunk (KindPushStream). Both report a Health value, deliver chunks to a
// single handler in arrival order and reconnect on their own with a linear,
// capped backoff.
//
// # Overview
//
// The library consists of several sub-packages:
//
//   - pkg/connection: the Connection abstraction, health state and backoff
//   - pkg/transform: turning raw chunks into text or other values
//   - pkg/provider: adapters describing upstream chat providers
//   - pkg/proxy: the key-injecting streaming proxy push-stream clients talk to
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//   - pkg/errors and pkg/logging: structured errors and logs
//
// # Duplex connections
//
//	conn := chunkstream.New(chunkstream.KindDuplex, "ws://localhost:8081/ws")
//	conn.OnMessage(func(chunk string) { fmt.Print(chunk) })
//	if err := conn.Connect(ctx, ""); err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	if sender, ok := chunkstream.AsSender(conn); ok {
//	    _ = sender.Send("hello")
//	}
//
// # Push-stream connections
//
//	cfg := chunkstream.DefaultConfig(chunkstream.KindPushStream)
//	cfg.URL = "http://localhost:8080/api/stream"
//	cfg.AutoReconnect = false
//	conn := chunkstream.MustNewConnection(cfg)
//	conn.OnMessage(func(chunk string) { fmt.Print(chunk) })
//	err := conn.Connect(ctx, `{"provider":"openai","messages":[{"role":"user","content":"hi"}]}`)
//
// # Errors
//
// Only the first Connect surfaces transport failures. Later drops are
// retried in the background and show up through Health; a Send on a
// connection that is not connected fails with an error matching
// errors.ErrNotConnected.
package chunkstream
