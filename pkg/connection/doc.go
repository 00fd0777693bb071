// Package connection provides a single abstraction over live, text-chunk
// delivering connections.
//
// Two transport variants implement Connection:
//
//   - KindDuplex: a persistent WebSocket. Callers may Send; server-pushed
//     messages reach the handler. Unexpected drops are retried with a linear,
//     capped backoff until the retry ceiling is reached.
//   - KindPushStream: one POST carrying the request payload, whose chunked
//     response body is forwarded to the handler. When the body ends the same
//     payload is posted again after the backoff delay.
//
// Both variants share the Health state machine and the immutable State record
// it lives in, and both take their transport primitive (SocketDialer or
// StreamFetcher) through Config so tests can substitute fakes.
//
// Usage:
//
//	conn := connection.New(connection.KindPushStream, "http://localhost:8080/api/stream")
//	conn.OnMessage(func(chunk string) { fmt.Print(chunk) })
//	if err := conn.Connect(ctx, `{"provider":"openai","messages":[...]}`); err != nil {
//		return err
//	}
//	defer conn.Close()
//
// Only the first Connect reports transport failures. Later drops are handled
// by the reconnect loop and become visible through Health.
package connection
