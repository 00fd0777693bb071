// Package transform turns raw chunks delivered by a connection into domain
// values. Transformers are stateless and know nothing about transport state;
// callers apply them inside their message handler.
package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	streamerrors "github.com/ajitpratap0/chunkstream-go/pkg/errors"
)

// Transformer converts one raw chunk into a value of type T.
type Transformer[T any] func(raw string) (T, error)

// Extractor pulls a value out of a parsed JSON object.
type Extractor[T any] func(obj map[string]any) (T, error)

// DoneSentinel is the data payload that marks the end of an event stream.
const DoneSentinel = "[DONE]"

// Wrap returns a Transformer that parses the chunk as a JSON object and
// applies extractor to it. Parse failures and extractor errors both surface
// as MalformedChunk errors.
func Wrap[T any](extractor Extractor[T]) Transformer[T] {
	return func(raw string) (T, error) {
		var zero T

		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return zero, streamerrors.MalformedChunk(raw, "invalid JSON", err)
		}
		if obj == nil {
			return zero, streamerrors.MalformedChunk(raw, "not a JSON object", nil)
		}

		v, err := extractor(obj)
		if err != nil {
			if streamerrors.IsCode(err, streamerrors.CodeMalformedChunk) {
				return zero, err
			}
			return zero, streamerrors.MalformedChunk(raw, err.Error(), err)
		}
		return v, nil
	}
}

// WrapEvents returns a Transformer over a raw event-stream chunk. The chunk
// is split into its data payloads, comments and the [DONE] sentinel are
// skipped, and each payload goes through Wrap(extractor). A chunk with no
// data payloads yields an empty slice.
func WrapEvents[T any](extractor Extractor[T]) Transformer[[]T] {
	single := Wrap(extractor)
	return func(raw string) ([]T, error) {
		payloads := Events(raw)
		out := make([]T, 0, len(payloads))
		for _, p := range payloads {
			v, err := single(p)
			if err != nil {
				return out, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

// Events splits an event-stream chunk into its data payloads. Multi-line data
// fields within one event are joined with a newline. Lines starting with ':'
// and the [DONE] sentinel are dropped.
func Events(raw string) []string {
	var (
		payloads []string
		data     []string
	)

	flush := func() {
		if len(data) == 0 {
			return
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		if payload == DoneSentinel || payload == "" {
			return
		}
		payloads = append(payloads, payload)
	}

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	flush()

	return payloads
}

// Field returns an Extractor that walks path through nested objects and
// arrays and returns the value found there as T. Array elements are
// addressed by their decimal index.
func Field[T any](path ...string) Extractor[T] {
	return func(obj map[string]any) (T, error) {
		var zero T

		v, err := lookup(obj, path)
		if err != nil {
			return zero, err
		}
		t, ok := v.(T)
		if !ok {
			return zero, fmt.Errorf("field %s has type %T", strings.Join(path, "."), v)
		}
		return t, nil
	}
}

// OptionalText is like Field[string] but treats a missing or null leaf as the
// empty string. Role-only deltas and keep-alive objects carry no text.
func OptionalText(path ...string) Extractor[string] {
	return func(obj map[string]any) (string, error) {
		v, err := lookup(obj, path)
		if err != nil || v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("field %s has type %T", strings.Join(path, "."), v)
		}
		return s, nil
	}
}

// TextDelta returns a Transformer that extracts the text increment at path
// from a single JSON chunk.
func TextDelta(path ...string) Transformer[string] {
	return Wrap(OptionalText(path...))
}

// EventText returns a Transformer that concatenates the text increments at
// path from every data payload in an event-stream chunk.
func EventText(path ...string) Transformer[string] {
	events := WrapEvents(OptionalText(path...))
	return func(raw string) (string, error) {
		parts, err := events(raw)
		return strings.Join(parts, ""), err
	}
}

func lookup(obj map[string]any, path []string) (any, error) {
	var cur any = obj
	for i, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("field %s not found", strings.Join(path[:i+1], "."))
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("index %s out of range", strings.Join(path[:i+1], "."))
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("field %s is not a container", strings.Join(path[:i], "."))
		}
	}
	return cur, nil
}

// EventBuffer reassembles event-stream events from chunks that may split an
// event at any byte. It is the one stateful helper in this package; use one
// per connection and only from its message handler.
type EventBuffer struct {
	pending string
}

// Push appends chunk and returns every event completed by it, each with its
// terminating blank line. Incomplete trailing data is kept for the next call.
func (b *EventBuffer) Push(chunk string) []string {
	// Normalize after appending: a CRLF pair may straddle two chunks.
	b.pending = strings.ReplaceAll(b.pending+chunk, "\r\n", "\n")

	var events []string
	for {
		i := strings.Index(b.pending, "\n\n")
		if i < 0 {
			break
		}
		events = append(events, b.pending[:i+2])
		b.pending = b.pending[i+2:]
	}
	return events
}

// Flush returns whatever partial event is buffered and resets the buffer.
func (b *EventBuffer) Flush() string {
	rest := b.pending
	b.pending = ""
	return rest
}
