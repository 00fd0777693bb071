// Package provider describes the upstream chat providers the proxy can
// forward to. An Adapter is plain data: where to send the request, how to
// authenticate it, how to shape the body and how to read text back out of
// the streamed response.
package provider

import (
	"bytes"
	"context"
	"net/http"
	"sort"
	"sync"

	streamerrors "github.com/ajitpratap0/chunkstream-go/pkg/errors"
	"github.com/ajitpratap0/chunkstream-go/pkg/transform"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Adapter maps the provider-neutral request onto one upstream API.
type Adapter struct {
	// Name is the identifier clients send in the "provider" field.
	Name string

	// URL is the upstream streaming endpoint.
	URL string

	// SecretEnv names the configuration key holding the API secret.
	SecretEnv string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// Headers builds the upstream request headers for secret.
	Headers func(secret string) http.Header

	// BuildPayload encodes the upstream request body.
	BuildPayload func(messages []Message, model string) ([]byte, error)

	// Transformer extracts the text increments from one streamed chunk.
	Transformer transform.Transformer[string]
}

// Model returns model, or the adapter's default when model is empty.
func (a Adapter) Model(model string) string {
	if model == "" {
		return a.DefaultModel
	}
	return model
}

// NewRequest builds the upstream streaming request for messages.
func (a Adapter) NewRequest(ctx context.Context, secret string, messages []Message, model string) (*http.Request, error) {
	if len(messages) == 0 {
		return nil, errNoMessages
	}

	body, err := a.BuildPayload(messages, a.Model(model))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for key, values := range a.Headers(secret) {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")
	return req, nil
}

var errNoMessages = streamerrors.NewError(
	streamerrors.CodeMissingPayload,
	"at least one message is required",
	streamerrors.CategoryUsage,
	streamerrors.SeverityError,
)

// Registry holds adapters by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry creates a registry holding every built-in adapter.
func DefaultRegistry() *Registry {
	return NewRegistry(Builtins()...)
}

// Register adds a, replacing any adapter with the same name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name] = a
}

// Lookup returns the adapter registered under name. Unknown names yield a
// ProviderUnknown error.
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return Adapter{}, streamerrors.ProviderUnknown(name)
	}
	return a, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SecretKeys returns the configuration keys of every registered adapter.
func (r *Registry) SecretKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		if a.SecretEnv != "" {
			keys = append(keys, a.SecretEnv)
		}
	}
	sort.Strings(keys)
	return keys
}
