package provider

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ajitpratap0/chunkstream-go/pkg/transform"
)

// Built-in provider names.
const (
	OpenAI     = "openai"
	Anthropic  = "anthropic"
	OpenRouter = "openrouter"
	Mistral    = "mistral"
	Groq       = "groq"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 1024
)

// Builtins returns the adapters shipped with the proxy.
func Builtins() []Adapter {
	return []Adapter{
		chatCompletions(OpenAI, "https://api.openai.com/v1/chat/completions", "OPENAI_API_KEY", "gpt-4o-mini"),
		{
			Name:         Anthropic,
			URL:          "https://api.anthropic.com/v1/messages",
			SecretEnv:    "ANTHROPIC_API_KEY",
			DefaultModel: "claude-3-5-sonnet-latest",
			Headers: func(secret string) http.Header {
				h := http.Header{}
				h.Set("x-api-key", secret)
				h.Set("anthropic-version", anthropicVersion)
				h.Set("Content-Type", "application/json")
				return h
			},
			BuildPayload: buildMessagesPayload,
			Transformer:  transform.EventText("delta", "text"),
		},
		chatCompletions(OpenRouter, "https://openrouter.ai/api/v1/chat/completions", "OPENROUTER_API_KEY", "openai/gpt-4o-mini"),
		chatCompletions(Mistral, "https://api.mistral.ai/v1/chat/completions", "MISTRAL_API_KEY", "mistral-small-latest"),
		chatCompletions(Groq, "https://api.groq.com/openai/v1/chat/completions", "GROQ_API_KEY", "llama-3.1-8b-instant"),
	}
}

// chatCompletions builds an adapter for an OpenAI-compatible endpoint.
func chatCompletions(name, url, secretEnv, model string) Adapter {
	return Adapter{
		Name:         name,
		URL:          url,
		SecretEnv:    secretEnv,
		DefaultModel: model,
		Headers:      bearerHeaders,
		BuildPayload: buildChatPayload,
		Transformer:  transform.EventText("choices", "0", "delta", "content"),
	}
}

func bearerHeaders(secret string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+secret)
	h.Set("Content-Type", "application/json")
	return h
}

type chatPayload struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

func buildChatPayload(messages []Message, model string) ([]byte, error) {
	return json.Marshal(chatPayload{Model: model, Messages: messages, Stream: true})
}

type messagesPayload struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	Stream    bool      `json:"stream"`
}

// buildMessagesPayload lifts system turns into the top-level system field;
// the messages API rejects them inside the conversation.
func buildMessagesPayload(messages []Message, model string) ([]byte, error) {
	var (
		system []string
		turns  = make([]Message, 0, len(messages))
	)
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return json.Marshal(messagesPayload{
		Model:     model,
		System:    strings.Join(system, "\n\n"),
		Messages:  turns,
		MaxTokens: anthropicMaxTokens,
		Stream:    true,
	})
}
