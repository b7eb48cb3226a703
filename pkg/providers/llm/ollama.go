package llm

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// OllamaLLM talks to a local Ollama instance over its chat API, for
// on-prem / offline deployments that cannot call out to a hosted LLM.
type OllamaLLM struct {
	client *api.Client
	model  string
}

func NewOllamaLLM(host string, model string) (*OllamaLLM, error) {
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	if model == "" {
		model = "llama3.1"
	}
	parsed, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &OllamaLLM{client: api.NewClient(parsed, nil), model: model}, nil
}

func toOllamaMessages(messages []orchestrator.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != "system" && role != "assistant" && role != "user" {
			role = "user"
		}
		out = append(out, api.Message{Role: role, Content: m.Content})
	}
	return out
}

func (l *OllamaLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	req := &api.ChatRequest{
		Model:    l.model,
		Messages: toOllamaMessages(messages),
		Stream:   boolPtr(false),
	}

	var reply string
	err := l.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	return reply, nil
}

func (l *OllamaLLM) StreamComplete(ctx context.Context, messages []orchestrator.Message, cb orchestrator.StreamingLLMCallback) error {
	req := &api.ChatRequest{
		Model:    l.model,
		Messages: toOllamaMessages(messages),
		Stream:   boolPtr(true),
	}

	var text string
	err := l.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		text += resp.Message.Content
		return cb(text, resp.Done)
	})
	if err != nil {
		return fmt.Errorf("ollama stream failed: %w", err)
	}
	return nil
}

func (l *OllamaLLM) Name() string {
	return "ollama-llm"
}

func boolPtr(b bool) *bool {
	return &b
}
