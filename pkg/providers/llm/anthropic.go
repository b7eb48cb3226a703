package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// AnthropicLLM wraps anthropic-sdk-go's Messages API behind the
// orchestrator.LLMProvider / StreamingLLMProvider contract.
type AnthropicLLM struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropicLLM(apiKey string, model string) *AnthropicLLM {
	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaude3_5SonnetLatest
	}
	return &AnthropicLLM{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  m,
	}
}

func toAnthropicParams(messages []orchestrator.Message, model anthropic.Model) anthropic.MessageNewParams {
	var system string
	msgs := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: 1024,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (l *AnthropicLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	msg, err := l.client.Messages.New(ctx, toAnthropicParams(messages, l.model))
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic response contained no text block")
}

// StreamComplete delivers the reply incrementally via Anthropic's SSE
// stream, invoking cb with the accumulated text after each delta.
func (l *AnthropicLLM) StreamComplete(ctx context.Context, messages []orchestrator.Message, cb orchestrator.StreamingLLMCallback) error {
	stream := l.client.Messages.NewStreaming(ctx, toAnthropicParams(messages, l.model))
	var acc anthropic.Message
	var text string

	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return fmt.Errorf("anthropic stream accumulation failed: %w", err)
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta.Delta.Text != "" {
				text += delta.Delta.Text
				if err := cb(text, false); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream failed: %w", err)
	}
	return cb(text, true)
}

func (l *AnthropicLLM) Name() string {
	return "anthropic-llm"
}
