package llm

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// OpenAILLM wraps openai-go's Chat Completions API behind the
// orchestrator.LLMProvider contract.
type OpenAILLM struct {
	client oai.Client
	model  string
}

func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		client: oai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func toOpenAIMessages(messages []orchestrator.Message) []oai.ChatCompletionMessageParamUnion {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, oai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, oai.AssistantMessage(m.Content))
		default:
			out = append(out, oai.UserMessage(m.Content))
		}
	}
	return out
}

func (l *OpenAILLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(l.model),
		Messages: toOpenAIMessages(messages),
	}

	resp, err := l.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamComplete delivers the reply incrementally as Chat Completions
// streaming deltas arrive.
func (l *OpenAILLM) StreamComplete(ctx context.Context, messages []orchestrator.Message, cb orchestrator.StreamingLLMCallback) error {
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(l.model),
		Messages: toOpenAIMessages(messages),
	}

	stream := l.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var text string
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		text += delta
		if err := cb(text, false); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream failed: %w", err)
	}
	return cb(text, true)
}

func (l *OpenAILLM) Name() string {
	return "openai-llm"
}
