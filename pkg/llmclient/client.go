// Package llmclient implements the LLM Client contract of spec §4.6: a
// streaming chat-completion wrapper over an orchestrator.LLMProvider (or
// orchestrator.StreamingLLMProvider when the backend supports it) that
// enforces the full-response wall-clock timeout while preserving any
// partial text already streamed.
package llmclient

import (
	"context"
	"time"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// responseTimeout is the §4.6 30s wall-clock bound for a complete response.
const responseTimeout = 30 * time.Second

// Result is what Complete returns: the accumulated text and whether the
// full response was received before responseTimeout or cancellation cut it
// short.
type Result struct {
	Text     string
	Degraded bool
}

// Client wraps an LLMProvider with the §4.6 timeout and cancellation
// policy, streaming deltas through onDelta when the provider supports it.
type Client struct {
	provider orchestrator.LLMProvider
}

func New(provider orchestrator.LLMProvider) *Client {
	return &Client{provider: provider}
}

// Complete drives one full turn. onDelta, if non-nil, is called with the
// accumulated text so far on every streamed increment; it is only invoked
// when the wrapped provider implements orchestrator.StreamingLLMProvider.
func (c *Client) Complete(ctx context.Context, messages []orchestrator.Message, onDelta func(textSoFar string, isFinal bool) error) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, responseTimeout)
	defer cancel()

	streaming, ok := c.provider.(orchestrator.StreamingLLMProvider)
	if !ok {
		text, err := c.provider.Complete(ctx, messages)
		if err != nil {
			return Result{Text: "", Degraded: true}, err
		}
		return Result{Text: text}, nil
	}

	var lastText string
	err := streaming.StreamComplete(ctx, messages, func(textSoFar string, isFinal bool) error {
		lastText = textSoFar
		if onDelta != nil {
			return onDelta(textSoFar, isFinal)
		}
		return nil
	})
	if err != nil {
		// A timeout or cancellation still preserves whatever text streamed
		// before the cutoff, per §4.6's degraded-turn clause.
		return Result{Text: lastText, Degraded: true}, err
	}
	return Result{Text: lastText}, nil
}
