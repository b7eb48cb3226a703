// Package asr implements the ASR Client contract of spec §4.3: a thin,
// stateless wrapper around an orchestrator.ASRProvider that enforces the
// non-empty guard, the 100ms cancellation bound and the single-retry
// policy before handing a transcript back to the Pipeline.
package asr

import (
	"context"
	"errors"
	"time"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// minSegmentBytes and minSegmentDuration are the §4.3 non-empty guard:
// a segment below either bound fails fast without issuing an RPC.
const (
	minSegmentBytes    = 400
	minSegmentDuration = 200 * time.Millisecond

	// bytesPerMillisecond assumes 16-bit mono PCM at 16kHz, matching the
	// orchestrator's VAD and STT provider sample rate.
	bytesPerMillisecond = 32

	retryBackoff = 250 * time.Millisecond
	cancelBound  = 100 * time.Millisecond
)

// Client wraps an ASRProvider with the §4.3 contract. It is stateless and
// safe for concurrent use across sessions.
type Client struct {
	provider orchestrator.ASRProvider
}

func New(provider orchestrator.ASRProvider) *Client {
	return &Client{provider: provider}
}

// Name satisfies orchestrator.ASRProvider so a Client can itself be handed
// to NewService, putting the §4.3 guard/retry policy in front of every
// Transcribe call the Pipeline makes.
func (c *Client) Name() string { return c.provider.Name() }

// StreamTranscribe passes through to the wrapped provider's streaming
// session unmodified when it supports one: the §4.3 guard/retry policy is
// defined over completed segments, not a live streaming session, so it
// has nothing to add on this path. Pipeline only type-asserts for this
// method when it needs it, so its absence here would be equally correct;
// forwarding it keeps a streaming-capable backend streaming-capable even
// after being wrapped.
func (c *Client) StreamTranscribe(ctx context.Context, lang orchestrator.Language, cb orchestrator.StreamingASRCallback) (chan<- []byte, error) {
	streaming, ok := c.provider.(orchestrator.StreamingASRProvider)
	if !ok {
		return nil, orchestrator.Coded(orchestrator.KindInternal, errors.New("asr: provider does not support streaming"))
	}
	return streaming.StreamTranscribe(ctx, lang, cb)
}

// Transcribe enforces the non-empty guard, retries once on a transport-kind
// error, and honors ctx cancellation within the §4.3 100ms bound.
func (c *Client) Transcribe(ctx context.Context, segment []byte, lang orchestrator.Language) (string, error) {
	if len(segment) < minSegmentBytes || estimatedDuration(segment) < minSegmentDuration {
		return "", orchestrator.Coded(orchestrator.KindSegmentTooSmall, orchestrator.ErrSegmentTooSmall)
	}

	text, err := c.callWithCancelBound(ctx, segment, lang)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", orchestrator.Coded(orchestrator.KindCancelled, orchestrator.ErrCancelled)
	}
	if orchestrator.KindOf(err) != orchestrator.KindTransport {
		return "", err
	}

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return "", orchestrator.Coded(orchestrator.KindCancelled, orchestrator.ErrCancelled)
	}

	text, err = c.callWithCancelBound(ctx, segment, lang)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", orchestrator.Coded(orchestrator.KindCancelled, orchestrator.ErrCancelled)
		}
		return "", err
	}
	return text, nil
}

// callWithCancelBound races the provider call against ctx, returning as
// soon as ctx is done even if the provider's own cancellation takes
// longer to unwind underneath it.
func (c *Client) callWithCancelBound(ctx context.Context, segment []byte, lang orchestrator.Language) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := c.provider.Transcribe(ctx, segment, lang)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func estimatedDuration(segment []byte) time.Duration {
	return time.Duration(len(segment)/bytesPerMillisecond) * time.Millisecond
}
