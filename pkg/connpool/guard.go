package connpool

import (
	"context"
	"errors"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// GuardedASR wraps an orchestrator.ASRProvider so every Transcribe call
// competes for a pool slot. StreamTranscribe passes straight through: a
// streaming session holds its slot for its whole lifetime, not per call,
// so it is out of scope for this per-call guard.
type GuardedASR struct {
	orchestrator.ASRProvider
	pool *Pool
}

func NewGuardedASR(provider orchestrator.ASRProvider, pool *Pool) *GuardedASR {
	return &GuardedASR{ASRProvider: provider, pool: pool}
}

func (g *GuardedASR) Transcribe(ctx context.Context, audio []byte, lang orchestrator.Language) (string, error) {
	var text string
	err := g.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = g.ASRProvider.Transcribe(ctx, audio, lang)
		return err
	})
	return text, err
}

// StreamTranscribe forwards to the embedded provider when it supports
// streaming; GuardedASR's embedded interface field doesn't expose it by
// promotion since orchestrator.ASRProvider itself has no such method.
func (g *GuardedASR) StreamTranscribe(ctx context.Context, lang orchestrator.Language, cb orchestrator.StreamingASRCallback) (chan<- []byte, error) {
	streaming, ok := g.ASRProvider.(orchestrator.StreamingASRProvider)
	if !ok {
		return nil, orchestrator.Coded(orchestrator.KindInternal, errors.New("connpool: provider does not support streaming"))
	}
	return streaming.StreamTranscribe(ctx, lang, cb)
}

// GuardedLLM wraps an orchestrator.LLMProvider's Complete call with a pool
// slot. StreamComplete is not exposed: the embedded orchestrator.LLMProvider
// has no such method to promote, so a GuardedLLM does not satisfy
// orchestrator.StreamingLLMProvider even when the wrapped provider does.
type GuardedLLM struct {
	orchestrator.LLMProvider
	pool *Pool
}

func NewGuardedLLM(provider orchestrator.LLMProvider, pool *Pool) *GuardedLLM {
	return &GuardedLLM{LLMProvider: provider, pool: pool}
}

func (g *GuardedLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	var reply string
	err := g.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		reply, err = g.LLMProvider.Complete(ctx, messages)
		return err
	})
	return reply, err
}

// GuardedTTS wraps an orchestrator.TTSProvider's Synthesize/StreamSynthesize
// calls with a pool slot.
type GuardedTTS struct {
	orchestrator.TTSProvider
	pool *Pool
}

func NewGuardedTTS(provider orchestrator.TTSProvider, pool *Pool) *GuardedTTS {
	return &GuardedTTS{TTSProvider: provider, pool: pool}
}

func (g *GuardedTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion) ([]byte, error) {
	var audio []byte
	err := g.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		audio, err = g.TTSProvider.Synthesize(ctx, text, voice, lang, emotion)
		return err
	})
	return audio, err
}

func (g *GuardedTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion, onChunk func([]byte) error) error {
	return g.pool.Do(ctx, func(ctx context.Context) error {
		return g.TTSProvider.StreamSynthesize(ctx, text, voice, lang, emotion, onChunk)
	})
}
