package connpool

import (
	"context"
	"testing"
	"time"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

type stubASR struct {
	calls int
}

func (s *stubASR) Transcribe(ctx context.Context, _ []byte, _ orchestrator.Language) (string, error) {
	s.calls++
	return "hi", nil
}
func (s *stubASR) Name() string { return "stub-asr" }

type stubStreamingASR struct {
	stubASR
	streamed bool
}

func (s *stubStreamingASR) StreamTranscribe(ctx context.Context, lang orchestrator.Language, cb orchestrator.StreamingASRCallback) (chan<- []byte, error) {
	s.streamed = true
	return make(chan []byte, 1), nil
}

func TestGuardedASRGatesTranscribe(t *testing.T) {
	provider := &stubASR{}
	g := NewGuardedASR(provider, New(1, time.Second))

	text, err := g.Transcribe(context.Background(), nil, orchestrator.LanguageFr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hi" {
		t.Fatalf("got %q", text)
	}
	if provider.calls != 1 {
		t.Fatalf("expected the underlying provider to be called once, got %d", provider.calls)
	}
	if g.Name() != "stub-asr" {
		t.Fatalf("expected Name() to be promoted from the embedded provider, got %q", g.Name())
	}
}

func TestGuardedASRForwardsStreamingWhenSupported(t *testing.T) {
	provider := &stubStreamingASR{}
	g := NewGuardedASR(provider, New(1, time.Second))

	if _, err := g.StreamTranscribe(context.Background(), orchestrator.LanguageFr, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !provider.streamed {
		t.Fatal("expected StreamTranscribe to reach the embedded provider")
	}
}

func TestGuardedASRRejectsStreamingWhenUnsupported(t *testing.T) {
	g := NewGuardedASR(&stubASR{}, New(1, time.Second))
	if _, err := g.StreamTranscribe(context.Background(), orchestrator.LanguageFr, nil); err == nil {
		t.Fatal("expected an error for a non-streaming provider")
	}
}

type stubLLM struct {
	calls int
	reply string
}

func (s *stubLLM) Complete(ctx context.Context, _ []orchestrator.Message) (string, error) {
	s.calls++
	return s.reply, nil
}
func (s *stubLLM) Name() string { return "stub-llm" }

func TestGuardedLLMGatesComplete(t *testing.T) {
	provider := &stubLLM{reply: "bonjour"}
	g := NewGuardedLLM(provider, New(1, time.Second))

	reply, err := g.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "bonjour" {
		t.Fatalf("got %q", reply)
	}
	if provider.calls != 1 {
		t.Fatalf("expected 1 call, got %d", provider.calls)
	}
}

type stubTTS struct {
	synthCalls  int
	streamCalls int
	aborted     bool
}

func (s *stubTTS) Synthesize(ctx context.Context, _ string, _ orchestrator.Voice, _ orchestrator.Language, _ orchestrator.Emotion) ([]byte, error) {
	s.synthCalls++
	return []byte("audio"), nil
}
func (s *stubTTS) StreamSynthesize(ctx context.Context, _ string, _ orchestrator.Voice, _ orchestrator.Language, _ orchestrator.Emotion, onChunk func([]byte) error) error {
	s.streamCalls++
	return onChunk([]byte("chunk"))
}
func (s *stubTTS) Abort() error { s.aborted = true; return nil }
func (s *stubTTS) Name() string { return "stub-tts" }

func TestGuardedTTSGatesSynthesizeAndStreamSynthesize(t *testing.T) {
	provider := &stubTTS{}
	g := NewGuardedTTS(provider, New(1, time.Second))

	if _, err := g.Synthesize(context.Background(), "hi", orchestrator.VoiceF1, orchestrator.LanguageFr, orchestrator.EmotionNeutre); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var gotChunk []byte
	if err := g.StreamSynthesize(context.Background(), "hi", orchestrator.VoiceF1, orchestrator.LanguageFr, orchestrator.EmotionNeutre, func(b []byte) error {
		gotChunk = b
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(gotChunk) != "chunk" {
		t.Fatalf("got %q", gotChunk)
	}
	if provider.synthCalls != 1 || provider.streamCalls != 1 {
		t.Fatalf("expected 1 call each, got synth=%d stream=%d", provider.synthCalls, provider.streamCalls)
	}

	// Abort is promoted straight through the embedded interface.
	if err := g.Abort(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !provider.aborted {
		t.Fatal("expected Abort to reach the embedded provider")
	}
}
