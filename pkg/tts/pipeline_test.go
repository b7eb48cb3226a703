package tts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
	"github.com/gramyfied/eloquence-orchestrator/pkg/ttscache"
)

type fakeBackend struct {
	calls   int
	audio   []byte
	err     error
	aborted bool
}

func (f *fakeBackend) Synthesize(_ context.Context, text string, _ orchestrator.Voice, _ orchestrator.Language, _ orchestrator.Emotion) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.audio != nil {
		return f.audio, nil
	}
	return []byte(text), nil
}

func (f *fakeBackend) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion, onChunk func([]byte) error) error {
	audio, err := f.Synthesize(ctx, text, voice, lang, emotion)
	if err != nil {
		return err
	}
	return onChunk(audio)
}

func (f *fakeBackend) Abort() error { f.aborted = true; return nil }
func (f *fakeBackend) Name() string { return "fake" }

func newTestPipeline(backend orchestrator.TTSProvider) *Pipeline {
	cache := ttscache.NewLRUCache(16)
	metrics := NewMetrics(prometheus.NewRegistry())
	p := New(backend, cache, metrics, 16000)
	p.cacheTTL = time.Minute
	return p
}

func TestSegmentSplitsOnSentenceBoundaries(t *testing.T) {
	units := segment("Bonjour ! Comment allez-vous ? Très bien.")
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d: %v", len(units), units)
	}
	if units[0] != "Bonjour !" {
		t.Errorf("unexpected first unit: %q", units[0])
	}
}

func TestSegmentSplitsOverlongSentence(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "mot "
	}
	units := segment(long + ".")
	for _, u := range units {
		if len([]rune(u)) > maxUnitLen {
			t.Fatalf("unit exceeds cap: %d runes", len([]rune(u)))
		}
	}
	if len(units) < 2 {
		t.Fatalf("expected overlong sentence to split into multiple units, got %d", len(units))
	}
}

func TestStreamSynthesizeDeliversFramesAndCaches(t *testing.T) {
	backend := &fakeBackend{audio: make([]byte, 16000*2)} // 1s of 16kHz mono PCM
	p := newTestPipeline(backend)

	var total int
	err := p.StreamSynthesize(context.Background(), "Bonjour.", orchestrator.VoiceF1, orchestrator.LanguageFr, orchestrator.EmotionNeutre, func(chunk []byte) error {
		total += len(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != len(backend.audio) {
		t.Errorf("expected all audio delivered, got %d want %d", total, len(backend.audio))
	}
	if backend.calls != 1 {
		t.Fatalf("expected exactly one synthesis call, got %d", backend.calls)
	}

	// Second call for the same unit should hit the cache, not the backend.
	total = 0
	err = p.StreamSynthesize(context.Background(), "Bonjour.", orchestrator.VoiceF1, orchestrator.LanguageFr, orchestrator.EmotionNeutre, func(chunk []byte) error {
		total += len(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("expected cache hit to skip backend, calls = %d", backend.calls)
	}
}

func TestStreamSynthesizeReturnsErrorWhenEveryUnitFails(t *testing.T) {
	backend := &fakeBackend{err: errors.New("upstream down")}
	p := newTestPipeline(backend)

	var fellBack bool
	p.OnFallback = func(unit string, err error) { fellBack = true }

	err := p.StreamSynthesize(context.Background(), "Bonjour.", orchestrator.VoiceF1, orchestrator.LanguageFr, orchestrator.EmotionNeutre, func(chunk []byte) error {
		t.Fatal("onChunk should not be called when every unit fails")
		return nil
	})
	if err == nil {
		t.Fatal("expected an error when every unit fails")
	}
	if !fellBack {
		t.Error("expected OnFallback to fire")
	}
}

func TestAbortForwardsToBackend(t *testing.T) {
	backend := &fakeBackend{}
	p := newTestPipeline(backend)
	if err := p.Abort(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !backend.aborted {
		t.Error("expected Abort to forward to backend")
	}
}

func TestPrewarmPopulatesCache(t *testing.T) {
	backend := &fakeBackend{audio: []byte{1, 2, 3, 4}}
	p := newTestPipeline(backend)

	p.Prewarm(context.Background(), []string{"Bonjour, bienvenue."}, orchestrator.VoiceF1, orchestrator.LanguageFr, orchestrator.EmotionNeutre)
	if backend.calls == 0 {
		t.Fatal("expected prewarm to call the backend")
	}

	calls := backend.calls
	_, err := p.Synthesize(context.Background(), "Bonjour, bienvenue.", orchestrator.VoiceF1, orchestrator.LanguageFr, orchestrator.EmotionNeutre)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.calls != calls {
		t.Error("expected prewarmed phrase to be served from cache")
	}
}
