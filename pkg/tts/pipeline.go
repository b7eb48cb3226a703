// Package tts implements the TTS Pipeline of spec §4.7: it sits between
// the orchestrator and a raw synthesis backend, adding segmentation,
// cache lookup/write-back, frame re-chunking and inter-frame pacing.
package tts

import (
	"context"
	"time"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
	"github.com/gramyfied/eloquence-orchestrator/pkg/ttscache"
)

// frameDuration is the §4.7 step-3 re-chunking bound: no frame pushed to
// the Transport spans more than this much audio.
const frameDuration = 100 * time.Millisecond

const defaultCacheTTL = 24 * time.Hour

// bytesPerSample assumes 16-bit mono PCM, matching pkg/audio's wav framing.
const bytesPerSample = 2

// OnFallback is invoked when a unit fails synthesis and is skipped; the
// caller typically turns this into a tts_fallback control frame.
type OnFallbackFunc func(unit string, err error)

// Pipeline wraps a raw TTSProvider backend with the §4.7 stages. It
// satisfies orchestrator.TTSProvider itself, so it drops into a
// Pipeline's tts field without any caller-side change.
type Pipeline struct {
	backend orchestrator.TTSProvider
	cache   ttscache.Cache
	metrics *Metrics

	sampleRate int
	cacheTTL   time.Duration

	OnFallback OnFallbackFunc
}

// New builds a TTS Pipeline. sampleRate is the PCM sample rate the backend
// is expected to emit (used only for frame re-chunking math).
func New(backend orchestrator.TTSProvider, cache ttscache.Cache, metrics *Metrics, sampleRate int) *Pipeline {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Pipeline{backend: backend, cache: cache, metrics: metrics, sampleRate: sampleRate, cacheTTL: defaultCacheTTL}
}

func (p *Pipeline) Name() string { return "tts-pipeline/" + p.backend.Name() }

// Synthesize returns the full concatenated audio for text, useful for
// pre-warming and for callers that don't need incremental frames.
func (p *Pipeline) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion) ([]byte, error) {
	var out []byte
	err := p.StreamSynthesize(ctx, text, voice, lang, emotion, func(chunk []byte) error {
		out = append(out, chunk...)
		return nil
	})
	return out, err
}

// StreamSynthesize runs the full §4.7 pipeline: segmentation, per-unit
// cache lookup, synthesis on miss, write-back, re-chunking and pacing.
// A per-unit failure is swallowed (OnFallback fires, the unit is skipped)
// unless every unit fails, in which case the last error is returned so the
// caller can mark the Turn degraded.
func (p *Pipeline) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion, onChunk func([]byte) error) error {
	units := segment(text)
	if len(units) == 0 {
		return nil
	}

	var lastErr error
	delivered := 0
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		audio, err := p.resolveUnit(ctx, unit, voice, lang, emotion)
		if err != nil {
			lastErr = err
			if p.OnFallback != nil {
				p.OnFallback(unit, err)
			}
			continue
		}
		delivered++
		if err := p.dispatch(ctx, audio, onChunk); err != nil {
			return err
		}
	}

	if delivered == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// resolveUnit satisfies steps 2-4: cache lookup, synthesis on miss, and
// write-back gated by the compression-worthwhile rule inside pkg/ttscache.
func (p *Pipeline) resolveUnit(ctx context.Context, unit string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion) ([]byte, error) {
	key := ttscache.Key(lang, voice, emotion, unit)

	if entry, ok := p.cache.Get(ctx, key); ok {
		p.metrics.cacheHits.Inc()
		return entry.Audio, nil
	}
	p.metrics.cacheMisses.Inc()

	start := time.Now()
	audio, err := p.backend.Synthesize(ctx, unit, voice, lang, emotion)
	p.metrics.synthesis.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	entry := ttscache.Entry{
		Audio:           audio,
		SampleRate:      p.sampleRate,
		Channels:        1,
		Duration:        pcmDuration(audio, p.sampleRate),
		Codec:           "pcm16",
		UncompressedLen: len(audio),
		CreatedAt:       time.Now(),
	}
	_ = p.cache.Put(ctx, key, entry, p.cacheTTL)

	return audio, nil
}

// dispatch re-chunks audio into ≤frameDuration frames and paces delivery
// to target real-time playback, per §4.7 step 5.
func (p *Pipeline) dispatch(ctx context.Context, audio []byte, onChunk func([]byte) error) error {
	frameBytes := frameByteSize(p.sampleRate)
	if frameBytes <= 0 {
		return onChunk(audio)
	}

	for offset := 0; offset < len(audio); offset += frameBytes {
		end := offset + frameBytes
		if end > len(audio) {
			end = len(audio)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onChunk(audio[offset:end]); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(frameDuration):
		}
	}
	return nil
}

func frameByteSize(sampleRate int) int {
	samplesPerFrame := int(float64(sampleRate) * frameDuration.Seconds())
	return samplesPerFrame * bytesPerSample
}

func pcmDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Abort forwards to the backend; the backend owns any in-flight network
// stream and is the only thing that can actually cancel it.
func (p *Pipeline) Abort() error { return p.backend.Abort() }

// Prewarm synthesizes each of the given phrases into the cache ahead of
// the first turn, per §4.7's pre-warming note.
func (p *Pipeline) Prewarm(ctx context.Context, phrases []string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion) {
	for _, phrase := range phrases {
		for _, unit := range segment(phrase) {
			_, _ = p.resolveUnit(ctx, unit, voice, lang, emotion)
		}
	}
}
