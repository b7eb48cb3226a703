package orchestrator

import "context"

// ASRProvider turns recorded speech into text. Implementations live under
// pkg/providers/stt; pkg/asr wraps one with the segment-size guard and
// retry policy of spec §4.3 before handing it to the pipeline.
type ASRProvider interface {
	Transcribe(ctx context.Context, audio []byte, lang Language) (string, error)
	Name() string
}

// StreamingASRCallback receives incremental transcripts; isFinal marks the
// last call for the current utterance.
type StreamingASRCallback func(transcript string, isFinal bool) error

// StreamingASRProvider is the subset of ASR backends that can transcribe
// incrementally as audio arrives, rather than only on a complete segment.
type StreamingASRProvider interface {
	ASRProvider
	StreamTranscribe(ctx context.Context, lang Language, cb StreamingASRCallback) (chan<- []byte, error)
}

// LLMProvider completes a chat-shaped prompt. pkg/llmclient wraps one with
// the cancellation and timeout policy of spec §4.4.
type LLMProvider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// StreamingLLMCallback receives incremental generation; isFinal marks the
// call carrying the complete accumulated text.
type StreamingLLMCallback func(textSoFar string, isFinal bool) error

// StreamingLLMProvider additionally supports token-by-token delivery, used
// by pkg/llmclient to report and preserve partial text as it streams.
// Pipeline itself calls Complete and starts TTS on the full reply.
type StreamingLLMProvider interface {
	LLMProvider
	StreamComplete(ctx context.Context, messages []Message, cb StreamingLLMCallback) error
}

// TTSProvider synthesizes speech audio from text. Implementations live
// under pkg/providers/tts; pkg/tts wraps one with segmentation, caching
// and re-chunking (spec §4.7).
type TTSProvider interface {
	Synthesize(ctx context.Context, text string, voice Voice, lang Language, emotion Emotion) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, emotion Emotion, onChunk func([]byte) error) error
	Abort() error
	Name() string
}

// ScenarioAdvancer classifies a learner transcript against a ScenarioState
// and returns the state's next position. Implemented by pkg/scenario.Engine;
// kept as an interface here so this package never imports pkg/scenario.
type ScenarioAdvancer interface {
	Advance(state ScenarioState, transcript string) ScenarioState
}
