package orchestrator

import "time"

// Config bundles every runtime-tunable knob a Session needs. internal/config
// populates one of these from the environment keys of spec §6; callers that
// don't need environment wiring (tests, the CLI demo) can use DefaultConfig.
type Config struct {
	SampleRate   int
	Channels     int
	BytesPerSamp int

	// MaxContextMessages bounds the sliding history window kept verbatim
	// (spec §4.4 picks min(8 turns, 4000 tokens); this is the turn count
	// side of that bound).
	MaxContextMessages int
	MaxContextTokens    int

	VoiceStyle Voice
	Language   Language

	VADThreshold     float64
	VADMinSilenceMs  int
	VADSpeechPadMs   int

	ASRTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration

	// MinWordsToInterrupt suppresses short backchannels ("mm-hm") from
	// triggering a barge-in while the agent is speaking. It is checked only
	// on the streaming-ASR path; a VAD-confirmed speech start interrupts
	// regardless of word count.
	MinWordsToInterrupt int

	// IdleTimeout closes a session with no inbound audio frame
	// (spec §3 default 10 min); heartbeat acks do not count.
	IdleTimeout time.Duration

	// TTSUseCache, TTSCachePrefix, TTSCacheTTL mirror spec §6's
	// TTS_USE_CACHE / TTS_CACHE_PREFIX / TTS_CACHE_EXPIRATION_S.
	TTSUseCache    bool
	TTSCachePrefix string
	TTSCacheTTL    time.Duration

	// PoolMaxWait bounds how long a caller queues for a connection-pool
	// slot before Overloaded (spec §5, default 5s).
	PoolMaxWait time.Duration

	// SlowConsumerBufferedAudio is the inbound-audio backpressure limit
	// (spec §5, default 2s of buffered frames).
	SlowConsumerBufferedAudio time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:                16000,
		Channels:                  1,
		BytesPerSamp:              2,
		MaxContextMessages:        8,
		MaxContextTokens:          4000,
		VoiceStyle:                "F1",
		Language:                  LanguageEn,
		VADThreshold:              0.45,
		VADMinSilenceMs:           2000,
		VADSpeechPadMs:            400,
		ASRTimeout:                10 * time.Second,
		LLMTimeout:                30 * time.Second,
		TTSTimeout:                30 * time.Second,
		MinWordsToInterrupt:       1,
		IdleTimeout:               10 * time.Minute,
		TTSUseCache:               true,
		TTSCachePrefix:            "tts",
		TTSCacheTTL:               24 * time.Hour,
		PoolMaxWait:               5 * time.Second,
		SlowConsumerBufferedAudio: 2 * time.Second,
	}
}
