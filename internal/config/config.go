// Package config loads the environment keys of spec §6 into a Settings
// value using Viper (environment + optional file), with a .env loaded
// first via godotenv so local development matches the teacher's own
// convention.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// Settings bundles the server-level knobs of spec §6 that sit outside the
// per-session orchestrator.Config.
type Settings struct {
	Session orchestrator.Config

	APIKey               string
	AllowedOrigins       []string
	MaxRequestsPerMinute int

	ASRAPIURL      string
	LLMLocalAPIURL string
	TTSAPIURL      string

	AudioStoragePath    string
	FeedbackStoragePath string
	ScenarioStoragePath string
	AgentStoragePath    string

	RedisAddr   string
	PostgresDSN string
	HTTPAddr    string

	ASRProvider string
	LLMProvider string
	TTSProvider string

	GroqAPIKey       string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	DeepgramAPIKey   string
	ElevenLabsAPIKey string
	LokutorAPIKey    string
	OllamaURL        string

	LivekitURL    string
	LivekitAPIKey string
	LivekitSecret string
}

// Load reads a local .env (if present) then binds the spec §6 environment
// keys via Viper, applying the same defaults as orchestrator.DefaultConfig
// for anything left unset.
func Load(configPaths ...string) (*Settings, error) {
	_ = godotenv.Load() // optional; absence is not an error

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := orchestrator.DefaultConfig()

	v.SetDefault("api_key", "")
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("max_requests_per_minute", 60)

	v.SetDefault("vad_threshold", def.VADThreshold)
	v.SetDefault("vad_min_silence_duration_ms", def.VADMinSilenceMs)
	v.SetDefault("vad_speech_pad_ms", def.VADSpeechPadMs)

	v.SetDefault("llm_timeout_s", int(def.LLMTimeout.Seconds()))
	v.SetDefault("llm_max_max_tokens", def.MaxContextTokens)
	v.SetDefault("llm_temperature", 0.7)

	v.SetDefault("tts_use_cache", def.TTSUseCache)
	v.SetDefault("tts_cache_prefix", def.TTSCachePrefix)
	v.SetDefault("tts_cache_expiration_s", int(def.TTSCacheTTL.Seconds()))

	v.SetDefault("asr_api_url", "")
	v.SetDefault("llm_local_api_url", "")
	v.SetDefault("tts_api_url", "")

	v.SetDefault("audio_storage_path", "./data/audio")
	v.SetDefault("feedback_storage_path", "./data/feedback")
	v.SetDefault("scenario_storage_path", "./data/scenarios")
	v.SetDefault("agent_storage_path", "./data/agents")

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("http_addr", ":8080")

	v.SetDefault("asr_provider", "deepgram")
	v.SetDefault("llm_provider", "openai")
	v.SetDefault("tts_provider", "lokutor")

	v.SetDefault("groq_api_key", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("deepgram_api_key", "")
	v.SetDefault("elevenlabs_api_key", "")
	v.SetDefault("lokutor_api_key", "")
	v.SetDefault("ollama_url", "http://localhost:11434")

	v.SetDefault("livekit_url", "")
	v.SetDefault("livekit_api_key", "")
	v.SetDefault("livekit_secret", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	session := def
	session.VADThreshold = v.GetFloat64("vad_threshold")
	session.VADMinSilenceMs = v.GetInt("vad_min_silence_duration_ms")
	session.VADSpeechPadMs = v.GetInt("vad_speech_pad_ms")
	session.LLMTimeout = time.Duration(v.GetInt("llm_timeout_s")) * time.Second
	session.MaxContextTokens = v.GetInt("llm_max_max_tokens")
	session.TTSUseCache = v.GetBool("tts_use_cache")
	session.TTSCachePrefix = v.GetString("tts_cache_prefix")
	session.TTSCacheTTL = time.Duration(v.GetInt("tts_cache_expiration_s")) * time.Second

	origins := strings.Split(v.GetString("allowed_origins"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Settings{
		Session:              session,
		APIKey:               v.GetString("api_key"),
		AllowedOrigins:       origins,
		MaxRequestsPerMinute: v.GetInt("max_requests_per_minute"),
		ASRAPIURL:            v.GetString("asr_api_url"),
		LLMLocalAPIURL:       v.GetString("llm_local_api_url"),
		TTSAPIURL:            v.GetString("tts_api_url"),
		AudioStoragePath:     v.GetString("audio_storage_path"),
		FeedbackStoragePath:  v.GetString("feedback_storage_path"),
		ScenarioStoragePath:  v.GetString("scenario_storage_path"),
		AgentStoragePath:     v.GetString("agent_storage_path"),
		RedisAddr:            v.GetString("redis_addr"),
		PostgresDSN:          v.GetString("postgres_dsn"),
		HTTPAddr:             v.GetString("http_addr"),

		ASRProvider: v.GetString("asr_provider"),
		LLMProvider: v.GetString("llm_provider"),
		TTSProvider: v.GetString("tts_provider"),

		GroqAPIKey:       v.GetString("groq_api_key"),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		AnthropicAPIKey:  v.GetString("anthropic_api_key"),
		DeepgramAPIKey:   v.GetString("deepgram_api_key"),
		ElevenLabsAPIKey: v.GetString("elevenlabs_api_key"),
		LokutorAPIKey:    v.GetString("lokutor_api_key"),
		OllamaURL:        v.GetString("ollama_url"),

		LivekitURL:    v.GetString("livekit_url"),
		LivekitAPIKey: v.GetString("livekit_api_key"),
		LivekitSecret: v.GetString("livekit_secret"),
	}, nil
}
