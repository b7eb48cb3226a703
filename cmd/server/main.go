package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gramyfied/eloquence-orchestrator/internal/config"
	"github.com/gramyfied/eloquence-orchestrator/internal/httpapi"
	"github.com/gramyfied/eloquence-orchestrator/internal/logging"
	"github.com/gramyfied/eloquence-orchestrator/pkg/asr"
	"github.com/gramyfied/eloquence-orchestrator/pkg/audio"
	"github.com/gramyfied/eloquence-orchestrator/pkg/connpool"
	"github.com/gramyfied/eloquence-orchestrator/pkg/feedback"
	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
	llmprovider "github.com/gramyfied/eloquence-orchestrator/pkg/providers/llm"
	sttprovider "github.com/gramyfied/eloquence-orchestrator/pkg/providers/stt"
	ttsprovider "github.com/gramyfied/eloquence-orchestrator/pkg/providers/tts"
	"github.com/gramyfied/eloquence-orchestrator/pkg/roster"
	"github.com/gramyfied/eloquence-orchestrator/pkg/scenario"
	"github.com/gramyfied/eloquence-orchestrator/pkg/tts"
	"github.com/gramyfied/eloquence-orchestrator/pkg/ttscache"
)

var (
	configPath string
	devLogger  bool
)

// rootCmd is the eloquence-orchestrator binary; "serve" is its only real
// subcommand today, mirroring the single-purpose gateway this was grounded on.
var rootCmd = &cobra.Command{
	Use:   "eloquence-orchestrator",
	Short: "Voice-coaching session orchestrator",
	Long:  "Runs the HTTP control plane and WebSocket session bridge for Eloquence voice-coaching sessions.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVar(&devLogger, "dev", false, "use a human-readable development logger")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	settings, err := config.Load(paths...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()

	sttBackend := buildASRProvider(settings)
	llmBackend := buildLLMProvider(settings)
	ttsBackend := buildTTSProvider(settings)

	asrPool := connpool.New(20, 5*time.Second)
	llmPool := connpool.New(20, 5*time.Second)
	ttsPool := connpool.New(20, 5*time.Second)

	guardedASR := connpool.NewGuardedASR(sttBackend, asrPool)
	guardedLLM := connpool.NewGuardedLLM(llmBackend, llmPool)
	guardedTTS := connpool.NewGuardedTTS(ttsBackend, ttsPool)

	asrClient := asr.New(guardedASR)

	cache := buildTTSCache(settings, logger)
	ttsMetrics := tts.NewMetrics(registry)
	ttsPipeline := tts.New(guardedTTS, cache, ttsMetrics, settings.Session.SampleRate)

	vad := orchestrator.NewRMSVAD(settings.Session.VADThreshold, time.Duration(settings.Session.VADMinSilenceMs)*time.Millisecond)

	service := orchestrator.NewService(asrClient, guardedLLM, ttsPipeline, vad, logger)
	service.SetMetrics(orchestrator.NewMetrics(registry))

	var sink *feedback.Sink
	if settings.PostgresDSN != "" {
		sink, err = feedback.NewSink(context.Background(), settings.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open feedback sink: %w", err)
		}
		defer sink.Close()
		service.SetFeedbackSink(sink)
	}

	reapCtx, stopReap := context.WithCancel(context.Background())
	defer stopReap()
	go service.ReapIdle(reapCtx, time.Minute, settings.Session.IdleTimeout)

	segmentStore := audio.NewSegmentStore(settings.AudioStoragePath)

	agents := roster.New(settings.AgentStoragePath)
	scenarios := newScenarioCache(settings.ScenarioStoragePath, logger)

	server := httpapi.NewServer(httpapi.Config{
		Service:         service,
		Sink:            sink,
		ResolveAgent:    agents.Resolve,
		ResolveScenario: scenarios.resolve,
		APIKey:          settings.APIKey,
		MaxReqPerMin:    settings.MaxRequestsPerMinute,
		LivekitURL:      settings.LivekitURL,
		LivekitAPIKey:   settings.LivekitAPIKey,
		LivekitSecret:   settings.LivekitSecret,
		SessionConfig:   settings.Session,
		AudioStore:      segmentStore,
	})

	mux := http.NewServeMux()
	mux.Handle("/", server)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: settings.HTTPAddr, Handler: mux}

	go awaitShutdown(srv, logger)

	logger.Info("server starting", "addr", settings.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newLogger() (*logging.ZapLogger, error) {
	if devLogger {
		return logging.NewDevelopment()
	}
	return logging.New()
}

// awaitShutdown blocks until SIGINT/SIGTERM, then drains connections within
// a fixed grace period before returning control to runServe.
func awaitShutdown(srv *http.Server, logger orchestrator.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func buildASRProvider(s *config.Settings) orchestrator.ASRProvider {
	switch s.ASRProvider {
	case "openai":
		return sttprovider.NewOpenAISTT(s.OpenAIAPIKey, "whisper-1")
	default:
		return sttprovider.NewDeepgramSTT(s.DeepgramAPIKey)
	}
}

func buildLLMProvider(s *config.Settings) orchestrator.LLMProvider {
	switch s.LLMProvider {
	case "anthropic":
		return llmprovider.NewAnthropicLLM(s.AnthropicAPIKey, "claude-sonnet-4-5")
	case "ollama":
		p, err := llmprovider.NewOllamaLLM(s.OllamaURL, "llama3.2:3b")
		if err != nil {
			// NewOllamaLLM fails only on an unparsable host URL; fall back to
			// OpenAI rather than failing server startup. Reachability of the
			// Ollama server is not checked here.
			return llmprovider.NewOpenAILLM(s.OpenAIAPIKey, "gpt-4.1-nano")
		}
		return p
	default:
		return llmprovider.NewOpenAILLM(s.OpenAIAPIKey, "gpt-4.1-nano")
	}
}

func buildTTSProvider(s *config.Settings) orchestrator.TTSProvider {
	switch s.TTSProvider {
	case "elevenlabs":
		return ttsprovider.NewElevenLabsTTS(s.ElevenLabsAPIKey)
	default:
		return ttsprovider.NewLokutorTTS(s.LokutorAPIKey)
	}
}

func buildTTSCache(s *config.Settings, logger orchestrator.Logger) ttscache.Cache {
	lru := ttscache.NewLRUCache(2048)

	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	redisCache, err := ttscache.NewRedisCache(client, s.Session.TTSCachePrefix)
	if err != nil {
		logger.Warn("redis cache unavailable, using in-memory cache only", "error", err)
		return lru
	}
	redisCache.OnDegrade(func(err error) {
		logger.Warn("tts cache degraded to local reads", "error", err)
	})
	return ttscache.NewFailoverCache(redisCache, lru)
}

// scenarioCache loads and caches scenario.Template files from disk, the
// same lazy-load-then-cache shape roster.Roster uses for agent profiles.
type scenarioCache struct {
	dir    string
	logger orchestrator.Logger
	cache  map[string]*scenario.Engine
}

func newScenarioCache(dir string, logger orchestrator.Logger) *scenarioCache {
	return &scenarioCache{dir: dir, logger: logger, cache: make(map[string]*scenario.Engine)}
}

func (c *scenarioCache) resolve(scenarioID string) orchestrator.ScenarioAdvancer {
	if scenarioID == "" {
		return nil
	}
	if e, ok := c.cache[scenarioID]; ok {
		return e
	}
	tmpl, err := scenario.Load(filepath.Join(c.dir, scenarioID+".yaml"))
	if err != nil {
		c.logger.Warn("scenario template load failed", "scenario_id", scenarioID, "error", err)
		return nil
	}
	engine := scenario.NewEngine(tmpl)
	c.cache[scenarioID] = engine
	return engine
}
