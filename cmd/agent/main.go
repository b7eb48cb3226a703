package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/joho/godotenv"

	"github.com/gramyfied/eloquence-orchestrator/internal/logging"
	"github.com/gramyfied/eloquence-orchestrator/pkg/audio"
	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
	llmprovider "github.com/gramyfied/eloquence-orchestrator/pkg/providers/llm"
	sttprovider "github.com/gramyfied/eloquence-orchestrator/pkg/providers/stt"
	ttsprovider "github.com/gramyfied/eloquence-orchestrator/pkg/providers/tts"
)

// frameDuration is the chunk size this CLI feeds the Pipeline at, matching
// the cadence a real Transport Adapter streams microphone audio at.
const frameDuration = 20 * time.Millisecond

// eloquence-agent plays a recorded learner turn through one Pipeline the
// same way the HTTP control plane's websocket bridge would, and writes
// whatever the bot says back to a WAV file. It's a fixture-driven smoke
// test, not a live microphone client: there is no speaker/mic loop here,
// only a file in and a file out.
func main() {
	inputPath := flag.String("input", "", "WAV fixture to play as the learner's turn")
	outputPath := flag.String("output", "reply.wav", "where to write the bot's spoken reply")
	lang := flag.String("lang", "fr", "session language (fr|en)")
	flag.Parse()

	if *inputPath == "" {
		log.Fatal("eloquence-agent: -input is required")
	}

	_ = godotenv.Load()

	logger, err := logging.NewDevelopment()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	stt := sttprovider.NewDeepgramSTT(os.Getenv("DEEPGRAM_API_KEY"))
	llm := llmprovider.NewOpenAILLM(os.Getenv("OPENAI_API_KEY"), "gpt-4.1-nano")
	tts := ttsprovider.NewLokutorTTS(os.Getenv("LOKUTOR_API_KEY"))
	vad := orchestrator.NewRMSVAD(0.02, 400*time.Millisecond)

	service := orchestrator.NewService(stt, llm, tts, vad, logger)

	cfg := orchestrator.DefaultConfig()
	cfg.Language = orchestrator.Language(*lang)

	agent := orchestrator.AgentProfile{
		ID:               "smoke-test",
		DisplayName:      "Smoke Test Coach",
		SystemPromptTmpl: "You are a concise, encouraging voice-coaching partner. Keep replies short.",
		VoiceID:          orchestrator.VoiceF1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pipeline := service.StartSession(ctx, "smoke-test-user", cfg.Language, agent, cfg, nil)
	defer pipeline.Close()

	pcm, sampleRate, err := readPCM(*inputPath)
	if err != nil {
		log.Fatalf("read fixture: %v", err)
	}
	if sampleRate != cfg.SampleRate {
		logger.Warn("fixture sample rate differs from session sample rate", "fixture_hz", sampleRate, "session_hz", cfg.SampleRate)
	}

	var reply []byte
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range pipeline.Events() {
			switch ev.Type {
			case orchestrator.EventTranscriptFinal:
				fmt.Printf("[transcript] %v\n", ev.Data)
			case orchestrator.EventBotResponse:
				fmt.Printf("[reply-text] %v\n", ev.Data)
			case orchestrator.EventAudioChunk:
				if chunk, ok := ev.Data.([]byte); ok {
					reply = append(reply, chunk...)
				}
			case orchestrator.EventError:
				fmt.Printf("[error] %v\n", ev.Data)
			}
		}
	}()

	framesPerSecond := int(time.Second / frameDuration)
	frameBytes := (cfg.SampleRate / framesPerSecond) * cfg.BytesPerSamp
	for off := 0; off < len(pcm); off += frameBytes {
		end := off + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := pipeline.Write(pcm[off:end]); err != nil {
			logger.Warn("write frame failed", "error", err)
		}
		time.Sleep(frameDuration)
	}

	// Let ASR/LLM/TTS finish reacting to the last frame before tearing down.
	time.Sleep(3 * time.Second)
	pipeline.Close()
	<-done

	if len(reply) == 0 {
		log.Fatal("eloquence-agent: no audio reply produced")
	}
	if err := os.WriteFile(*outputPath, audio.NewWavBuffer(reply, cfg.SampleRate), 0o644); err != nil {
		log.Fatalf("write reply: %v", err)
	}
	fmt.Printf("wrote %d bytes to %s\n", len(reply), *outputPath)
}

// readPCM decodes a WAV fixture into 16-bit little-endian mono PCM, the
// wire format every provider and the Pipeline itself expect.
func readPCM(path string) ([]byte, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}

	pcm := make([]byte, 0, len(buf.Data)*2)
	for _, sample := range buf.Data {
		pcm = append(pcm, byte(sample), byte(sample>>8))
	}
	return pcm, buf.Format.SampleRate, nil
}
