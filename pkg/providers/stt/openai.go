package stt

import (
	"bytes"
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/gramyfied/eloquence-orchestrator/pkg/audio"
	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// OpenAISTT wraps openai-go's audio transcription endpoint (Whisper) behind
// orchestrator.ASRProvider. Whisper has no streaming transcription endpoint,
// so this provider only ever participates in the Pipeline's batch path.
type OpenAISTT struct {
	client     oai.Client
	model      string
	sampleRate int
}

func NewOpenAISTT(apiKey string, model string) *OpenAISTT {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAISTT{
		client:     oai.NewClient(option.WithAPIKey(apiKey)),
		model:      model,
		sampleRate: 16000,
	}
}

func (s *OpenAISTT) SetSampleRate(rate int) {
	s.sampleRate = rate
}

func (s *OpenAISTT) Name() string {
	return "openai-stt"
}

func (s *OpenAISTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language) (string, error) {
	wavData := audio.NewWavBuffer(audioPCM, s.sampleRate)

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(s.model),
		File:  oai.File(bytes.NewReader(wavData), "audio.wav", "audio/wav"),
	}
	if lang != "" {
		params.Language = param.NewOpt(string(lang))
	}

	resp, err := s.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}
	return resp.Text, nil
}
