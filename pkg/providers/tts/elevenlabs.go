package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

const (
	elevenLabsWSFmt     = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	elevenLabsModel     = "eleven_flash_v2_5"
	elevenLabsOutputFmt = "pcm_16000"
)

// elevenLabsVoiceIDs maps the orchestrator's closed Voice set onto concrete ElevenLabs
// voice IDs. Values are placeholders for real account-specific voice IDs
// configured at deploy time.
var elevenLabsVoiceIDs = map[orchestrator.Voice]string{
	orchestrator.VoiceF1: "21m00Tcm4TlvDq8ikWAM",
	orchestrator.VoiceF2: "EXAVITQu4vr4xnSDxMaL",
	orchestrator.VoiceF3: "ThT5KcBeYPX3keUQqHPh",
	orchestrator.VoiceF4: "MF3mGyEYCl7XYWbV9V6O",
	orchestrator.VoiceF5: "jsCqWAovK2LkecY7zXl4",
	orchestrator.VoiceM1: "TxGEqnHWrfWFTfGW9XjX",
	orchestrator.VoiceM2: "VR6AewLTigWG4xSOukaG",
	orchestrator.VoiceM3: "pNInz6obpgDQGcFmaJgB",
	orchestrator.VoiceM4: "yoZ06aMxZJJ28mfd3POQ",
	orchestrator.VoiceM5: "onwK4e9ZLuTAKqWW03F9",
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

// emotionVoiceSettings maps the closed Emotion set onto ElevenLabs'
// stability/style knobs; higher style pushes delivery further from the
// voice's neutral baseline, lower stability allows more expressive swing.
func emotionVoiceSettings(emotion orchestrator.Emotion) *voiceSettings {
	switch emotion {
	case orchestrator.EmotionEncouragement:
		return &voiceSettings{Stability: 0.4, SimilarityBoost: 0.75, Style: 0.6}
	case orchestrator.EmotionEmpathie:
		return &voiceSettings{Stability: 0.6, SimilarityBoost: 0.8, Style: 0.2}
	case orchestrator.EmotionEnthousiasmeModere:
		return &voiceSettings{Stability: 0.35, SimilarityBoost: 0.75, Style: 0.7}
	case orchestrator.EmotionCuriosite:
		return &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Style: 0.4}
	case orchestrator.EmotionReflexion:
		return &voiceSettings{Stability: 0.65, SimilarityBoost: 0.75, Style: 0.15}
	default:
		return &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Style: 0.3}
	}
}

type elevenLabsTextMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

type elevenLabsAudioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
}

// ElevenLabsTTS synthesizes speech via ElevenLabs' streaming WebSocket API,
// as an alternative backend to the primary Lokutor voice pipeline.
type ElevenLabsTTS struct {
	apiKey string
	wsURL  string // overridable in tests; defaults to elevenLabsWSFmt against the real API

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewElevenLabsTTS(apiKey string) *ElevenLabsTTS {
	return &ElevenLabsTTS{apiKey: apiKey}
}

func (t *ElevenLabsTTS) Name() string {
	return "elevenlabs"
}

func (t *ElevenLabsTTS) voiceID(voice orchestrator.Voice) string {
	if id, ok := elevenLabsVoiceIDs[voice]; ok {
		return id
	}
	return elevenLabsVoiceIDs[orchestrator.VoiceF1]
}

func (t *ElevenLabsTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion) ([]byte, error) {
	var audio []byte
	err := t.StreamSynthesize(ctx, text, voice, lang, emotion, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (t *ElevenLabsTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion, onChunk func([]byte) error) error {
	wsURL := t.wsURL
	if wsURL == "" {
		wsURL = fmt.Sprintf(elevenLabsWSFmt, t.voiceID(voice), elevenLabsModel)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("elevenlabs: dial: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
	}()
	defer conn.Close(websocket.StatusNormalClosure, "done")

	boi := elevenLabsTextMessage{
		Text:          text,
		VoiceSettings: emotionVoiceSettings(emotion),
		XiAPIKey:      t.apiKey,
		OutputFormat:  elevenLabsOutputFmt,
	}
	boiBytes, err := json.Marshal(boi)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		return fmt.Errorf("elevenlabs: send text: %w", err)
	}

	flush, err := json.Marshal(elevenLabsTextMessage{Text: ""})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, flush); err != nil {
		return fmt.Errorf("elevenlabs: send flush: %w", err)
	}

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return nil
		}
		var resp elevenLabsAudioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				continue
			}
			if err := onChunk(pcm); err != nil {
				return err
			}
		}
		if resp.IsFinal {
			return nil
		}
	}
}

// Abort closes the underlying websocket connection, unblocking any
// in-flight conn.Read on a barge-in.
func (t *ElevenLabsTTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close(websocket.StatusNormalClosure, "interrupted")
	t.conn = nil
	return err
}
