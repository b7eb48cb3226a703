package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

func TestElevenLabsTTS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")

		// first message: the text + BOI payload
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
		// second message: the flush
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}

		chunk1, _ := json.Marshal(elevenLabsAudioResponse{Audio: base64.StdEncoding.EncodeToString([]byte{1, 2, 3})})
		chunk2, _ := json.Marshal(elevenLabsAudioResponse{Audio: base64.StdEncoding.EncodeToString([]byte{4, 5, 6}), IsFinal: true})
		conn.Write(r.Context(), websocket.MessageText, chunk1)
		conn.Write(r.Context(), websocket.MessageText, chunk2)
	}))
	defer server.Close()

	tts := &ElevenLabsTTS{
		apiKey: "test-key",
		wsURL:  "ws://" + strings.TrimPrefix(server.URL, "http://"),
	}

	var audio []byte
	err := tts.StreamSynthesize(context.Background(), "hello", orchestrator.VoiceF1, orchestrator.LanguageEn, orchestrator.EmotionNeutre, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audio) != 6 {
		t.Errorf("expected 6 bytes, got %d", len(audio))
	}
	if tts.Name() != "elevenlabs" {
		t.Errorf("expected elevenlabs, got %s", tts.Name())
	}
}

func TestElevenLabsVoiceIDFallsBackForUnknownVoice(t *testing.T) {
	tts := NewElevenLabsTTS("test-key")
	if got := tts.voiceID("unknown-voice"); got != elevenLabsVoiceIDs[orchestrator.VoiceF1] {
		t.Errorf("expected fallback voice id, got %s", got)
	}
}
