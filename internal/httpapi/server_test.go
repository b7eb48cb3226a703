package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

func newTestService() *orchestrator.Service {
	return orchestrator.NewService(noopASR{}, noopLLM{}, noopTTS{}, noopVAD{}, nil)
}

type noopASR struct{}

func (noopASR) Transcribe(ctx context.Context, audio []byte, lang orchestrator.Language) (string, error) {
	return "", nil
}
func (noopASR) Name() string { return "noop" }

type noopLLM struct{}

func (noopLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	return "", nil
}
func (noopLLM) Name() string { return "noop" }

type noopTTS struct{}

func (noopTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion) ([]byte, error) {
	return nil, nil
}
func (noopTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, emotion orchestrator.Emotion, onChunk func([]byte) error) error {
	return nil
}
func (noopTTS) Abort() error { return nil }
func (noopTTS) Name() string { return "noop" }

type noopVAD struct{}

func (noopVAD) Process(chunk []byte) (*orchestrator.VADEvent, error) { return nil, nil }
func (noopVAD) IsSpeaking() bool                                     { return false }
func (noopVAD) Reset()                                               {}
func (n noopVAD) Clone() orchestrator.VADProvider                    { return n }
func (noopVAD) Name() string                                         { return "noop" }

func newTestServer() *Server {
	return NewServer(Config{
		Service:       newTestService(),
		APIKey:        "secret",
		MaxReqPerMin:  60,
		LivekitAPIKey: "lk-key",
		LivekitSecret: "lk-secret-at-least-32-bytes-long!!",
		SessionConfig: orchestrator.DefaultConfig(),
	})
}

func TestCreateSessionRequiresAPIKey(t *testing.T) {
	s := newTestServer()
	body, _ := json.Marshal(SessionCreateRequest{UserID: "u1", Language: "fr"})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCreateSessionSucceeds(t *testing.T) {
	s := newTestServer()
	body, _ := json.Marshal(SessionCreateRequest{UserID: "u1", Language: "fr"})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SessionCreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" || resp.Token == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateSessionValidatesBody(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDeleteSessionIsIdempotent(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/sessions/does-not-exist", nil)
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if notFound, _ := resp["not_found"].(bool); !notFound {
		t.Fatalf("expected not_found=true, got %+v", resp)
	}
}

func TestRateLimiterBlocksAfterRepeatedAuthFailures(t *testing.T) {
	rl := NewRateLimiter(1000)
	ip := "203.0.113.9"
	for i := 0; i < maxFailures; i++ {
		rl.RecordAuthFailure(ip)
	}
	if rl.Allow(ip) {
		t.Fatal("expected ip to be blocked after repeated auth failures")
	}
}
