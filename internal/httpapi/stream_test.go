package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

func TestStreamRoundTripClosesOnStopStream(t *testing.T) {
	s := newTestServer()
	httpServer := httptest.NewServer(s)
	defer httpServer.Close()

	body, _ := json.Marshal(SessionCreateRequest{UserID: "u1", Language: "fr"})
	req, _ := http.NewRequest(http.MethodPost, httpServer.URL+"/sessions", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var created SessionCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()

	wsURL := "ws" + httpServer.URL[len("http"):] + "/sessions/" + created.SessionID + "/stream"
	hdr := http.Header{}
	hdr.Set("X-API-Key", "secret")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}

	stop, _ := json.Marshal(map[string]interface{}{"type": string(orchestrator.FrameStopStream)})
	if err := conn.Write(ctx, websocket.MessageText, stop); err != nil {
		t.Fatalf("write stop_stream: %v", err)
	}

	// The server closes the connection once Serve returns.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected the server to close the connection after stop_stream")
	}
}

func TestStreamReturnsNotFoundForUnknownSession(t *testing.T) {
	s := newTestServer()
	httpServer := httptest.NewServer(s)
	defer httpServer.Close()

	wsURL := "ws" + httpServer.URL[len("http"):] + "/sessions/does-not-exist/stream"
	hdr := http.Header{}
	hdr.Set("X-API-Key", "secret")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: hdr})
	if err == nil {
		t.Fatal("expected dial to fail for an unregistered session id")
	}
}
