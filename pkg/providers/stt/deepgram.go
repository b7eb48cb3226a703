package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

const deepgramStreamEndpoint = "wss://api.deepgram.com/v1/listen"

type DeepgramSTT struct {
	apiKey     string
	url        string
	sampleRate int
}

func NewDeepgramSTT(apiKey string) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey:     apiKey,
		url:        "https://api.deepgram.com/v1/listen",
		sampleRate: 16000,
	}
}

func (s *DeepgramSTT) Name() string {
	return "deepgram-stt"
}

// Transcribe performs a one-shot batch transcription against Deepgram's REST
// endpoint, used as the fallback path when a provider doesn't stream.
func (s *DeepgramSTT) Transcribe(ctx context.Context, audioPCM []byte, lang orchestrator.Language) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", string(lang))
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(audioPCM))
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "audio/l16; rate=16000; channels=1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepgram error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}

// StreamTranscribe opens a Deepgram streaming WebSocket session and delivers
// interim and final transcripts to cb as they arrive, satisfying
// orchestrator.StreamingASRProvider.
func (s *DeepgramSTT) StreamTranscribe(ctx context.Context, lang orchestrator.Language, cb orchestrator.StreamingASRCallback) (chan<- []byte, error) {
	wsURL, err := s.buildStreamURL(lang)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build stream url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+s.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	audio := make(chan []byte, 256)
	sess := &deepgramSession{conn: conn, audio: audio, done: make(chan struct{})}
	sess.wg.Add(2)
	go sess.writeLoop(ctx)
	go sess.readLoop(ctx, cb)

	go func() {
		<-ctx.Done()
		sess.close()
	}()

	return audio, nil
}

func (s *DeepgramSTT) buildStreamURL(lang orchestrator.Language) (string, error) {
	u, err := url.Parse(deepgramStreamEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", "nova-2")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(s.sampleRate))
	if lang != "" {
		q.Set("language", string(lang))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type deepgramSession struct {
	conn  *websocket.Conn
	audio chan []byte
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func (s *deepgramSession) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
}

func (s *deepgramSession) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramSession) readLoop(ctx context.Context, cb orchestrator.StreamingASRCallback) {
	defer s.wg.Done()
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil || resp.Type != "Results" {
			continue
		}
		if len(resp.Channel.Alternatives) == 0 {
			continue
		}
		transcript := resp.Channel.Alternatives[0].Transcript
		if transcript == "" {
			continue
		}
		if err := cb(transcript, resp.IsFinal); err != nil {
			return
		}
	}
}
