package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const (
	heartbeatInterval = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// WSTransport is the coder/websocket-backed Transport used by the live
// audio session endpoint.
type WSTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex // serializes writes so ordering is preserved

	highestEpoch  uint64 // atomic; highest epoch sent so far
	lastInboundAt atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// NewWSTransport wraps an already-accepted websocket.Conn and starts its
// heartbeat loop.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	t := &WSTransport{conn: conn, closed: make(chan struct{})}
	t.lastInboundAt.Store(time.Now().UnixNano())
	go t.heartbeatLoop()
	return t
}

// Send implements Transport. A frame whose Epoch is behind the highest
// epoch already sent is silently dropped, per §4.1's stale-epoch rule.
func (t *WSTransport) Send(frame ControlFrame, audio []byte) error {
	for {
		cur := atomic.LoadUint64(&t.highestEpoch)
		if frame.Epoch < cur {
			return nil // stale; drop
		}
		if atomic.CompareAndSwapUint64(&t.highestEpoch, cur, frame.Epoch) || frame.Epoch == cur {
			break
		}
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(audio) > 0 {
		return t.conn.Write(ctx, websocket.MessageBinary, audio)
	}

	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("transport: marshal control frame: %w", err)
	}
	return t.conn.Write(ctx, websocket.MessageText, raw)
}

// Recv implements Transport, classifying each inbound message and
// refreshing the idle-timeout clock.
func (t *WSTransport) Recv() (Inbound, error) {
	ctx, cancel := context.WithTimeout(context.Background(), idleTimeout)
	defer cancel()

	msgType, payload, err := t.conn.Read(ctx)
	if err != nil {
		return Inbound{}, err
	}
	t.lastInboundAt.Store(time.Now().UnixNano())

	if msgType == websocket.MessageBinary {
		return Inbound{Kind: InboundAudio, Audio: payload}, nil
	}

	var frame ControlFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return Inbound{}, fmt.Errorf("transport: unmarshal control frame: %w", err)
	}
	return Inbound{Kind: InboundControl, Frame: frame}, nil
}

// Close implements Transport.
func (t *WSTransport) Close(code int, reason string) error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close(websocket.StatusCode(code), reason)
	})
	return err
}

// heartbeatLoop emits a heartbeat frame every heartbeatInterval and closes
// the session if idleTimeout elapses with no inbound frame, per §4.1.
func (t *WSTransport) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.closed:
			return
		case <-ticker.C:
			last := time.Unix(0, t.lastInboundAt.Load())
			if time.Since(last) > idleTimeout {
				_ = t.Close(int(websocket.StatusPolicyViolation), "idle timeout")
				return
			}
			// Stamp with the current high-water epoch rather than the zero
			// value: Send's stale-epoch filter exists for pipeline output
			// ordering (§4.1), not transport keepalive, and a literal 0
			// would get silently dropped by any Send call after the first
			// barge-in bumps the session epoch above 0.
			_ = t.Send(ControlFrame{Type: "heartbeat", Epoch: atomic.LoadUint64(&t.highestEpoch)}, nil)
		}
	}
}

// ErrClosed is the error a Transport's Recv may return once it is closed;
// Serve treats it as a normal end of session and returns nil. WSTransport
// itself returns the websocket library's own errors, never ErrClosed;
// callers should treat any non-nil Recv error as terminal for the session.
var ErrClosed = errors.New("transport: closed")
