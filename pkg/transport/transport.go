// Package transport implements the Transport Adapter of spec §4.1: a
// duplex, message-framed channel to a single client that guarantees
// ordered delivery, drops stale-epoch outbound frames, and enforces the
// heartbeat/idle-timeout contract.
package transport

import (
	"encoding/json"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// ControlFrame is the §6 wire schema: {type, epoch, payload}.
type ControlFrame struct {
	Type    orchestrator.FrameType `json:"type"`
	Epoch   uint64                 `json:"epoch"`
	Payload json.RawMessage        `json:"payload,omitempty"`
}

// InboundKind enumerates the §4.1 inbound message shapes this adapter
// recognizes; everything other than AudioFrame arrives as JSON control
// frames of the matching FrameType.
type InboundKind int

const (
	InboundAudio InboundKind = iota
	InboundControl
)

// Inbound is one message read off the wire.
type Inbound struct {
	Kind  InboundKind
	Audio []byte
	Frame ControlFrame
}

// Transport is what the orchestrator Pipeline/Session depends on; the
// concrete implementation (websocket.go) owns the wire protocol.
type Transport interface {
	// Send enqueues an outbound control or audio frame. Implementations
	// MUST preserve call order and MUST silently drop a frame whose Epoch
	// is behind the highest epoch already sent.
	Send(frame ControlFrame, audio []byte) error
	// Recv blocks for the next inbound message, or returns an error once
	// the transport is closed (idle timeout, protocol error, or Close).
	Recv() (Inbound, error)
	// Close closes the underlying connection with code/reason.
	Close(code int, reason string) error
}

// EventToFrame maps an orchestrator.EventType to the §6 wire FrameType it
// is rendered as; events with no wire representation (e.g. internal-only
// ones) return ok=false.
func EventToFrame(t orchestrator.EventType) (orchestrator.FrameType, bool) {
	switch t {
	case orchestrator.EventTranscriptPartial:
		return orchestrator.FrameASRPartial, true
	case orchestrator.EventTranscriptFinal:
		return orchestrator.FrameASRFinal, true
	case orchestrator.EventBotResponse:
		return orchestrator.FrameAgentTextFinal, true
	case orchestrator.EventAudioChunk:
		return orchestrator.FrameTTSChunk, true
	case orchestrator.EventInterrupted:
		return orchestrator.FrameTTSStop, true
	case orchestrator.EventTurnEmotion:
		return orchestrator.FrameTurnEmotion, true
	case orchestrator.EventTTSFallback:
		return orchestrator.FrameTTSFallback, true
	case orchestrator.EventError:
		return orchestrator.FrameError, true
	default:
		return "", false
	}
}
