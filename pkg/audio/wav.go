// Package audio provides WAV framing for PCM segments: NewWavBuffer wraps
// a single in-memory payload for an outbound RPC (STT upload), while
// SegmentStore (store.go) persists one WAV file per learner turn to disk
// (used by internal/httpapi's recordingPipeline).
package audio

import (
	"bytes"
	"encoding/binary"
)

// NewWavBuffer wraps 16-bit mono PCM in a minimal WAV header, for
// providers whose upload API expects a complete audio file rather than a
// raw byte stream.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           // fmt chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))            // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1))            // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
