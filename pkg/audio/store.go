package audio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SegmentStore persists learner speech segments to the on-disk layout of
// spec §6: {root}/<session>/<turn>.wav, one file per finalized Turn.
// Unlike NewWavBuffer (an in-memory header wrap for a single outbound RPC
// call), this writes a real seekable file, so it goes through go-audio's
// encoder rather than a hand-rolled header.
type SegmentStore struct {
	root string
}

func NewSegmentStore(root string) *SegmentStore {
	return &SegmentStore{root: root}
}

// Save writes pcm (16-bit mono little-endian) as turn.wav under
// {root}/{sessionID}/, creating the session directory if needed.
func (s *SegmentStore) Save(sessionID string, turnIndex int, pcm []byte, sampleRate int) (string, error) {
	dir := filepath.Join(s.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("audio: create session dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.wav", turnIndex))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("audio: create segment file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           pcm16ToInts(pcm),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return "", fmt.Errorf("audio: encode segment: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("audio: finalize segment: %w", err)
	}
	return path, nil
}

func pcm16ToInts(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		lo := pcm[2*i]
		hi := pcm[2*i+1]
		sample := int16(uint16(lo) | uint16(hi)<<8)
		out[i] = int(sample)
	}
	return out
}
