package ttscache

import (
	"encoding/json"
	"time"

	"github.com/klauspost/compress/zstd"
)

// storedEntry is the on-wire representation written to Redis: one JSON
// object holding the metadata and the audio payload (compressed or not, per
// Compressed), which encoding/json stores base64-encoded.
type storedEntry struct {
	SampleRate      int           `json:"sample_rate"`
	Channels        int           `json:"channels"`
	Duration        time.Duration `json:"duration"`
	Codec           string        `json:"codec"`
	UncompressedLen int           `json:"uncompressed_len"`
	CreatedAt       time.Time     `json:"created_at"`
	Compressed      bool          `json:"compressed"`
	Audio           []byte        `json:"audio"`
}

func encodeEntry(e Entry, enc *zstd.Encoder) ([]byte, error) {
	audio, compressed := compressIfWorthwhile(e.Audio, enc)
	se := storedEntry{
		SampleRate:      e.SampleRate,
		Channels:        e.Channels,
		Duration:        e.Duration,
		Codec:           e.Codec,
		UncompressedLen: len(e.Audio),
		CreatedAt:       e.CreatedAt,
		Compressed:      compressed,
		Audio:           audio,
	}
	return json.Marshal(se)
}

func decodeEntry(raw []byte, dec *zstd.Decoder) (*Entry, error) {
	var se storedEntry
	if err := json.Unmarshal(raw, &se); err != nil {
		return nil, err
	}
	audio := se.Audio
	if se.Compressed {
		decoded, err := dec.DecodeAll(se.Audio, make([]byte, 0, se.UncompressedLen))
		if err != nil {
			return nil, err
		}
		audio = decoded
	}
	return &Entry{
		Audio:           audio,
		SampleRate:      se.SampleRate,
		Channels:        se.Channels,
		Duration:        se.Duration,
		Codec:           se.Codec,
		UncompressedLen: se.UncompressedLen,
		CreatedAt:       se.CreatedAt,
		Compressed:      se.Compressed,
	}, nil
}
