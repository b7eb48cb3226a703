package orchestrator

import (
	"math"
	"time"
)

// VADEventType is the event vocabulary a VADProvider emits per §3/§4.1.
type VADEventType string

const (
	VADSpeechStart VADEventType = "speech_start"
	VADSpeechEnd   VADEventType = "speech_end"
	VADSilence     VADEventType = "silence"
)

// VADEvent reports a VAD provider's verdict for one processed chunk.
type VADEvent struct {
	Type      VADEventType
	Timestamp int64 // unix millis
}

// VADProvider is the pluggable Voice Activity Detection contract. A
// model-backed provider can sit behind this interface; RMSVAD is the
// always-available fallback the Gate reaches for when the primary
// provider errors (spec §4.1's "degraded" path).
type VADProvider interface {
	Process(chunk []byte) (*VADEvent, error)
	IsSpeaking() bool
	Reset()
	Clone() VADProvider
	Name() string
}

// RMSVAD is a lightweight, dependency-free Voice Activity Detector based
// on the root-mean-square energy of each chunk, with frame-count
// hysteresis on the start edge so that clicks and echo-onset pops don't
// trigger false speech starts, and a silence-duration limit on the end edge.
type RMSVAD struct {
	threshold    float64
	silenceLimit time.Duration
	isSpeaking   bool
	silenceStart time.Time

	consecutiveFrames int
	minConfirmed      int
	lastRMS           float64
}

// NewRMSVAD creates a new RMS-based VAD.
func NewRMSVAD(threshold float64, silenceLimit time.Duration) *RMSVAD {
	return &RMSVAD{
		threshold:    threshold,
		silenceLimit: silenceLimit,
		minConfirmed: 7, // ~140ms of continuous sound at 20ms frames, for a snappy barge-in
	}
}

func (v *RMSVAD) SetMinConfirmed(count int) { v.minConfirmed = count }
func (v *RMSVAD) SetThreshold(threshold float64) { v.threshold = threshold }
func (v *RMSVAD) Threshold() float64 { return v.threshold }
func (v *RMSVAD) LastRMS() float64 { return v.lastRMS }
func (v *RMSVAD) IsSpeaking() bool { return v.isSpeaking }

func (v *RMSVAD) Process(chunk []byte) (*VADEvent, error) {
	rms := v.calculateRMS(chunk)
	v.lastRMS = rms
	now := time.Now()

	if rms > v.threshold {
		v.consecutiveFrames++
		if !v.isSpeaking {
			if v.consecutiveFrames >= v.minConfirmed {
				v.isSpeaking = true
				return &VADEvent{Type: VADSpeechStart, Timestamp: now.UnixMilli()}, nil
			}
			return nil, nil
		}
		v.silenceStart = time.Time{}
		return nil, nil
	}

	v.consecutiveFrames = 0

	if v.isSpeaking {
		if v.silenceStart.IsZero() {
			v.silenceStart = now
		}
		if now.Sub(v.silenceStart) >= v.silenceLimit {
			v.isSpeaking = false
			v.silenceStart = time.Time{}
			return &VADEvent{Type: VADSpeechEnd, Timestamp: now.UnixMilli()}, nil
		}
	}

	return &VADEvent{Type: VADSilence, Timestamp: now.UnixMilli()}, nil
}

func (v *RMSVAD) Name() string { return "rms_vad" }

func (v *RMSVAD) Reset() {
	v.isSpeaking = false
	v.silenceStart = time.Time{}
	v.consecutiveFrames = 0
}

func (v *RMSVAD) Clone() VADProvider {
	return &RMSVAD{
		threshold:    v.threshold,
		silenceLimit: v.silenceLimit,
		minConfirmed: v.minConfirmed,
	}
}

func (v *RMSVAD) calculateRMS(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(chunk)-1; i += 2 {
		sample := int16(chunk[i]) | (int16(chunk[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(chunk)/2))
}

// paddingRing is a fixed-capacity byte ring buffer holding the trailing
// speech_pad_ms of audio seen before a confirmed speech_start, so that
// the segment handed to ASR includes the syllable that preceded
// confirmation (spec §4.1 step 2).
type paddingRing struct {
	buf  [][]byte
	cap  int
	size int
}

func newPaddingRing(capChunks int) *paddingRing {
	if capChunks < 1 {
		capChunks = 1
	}
	return &paddingRing{buf: make([][]byte, 0, capChunks), cap: capChunks}
}

func (r *paddingRing) Push(chunk []byte) {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	if len(r.buf) < r.cap {
		r.buf = append(r.buf, cp)
		return
	}
	copy(r.buf, r.buf[1:])
	r.buf[len(r.buf)-1] = cp
}

// Drain returns, and clears, the buffered chunks in chronological order.
func (r *paddingRing) Drain() [][]byte {
	out := r.buf
	r.buf = make([][]byte, 0, r.cap)
	return out
}

// VADGate wraps a primary VADProvider with the pre-speech padding buffer
// and a fallback RMS-based provider: if primary.Process returns an error
// the Gate switches to RMSVAD and reports it through Degraded(), on which
// Pipeline.Write emits EventDegraded once, matching
// spec §4.1's "never stall audio in-flow; fall back and flag degraded"
// requirement.
type VADGate struct {
	primary    VADProvider
	fallback   *RMSVAD
	degraded   bool
	frameBytes int // not set by NewVADGate; the ring is sized from padMs/frameMs
	ring       *paddingRing
}

// NewVADGate builds a Gate. padMs/frameMs together size the ring: padMs
// of lookback at one chunk per frameMs.
func NewVADGate(primary VADProvider, fallback *RMSVAD, padMs, frameMs int) *VADGate {
	if frameMs <= 0 {
		frameMs = 20
	}
	capChunks := padMs / frameMs
	if capChunks < 1 {
		capChunks = 1
	}
	return &VADGate{
		primary:  primary,
		fallback: fallback,
		ring:     newPaddingRing(capChunks),
	}
}

// Degraded reports whether the Gate has fallen back to RMSVAD.
func (g *VADGate) Degraded() bool { return g.degraded }

// Process runs the active provider over chunk. While no speech is
// confirmed, chunk is also pushed into the pre-speech ring so a
// subsequent speech_start can be backfilled with PrefixAndDrain.
func (g *VADGate) Process(chunk []byte) (*VADEvent, error) {
	active := g.active()
	if !active.IsSpeaking() {
		g.ring.Push(chunk)
	}

	ev, err := active.Process(chunk)
	if err != nil && active == g.primary {
		g.degraded = true
		g.primary.Reset()
		return g.fallback.Process(chunk)
	}
	return ev, nil
}

func (g *VADGate) active() VADProvider {
	if g.degraded {
		return g.fallback
	}
	return g.primary
}

// PrefixAndDrain returns the buffered pre-speech padding, oldest first,
// and empties the ring. Call once on VADSpeechStart before appending the
// chunk that triggered it.
func (g *VADGate) PrefixAndDrain() [][]byte {
	return g.ring.Drain()
}

// Reset clears both providers and the padding ring, e.g. after a segment
// is committed.
func (g *VADGate) Reset() {
	g.primary.Reset()
	g.fallback.Reset()
	g.ring.Drain()
}
