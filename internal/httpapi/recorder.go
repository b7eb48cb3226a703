package httpapi

import (
	"github.com/gramyfied/eloquence-orchestrator/pkg/audio"
	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// pipelineHandle is the subset of *orchestrator.Pipeline recordingPipeline
// drives; kept as an interface so tests can swap in a double that emits
// events synchronously instead of driving a real VAD/ASR/LLM/TTS chain.
type pipelineHandle interface {
	Write(chunk []byte) error
	Events() <-chan orchestrator.SessionEvent
	Interrupt() uint64
	Close()
	SessionID() string
}

// recordingPipeline wraps a pipelineHandle so raw learner audio is buffered
// and flushed to disk as one WAV per finalized turn (spec §6's
// {root}/<session>/<turn>.wav layout), without the bridge or the Pipeline
// itself needing to know persistence is happening.
type recordingPipeline struct {
	pipelineHandle

	store      *audio.SegmentStore
	sessionID  string
	sampleRate int

	buf       []byte
	turnIndex int

	events chan orchestrator.SessionEvent
}

func newRecordingPipeline(p pipelineHandle, store *audio.SegmentStore, sampleRate int) *recordingPipeline {
	rp := &recordingPipeline{
		pipelineHandle: p,
		store:          store,
		sessionID:      p.SessionID(),
		sampleRate:     sampleRate,
		events:         make(chan orchestrator.SessionEvent, 16),
	}
	go rp.pump()
	return rp
}

func (rp *recordingPipeline) Write(chunk []byte) error {
	rp.buf = append(rp.buf, chunk...)
	return rp.pipelineHandle.Write(chunk)
}

func (rp *recordingPipeline) Events() <-chan orchestrator.SessionEvent { return rp.events }

// pump relays the underlying Pipeline's events unchanged, flushing the
// buffered turn audio to store as soon as a TRANSCRIPT_FINAL marks the
// turn's end.
func (rp *recordingPipeline) pump() {
	defer close(rp.events)
	for ev := range rp.pipelineHandle.Events() {
		if ev.Type == orchestrator.EventTranscriptFinal {
			rp.flush()
		}
		rp.events <- ev
	}
	rp.flush()
}

func (rp *recordingPipeline) flush() {
	if len(rp.buf) == 0 {
		return
	}
	if _, err := rp.store.Save(rp.sessionID, rp.turnIndex, rp.buf, rp.sampleRate); err == nil {
		rp.turnIndex++
	}
	rp.buf = rp.buf[:0]
}
