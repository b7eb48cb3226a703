package orchestrator

import (
	"context"
	"sync"
)

// InterruptionArbiter is the Interruption Arbiter of spec §4.8: the single
// place a barge-in is decided and carried out. It owns the cancel funcs
// for whatever is currently in flight (ASR stream, LLM generation, TTS
// playback) and the session's epoch counter. Bump always happens before
// cancel, so any goroutine that checks StaleEpoch after observing
// cancellation already sees the new epoch.
type InterruptionArbiter struct {
	mu sync.Mutex

	session *Session

	asrCancel  context.CancelFunc
	llmCancel  context.CancelFunc
	ttsCancel  context.CancelFunc
	speaking   bool
	thinking   bool
	onInterrupt func(epoch uint64)
}

func NewInterruptionArbiter(session *Session) *InterruptionArbiter {
	return &InterruptionArbiter{session: session}
}

// OnInterrupt registers a callback invoked with the new epoch every time
// Interrupt runs. Used by the pipeline to clear the echo-suppression
// buffer and emit EventInterrupted.
func (a *InterruptionArbiter) OnInterrupt(fn func(epoch uint64)) {
	a.mu.Lock()
	a.onInterrupt = fn
	a.mu.Unlock()
}

// Track registers the cancel funcs for newly-started work so a later
// Interrupt can tear them down. A nil cancel leaves that slot unchanged.
func (a *InterruptionArbiter) Track(asr, llm, tts context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if asr != nil {
		a.asrCancel = asr
	}
	if llm != nil {
		a.llmCancel = llm
	}
	if tts != nil {
		a.ttsCancel = tts
	}
}

// SetSpeaking / SetThinking record the bot's current activity so Write-path
// callers can decide whether a detected utterance should barge in at all.
func (a *InterruptionArbiter) SetSpeaking(v bool) {
	a.mu.Lock()
	a.speaking = v
	a.mu.Unlock()
}

func (a *InterruptionArbiter) SetThinking(v bool) {
	a.mu.Lock()
	a.thinking = v
	a.mu.Unlock()
}

func (a *InterruptionArbiter) Speaking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speaking
}

func (a *InterruptionArbiter) Thinking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thinking
}

// Interrupt bumps the session epoch, cancels whatever is tracked, and
// clears activity flags. Returns the new epoch. Safe to call when nothing
// is in flight (a no-op bump).
func (a *InterruptionArbiter) Interrupt() uint64 {
	a.mu.Lock()
	asrCancel, llmCancel, ttsCancel := a.asrCancel, a.llmCancel, a.ttsCancel
	cb := a.onInterrupt
	a.asrCancel, a.llmCancel, a.ttsCancel = nil, nil, nil
	a.speaking, a.thinking = false, false
	a.mu.Unlock()

	epoch := a.session.BumpEpoch()

	if asrCancel != nil {
		asrCancel()
	}
	if llmCancel != nil {
		llmCancel()
	}
	if ttsCancel != nil {
		ttsCancel()
	}
	if cb != nil {
		cb(epoch)
	}
	return epoch
}
