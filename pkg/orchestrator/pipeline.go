package orchestrator

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"
)

const speechEndHold = 300 * time.Millisecond

// turnTiming carries the in-flight latency marks for the turn currently
// being processed, read by recordLatency once the first TTS chunk lands.
type turnTiming struct {
	start   time.Time // transcript commit
	asrDur  time.Duration
	llmDone time.Time
}

// Pipeline is the Session-bound supervisor of spec §4: it owns the VAD
// gate, echo suppressor and the ASR/LLM/TTS round trip for exactly one
// Session, and is where the Interruption Arbiter's cancel funcs get
// registered as each stage starts. One Pipeline per live connection;
// Pipeline never outlives its Session.
type Pipeline struct {
	session  *Session
	registry *Registry
	arbiter  *InterruptionArbiter

	asr      ASRProvider
	llm      LLMProvider
	tts      TTSProvider
	scenario ScenarioAdvancer // optional; nil when the session has no scenario
	feedback FeedbackSink     // optional; nil disables pronunciation-scoring handoff

	maxBufferedAudio int // bytes, derived from Config.SlowConsumerBufferedAudio

	ctx    context.Context
	cancel context.CancelFunc

	vad     *VADGate
	echo    *EchoSuppressor
	logger  Logger
	metrics *Metrics

	events chan SessionEvent

	mu            sync.Mutex
	audioBuf      bytes.Buffer
	turnAudio     bytes.Buffer // raw PCM of the learner turn currently in progress
	turnCounter   int
	feedbackQueue []FeedbackJob
	sttChan       chan<- []byte
	sttCtx        context.Context
	lastAudioAt   time.Time
	asrStart      time.Time  // set at speech-end; start of the current turn's ASR leg
	timing        turnTiming // in-flight latency marks for the turn being processed

	closeOnce sync.Once
}

// NewPipeline wires a Pipeline for session, registering it (and itself,
// keyed by session ID) with registry so stray async callbacks, and an
// idle-reaper, can resolve either after Pipeline construction returns. A
// nil feedback disables handing finalized learner turns to a Feedback
// Sink at Close.
func NewPipeline(ctx context.Context, session *Session, registry *Registry, asr ASRProvider, llm LLMProvider, tts TTSProvider, vad VADProvider, scenarioEngine ScenarioAdvancer, feedback FeedbackSink) *Pipeline {
	pCtx, cancel := context.WithCancel(ctx)
	registry.Put(session)

	cfg := session.Config()
	p := &Pipeline{
		session:          session,
		registry:         registry,
		arbiter:          NewInterruptionArbiter(session),
		asr:              asr,
		llm:              llm,
		tts:              tts,
		scenario:         scenarioEngine,
		feedback:         feedback,
		maxBufferedAudio: int(cfg.SlowConsumerBufferedAudio.Seconds() * float64(cfg.SampleRate*cfg.BytesPerSamp)),
		ctx:              pCtx,
		cancel:           cancel,
		vad:              NewVADGate(vad, NewRMSVAD(cfg.VADThreshold, time.Duration(cfg.VADMinSilenceMs)*time.Millisecond), cfg.VADSpeechPadMs, 20),
		echo:             NewEchoSuppressor(session.ID, nil),
		logger:           &NoOpLogger{},
		events:           make(chan SessionEvent, 1024),
	}
	p.arbiter.OnInterrupt(func(epoch uint64) {
		p.echo.ResetForEpoch(epoch)
		p.emit(EventInterrupted, epoch, nil)
	})
	registry.PutPipeline(session.ID, p)
	return p
}

// SetLogger upgrades the Pipeline's (and its EchoSuppressor's) logger once a
// Service-wide Logger becomes available; NewPipeline itself has no Logger
// param so every existing call site, including tests, keeps compiling.
func (p *Pipeline) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	p.logger = logger
	p.echo.SetLogger(logger)
}

// SetMetrics arms per-turn latency observation; a Pipeline built without one
// (most tests) simply never records latency, since Metrics.observe is a
// nil-safe no-op.
func (p *Pipeline) SetMetrics(m *Metrics) {
	p.metrics = m
}

// Events exposes the Pipeline's outbound event stream for a Transport
// Adapter (or a test) to consume.
func (p *Pipeline) Events() <-chan SessionEvent { return p.events }

// SessionID returns the bound Session's id, the key a Transport Adapter or
// the HTTP control plane uses to look this Pipeline back up.
func (p *Pipeline) SessionID() string { return p.session.ID }

// Write feeds one chunk of learner microphone audio through echo removal,
// VAD gating and, once a segment is confirmed, ASR (spec §4.1-§4.3).
func (p *Pipeline) Write(chunk []byte) error {
	p.session.Touch()
	cleaned := p.echo.RemoveEchoRealtime(chunk)

	wasDegraded := p.vad.Degraded()
	ev, err := p.vad.Process(cleaned)
	if err != nil {
		return err
	}
	if !wasDegraded && p.vad.Degraded() {
		p.emit(EventDegraded, p.session.Epoch(), "vad: primary provider failed, using RMS fallback")
	}

	if ev != nil {
		switch ev.Type {
		case VADSpeechStart:
			p.onSpeechStart(cleaned)
		case VADSpeechEnd:
			p.onSpeechEnd()
		}
	}

	p.mu.Lock()
	sttChan := p.sttChan
	overflow := false
	if ev == nil && p.vad.active().IsSpeaking() {
		// Mid-segment frame, not the edge chunk onSpeechStart already wrote.
		p.turnAudio.Write(cleaned)
		if sttChan == nil {
			// Batch path: audioBuf is the segment handed to ASR at speech end.
			p.audioBuf.Write(cleaned)
		}
	}
	if sttChan != nil {
		p.lastAudioAt = time.Now()
	} else if !p.vad.active().IsSpeaking() {
		// Not yet in a confirmed segment and no streaming ASR session:
		// accumulate for the eventual batch transcription call.
		p.audioBuf.Write(cleaned)
		overflow = p.audioBuf.Len() > p.maxBufferedAudio
	}
	p.mu.Unlock()

	if overflow {
		// Inbound audio has piled up past the backpressure budget with no
		// confirmed segment to drain it; spec §7 treats this as terminal.
		err := Coded(KindSlowConsumer, ErrSlowConsumer)
		p.emit(EventError, p.session.Epoch(), err)
		p.Close()
		return err
	}

	if sttChan != nil {
		select {
		case sttChan <- cleaned:
		default:
		}
	}
	return nil
}

func (p *Pipeline) onSpeechStart(chunk []byte) {
	session := p.session
	session.Touch()

	if session.Phase() == PhaseResponseSpeak || p.arbiter.Speaking() || p.arbiter.Thinking() {
		p.arbiter.Interrupt()
	}
	session.SetPhase(PhaseListening)
	epoch := session.Epoch()
	p.emit(EventUserSpeaking, epoch, nil)

	prefix := p.vad.PrefixAndDrain()
	p.mu.Lock()
	p.audioBuf.Reset()
	p.turnAudio.Reset()
	for _, c := range prefix {
		p.audioBuf.Write(c)
		p.turnAudio.Write(c)
	}
	p.audioBuf.Write(chunk)
	p.turnAudio.Write(chunk)

	if streaming, ok := p.asr.(StreamingASRProvider); ok {
		sttCtx, sttCancel := context.WithCancel(p.ctx)
		p.arbiter.Track(sttCancel, nil, nil)
		p.sttCtx = sttCtx
		lang := session.Lang
		sttChan, err := streaming.StreamTranscribe(sttCtx, lang, p.streamingCallback(epoch))
		if err == nil {
			p.sttChan = sttChan
			if p.audioBuf.Len() > 0 {
				data := make([]byte, p.audioBuf.Len())
				copy(data, p.audioBuf.Bytes())
				p.audioBuf.Reset()
				select {
				case sttChan <- data:
				default:
				}
			}
		}
	}
	p.mu.Unlock()
}

func (p *Pipeline) onSpeechEnd() {
	p.session.SetPhase(PhaseTranscribing)
	epoch := p.session.Epoch()
	p.emit(EventUserStopped, epoch, nil)

	p.mu.Lock()
	p.asrStart = time.Now()
	if p.sttChan != nil {
		// Streaming session will deliver its own final callback; just stop
		// feeding it new audio.
		p.sttChan = nil
		p.mu.Unlock()
		return
	}
	data := make([]byte, p.audioBuf.Len())
	copy(data, p.audioBuf.Bytes())
	p.audioBuf.Reset()
	p.mu.Unlock()

	go func() {
		t := time.NewTimer(speechEndHold)
		defer t.Stop()
		select {
		case <-t.C:
			if p.vad.active().IsSpeaking() {
				p.mu.Lock()
				p.audioBuf.Write(data)
				p.mu.Unlock()
				return
			}
			p.runBatch(epoch, data)
		case <-p.ctx.Done():
		}
	}()
}

func (p *Pipeline) streamingCallback(epoch uint64) StreamingASRCallback {
	return func(transcript string, isFinal bool) error {
		if p.session.StaleEpoch(epoch) {
			return nil
		}
		if p.arbiter.Speaking() || p.arbiter.Thinking() {
			cfg := p.session.Config()
			if cfg.MinWordsToInterrupt <= 1 || countWords(transcript) >= cfg.MinWordsToInterrupt {
				if strings.TrimSpace(transcript) != "" {
					epoch = p.arbiter.Interrupt()
				}
			} else {
				if !isFinal {
					p.emit(EventTranscriptPartial, epoch, transcript)
				}
				return nil
			}
		}

		if !isFinal {
			p.emit(EventTranscriptPartial, epoch, transcript)
			return nil
		}
		p.commitUserTurn(epoch, transcript)
		return nil
	}
}

func (p *Pipeline) runBatch(epoch uint64, audioData []byte) {
	if p.session.StaleEpoch(epoch) {
		return
	}
	segDur := SpeechSegment{PCM: audioData}.Duration(p.session.Config().SampleRate)
	if segDur < 200*time.Millisecond || len(audioData) < 400 {
		return
	}

	asrCtx, asrCancel := context.WithTimeout(p.ctx, p.session.Config().ASRTimeout)
	p.arbiter.Track(asrCancel, nil, nil)
	defer asrCancel()

	transcript, err := p.asr.Transcribe(asrCtx, audioData, p.session.Lang)
	if err != nil {
		if asrCtx.Err() == nil {
			p.emit(EventError, epoch, Coded(KindUpstream, err))
		}
		return
	}
	if strings.TrimSpace(transcript) == "" {
		return
	}
	p.commitUserTurn(epoch, transcript)
}

func (p *Pipeline) commitUserTurn(epoch uint64, transcript string) {
	if p.session.StaleEpoch(epoch) {
		return
	}
	now := time.Now()
	scenarioStep := p.session.GetScenarioState().StepID

	p.mu.Lock()
	turnIndex := p.turnCounter
	p.turnCounter++
	audioData := make([]byte, p.turnAudio.Len())
	copy(audioData, p.turnAudio.Bytes())
	p.turnAudio.Reset()
	var asrDur time.Duration
	if !p.asrStart.IsZero() {
		asrDur = now.Sub(p.asrStart)
	}
	p.timing = turnTiming{start: now, asrDur: asrDur}
	if p.feedback != nil {
		p.feedbackQueue = append(p.feedbackQueue, FeedbackJob{
			SessionID:     p.session.ID,
			TurnIndex:     turnIndex,
			ReferenceText: transcript,
			ScenarioStep:  scenarioStep,
			Language:      p.session.Lang,
			Audio:         audioData,
		})
	}
	p.mu.Unlock()

	p.session.AppendTurn(Turn{ID: NewTurnID(), Role: RoleLearner, Text: transcript, ScenarioStep: scenarioStep, SpeechStart: now, SpeechEnd: now})
	p.emit(EventTranscriptFinal, epoch, transcript)

	if p.scenario != nil {
		next := p.scenario.Advance(p.session.GetScenarioState(), transcript)
		p.session.SetScenarioState(next)
		p.emit(EventScenarioAdvanced, epoch, next.StepID)
	}

	p.session.SetPhase(PhaseResponseGen)
	p.runResponse(epoch, transcript)
}

// runResponse drives the LLM -> emotion-tag -> TTS leg of one turn (spec
// §4.4-§4.7). Any stage observing a stale epoch at its boundary drops its
// own output instead of publishing it.
func (p *Pipeline) runResponse(epoch uint64, userText string) {
	p.arbiter.SetThinking(true)
	p.emit(EventBotThinking, epoch, nil)

	llmCtx, llmCancel := context.WithTimeout(p.ctx, p.session.Config().LLMTimeout)
	p.arbiter.Track(nil, llmCancel, nil)
	defer llmCancel()

	systemPrompt := BuildSystemPrompt(p.session.Agent, p.session.GetScenarioState())
	messages := p.session.SlidingWindow(systemPrompt)

	reply, err := p.llm.Complete(llmCtx, messages)
	p.mu.Lock()
	p.timing.llmDone = time.Now()
	p.mu.Unlock()
	if p.session.StaleEpoch(epoch) {
		return
	}
	degraded := false
	if err != nil {
		if llmCtx.Err() != nil {
			return // cancelled by an interruption; nothing to degrade
		}
		// An upstream failure carries no emotional signal of its own; tag it
		// neutre rather than leaving TagEmotion to infer one lexically.
		reply = FallbackUtterance(p.session.Lang, EmotionNeutre)
		degraded = true
		p.emit(EventDegraded, epoch, Coded(KindUpstream, err))
	}

	text, emotion := TagEmotion(reply)
	now := time.Now()
	p.session.AppendTurn(Turn{ID: NewTurnID(), Role: RoleAgent, Text: text, Emotion: emotion, SpeechStart: now, FirstResp: now, LastResp: now, Degraded: degraded})
	p.arbiter.SetThinking(false)
	p.emit(EventBotResponse, epoch, text)
	p.emit(EventTurnEmotion, epoch, emotion)

	p.speak(epoch, text, emotion)
}

func (p *Pipeline) speak(epoch uint64, text string, emotion Emotion) {
	if p.session.StaleEpoch(epoch) {
		return
	}
	p.session.SetPhase(PhaseResponseSpeak)
	p.arbiter.SetSpeaking(true)
	p.vad.Reset()

	ttsCtx, ttsCancel := context.WithTimeout(p.ctx, p.session.Config().TTSTimeout)
	p.arbiter.Track(nil, nil, ttsCancel)
	defer ttsCancel()

	p.emit(EventBotSpeaking, epoch, nil)

	voice := p.session.Agent.VoiceID
	firstChunk := true
	err := p.tts.StreamSynthesize(ttsCtx, text, voice, p.session.Lang, emotion, func(audioChunk []byte) error {
		select {
		case <-ttsCtx.Done():
			return ttsCtx.Err()
		default:
		}
		if p.session.StaleEpoch(epoch) {
			return context.Canceled
		}
		p.mu.Lock()
		p.lastAudioAt = time.Now()
		p.mu.Unlock()
		if firstChunk {
			firstChunk = false
			p.recordLatency()
		}
		p.echo.RecordPlayedAudio(audioChunk)
		p.emit(EventAudioChunk, epoch, audioChunk)
		return nil
	})

	if err != nil && ttsCtx.Err() == nil && !p.session.StaleEpoch(epoch) {
		p.emit(EventError, epoch, Coded(KindUpstream, err))
	}

	if !p.session.StaleEpoch(epoch) {
		p.arbiter.SetSpeaking(false)
		p.session.SetPhase(PhaseListening)
	}
}

// Interrupt performs an explicit barge-in, e.g. triggered by a `cancel`
// control frame rather than VAD-detected speech.
func (p *Pipeline) Interrupt() uint64 {
	epoch := p.arbiter.Interrupt()
	if err := p.tts.Abort(); err != nil {
		// Best-effort: the TTS context cancellation above already stops
		// chunk delivery even if the provider-level abort call fails.
		_ = err
	}
	return epoch
}

// recordLatency computes the completed turn's LatencyBreakdown from the
// marks left by commitUserTurn/runResponse and the first TTS chunk landing
// just now, stores it on the Session (spec §4.7 step 4's "kept and adapted
// as Session.LatencyBreakdown()") and feeds the Prometheus histograms.
func (p *Pipeline) recordLatency() {
	now := time.Now()
	p.mu.Lock()
	t := p.timing
	p.mu.Unlock()
	if t.start.IsZero() || t.llmDone.IsZero() {
		return
	}
	breakdown := LatencyBreakdown{
		ASR:      t.asrDur,
		LLM:      t.llmDone.Sub(t.start),
		TTSFirst: now.Sub(t.llmDone),
		Total:    now.Sub(t.start),
	}
	p.session.setLatencyBreakdown(breakdown)
	p.metrics.observe(breakdown)
}

func (p *Pipeline) emit(t EventType, epoch uint64, data interface{}) {
	select {
	case <-p.ctx.Done():
		return
	default:
	}
	select {
	case p.events <- SessionEvent{Type: t, SessionID: p.session.ID, Epoch: epoch, Data: data}:
	default:
	}
}

// Close tears down the Pipeline: cancels in-flight work, deregisters the
// Session and closes the event channel. Idempotent.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.arbiter.Interrupt()
		p.flushFeedback()
		p.session.SetPhase(PhaseEnded)
		p.cancel()
		p.registry.Remove(p.session.ID)
		time.Sleep(10 * time.Millisecond)
		close(p.events)
	})
}

// flushFeedback hands every finalized learner turn to the Feedback Sink,
// matching the "any -> transport close -> Ended" row of the session state
// machine. Best-effort: a sink error is logged-by-caller-absence only,
// never blocks teardown, and Enqueue's own unique index makes a repeat
// flush harmless.
func (p *Pipeline) flushFeedback() {
	if p.feedback == nil {
		return
	}
	p.mu.Lock()
	jobs := p.feedbackQueue
	p.feedbackQueue = nil
	p.mu.Unlock()
	if len(jobs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, job := range jobs {
		_ = p.feedback.Enqueue(ctx, job)
	}
}

func countWords(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return len(strings.Fields(s))
}
