package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockASR struct {
	transcript string
	err        error
}

func (m *mockASR) Transcribe(ctx context.Context, audio []byte, lang Language) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.transcript, nil
}
func (m *mockASR) Name() string { return "mock_asr" }

type mockLLM struct {
	reply string
	err   error
}

func (m *mockLLM) Complete(ctx context.Context, messages []Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}
func (m *mockLLM) Name() string { return "mock_llm" }

type mockTTS struct {
	chunks  [][]byte
	aborted bool
	err     error
}

func (m *mockTTS) Synthesize(ctx context.Context, text string, voice Voice, lang Language, emotion Emotion) ([]byte, error) {
	return []byte(text), m.err
}
func (m *mockTTS) StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, emotion Emotion, onChunk func([]byte) error) error {
	if m.err != nil {
		return m.err
	}
	for _, c := range m.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return nil
}
func (m *mockTTS) Abort() error { m.aborted = true; return nil }
func (m *mockTTS) Name() string { return "mock_tts" }

func newTestPipeline(asr ASRProvider, llm LLMProvider, tts TTSProvider) (*Pipeline, *Session) {
	cfg := DefaultConfig()
	session := NewSession("learner-1", LanguageEn, AgentProfile{SystemPromptTmpl: "You are a coach.", VoiceID: VoiceF1}, cfg)
	registry := NewRegistry()
	p := NewPipeline(context.Background(), session, registry, asr, llm, tts, NewRMSVAD(cfg.VADThreshold, time.Duration(cfg.VADMinSilenceMs)*time.Millisecond), nil, nil)
	return p, session
}

func drainEvents(t *testing.T, p *Pipeline, want EventType, timeout time.Duration) *SessionEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				return nil
			}
			if ev.Type == want {
				return &ev
			}
		case <-deadline:
			return nil
		}
	}
}

func TestPipelineRunsFullTurnOnCommit(t *testing.T) {
	tts := &mockTTS{chunks: [][]byte{{1, 2}, {3, 4}}}
	p, session := newTestPipeline(&mockASR{}, &mockLLM{reply: "[EMOTION:Encouragement] Bien joué !"}, tts)
	defer p.Close()

	epoch := session.Epoch()
	p.commitUserTurn(epoch, "bonjour")

	ev := drainEvents(t, p, EventAudioChunk, time.Second)
	if ev == nil {
		t.Fatalf("expected an EventAudioChunk to be emitted")
	}

	hist := session.History()
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2 (learner + agent turn)", len(hist))
	}
	if hist[1].Emotion != EmotionEncouragement {
		t.Fatalf("agent turn emotion = %v, want Encouragement", hist[1].Emotion)
	}
}

func TestPipelineLLMFailureDegradesInsteadOfErroring(t *testing.T) {
	tts := &mockTTS{chunks: [][]byte{{9}}}
	p, session := newTestPipeline(&mockASR{}, &mockLLM{err: errors.New("upstream down")}, tts)
	defer p.Close()

	epoch := session.Epoch()
	p.commitUserTurn(epoch, "hello")

	ev := drainEvents(t, p, EventDegraded, time.Second)
	if ev == nil {
		t.Fatalf("expected EventDegraded on LLM failure")
	}

	hist := session.History()
	if len(hist) != 2 || !hist[1].Degraded {
		t.Fatalf("expected a degraded agent turn, got %+v", hist)
	}
}

func TestPipelineInterruptBumpsEpochAndStopsSpeaking(t *testing.T) {
	p, session := newTestPipeline(&mockASR{}, &mockLLM{reply: "ok"}, &mockTTS{chunks: [][]byte{{1}}})
	defer p.Close()

	before := session.Epoch()
	after := p.Interrupt()
	if after <= before {
		t.Fatalf("Interrupt did not bump epoch: %d -> %d", before, after)
	}
	if p.arbiter.Speaking() {
		t.Fatalf("arbiter should not report speaking after Interrupt")
	}
}

func TestPipelineStaleEpochDropsResponse(t *testing.T) {
	tts := &mockTTS{chunks: [][]byte{{1}}}
	p, session := newTestPipeline(&mockASR{}, &mockLLM{reply: "late reply"}, tts)
	defer p.Close()

	epoch := session.Epoch()
	session.BumpEpoch() // simulate a barge-in that landed before this transcript was committed

	p.commitUserTurn(epoch, "hello")

	// No new agent turn should have been committed against the stale epoch.
	for _, turn := range session.History() {
		if turn.Role == RoleAgent {
			t.Fatalf("stale-epoch response should have been dropped, found agent turn: %+v", turn)
		}
	}
}

type stubScenarioAdvancer struct {
	nextStep string
}

func (s *stubScenarioAdvancer) Advance(state ScenarioState, transcript string) ScenarioState {
	return ScenarioState{StepID: s.nextStep, Variables: state.Variables}
}

func TestPipelineWriteTerminatesOnSlowConsumerOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlowConsumerBufferedAudio = 10 * time.Millisecond // ~320 bytes at 16kHz/16-bit mono
	session := NewSession("learner-1", LanguageEn, AgentProfile{SystemPromptTmpl: "Coach.", VoiceID: VoiceF1}, cfg)
	registry := NewRegistry()
	p := NewPipeline(context.Background(), session, registry, &mockASR{}, &mockLLM{}, &mockTTS{}, NewRMSVAD(cfg.VADThreshold, time.Duration(cfg.VADMinSilenceMs)*time.Millisecond), nil, nil)
	defer p.Close()

	silentChunk := make([]byte, 512) // below VAD threshold, never confirms a speech segment

	var err error
	for i := 0; i < 5; i++ {
		if err = p.Write(silentChunk); err != nil {
			break
		}
	}
	if err == nil {
		t.Fatalf("expected Write to return an error once buffered audio exceeds the backpressure budget")
	}
	if KindOf(err) != KindSlowConsumer {
		t.Fatalf("error kind = %v, want KindSlowConsumer", KindOf(err))
	}

	ev := drainEvents(t, p, EventError, time.Second)
	if ev == nil {
		t.Fatalf("expected an EventError for the slow-consumer termination")
	}
}

func TestPipelineAdvancesScenarioOnCommit(t *testing.T) {
	cfg := DefaultConfig()
	session := NewSession("learner-1", LanguageEn, AgentProfile{SystemPromptTmpl: "Coach.", VoiceID: VoiceF1}, cfg)
	session.SetScenarioState(NewScenarioState("presentation"))
	registry := NewRegistry()
	p := NewPipeline(context.Background(), session, registry, &mockASR{}, &mockLLM{reply: "ok"}, &mockTTS{chunks: [][]byte{{1}}}, NewRMSVAD(cfg.VADThreshold, time.Duration(cfg.VADMinSilenceMs)*time.Millisecond), &stubScenarioAdvancer{nextStep: "motivation"}, nil)
	defer p.Close()

	epoch := session.Epoch()
	p.commitUserTurn(epoch, "bonjour")

	if got := session.GetScenarioState().StepID; got != "motivation" {
		t.Fatalf("scenario step = %q, want motivation", got)
	}
}

func TestPipelineRecordsLatencyBreakdownOnFirstChunk(t *testing.T) {
	tts := &mockTTS{chunks: [][]byte{{1, 2}, {3, 4}}}
	p, session := newTestPipeline(&mockASR{}, &mockLLM{reply: "ok"}, tts)
	defer p.Close()

	epoch := session.Epoch()
	p.commitUserTurn(epoch, "bonjour")
	drainEvents(t, p, EventAudioChunk, time.Second)

	b := session.LatencyBreakdown()
	if b.Total <= 0 {
		t.Fatalf("expected a non-zero total latency, got %+v", b)
	}
	if b.LLM < 0 || b.TTSFirst < 0 {
		t.Fatalf("expected non-negative leg durations, got %+v", b)
	}
}

type mockFeedbackSink struct {
	mu   sync.Mutex
	jobs []FeedbackJob
}

func (m *mockFeedbackSink) Enqueue(ctx context.Context, job FeedbackJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
	return nil
}

func TestPipelineFlushesFeedbackOnClose(t *testing.T) {
	cfg := DefaultConfig()
	session := NewSession("learner-1", LanguageEn, AgentProfile{SystemPromptTmpl: "Coach.", VoiceID: VoiceF1}, cfg)
	registry := NewRegistry()
	sink := &mockFeedbackSink{}
	p := NewPipeline(context.Background(), session, registry, &mockASR{}, &mockLLM{reply: "ok"}, &mockTTS{chunks: [][]byte{{1}}}, NewRMSVAD(cfg.VADThreshold, time.Duration(cfg.VADMinSilenceMs)*time.Millisecond), nil, sink)

	epoch := session.Epoch()
	p.commitUserTurn(epoch, "bonjour")
	drainEvents(t, p, EventAudioChunk, time.Second)

	p.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.jobs) != 1 {
		t.Fatalf("expected 1 queued feedback job, got %d", len(sink.jobs))
	}
	if sink.jobs[0].ReferenceText != "bonjour" || sink.jobs[0].SessionID != session.ID {
		t.Fatalf("unexpected feedback job: %+v", sink.jobs[0])
	}
}
