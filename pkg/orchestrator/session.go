package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"
)

// AgentProfile is the static per-agent configuration loaded at session
// start and never mutated thereafter (spec §3).
type AgentProfile struct {
	ID                string
	DisplayName       string
	SystemPromptTmpl  string
	VoiceID           Voice
	DefaultEmotion    Emotion
}

// Session is the Data Model "Session" of spec §3: one long-lived state
// machine per connected learner. It owns the append-only conversation
// history, the scenario cursor, the interruption epoch and the current
// pipeline phase. Pipeline and InterruptionArbiter hold a *Session
// directly; the Registry (see registry.go) is the by-ID lookup for the
// control plane and idle reaper, not an indirection the pipeline uses.
type Session struct {
	mu sync.RWMutex

	ID            string
	LearnerID     string
	Lang          Language
	ScenarioID    string
	Agent         AgentProfile
	Scenario      ScenarioState
	history       []Turn
	latestEmotion Emotion
	phase         Phase

	epoch uint64 // atomic; monotonic interruption counter (spec §3)

	createdAt    time.Time
	lastActivity time.Time

	cfg Config

	latestLatency LatencyBreakdown
}

// LatencyBreakdown is the per-turn timing spec §4.7 step 4's prometheus
// histograms are fed from: how long each leg of one VAD->ASR->LLM->TTS
// round trip took, from speech-end through the first spoken audio chunk.
// A zero value means no turn has completed yet.
type LatencyBreakdown struct {
	ASR      time.Duration // speech-end to transcript commit
	LLM      time.Duration // transcript commit to LLM completion
	TTSFirst time.Duration // LLM completion to first synthesized audio chunk
	Total    time.Duration // transcript commit to first synthesized audio chunk
}

// NewSession constructs a Session in PhaseIdle with an empty history.
func NewSession(learnerID string, lang Language, agent AgentProfile, cfg Config) *Session {
	now := time.Now()
	return &Session{
		ID:           NewSessionID(),
		LearnerID:    learnerID,
		Lang:         lang,
		Agent:        agent,
		phase:        PhaseIdle,
		createdAt:    now,
		lastActivity: now,
		cfg:          cfg,
	}
}

// Phase returns the current pipeline phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// transitions is the state table of spec §4.9, expressed as allowed
// from->to pairs. SetPhase rejects anything not listed here (except the
// universal "any -> Ended").
var transitions = map[Phase]map[Phase]bool{
	PhaseIdle:          {PhaseListening: true},
	PhaseListening:     {PhaseTranscribing: true, PhaseEnded: true},
	PhaseTranscribing:  {PhaseResponseGen: true, PhaseListening: true},
	PhaseResponseGen:   {PhaseResponseSpeak: true, PhaseListening: true},
	PhaseResponseSpeak: {PhaseListening: true},
}

// SetPhase performs a validated transition. Transitioning to PhaseEnded is
// always allowed, matching the "any -> Ended" row of spec §4.9.
func (s *Session) SetPhase(to Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to == PhaseEnded {
		s.phase = PhaseEnded
		return true
	}
	if allowed, ok := transitions[s.phase]; ok && allowed[to] {
		s.phase = to
		return true
	}
	return false
}

// Epoch returns the current interruption epoch.
func (s *Session) Epoch() uint64 {
	return atomic.LoadUint64(&s.epoch)
}

// BumpEpoch atomically increments and returns the new interruption epoch
// (spec §4.8 step 1, §3's monotonicity invariant).
func (s *Session) BumpEpoch() uint64 {
	return atomic.AddUint64(&s.epoch, 1)
}

// StaleEpoch reports whether e no longer matches the session's current
// epoch, i.e. output carrying e should be silently dropped (spec §3).
func (s *Session) StaleEpoch(e uint64) bool {
	return e != s.Epoch()
}

// Touch records inbound activity for idle-timeout purposes.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Idle reports whether no activity has been recorded for longer than d.
func (s *Session) Idle(d time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastActivity) > d
}

// AppendTurn commits a Turn to history. History is strictly append-only
// and monotonically ordered by commit time (spec §3 invariant); no two
// turns may share a (role, speech-start) pair.
func (s *Session) AppendTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.history {
		if existing.Role == t.Role && existing.SpeechStart.Equal(t.SpeechStart) {
			// Refuse to double-commit the same (role, speech-start) pair;
			// the caller made a logic error, not the learner.
			return
		}
	}
	s.history = append(s.history, t)
	if t.Role == RoleAgent {
		s.latestEmotion = t.Emotion
	}
}

// History returns a defensive copy of the committed turns.
func (s *Session) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryLen returns the number of committed turns without copying.
func (s *Session) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// LatestEmotion returns the most recently committed agent turn's emotion.
func (s *Session) LatestEmotion() Emotion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestEmotion
}

// SetScenarioState installs a new scenario cursor. Callers (the Scenario
// Engine) are responsible for enforcing the successor invariant; Session
// itself just stores whatever it's given.
func (s *Session) SetScenarioState(st ScenarioState) {
	s.mu.Lock()
	s.Scenario = st
	s.mu.Unlock()
}

// GetScenarioState returns a copy of the current scenario cursor.
func (s *Session) GetScenarioState() ScenarioState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vars := make(map[string]interface{}, len(s.Scenario.Variables))
	for k, v := range s.Scenario.Variables {
		vars[k] = v
	}
	return ScenarioState{StepID: s.Scenario.StepID, Variables: vars}
}

// LatencyBreakdown returns the most recently completed turn's latency
// instrumentation, or the zero value before any turn has finished.
func (s *Session) LatencyBreakdown() LatencyBreakdown {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestLatency
}

// setLatencyBreakdown records the timing of a just-completed turn.
func (s *Session) setLatencyBreakdown(b LatencyBreakdown) {
	s.mu.Lock()
	s.latestLatency = b
	s.mu.Unlock()
}

// Config returns the session's effective configuration.
func (s *Session) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SlidingWindow returns the system prompt plus the bounded trailing history
// window used to build the next LLM request (spec §4.4): the last
// MaxContextMessages turns or MaxContextTokens worth, whichever is smaller,
// always keeping the system prompt. Truncation discards whole turns,
// oldest first.
func (s *Session) SlidingWindow(systemPrompt string) []Message {
	s.mu.RLock()
	hist := make([]Turn, len(s.history))
	copy(hist, s.history)
	maxMsgs := s.cfg.MaxContextMessages
	maxTokens := s.cfg.MaxContextTokens
	s.mu.RUnlock()

	if maxMsgs <= 0 {
		maxMsgs = 8
	}
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	if len(hist) > maxMsgs {
		hist = hist[len(hist)-maxMsgs:]
	}
	// Trim from the front (oldest first) until the naive token estimate
	// (4 chars/token, a common rough heuristic) fits the budget.
	for estimateTokens(hist) > maxTokens && len(hist) > 0 {
		hist = hist[1:]
	}

	msgs := make([]Message, 0, len(hist)+1)
	msgs = append(msgs, Message{Role: "system", Content: systemPrompt})
	for _, t := range hist {
		role := "user"
		if t.Role == RoleAgent {
			role = "assistant"
		}
		msgs = append(msgs, Message{Role: role, Content: t.Text})
	}
	return msgs
}

func estimateTokens(turns []Turn) int {
	chars := 0
	for _, t := range turns {
		chars += len(t.Text)
	}
	return chars / 4
}
