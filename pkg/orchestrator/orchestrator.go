package orchestrator

import (
	"context"
	"time"
)

// Service is the process-wide facade cmd/server wires up: one set of
// provider backends and a shared Registry, handing out a fresh Pipeline
// per connected learner. It plays the role the teacher's Orchestrator
// played, generalized from a single ad hoc ConversationSession to the
// full multi-session Registry of spec §3/§9.
type Service struct {
	asr ASRProvider
	llm LLMProvider
	tts TTSProvider
	vad VADProvider

	feedback FeedbackSink // optional; set via SetFeedbackSink once a Sink is available
	metrics  *Metrics     // optional; set via SetMetrics once a Prometheus registry is available

	registry *Registry
	logger   Logger
}

// NewService builds a Service. A nil logger installs NoOpLogger.
func NewService(asr ASRProvider, llm LLMProvider, tts TTSProvider, vad VADProvider, logger Logger) *Service {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Service{asr: asr, llm: llm, tts: tts, vad: vad, registry: NewRegistry(), logger: logger}
}

// SetFeedbackSink arms every Pipeline started after this call to hand its
// finalized learner turns to sink at session end (spec §4.9/§4.10). Left
// unset, sessions simply skip the handoff — e.g. when no Postgres DSN was
// configured.
func (s *Service) SetFeedbackSink(sink FeedbackSink) { s.feedback = sink }

// SetMetrics arms every Pipeline started after this call to record its
// per-turn latency breakdown into m (spec §4.7 step 4).
func (s *Service) SetMetrics(m *Metrics) { s.metrics = m }

// Registry exposes the shared session registry, e.g. for the HTTP control
// plane's session list/terminate endpoints.
func (s *Service) Registry() *Registry { return s.registry }

// StartSession creates a Session and its bound Pipeline, registers both,
// and returns the Pipeline ready to receive Write calls. scenarioEngine may
// be nil for sessions started without a scenario template.
func (s *Service) StartSession(ctx context.Context, learnerID string, lang Language, agent AgentProfile, cfg Config, scenarioEngine ScenarioAdvancer) *Pipeline {
	session := NewSession(learnerID, lang, agent, cfg)
	session.SetPhase(PhaseListening)
	p := NewPipeline(ctx, session, s.registry, s.asr, s.llm, s.tts, s.vad, scenarioEngine, s.feedback)
	p.SetLogger(s.logger)
	p.SetMetrics(s.metrics)
	s.logger.Info("session started", "sessionID", session.ID, "learnerID", learnerID)
	return p
}

// ReapIdle scans the registry every interval and closes any session idle
// for longer than idleTimeout (spec §3/§4.9's 10-minute default), so a
// learner who drops a connection without a clean transport close still
// reaches Ended and flushes its Feedback Sink handoff. Blocks until ctx is
// done; run it in its own goroutine.
func (s *Service) ReapIdle(ctx context.Context, interval, idleTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids := s.registry.IdleSessions(func(sess *Session) bool { return sess.Idle(idleTimeout) })
			for _, id := range ids {
				if p, ok := s.registry.Pipeline(id); ok {
					p.Close()
				}
				s.logger.Info("idle session reaped", "sessionID", id)
			}
		}
	}
}

// EndSession looks up id and, if found, closes its Pipeline's session
// state. The Pipeline itself is owned by whatever started it (typically
// a Transport Adapter goroutine), so EndSession only marks the Session
// Ended and removes it from the registry; it does not close the
// Pipeline's event channel.
func (s *Service) EndSession(id string) error {
	sess, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	sess.SetPhase(PhaseEnded)
	s.registry.Remove(id)
	s.logger.Info("session ended", "sessionID", id)
	return nil
}
