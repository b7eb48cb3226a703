package orchestrator

import "context"

// FeedbackSink is the seam a Pipeline hands finalized learner turns to at
// session end (spec §4.9's "any -> transport close -> Ended" row, §4.10).
// pkg/feedback.Sink implements this without orchestrator needing to import
// it back.
type FeedbackSink interface {
	Enqueue(ctx context.Context, job FeedbackJob) error
}

// FeedbackJob is one learner turn queued for pronunciation scoring:
// reference text, scenario context and the raw audio the learner spoke it
// in, de-duplicated downstream by (SessionID, TurnIndex).
type FeedbackJob struct {
	SessionID     string
	TurnIndex     int
	ReferenceText string
	ScenarioStep  string
	Language      Language
	Audio         []byte
}
