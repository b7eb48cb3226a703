// Package feedback implements the Feedback Sink of spec §4.10: at session
// end (or per-turn when configured) it serializes the learner's audio
// buffer, reference text and scenario context and enqueues a scoring job
// into a durable outbox table, at-least-once, de-duplicated downstream by
// (session id, turn index).
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

const ddlOutbox = `
CREATE TABLE IF NOT EXISTS feedback_outbox (
    id              BIGSERIAL    PRIMARY KEY,
    session_id      TEXT         NOT NULL,
    turn_index      INTEGER      NOT NULL,
    reference_text  TEXT         NOT NULL,
    scenario_step   TEXT         NOT NULL DEFAULT '',
    language        TEXT         NOT NULL,
    audio           BYTEA        NOT NULL,
    status          TEXT         NOT NULL DEFAULT 'pending',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_feedback_outbox_session_turn
    ON feedback_outbox (session_id, turn_index);
`

// Sink is the durable queue a Pipeline enqueues into at session teardown
// (orchestrator.FeedbackSink's sole implementation in this tree).
type Sink struct {
	pool *pgxpool.Pool
}

// Migrate ensures the outbox table and its de-dup index exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlOutbox); err != nil {
		return fmt.Errorf("feedback: migrate outbox: %w", err)
	}
	return nil
}

// NewSink connects to dsn, runs Migrate and returns a ready Sink.
func NewSink(ctx context.Context, dsn string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("feedback: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("feedback: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Sink{pool: pool}, nil
}

// Enqueue writes job fire-and-forget. A duplicate (session id, turn
// index) is silently absorbed by the unique index rather than erroring,
// giving the at-least-once-with-dedup semantics §4.10 asks for.
func (s *Sink) Enqueue(ctx context.Context, job orchestrator.FeedbackJob) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback_outbox (session_id, turn_index, reference_text, scenario_step, language, audio)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, turn_index) DO NOTHING
	`, job.SessionID, job.TurnIndex, job.ReferenceText, job.ScenarioStep, string(job.Language), job.Audio)
	if err != nil {
		return fmt.Errorf("feedback: enqueue: %w", err)
	}
	return nil
}

// Artifact is a completed scoring result, as returned by the HTTP control
// plane's GET /sessions/{id}/feedback.
type Artifact struct {
	SessionID string
	TurnIndex int
	Status    string
	CreatedAt time.Time
}

// ListArtifacts returns the outbox rows for sessionID, used to serve
// GET /sessions/{id}/feedback.
func (s *Sink) ListArtifacts(ctx context.Context, sessionID string) ([]Artifact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, turn_index, status, created_at
		FROM feedback_outbox
		WHERE session_id = $1
		ORDER BY turn_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("feedback: list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.SessionID, &a.TurnIndex, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("feedback: scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}
