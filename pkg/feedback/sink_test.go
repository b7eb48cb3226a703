package feedback_test

import (
	"context"
	"os"
	"testing"

	"github.com/gramyfied/eloquence-orchestrator/pkg/feedback"
	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if ELOQUENCE_TEST_POSTGRES_DSN is not set. No live Postgres is
// available in this environment, so these tests only run where a real
// database has been provisioned for them.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("ELOQUENCE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ELOQUENCE_TEST_POSTGRES_DSN not set — skipping feedback sink integration tests")
	}
	return dsn
}

func newTestSink(t *testing.T) *feedback.Sink {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	sink, err := feedback.NewSink(ctx, dsn)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	t.Cleanup(sink.Close)
	return sink
}

func TestEnqueueAndListArtifacts(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	job := orchestrator.FeedbackJob{
		SessionID:     "sess-1",
		TurnIndex:     0,
		ReferenceText: "Bonjour, je m'appelle Marie.",
		ScenarioStep:  "presentation",
		Language:      orchestrator.LanguageFr,
		Audio:         []byte{1, 2, 3, 4},
	}
	if err := sink.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	artifacts, err := sink.ListArtifacts(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].TurnIndex != 0 {
		t.Fatalf("unexpected artifacts: %+v", artifacts)
	}
}

func TestEnqueueDeduplicatesSameSessionTurn(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	job := orchestrator.FeedbackJob{SessionID: "sess-2", TurnIndex: 3, ReferenceText: "hello", Language: orchestrator.LanguageEn}
	if err := sink.Enqueue(ctx, job); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := sink.Enqueue(ctx, job); err != nil {
		t.Fatalf("duplicate enqueue should not error: %v", err)
	}

	artifacts, err := sink.ListArtifacts(ctx, "sess-2")
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected dedup down to 1 artifact, got %d", len(artifacts))
	}
}
