package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewSessionID returns a ULID-like opaque string (spec §3): a millisecond
// timestamp prefix keeps ids roughly sortable by creation time, the uuid
// suffix keeps them globally unique without a coordinator.
func NewSessionID() string {
	return fmt.Sprintf("sess_%x_%s", time.Now().UnixMilli(), uuid.NewString())
}

// NewTurnID returns an opaque per-turn identifier, stored as Turn.ID. The
// Feedback Sink's (session id, turn index) dedup key uses the Pipeline's
// integer turn index, not this value.
func NewTurnID() string {
	return fmt.Sprintf("turn_%x_%s", time.Now().UnixMilli(), uuid.NewString())
}
