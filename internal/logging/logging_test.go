package logging

import "testing"

func TestNewDevelopmentLoggerSatisfiesInterface(t *testing.T) {
	l, err := NewDevelopment()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Debug("test debug", "key", "value")
	l.Info("test info")
	l.Warn("test warn", "n", 1)
	l.Error("test error", "err", "boom")
	_ = l.Sync()
}
