package connpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

func TestDoRunsFnHoldingASlot(t *testing.T) {
	p := New(1, time.Second)
	var ran bool
	err := p.Do(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("expected fn to run")
	}
}

func TestDoFailsWithOverloadedWhenSlotsExhausted(t *testing.T) {
	p := New(1, 20*time.Millisecond)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.Do(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // let the first Do acquire its slot

	err := p.Do(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn should not run when no slot is available")
		return nil
	})
	close(release)
	wg.Wait()

	if orchestrator.KindOf(err) != orchestrator.KindOverloaded {
		t.Fatalf("expected KindOverloaded, got %v", err)
	}
}

func TestDoAdmitsQueuedCallerOnceASlotFrees(t *testing.T) {
	p := New(1, time.Second)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.Do(context.Background(), func(ctx context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- p.Do(context.Background(), func(ctx context.Context) error { return nil })
	}()

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("queued caller never admitted")
	}
}

func TestNewClampsInvalidArguments(t *testing.T) {
	p := New(0, 0)
	if p.sem == nil || p.maxWait <= 0 {
		t.Fatal("expected New to clamp non-positive size/maxWait to safe defaults")
	}
}
