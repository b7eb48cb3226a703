// Package connpool implements the per-external-service connection pool of
// spec §5: concurrency into each of ASR/LLM/TTS is bounded, and a request
// that cannot acquire a slot within the configured max wait fails with
// orchestrator.ErrOverloaded rather than queuing indefinitely.
package connpool

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gramyfied/eloquence-orchestrator/pkg/orchestrator"
)

// Pool bounds concurrent callers to size, queuing up to maxWait before
// giving up.
type Pool struct {
	sem     *semaphore.Weighted
	maxWait time.Duration
}

// New builds a Pool admitting at most size concurrent callers.
func New(size int, maxWait time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), maxWait: maxWait}
}

// Do runs fn holding one pool slot, or returns a Coded(KindOverloaded, ...)
// error if no slot frees up within the pool's max wait.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		return orchestrator.Coded(orchestrator.KindOverloaded, orchestrator.ErrOverloaded)
	}
	defer p.sem.Release(1)

	return fn(ctx)
}
