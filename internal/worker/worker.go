// Package worker runs background tasks on a bounded set of goroutines.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DefaultSize is the pool size used when New is given a non-positive size.
const DefaultSize = 4

// Pool limits how many submitted tasks run at once.
// Submitting never blocks; excess tasks wait for a slot in their own goroutine.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a pool running at most size tasks concurrently.
func New(size int64, log logrus.FieldLogger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(size),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Go schedules fn. It reports false if the pool is closed.
// Tasks still waiting for a slot when the pool closes are dropped.
func (p *Pool) Go(name string, fn func(ctx context.Context)) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.log.WithField("task", name).Debug("pool closed before task started")
			return
		}
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.log.WithFields(logrus.Fields{"task": name, "panic": r}).Error("background task panicked")
			}
		}()
		fn(p.ctx)
	}()
	return true
}

// After schedules fn on the pool once d has elapsed.
// Stopping the returned timer before it fires prevents the task.
func (p *Pool) After(d time.Duration, name string, fn func(ctx context.Context)) *time.Timer {
	return time.AfterFunc(d, func() {
		p.Go(name, fn)
	})
}

// Close stops accepting tasks, cancels the pool context and waits for
// running tasks to return.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
