// Package scheduler provides an explicit periodic task with a cancellation
// handle, replacing ad-hoc ticker loops scattered across callers.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Func is the unit of work executed on every tick.
type Func func(context.Context) error

// Task runs fn at a fixed interval until stopped. Start may be called once;
// Stop cancels the loop and waits for the in-flight run to finish.
type Task struct {
	name     string
	interval time.Duration
	fn       Func
	logger   *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Task.
func New(name string, interval time.Duration, fn Func) *Task {
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
	}
}

// Start launches the tick loop in its own goroutine. The loop also stops
// when the parent context is cancelled.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		ticker := time.NewTicker(t.interval)
		defer func() {
			ticker.Stop()
			close(t.done)
		}()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
			}

			if err := t.fn(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Printf("task %s: %v", t.name, err)
			}
		}
	}()
}

// Stop cancels the loop and blocks until it has exited. Safe to call more
// than once and before Start.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
