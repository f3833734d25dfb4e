// Package sweep runs the periodic reconciliation passes: the settlement
// cadence, the disbursement recovery sweep, and stale idempotency-reservation
// cleanup. Each sweep is a named function on its own ticker.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Func is one reconciliation pass. It should be idempotent: the runner may
// invoke it again before a previous failure is investigated.
type Func func(ctx context.Context) error

type sweep struct {
	name     string
	interval time.Duration
	run      Func
}

// Runner drives registered sweeps on their intervals. It is safe for a single
// Start/Stop cycle.
type Runner struct {
	sweeps    []sweep
	log       zerolog.Logger
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	started   bool
	closed    bool
}

// NewRunner creates an empty runner.
func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{
		log:       log,
		closeChan: make(chan struct{}),
	}
}

// Add registers a sweep. Must be called before Start.
func (r *Runner) Add(name string, interval time.Duration, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		panic("sweep: Add after Start")
	}
	r.sweeps = append(r.sweeps, sweep{name: name, interval: interval, run: fn})
}

// Start launches one goroutine per sweep.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("runner is closed")
	}
	if r.started {
		return fmt.Errorf("runner already started")
	}
	r.started = true

	for _, s := range r.sweeps {
		r.wg.Add(1)
		go r.loop(ctx, s)
	}
	return nil
}

func (r *Runner) loop(ctx context.Context, s sweep) {
	defer r.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closeChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := s.run(ctx); err != nil {
				r.log.Error().
					Err(err).
					Str("sweep", s.name).
					Msg("Sweep pass failed")
				continue
			}
			r.log.Debug().
				Str("sweep", s.name).
				Dur("duration", time.Since(start)).
				Msg("Sweep pass completed")
		}
	}
}

// Stop stops all sweeps and waits for in-flight passes to finish, bounded by
// ctx.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.closeChan)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
