/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package cleanup

import (
	"context"
	"time"

	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// DefaultInterval is the time between sweep passes.
const DefaultInterval = time.Minute

// Sweeper runs a single retention pass.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock that drives the ticker.
func WithClock(c clock.WithTicker) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithRunOnStart makes the scheduler sweep once before the first tick.
func WithRunOnStart() Option {
	return func(s *Scheduler) {
		s.runOnStart = true
	}
}

// Scheduler drives periodic sweeps of expired event channels.
type Scheduler struct {
	sweeper    Sweeper
	interval   time.Duration
	clock      clock.WithTicker
	runOnStart bool
}

// NewScheduler creates a new cleanup scheduler with the specified interval.
// The scheduler runs a sweep pass every interval duration.
//
// Parameters:
//   - sweeper: Runs one retention pass over the tracked records
//   - interval: Duration between passes; a non-positive value selects DefaultInterval
//   - opts: Optional clock and run-on-start settings
//
// Returns a configured Scheduler ready to start.
func NewScheduler(sweeper Sweeper, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the time between passes.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start begins the cleanup scheduler, running periodically until the context is canceled.
// A failed pass is logged and the next tick runs as usual.
//
// Parameters:
//   - ctx: Context for cancellation; its logger is used for pass failures
//
// Returns nil on graceful shutdown.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	logger := log.FromContext(ctx).WithName("cleanup")
	logger.Info("Starting sweep scheduler", "interval", s.interval)

	if s.runOnStart {
		s.cleanup(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping sweep scheduler")
			return nil
		case <-ticker.C():
			s.cleanup(ctx)
		}
	}
}

func (s *Scheduler) cleanup(ctx context.Context) {
	if err := s.sweeper.Sweep(ctx); err != nil {
		// Continue to next tick - don't stop scheduler on transient errors
		log.FromContext(ctx).Error(err, "cleanup pass failed")
	}
}
