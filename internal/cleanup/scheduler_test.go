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
	"errors"
	"sync"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"
)

type countingSweeper struct {
	mu     sync.Mutex
	calls  int
	err    error
	passes chan struct{}
}

func newCountingSweeper() *countingSweeper {
	return &countingSweeper{passes: make(chan struct{}, 16)}
}

func (s *countingSweeper) Sweep(_ context.Context) error {
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()
	s.passes <- struct{}{}
	return err
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitForPass(t *testing.T, s *countingSweeper) {
	t.Helper()
	select {
	case <-s.passes:
	case <-time.After(time.Second):
		t.Fatal("expected a sweep pass")
	}
}

func waitForTicker(t *testing.T, c *testingclock.FakeClock) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !c.HasWaiters() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never created its ticker")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScheduler_Start_runs_periodically_and_stops_gracefully(t *testing.T) {
	sweeper := newCountingSweeper()
	scheduler := NewScheduler(sweeper, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- scheduler.Start(ctx)
	}()

	<-ctx.Done()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned unexpected error: %v", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Start() did not return after context cancellation")
	}

	if sweeper.count() == 0 {
		t.Error("expected at least one sweep pass")
	}
}

func TestScheduler_sweeps_once_per_interval(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Date(2025, 1, 1, 15, 0, 0, 0, time.UTC))
	sweeper := newCountingSweeper()
	scheduler := NewScheduler(sweeper, time.Minute, WithClock(fakeClock))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = scheduler.Start(ctx) }()

	waitForTicker(t, fakeClock)
	if got := sweeper.count(); got != 0 {
		t.Fatalf("expected no pass before the first tick, got %d", got)
	}

	fakeClock.Step(59 * time.Second)
	select {
	case <-sweeper.passes:
		t.Fatal("sweep ran before the interval elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	fakeClock.Step(time.Second)
	waitForPass(t, sweeper)

	fakeClock.Step(time.Minute)
	waitForPass(t, sweeper)

	if got := sweeper.count(); got != 2 {
		t.Errorf("expected 2 passes, got %d", got)
	}
}

func TestScheduler_WithRunOnStart_sweeps_before_first_tick(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	sweeper := newCountingSweeper()
	scheduler := NewScheduler(sweeper, time.Minute, WithClock(fakeClock), WithRunOnStart())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = scheduler.Start(ctx) }()

	waitForPass(t, sweeper)
	if got := sweeper.count(); got != 1 {
		t.Errorf("expected 1 pass, got %d", got)
	}
}

func TestScheduler_keeps_running_after_failed_pass(t *testing.T) {
	fakeClock := testingclock.NewFakeClock(time.Now())
	sweeper := newCountingSweeper()
	sweeper.err = errors.New("failed to persist sweep: disk full")
	scheduler := NewScheduler(sweeper, time.Minute, WithClock(fakeClock))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- scheduler.Start(ctx) }()

	waitForTicker(t, fakeClock)
	fakeClock.Step(time.Minute)
	waitForPass(t, sweeper)
	fakeClock.Step(time.Minute)
	waitForPass(t, sweeper)

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Start() returned unexpected error: %v", err)
	}
}

func TestNewScheduler_defaults_interval(t *testing.T) {
	scheduler := NewScheduler(newCountingSweeper(), 0)

	if scheduler.Interval() != DefaultInterval {
		t.Errorf("expected interval %v, got %v", DefaultInterval, scheduler.Interval())
	}
}
