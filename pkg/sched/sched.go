// Package sched runs control loops at fixed periods.
//
// A Scheduler runs every loop on its own goroutine against a clock, so a loop that blocks
// delays only itself. A Stepper drives the same loops in virtual time, one due loop after
// another, which makes loop interleavings reproducible.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Loop is one periodic control loop.
type Loop interface {
	Tick(ctx context.Context, now time.Time)
}

// LoopFunc adapts a function to Loop.
type LoopFunc func(ctx context.Context, now time.Time)

func (f LoopFunc) Tick(ctx context.Context, now time.Time) { f(ctx, now) }

type entry struct {
	name   string
	period time.Duration
	loop   Loop
}

// Scheduler runs registered loops concurrently.
type Scheduler struct {
	clk    clock.Clock
	logger *zap.SugaredLogger

	mu      sync.Mutex
	entries []entry
	running bool
}

// New creates a scheduler on clk. A nil clk means the wall clock.
func New(clk clock.Clock, logger *zap.SugaredLogger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{clk: clk, logger: logger}
}

// Add registers a loop. Loops added after Run started are not picked up.
func (s *Scheduler) Add(name string, period time.Duration, loop Loop) error {
	if period <= 0 {
		return fmt.Errorf("loop %s: period must be positive, got %s", name, period)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("loop %s: scheduler already running", name)
	}
	s.entries = append(s.entries, entry{name: name, period: period, loop: loop})
	return nil
}

// Loops returns the registered loop names in registration order.
func (s *Scheduler) Loops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// Run ticks every loop until ctx is done, then returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("already running")
	}
	s.running = true
	entries := append([]entry(nil), s.entries...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			s.run(ctx, e)
		}(e)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) run(ctx context.Context, e entry) {
	s.logger.Debugw("loop started", "loop", e.name, "period", e.period)
	defer s.logger.Debugw("loop stopped", "loop", e.name)

	ticker := s.clk.Ticker(e.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.loop.Tick(ctx, now)
		}
	}
}

type stepEntry struct {
	entry
	next time.Time
}

// Stepper ticks loops in virtual time. It is not safe for concurrent use.
type Stepper struct {
	now     time.Time
	entries []*stepEntry
}

// NewStepper starts virtual time at start.
func NewStepper(start time.Time) *Stepper {
	return &Stepper{now: start}
}

// Now returns the current virtual time.
func (s *Stepper) Now() time.Time {
	return s.now
}

// Add registers a loop. Its first tick is one period from now.
func (s *Stepper) Add(name string, period time.Duration, loop Loop) error {
	if period <= 0 {
		return fmt.Errorf("loop %s: period must be positive, got %s", name, period)
	}
	s.entries = append(s.entries, &stepEntry{
		entry: entry{name: name, period: period, loop: loop},
		next:  s.now.Add(period),
	})
	return nil
}

// Advance moves virtual time forward by d. Every loop that falls due is ticked at its due
// instant; loops due at the same instant tick in registration order.
func (s *Stepper) Advance(ctx context.Context, d time.Duration) {
	target := s.now.Add(d)
	for {
		due, ok := s.nextDue(target)
		if !ok {
			break
		}
		s.now = due
		for _, e := range s.entries {
			if e.next.Equal(due) {
				e.loop.Tick(ctx, due)
				e.next = e.next.Add(e.period)
			}
		}
	}
	s.now = target
}

func (s *Stepper) nextDue(limit time.Time) (time.Time, bool) {
	var due time.Time
	found := false
	for _, e := range s.entries {
		if e.next.After(limit) {
			continue
		}
		if !found || e.next.Before(due) {
			due = e.next
			found = true
		}
	}
	return due, found
}
