package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/atomic"
)

type recorder struct {
	start time.Time
	log   *[]string
	name  string
}

func (r recorder) Tick(_ context.Context, now time.Time) {
	*r.log = append(*r.log, r.name+"@"+now.Sub(r.start).String())
}

func TestStepper_TicksInDueOrder(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewStepper(start)
	var log []string

	if err := s.Add("fast", 20*time.Millisecond, recorder{start, &log, "fast"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("slow", 50*time.Millisecond, recorder{start, &log, "slow"}); err != nil {
		t.Fatal(err)
	}

	s.Advance(context.Background(), 100*time.Millisecond)

	want := []string{
		"fast@20ms",
		"fast@40ms",
		"slow@50ms",
		"fast@60ms",
		"fast@80ms",
		"fast@100ms",
		"slow@100ms",
	}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Errorf("tick order mismatch (-want +got):\n%s", diff)
	}
	if got := s.Now().Sub(start); got != 100*time.Millisecond {
		t.Errorf("Now() = %s after start, want 100ms", got)
	}
}

func TestStepper_AdvanceInPieces(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewStepper(start)
	var log []string
	_ = s.Add("loop", 50*time.Millisecond, recorder{start, &log, "loop"})

	for i := 0; i < 10; i++ {
		s.Advance(context.Background(), 10*time.Millisecond)
	}

	want := []string{"loop@50ms", "loop@100ms"}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Errorf("tick mismatch (-want +got):\n%s", diff)
	}
}

func TestAdd_RejectsNonPositivePeriod(t *testing.T) {
	s := New(clock.NewMock(), nil)
	if err := s.Add("bad", 0, LoopFunc(func(context.Context, time.Time) {})); err == nil {
		t.Error("Add with zero period should fail")
	}
	st := NewStepper(time.Time{})
	if err := st.Add("bad", -time.Second, LoopFunc(func(context.Context, time.Time) {})); err == nil {
		t.Error("Stepper.Add with negative period should fail")
	}
}

func TestScheduler_RunTicksUntilCancelled(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock, nil)

	var fast, slow atomic.Int64
	_ = s.Add("fast", 10*time.Millisecond, LoopFunc(func(context.Context, time.Time) { fast.Inc() }))
	_ = s.Add("slow", 50*time.Millisecond, LoopFunc(func(context.Context, time.Time) { slow.Inc() }))

	if diff := cmp.Diff([]string{"fast", "slow"}, s.Loops()); diff != "" {
		t.Errorf("Loops() mismatch (-want +got):\n%s", diff)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for slow.Load() < 2 && time.Now().Before(deadline) {
		mock.Add(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if slow.Load() < 2 {
		t.Fatalf("slow loop ticked %d times, want at least 2", slow.Load())
	}
	if fast.Load() <= slow.Load() {
		t.Errorf("fast loop ticked %d times, slow %d; fast should tick more", fast.Load(), slow.Load())
	}
}
