package routine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/state"
)

// recorder logs every chassis and LED call in order.
type recorder struct {
	calls  []string
	now    func() time.Time
	failOn string
}

func (r *recorder) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	if r.now != nil {
		call = fmt.Sprintf("%s @%dms", call, r.now().Sub(epoch).Milliseconds())
	}
	r.calls = append(r.calls, call)
	if r.failOn != "" && strings.HasPrefix(call, r.failOn) {
		return errors.New("controller rejected command")
	}
	return nil
}

func (r *recorder) SetPose(_ context.Context, p robot.Pose) error {
	return r.record("pose %g,%g,%g", p.X, p.Y, p.Theta)
}

func (r *recorder) MoveToPoint(_ context.Context, p robot.Point, timeout time.Duration, params robot.MoveParams) error {
	return r.record("point %g,%g %v fwd=%t max=%d", p.X, p.Y, timeout, params.Forwards, params.MaxSpeed)
}

func (r *recorder) MoveToPose(_ context.Context, p robot.Pose, timeout time.Duration, params robot.MoveParams) error {
	return r.record("movepose %g,%g,%g %v min=%d", p.X, p.Y, p.Theta, timeout, params.MinSpeed)
}

func (r *recorder) TurnToHeading(_ context.Context, heading float64, timeout time.Duration) error {
	return r.record("heading %g %v", heading, timeout)
}

func (r *recorder) TurnToPoint(_ context.Context, p robot.Point, timeout time.Duration) error {
	return r.record("face %g,%g %v", p.X, p.Y, timeout)
}

func (r *recorder) WaitUntilDone(context.Context) error { return r.record("wait") }

func (r *recorder) SetBrakeMode(_ context.Context, m robot.BrakeMode) error {
	return r.record("brake %s", m)
}

func (r *recorder) Arcade(_ context.Context, throttle, turn int) error {
	return r.record("arcade %d %d", throttle, turn)
}

func (r *recorder) SetLEDPWM(_ context.Context, pwm int) error { return r.record("led %d", pwm) }

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// instantClock completes every delay immediately, advancing virtual time.
type instantClock struct{ now time.Time }

func (c *instantClock) Now() time.Time { return c.now }

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// blockedClock never completes a delay.
type blockedClock struct{}

func (blockedClock) Now() time.Time { return epoch }
func (blockedClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

func newTestSequencer(rec *recorder, clk Clock) (*Sequencer, *state.RobotState) {
	st := state.New()
	return &Sequencer{Chassis: rec, State: st, LED: rec, Clock: clk}, st
}

func mustParse(t *testing.T, script string) Routine {
	t.Helper()
	r, err := Parse([]byte(script))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return r
}

func TestSequencer_OrderAndTiming(t *testing.T) {
	r := mustParse(t, `name = "order"
steps = [
  { op = "set_pose", x = 1, y = 2, heading = 90 },
  { op = "intake", velocity = -127 },
  { op = "move_to_point", x = 10, y = 20, timeout = 1500, forwards = false, max_speed = 60 },
  { op = "delay", ms = 300 },
  { op = "move_to_pose", x = 3, y = 4, heading = 180, timeout = 900, min_speed = 20 },
  { op = "wait" },
  { op = "turn_to_heading", heading = 45, timeout = 400 },
  { op = "turn_to_point", x = -5, y = 6, timeout = 500 },
  { op = "delay", ms = 250 },
  { op = "brake", mode = "hold" },
  { op = "led", pwm = 100 },
  { op = "loader", extended = true },
  { op = "reject", mode = "blue" },
  { op = "phase", index = 3 },
  { op = "auto", active = true },
]`)

	clk := &instantClock{now: epoch}
	rec := &recorder{now: clk.Now}
	seq, st := newTestSequencer(rec, clk)

	res, err := seq.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"pose 1,2,90 @0ms",
		"point 10,20 1.5s fwd=false max=60 @0ms",
		"movepose 3,4,180 900ms min=20 @300ms",
		"wait @300ms",
		"heading 45 400ms @300ms",
		"face -5,6 500ms @300ms",
		"brake hold @550ms",
		"led 100 @550ms",
	}
	if diff := cmp.Diff(want, rec.calls); diff != "" {
		t.Errorf("chassis calls mismatch (-want +got):\n%s", diff)
	}

	wantRes := Result{Routine: "order", Steps: 15, Motions: 5, Waits: 1, Phase: 3, Elapsed: 550 * time.Millisecond}
	if diff := cmp.Diff(wantRes, res); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}

	wantState := state.Snapshot{
		IntakeVelocity: -127,
		AutoMode:       true,
		RejectMode:     state.RejectBlue,
		Phase:          3,
		LoaderExtended: true,
	}
	if diff := cmp.Diff(wantState, st.Snapshot()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestSequencer_FailuresDoNotStopRun(t *testing.T) {
	r := mustParse(t, `name = "fail"
steps = [
  { op = "move_to_point", x = 1, y = 1, timeout = 100 },
  { op = "wait" },
  { op = "intake", velocity = 90 },
  { op = "move_to_point", x = 2, y = 2, timeout = 100 },
]`)

	rec := &recorder{failOn: "point"}
	seq, st := newTestSequencer(rec, &instantClock{now: epoch})

	var progress []string
	seq.OnStep = func(p Progress) {
		progress = append(progress, fmt.Sprintf("%d/%d %s err=%t", p.Index, p.Total, p.Step.Op, p.Err != nil))
	}

	res, err := seq.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failures != 2 || res.Steps != 4 {
		t.Errorf("Result = %+v, want 2 failures over 4 steps", res)
	}
	if st.IntakeVelocity() != 90 {
		t.Errorf("IntakeVelocity = %d, want 90: step after a failure was skipped", st.IntakeVelocity())
	}

	want := []string{
		"0/4 move_to_point err=true",
		"1/4 wait err=false",
		"2/4 intake err=false",
		"3/4 move_to_point err=true",
	}
	if diff := cmp.Diff(want, progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestSequencer_CancelDuringDelay(t *testing.T) {
	r := mustParse(t, `name = "cancel"
steps = [
  { op = "phase", index = 1 },
  { op = "delay", ms = 60000 },
  { op = "phase", index = 2 },
]`)

	rec := &recorder{}
	seq, st := newTestSequencer(rec, blockedClock{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := seq.Run(ctx, r)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run error = %v, want deadline exceeded", err)
	}
	if st.Phase() != 1 || res.Phase != 1 {
		t.Errorf("phase = %d (result %d), want 1", st.Phase(), res.Phase)
	}
	if res.Steps != 2 {
		t.Errorf("Steps = %d, want 2", res.Steps)
	}
}

func TestSequencer_CancelBetweenSteps(t *testing.T) {
	r := mustParse(t, `name = "cancel"
steps = [
  { op = "wait" },
  { op = "wait" },
  { op = "wait" },
]`)

	rec := &recorder{}
	seq, _ := newTestSequencer(rec, &instantClock{now: epoch})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq.OnStep = func(p Progress) {
		if p.Index == 0 {
			cancel()
		}
	}

	res, err := seq.Run(ctx, r)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want canceled", err)
	}
	if len(rec.calls) != 1 || res.Waits != 1 {
		t.Errorf("calls = %v, waits = %d, want a single wait", rec.calls, res.Waits)
	}
}

func TestSequencer_BuiltinRoutinesElapsed(t *testing.T) {
	all, err := All()
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range all {
		t.Run(r.Name, func(t *testing.T) {
			rec := &recorder{}
			seq, _ := newTestSequencer(rec, &instantClock{now: epoch})
			res, err := seq.Run(context.Background(), r)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			sum := r.Summarize()
			if res.Elapsed != sum.Delay {
				t.Errorf("Elapsed = %v, want scripted delay %v", res.Elapsed, sum.Delay)
			}
			if res.Motions != sum.Motions || res.Waits != sum.Waits || res.Failures != 0 {
				t.Errorf("Result = %+v, summary %+v", res, sum)
			}
			if res.Phase != sum.Phase {
				t.Errorf("Phase = %d, want %d", res.Phase, sum.Phase)
			}
		})
	}
}

func TestNewSequencer_LEDFromSensor(t *testing.T) {
	rec := &recorder{}
	seq := NewSequencer(rec, state.New(), ledSensor{rec}, nil)
	if seq.LED == nil {
		t.Fatal("LED not picked up from a sensor with an LED")
	}

	plain := NewSequencer(rec, state.New(), plainSensor{}, nil)
	if plain.LED != nil {
		t.Error("LED set for a sensor without one")
	}
}

type plainSensor struct{}

func (plainSensor) Read(context.Context) (robot.ColorReading, error) { return robot.ColorReading{}, nil }

type ledSensor struct{ *recorder }

func (ledSensor) Read(context.Context) (robot.ColorReading, error) { return robot.ColorReading{}, nil }

func TestSequencer_WallClock(t *testing.T) {
	r := mustParse(t, `name = "pause"
steps = [ { op = "delay", ms = 15 } ]`)

	tests := []struct {
		name string
		seq  func(*recorder) *Sequencer
	}{
		{"NewSequencer", func(rec *recorder) *Sequencer { return NewSequencer(rec, state.New(), nil, nil) }},
		{"zero Clock", func(rec *recorder) *Sequencer { return &Sequencer{Chassis: rec, State: state.New()} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.seq(&recorder{}).Run(context.Background(), r)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Elapsed < 15*time.Millisecond {
				t.Errorf("Elapsed = %v, want at least 15ms", res.Elapsed)
			}
		})
	}
}
