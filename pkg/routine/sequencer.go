package routine

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/state"
)

// Clock is the time source for delay steps. *clock.Mock and clock.New() satisfy it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Progress is reported after each step.
type Progress struct {
	Index   int
	Total   int
	Step    Step
	Err     error
	Elapsed time.Duration
}

// Result summarizes a run.
type Result struct {
	Routine  string
	Steps    int // steps executed
	Motions  int
	Waits    int
	Failures int
	Phase    int
	Elapsed  time.Duration
}

// Sequencer runs routines against a chassis and the shared state.
type Sequencer struct {
	Chassis robot.Chassis
	State   *state.RobotState
	// LED receives led steps. Nil skips them.
	LED    robot.LEDSetter
	Clock  Clock
	Logger *zap.SugaredLogger
	// OnStep, when set, is called after every step from the Run goroutine.
	OnStep func(Progress)
}

// NewSequencer returns a sequencer on the wall clock. When sensor has a
// controllable LED, led steps drive it.
func NewSequencer(chassis robot.Chassis, st *state.RobotState, sensor robot.ColorSensor, logger *zap.SugaredLogger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Sequencer{
		Chassis: chassis,
		State:   st,
		Clock:   clock.New(),
		Logger:  logger,
	}
	if led, ok := sensor.(robot.LEDSetter); ok {
		s.LED = led
	}
	return s
}

// Run executes every step of r in order.
//
// Chassis errors are counted and logged and the run moves on to the next step. Only
// ctx ends a run early, in which case the partial result is returned with ctx.Err().
func (s *Sequencer) Run(ctx context.Context, r Routine) (Result, error) {
	clk := s.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	start := clk.Now()
	res := Result{Routine: r.Name}
	finish := func() Result {
		res.Phase = s.State.Phase()
		res.Elapsed = clk.Now().Sub(start)
		return res
	}

	logger.Infow("routine started", "routine", r.Name, "steps", len(r.Steps))
	for i, step := range r.Steps {
		if err := ctx.Err(); err != nil {
			return finish(), err
		}

		err := s.exec(ctx, clk, step)
		res.Steps++
		switch {
		case step.Op.IsMotion():
			res.Motions++
		case step.Op == OpWait:
			res.Waits++
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return finish(), ctxErr
			}
			res.Failures++
			logger.Warnw("routine step failed", "routine", r.Name, "step", i, "op", step.Op, "error", err)
		}

		if s.OnStep != nil {
			s.OnStep(Progress{
				Index:   i,
				Total:   len(r.Steps),
				Step:    step,
				Err:     err,
				Elapsed: clk.Now().Sub(start),
			})
		}
	}

	out := finish()
	logger.Infow("routine finished", "routine", r.Name, "elapsed", out.Elapsed, "failures", out.Failures, "phase", out.Phase)
	return out, nil
}

func (s *Sequencer) exec(ctx context.Context, clk Clock, step Step) error {
	wp := step.Waypoint()

	switch step.Op {
	case OpSetPose:
		return s.Chassis.SetPose(ctx, wp.Target)
	case OpMoveToPoint:
		return s.Chassis.MoveToPoint(ctx, wp.Target.Point(), wp.Timeout, wp.Params)
	case OpMoveToPose:
		return s.Chassis.MoveToPose(ctx, wp.Target, wp.Timeout, wp.Params)
	case OpTurnToHeading:
		return s.Chassis.TurnToHeading(ctx, wp.Target.Theta, wp.Timeout)
	case OpTurnToPoint:
		return s.Chassis.TurnToPoint(ctx, wp.Target.Point(), wp.Timeout)
	case OpWait:
		return s.Chassis.WaitUntilDone(ctx)
	case OpBrake:
		mode, err := robot.ParseBrakeMode(step.Mode)
		if err != nil {
			return err
		}
		return s.Chassis.SetBrakeMode(ctx, mode)

	case OpDelay:
		d := step.Delay()
		if d <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(d):
			return nil
		}

	case OpIntake:
		s.State.SetIntakeVelocity(step.Velocity)
	case OpLoader:
		s.State.SetLoaderExtended(step.Extended)
	case OpReject:
		mode, err := state.ParseRejectMode(step.Mode)
		if err != nil {
			return err
		}
		s.State.SetRejectMode(mode)
	case OpPhase:
		s.State.SetPhase(step.Index)
	case OpAuto:
		s.State.SetAutoMode(step.Active)
	case OpLED:
		if s.LED == nil {
			return nil
		}
		return s.LED.SetLEDPWM(ctx, step.PWM)

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}
