// Package control assembles the state, the watchdogs and the hardware into a running robot.
package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/routine"
	"github.com/gwillem/ringbot/pkg/sched"
	"github.com/gwillem/ringbot/pkg/state"
	"github.com/gwillem/ringbot/pkg/teleop"
	"github.com/gwillem/ringbot/pkg/watchdog"
)

// Registrar accepts periodic loops. *sched.Scheduler and *sched.Stepper implement it.
type Registrar interface {
	Add(name string, period time.Duration, loop sched.Loop) error
}

// Telemetry is a periodic summary of the robot.
type Telemetry struct {
	Time   time.Time
	State  state.Snapshot
	Sort   watchdog.SortMode
	Ejects int64
	Stall  watchdog.StallMode
	// Actual is the intake velocity measured by the stall guard.
	Actual  float64
	Stalled time.Duration
	Unjams  int64
	Pose    *robot.Pose
	Step    *routine.Progress
}

// Robot runs the always-on loops against one set of hardware.
type Robot struct {
	cfg    *Config
	hw     *Hardware
	clk    clock.Clock
	logger *zap.SugaredLogger

	state   *state.RobotState
	sorter  *watchdog.ColorSorter
	guard   *watchdog.StallGuard
	outputs *outputs
	sched   *sched.Scheduler

	stepMu sync.Mutex
	step   *routine.Progress

	telemetryCh chan Telemetry
}

// New wires the watchdogs, outputs and telemetry loops onto hw.
func New(cfg *Config, hw *Hardware, clk clock.Clock, logger *zap.SugaredLogger) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	st := state.New()
	r := &Robot{
		cfg:         cfg,
		hw:          hw,
		clk:         clk,
		logger:      logger,
		state:       st,
		sorter:      watchdog.NewColorSorter(cfg.ColorSort, hw.Color, st, logger.Named("colorsort")),
		guard:       watchdog.NewStallGuard(cfg.Stall, hw.Intake, st, logger.Named("stall")),
		outputs:     newOutputs(st, hw.Loader, hw.Secondary, logger.Named("outputs")),
		sched:       sched.New(clk, logger.Named("sched")),
		telemetryCh: make(chan Telemetry, 1),
	}
	if err := r.Register(r.sched); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds the always-on loops to reg. The color sorter goes first so that, at an
// instant where both watchdogs are due, the stall guard drives what the sorter just set.
func (r *Robot) Register(reg Registrar) error {
	loops := []struct {
		name   string
		period time.Duration
		loop   sched.Loop
	}{
		{"colorsort", r.cfg.ColorSort.Period(), r.sorter},
		{"stall", r.cfg.Stall.Period(), r.guard},
		{"outputs", r.cfg.OutputsPeriod(), r.outputs},
		{"telemetry", r.cfg.TelemetryPeriod(), sched.LoopFunc(r.publish)},
	}
	for _, l := range loops {
		if err := reg.Add(l.name, l.period, l.loop); err != nil {
			return err
		}
	}
	return nil
}

// State returns the shared state.
func (r *Robot) State() *state.RobotState { return r.state }

// Sorter returns the color sort watchdog.
func (r *Robot) Sorter() *watchdog.ColorSorter { return r.sorter }

// Guard returns the stall recovery watchdog.
func (r *Robot) Guard() *watchdog.StallGuard { return r.guard }

// Loops returns the names of the scheduled loops.
func (r *Robot) Loops() []string { return r.sched.Loops() }

// Telemetry returns a channel carrying the latest telemetry. Stale samples are dropped.
func (r *Robot) Telemetry() <-chan Telemetry { return r.telemetryCh }

// Run ticks the always-on loops alongside main, until main returns or ctx is done.
// Cancellation or expiry of ctx is not an error.
func (r *Robot) Run(ctx context.Context, main func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.sched.Run(gctx); !stopped(err) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return main(gctx)
	})

	err := g.Wait()
	r.halt()
	if stopped(err) {
		return nil
	}
	return err
}

func stopped(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Start runs the always-on loops alone until ctx is done.
func (r *Robot) Start(ctx context.Context) error {
	return r.Run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
}

// RunAutonomous runs rt with the watchdogs active. A motion the routine leaves in
// progress keeps driving after the last step; the loops stay up until it settles or ctx
// is done, and only then are the motors stopped.
func (r *Robot) RunAutonomous(ctx context.Context, rt routine.Routine) (routine.Result, error) {
	seq := routine.NewSequencer(r.hw.Chassis, r.state, r.hw.Color, r.logger.Named("routine"))
	seq.Clock = r.clk
	seq.OnStep = func(p routine.Progress) {
		r.stepMu.Lock()
		r.step = &p
		r.stepMu.Unlock()
	}

	var res routine.Result
	err := r.Run(ctx, func(ctx context.Context) error {
		var err error
		if res, err = seq.Run(ctx, rt); err != nil {
			return err
		}
		if err := r.hw.Chassis.WaitUntilDone(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			r.logger.Warnw("final motion did not settle", "routine", rt.Name, "error", err)
			return nil
		}
		r.logger.Debugw("final motion settled", "routine", rt.Name)
		return nil
	})
	return res, err
}

// RunTeleop drives the robot from pad until ctx is done. The controller is returned
// through ready once created so callers can follow its states and logs.
func (r *Robot) RunTeleop(ctx context.Context, pad teleop.Gamepad, ready func(*teleop.Controller)) error {
	ctrl := teleop.NewController(r.cfg.Teleop, pad, r.hw.Chassis, r.state, r.hw.Color, r.logger.Named("teleop")).WithClock(r.clk)
	if ready != nil {
		ready(ctrl)
	}
	return r.Run(ctx, ctrl.Start)
}

func (r *Robot) publish(ctx context.Context, now time.Time) {
	t := Telemetry{
		Time:    now,
		State:   r.state.Snapshot(),
		Sort:    r.sorter.Mode(),
		Ejects:  r.sorter.Ejects(),
		Stall:   r.guard.Mode(),
		Actual:  r.guard.Actual(),
		Stalled: r.guard.Stalled(),
		Unjams:  r.guard.Unjams(),
	}
	if pr, ok := r.hw.Chassis.(robot.PoseReader); ok {
		if p, err := pr.Pose(ctx); err == nil {
			t.Pose = &p
		}
	}
	r.stepMu.Lock()
	t.Step = r.step
	r.stepMu.Unlock()

	select {
	case r.telemetryCh <- t:
	default:
		select {
		case <-r.telemetryCh:
		default:
		}
		select {
		case r.telemetryCh <- t:
		default:
		}
	}
}

// halt stops the motors once the loops are down.
func (r *Robot) halt() {
	ctx := context.Background()
	if err := r.hw.Intake.Move(ctx, 0); err != nil {
		r.logger.Warnw("failed to stop intake", "error", err)
	}
	if err := r.hw.Chassis.Arcade(ctx, 0, 0); err != nil {
		r.logger.Warnw("failed to stop drivetrain", "error", err)
	}
}

// outputs applies the commanded actuator positions. It is the only writer of the loader
// and secondary actuators, and writes only on change. A failed write is retried on the
// next tick.
type outputs struct {
	state       *state.RobotState
	logger      *zap.SugaredLogger
	acts        []*output
	writeErrors atomic.Int64
}

type output struct {
	name    robot.ActuatorName
	act     robot.BinaryActuator
	want    func(state.Snapshot) bool
	applied bool
	valid   bool
}

func newOutputs(st *state.RobotState, loader, secondary robot.BinaryActuator, logger *zap.SugaredLogger) *outputs {
	o := &outputs{state: st, logger: logger}
	if loader != nil {
		o.acts = append(o.acts, &output{name: robot.Loader, act: loader, want: func(s state.Snapshot) bool { return s.LoaderExtended }})
	}
	if secondary != nil {
		o.acts = append(o.acts, &output{name: robot.Secondary, act: secondary, want: func(s state.Snapshot) bool { return s.SecondaryExtended }})
	}
	return o
}

func (o *outputs) Tick(ctx context.Context, _ time.Time) {
	snap := o.state.Snapshot()
	for _, a := range o.acts {
		want := a.want(snap)
		if a.valid && a.applied == want {
			continue
		}
		if err := a.act.SetExtended(ctx, want); err != nil {
			o.writeErrors.Inc()
			o.logger.Debugw("actuator write failed", "actuator", a.name, "error", err)
			continue
		}
		a.applied, a.valid = want, true
	}
}
