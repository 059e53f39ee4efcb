// Package teleop provides the driver-controlled loop: gamepad to drivetrain, intake and loader.
package teleop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/state"
)

// Input is one sample of the operator controller.
// Axes are in -127..127, positive forward and clockwise.
type Input struct {
	LeftY  int
	RightX int
	L1, L2 bool // loader and secondary toggles
	R1, R2 bool // intake out and in
}

// Gamepad is the operator controller.
type Gamepad interface {
	Read(ctx context.Context) (Input, error)
}

// State represents the outcome of one teleop tick.
type State struct {
	Input             Input
	IntakeVelocity    int
	LoaderExtended    bool
	SecondaryExtended bool
	Ejecting          bool
	Timestamp         time.Time
	Error             error
}

// Config holds configuration for the controller.
type Config struct {
	Hz     int `json:"hz"`
	LEDPWM int `json:"led_pwm"`
}

// DefaultConfig returns the stock 100 Hz loop with the sensor LED at full.
func DefaultConfig() Config {
	return Config{Hz: 100, LEDPWM: 100}
}

// Controller manages the teleop control loop.
//
// Each tick re-arms stall detection, turns color rejection off and lights the sensor
// LED. L1 and L2 toggle on the press edge only. The intake follows R1/R2 unless the
// color sorter owns it. Only commanded state is written: the stall guard drives the
// intake motor.
type Controller struct {
	pad     Gamepad
	chassis robot.Chassis
	state   *state.RobotState
	led     robot.LEDSetter
	cfg     Config
	clk     clock.Clock
	logger  *zap.SugaredLogger

	prev Input // owned by the tick goroutine

	mu      sync.Mutex
	running bool
	stateCh chan State
	logCh   chan string
}

// NewController creates a teleop controller. When sensor has a controllable LED, it is
// driven at cfg.LEDPWM every tick.
func NewController(cfg Config, pad Gamepad, chassis robot.Chassis, st *state.RobotState, sensor robot.ColorSensor, logger *zap.SugaredLogger) *Controller {
	if cfg.Hz <= 0 {
		cfg.Hz = DefaultConfig().Hz
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Controller{
		pad:     pad,
		chassis: chassis,
		state:   st,
		cfg:     cfg,
		clk:     clock.New(),
		logger:  logger,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
	if led, ok := sensor.(robot.LEDSetter); ok {
		c.led = led
	}
	return c
}

// WithClock replaces the wall clock, for tests.
func (c *Controller) WithClock(clk clock.Clock) *Controller {
	c.clk = clk
	return c
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.cfg.Hz
}

// Period returns the tick period.
func (c *Controller) Period() time.Duration {
	return time.Second / time.Duration(c.cfg.Hz)
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Info(msg)
	msg = fmt.Sprintf("[%s] %s", c.clk.Now().Format("15:04:05"), msg)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the control loop on its own ticker until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	c.log("Teleop started at %d Hz", c.cfg.Hz)

	ticker := c.clk.Ticker(c.Period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case now := <-ticker.C:
			c.Tick(ctx, now)
		}
	}
}

// Tick runs one control step.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	in, err := c.pad.Read(ctx)
	if err != nil {
		c.logger.Debugw("gamepad read failed", "error", err)
		// Neutral sticks and triggers; toggles keep their last level so no edge fires.
		in = Input{L1: c.prev.L1, L2: c.prev.L2}
	}

	toggleLoader := in.L1 && !c.prev.L1
	toggleSecondary := in.L2 && !c.prev.L2
	c.prev = in

	velocity := 0
	switch {
	case in.R1:
		velocity = state.MaxVelocity
	case in.R2:
		velocity = -state.MaxVelocity
	}

	out := State{Error: err}
	c.state.Update(func(b state.Batch) {
		b.SetAutoMode(true)
		b.SetRejectMode(state.RejectOff)
		if toggleLoader {
			b.SetLoaderExtended(!b.LoaderExtended())
		}
		if toggleSecondary {
			b.SetSecondaryExtended(!b.SecondaryExtended())
		}
		out.Ejecting = b.Ejecting()
		if !out.Ejecting {
			b.SetIntakeVelocity(velocity)
		}
		out.LoaderExtended = b.LoaderExtended()
		out.SecondaryExtended = b.SecondaryExtended()
	})
	out.IntakeVelocity = c.state.IntakeVelocity()

	if toggleLoader {
		c.log("Loader %s", extendedWord(out.LoaderExtended))
	}
	if toggleSecondary {
		c.log("Secondary %s", extendedWord(out.SecondaryExtended))
	}

	if c.led != nil {
		if err := c.led.SetLEDPWM(ctx, c.cfg.LEDPWM); err != nil {
			c.logger.Debugw("sensor led write failed", "error", err)
		}
	}

	if err := c.chassis.Arcade(ctx, state.ClampVelocity(in.LeftY), state.ClampVelocity(in.RightX)); err != nil {
		c.logger.Debugw("arcade failed", "error", err)
		if out.Error == nil {
			out.Error = err
		}
	}

	out.Input = in
	out.Timestamp = now
	c.sendState(out)
}

func extendedWord(on bool) string {
	if on {
		return "extended"
	}
	return "retracted"
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if err := c.chassis.Arcade(context.Background(), 0, 0); err != nil {
		c.log("Warning: failed to stop drivetrain: %v", err)
	}
	c.state.Update(func(b state.Batch) {
		if !b.Ejecting() {
			b.SetIntakeVelocity(0)
		}
	})
	c.log("Teleop stopped")
}
