// Package routine holds autonomous routine scripts and the sequencer that runs them.
//
// A routine is plain data: an ordered list of steps, each a motion command, a state
// write, a delay, or a wait for the current motion to finish. The Sequencer walks the
// list; it knows nothing about any particular match.
package routine

import (
	"fmt"
	"time"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/state"
)

// Op names a step kind.
type Op string

const (
	OpSetPose       Op = "set_pose"
	OpMoveToPoint   Op = "move_to_point"
	OpMoveToPose    Op = "move_to_pose"
	OpTurnToHeading Op = "turn_to_heading"
	OpTurnToPoint   Op = "turn_to_point"
	OpWait          Op = "wait"
	OpDelay         Op = "delay"
	OpBrake         Op = "brake"
	OpIntake        Op = "intake"
	OpLoader        Op = "loader"
	OpReject        Op = "reject"
	OpPhase         Op = "phase"
	OpAuto          Op = "auto"
	OpLED           Op = "led"
)

// IsMotion reports whether op is a command to the motion controller.
func (op Op) IsMotion() bool {
	switch op {
	case OpSetPose, OpMoveToPoint, OpMoveToPose, OpTurnToHeading, OpTurnToPoint:
		return true
	}
	return false
}

// Step is one scripted action. Only the fields used by Op are meaningful.
type Step struct {
	Op Op `toml:"op"`

	// Motion targets and configuration.
	X         float64  `toml:"x,omitempty"`
	Y         float64  `toml:"y,omitempty"`
	Heading   *float64 `toml:"heading,omitempty"`
	TimeoutMs int      `toml:"timeout,omitempty"`
	Forwards  *bool    `toml:"forwards,omitempty"`
	MaxSpeed  *int     `toml:"max_speed,omitempty"`
	MinSpeed  int      `toml:"min_speed,omitempty"`
	EarlyExit float64  `toml:"early_exit,omitempty"`

	Ms       int    `toml:"ms,omitempty"`       // delay
	Velocity int    `toml:"velocity,omitempty"` // intake
	Extended bool   `toml:"extended,omitempty"` // loader
	Mode     string `toml:"mode,omitempty"`     // reject, brake
	Index    int    `toml:"index,omitempty"`    // phase
	Active   bool   `toml:"active,omitempty"`   // auto
	PWM      int    `toml:"pwm,omitempty"`      // led
}

// MotionWaypoint is the target and configuration of a motion step.
type MotionWaypoint struct {
	Target     robot.Pose
	HasHeading bool
	Timeout    time.Duration
	Params     robot.MoveParams
}

// Waypoint returns the motion part of the step.
func (s Step) Waypoint() MotionWaypoint {
	wp := MotionWaypoint{
		Target:  robot.Pose{X: s.X, Y: s.Y},
		Timeout: time.Duration(s.TimeoutMs) * time.Millisecond,
		Params:  robot.DefaultMoveParams(),
	}
	if s.Heading != nil {
		wp.Target.Theta = *s.Heading
		wp.HasHeading = true
	}
	if s.Forwards != nil {
		wp.Params.Forwards = *s.Forwards
	}
	if s.MaxSpeed != nil {
		wp.Params.MaxSpeed = *s.MaxSpeed
	}
	wp.Params.MinSpeed = s.MinSpeed
	wp.Params.EarlyExitRange = s.EarlyExit
	return wp
}

// Delay returns the duration of a delay step.
func (s Step) Delay() time.Duration {
	return time.Duration(s.Ms) * time.Millisecond
}

func (s Step) String() string {
	switch s.Op {
	case OpSetPose:
		return fmt.Sprintf("set_pose (%g, %g, %g)", s.X, s.Y, deref(s.Heading))
	case OpMoveToPoint:
		return fmt.Sprintf("move_to_point (%g, %g) %dms %s", s.X, s.Y, s.TimeoutMs, s.Waypoint().Params)
	case OpMoveToPose:
		return fmt.Sprintf("move_to_pose (%g, %g, %g) %dms %s", s.X, s.Y, deref(s.Heading), s.TimeoutMs, s.Waypoint().Params)
	case OpTurnToHeading:
		return fmt.Sprintf("turn_to_heading %g %dms", deref(s.Heading), s.TimeoutMs)
	case OpTurnToPoint:
		return fmt.Sprintf("turn_to_point (%g, %g) %dms", s.X, s.Y, s.TimeoutMs)
	case OpWait:
		return "wait"
	case OpDelay:
		return fmt.Sprintf("delay %dms", s.Ms)
	case OpBrake:
		return "brake " + s.Mode
	case OpIntake:
		return fmt.Sprintf("intake %d", s.Velocity)
	case OpLoader:
		return fmt.Sprintf("loader extended=%t", s.Extended)
	case OpReject:
		return "reject " + s.Mode
	case OpPhase:
		return fmt.Sprintf("phase %d", s.Index)
	case OpAuto:
		return fmt.Sprintf("auto %t", s.Active)
	case OpLED:
		return fmt.Sprintf("led %d%%", s.PWM)
	}
	return string(s.Op)
}

// Validate checks the fields Op needs.
func (s Step) Validate() error {
	needHeading := func() error {
		if s.Heading == nil {
			return fmt.Errorf("%s: heading is required", s.Op)
		}
		return nil
	}
	needTimeout := func() error {
		if s.TimeoutMs <= 0 {
			return fmt.Errorf("%s: timeout must be positive", s.Op)
		}
		return nil
	}

	switch s.Op {
	case OpSetPose:
		return needHeading()
	case OpMoveToPose:
		if err := needHeading(); err != nil {
			return err
		}
		if err := needTimeout(); err != nil {
			return err
		}
		return s.validateSpeeds()
	case OpMoveToPoint:
		if s.Heading != nil {
			return fmt.Errorf("%s: heading is not allowed, use move_to_pose", s.Op)
		}
		if err := needTimeout(); err != nil {
			return err
		}
		return s.validateSpeeds()
	case OpTurnToHeading:
		if err := needHeading(); err != nil {
			return err
		}
		return needTimeout()
	case OpTurnToPoint:
		return needTimeout()
	case OpWait, OpLoader, OpPhase, OpAuto:
		return nil
	case OpDelay:
		if s.Ms < 0 {
			return fmt.Errorf("delay: ms must not be negative")
		}
		return nil
	case OpBrake:
		_, err := robot.ParseBrakeMode(s.Mode)
		return err
	case OpIntake:
		if s.Velocity != state.ClampVelocity(s.Velocity) {
			return fmt.Errorf("intake: velocity %d out of range", s.Velocity)
		}
		return nil
	case OpReject:
		_, err := state.ParseRejectMode(s.Mode)
		return err
	case OpLED:
		if s.PWM < 0 || s.PWM > 100 {
			return fmt.Errorf("led: pwm %d out of range 0..100", s.PWM)
		}
		return nil
	case "":
		return fmt.Errorf("op is required")
	}
	return fmt.Errorf("unknown op %q", s.Op)
}

func (s Step) validateSpeeds() error {
	p := s.Waypoint().Params
	switch {
	case p.MaxSpeed < 0 || p.MaxSpeed > state.MaxVelocity:
		return fmt.Errorf("%s: max_speed %d out of range 0..127", s.Op, p.MaxSpeed)
	case p.MinSpeed < 0 || p.MinSpeed > state.MaxVelocity:
		return fmt.Errorf("%s: min_speed %d out of range 0..127", s.Op, p.MinSpeed)
	case p.MinSpeed > p.MaxSpeed:
		return fmt.Errorf("%s: min_speed %d above max_speed %d", s.Op, p.MinSpeed, p.MaxSpeed)
	case p.EarlyExitRange < 0:
		return fmt.Errorf("%s: early_exit must not be negative", s.Op)
	}
	return nil
}

// Routine is a named script.
type Routine struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Steps       []Step `toml:"steps"`
}

// Validate checks every step and reports the first failing index.
func (r Routine) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("routine name is required")
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("routine %s: no steps", r.Name)
	}
	for i, s := range r.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("routine %s: step %d: %w", r.Name, i, err)
		}
	}
	return nil
}

// Summary counts the steps of a routine.
type Summary struct {
	Steps   int
	Motions int
	Waits   int
	Delay   time.Duration
	Phase   int // phase index after the last phase step
}

// Summarize counts motions, waits and scripted delay.
func (r Routine) Summarize() Summary {
	sum := Summary{Steps: len(r.Steps)}
	for _, s := range r.Steps {
		switch {
		case s.Op.IsMotion():
			sum.Motions++
		case s.Op == OpWait:
			sum.Waits++
		case s.Op == OpDelay:
			sum.Delay += s.Delay()
		case s.Op == OpPhase:
			sum.Phase = s.Index
		}
	}
	return sum
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
