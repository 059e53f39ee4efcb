package robot

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Point is a field position in inches.
type Point struct {
	X, Y float64
}

// Pose is a field position in inches plus a heading in degrees.
type Pose struct {
	X, Y  float64
	Theta float64
}

// Point drops the heading.
func (p Pose) Point() Point {
	return Point{X: p.X, Y: p.Y}
}

// MoveParams configures a point or pose move.
type MoveParams struct {
	Forwards       bool
	MaxSpeed       int     // 0..127
	MinSpeed       int     // 0..127
	EarlyExitRange float64 // inches, 0 disables
}

// DefaultMoveParams returns the motion controller defaults: forwards at full speed.
func DefaultMoveParams() MoveParams {
	return MoveParams{Forwards: true, MaxSpeed: 127}
}

func (p MoveParams) String() string {
	return fmt.Sprintf("fwd=%t max=%d min=%d exit=%g", p.Forwards, p.MaxSpeed, p.MinSpeed, p.EarlyExitRange)
}

// BrakeMode is the drivetrain behavior when no power is applied.
type BrakeMode int

const (
	BrakeCoast BrakeMode = iota
	BrakeBrake
	BrakeHold
)

func (m BrakeMode) String() string {
	switch m {
	case BrakeCoast:
		return "coast"
	case BrakeBrake:
		return "brake"
	case BrakeHold:
		return "hold"
	default:
		return fmt.Sprintf("BrakeMode(%d)", int(m))
	}
}

// ParseBrakeMode parses "coast", "brake" or "hold".
func ParseBrakeMode(s string) (BrakeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coast":
		return BrakeCoast, nil
	case "brake":
		return BrakeBrake, nil
	case "hold":
		return BrakeHold, nil
	}
	return BrakeCoast, fmt.Errorf("unknown brake mode %q", s)
}

// Chassis is the external drivetrain motion controller.
//
// Motion commands return once the controller accepted them; the motion itself converges
// in the background. A new motion command supersedes one that is still converging.
// WaitUntilDone blocks until the current motion converged or hit its timeout.
type Chassis interface {
	SetPose(ctx context.Context, pose Pose) error
	MoveToPoint(ctx context.Context, target Point, timeout time.Duration, params MoveParams) error
	MoveToPose(ctx context.Context, target Pose, timeout time.Duration, params MoveParams) error
	TurnToHeading(ctx context.Context, heading float64, timeout time.Duration) error
	TurnToPoint(ctx context.Context, target Point, timeout time.Duration) error
	WaitUntilDone(ctx context.Context) error
	SetBrakeMode(ctx context.Context, mode BrakeMode) error
	Arcade(ctx context.Context, throttle, turn int) error
}

// PoseReader is implemented by chassis that report their odometry pose.
type PoseReader interface {
	Pose(ctx context.Context) (Pose, error)
}
