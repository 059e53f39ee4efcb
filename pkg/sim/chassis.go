// Package sim provides simulated robot hardware for bench runs and tests.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/state"
)

// ChassisConfig sets the simulated drivetrain speeds at full power.
type ChassisConfig struct {
	InchesPerSecond  float64
	DegreesPerSecond float64
}

// DefaultChassisConfig approximates a competition drivetrain.
func DefaultChassisConfig() ChassisConfig {
	return ChassisConfig{InchesPerSecond: 60, DegreesPerSecond: 360}
}

type motion struct {
	from, to   robot.Pose
	start, end time.Time
	superseded chan struct{}
}

// Chassis is a time-interpolated drivetrain. Motions converge along a straight line at
// a speed proportional to MaxSpeed and are cut short by their timeout. A new command
// supersedes the motion in progress from wherever the robot is at that instant.
//
// Headings are degrees clockwise from +Y.
type Chassis struct {
	cfg ChassisConfig
	clk clock.Clock

	mu       sync.Mutex
	pose     robot.Pose
	at       time.Time // time pose was last settled
	current  *motion
	throttle int
	turn     int
	brake    robot.BrakeMode
	commands int
}

// NewChassis returns a simulated chassis at the origin.
func NewChassis(cfg ChassisConfig, clk clock.Clock) *Chassis {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.InchesPerSecond <= 0 || cfg.DegreesPerSecond <= 0 {
		cfg = DefaultChassisConfig()
	}
	return &Chassis{cfg: cfg, clk: clk, at: clk.Now()}
}

// Pose returns the interpolated pose now.
func (c *Chassis) Pose(context.Context) (robot.Pose, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settle(c.clk.Now())
	return c.pose, nil
}

// BrakeMode returns the last brake mode set.
func (c *Chassis) BrakeMode() robot.BrakeMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brake
}

// Commands returns the number of commands accepted.
func (c *Chassis) Commands() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commands
}

// Busy reports whether a motion is still converging.
func (c *Chassis) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settle(c.clk.Now())
	return c.current != nil
}

func (c *Chassis) SetPose(_ context.Context, pose robot.Pose) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.supersede(now)
	c.pose = pose
	c.at = now
	c.commands++
	return nil
}

func (c *Chassis) MoveToPoint(_ context.Context, target robot.Point, timeout time.Duration, params robot.MoveParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.supersede(now)

	from := c.pose
	dist := math.Hypot(target.X-from.X, target.Y-from.Y)
	to := towards(from, target, math.Max(0, dist-params.EarlyExitRange))
	// Point moves face the direction of travel.
	to.Theta = from.Theta
	if dist > 0 {
		to.Theta = bearing(from.Point(), target)
		if !params.Forwards {
			to.Theta = normalize(to.Theta + 180)
		}
	}
	c.start(now, to, c.travel(from, to, params.MaxSpeed), timeout)
	return nil
}

func (c *Chassis) MoveToPose(_ context.Context, target robot.Pose, timeout time.Duration, params robot.MoveParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.supersede(now)

	from := c.pose
	dist := math.Hypot(target.X-from.X, target.Y-from.Y)
	to := towards(from, target.Point(), math.Max(0, dist-params.EarlyExitRange))
	to.Theta = normalize(target.Theta)
	c.start(now, to, c.travel(from, to, params.MaxSpeed), timeout)
	return nil
}

func (c *Chassis) TurnToHeading(_ context.Context, heading float64, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.supersede(now)

	to := c.pose
	to.Theta = normalize(heading)
	c.start(now, to, c.travel(c.pose, to, state.MaxVelocity), timeout)
	return nil
}

func (c *Chassis) TurnToPoint(_ context.Context, target robot.Point, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.supersede(now)

	to := c.pose
	if target != c.pose.Point() {
		to.Theta = bearing(c.pose.Point(), target)
	}
	c.start(now, to, c.travel(c.pose, to, state.MaxVelocity), timeout)
	return nil
}

// WaitUntilDone blocks until the current motion converged, timed out or was superseded.
func (c *Chassis) WaitUntilDone(ctx context.Context) error {
	for {
		c.mu.Lock()
		now := c.clk.Now()
		c.settle(now)
		m := c.current
		c.mu.Unlock()
		if m == nil {
			return nil
		}

		remaining := m.end.Sub(now)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.superseded:
			return nil
		case <-c.clk.After(remaining):
		}
	}
}

func (c *Chassis) SetBrakeMode(_ context.Context, mode robot.BrakeMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brake = mode
	c.commands++
	return nil
}

// Arcade drives open loop. It cancels any motion in progress.
func (c *Chassis) Arcade(_ context.Context, throttle, turn int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	c.supersede(now)
	c.throttle = state.ClampVelocity(throttle)
	c.turn = state.ClampVelocity(turn)
	return nil
}

// settle advances pose to now. Callers hold mu.
func (c *Chassis) settle(now time.Time) {
	if m := c.current; m != nil {
		if !now.Before(m.end) {
			c.pose = m.to
			c.current = nil
			close(m.superseded)
		} else {
			span := m.end.Sub(m.start)
			f := 1.0
			if span > 0 {
				f = float64(now.Sub(m.start)) / float64(span)
			}
			c.pose = lerp(m.from, m.to, f)
		}
		c.at = now
		return
	}

	dt := now.Sub(c.at).Seconds()
	c.at = now
	if dt <= 0 || (c.throttle == 0 && c.turn == 0) {
		return
	}
	v := float64(c.throttle) / state.MaxVelocity * c.cfg.InchesPerSecond
	w := float64(c.turn) / state.MaxVelocity * c.cfg.DegreesPerSecond
	c.pose.Theta = normalize(c.pose.Theta + w*dt)
	rad := c.pose.Theta * math.Pi / 180
	c.pose.X += v * dt * math.Sin(rad)
	c.pose.Y += v * dt * math.Cos(rad)
}

// supersede settles the pose and drops the current motion. Callers hold mu.
func (c *Chassis) supersede(now time.Time) {
	c.settle(now)
	if c.current != nil {
		close(c.current.superseded)
		c.current = nil
	}
	c.throttle, c.turn = 0, 0
}

func (c *Chassis) start(now time.Time, to robot.Pose, travel, timeout time.Duration) {
	c.commands++
	// A motion cut short by its timeout stops where it got to.
	if timeout > 0 && travel > timeout {
		to = lerp(c.pose, to, float64(timeout)/float64(travel))
		travel = timeout
	}
	c.current = &motion{
		from:       c.pose,
		to:         to,
		start:      now,
		end:        now.Add(travel),
		superseded: make(chan struct{}),
	}
}

func (c *Chassis) travel(from, to robot.Pose, maxSpeed int) time.Duration {
	if maxSpeed <= 0 {
		maxSpeed = state.MaxVelocity
	}
	scale := float64(maxSpeed) / state.MaxVelocity
	linear := math.Hypot(to.X-from.X, to.Y-from.Y) / (c.cfg.InchesPerSecond * scale)
	angular := math.Abs(angleDiff(from.Theta, to.Theta)) / (c.cfg.DegreesPerSecond * scale)
	return time.Duration(math.Max(linear, angular) * float64(time.Second))
}

func towards(from robot.Pose, target robot.Point, dist float64) robot.Pose {
	total := math.Hypot(target.X-from.X, target.Y-from.Y)
	if total == 0 {
		return from
	}
	f := dist / total
	return robot.Pose{X: from.X + (target.X-from.X)*f, Y: from.Y + (target.Y-from.Y)*f, Theta: from.Theta}
}

func lerp(a, b robot.Pose, f float64) robot.Pose {
	return robot.Pose{
		X:     a.X + (b.X-a.X)*f,
		Y:     a.Y + (b.Y-a.Y)*f,
		Theta: normalize(a.Theta + angleDiff(a.Theta, b.Theta)*f),
	}
}

func bearing(from, to robot.Point) float64 {
	return normalize(math.Atan2(to.X-from.X, to.Y-from.Y) * 180 / math.Pi)
}

// angleDiff returns the shortest signed rotation from a to b, in (-180, 180].
func angleDiff(a, b float64) float64 {
	d := math.Mod(b-a, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

func normalize(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
