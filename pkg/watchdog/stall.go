package watchdog

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/state"
)

// StallConfig tunes stall recovery. Durations are in milliseconds.
type StallConfig struct {
	PeriodMs          int `json:"period_ms"`
	VelocityThreshold int `json:"velocity_threshold"`
	TriggerMs         int `json:"trigger_ms"`
	UnjamMs           int `json:"unjam_ms"`
	UnjamVelocity     int `json:"unjam_velocity"`
	ResumeVelocity    int `json:"resume_velocity"`
	// Largest |actual velocity| still counted as stopped.
	StoppedTolerance float64 `json:"stopped_tolerance"`
}

// DefaultStallConfig returns the match-tuned values.
func DefaultStallConfig() StallConfig {
	return StallConfig{
		PeriodMs:          50,
		VelocityThreshold: 60,
		TriggerMs:         400,
		UnjamMs:           500,
		UnjamVelocity:     state.MaxVelocity,
		ResumeVelocity:    -state.MaxVelocity,
	}
}

// Period returns the tick period.
func (c StallConfig) Period() time.Duration {
	return time.Duration(c.PeriodMs) * time.Millisecond
}

// Validate rejects configurations the stall guard cannot run with.
func (c StallConfig) Validate() error {
	switch {
	case c.PeriodMs <= 0:
		return fmt.Errorf("stall: period_ms must be positive")
	case c.TriggerMs < 0 || c.UnjamMs < 0:
		return fmt.Errorf("stall: durations must not be negative")
	case c.StoppedTolerance < 0:
		return fmt.Errorf("stall: stopped_tolerance must not be negative")
	}
	return nil
}

// StallMode is the stall guard state.
type StallMode int32

const (
	StallMonitoring StallMode = iota
	StallUnjamming
)

func (m StallMode) String() string {
	switch m {
	case StallMonitoring:
		return "monitoring"
	case StallUnjamming:
		return "unjamming"
	default:
		return fmt.Sprintf("StallMode(%d)", int32(m))
	}
}

// StallGuard drives the intake motor and recovers it from jams.
//
// It is the only writer of the physical intake: every tick it applies the commanded
// velocity from state, whatever mode the robot is in. Detection only runs while auto
// mode is set. The unjam pulse is open loop; nothing checks that the jam cleared, and
// the accumulator is left as is so a jam that persists fires again right away.
type StallGuard struct {
	cfg    StallConfig
	intake robot.Intake
	state  *state.RobotState
	logger *zap.SugaredLogger

	// owned by the Tick goroutine
	mode  StallMode
	since time.Time
	stall time.Duration

	published   atomic.Int32
	actual      atomic.Float64
	stalledMs   atomic.Int64
	unjams      atomic.Int64
	driveErrors atomic.Int64
}

// NewStallGuard creates a stall guard driving intake from st.
func NewStallGuard(cfg StallConfig, intake robot.Intake, st *state.RobotState, logger *zap.SugaredLogger) *StallGuard {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &StallGuard{
		cfg:    cfg,
		intake: intake,
		state:  st,
		logger: logger,
	}
}

// Mode returns the current state. Safe to call from any goroutine.
func (g *StallGuard) Mode() StallMode {
	return StallMode(g.published.Load())
}

// Stalled returns the accumulated stall time.
func (g *StallGuard) Stalled() time.Duration {
	return time.Duration(g.stalledMs.Load()) * time.Millisecond
}

// Actual returns the intake velocity measured on the last detection tick.
func (g *StallGuard) Actual() float64 {
	return g.actual.Load()
}

// Unjams returns the number of unjam pulses fired.
func (g *StallGuard) Unjams() int64 {
	return g.unjams.Load()
}

// DriveErrors returns the number of failed actuator writes.
func (g *StallGuard) DriveErrors() int64 {
	return g.driveErrors.Load()
}

// Tick drives the intake and advances stall detection to now.
func (g *StallGuard) Tick(ctx context.Context, now time.Time) {
	if g.mode == StallUnjamming {
		if now.Sub(g.since) < time.Duration(g.cfg.UnjamMs)*time.Millisecond {
			g.drive(ctx, g.cfg.UnjamVelocity)
			return
		}
		g.state.SetIntakeVelocity(g.cfg.ResumeVelocity)
		g.drive(ctx, g.cfg.ResumeVelocity)
		g.enter(StallMonitoring, now)
		return
	}

	commanded := g.state.IntakeVelocity()
	g.drive(ctx, commanded)

	if !g.state.AutoMode() {
		g.setStall(0)
		return
	}

	actual, err := g.intake.ActualVelocity(ctx)
	if err != nil {
		g.logger.Debugw("intake velocity read failed", "error", err)
		return
	}
	g.actual.Store(actual)

	if math.Abs(actual) <= g.cfg.StoppedTolerance && abs(commanded) > g.cfg.VelocityThreshold {
		g.setStall(g.stall + g.cfg.Period())
	} else {
		g.setStall(0)
	}

	if g.stall > time.Duration(g.cfg.TriggerMs)*time.Millisecond {
		g.unjams.Inc()
		g.logger.Warnw("intake stalled, unjamming", "stalled", g.stall, "commanded", commanded, "unjams", g.unjams.Load())
		g.state.SetIntakeVelocity(g.cfg.UnjamVelocity)
		g.drive(ctx, g.cfg.UnjamVelocity)
		g.enter(StallUnjamming, now)
	}
}

func (g *StallGuard) drive(ctx context.Context, velocity int) {
	if err := g.intake.Move(ctx, velocity); err != nil {
		g.driveErrors.Inc()
		g.logger.Debugw("intake move failed", "velocity", velocity, "error", err)
	}
}

func (g *StallGuard) setStall(d time.Duration) {
	g.stall = d
	g.stalledMs.Store(d.Milliseconds())
}

func (g *StallGuard) enter(m StallMode, now time.Time) {
	g.mode = m
	g.since = now
	g.published.Store(int32(m))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
