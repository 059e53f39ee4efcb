// Package watchdog holds the always-on sensor watchdogs that override the intake.
//
// Both watchdogs are tick-driven state machines: every decision is a function of the
// time passed to Tick, so they behave identically under the wall-clock scheduler and
// under a virtual-time stepper.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/state"
)

// ColorSortConfig tunes the color sorter. Durations are in milliseconds.
type ColorSortConfig struct {
	PeriodMs           int     `json:"period_ms"`
	ProximityThreshold int     `json:"proximity_threshold"`
	RedHueLow          float64 `json:"red_hue_low"`
	RedHueHigh         float64 `json:"red_hue_high"`
	BlueHueLow         float64 `json:"blue_hue_low"`
	BlueHueHigh        float64 `json:"blue_hue_high"`
	RedPreDelayMs      int     `json:"red_pre_delay_ms"`
	BluePreDelayMs     int     `json:"blue_pre_delay_ms"`
	PulseMs            int     `json:"pulse_ms"`
	EjectVelocity      int     `json:"eject_velocity"`
	ResumeVelocity     int     `json:"resume_velocity"`
}

// DefaultColorSortConfig returns the match-tuned values. The red and blue pre-delays
// differ on purpose: they match each ring's transit time to the eject point.
func DefaultColorSortConfig() ColorSortConfig {
	return ColorSortConfig{
		PeriodMs:           5,
		ProximityThreshold: 100,
		RedHueLow:          20,
		RedHueHigh:         300,
		BlueHueLow:         150,
		BlueHueHigh:        220,
		RedPreDelayMs:      192,
		BluePreDelayMs:     185,
		PulseMs:            280,
		EjectVelocity:      state.MaxVelocity,
		ResumeVelocity:     -state.MaxVelocity,
	}
}

// Period returns the polling period.
func (c ColorSortConfig) Period() time.Duration {
	return time.Duration(c.PeriodMs) * time.Millisecond
}

// Validate rejects configurations the sorter cannot run with.
func (c ColorSortConfig) Validate() error {
	switch {
	case c.PeriodMs <= 0:
		return fmt.Errorf("color sort: period_ms must be positive")
	case c.RedPreDelayMs < 0 || c.BluePreDelayMs < 0 || c.PulseMs < 0:
		return fmt.Errorf("color sort: delays must not be negative")
	case c.RedHueLow >= c.RedHueHigh:
		return fmt.Errorf("color sort: red band %g..%g is empty", c.RedHueLow, c.RedHueHigh)
	case c.BlueHueLow >= c.BlueHueHigh:
		return fmt.Errorf("color sort: blue band %g..%g is empty", c.BlueHueLow, c.BlueHueHigh)
	}
	return nil
}

// Rejects reports whether reading r must be ejected under mode.
//
// Red rings sit at the wrapping end of the hue circle, so red is everything outside the
// open band (RedHueLow, RedHueHigh), so a hue of exactly RedHueLow or RedHueHigh is red.
// Blue is inside the open band (BlueHueLow, BlueHueHigh).
func (c ColorSortConfig) Rejects(mode state.RejectMode, r robot.ColorReading) bool {
	if r.Proximity <= c.ProximityThreshold {
		return false
	}
	switch mode {
	case state.RejectRed:
		return r.Hue <= c.RedHueLow || r.Hue >= c.RedHueHigh
	case state.RejectBlue:
		return r.Hue > c.BlueHueLow && r.Hue < c.BlueHueHigh
	default:
		return false
	}
}

func (c ColorSortConfig) preDelay(mode state.RejectMode) time.Duration {
	if mode == state.RejectBlue {
		return time.Duration(c.BluePreDelayMs) * time.Millisecond
	}
	return time.Duration(c.RedPreDelayMs) * time.Millisecond
}

// SortMode is the color sorter state.
type SortMode int32

const (
	// SortNormal polls the sensor; the intake belongs to whoever commands it.
	SortNormal SortMode = iota
	// SortPreDelay waits for the detected ring to reach the eject point.
	SortPreDelay
	// SortEjecting drives the intake forward to throw the ring out.
	SortEjecting
)

func (m SortMode) String() string {
	switch m {
	case SortNormal:
		return "normal"
	case SortPreDelay:
		return "pre-delay"
	case SortEjecting:
		return "ejecting"
	default:
		return fmt.Sprintf("SortMode(%d)", int32(m))
	}
}

// ColorSorter ejects rings of the rejected color.
//
// Leaving SortNormal takes intake authority away from the teleop loop (state.Ejecting);
// returning to SortNormal hands it back and resumes full reverse intake. There is no
// debounce: a ring still in view after the pulse triggers another cycle.
type ColorSorter struct {
	cfg    ColorSortConfig
	sensor robot.ColorSensor
	state  *state.RobotState
	logger *zap.SugaredLogger

	// owned by the Tick goroutine
	mode    SortMode
	since   time.Time
	trigger state.RejectMode

	published  atomic.Int32
	ejects     atomic.Int64
	readErrors atomic.Int64
}

// NewColorSorter creates a color sorter reading sensor and writing st.
func NewColorSorter(cfg ColorSortConfig, sensor robot.ColorSensor, st *state.RobotState, logger *zap.SugaredLogger) *ColorSorter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ColorSorter{
		cfg:    cfg,
		sensor: sensor,
		state:  st,
		logger: logger,
	}
}

// Mode returns the current state. Safe to call from any goroutine.
func (c *ColorSorter) Mode() SortMode {
	return SortMode(c.published.Load())
}

// Ejects returns the number of completed eject pulses.
func (c *ColorSorter) Ejects() int64 {
	return c.ejects.Load()
}

// ReadErrors returns the number of failed sensor reads.
func (c *ColorSorter) ReadErrors() int64 {
	return c.readErrors.Load()
}

// Tick advances the state machine to now.
func (c *ColorSorter) Tick(ctx context.Context, now time.Time) {
	switch c.mode {
	case SortNormal:
		mode := c.state.RejectMode()
		if mode == state.RejectOff {
			return
		}
		r, err := c.sensor.Read(ctx)
		if err != nil {
			c.readErrors.Inc()
			c.logger.Debugw("color sensor read failed", "error", err)
			return
		}
		if !c.cfg.Rejects(mode, r) {
			return
		}
		c.trigger = mode
		c.state.SetEjecting(true)
		c.enter(SortPreDelay, now)
		c.logger.Debugw("reject ring detected", "mode", mode, "hue", r.Hue, "proximity", r.Proximity)

	case SortPreDelay:
		if now.Sub(c.since) < c.cfg.preDelay(c.trigger) {
			return
		}
		c.state.SetIntakeVelocity(c.cfg.EjectVelocity)
		c.enter(SortEjecting, now)

	case SortEjecting:
		if now.Sub(c.since) < time.Duration(c.cfg.PulseMs)*time.Millisecond {
			return
		}
		c.state.Update(func(b state.Batch) {
			b.SetEjecting(false)
			b.SetIntakeVelocity(c.cfg.ResumeVelocity)
		})
		c.enter(SortNormal, now)
		c.ejects.Inc()
		c.logger.Infow("ring ejected", "mode", c.trigger, "ejects", c.ejects.Load())
	}
}

func (c *ColorSorter) enter(m SortMode, now time.Time) {
	c.mode = m
	c.since = now
	c.published.Store(int32(m))
}
