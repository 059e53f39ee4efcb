package sim

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/gwillem/ringbot/pkg/robot"
)

// Readings the simulated sensor reports.
var (
	RedRing   = robot.ColorReading{Hue: 8, Proximity: 220}
	BlueRing  = robot.ColorReading{Hue: 205, Proximity: 220}
	EmptySlot = robot.ColorReading{Hue: 90, Proximity: 15}
)

// ColorSensor reports a settable reading. With a feeder attached, it presents rings
// while the intake pulls them in.
type ColorSensor struct {
	mu      sync.Mutex
	reading robot.ColorReading
	led     int
	reads   int
	feeder  *Feeder
}

// NewColorSensor returns a sensor seeing an empty intake.
func NewColorSensor() *ColorSensor {
	return &ColorSensor{reading: EmptySlot}
}

// Set fixes the reading returned while no feeder is attached.
func (s *ColorSensor) Set(r robot.ColorReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = r
}

// Attach presents the rings of f instead of the fixed reading.
func (s *ColorSensor) Attach(f *Feeder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeder = f
}

func (s *ColorSensor) Read(context.Context) (robot.ColorReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.feeder != nil {
		return s.feeder.reading(), nil
	}
	return s.reading, nil
}

func (s *ColorSensor) SetLEDPWM(_ context.Context, pwm int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.led = pwm
	return nil
}

// LED returns the last LED duty set.
func (s *ColorSensor) LED() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.led
}

// Reads returns the number of Read calls.
func (s *ColorSensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Feeder alternates red and blue rings past the sensor while the intake runs in
// reverse, which pulls rings in. Each ring stays in view for Visible, then the slot is
// empty for Gap.
type Feeder struct {
	Visible time.Duration
	Gap     time.Duration

	clk    clock.Clock
	intake *Intake

	mu      sync.Mutex
	next    time.Time
	until   time.Time
	current robot.ColorReading
	blue    bool
	rings   int
}

// NewFeeder returns a feeder starting with a red ring.
func NewFeeder(clk clock.Clock, intake *Intake) *Feeder {
	if clk == nil {
		clk = clock.New()
	}
	return &Feeder{
		Visible: 60 * time.Millisecond,
		Gap:     900 * time.Millisecond,
		clk:     clk,
		intake:  intake,
	}
}

// Rings returns the number of rings presented so far.
func (f *Feeder) Rings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rings
}

func (f *Feeder) reading() robot.ColorReading {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clk.Now()
	if now.Before(f.until) {
		return f.current
	}
	if f.intake.Velocity() >= 0 || now.Before(f.next) {
		return EmptySlot
	}

	f.current = RedRing
	if f.blue {
		f.current = BlueRing
	}
	f.blue = !f.blue
	f.rings++
	f.until = now.Add(f.Visible)
	f.next = f.until.Add(f.Gap)
	return f.current
}
