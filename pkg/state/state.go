// Package state holds the shared robot state read and written by every control loop.
//
// Each field is a single atomic word, so single-field reads never block and never tear.
// Writes from different loops are not ordered relative to each other: a loop that writes
// two fields one after the other may be observed half way by a concurrent reader. Callers
// that need a group of writes to land together use Update, and readers that need a
// consistent view of several fields use Snapshot.
package state

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/atomic"
)

// MaxVelocity is the largest intake velocity magnitude.
const MaxVelocity = 127

// RejectMode selects which color band the color sorter ejects.
type RejectMode int32

const (
	RejectOff RejectMode = iota
	RejectRed
	RejectBlue
)

func (m RejectMode) String() string {
	switch m {
	case RejectOff:
		return "off"
	case RejectRed:
		return "red"
	case RejectBlue:
		return "blue"
	default:
		return fmt.Sprintf("RejectMode(%d)", int32(m))
	}
}

// valid maps values outside the defined modes to RejectOff.
func (m RejectMode) valid() RejectMode {
	switch m {
	case RejectRed, RejectBlue:
		return m
	}
	return RejectOff
}

// ParseRejectMode parses "off", "red" or "blue".
func ParseRejectMode(s string) (RejectMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return RejectOff, nil
	case "red":
		return RejectRed, nil
	case "blue":
		return RejectBlue, nil
	}
	return RejectOff, fmt.Errorf("unknown reject mode %q", s)
}

// ClampVelocity limits v to [-MaxVelocity, MaxVelocity].
func ClampVelocity(v int) int {
	if v > MaxVelocity {
		return MaxVelocity
	}
	if v < -MaxVelocity {
		return -MaxVelocity
	}
	return v
}

// Snapshot is a consistent copy of every field.
type Snapshot struct {
	IntakeVelocity    int
	AutoMode          bool
	RejectMode        RejectMode
	Phase             int
	LoaderExtended    bool
	SecondaryExtended bool
	Ejecting          bool
}

// RobotState is the process-wide shared state. The zero value is ready to use.
type RobotState struct {
	wmu sync.Mutex
	seq atomic.Uint64

	intakeVelocity atomic.Int32
	autoMode       atomic.Bool
	rejectMode     atomic.Int32
	phase          atomic.Int32
	loader         atomic.Bool
	secondary      atomic.Bool
	ejecting       atomic.Bool
}

// New returns a state with every field at its zero value: intake stopped, reject mode off.
func New() *RobotState {
	return &RobotState{}
}

// Batch writes fields inside Update. It must not escape the Update callback.
type Batch struct {
	s *RobotState
}

func (b Batch) SetIntakeVelocity(v int) { b.s.intakeVelocity.Store(int32(ClampVelocity(v))) }
func (b Batch) SetAutoMode(on bool) { b.s.autoMode.Store(on) }
func (b Batch) SetRejectMode(m RejectMode) { b.s.rejectMode.Store(int32(m.valid())) }
func (b Batch) SetPhase(p int) { b.s.phase.Store(int32(p)) }
func (b Batch) SetLoaderExtended(on bool) { b.s.loader.Store(on) }
func (b Batch) SetSecondaryExtended(on bool) { b.s.secondary.Store(on) }
func (b Batch) SetEjecting(on bool) { b.s.ejecting.Store(on) }

// Reads inside a batch see every write made under Update so far.
func (b Batch) LoaderExtended() bool { return b.s.loader.Load() }
func (b Batch) SecondaryExtended() bool { return b.s.secondary.Load() }
func (b Batch) Ejecting() bool { return b.s.ejecting.Load() }

// Update applies fn's writes so that Snapshot sees all of them or none.
func (s *RobotState) Update(fn func(b Batch)) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.seq.Inc()
	fn(Batch{s: s})
	s.seq.Inc()
}

// Snapshot reads every field consistently with respect to Update.
func (s *RobotState) Snapshot() Snapshot {
	for {
		before := s.seq.Load()
		if before&1 == 1 {
			runtime.Gosched()
			continue
		}
		snap := Snapshot{
			IntakeVelocity:    int(s.intakeVelocity.Load()),
			AutoMode:          s.autoMode.Load(),
			RejectMode:        RejectMode(s.rejectMode.Load()),
			Phase:             int(s.phase.Load()),
			LoaderExtended:    s.loader.Load(),
			SecondaryExtended: s.secondary.Load(),
			Ejecting:          s.ejecting.Load(),
		}
		if s.seq.Load() == before {
			return snap
		}
	}
}

// IntakeVelocity returns the commanded intake velocity.
func (s *RobotState) IntakeVelocity() int { return int(s.intakeVelocity.Load()) }

// SetIntakeVelocity sets the commanded intake velocity, clamped to range.
func (s *RobotState) SetIntakeVelocity(v int) {
	s.Update(func(b Batch) { b.SetIntakeVelocity(v) })
}

// AutoMode reports whether stall detection is armed.
func (s *RobotState) AutoMode() bool { return s.autoMode.Load() }

func (s *RobotState) SetAutoMode(on bool) {
	s.Update(func(b Batch) { b.SetAutoMode(on) })
}

// RejectMode returns the active color reject mode.
func (s *RobotState) RejectMode() RejectMode { return RejectMode(s.rejectMode.Load()) }

func (s *RobotState) SetRejectMode(m RejectMode) {
	s.Update(func(b Batch) { b.SetRejectMode(m) })
}

// Phase returns the routine phase marker.
func (s *RobotState) Phase() int { return int(s.phase.Load()) }

func (s *RobotState) SetPhase(p int) {
	s.Update(func(b Batch) { b.SetPhase(p) })
}

// LoaderExtended returns the desired loader position.
func (s *RobotState) LoaderExtended() bool { return s.loader.Load() }

func (s *RobotState) SetLoaderExtended(on bool) {
	s.Update(func(b Batch) { b.SetLoaderExtended(on) })
}

// SecondaryExtended returns the desired position of the second binary actuator.
func (s *RobotState) SecondaryExtended() bool { return s.secondary.Load() }

func (s *RobotState) SetSecondaryExtended(on bool) {
	s.Update(func(b Batch) { b.SetSecondaryExtended(on) })
}

// Ejecting reports whether the color sorter currently owns the intake.
func (s *RobotState) Ejecting() bool { return s.ejecting.Load() }

func (s *RobotState) SetEjecting(on bool) {
	s.Update(func(b Batch) { b.SetEjecting(on) })
}
