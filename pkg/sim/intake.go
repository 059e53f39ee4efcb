package sim

import (
	"context"
	"sync"

	"github.com/gwillem/ringbot/pkg/state"
)

// Intake is a motor whose actual velocity follows the last command until it is jammed.
type Intake struct {
	mu       sync.Mutex
	velocity int
	jammed   bool
	moves    int
}

// NewIntake returns a stopped intake.
func NewIntake() *Intake {
	return &Intake{}
}

func (i *Intake) Move(_ context.Context, velocity int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.velocity = state.ClampVelocity(velocity)
	i.moves++
	if i.velocity > 0 {
		i.jammed = false
	}
	return nil
}

// ActualVelocity is zero while jammed, otherwise the commanded velocity.
func (i *Intake) ActualVelocity(context.Context) (float64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.jammed {
		return 0, nil
	}
	return float64(i.velocity), nil
}

// Jam stalls the motor. A forward drive (positive velocity) clears it, the way the
// unjam pulse frees a ring caught in the intake.
func (i *Intake) Jam() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.jammed = true
}

// Jammed reports whether the motor is stalled.
func (i *Intake) Jammed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.jammed
}

// Clear frees a jam.
func (i *Intake) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.jammed = false
}

// Velocity returns the last commanded velocity.
func (i *Intake) Velocity() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.velocity
}

// Moves returns the number of Move calls.
func (i *Intake) Moves() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.moves
}
