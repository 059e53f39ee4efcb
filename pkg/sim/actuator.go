package sim

import (
	"context"
	"sync"
)

// Actuator is a two-position actuator that records its writes.
type Actuator struct {
	mu       sync.Mutex
	extended bool
	writes   int
}

func (a *Actuator) SetExtended(_ context.Context, extended bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.extended = extended
	a.writes++
	return nil
}

// Extended returns the last position written.
func (a *Actuator) Extended() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.extended
}

// Writes returns the number of SetExtended calls.
func (a *Actuator) Writes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writes
}
