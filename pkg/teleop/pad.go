package teleop

import (
	"context"
	"sync"
)

// VirtualPad is a Gamepad fed from code, such as a keyboard mapping.
type VirtualPad struct {
	mu sync.Mutex
	in Input
}

func (p *VirtualPad) Read(context.Context) (Input, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.in, nil
}

// Set replaces the whole input.
func (p *VirtualPad) Set(in Input) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in = in
}

// Update modifies the input in place.
func (p *VirtualPad) Update(fn func(in *Input)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.in)
}
