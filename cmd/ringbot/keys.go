package main

import (
	"time"

	"github.com/gwillem/ringbot/pkg/state"
	"github.com/gwillem/ringbot/pkg/teleop"
)

// Terminals report key presses but no releases, so a drive key counts as held until
// keyHold passes without a repeat.
const keyHold = 250 * time.Millisecond

type binding struct {
	throttle, turn int
	loader         bool
	secondary      bool
}

var driveKeys = map[string]binding{
	"w":     {throttle: state.MaxVelocity},
	"up":    {throttle: state.MaxVelocity},
	"s":     {throttle: -state.MaxVelocity},
	"down":  {throttle: -state.MaxVelocity},
	"a":     {turn: -state.MaxVelocity},
	"left":  {turn: -state.MaxVelocity},
	"d":     {turn: state.MaxVelocity},
	"right": {turn: state.MaxVelocity},
	"1":     {loader: true},
	"2":     {secondary: true},
}

// keyPad maps keyboard presses onto a virtual gamepad. The intake keys latch:
// i pulls rings in, o pushes them out, space stops the intake.
type keyPad struct {
	pad    *teleop.VirtualPad
	held   map[string]time.Time
	intake int
}

func newKeyPad() *keyPad {
	return &keyPad{pad: &teleop.VirtualPad{}, held: make(map[string]time.Time)}
}

// Press records key at now and reports whether it is bound.
func (k *keyPad) Press(key string, now time.Time) bool {
	switch key {
	case "i":
		k.intake = latch(k.intake, -1)
	case "o":
		k.intake = latch(k.intake, 1)
	case " ":
		k.intake = 0
	default:
		if _, ok := driveKeys[key]; !ok {
			return false
		}
		k.held[key] = now
	}
	k.apply(now)
	return true
}

// Expire releases keys not repeated within keyHold.
func (k *keyPad) Expire(now time.Time) {
	k.apply(now)
}

func (k *keyPad) apply(now time.Time) {
	in := teleop.Input{R1: k.intake > 0, R2: k.intake < 0}
	for key, at := range k.held {
		if now.Sub(at) >= keyHold {
			delete(k.held, key)
			continue
		}
		b := driveKeys[key]
		in.LeftY += b.throttle
		in.RightX += b.turn
		in.L1 = in.L1 || b.loader
		in.L2 = in.L2 || b.secondary
	}
	in.LeftY = state.ClampVelocity(in.LeftY)
	in.RightX = state.ClampVelocity(in.RightX)
	k.pad.Set(in)
}

func latch(cur, dir int) int {
	if cur == dir {
		return 0
	}
	return dir
}
