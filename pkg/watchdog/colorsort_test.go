package watchdog

import (
	"context"
	"testing"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/state"
)

func TestColorSortConfig_Rejects(t *testing.T) {
	cfg := DefaultColorSortConfig()

	tests := []struct {
		name      string
		mode      state.RejectMode
		hue       float64
		proximity int
		want      bool
	}{
		{"red low hue", state.RejectRed, 10, 150, true},
		{"red band edge low", state.RejectRed, 20, 150, true},
		{"red just inside band", state.RejectRed, 21, 150, false},
		{"red mid band", state.RejectRed, 200, 150, false},
		{"red just inside band high", state.RejectRed, 299, 150, false},
		{"red band edge high", state.RejectRed, 300, 150, true},
		{"red high hue", state.RejectRed, 350, 150, true},
		{"red too far", state.RejectRed, 10, 100, false},
		{"red just close enough", state.RejectRed, 10, 101, true},
		{"blue in band", state.RejectBlue, 200, 150, true},
		{"blue band edge low", state.RejectBlue, 150, 150, false},
		{"blue just inside low", state.RejectBlue, 151, 150, true},
		{"blue just inside high", state.RejectBlue, 219, 150, true},
		{"blue band edge high", state.RejectBlue, 220, 150, false},
		{"blue ignores red ring", state.RejectBlue, 10, 150, false},
		{"blue too far", state.RejectBlue, 200, 90, false},
		{"off ignores red", state.RejectOff, 10, 200, false},
		{"off ignores blue", state.RejectOff, 200, 200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.Rejects(tt.mode, robot.ColorReading{Hue: tt.hue, Proximity: tt.proximity})
			if got != tt.want {
				t.Errorf("Rejects(%v, hue=%g, prox=%d) = %t, want %t", tt.mode, tt.hue, tt.proximity, got, tt.want)
			}
		})
	}
}

func TestColorSorter_PulseTiming(t *testing.T) {
	tests := []struct {
		name     string
		mode     state.RejectMode
		hue      float64
		preDelay int
	}{
		{"red", state.RejectRed, 5, 192},
		{"blue", state.RejectBlue, 200, 185},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := state.New()
			st.SetRejectMode(tt.mode)
			st.SetIntakeVelocity(-127)
			sensor := &fakeSensor{reading: robot.ColorReading{Hue: tt.hue, Proximity: 200}}
			cs := NewColorSorter(DefaultColorSortConfig(), sensor, st, nil)

			cs.Tick(ctx, at(0))
			if cs.Mode() != SortPreDelay {
				t.Fatalf("mode after trigger = %v, want pre-delay", cs.Mode())
			}
			if !st.Ejecting() {
				t.Error("intake authority should be taken on trigger")
			}
			// Ring moves on; it must not matter during the pulse.
			sensor.reading = robot.ColorReading{}

			cs.Tick(ctx, at(tt.preDelay-1))
			if cs.Mode() != SortPreDelay || st.IntakeVelocity() != -127 {
				t.Fatalf("pulse started early: mode %v velocity %d", cs.Mode(), st.IntakeVelocity())
			}

			cs.Tick(ctx, at(tt.preDelay))
			if cs.Mode() != SortEjecting {
				t.Fatalf("mode at %dms = %v, want ejecting", tt.preDelay, cs.Mode())
			}
			if got := st.IntakeVelocity(); got != 127 {
				t.Errorf("velocity during pulse = %d, want 127", got)
			}

			cs.Tick(ctx, at(tt.preDelay+279))
			if cs.Mode() != SortEjecting {
				t.Fatalf("pulse ended early at %dms", tt.preDelay+279)
			}

			cs.Tick(ctx, at(tt.preDelay+280))
			if cs.Mode() != SortNormal {
				t.Fatalf("mode after pulse = %v, want normal", cs.Mode())
			}
			if got := st.IntakeVelocity(); got != -127 {
				t.Errorf("velocity after pulse = %d, want -127", got)
			}
			if st.Ejecting() {
				t.Error("intake authority should be handed back after the pulse")
			}
			if cs.Ejects() != 1 {
				t.Errorf("Ejects() = %d, want 1", cs.Ejects())
			}
		})
	}
}

func TestColorSorter_RepeatsWhileRingInView(t *testing.T) {
	ctx := context.Background()
	st := state.New()
	st.SetRejectMode(state.RejectRed)
	sensor := &fakeSensor{reading: robot.ColorReading{Hue: 350, Proximity: 255}}
	cs := NewColorSorter(DefaultColorSortConfig(), sensor, st, nil)

	cs.Tick(ctx, at(0))
	cs.Tick(ctx, at(192))
	cs.Tick(ctx, at(472))
	if cs.Mode() != SortNormal {
		t.Fatalf("mode = %v, want normal", cs.Mode())
	}

	cs.Tick(ctx, at(477))
	if cs.Mode() != SortPreDelay {
		t.Errorf("ring still in view should retrigger, mode = %v", cs.Mode())
	}
}

func TestColorSorter_OffNeverReads(t *testing.T) {
	ctx := context.Background()
	st := state.New()
	sensor := &fakeSensor{reading: robot.ColorReading{Hue: 10, Proximity: 255}}
	cs := NewColorSorter(DefaultColorSortConfig(), sensor, st, nil)

	for ms := 0; ms < 100; ms += 5 {
		cs.Tick(ctx, at(ms))
	}
	if sensor.reads != 0 {
		t.Errorf("sensor read %d times with reject mode off", sensor.reads)
	}
	if cs.Mode() != SortNormal || st.Ejecting() {
		t.Error("reject mode off must never eject")
	}
}

func TestColorSorter_ModeSwitchIsExclusive(t *testing.T) {
	ctx := context.Background()
	st := state.New()
	st.SetRejectMode(state.RejectRed)
	st.SetRejectMode(state.RejectBlue)
	red := &fakeSensor{reading: robot.ColorReading{Hue: 5, Proximity: 200}}
	cs := NewColorSorter(DefaultColorSortConfig(), red, st, nil)

	cs.Tick(ctx, at(0))
	if cs.Mode() != SortNormal {
		t.Errorf("red ring triggered while rejecting blue")
	}
}

func TestColorSorter_ReadErrorTolerated(t *testing.T) {
	ctx := context.Background()
	st := state.New()
	st.SetRejectMode(state.RejectBlue)
	sensor := &fakeSensor{reading: robot.ColorReading{Hue: 200, Proximity: 200}, err: errBus}
	cs := NewColorSorter(DefaultColorSortConfig(), sensor, st, nil)

	cs.Tick(ctx, at(0))
	cs.Tick(ctx, at(5))
	if cs.Mode() != SortNormal {
		t.Errorf("failed read must not trigger, mode = %v", cs.Mode())
	}
	if cs.ReadErrors() != 2 {
		t.Errorf("ReadErrors() = %d, want 2", cs.ReadErrors())
	}
}

func TestColorSortConfig_Validate(t *testing.T) {
	if err := DefaultColorSortConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	cfg := DefaultColorSortConfig()
	cfg.PeriodMs = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero period should be invalid")
	}
	cfg = DefaultColorSortConfig()
	cfg.BlueHueLow, cfg.BlueHueHigh = 220, 150
	if err := cfg.Validate(); err == nil {
		t.Error("inverted blue band should be invalid")
	}
}
