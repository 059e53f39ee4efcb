package robot

import (
	"context"
	"fmt"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// Mechanism drives the binary actuators through servos on one feetech bus.
type Mechanism struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// NewMechanism opens the servo bus on port.
func NewMechanism(port string, cal Calibration) (*Mechanism, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, cal.ServoIDs()...)

	return &Mechanism{
		bus:         bus,
		group:       group,
		calibration: cal,
	}, nil
}

// Close closes the bus connection.
func (m *Mechanism) Close() error {
	return m.bus.Close()
}

// Enable enables torque on all servos.
func (m *Mechanism) Enable(ctx context.Context) error {
	return m.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (m *Mechanism) Disable(ctx context.Context) error {
	return m.group.DisableAll(ctx)
}

// ReadStates reads every servo and reports which actuators sit nearer their extended position.
func (m *Mechanism) ReadStates(ctx context.Context) (map[ActuatorName]bool, error) {
	raw, err := m.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	states := make(map[ActuatorName]bool, len(raw))
	for id, pos := range raw {
		name, cal, ok := m.calibration.ByID(id)
		if !ok {
			continue
		}
		states[name] = cal.IsExtended(pos)
	}
	return states, nil
}

// WriteStates moves the named actuators in one sync write.
func (m *Mechanism) WriteStates(ctx context.Context, states map[ActuatorName]bool) error {
	positions := make(feetech.PositionMap, len(states))
	for name, extended := range states {
		cal, ok := m.calibration[name]
		if !ok {
			continue
		}
		positions[cal.ID] = cal.Position(extended)
	}
	if len(positions) == 0 {
		return nil
	}

	if err := m.group.SetPositions(ctx, positions); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// Actuator returns the named actuator as a BinaryActuator.
func (m *Mechanism) Actuator(name ActuatorName) BinaryActuator {
	return mechanismActuator{m: m, name: name}
}

type mechanismActuator struct {
	m    *Mechanism
	name ActuatorName
}

func (a mechanismActuator) SetExtended(ctx context.Context, extended bool) error {
	return a.m.WriteStates(ctx, map[ActuatorName]bool{a.name: extended})
}
