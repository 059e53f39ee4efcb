package control

import (
	"context"
	"fmt"
	"io"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/ringbot/pkg/board"
	"github.com/gwillem/ringbot/pkg/link"
	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/sim"
)

// Hardware is the set of devices the control loops drive.
type Hardware struct {
	Chassis   robot.Chassis
	Intake    robot.Intake
	Color     robot.ColorSensor
	Loader    robot.BinaryActuator
	Secondary robot.BinaryActuator

	// Sim is set when the devices are simulated.
	Sim *SimParts

	closers []io.Closer
}

// SimParts exposes the simulated devices for inspection and fault injection.
type SimParts struct {
	Chassis   *sim.Chassis
	Intake    *sim.Intake
	Color     *sim.ColorSensor
	Feeder    *sim.Feeder
	Loader    *sim.Actuator
	Secondary *sim.Actuator
}

// NewSimHardware returns simulated devices on clk. The color sensor starts with the
// ring feeder attached.
func NewSimHardware(clk clock.Clock) *Hardware {
	if clk == nil {
		clk = clock.New()
	}
	parts := &SimParts{
		Chassis:   sim.NewChassis(sim.DefaultChassisConfig(), clk),
		Intake:    sim.NewIntake(),
		Color:     sim.NewColorSensor(),
		Loader:    &sim.Actuator{},
		Secondary: &sim.Actuator{},
	}
	parts.Feeder = sim.NewFeeder(clk, parts.Intake)
	parts.Color.Attach(parts.Feeder)

	return &Hardware{
		Chassis:   parts.Chassis,
		Intake:    parts.Intake,
		Color:     parts.Color,
		Loader:    parts.Loader,
		Secondary: parts.Secondary,
		Sim:       parts,
	}
}

// OpenHardware opens the devices described by cfg, or simulates them when cfg.Sim is set.
func OpenHardware(ctx context.Context, cfg robot.Config, clk clock.Clock, logger *zap.SugaredLogger) (hw *Hardware, err error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Sim {
		logger.Infow("using simulated hardware")
		return NewSimHardware(clk), nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hw = &Hardware{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, hw.Close())
			hw = nil
		}
	}()

	chassis, err := link.Open(cfg.Chassis.Port, cfg.Chassis.BaudRate, logger.Named("link"))
	if err != nil {
		return hw, err
	}
	hw.Chassis = chassis
	hw.closers = append(hw.closers, chassis)

	mech, err := robot.NewMechanism(cfg.Mechanism.Port, cfg.Mechanism.Calibration)
	if err != nil {
		return hw, fmt.Errorf("mechanism: %w", err)
	}
	hw.closers = append(hw.closers, closerFunc(func() error {
		return multierr.Combine(mech.Disable(context.Background()), mech.Close())
	}))
	if err := mech.Enable(ctx); err != nil {
		return hw, fmt.Errorf("enable mechanism: %w", err)
	}
	hw.Loader = mech.Actuator(robot.Loader)
	hw.Secondary = mech.Actuator(robot.Secondary)

	intake, err := board.OpenIntake(cfg.Intake, logger.Named("intake"))
	if err != nil {
		return hw, fmt.Errorf("intake: %w", err)
	}
	hw.Intake = intake
	hw.closers = append(hw.closers, intake)

	color, err := board.OpenAPDS9960(cfg.Color, logger.Named("color"))
	if err != nil {
		return hw, fmt.Errorf("color sensor: %w", err)
	}
	hw.Color = color
	hw.closers = append(hw.closers, color)

	logger.Infow("hardware opened", "chassis", cfg.Chassis.Port, "mechanism", cfg.Mechanism.Port)
	return hw, nil
}

// Close releases every opened device, last opened first.
func (h *Hardware) Close() error {
	var err error
	for i := len(h.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, h.closers[i].Close())
	}
	h.closers = nil
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
