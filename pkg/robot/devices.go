// Package robot defines the hardware the control layer drives and the feetech-backed
// mechanism that positions the loader.
package robot

import "context"

// ActuatorName identifies a binary-position actuator.
type ActuatorName string

// Binary actuators on the robot.
const (
	Loader    ActuatorName = "loader"
	Secondary ActuatorName = "secondary"
)

// AllActuators returns all actuator names in order (matching servo IDs 1-2).
func AllActuators() []ActuatorName {
	return []ActuatorName{
		Loader,
		Secondary,
	}
}

// Intake is the intake motor. Velocity uses the commanded scale, -127..127.
type Intake interface {
	Move(ctx context.Context, velocity int) error
	ActualVelocity(ctx context.Context) (float64, error)
}

// ColorReading is one sample of the color/proximity sensor.
// Hue is in degrees [0, 360); Proximity grows as an object gets closer (0..255).
type ColorReading struct {
	Hue       float64
	Proximity int
}

// ColorSensor samples the ring color at the intake.
type ColorSensor interface {
	Read(ctx context.Context) (ColorReading, error)
}

// LEDSetter is implemented by color sensors with a controllable illumination LED.
// pwm is a percentage, 0..100.
type LEDSetter interface {
	SetLEDPWM(ctx context.Context, pwm int) error
}

// BinaryActuator is an actuator with two positions, such as the match loader.
type BinaryActuator interface {
	SetExtended(ctx context.Context, extended bool) error
}
