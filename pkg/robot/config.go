package robot

import (
	"errors"
	"fmt"
)

// Config holds the hardware configuration.
type Config struct {
	Sim       bool              `json:"sim"`
	Chassis   ChassisConfig     `json:"chassis"`
	Mechanism MechanismConfig   `json:"mechanism"`
	Intake    IntakeConfig      `json:"intake"`
	Color     ColorSensorConfig `json:"color_sensor"`
}

// ChassisConfig locates the serial link to the motion controller.
type ChassisConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate,omitempty"`
}

// MechanismConfig locates the servo bus driving the binary actuators.
type MechanismConfig struct {
	Port        string      `json:"port"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// IsCalibrated returns true if every actuator has calibration data
func (m *MechanismConfig) IsCalibrated() bool {
	for _, name := range AllActuators() {
		if _, ok := m.Calibration[name]; !ok {
			return false
		}
	}
	return true
}

// IntakeConfig names the GPIO pins of the intake motor driver.
type IntakeConfig struct {
	PWMPin         string `json:"pwm_pin"`
	DirPin         string `json:"dir_pin"`
	EncoderPin     string `json:"encoder_pin"`
	PWMFrequencyHz int    `json:"pwm_frequency_hz,omitempty"`
	// Encoder edges per second at full commanded velocity.
	FullScaleCountsPerSec float64 `json:"full_scale_counts_per_sec,omitempty"`
}

// ColorSensorConfig locates the I2C color/proximity sensor.
type ColorSensorConfig struct {
	Bus     string `json:"bus"`
	Address uint16 `json:"address,omitempty"`
}

// Validate checks that real hardware is fully described. Simulated hardware needs nothing.
func (c *Config) Validate() error {
	if c.Sim {
		return nil
	}
	var errs []error
	if c.Chassis.Port == "" {
		errs = append(errs, errors.New("chassis.port is required"))
	}
	if c.Mechanism.Port == "" {
		errs = append(errs, errors.New("mechanism.port is required"))
	} else if !c.Mechanism.IsCalibrated() {
		errs = append(errs, errors.New("mechanism is not calibrated"))
	}
	if c.Intake.PWMPin == "" || c.Intake.DirPin == "" {
		errs = append(errs, errors.New("intake.pwm_pin and intake.dir_pin are required"))
	}
	// Stall recovery measures the intake through its encoder.
	if c.Intake.EncoderPin == "" {
		errs = append(errs, errors.New("intake.encoder_pin is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("hardware config: %w", errors.Join(errs...))
	}
	return nil
}
