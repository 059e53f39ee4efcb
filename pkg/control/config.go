package control

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/routine"
	"github.com/gwillem/ringbot/pkg/teleop"
	"github.com/gwillem/ringbot/pkg/watchdog"
)

const DefaultConfigFile = "ringbot.json"

// Config holds the robot configuration
type Config struct {
	// Routine is a built-in routine name or a path to a .toml script.
	Routine  string `json:"routine"`
	LogLevel string `json:"log_level,omitempty"`

	Hardware  robot.Config             `json:"hardware"`
	ColorSort watchdog.ColorSortConfig `json:"color_sort"`
	Stall     watchdog.StallConfig     `json:"stall"`
	Teleop    teleop.Config            `json:"teleop"`

	OutputsPeriodMs   int `json:"outputs_period_ms"`
	TelemetryPeriodMs int `json:"telemetry_period_ms"`
}

// DefaultConfig returns a simulated robot running the skills routine.
func DefaultConfig() *Config {
	return &Config{
		Routine:  routine.DefaultName,
		LogLevel: "info",
		Hardware: robot.Config{
			Sim:     true,
			Chassis: robot.ChassisConfig{BaudRate: 115200},
			Color:   robot.ColorSensorConfig{Address: 0x39},
		},
		ColorSort:         watchdog.DefaultColorSortConfig(),
		Stall:             watchdog.DefaultStallConfig(),
		Teleop:            teleop.DefaultConfig(),
		OutputsPeriodMs:   10,
		TelemetryPeriodMs: 50,
	}
}

// OutputsPeriod returns the actuator output loop period.
func (c *Config) OutputsPeriod() time.Duration {
	return time.Duration(c.OutputsPeriodMs) * time.Millisecond
}

// TelemetryPeriod returns the telemetry publishing period.
func (c *Config) TelemetryPeriod() time.Duration {
	return time.Duration(c.TelemetryPeriodMs) * time.Millisecond
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var err error
	err = multierr.Append(err, c.Hardware.Validate())
	err = multierr.Append(err, c.ColorSort.Validate())
	err = multierr.Append(err, c.Stall.Validate())
	if c.Teleop.Hz <= 0 {
		err = multierr.Append(err, fmt.Errorf("teleop: hz must be positive"))
	}
	if c.OutputsPeriodMs <= 0 || c.TelemetryPeriodMs <= 0 {
		err = multierr.Append(err, fmt.Errorf("outputs_period_ms and telemetry_period_ms must be positive"))
	}
	return err
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Settings missing from the
// file keep their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
