package robot

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServoCalibration holds the two raw servo positions of a binary actuator.
type ServoCalibration struct {
	ID        int `json:"id"`
	Retracted int `json:"retracted"`
	Extended  int `json:"extended"`
}

// Calibration holds calibration data for all actuators, keyed by name.
type Calibration map[ActuatorName]ServoCalibration

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	// Parse into a map with string keys first
	var raw map[string]ServoCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, sc := range raw {
		cal[ActuatorName(name)] = sc
	}

	return cal, nil
}

// Position returns the raw servo position for the requested state.
func (c ServoCalibration) Position(extended bool) int {
	if extended {
		return c.Extended
	}
	return c.Retracted
}

// IsExtended reports whether raw is closer to the extended position than to the retracted one.
func (c ServoCalibration) IsExtended(raw int) bool {
	return abs(raw-c.Extended) < abs(raw-c.Retracted)
}

// Travel returns the distance between the two positions in raw units.
func (c ServoCalibration) Travel() int {
	return abs(c.Extended - c.Retracted)
}

// ServoIDs returns the servo IDs for all actuators in the calibration.
func (c Calibration) ServoIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllActuators() to ensure consistent ordering
	for _, name := range AllActuators() {
		if sc, ok := c[name]; ok {
			ids = append(ids, sc.ID)
		}
	}
	return ids
}

// ByID returns actuator name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (ActuatorName, ServoCalibration, bool) {
	for name, sc := range c {
		if sc.ID == id {
			return name, sc, true
		}
	}
	return "", ServoCalibration{}, false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
