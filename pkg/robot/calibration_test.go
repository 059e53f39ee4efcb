package robot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestServoCalibration_Position(t *testing.T) {
	cal := ServoCalibration{
		Retracted: 1000,
		Extended:  3000,
	}

	if got := cal.Position(true); got != 3000 {
		t.Errorf("Position(true) = %d, want 3000", got)
	}
	if got := cal.Position(false); got != 1000 {
		t.Errorf("Position(false) = %d, want 1000", got)
	}
	if got := cal.Travel(); got != 2000 {
		t.Errorf("Travel() = %d, want 2000", got)
	}
}

func TestServoCalibration_IsExtended(t *testing.T) {
	// Inverted mounting: extended is the lower raw position
	cal := ServoCalibration{
		Retracted: 3000,
		Extended:  1000,
	}

	tests := []struct {
		raw      int
		expected bool
	}{
		{1000, true},
		{1200, true},
		{1999, true},
		{2001, false},
		{3000, false},
		{3500, false},
	}

	for _, tt := range tests {
		if got := cal.IsExtended(tt.raw); got != tt.expected {
			t.Errorf("IsExtended(%d) = %t, want %t", tt.raw, got, tt.expected)
		}
	}
}

func TestCalibration_ServoIDs(t *testing.T) {
	cal := Calibration{
		Secondary: ServoCalibration{ID: 2},
		Loader:    ServoCalibration{ID: 1},
	}

	ids := cal.ServoIDs()
	expected := []int{1, 2}

	if len(ids) != len(expected) {
		t.Fatalf("ServoIDs returned %d IDs, want %d", len(ids), len(expected))
	}

	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("ServoIDs()[%d] = %d, want %d", i, id, expected[i])
		}
	}
}

func TestCalibration_ByID(t *testing.T) {
	cal := Calibration{
		Loader:    ServoCalibration{ID: 1, Retracted: 100, Extended: 200},
		Secondary: ServoCalibration{ID: 2, Retracted: 300, Extended: 400},
	}

	name, sc, ok := cal.ByID(1)
	if !ok {
		t.Fatal("ByID(1) returned false")
	}
	if name != Loader {
		t.Errorf("ByID(1) returned name %s, want loader", name)
	}
	if sc.Retracted != 100 {
		t.Errorf("ByID(1) returned wrong calibration: %+v", sc)
	}

	_, _, ok = cal.ByID(99)
	if ok {
		t.Error("ByID(99) should return false")
	}
}

func TestLoadCalibration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	data := `{"loader": {"id": 1, "retracted": 900, "extended": 2100}}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cal, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration: %v", err)
	}
	if got := cal[Loader]; got != (ServoCalibration{ID: 1, Retracted: 900, Extended: 2100}) {
		t.Errorf("loader calibration = %+v", got)
	}

	if _, err := LoadCalibration(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadCalibration on a missing file should fail")
	}
}

func TestConfig_Validate(t *testing.T) {
	sim := Config{Sim: true}
	if err := sim.Validate(); err != nil {
		t.Errorf("sim config should be valid: %v", err)
	}

	var empty Config
	if err := empty.Validate(); err == nil {
		t.Error("empty hardware config should be invalid")
	}

	full := Config{
		Chassis: ChassisConfig{Port: "/dev/ttyACM0"},
		Mechanism: MechanismConfig{
			Port: "/dev/ttyUSB0",
			Calibration: Calibration{
				Loader:    {ID: 1, Retracted: 1000, Extended: 2000},
				Secondary: {ID: 2, Retracted: 1000, Extended: 2000},
			},
		},
		Intake: IntakeConfig{PWMPin: "GPIO18", DirPin: "GPIO23", EncoderPin: "GPIO24"},
	}
	if err := full.Validate(); err != nil {
		t.Errorf("full config should be valid: %v", err)
	}

	noEncoder := full
	noEncoder.Intake.EncoderPin = ""
	err := noEncoder.Validate()
	if err == nil || !strings.Contains(err.Error(), "intake.encoder_pin") {
		t.Errorf("config without an intake encoder: Validate() = %v, want encoder_pin error", err)
	}
}
