package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/gwillem/ringbot/pkg/robot"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func mustPose(t *testing.T, c *Chassis) robot.Pose {
	t.Helper()
	p, err := c.Pose(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestChassis_MoveToPoint(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		params    robot.MoveParams
		timeout   time.Duration
		after     time.Duration
		wantY     float64
		wantTheta float64
		wantBusy  bool
	}{
		{"half way", robot.DefaultMoveParams(), 5 * time.Second, 500 * time.Millisecond, 30, 0, true},
		{"arrived", robot.DefaultMoveParams(), 5 * time.Second, 1100 * time.Millisecond, 60, 0, false},
		{"timeout stops short", robot.DefaultMoveParams(), 250 * time.Millisecond, time.Second, 15, 0, false},
		{"early exit", robot.MoveParams{Forwards: true, MaxSpeed: 127, EarlyExitRange: 10}, 5 * time.Second, time.Second, 50, 0, false},
		{"backwards", robot.MoveParams{Forwards: false, MaxSpeed: 127}, 5 * time.Second, 2 * time.Second, 60, 180, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewMock()
			c := NewChassis(DefaultChassisConfig(), clk)
			if err := c.SetPose(ctx, robot.Pose{}); err != nil {
				t.Fatal(err)
			}
			if err := c.MoveToPoint(ctx, robot.Point{X: 0, Y: 60}, tt.timeout, tt.params); err != nil {
				t.Fatal(err)
			}
			clk.Add(tt.after)

			got := mustPose(t, c)
			if !near(got.Y, tt.wantY) || !near(got.X, 0) || !near(got.Theta, tt.wantTheta) {
				t.Errorf("pose = %+v, want y=%g theta=%g", got, tt.wantY, tt.wantTheta)
			}
			if c.Busy() != tt.wantBusy {
				t.Errorf("Busy() = %t, want %t", c.Busy(), tt.wantBusy)
			}
		})
	}
}

func TestChassis_SpeedScalesTravel(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	c := NewChassis(DefaultChassisConfig(), clk)

	slow := robot.DefaultMoveParams()
	slow.MaxSpeed = 127 / 2
	_ = c.MoveToPoint(ctx, robot.Point{Y: 60}, 10*time.Second, slow)
	clk.Add(time.Second)

	if got := mustPose(t, c); got.Y >= 31 || got.Y <= 29 {
		t.Errorf("half-speed move covered %g in, want about 30", got.Y)
	}
}

func TestChassis_Supersede(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	c := NewChassis(DefaultChassisConfig(), clk)

	_ = c.MoveToPoint(ctx, robot.Point{Y: 60}, 5*time.Second, robot.DefaultMoveParams())
	clk.Add(500 * time.Millisecond)
	_ = c.TurnToHeading(ctx, 90, time.Second)
	clk.Add(time.Second)

	got := mustPose(t, c)
	if !near(got.Y, 30) || !near(got.Theta, 90) {
		t.Errorf("pose = %+v, want turned to 90 at y=30", got)
	}
}

func TestChassis_MoveToPoseAndTurnToPoint(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	c := NewChassis(DefaultChassisConfig(), clk)

	_ = c.SetPose(ctx, robot.Pose{X: 10, Y: 10, Theta: 0})
	_ = c.MoveToPose(ctx, robot.Pose{X: 40, Y: 50, Theta: 270}, 5*time.Second, robot.DefaultMoveParams())
	clk.Add(2 * time.Second)
	got := mustPose(t, c)
	if !near(got.X, 40) || !near(got.Y, 50) || !near(got.Theta, 270) {
		t.Errorf("pose = %+v, want 40,50,270", got)
	}

	_ = c.TurnToPoint(ctx, robot.Point{X: 60, Y: 50}, time.Second)
	clk.Add(time.Second)
	if got := mustPose(t, c); !near(got.Theta, 90) {
		t.Errorf("heading = %g, want 90", got.Theta)
	}
	if c.Commands() != 3 {
		t.Errorf("Commands() = %d, want 3", c.Commands())
	}
}

func TestChassis_Arcade(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	c := NewChassis(DefaultChassisConfig(), clk)

	_ = c.Arcade(ctx, 127, 0)
	clk.Add(time.Second)
	if got := mustPose(t, c); !near(got.Y, 60) {
		t.Errorf("y = %g after a second at full throttle, want 60", got.Y)
	}

	_ = c.Arcade(ctx, 0, 0)
	clk.Add(time.Second)
	if got := mustPose(t, c); !near(got.Y, 60) {
		t.Errorf("y = %g after stopping, want 60", got.Y)
	}
}

func TestChassis_WaitUntilDone(t *testing.T) {
	ctx := context.Background()
	c := NewChassis(ChassisConfig{InchesPerSecond: 3000, DegreesPerSecond: 36000}, clock.New())

	if err := c.WaitUntilDone(ctx); err != nil {
		t.Fatalf("idle WaitUntilDone: %v", err)
	}

	_ = c.MoveToPoint(ctx, robot.Point{Y: 60}, time.Second, robot.DefaultMoveParams())
	if err := c.WaitUntilDone(ctx); err != nil {
		t.Fatalf("WaitUntilDone: %v", err)
	}
	if got := mustPose(t, c); !near(got.Y, 60) {
		t.Errorf("y = %g after WaitUntilDone, want 60", got.Y)
	}
}

func TestChassis_WaitUntilDoneSuperseded(t *testing.T) {
	ctx := context.Background()
	c := NewChassis(ChassisConfig{InchesPerSecond: 1, DegreesPerSecond: 1}, clock.New())

	_ = c.MoveToPoint(ctx, robot.Point{Y: 600}, time.Hour, robot.DefaultMoveParams())
	done := make(chan error, 1)
	go func() { done <- c.WaitUntilDone(ctx) }()

	time.Sleep(10 * time.Millisecond)
	_ = c.SetBrakeMode(ctx, robot.BrakeHold)
	select {
	case <-done:
		t.Fatal("brake mode change ended the motion")
	case <-time.After(10 * time.Millisecond):
	}

	_ = c.TurnToHeading(ctx, 0, time.Hour)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitUntilDone: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitUntilDone still blocked after a new command")
	}
	if c.BrakeMode() != robot.BrakeHold {
		t.Errorf("BrakeMode() = %v, want hold", c.BrakeMode())
	}
}

func TestChassis_WaitUntilDoneCanceled(t *testing.T) {
	c := NewChassis(ChassisConfig{InchesPerSecond: 1, DegreesPerSecond: 1}, clock.New())
	_ = c.MoveToPoint(context.Background(), robot.Point{Y: 600}, time.Hour, robot.DefaultMoveParams())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.WaitUntilDone(ctx); err != context.DeadlineExceeded {
		t.Errorf("WaitUntilDone error = %v, want deadline exceeded", err)
	}
}

func TestIntake_Jam(t *testing.T) {
	ctx := context.Background()
	in := NewIntake()

	_ = in.Move(ctx, -127)
	if v, _ := in.ActualVelocity(ctx); v != -127 {
		t.Errorf("actual = %g, want -127", v)
	}

	in.Jam()
	_ = in.Move(ctx, -127)
	if v, _ := in.ActualVelocity(ctx); v != 0 {
		t.Errorf("jammed actual = %g, want 0", v)
	}

	_ = in.Move(ctx, 127)
	if in.Jammed() {
		t.Error("forward drive did not clear the jam")
	}
	if v, _ := in.ActualVelocity(ctx); v != 127 {
		t.Errorf("actual = %g, want 127", v)
	}
	if in.Moves() != 3 {
		t.Errorf("Moves() = %d, want 3", in.Moves())
	}
}

func TestColorSensor_Feeder(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	in := NewIntake()
	sensor := NewColorSensor()
	feeder := NewFeeder(clk, in)
	sensor.Attach(feeder)

	read := func() robot.ColorReading {
		t.Helper()
		r, err := sensor.Read(ctx)
		if err != nil {
			t.Fatal(err)
		}
		return r
	}

	if got := read(); got != EmptySlot {
		t.Errorf("idle intake: read %+v, want empty", got)
	}

	_ = in.Move(ctx, -127)
	if got := read(); got != RedRing {
		t.Errorf("first ring = %+v, want red", got)
	}
	clk.Add(30 * time.Millisecond)
	if got := read(); got != RedRing {
		t.Errorf("ring left view early: %+v", got)
	}
	clk.Add(100 * time.Millisecond)
	if got := read(); got != EmptySlot {
		t.Errorf("gap: read %+v, want empty", got)
	}
	clk.Add(time.Second)
	if got := read(); got != BlueRing {
		t.Errorf("second ring = %+v, want blue", got)
	}
	if feeder.Rings() != 2 {
		t.Errorf("Rings() = %d, want 2", feeder.Rings())
	}

	_ = sensor.SetLEDPWM(ctx, 100)
	if sensor.LED() != 100 {
		t.Errorf("LED() = %d, want 100", sensor.LED())
	}
}

func TestColorSensor_Set(t *testing.T) {
	sensor := NewColorSensor()
	sensor.Set(BlueRing)
	got, _ := sensor.Read(context.Background())
	if got != BlueRing || sensor.Reads() != 1 {
		t.Errorf("Read() = %+v after %d reads", got, sensor.Reads())
	}
}
