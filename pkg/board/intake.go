package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"

	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/state"
)

const (
	defaultPWMFrequency = 20000
	// Encoder edges per second at full commanded velocity, for an unconfigured motor.
	defaultFullScale = 2400
)

// Intake drives a DC motor through a PWM pin (speed) and a direction pin, and measures
// its speed from a single-channel encoder. The encoder cannot tell direction, so the
// measured speed takes the sign of the command.
type Intake struct {
	pwm, dir gpio.PinIO
	enc      gpio.PinIO
	freq     physic.Frequency
	scale    float64
	logger   *zap.SugaredLogger

	edges atomic.Int64

	mu       sync.Mutex
	velocity int
	lastEdge int64
	lastAt   time.Time

	stop chan struct{}
	done chan struct{}
}

// OpenIntake claims the pins named in cfg.
func OpenIntake(cfg robot.IntakeConfig, logger *zap.SugaredLogger) (*Intake, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	pin := func(name string) (gpio.PinIO, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("no gpio pin %q", name)
		}
		return p, nil
	}

	pwm, err := pin(cfg.PWMPin)
	if err != nil {
		return nil, err
	}
	dir, err := pin(cfg.DirPin)
	if err != nil {
		return nil, err
	}

	freq := cfg.PWMFrequencyHz
	if freq <= 0 {
		freq = defaultPWMFrequency
	}
	scale := cfg.FullScaleCountsPerSec
	if scale <= 0 {
		scale = defaultFullScale
	}

	in := &Intake{
		pwm:    pwm,
		dir:    dir,
		freq:   physic.Frequency(freq) * physic.Hertz,
		scale:  scale,
		logger: logger,
		lastAt: time.Now(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	if cfg.EncoderPin != "" {
		if in.enc, err = pin(cfg.EncoderPin); err != nil {
			return nil, err
		}
		if err := in.enc.In(gpio.PullDown, gpio.RisingEdge); err != nil {
			return nil, fmt.Errorf("encoder pin %s: %w", cfg.EncoderPin, err)
		}
		go in.countEdges()
	} else {
		close(in.done)
	}

	if err := in.Move(context.Background(), 0); err != nil {
		in.Close()
		return nil, err
	}
	return in, nil
}

func (in *Intake) countEdges() {
	defer close(in.done)
	for {
		select {
		case <-in.stop:
			return
		default:
		}
		if in.enc.WaitForEdge(100 * time.Millisecond) {
			in.edges.Inc()
		}
	}
}

// DutyFor converts a commanded velocity to a PWM duty cycle.
func DutyFor(velocity int) gpio.Duty {
	v := state.ClampVelocity(velocity)
	if v < 0 {
		v = -v
	}
	return gpio.Duty(int64(gpio.DutyMax) * int64(v) / state.MaxVelocity)
}

// VelocityFromRate scales an encoder edge rate to the commanded velocity range.
func VelocityFromRate(edgesPerSec, fullScale float64, commanded int) float64 {
	if fullScale <= 0 {
		return 0
	}
	v := edgesPerSec / fullScale * state.MaxVelocity
	if commanded < 0 {
		v = -v
	}
	return v
}

func (in *Intake) Move(_ context.Context, velocity int) error {
	v := state.ClampVelocity(velocity)

	level := gpio.Low
	if v < 0 {
		level = gpio.High
	}
	if err := in.dir.Out(level); err != nil {
		return fmt.Errorf("intake direction: %w", err)
	}
	if err := in.pwm.PWM(DutyFor(v), in.freq); err != nil {
		return fmt.Errorf("intake pwm: %w", err)
	}

	in.mu.Lock()
	in.velocity = v
	in.mu.Unlock()
	return nil
}

// ActualVelocity returns the encoder speed since the previous call.
func (in *Intake) ActualVelocity(context.Context) (float64, error) {
	if in.enc == nil {
		return 0, fmt.Errorf("intake has no encoder")
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	now := time.Now()
	edges := in.edges.Load()
	dt := now.Sub(in.lastAt).Seconds()
	delta := edges - in.lastEdge
	in.lastEdge, in.lastAt = edges, now
	if dt <= 0 {
		return 0, nil
	}
	return VelocityFromRate(float64(delta)/dt, in.scale, in.velocity), nil
}

// Close stops the motor and releases the encoder.
func (in *Intake) Close() error {
	err := in.pwm.Out(gpio.Low)
	select {
	case <-in.stop:
	default:
		close(in.stop)
	}
	<-in.done
	if in.enc != nil {
		if herr := in.enc.Halt(); herr != nil && err == nil {
			err = herr
		}
	}
	return err
}
