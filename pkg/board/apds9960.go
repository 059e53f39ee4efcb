package board

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/gwillem/ringbot/pkg/robot"
)

// DefaultAPDS9960Address is the sensor's fixed I2C address.
const DefaultAPDS9960Address = 0x39

// APDS-9960 registers.
const (
	regEnable  = 0x80
	regATime   = 0x81
	regControl = 0x8F
	regID      = 0x92
	regCDataL  = 0x94 // C, R, G, B little endian, then PDATA at 0x9C

	enablePower     = 0x01
	enableALS       = 0x02
	enableProximity = 0x04

	atime27ms = 0xF6
	pgain4x   = 0x04
	again4x   = 0x01
)

// LED drive strengths, bits 7:6 of CONTROL.
const (
	ledDrive100mA  = 0x00
	ledDrive50mA   = 0x40
	ledDrive25mA   = 0x80
	ledDrive12_5mA = 0xC0
)

// APDS9960 is a color and proximity sensor on I2C.
type APDS9960 struct {
	mu     sync.Mutex
	dev    conn.Conn
	closer i2c.BusCloser
	ldrive byte
	logger *zap.SugaredLogger
}

// OpenAPDS9960 opens the sensor on the named I2C bus ("" for the first bus).
func OpenAPDS9960(cfg robot.ColorSensorConfig, logger *zap.SugaredLogger) (*APDS9960, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}
	addr := cfg.Address
	if addr == 0 {
		addr = DefaultAPDS9960Address
	}

	s, err := NewAPDS9960(&i2c.Dev{Bus: bus, Addr: addr}, logger)
	if err != nil {
		bus.Close()
		return nil, err
	}
	s.closer = bus
	return s, nil
}

// NewAPDS9960 configures a sensor reachable over dev and enables color and proximity.
func NewAPDS9960(dev conn.Conn, logger *zap.SugaredLogger) (*APDS9960, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &APDS9960{dev: dev, ldrive: ledDrive100mA, logger: logger}

	id := make([]byte, 1)
	if err := dev.Tx([]byte{regID}, id); err != nil {
		return nil, fmt.Errorf("apds9960 id: %w", err)
	}
	if id[0] != 0xAB && id[0] != 0xA8 {
		logger.Warnw("unexpected apds9960 id", "id", fmt.Sprintf("%#x", id[0]))
	}

	for _, w := range [][]byte{
		{regEnable, 0},
		{regATime, atime27ms},
		{regControl, s.ldrive | pgain4x | again4x},
		{regEnable, enablePower | enableALS | enableProximity},
	} {
		if err := dev.Tx(w, nil); err != nil {
			return nil, fmt.Errorf("apds9960 setup %#x: %w", w[0], err)
		}
	}
	return s, nil
}

// Read samples the color channels and proximity.
func (s *APDS9960) Read(context.Context) (robot.ColorReading, error) {
	buf := make([]byte, 9)
	s.mu.Lock()
	err := s.dev.Tx([]byte{regCDataL}, buf)
	s.mu.Unlock()
	if err != nil {
		return robot.ColorReading{}, fmt.Errorf("apds9960 read: %w", err)
	}

	r := binary.LittleEndian.Uint16(buf[2:4])
	g := binary.LittleEndian.Uint16(buf[4:6])
	b := binary.LittleEndian.Uint16(buf[6:8])
	return robot.ColorReading{
		Hue:       Hue(r, g, b),
		Proximity: int(buf[8]),
	}, nil
}

// SetLEDPWM maps a 0..100 duty onto the four LED drive strengths.
func (s *APDS9960) SetLEDPWM(_ context.Context, pwm int) error {
	drive := LEDDrive(pwm)

	s.mu.Lock()
	defer s.mu.Unlock()
	if drive == s.ldrive {
		return nil
	}
	if err := s.dev.Tx([]byte{regControl, drive | pgain4x | again4x}, nil); err != nil {
		return fmt.Errorf("apds9960 led drive: %w", err)
	}
	s.ldrive = drive
	return nil
}

// Close powers the sensor down and releases the bus.
func (s *APDS9960) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.dev.Tx([]byte{regEnable, 0}, nil)
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// LEDDrive returns the CONTROL register LED bits for a duty percentage.
func LEDDrive(pwm int) byte {
	switch {
	case pwm >= 75:
		return ledDrive100mA
	case pwm >= 38:
		return ledDrive50mA
	case pwm >= 19:
		return ledDrive25mA
	default:
		return ledDrive12_5mA
	}
}

// Hue returns the hue in degrees of raw channel counts. A dark sample has hue 0.
func Hue(r, g, b uint16) float64 {
	m := max(r, g, b)
	if m == 0 {
		return 0
	}
	c := colorful.Color{R: float64(r) / float64(m), G: float64(g) / float64(m), B: float64(b) / float64(m)}
	h, _, _ := c.Hsv()
	return h
}
