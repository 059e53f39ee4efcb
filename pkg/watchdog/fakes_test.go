package watchdog

import (
	"context"
	"errors"
	"time"

	"github.com/gwillem/ringbot/pkg/robot"
)

var epoch = time.Unix(1_700_000_000, 0)

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

type fakeSensor struct {
	reading robot.ColorReading
	err     error
	reads   int
}

func (s *fakeSensor) Read(context.Context) (robot.ColorReading, error) {
	s.reads++
	return s.reading, s.err
}

type fakeIntake struct {
	actual  float64
	moves   []int
	moveErr error
	readErr error
}

func (i *fakeIntake) Move(_ context.Context, v int) error {
	i.moves = append(i.moves, v)
	return i.moveErr
}

func (i *fakeIntake) ActualVelocity(context.Context) (float64, error) {
	return i.actual, i.readErr
}

var errBus = errors.New("bus timeout")
