package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.bug.st/serial"

	"github.com/gwillem/ringbot/pkg/link"
	"github.com/gwillem/ringbot/pkg/logging"
	"github.com/gwillem/ringbot/pkg/sim"
)

// ChassisSimCommand stands in for the motion controller, so the link can be tested
// against a second serial port or a null-modem pair.
type ChassisSimCommand struct {
	Port     string `long:"port" required:"true" description:"Serial port to serve on"`
	BaudRate int    `long:"baud" default:"115200" description:"Baud rate"`
}

func (c *ChassisSimCommand) Execute(args []string) error {
	level := opts.LogLevel
	if level == "" {
		level = "info"
	}
	logger := logging.New(logging.ParseLevel(level)).Named("chassis-sim")
	defer logger.Sync()

	p, err := serial.Open(c.Port, &serial.Mode{BaudRate: c.BaudRate})
	if err != nil {
		return fmt.Errorf("open %s: %w", c.Port, err)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		p.Close()
	}()

	chassis := sim.NewChassis(sim.DefaultChassisConfig(), nil)
	logger.Infow("serving simulated chassis", "port", c.Port, "baud", c.BaudRate)
	if err := link.Serve(ctx, p, chassis, logger); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
