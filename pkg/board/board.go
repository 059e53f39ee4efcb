// Package board drives the intake motor and color sensor attached to the host's GPIO and
// I2C pins through periph.io.
package board

import (
	"fmt"
	"sync"

	"periph.io/x/host/v3"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph.io host drivers. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		if _, err := host.Init(); err != nil {
			initErr = fmt.Errorf("init periph host: %w", err)
		}
	})
	return initErr
}
