package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

type TeleopCommand struct {
	Hz int `long:"hz" description:"Control loop frequency (default from config)"`
}

func (c *TeleopCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Hz > 0 {
		cfg.Teleop.Hz = c.Hz
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := openSession(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.Close()

	keys := newKeyPad()
	model := newDashboard("ringbot teleop", fmt.Sprintf("%d Hz", cfg.Teleop.Hz), s)
	model.keys = keys
	model.help = "w/a/s/d drive, 1 loader, 2 secondary, i intake in, o out, space stop, q quit"

	finished := background(s.logger, "teleop", func() error {
		return s.robot.RunTeleop(ctx, keys.pad, nil)
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	cancel()
	<-finished
	return nil
}

// background runs fn in its own goroutine and logs the error it returns, so the
// dashboard shows it instead of stderr. The channel closes once fn returns.
func background(logger *zap.SugaredLogger, what string, fn func() error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := fn(); err != nil {
			logger.Errorw(what+" stopped", "error", err)
		}
	}()
	return done
}
