package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gwillem/ringbot/pkg/routine"
)

type AutonCommand struct {
	Routine  string        `long:"routine" short:"r" description:"Built-in routine name or path to a .toml script (default from config)"`
	Limit    time.Duration `long:"limit" description:"Stop the routine after this long, 0 for no limit"`
	Headless bool          `long:"headless" description:"Log to stderr instead of showing the dashboard"`
}

func (c *AutonCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ref := c.Routine
	if ref == "" {
		ref = cfg.Routine
	}
	rt, err := routine.Load(ref)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx, cfg, !c.Headless)
	if err != nil {
		return err
	}
	defer s.Close()

	runCtx := ctx
	if c.Limit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Limit)
		defer cancel()
	}

	if c.Headless {
		s.logger.Infow("running routine", "routine", rt.Name, "steps", len(rt.Steps))
		res, err := s.robot.RunAutonomous(runCtx, rt)
		if err != nil {
			return err
		}
		fmt.Println(successStyle.Render(resultLine(res)))
		return nil
	}

	runCtx, cancel := context.WithCancel(runCtx)
	defer cancel()

	model := newDashboard("ringbot auton", rt.Name, s)
	p := tea.NewProgram(model, tea.WithAltScreen())

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		res, err := s.robot.RunAutonomous(runCtx, rt)
		p.Send(doneMsg{summary: resultLine(res), err: err})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	cancel()
	<-finished
	return nil
}

func resultLine(res routine.Result) string {
	line := fmt.Sprintf("%s: %d steps (%d motions, %d waits) in %s, phase %d",
		res.Routine, res.Steps, res.Motions, res.Waits, res.Elapsed.Truncate(time.Millisecond), res.Phase)
	if res.Failures > 0 {
		line += fmt.Sprintf(", %d failed", res.Failures)
	}
	return line
}
