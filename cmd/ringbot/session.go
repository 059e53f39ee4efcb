package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/ringbot/pkg/control"
	"github.com/gwillem/ringbot/pkg/logging"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// loadConfig reads the --config file. A missing default file means a simulated robot.
func loadConfig() (*control.Config, error) {
	cfg, err := control.LoadConfigFrom(opts.Config)
	switch {
	case err == nil:
	case os.IsNotExist(err) && opts.Config == control.DefaultConfigFile:
		fmt.Fprintln(os.Stderr, dimStyle.Render("No configuration found, using a simulated robot. Run 'ringbot setup' to configure hardware."))
		cfg = control.DefaultConfig()
	default:
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	return cfg, cfg.Validate()
}

// session is an opened robot plus the logger feeding it.
type session struct {
	cfg    *control.Config
	hw     *control.Hardware
	robot  *control.Robot
	logger *zap.SugaredLogger
	// sink carries log lines to the dashboard; nil when logging to stderr.
	sink *logging.ChannelSink
}

// openSession opens the hardware named by cfg. With tui set, logs go to a channel
// instead of stderr so they do not tear the dashboard.
func openSession(ctx context.Context, cfg *control.Config, tui bool) (*session, error) {
	s := &session{cfg: cfg}

	var sinks []zapcore.WriteSyncer
	if tui {
		s.sink = logging.NewChannelSink(100)
		sinks = append(sinks, s.sink)
	}
	s.logger = logging.New(logging.ParseLevel(cfg.LogLevel), sinks...)

	hw, err := control.OpenHardware(ctx, cfg.Hardware, nil, s.logger)
	if err != nil {
		return nil, fmt.Errorf("open hardware: %w", err)
	}
	s.hw = hw

	s.robot, err = control.New(cfg, hw, nil, s.logger)
	if err != nil {
		return nil, multierr.Append(err, hw.Close())
	}
	return s, nil
}

func (s *session) Close() error {
	_ = s.logger.Sync()
	return s.hw.Close()
}
