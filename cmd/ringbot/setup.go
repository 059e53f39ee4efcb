package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/ringbot/pkg/control"
	"github.com/gwillem/ringbot/pkg/robot"
	"github.com/gwillem/ringbot/pkg/routine"
)

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("ringbot setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━"))
	fmt.Println()

	cfg := control.DefaultConfig()
	if existing, err := control.LoadConfigFrom(opts.Config); err == nil {
		cfg = existing
		fmt.Printf("Editing %s\n\n", opts.Config)
	}

	if err := chooseBasics(cfg); err != nil {
		return err
	}

	if !cfg.Hardware.Sim {
		if err := choosePorts(&cfg.Hardware); err != nil {
			return err
		}
		if err := cfg.SaveTo(opts.Config); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Calibrating the mechanism ━━━"))
		fmt.Println()
		if err := calibrateMechanism(&cfg.Hardware.Mechanism); err != nil {
			return err
		}
	}

	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Run a routine with: " + headerStyle.Render("ringbot auton"))
	return nil
}

func chooseBasics(cfg *control.Config) error {
	var options []huh.Option[string]
	for _, name := range routine.Names() {
		options = append(options, huh.NewOption(name, name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Use simulated hardware?").
				Description("The simulator needs no ports and feeds alternating red and blue rings").
				Affirmative("Simulate").
				Negative("Real robot").
				Value(&cfg.Hardware.Sim),
			huh.NewSelect[string]().
				Title("Autonomous routine").
				Options(options...).
				Value(&cfg.Routine),
		),
	)
	return runForm(form)
}

func choosePorts(hw *robot.Config) error {
	ports, err := listPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		return errors.New("no serial ports found; connect the motion controller and the servo bus")
	}

	options := make([]huh.Option[string], 0, len(ports))
	for _, p := range ports {
		options = append(options, huh.NewOption(p, p))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Motion controller port").
				Options(options...).
				Value(&hw.Chassis.Port),
			huh.NewSelect[string]().
				Title("Servo bus port").
				Description("The feetech bus driving the loader and secondary").
				Options(options...).
				Value(&hw.Mechanism.Port),
		),
		huh.NewGroup(
			huh.NewInput().Title("Intake PWM pin").Placeholder("GPIO12").Value(&hw.Intake.PWMPin),
			huh.NewInput().Title("Intake direction pin").Placeholder("GPIO16").Value(&hw.Intake.DirPin),
			huh.NewInput().Title("Intake encoder pin").Description("Stall recovery reads the intake speed from it").Value(&hw.Intake.EncoderPin),
			huh.NewInput().Title("Color sensor I2C bus").Description("Empty selects the first bus").Value(&hw.Color.Bus),
		),
	)
	if err := runForm(form); err != nil {
		return err
	}
	if hw.Chassis.Port == hw.Mechanism.Port {
		return fmt.Errorf("motion controller and servo bus cannot share %s", hw.Chassis.Port)
	}
	return nil
}

func listPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	var out []string
	for _, p := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(p, "Bluetooth") {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func calibrateMechanism(mech *robot.MechanismConfig) error {
	bus, servos, err := scanServos(mech.Port)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("Found %d servo(s) on %s\n\n", len(servos), mech.Port)

	ids, err := assignServos(servos)
	if err != nil {
		return err
	}

	ctx := context.Background()
	cal := make(robot.Calibration)
	for _, name := range robot.AllActuators() {
		found := servos[ids[name]]
		servo := feetech.NewServo(bus, found.ID, found.Model)
		if err := servo.Disable(ctx); err != nil {
			return fmt.Errorf("disable servo %d: %w", found.ID, err)
		}

		retracted, err := capturePosition(servo, found.ID, fmt.Sprintf("Move the %s to its RETRACTED position", name))
		if err != nil {
			return err
		}
		extended, err := capturePosition(servo, found.ID, fmt.Sprintf("Move the %s to its EXTENDED position", name))
		if err != nil {
			return err
		}

		sc := robot.ServoCalibration{ID: found.ID, Retracted: retracted, Extended: extended}
		if sc.Travel() < 50 {
			fmt.Println(warnStyle.Render(fmt.Sprintf("  %s travel is only %d steps", name, sc.Travel())))
		}
		cal[name] = sc
		fmt.Printf("  %s: servo %d, retracted %d, extended %d\n\n", name, sc.ID, sc.Retracted, sc.Extended)
	}

	mech.Calibration = cal
	return nil
}

func scanServos(port string) (*feetech.Bus, []feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open servo bus: %w", err)
	}

	servos, err := bus.Scan(ctx, 1, 6)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("scan servo bus: %w", err)
	}
	if len(servos) < len(robot.AllActuators()) {
		bus.Close()
		return nil, nil, fmt.Errorf("found %d servo(s) on %s, need %d", len(servos), port, len(robot.AllActuators()))
	}
	return bus, servos, nil
}

// assignServos asks which servo drives each actuator and returns indexes into servos.
func assignServos(servos []feetech.FoundServo) (map[robot.ActuatorName]int, error) {
	options := make([]huh.Option[int], 0, len(servos))
	for i, s := range servos {
		options = append(options, huh.NewOption(fmt.Sprintf("Servo %d (model %v)", s.ID, s.Model), i))
	}

	names := robot.AllActuators()
	picks := make([]int, len(names))
	fields := make([]huh.Field, len(names))
	for i, name := range names {
		picks[i] = i % len(servos)
		fields[i] = huh.NewSelect[int]().
			Title(fmt.Sprintf("Which servo drives the %s?", name)).
			Options(options...).
			Value(&picks[i])
	}
	if err := runForm(huh.NewForm(huh.NewGroup(fields...))); err != nil {
		return nil, err
	}

	ids := make(map[robot.ActuatorName]int, len(names))
	used := make(map[int]robot.ActuatorName)
	for i, name := range names {
		if other, ok := used[picks[i]]; ok {
			return nil, fmt.Errorf("servo %d cannot drive both the %s and the %s", servos[picks[i]].ID, other, name)
		}
		used[picks[i]] = name
		ids[name] = picks[i]
	}
	return ids, nil
}

func runForm(form *huh.Form) error {
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println()
			os.Exit(0)
		}
		return err
	}
	return nil
}

// capturePosition shows the live servo position until the user presses Enter.
func capturePosition(servo *feetech.Servo, id int, prompt string) (int, error) {
	m := captureModel{servo: servo, prompt: prompt, pos: -1}
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return 0, fmt.Errorf("calibration: %w", err)
	}
	cm := final.(captureModel)
	if cm.aborted {
		fmt.Println()
		os.Exit(0)
	}
	if cm.pos < 0 {
		return 0, fmt.Errorf("calibration: servo %d never reported a position: %v", id, cm.err)
	}
	return cm.pos, nil
}

type captureModel struct {
	servo   *feetech.Servo
	prompt  string
	pos     int
	err     error
	aborted bool
	done    bool
}

type tickMsg time.Time

func captureTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m captureModel) Init() tea.Cmd {
	return captureTick()
}

func (m captureModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if m.pos >= 0 {
				m.done = true
				return m, tea.Quit
			}
		case "q", "ctrl+c":
			m.aborted = true
			return m, tea.Quit
		}

	case tickMsg:
		pos, err := m.servo.Position(context.Background())
		if err != nil {
			m.err = err
		} else {
			m.pos, m.err = pos, nil
		}
		return m, captureTick()
	}
	return m, nil
}

func (m captureModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(m.prompt + "\n\n")
	if m.pos < 0 {
		sb.WriteString(dimStyle.Render("  reading..."))
	} else {
		sb.WriteString(fmt.Sprintf("  position %s", tableNameStyle.Render(fmt.Sprintf("%4d", m.pos))))
	}
	if m.err != nil {
		sb.WriteString("  " + warnStyle.Render(m.err.Error()))
	}
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter to record, q to abort"))
	return sb.String()
}
