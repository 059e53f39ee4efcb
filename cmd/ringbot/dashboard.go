package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/ringbot/pkg/control"
	"github.com/gwillem/ringbot/pkg/state"
)

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	statusHeight = 3
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border

	keyTick = 20 * time.Millisecond
)

var series = []struct {
	name  string
	color string
}{
	{"commanded", "208"}, // orange
	{"actual", "51"},     // cyan
}

var chartStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))

type telemetryMsg control.Telemetry
type logMsg string
type keyTickMsg time.Time

// doneMsg ends the session's main task. The dashboard stays up until the user quits.
type doneMsg struct {
	summary string
	err     error
}

func waitForTelemetry(ch <-chan control.Telemetry) tea.Cmd {
	return func() tea.Msg {
		return telemetryMsg(<-ch)
	}
}

func waitForLog(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ch)
	}
}

func keyTicker() tea.Cmd {
	return tea.Tick(keyTick, func(t time.Time) tea.Msg {
		return keyTickMsg(t)
	})
}

// dashboard charts commanded against measured intake velocity and shows the robot state.
type dashboard struct {
	title    string
	subtitle string
	help     string

	telemetry <-chan control.Telemetry
	logCh     <-chan string
	keys      *keyPad // nil outside teleop

	chart    *streamlinechart.Model
	width    int
	height   int
	last     *control.Telemetry
	logs     []string
	done     *doneMsg
	quitting bool
}

func newDashboard(title, subtitle string, s *session) dashboard {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-state.MaxVelocity, state.MaxVelocity),
	)
	for _, ds := range series {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(ds.color))
		chart.SetDataSetStyles(ds.name, runes.ThinLineStyle, style)
	}

	d := dashboard{
		title:     title,
		subtitle:  subtitle,
		help:      "Press 'q' to quit",
		telemetry: s.robot.Telemetry(),
		chart:     &chart,
	}
	if s.sink != nil {
		d.logCh = s.sink.Lines()
	}
	return d
}

func (m *dashboard) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *dashboard) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - statusHeight - footerHeight - borderSize
	if height < 8 {
		height = 8
	}
	return width, height
}

func (m dashboard) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForTelemetry(m.telemetry)}
	if m.logCh != nil {
		cmds = append(cmds, waitForLog(m.logCh))
	}
	if m.keys != nil {
		cmds = append(cmds, keyTicker())
	}
	return tea.Batch(cmds...)
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		if m.keys != nil {
			m.keys.Press(msg.String(), time.Now())
		}

	case keyTickMsg:
		m.keys.Expire(time.Time(msg))
		return m, keyTicker()

	case telemetryMsg:
		t := control.Telemetry(msg)
		m.last = &t
		m.chart.PushDataSet("commanded", float64(t.State.IntakeVelocity))
		m.chart.PushDataSet("actual", t.Actual)
		m.chart.DrawAll()
		return m, waitForTelemetry(m.telemetry)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.logCh)

	case doneMsg:
		m.done = &msg
		return m, nil
	}

	return m, nil
}

func (m dashboard) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(headerStyle.Render(m.title))
	if m.subtitle != "" {
		sb.WriteString(" - " + m.subtitle)
	}
	if m.width > 0 {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n\n")

	sb.WriteString(m.status())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 40))

	var logLines string
	if len(m.logs) == 0 {
		logLines = dimStyle.Render(m.help)
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

// status renders three lines: shared state, watchdogs, then routine progress or the result.
func (m dashboard) status() string {
	if m.last == nil {
		return dimStyle.Render("waiting for telemetry...") + "\n\n\n"
	}
	t := m.last
	s := t.State

	line1 := fmt.Sprintf("phase %d  reject %s  auto %s  loader %s  secondary %s",
		s.Phase, s.RejectMode, onOff(s.AutoMode), extended(s.LoaderExtended), extended(s.SecondaryExtended))
	if t.Pose != nil {
		line1 += fmt.Sprintf("  pose (%.1f, %.1f) %.0f°", t.Pose.X, t.Pose.Y, t.Pose.Theta)
	}

	sorter := fmt.Sprintf("sorter %s, %d ejected", t.Sort, t.Ejects)
	if s.Ejecting {
		sorter = warnStyle.Render(sorter)
	}
	stall := fmt.Sprintf("stall %s, %d unjams", t.Stall, t.Unjams)
	if t.Stalled > 0 {
		stall += fmt.Sprintf(", stalled %s", t.Stalled)
	}
	line2 := sorter + "  " + stall

	var line3 string
	switch {
	case m.done != nil && m.done.err != nil:
		line3 = warnStyle.Render("stopped: " + m.done.err.Error())
	case m.done != nil:
		line3 = successStyle.Render(m.done.summary)
	case t.Step != nil:
		p := t.Step
		line3 = fmt.Sprintf("step %d/%d  %s  %s", p.Index+1, p.Total, p.Step, p.Elapsed.Truncate(time.Millisecond))
		if p.Err != nil {
			line3 += "  " + warnStyle.Render(p.Err.Error())
		}
	default:
		line3 = dimStyle.Render(m.help)
	}

	return line1 + "\n" + line2 + "\n" + line3 + "\n"
}

func renderLegend() string {
	var items []string
	for _, ds := range series {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ds.color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+ds.name)
	}
	return strings.Join(items, "  ")
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func extended(on bool) string {
	if on {
		return "extended"
	}
	return "retracted"
}
