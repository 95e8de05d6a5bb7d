package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"go.viam.com/rdk/logging"

	"github.com/arctos-robotics/armcore"
)

const (
	headerHeight = 2
	footerHeight = 7
	maxLogs      = 5
	borderSize   = 2

	// keyHoldTimeout releases an axis when the terminal stops repeating
	// the held key. Terminals deliver no key-up events, so a quiet axis
	// is treated as released.
	keyHoldTimeout = 250 * time.Millisecond
)

var jointNames = [armcore.NumJoints]string{
	"base_yaw", "shoulder_pitch", "elbow_pitch", "wrist_pitch", "wrist_roll", "wrist_yaw",
}

var jointColors = [armcore.NumJoints]string{
	"196", // red
	"208", // orange
	"226", // yellow
	"46",  // green
	"51",  // cyan
	"201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	stateStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	estopStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

type model struct {
	core     *armcore.Core
	keyboard *armcore.KeyboardAdapter
	frames   <-chan armcore.Frame
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	quitting bool
	frame    armcore.Frame
	heldKeys map[string]time.Time
}

func (m *model) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

type frameMsg armcore.Frame
type expireMsg time.Time

func waitForFrame(frames <-chan armcore.Frame) tea.Cmd {
	return func() tea.Msg {
		frame, ok := <-frames
		if !ok {
			return tea.Quit()
		}
		return frameMsg(frame)
	}
}

func expireTick() tea.Cmd {
	return tea.Tick(keyHoldTimeout/2, func(t time.Time) tea.Msg {
		return expireMsg(t)
	})
}

func (m *model) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - footerHeight - borderSize - 2
	if height < 10 {
		height = 10
	}
	return width, height
}

func initialModel(core *armcore.Core, keyboard *armcore.KeyboardAdapter) model {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-3.5, 3.5),
	)
	for i, name := range jointNames {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[i]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}
	return model{
		core:     core,
		keyboard: keyboard,
		frames:   core.Telemetry.Subscribe(),
		chart:    &chart,
		heldKeys: make(map[string]time.Time),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForFrame(m.frames), expireTick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case frameMsg:
		m.frame = armcore.Frame(msg)
		for i, name := range jointNames {
			m.chart.PushDataSet(name, m.frame.Q[i])
		}
		m.chart.DrawAll()
		return m, waitForFrame(m.frames)

	case expireMsg:
		now := time.Time(msg)
		for key, pressed := range m.heldKeys {
			if now.Sub(pressed) > keyHoldTimeout {
				delete(m.heldKeys, key)
				m.keyboard.KeyUp(key)
			}
		}
		return m, expireTick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case " ":
		m.keyboard.KeyDown(" ")
		m.addLog("EMERGENCY STOP")
		return m, nil
	case "H":
		if err := m.core.Executor.Submit(armcore.HomeJoints()); err != nil {
			m.addLog(fmt.Sprintf("home: %v", err))
		} else {
			m.addLog("homing all joints")
		}
		return m, nil
	case "0":
		m.core.Executor.ZeroAll()
		m.addLog("moving to zero pose")
		return m, nil
	case "p":
		m.core.Executor.Pause()
		return m, nil
	case "r":
		m.core.Executor.Resume()
		return m, nil
	case "R":
		if err := m.core.Executor.Recover(context.Background()); err != nil {
			m.addLog(fmt.Sprintf("recover: %v", err))
		} else {
			m.addLog("recovered")
		}
		return m, nil
	}
	m.keyboard.KeyDown(key)
	m.heldKeys[key] = time.Now()
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("armcore teleop"))
	style := stateStyle
	if m.frame.State == "ESTOPPED" || m.frame.State == "ERROR" {
		style = estopStyle
	}
	sb.WriteString("  " + style.Render(m.frame.State))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  %d Hz", m.core.Config.LoopHz)))
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend(m.frame))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4)
	logLines := statusStyle.Render("a/d w/s j/l i/k u/o q/e move | z/x gripper | space=ESTOP H=home 0=zero p/r=pause/resume R=recover")
	if len(m.logs) > 0 {
		logLines += "\n" + strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")
	return sb.String()
}

func renderLegend(frame armcore.Frame) string {
	items := make([]string, 0, armcore.NumJoints)
	for i, name := range jointNames {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[i])).Bold(true)
		item := colorStyle.Render("━━") + fmt.Sprintf(" %s %+.2f", name, frame.Q[i])
		if frame.Limits[i][0] || frame.Limits[i][1] {
			item += estopStyle.Render("!")
		}
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

func main() {
	var (
		configPath = flag.String("config", "", "JSON config file")
		driver     = flag.String("driver", "", "driver variant: sim or feetech")
		port       = flag.String("port", "", "serial port for the hardware driver")
		discover   = flag.Bool("discover", false, "scan serial ports for an arm and exit")
	)
	flag.Parse()

	logger := logging.NewLogger("armcore-teleop")

	if *discover {
		ports := armcore.DiscoverPorts(context.Background(), 1000000, logger)
		if len(ports) == 0 {
			fmt.Println("no arms found")
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	var cfg *armcore.Config
	if *configPath != "" {
		loaded, err := armcore.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg = &armcore.Config{}
	}
	if *driver != "" {
		cfg.Driver = *driver
	}
	if *port != "" {
		cfg.Port = *port
	}
	cfg.Logger = logger

	core, err := armcore.New(cfg)
	if err != nil {
		log.Fatalf("build core: %v", err)
	}
	if err := core.Start(context.Background()); err != nil {
		log.Fatalf("start core: %v", err)
	}
	defer func() {
		if err := core.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	keyboard := armcore.NewKeyboardAdapter(core.Intents, core.Executor.EStop, logger)

	p := tea.NewProgram(initialModel(core, keyboard), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("run tui: %v", err)
	}
}
