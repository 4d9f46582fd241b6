package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/golang/geo/r3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theaterbots/lightarm/internal/log"
	"github.com/theaterbots/lightarm/pkg/actuator"
	"github.com/theaterbots/lightarm/pkg/pose"
	"github.com/theaterbots/lightarm/pkg/robot"
	"github.com/theaterbots/lightarm/pkg/telemetry"
	"github.com/theaterbots/lightarm/pkg/tracker"
	"github.com/theaterbots/lightarm/pkg/web"
)

type AimCommand struct {
	Hz      int    `long:"hz" description:"Control loop frequency (overrides config)"`
	Driver  string `long:"driver" choice:"feetech" choice:"maestro" choice:"modbus" choice:"dryrun" description:"Actuator driver (overrides config)"`
	Port    string `long:"port" description:"Serial port (overrides config)"`
	Listen  string `long:"listen" description:"HTTP address for the pose feed and diagnostics (overrides config)"`
	Demo    bool   `long:"demo" description:"Orbit a simulated target around the rig instead of waiting for a pose feed"`
	NoTUI   bool   `long:"no-tui" description:"Log to stderr instead of showing the chart"`
	LogFile string `long:"log-file" default:"lightarm.log" description:"Log file used while the chart is shown"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	tableHeight  = 4 // joints table borders + header
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Demo target orbit.
const (
	demoRadius = 2.0
	demoPeriod = 12 * time.Second
	demoSpread = 1.5
)

// Arm colors, cycled when there are more arms than colors
var armColors = []string{"196", "208", "226", "46", "51", "201"}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func armColor(i int) string {
	return armColors[i%len(armColors)]
}

func dataSet(id string, role robot.JointRole) string {
	return id + "/" + string(role)
}

type aimModel struct {
	ctrl       *tracker.Controller
	chart      *streamlinechart.Model
	width      int      // terminal width
	height     int      // terminal height
	logs       []string // last N log messages
	quitting   bool
	lastJoints map[string]robot.Joints // track previous joints to detect movement
	state      tracker.State
}

func (m *aimModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks if any joint angle has changed from the last state
func (m *aimModel) hasMovement(joints map[string]robot.Joints) bool {
	if m.lastJoints == nil {
		return true // first reading, consider it movement
	}
	for id, j := range joints {
		if last, ok := m.lastJoints[id]; !ok || j != last {
			return true
		}
	}
	return false
}

// Messages from the controller
type stateMsg tracker.State
type logMsg string

func waitForState(ctrl *tracker.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *tracker.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *aimModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize - tableHeight - len(m.ctrl.Arms())
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *aimModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialAimModel(ctrl *tracker.Controller) aimModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-180, 180),
	)

	// Forearm traces are drawn thin, base traces with arcs
	for i, arm := range ctrl.Arms() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(armColor(i)))
		chart.SetDataSetStyles(dataSet(arm.ID, robot.Forearm), runes.ThinLineStyle, style)
		chart.SetDataSetStyles(dataSet(arm.ID, robot.Base), runes.ArcLineStyle, style)
	}

	return aimModel{
		ctrl:  ctrl,
		chart: &chart,
	}
}

func (m aimModel) Init() tea.Cmd {
	// Start listening for state and log updates
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m aimModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		state := tracker.State(msg)
		m.state = state
		// Only update chart if there's movement (freeze when idle)
		if state.Joints != nil && m.hasMovement(state.Joints) {
			for id, j := range state.Joints {
				for _, role := range robot.AllJoints() {
					m.chart.PushDataSet(dataSet(id, role), j.Angle(role))
				}
			}
			m.chart.DrawAll()
			m.lastJoints = state.Joints
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m aimModel) View() string {
	if m.quitting {
		return "Tracking stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("lightarm"))
	sb.WriteString(fmt.Sprintf(" - %d arm(s) at %d Hz", len(m.ctrl.Arms()), m.ctrl.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend(m.ctrl.Arms()))
	sb.WriteString("\n")

	// Joint angles
	sb.WriteString(renderJoints(m.ctrl.Arms(), m.state))
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend(arms []*robot.Arm) string {
	var items []string
	for i, arm := range arms {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(armColor(i))).Bold(true)
		item := colorStyle.Render("━━") + " " + arm.ID
		items = append(items, item)
	}
	return strings.Join(items, "  ") + statusStyle.Render("   (thin: forearm, arc: base)")
}

func renderJoints(arms []*robot.Arm, state tracker.State) string {
	rows := make([][]string, 0, len(arms))
	for _, arm := range arms {
		j := arm.Joints()
		status := "ok"
		if reason, ok := state.Skipped[arm.ID]; ok {
			status = reason
		}
		rows = append(rows, []string{
			arm.ID,
			fmt.Sprintf("%d/%d", arm.BaseChannel, arm.ForearmChannel()),
			fmt.Sprintf("%.1f°", j.Forearm),
			fmt.Sprintf("%.1f°", j.Base),
			status,
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Headers("Arm", "Channels", "Forearm", "Base", "Status").
		Rows(rows...).
		Render()
}

// spreadArms lays arms without configured positions out on a line along X, so
// the demo shows distinct bearings.
func spreadArms(cfgs []robot.ArmConfig) {
	for _, c := range cfgs {
		if c.Position != [3]float64{} {
			return
		}
	}
	offset := float64(len(cfgs)-1) * demoSpread / 2
	for i := range cfgs {
		cfgs[i].Position[0] = float64(i)*demoSpread - offset
	}
}

func (c *AimCommand) apply(cfg *robot.Config) {
	if c.Hz > 0 {
		cfg.Hz = c.Hz
	}
	if c.Driver != "" {
		cfg.Bus.Driver = c.Driver
	}
	if c.Port != "" {
		cfg.Bus.Port = c.Port
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	if c.Demo {
		spreadArms(cfg.Arms)
		if cfg.Bus.Port == "" {
			cfg.Bus.Driver = actuator.DriverDryRun
		}
	}
}

func (c *AimCommand) Execute(args []string) error {
	logPaths := []string{c.LogFile}
	if c.NoTUI {
		logPaths = nil
	}
	if err := log.Init(opts.LogLevel, logPaths...); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Sync()
	logger := log.L()

	cfg, err := loadConfig(c.Demo)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	c.apply(cfg)

	var demo func(*pose.Store) pose.Provider
	if c.Demo {
		// Below the rig, like a stage under overhead lights, so the bases keep turning.
		center := centroid(cfg.Arms).Add(r3.Vector{Y: 3, Z: -1})
		demo = func(store *pose.Store) pose.Provider {
			return pose.NewOrbit(clock.New(), cfg.Target, center, demoRadius, demoPeriod, store)
		}
	}

	r, err := openRig(cfg, demo, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open rig: %v\n", err)
		os.Exit(1)
	}

	var observers []tracker.Observer
	var recorder *telemetry.Recorder
	if cfg.Telemetry.Enabled() {
		recorder = telemetry.Open(cfg.Telemetry, logger.Named("telemetry"))
		observers = append(observers, recorder)
	}

	ctrl, err := tracker.NewController(tracker.Config{
		Dispatcher: r.dispatcher,
		Actuator:   r.actuator,
		Hz:         cfg.Hz,
		Logger:     logger.Named("tracker"),
		Observers:  observers,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Warn("close actuator", zap.Error(err))
		}
		if recorder != nil {
			recorder.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Start(gctx)
	})
	if cfg.Listen != "" {
		srv := web.NewServer(r.arms, r.store, ctrl, logger.Named("web"))
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Listen)
		})
	}

	if !c.NoTUI {
		// Run TUI
		p := tea.NewProgram(initialAimModel(ctrl), tea.WithAltScreen(), tea.WithContext(gctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			logger.Error("tui", zap.Error(err))
		}
		cancel()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
