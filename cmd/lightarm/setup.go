package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/samber/lo"
	"go.bug.st/serial"

	"github.com/theaterbots/lightarm/internal/log"
	"github.com/theaterbots/lightarm/pkg/actuator"
	"github.com/theaterbots/lightarm/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Servo ids probed on feetech buses.
const (
	scanFirstID = 1
	scanLastID  = 40
)

const noPort = "none"

type SetupCommand struct {
	Scan bool `long:"scan" description:"Probe serial ports for feetech servos (torque is not changed)"`
}

type busInfo struct {
	port   string
	servos []feetech.FoundServo
}

func (b busInfo) ids() []int {
	return lo.Map(b.servos, func(s feetech.FoundServo, _ int) int { return s.ID })
}

func (c *SetupCommand) Execute(args []string) error {
	if err := log.Init(opts.LogLevel); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Sync()

	fmt.Println(headerStyle.Render("lightarm Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg := robot.DefaultConfig()
	if robot.ConfigExists(opts.Config) {
		existing, err := robot.LoadConfigFrom(opts.Config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", opts.Config, err)
			os.Exit(1)
		}
		if len(existing.Arms) == 0 {
			existing.Arms = robot.DefaultArms()
		}
		cfg = existing
		fmt.Printf("Updating %s\n\n", opts.Config)
	}

	// Step 1: find buses
	buses := findBuses(c.Scan)

	// Step 2: choose bus, driver, frame and target
	port, driver := cfg.Bus.Port, cfg.Bus.Driver
	if port == "" {
		port = noPort
	}
	frame, target := cfg.Frame, cfg.Target
	if frame == "" {
		frame = robot.FrameDefault
	}

	portOptions := []huh.Option[string]{huh.NewOption("No hardware (dry run)", noPort)}
	for _, b := range buses {
		label := b.port
		if len(b.servos) > 0 {
			label = fmt.Sprintf("%s (feetech ids %v)", b.port, b.ids())
		}
		portOptions = append(portOptions, huh.NewOption(label, b.port))
	}

	driverOptions := lo.Map(actuator.Drivers(), func(d string, _ int) huh.Option[string] {
		return huh.NewOption(d, d)
	})

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Servo bus").
				Description("Serial port the arm servos are connected to").
				Options(portOptions...).
				Value(&port),
			huh.NewSelect[string]().
				Title("Driver").
				Options(driverOptions...).
				Value(&driver),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Axis convention").
				Options(
					huh.NewOption("Default (declination along Z)", robot.FrameDefault),
					huh.NewOption("Scene (declination along X)", robot.FrameScene),
				).
				Value(&frame),
			huh.NewInput().
				Title("Target entity").
				Description("Name of the pose the arms follow").
				Value(&target),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	if port == noPort {
		port = ""
		driver = actuator.DriverDryRun
	}
	cfg.Bus.Port = port
	cfg.Bus.Driver = driver
	cfg.Frame = frame
	if target != "" {
		cfg.Target = target
	}

	// Step 3: keep arms whose servos answered
	if driver == actuator.DriverFeetech {
		for _, b := range buses {
			if b.port != port || len(b.servos) == 0 {
				continue
			}
			if arms := matchArms(cfg.Arms, b.ids()); len(arms) > 0 {
				cfg.Arms = arms
			} else {
				fmt.Println(dimStyle.Render("No configured arm has both servos on this bus, keeping the arm list."))
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Arms ━━━"))
	fmt.Println(renderArms(cfg.Arms))

	if err := cfg.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start aiming with: " + headerStyle.Render("lightarm aim"))

	return nil
}

// matchArms keeps the arms whose base and forearm channels are both among ids.
func matchArms(cfgs []robot.ArmConfig, ids []int) []robot.ArmConfig {
	return lo.Filter(cfgs, func(c robot.ArmConfig, _ int) bool {
		return slices.Contains(ids, c.BaseChannel) && slices.Contains(ids, c.BaseChannel+1)
	})
}

func renderArms(cfgs []robot.ArmConfig) string {
	rows := make([][]string, 0, len(cfgs))
	for _, c := range cfgs {
		entity := c.Entity
		if entity == "" {
			entity = c.ID
		}
		rows = append(rows, []string{
			c.ID,
			entity,
			fmt.Sprintf("%d", c.BaseChannel),
			fmt.Sprintf("%d", c.BaseChannel+1),
			fmt.Sprintf("%.2f %.2f %.2f", c.Position[0], c.Position[1], c.Position[2]),
		})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Arm", "Entity", "Base", "Forearm", "Position").
		Rows(rows...).
		Render()
}

// findBuses lists serial ports. With probe set each port is opened as a
// feetech bus and scanned for servos.
func findBuses(probe bool) []busInfo {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var buses []busInfo
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		info := busInfo{port: port}
		if probe {
			info.servos = scanFeetech(port)
			if len(info.servos) > 0 {
				fmt.Printf("  Found %d feetech servo(s) on %s\n", len(info.servos), port)
			}
		}
		buses = append(buses, info)
	}
	return buses
}

func scanFeetech(port string) []feetech.FoundServo {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: robot.DefaultBaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil
	}
	defer bus.Close()

	servos, err := bus.Scan(ctx, scanFirstID, scanLastID)
	if err != nil {
		return nil
	}
	return servos
}
