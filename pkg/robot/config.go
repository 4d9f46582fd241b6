package robot

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Defaults for the control loop and the servo bus.
const (
	DefaultHz           = 30
	DefaultTarget       = "target"
	DefaultDriver       = "feetech"
	DefaultBaudRate     = 1_000_000
	DefaultListenAddr   = "127.0.0.1:8502"
	DefaultPoseMaxAgeMs = 500
)

// Frame names.
const (
	FrameDefault = "default"
	FrameScene   = "scene"
)

// legacyChannels maps scene arm index to base channel for the stock theater rig.
var legacyChannels = map[int]int{0: 9, 1: 11, 2: 29, 3: 31, 4: 15}

// Config holds the rig configuration.
type Config struct {
	Bus         BusConfig       `json:"bus"`
	Arms        []ArmConfig     `json:"arms"`
	Target      string          `json:"target"`
	Frame       string          `json:"frame,omitempty"`
	Calibration Calibration     `json:"calibration"`
	Hz          int             `json:"hz"`
	Listen      string          `json:"listen,omitempty"`
	PoseMaxAge  int             `json:"pose_max_age_ms"` // 0 disables expiry
	Telemetry   TelemetryConfig `json:"telemetry"`
}

// BusConfig selects and configures the actuator backend.
type BusConfig struct {
	Driver   string `json:"driver"` // feetech, maestro, modbus or dryrun
	Port     string `json:"port,omitempty"`
	BaudRate int    `json:"baud_rate,omitempty"`
	Device   uint8  `json:"device,omitempty"` // maestro device number or modbus slave id
}

// ArmConfig holds configuration for a single arm.
type ArmConfig struct {
	ID          string     `json:"id"`
	Entity      string     `json:"entity,omitempty"`
	BaseChannel int        `json:"base_channel"`
	Position    [3]float64 `json:"position"`
	HPR         [3]float64 `json:"hpr,omitempty"`
}

// TelemetryConfig configures the optional InfluxDB sink.
type TelemetryConfig struct {
	URL    string `json:"url,omitempty"`
	Token  string `json:"token,omitempty"`
	Org    string `json:"org,omitempty"`
	Bucket string `json:"bucket,omitempty"`
}

// Enabled reports whether a telemetry sink is configured.
func (t TelemetryConfig) Enabled() bool {
	return t.URL != ""
}

// DefaultArms returns the five-arm theater layout.
func DefaultArms() []ArmConfig {
	indexes := make([]int, 0, len(legacyChannels))
	for i := range legacyChannels {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	arms := make([]ArmConfig, 0, len(indexes))
	for _, i := range indexes {
		arms = append(arms, ArmConfig{
			ID:          fmt.Sprintf("arm.%d", i),
			BaseChannel: legacyChannels[i],
		})
	}
	return arms
}

// LegacyBaseChannel returns the stock base channel for a scene arm name, and
// whether the name is part of the stock layout.
func LegacyBaseChannel(name string) (int, bool) {
	ch, ok := legacyChannels[ArmIndex(name)]
	return ch, ok
}

// DefaultConfig returns a configuration with stock calibration and arm layout.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			Driver:   DefaultDriver,
			BaudRate: DefaultBaudRate,
		},
		Arms:        DefaultArms(),
		Target:      DefaultTarget,
		Frame:       FrameDefault,
		Calibration: DefaultCalibration(),
		Hz:          DefaultHz,
		Listen:      DefaultListenAddr,
		PoseMaxAge:  DefaultPoseMaxAgeMs,
	}
}

// Validate checks the configuration invariants. Channel conflicts are fatal.
func (c *Config) Validate() error {
	if len(c.Arms) == 0 {
		return fmt.Errorf("%w: no arms configured", ErrInvalidArm)
	}
	if _, err := NewArms(c.Arms); err != nil {
		return err
	}
	if c.Target == "" {
		return fmt.Errorf("no target entity configured")
	}
	switch c.Frame {
	case "", FrameDefault, FrameScene:
	default:
		return fmt.Errorf("unknown frame %q", c.Frame)
	}
	if c.Hz < 0 {
		return fmt.Errorf("hz must not be negative")
	}
	return c.Calibration.Validate()
}

// LoadConfigFrom loads configuration from a specific file. Missing fields keep
// their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Arms = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the config file exists
func ConfigExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
