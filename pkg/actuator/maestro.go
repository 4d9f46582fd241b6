package actuator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tarm/serial"
	"go.uber.org/zap"

	"github.com/theaterbots/lightarm/pkg/robot"
)

// Maestro command bytes.
const (
	maestroSetTarget = 0x84
	maestroPololu    = 0xaa
)

// MaestroMaxTarget is the largest target a 14-bit Maestro frame can carry.
const MaestroMaxTarget = 0x3fff

// DefaultMaestroBaud is used when the bus config names no baud rate.
const DefaultMaestroBaud = 115200

// Maestro drives a Pololu Maestro servo controller over its serial command port.
// Device 0 selects the compact protocol; any other device number uses the Pololu
// protocol so several controllers can share a line.
type Maestro struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	device uint8
	logger *zap.Logger
	driven map[int]bool
}

// OpenMaestro opens the serial port named in cfg.
func OpenMaestro(cfg robot.BusConfig, logger *zap.Logger) (*Maestro, error) {
	baud := cfg.BaudRate
	if baud == 0 || baud == robot.DefaultBaudRate {
		baud = DefaultMaestroBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	logger.Info("maestro port open", zap.String("port", cfg.Port), zap.Int("baud", baud))
	return NewMaestro(port, cfg.Device, logger), nil
}

// NewMaestro wraps an already open port.
func NewMaestro(port io.ReadWriteCloser, device uint8, logger *zap.Logger) *Maestro {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Maestro{port: port, device: device, logger: logger, driven: make(map[int]bool)}
}

func lo7(x uint16) byte { return byte(x & 0x7f) }
func hi7(x uint16) byte { return byte((x >> 7) & 0x7f) }

func (m *Maestro) frame(channel int, target uint16) []byte {
	if m.device == 0 {
		return []byte{maestroSetTarget, byte(channel), lo7(target), hi7(target)}
	}
	return []byte{maestroPololu, m.device, maestroSetTarget & 0x7f, byte(channel), lo7(target), hi7(target)}
}

// SetChannels writes one set-target frame per channel in a single write.
func (m *Maestro) SetChannels(ctx context.Context, cmd robot.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, 0, 6*len(cmd))
	for _, ch := range sortedChannels(cmd) {
		if ch > 0x7f {
			return fmt.Errorf("maestro channel %d out of range", ch)
		}
		target := uint16(lo.Clamp(cmd[ch], 0, MaestroMaxTarget))
		buf = append(buf, m.frame(ch, target)...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.port.Write(buf); err != nil {
		return fmt.Errorf("write targets: %w", err)
	}
	for ch := range cmd {
		m.driven[ch] = true
	}
	return nil
}

// Release sends target 0 to every channel driven so far, which stops their pulses.
func (m *Maestro) Release(ctx context.Context) error {
	m.mu.Lock()
	off := make(robot.Command, len(m.driven))
	for ch := range m.driven {
		off[ch] = 0
	}
	m.mu.Unlock()

	if len(off) == 0 {
		return nil
	}
	m.logger.Debug("releasing channels", zap.Int("count", len(off)))
	return m.SetChannels(ctx, off)
}

// Close closes the serial port.
func (m *Maestro) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port.Close()
}
