package actuator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/theaterbots/lightarm/pkg/robot"
)

// DefaultModbusBaud is used when the bus config names no baud rate.
const DefaultModbusBaud = 9600

// registerWriter is the part of modbus.Client the backend uses.
type registerWriter interface {
	WriteSingleRegister(address, value uint16) (results []byte, err error)
}

// Modbus drives servo drives that take their target position in a holding
// register per channel, as RTU slaves on one serial line.
type Modbus struct {
	mu     sync.Mutex
	client registerWriter
	closer io.Closer
	logger *zap.Logger
}

// OpenModbus connects an RTU client to the port named in cfg. cfg.Device is the
// slave id, 1 when unset.
func OpenModbus(cfg robot.BusConfig, logger *zap.Logger) (*Modbus, error) {
	handler := modbus.NewRTUClientHandler(cfg.Port)
	handler.BaudRate = cfg.BaudRate
	if handler.BaudRate == 0 || handler.BaudRate == robot.DefaultBaudRate {
		handler.BaudRate = DefaultModbusBaud
	}
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.Timeout = 1 * time.Second
	handler.SlaveId = cfg.Device
	if handler.SlaveId == 0 {
		handler.SlaveId = 1
	}
	handler.Logger = zap.NewStdLog(logger.Named("modbus"))
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("opening %q: %w", cfg.Port, err)
	}
	logger.Info("modbus port open", zap.String("port", cfg.Port), zap.Uint8("slave", handler.SlaveId))
	return NewModbus(modbus.NewClient(handler), handler, logger), nil
}

// NewModbus wraps a connected client. closer may be nil.
func NewModbus(client registerWriter, closer io.Closer, logger *zap.Logger) *Modbus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Modbus{client: client, closer: closer, logger: logger}
}

// SetChannels writes each channel's register. Every channel is attempted; the
// returned error combines all failures.
func (m *Modbus) SetChannels(ctx context.Context, cmd robot.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs error
	for _, ch := range sortedChannels(cmd) {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if ch < 0 || ch > 0xffff {
			errs = multierr.Append(errs, fmt.Errorf("register %d out of range", ch))
			continue
		}
		value := uint16(lo.Clamp(cmd[ch], 0, 0xffff))
		if _, err := m.client.WriteSingleRegister(uint16(ch), value); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("register %d: %w", ch, err))
		}
	}
	return errs
}

// Close closes the serial connection.
func (m *Modbus) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}
