package actuator

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/theaterbots/lightarm/pkg/robot"
)

// Position limits of STS series servos.
const (
	FeetechMinPosition = 0
	FeetechMaxPosition = 4095
)

// Feetech drives serial bus servos whose ids equal the arm channels.
type Feetech struct {
	bus    *feetech.Bus
	group  *feetech.ServoGroup
	logger *zap.Logger
}

// OpenFeetech opens the bus and enables torque on the given servo ids.
func OpenFeetech(cfg robot.BusConfig, ids []int, logger *zap.Logger) (*Feetech, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = robot.DefaultBaudRate
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	f := &Feetech{
		bus:    bus,
		group:  feetech.NewServoGroupByIDs(bus, ids...),
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable servos: %w", err)
	}
	logger.Info("feetech bus open", zap.String("port", cfg.Port), zap.Ints("ids", ids))
	return f, nil
}

// SetChannels writes the whole batch in one sync write.
func (f *Feetech) SetChannels(ctx context.Context, cmd robot.Command) error {
	positions := make(feetech.PositionMap, len(cmd))
	for ch, pos := range cmd {
		clamped := lo.Clamp(pos, FeetechMinPosition, FeetechMaxPosition)
		if clamped != pos {
			f.logger.Debug("position out of servo range", zap.Int("channel", ch), zap.Int("position", pos))
		}
		positions[ch] = clamped
	}

	if err := f.group.SetPositions(ctx, positions); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// Release disables torque so the arms can be moved by hand.
func (f *Feetech) Release(ctx context.Context) error {
	return f.group.DisableAll(ctx)
}

// Close closes the bus connection.
func (f *Feetech) Close() error {
	return f.bus.Close()
}
