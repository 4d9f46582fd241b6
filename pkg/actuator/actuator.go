// Package actuator implements robot.Actuator for the servo buses lightarm can
// drive: feetech serial bus servos, Pololu Maestro controllers, Modbus RTU drives
// and a logging dry run.
package actuator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/theaterbots/lightarm/pkg/robot"
)

// Driver names accepted in BusConfig.Driver.
const (
	DriverFeetech = "feetech"
	DriverMaestro = "maestro"
	DriverModbus  = "modbus"
	DriverDryRun  = "dryrun"
)

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown actuator driver")
	// ErrNoPort is returned when a hardware driver has no serial port configured.
	ErrNoPort = errors.New("no serial port configured")
)

// Drivers lists the supported driver names.
func Drivers() []string {
	return []string{DriverFeetech, DriverMaestro, DriverModbus, DriverDryRun}
}

// Open connects the backend selected by cfg. channels lists every channel the
// arms will command; bus backends that address servos by id use it to build
// their servo group.
func Open(cfg robot.BusConfig, channels []int, logger *zap.Logger) (robot.Actuator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("driver", cfg.Driver))

	if cfg.Driver != DriverDryRun && cfg.Port == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Driver, ErrNoPort)
	}

	switch cfg.Driver {
	case DriverFeetech:
		return OpenFeetech(cfg, channels, logger)
	case DriverMaestro:
		return OpenMaestro(cfg, logger)
	case DriverModbus:
		return OpenModbus(cfg, logger)
	case DriverDryRun:
		return NewDryRun(logger), nil
	}
	return nil, fmt.Errorf("%w %q (want one of %v)", ErrUnknownDriver, cfg.Driver, Drivers())
}

// sortedChannels returns the channels of a batch in ascending order so every
// backend writes deterministically.
func sortedChannels(cmd robot.Command) []int {
	chs := lo.Keys(cmd)
	slices.Sort(chs)
	return chs
}
