package actuator

import (
	"context"
	"maps"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/theaterbots/lightarm/pkg/robot"
)

// DryRun logs batches instead of moving servos and keeps the last one for
// inspection.
type DryRun struct {
	logger *zap.Logger

	mu       sync.Mutex
	last     robot.Command
	batches  int
	released bool
}

// NewDryRun creates a dry-run actuator.
func NewDryRun(logger *zap.Logger) *DryRun {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRun{logger: logger}
}

func (d *DryRun) SetChannels(ctx context.Context, cmd robot.Command) error {
	d.mu.Lock()
	d.last = maps.Clone(cmd)
	d.batches++
	d.released = false
	d.mu.Unlock()

	if ce := d.logger.Check(zap.DebugLevel, "batch"); ce != nil {
		fields := make([]zap.Field, 0, len(cmd))
		for _, ch := range sortedChannels(cmd) {
			fields = append(fields, zap.Int(channelKey(ch), cmd[ch]))
		}
		ce.Write(fields...)
	}
	return nil
}

// Last returns a copy of the most recent batch.
func (d *DryRun) Last() robot.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.last)
}

// Batches returns how many batches were submitted.
func (d *DryRun) Batches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches
}

// Released reports whether Release was called after the last batch.
func (d *DryRun) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

func (d *DryRun) Release(ctx context.Context) error {
	d.mu.Lock()
	d.released = true
	d.mu.Unlock()
	d.logger.Info("servos released")
	return nil
}

func (d *DryRun) Close() error { return nil }

func channelKey(ch int) string {
	return "ch" + strconv.Itoa(ch)
}
