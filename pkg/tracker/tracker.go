// Package tracker runs the aiming loop at a fixed rate and publishes its state.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/theaterbots/lightarm/pkg/aim"
	"github.com/theaterbots/lightarm/pkg/robot"
)

// ErrRunning is returned by Start when the loop is already running.
var ErrRunning = errors.New("tracker already running")

// State is the outcome of one tick.
type State struct {
	Joints    map[string]robot.Joints `json:"joints"`
	Command   robot.Command           `json:"command"`
	Skipped   map[string]string       `json:"skipped,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	Error     error                   `json:"-"`
}

// Observer receives every tick's state, for example to record telemetry.
type Observer interface {
	Observe(State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(State)

func (f ObserverFunc) Observe(s State) { f(s) }

// Controller drives a dispatcher from a ticker.
type Controller struct {
	dispatcher *aim.Dispatcher
	actuator   robot.Actuator
	hz         int
	clock      clock.Clock
	logger     *zap.Logger
	observers  []Observer

	mu      sync.RWMutex
	state   State
	running bool
	stateCh chan State
	logCh   chan string
}

// Config holds configuration for the controller.
type Config struct {
	Dispatcher *aim.Dispatcher
	Actuator   robot.Actuator // closed by Close, released on shutdown
	Hz         int
	Clock      clock.Clock
	Logger     *zap.Logger
	Observers  []Observer
}

// NewController creates a new controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("no dispatcher")
	}
	if cfg.Hz <= 0 {
		cfg.Hz = robot.DefaultHz
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Controller{
		dispatcher: cfg.Dispatcher,
		actuator:   cfg.Actuator,
		hz:         cfg.Hz,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		observers:  cfg.Observers,
		stateCh:    make(chan State, 1),
		logCh:      make(chan string, 10),
	}, nil
}

// Close stops the controller and closes the actuator.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	var err error
	if c.actuator != nil {
		err = multierr.Append(err, c.actuator.Close())
	}
	return err
}

// States returns a channel that receives state updates. Only the newest state
// is kept when the reader falls behind.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives human-readable log lines.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// Arms returns the arms being aimed.
func (c *Controller) Arms() []*robot.Arm {
	return c.dispatcher.Arms()
}

// Latest returns the most recent state.
func (c *Controller) Latest() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Running reports whether the loop is active.
func (c *Controller) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", c.clock.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the control loop until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunning
	}
	c.running = true
	c.mu.Unlock()

	ticker := c.clock.Ticker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	c.logger.Info("tracking started", zap.Int("hz", c.hz), zap.Int("arms", len(c.dispatcher.Arms())))
	c.log("Tracking %d arm(s) at %d Hz", len(c.dispatcher.Arms()), c.hz)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.Step(ctx)
		}
	}
}

// Step runs one tick and publishes its state.
func (c *Controller) Step(ctx context.Context) State {
	res, err := c.dispatcher.Tick(ctx)

	s := State{
		Joints:    make(map[string]robot.Joints, len(c.dispatcher.Arms())),
		Command:   res.Command,
		Timestamp: c.clock.Now(),
		Error:     err,
	}
	for _, arm := range c.dispatcher.Arms() {
		s.Joints[arm.ID] = arm.Joints()
	}
	if len(res.Skipped) > 0 {
		s.Skipped = make(map[string]string, len(res.Skipped))
		for id, skipErr := range res.Skipped {
			s.Skipped[id] = skipErr.Error()
		}
	}

	prev := c.Latest()
	if err != nil {
		c.logger.Error("tick failed", zap.Error(err))
		c.log("Write error: %v", err)
	} else if !maps.Equal(prev.Skipped, s.Skipped) {
		for id, reason := range s.Skipped {
			c.log("Skipping %s: %s", id, reason)
		}
	}

	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	for _, o := range c.observers {
		o.Observe(s)
	}
	c.sendState(s)
	return s
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if r, ok := c.actuator.(robot.Releaser); ok {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := r.Release(ctx); err != nil {
			c.logger.Warn("failed to release servos", zap.Error(err))
			c.log("Warning: failed to release servos: %v", err)
		} else {
			c.log("Servos released")
		}
	}
	c.logger.Info("tracking stopped")
	c.log("Tracking stopped")
}
