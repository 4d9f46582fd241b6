package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/theaterbots/lightarm/pkg/actuator"
	"github.com/theaterbots/lightarm/pkg/aim"
	"github.com/theaterbots/lightarm/pkg/pose"
	"github.com/theaterbots/lightarm/pkg/robot"
)

type closeCounter struct {
	*actuator.DryRun
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func newTestController(t *testing.T, poses pose.Provider, clk clock.Clock, observers ...Observer) (*Controller, *actuator.DryRun) {
	t.Helper()
	arms, err := robot.NewArms([]robot.ArmConfig{
		{ID: "arm.0", BaseChannel: 9},
		{ID: "arm.1", BaseChannel: 11},
	})
	if err != nil {
		t.Fatal(err)
	}
	dry := actuator.NewDryRun(nil)
	d, err := aim.NewDispatcher(aim.Config{
		Arms:        arms,
		Target:      "target",
		Poses:       poses,
		Actuator:    dry,
		Calibration: robot.DefaultCalibration(),
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewController(Config{
		Dispatcher: d,
		Actuator:   dry,
		Hz:         10,
		Clock:      clk,
		Observers:  observers,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c, dry
}

func scene() pose.Static {
	return pose.Static{
		"arm.0":  {},
		"arm.1":  {X: 2},
		"target": {Y: 1, Z: 1},
	}
}

func TestNewController_Defaults(t *testing.T) {
	if _, err := NewController(Config{}); err == nil {
		t.Error("expected error without dispatcher")
	}
	c, _ := newTestController(t, scene(), nil)
	if c.Hz() != 10 {
		t.Errorf("Hz = %d, want 10", c.Hz())
	}
	if len(c.Arms()) != 2 {
		t.Errorf("Arms = %d, want 2", len(c.Arms()))
	}
}

func TestStep(t *testing.T) {
	var observed []State
	c, dry := newTestController(t, scene(), clock.NewMock(), ObserverFunc(func(s State) {
		observed = append(observed, s)
	}))

	s := c.Step(context.Background())
	if s.Error != nil {
		t.Fatalf("Step error: %v", s.Error)
	}
	if diff := cmp.Diff(dry.Last(), s.Command); diff != "" {
		t.Errorf("state command differs from submitted batch (-sent +state):\n%s", diff)
	}
	if got := s.Joints["arm.0"]; got.Forearm > -44.9 || got.Forearm < -45.1 {
		t.Errorf("arm.0 joints = %v, want forearm -45", got)
	}
	if len(observed) != 1 {
		t.Errorf("observer called %d times, want 1", len(observed))
	}

	select {
	case got := <-c.States():
		if !got.Timestamp.Equal(s.Timestamp) {
			t.Errorf("published state timestamp %v, want %v", got.Timestamp, s.Timestamp)
		}
	default:
		t.Error("no state published")
	}
	if !c.Latest().Timestamp.Equal(s.Timestamp) {
		t.Error("Latest does not return the last state")
	}
}

func TestStep_ReportsSkippedArms(t *testing.T) {
	poses := scene()
	delete(poses, "arm.1")
	c, dry := newTestController(t, poses, clock.NewMock())

	s := c.Step(context.Background())
	if s.Error != nil {
		t.Fatalf("Step error: %v", s.Error)
	}
	if _, ok := s.Skipped["arm.1"]; !ok {
		t.Errorf("Skipped = %v, want arm.1", s.Skipped)
	}
	if len(dry.Last()) != 2 {
		t.Errorf("submitted %v, want only arm.0's channels", dry.Last())
	}

	select {
	case line := <-c.Logs():
		if !strings.Contains(line, "Skipping arm.1") {
			t.Errorf("log line = %q", line)
		}
	default:
		t.Error("no log line for skipped arm")
	}

	// Unchanged skips are not logged again.
	c.Step(context.Background())
	select {
	case line := <-c.Logs():
		t.Errorf("unexpected log line %q", line)
	default:
	}
}

func TestStep_KeepsOnlyNewestState(t *testing.T) {
	c, _ := newTestController(t, scene(), clock.NewMock())
	for i := 0; i < 3; i++ {
		c.Step(context.Background())
	}
	<-c.States()
	select {
	case <-c.States():
		t.Error("more than one state buffered")
	default:
	}
}

func waitLog(t *testing.T, c *Controller, substr string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line := <-c.Logs():
			if strings.Contains(line, substr) {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for log %q", substr)
		}
	}
}

func TestStart_TicksAndReleasesOnShutdown(t *testing.T) {
	mock := clock.NewMock()
	c, dry := newTestController(t, scene(), mock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	waitLog(t, c, "Tracking 2 arm(s) at 10 Hz")
	if err := c.Start(ctx); !errors.Is(err, ErrRunning) {
		t.Errorf("second Start = %v, want ErrRunning", err)
	}

	mock.Add(100 * time.Millisecond)
	select {
	case s := <-c.States():
		if len(s.Command) != 4 {
			t.Errorf("tick command = %v, want 4 channels", s.Command)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick after advancing the clock")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if !dry.Released() {
		t.Error("servos not released on shutdown")
	}
	if c.Running() {
		t.Error("still running after shutdown")
	}
}

func TestClose(t *testing.T) {
	counter := &closeCounter{DryRun: actuator.NewDryRun(nil)}
	c, _ := newTestController(t, scene(), nil)
	c.actuator = counter

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if counter.closed != 1 {
		t.Errorf("actuator closed %d times, want 1", counter.closed)
	}
}
