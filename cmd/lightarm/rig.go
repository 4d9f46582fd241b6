package main

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/theaterbots/lightarm/pkg/actuator"
	"github.com/theaterbots/lightarm/pkg/aim"
	"github.com/theaterbots/lightarm/pkg/pose"
	"github.com/theaterbots/lightarm/pkg/robot"
)

// rig bundles everything needed to aim the configured arms.
type rig struct {
	cfg        *robot.Config
	arms       []*robot.Arm
	store      *pose.Store
	actuator   robot.Actuator
	dispatcher *aim.Dispatcher
}

// openRig validates cfg, pins the configured arm poses and opens the actuator.
// poses wraps the store when a different provider should feed the dispatcher.
func openRig(cfg *robot.Config, poses func(*pose.Store) pose.Provider, logger *zap.Logger) (*rig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	arms, err := robot.NewArms(cfg.Arms)
	if err != nil {
		return nil, err
	}
	frame, err := aim.FrameByName(cfg.Frame)
	if err != nil {
		return nil, err
	}

	store := pose.NewStore(nil, time.Duration(cfg.PoseMaxAge)*time.Millisecond)
	pinArms(store, arms, cfg.Arms)

	var provider pose.Provider = store
	if poses != nil {
		provider = poses(store)
	}

	act, err := actuator.Open(cfg.Bus, channelsOf(arms), logger)
	if err != nil {
		return nil, err
	}

	d, err := aim.NewDispatcher(aim.Config{
		Arms:        arms,
		Target:      cfg.Target,
		Poses:       provider,
		Actuator:    act,
		Calibration: cfg.Calibration,
		Frame:       frame,
		Logger:      logger,
	})
	if err != nil {
		return nil, multierr.Append(err, act.Close())
	}

	return &rig{
		cfg:        cfg,
		arms:       arms,
		store:      store,
		actuator:   act,
		dispatcher: d,
	}, nil
}

// pinArms stores the configured base pose of every arm. Arms are fixed to the
// rig, so their poses never go stale.
func pinArms(store *pose.Store, arms []*robot.Arm, cfgs []robot.ArmConfig) {
	for i, arm := range arms {
		c := cfgs[i]
		p := pose.At(c.Position[0], c.Position[1], c.Position[2])
		p.Orientation = pose.FromHPR(c.HPR[0], c.HPR[1], c.HPR[2])
		store.Pin(arm.Entity, p)
	}
}

// channelsOf lists every channel of the arms in arm order.
func channelsOf(arms []*robot.Arm) []int {
	chs := make([]int, 0, 2*len(arms))
	for _, arm := range arms {
		chs = append(chs, arm.Channels()...)
	}
	return chs
}

// centroid returns the mean base position of the configured arms.
func centroid(cfgs []robot.ArmConfig) r3.Vector {
	var sum r3.Vector
	for _, c := range cfgs {
		sum = sum.Add(r3.Vector{X: c.Position[0], Y: c.Position[1], Z: c.Position[2]})
	}
	if len(cfgs) == 0 {
		return sum
	}
	return sum.Mul(1 / float64(len(cfgs)))
}
