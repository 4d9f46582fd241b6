package aim

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"github.com/theaterbots/lightarm/pkg/pose"
	"github.com/theaterbots/lightarm/pkg/robot"
)

// ErrSubmission is returned when the actuator rejects a tick's batch.
var ErrSubmission = errors.New("actuator submission failed")

// FrameByName returns the frame for a configuration name.
func FrameByName(name string) (Frame, error) {
	switch name {
	case "", robot.FrameDefault:
		return DefaultFrame, nil
	case robot.FrameScene:
		return SceneFrame, nil
	}
	return Frame{}, fmt.Errorf("unknown frame %q", name)
}

// Plan runs the solver and the joint mapper for one arm position.
func Plan(arm, target r3.Vector, frame Frame, threshold float64) (Bearing, robot.Joints, error) {
	b, err := Solve(arm, target, frame, threshold)
	if err != nil {
		return Bearing{}, robot.Joints{}, err
	}
	return b, MapToJoints(b), nil
}

// Config holds the collaborators of a Dispatcher.
type Config struct {
	Arms        []*robot.Arm
	Target      string
	Poses       pose.Provider
	Actuator    robot.Actuator
	Calibration robot.Calibration
	Frame       Frame
	Logger      *zap.Logger
}

// Result is the outcome of one tick.
type Result struct {
	Command robot.Command    // batch built this tick
	Skipped map[string]error // arms left out of the batch, by id
}

// Dispatcher runs one aiming pass over every arm per tick and submits a single
// batch. It does no timing of its own; callers drive Tick.
type Dispatcher struct {
	arms     []*robot.Arm
	target   string
	poses    pose.Provider
	actuator robot.Actuator
	cal      robot.Calibration
	frame    Frame
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Poses == nil {
		return nil, fmt.Errorf("no pose provider")
	}
	if cfg.Actuator == nil {
		return nil, fmt.Errorf("no actuator")
	}
	if cfg.Target == "" {
		return nil, fmt.Errorf("no target entity")
	}
	if err := cfg.Calibration.Validate(); err != nil {
		return nil, err
	}
	if cfg.Frame == (Frame{}) {
		cfg.Frame = DefaultFrame
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{
		arms:     cfg.Arms,
		target:   cfg.Target,
		poses:    cfg.Poses,
		actuator: cfg.Actuator,
		cal:      cfg.Calibration,
		frame:    cfg.Frame,
		logger:   cfg.Logger,
	}, nil
}

// Arms returns the arms driven by the dispatcher.
func (d *Dispatcher) Arms() []*robot.Arm {
	return d.arms
}

// Tick aims every arm once and submits the resulting batch. Arms whose poses
// are unavailable or whose geometry is degenerate are left out of the batch.
// An empty batch is not submitted.
func (d *Dispatcher) Tick(ctx context.Context) (Result, error) {
	res := Result{Command: make(robot.Command, 2*len(d.arms))}

	for _, arm := range d.arms {
		cmd, err := d.aim(arm)
		if err == nil {
			err = res.Command.Merge(cmd)
		}
		if err != nil {
			if res.Skipped == nil {
				res.Skipped = make(map[string]error)
			}
			res.Skipped[arm.ID] = err
			d.logger.Warn("skipping arm this tick", zap.String("arm", arm.ID), zap.Error(err))
		}
	}

	if len(res.Command) == 0 {
		return res, nil
	}
	if err := d.actuator.SetChannels(ctx, res.Command); err != nil {
		return res, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	return res, nil
}

func (d *Dispatcher) aim(arm *robot.Arm) (robot.Command, error) {
	armPos, err := d.poses.Position(arm.Entity)
	if err != nil {
		return nil, err
	}
	targetPos, err := d.poses.Position(d.target)
	if err != nil {
		return nil, err
	}

	b, joints, err := Plan(armPos, targetPos, d.frame, d.cal.SingularityThreshold)
	if err != nil {
		return nil, err
	}
	arm.SetJoints(joints)

	if b.Singular {
		d.logger.Debug("bearing near declination axis, using fallback azimuth", zap.String("arm", arm.ID))
	}
	d.logger.Debug("bearing",
		zap.String("arm", arm.ID),
		zap.Float64("declination", Degrees(b.Declination)),
		zap.Float64("azimuth", Degrees(b.Azimuth)),
		zap.Float64("lateral", Degrees(b.Lateral)),
		zap.Bool("snapped", b.Snapped),
	)
	return Encode(arm, joints, d.cal), nil
}

// Center drives every arm to 0°/0° in one batch.
func (d *Dispatcher) Center(ctx context.Context) (robot.Command, error) {
	batch := make(robot.Command, 2*len(d.arms))
	for _, arm := range d.arms {
		arm.SetJoints(robot.Joints{})
		if err := batch.Merge(Encode(arm, robot.Joints{}, d.cal)); err != nil {
			return nil, err
		}
	}
	if len(batch) == 0 {
		return batch, nil
	}
	if err := d.actuator.SetChannels(ctx, batch); err != nil {
		return batch, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	return batch, nil
}
