package robot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

var (
	// ErrChannelConflict is returned when two arms claim the same actuator channel.
	ErrChannelConflict = errors.New("channel already claimed")
	// ErrInvalidArm is returned for arm configuration that cannot be used.
	ErrInvalidArm = errors.New("invalid arm")
)

// Actuator accepts one batch of channel positions per call.
type Actuator interface {
	SetChannels(ctx context.Context, cmd Command) error
	Close() error
}

// Releaser is implemented by actuators that can let go of their servos on shutdown.
type Releaser interface {
	Release(ctx context.Context) error
}

// Arm represents one aimed arm: a base rotation servo and a forearm tilt servo on
// two consecutive channels.
type Arm struct {
	ID          string
	Entity      string // pose entity of the arm base
	BaseChannel int

	mu     sync.RWMutex
	joints Joints
}

// NewArm creates an arm from its configuration.
func NewArm(cfg ArmConfig) (*Arm, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidArm)
	}
	if cfg.BaseChannel < 0 {
		return nil, fmt.Errorf("%w: %s has negative base channel %d", ErrInvalidArm, cfg.ID, cfg.BaseChannel)
	}
	entity := cfg.Entity
	if entity == "" {
		entity = cfg.ID
	}
	return &Arm{
		ID:          cfg.ID,
		Entity:      entity,
		BaseChannel: cfg.BaseChannel,
	}, nil
}

// NewArms creates all configured arms, failing when ids repeat or channel pairs overlap.
func NewArms(cfgs []ArmConfig) ([]*Arm, error) {
	arms := make([]*Arm, 0, len(cfgs))
	ids := make(map[string]bool, len(cfgs))
	claimed := make(map[int]string, 2*len(cfgs))

	for _, cfg := range cfgs {
		arm, err := NewArm(cfg)
		if err != nil {
			return nil, err
		}
		if ids[arm.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidArm, arm.ID)
		}
		ids[arm.ID] = true

		for _, ch := range arm.Channels() {
			if owner, ok := claimed[ch]; ok {
				return nil, fmt.Errorf("%w: arm %s channel %d is used by arm %s", ErrChannelConflict, arm.ID, ch, owner)
			}
			claimed[ch] = arm.ID
		}
		arms = append(arms, arm)
	}

	return arms, nil
}

// ForearmChannel returns the channel of the forearm servo.
func (a *Arm) ForearmChannel() int {
	return a.BaseChannel + 1
}

// Channel returns the channel of a joint role.
func (a *Arm) Channel(role JointRole) int {
	if role == Forearm {
		return a.ForearmChannel()
	}
	return a.BaseChannel
}

// Channels returns both channels in role order.
func (a *Arm) Channels() []int {
	return []int{a.BaseChannel, a.ForearmChannel()}
}

// Joints returns the joint angles last commanded for display.
func (a *Arm) Joints() Joints {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.joints
}

// SetJoints records the commanded joint angles.
func (a *Arm) SetJoints(j Joints) {
	a.mu.Lock()
	a.joints = j
	a.mu.Unlock()
}

// ArmIndex extracts n from a scene node name of the form "arm.<n>".
// Names without a numeric suffix map to 0.
func ArmIndex(name string) int {
	_, suffix, ok := strings.Cut(name, ".")
	if !ok {
		return 0
	}
	if i := strings.IndexByte(suffix, '.'); i >= 0 {
		suffix = suffix[:i]
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0
	}
	return n
}
