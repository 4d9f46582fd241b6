// Package robot provides the arm model, calibration and configuration shared by
// the aiming loop and the servo backends.
package robot

import "fmt"

// JointRole identifies one of the two actuated joints of an arm.
type JointRole string

// Joint roles. The base rotates the arm, the forearm tilts it.
const (
	Base    JointRole = "base"
	Forearm JointRole = "forearm"
)

// AllJoints returns the joint roles in channel order (base first, forearm on base+1).
func AllJoints() []JointRole {
	return []JointRole{
		Base,
		Forearm,
	}
}

// Joints holds joint-local angles in degrees.
type Joints struct {
	Forearm float64 `json:"forearm"`
	Base    float64 `json:"base"`
}

// Angle returns the angle for a joint role.
func (j Joints) Angle(role JointRole) float64 {
	if role == Forearm {
		return j.Forearm
	}
	return j.Base
}

func (j Joints) String() string {
	return fmt.Sprintf("forearm=%.1f° base=%.1f°", j.Forearm, j.Base)
}

// Command maps actuator channel to position. Channels are unique within a batch.
type Command map[int]int

// Merge copies every entry of other into c. It fails without modifying c when a
// channel is already present.
func (c Command) Merge(other Command) error {
	for ch := range other {
		if _, dup := c[ch]; dup {
			return fmt.Errorf("%w: channel %d already in batch", ErrChannelConflict, ch)
		}
	}
	for ch, pos := range other {
		c[ch] = pos
	}
	return nil
}
