package aim

import "github.com/theaterbots/lightarm/pkg/robot"

// Encode converts an arm's joint angles into positions for its two channels.
func Encode(arm *robot.Arm, j robot.Joints, cal robot.Calibration) robot.Command {
	cmd := make(robot.Command, 2)
	for _, role := range robot.AllJoints() {
		cmd[arm.Channel(role)] = cal.Role(role).Encode(j.Angle(role))
	}
	return cmd
}
