// Package lightarm aims a rig of two-joint servo arms at a moving target.
//
// Every tick the arms' base positions and the target position are read from a
// pose source, each arm's bearing to the target is solved and mapped to base and
// forearm angles, and all arms' servo positions are sent to the actuator as one
// batch.
//
// # Installation
//
//	go install github.com/theaterbots/lightarm/cmd/lightarm@latest
//
// # Usage
//
// First, run setup to pick the servo bus and write lightarm.json:
//
//	lightarm setup --scan
//
// Then start aiming. Poses arrive over the websocket at /api/ws:
//
//	lightarm aim
//
// Without a scene, a simulated target orbits the rig:
//
//	lightarm aim --demo
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/lightarm: CLI with setup, aim and center commands
//   - pkg/robot: Arms, joints, calibration and configuration
//   - pkg/aim: Bearing solver, joint mapping, encoding and the per-tick dispatcher
//   - pkg/pose: Pose sources (store, static, orbit)
//   - pkg/actuator: Feetech, Maestro, Modbus and dry-run backends
//   - pkg/tracker: Fixed-rate control loop
//   - pkg/web: Pose feed and diagnostics API
//   - pkg/telemetry: InfluxDB recorder
package lightarm
