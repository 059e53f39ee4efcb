// Package ringbot is the reactive control layer of a ring-scoring competition robot.
//
// Two always-on watchdogs share one robot state with an autonomous routine sequencer
// and a teleop loop: a color sorter that ejects rings of the opposing alliance color,
// and a stall guard that drives the intake and pulses it forward when it jams.
//
// # Installation
//
//	go install github.com/gwillem/ringbot/cmd/ringbot@latest
//
// # Usage
//
// Without a configuration file the robot is simulated. Run setup to select ports and
// calibrate the loader servos:
//
//	ringbot setup
//
// Then run a routine or drive from the keyboard:
//
//	ringbot auton --routine red-pos
//	ringbot teleop
//
// # Packages
//
//   - cmd/ringbot: CLI with auton, teleop, routines and setup commands
//   - pkg/state: shared robot state
//   - pkg/watchdog: color sort and stall recovery watchdogs
//   - pkg/routine: TOML routine scripts and the motion sequencer
//   - pkg/teleop: operator control loop
//   - pkg/control: configuration, hardware assembly and loop wiring
//   - pkg/robot, pkg/board, pkg/link, pkg/sim: device interfaces and backends
package ringbot
