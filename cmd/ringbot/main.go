package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config   string `long:"config" short:"c" default:"ringbot.json" description:"Configuration file"`
	LogLevel string `long:"log-level" description:"debug, info, warn or error (overrides the config)"`

	Auton    AutonCommand    `command:"auton" alias:"auto" description:"Run an autonomous routine with the watchdogs active"`
	Teleop   TeleopCommand   `command:"teleop" description:"Drive the robot from the keyboard"`
	Routines RoutinesCommand `command:"routines" description:"List the built-in routines"`
	Setup    SetupCommand    `command:"setup" description:"Choose ports and calibrate the loader servos"`

	ChassisSim ChassisSimCommand `command:"chassis-sim" description:"Serve a simulated motion controller on a serial port"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "ringbot - reactive control for a ring-scoring competition robot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
