package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/theaterbots/lightarm/internal/log"
	"github.com/theaterbots/lightarm/pkg/robot"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"lightarm.json" description:"Configuration file"`
	LogLevel string `long:"log-level" default:"info" description:"Log level (debug, info, warn, error)"`

	Setup  SetupCommand  `command:"setup" description:"Scan for servo buses and write a configuration"`
	Aim    AimCommand    `command:"aim" alias:"run" description:"Aim all arms at the target"`
	Center CenterCommand `command:"center" description:"Drive every arm to its neutral position"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "lightarm - aims theater light arms at a moving target"

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

// loadConfig reads the configuration named by --config. When allowDefault is
// set a missing file yields the stock configuration.
func loadConfig(allowDefault bool) (*robot.Config, error) {
	if !robot.ConfigExists(opts.Config) {
		if allowDefault {
			log.Warn("no configuration found, using defaults")
			return robot.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("no configuration at %s, run 'lightarm setup' first", opts.Config)
	}
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, err
	}
	if len(cfg.Arms) == 0 {
		cfg.Arms = robot.DefaultArms()
	}
	return cfg, nil
}
