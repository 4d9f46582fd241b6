package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/theaterbots/lightarm/internal/log"
	"github.com/theaterbots/lightarm/pkg/pose"
	"github.com/theaterbots/lightarm/pkg/robot"
)

type CenterCommand struct {
	Driver  string `long:"driver" choice:"feetech" choice:"maestro" choice:"modbus" choice:"dryrun" description:"Actuator driver (overrides config)"`
	Port    string `long:"port" description:"Serial port (overrides config)"`
	Release bool   `long:"release" description:"Release the servos after centering"`
}

func (c *CenterCommand) Execute(args []string) error {
	if err := log.Init(opts.LogLevel); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Sync()

	cfg, err := loadConfig(false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if c.Driver != "" {
		cfg.Bus.Driver = c.Driver
	}
	if c.Port != "" {
		cfg.Bus.Port = c.Port
	}

	// No target is needed to center, so the dispatcher never reads poses.
	r, err := openRig(cfg, func(*pose.Store) pose.Provider { return pose.Static{} }, log.L())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open rig: %v\n", err)
		os.Exit(1)
	}
	defer r.actuator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	batch, err := r.dispatcher.Center(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Centered %d arm(s) (%d channels)\n", len(r.arms), len(batch))

	if c.Release {
		// Give the servos time to reach neutral before letting go.
		time.Sleep(500 * time.Millisecond)
		if rel, ok := r.actuator.(robot.Releaser); ok {
			if err := rel.Release(ctx); err != nil {
				return fmt.Errorf("release: %w", err)
			}
			fmt.Println("Servos released")
		}
	}
	return nil
}
