// Package main is the firmware entry point of the navigation board. It loads the
// configuration, opens the hardware and runs the robot until the run finishes or the
// process is interrupted.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"TerraNav/internal/core"
	"TerraNav/internal/util"
)

func main() {
	util.SetupLogger()

	app := cli.NewApp()
	app.Name = "navigator"
	app.Usage = "drive the robot around the track"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "configs/config.yml",
			Usage: "path to configuration file",
		},
	}
	app.Action = func(c *cli.Context) error {
		util.Info("[main] using config %s", c.String("config"))
		sys, err := core.NewSystem(c.String("config"))
		if err != nil {
			return err
		}
		if err := sys.StartAll(); err != nil {
			return err
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case <-stop:
			util.Info("[main] interrupted")
		case err := <-sys.Done():
			if err != nil {
				util.Error("[main] run ended: %v", err)
			}
		}
		sys.StopAll()
		util.Info("[main] stopped cleanly")
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		util.Error("%v", err)
		os.Exit(1)
	}
}
