// Robot simulator: runs the full navigation stack against a simulated chassis on the
// competition mat. Use this for local testing without the robot. With --virtual-serial
// the vision board is played over a socat PTY pair, exercising the real serial link.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"TerraNav/internal/core"
	"TerraNav/internal/device"
	"TerraNav/internal/model"
	"TerraNav/internal/sim"
	"TerraNav/internal/util"
)

const (
	physicsStep   = 5 * time.Millisecond
	visionPeriod  = 10 * time.Millisecond
	boardPTY      = "/tmp/ttyTerraNavVisionBoard"
	navigatorPTY  = "/tmp/ttyTerraNavVision"
	socatDeadline = 2 * time.Second
)

func parseMode(s string) (model.CourseMode, error) {
	switch s {
	case "starter":
		return model.StarterCourse, nil
	case "obstacle":
		return model.ObstacleCourse, nil
	case "test":
		return model.TestMode, nil
	default:
		return 0, fmt.Errorf("unknown course mode %q", s)
	}
}

func loadConfig(c *cli.Context) (*model.Config, error) {
	var cfg *model.Config
	if path := c.String("config"); path != "" {
		loaded, err := core.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &model.Config{}
		cfg.ApplyDefaults()
		cfg.Servo.StatusLights = true
	}
	if c.IsSet("http") || c.String("config") == "" {
		cfg.Global.HTTPAddr = c.String("http")
	}
	if c.IsSet("record") {
		cfg.Recorder.Path = c.String("record")
	}
	return cfg, nil
}

func run(c *cli.Context) error {
	mode, err := parseMode(c.String("mode"))
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	track := sim.SquareTrack()
	if c.Bool("clockwise") {
		track = track.Mirror(3000)
	}
	world := sim.NewWorld(track, sim.DefaultParams(), mode)
	hw := core.Hardware{Bus: world, Inputs: world, Ranger: world, Vision: world.VisionSource(visionPeriod)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if c.Bool("virtual-serial") {
		socat := util.NewSocatManager()
		defer socat.Cleanup()
		if err := socat.CreatePair(boardPTY, navigatorPTY, socatDeadline); err != nil {
			return err
		}
		boardDev, err := device.NewSerialDevice(boardPTY, cfg.Vision.Baud)
		if err != nil {
			return err
		}
		defer func() { _ = boardDev.Close() }()
		port, err := boardDev.Port()
		if err != nil {
			return err
		}
		go func() {
			if err := world.RunVisionBoard(ctx, port, visionPeriod); err != nil {
				util.Warn("[sim] vision board: %v", err)
			}
		}()
		baud := cfg.Vision.Baud
		hw.Vision = func(mode model.CourseMode) (<-chan model.VisionRecord, func(), error) {
			link, err := device.OpenVisionLink(navigatorPTY, baud, mode)
			if err != nil {
				return nil, nil, err
			}
			out := make(chan model.VisionRecord, 8)
			return out, link.Start(out), nil
		}
	}

	sys, err := core.NewSystemWith(cfg, hw)
	if err != nil {
		return err
	}
	go world.Run(ctx, physicsStep)
	if err := sys.StartAll(); err != nil {
		return err
	}
	util.Info("[sim] %s course, start button in %s", mode, c.Duration("start-delay"))
	time.AfterFunc(c.Duration("start-delay"), world.PressStart)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
		util.Info("[sim] interrupted")
	case err := <-sys.Done():
		if err != nil {
			util.Warn("[sim] run ended: %v", err)
		}
	}
	sys.StopAll()

	s := world.State()
	util.Info("[sim] robot at (%.0f, %.0f) after %s, %.2f m driven, collided=%t",
		s.Pose.X, s.Pose.Y, s.Elapsed.Round(time.Millisecond), s.Distance/1000, s.Collided)
	return nil
}

func main() {
	util.SetupLogger()

	app := cli.NewApp()
	app.Name = "simulation"
	app.Usage = "run the navigation stack against a simulated robot"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "optional configuration file"},
		cli.StringFlag{Name: "mode", Value: "starter", Usage: "course mode: starter, obstacle or test"},
		cli.BoolFlag{Name: "clockwise", Usage: "drive the mirrored track"},
		cli.StringFlag{Name: "http", Value: ":8080", Usage: "web app listening address, empty disables it"},
		cli.StringFlag{Name: "record", Usage: "bbolt file to record the run into"},
		cli.BoolFlag{Name: "virtual-serial", Usage: "play the vision board over a socat PTY pair"},
		cli.DurationFlag{Name: "start-delay", Value: time.Second, Usage: "time before the start button is pressed"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		util.Error("%v", err)
		os.Exit(1)
	}
}
