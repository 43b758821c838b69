// Package core contains the runtime orchestration of the TerraNav robot. It defines the
// Robot that runs boot, start and decision loop, and the System that builds it from the
// YAML configuration together with telemetry, recording and the web app.
package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"TerraNav/internal/app"
	"TerraNav/internal/device"
	"TerraNav/internal/model"
	"TerraNav/internal/parser"
	"TerraNav/internal/recorder"
	"TerraNav/internal/telemetry"
	"TerraNav/internal/util"
)

const recorderBuffer = 256

// LoadConfig reads the YAML configuration at path, fills defaults and validates it.
func LoadConfig(path string) (*model.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg model.Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// OpenHardware builds the hardware backends named in the configuration.
func OpenHardware(cfg *model.Config) (Hardware, error) {
	var hw Hardware
	var err error

	switch cfg.Servo.Transport {
	case "serial":
		hw.Bus, err = device.NewSerialBus(cfg.Servo.Device, cfg.Servo.Baud)
	default:
		hw.Bus = device.NewI2CBus(cfg.Servo.I2CBus)
	}
	if err != nil {
		return Hardware{}, fmt.Errorf("servo bus: %w", err)
	}

	if cfg.Inputs.Backend != "gpio" || cfg.Ultrasonic.Backend != "gpio" {
		_ = hw.Bus.Close()
		return Hardware{}, errors.New("sim backends are provided by the simulation binary")
	}
	hw.Inputs, err = device.NewGPIOInputs(cfg.Inputs.StartPin, cfg.Inputs.ObstaclePin, cfg.Inputs.TestPin)
	if err != nil {
		_ = hw.Bus.Close()
		return Hardware{}, fmt.Errorf("inputs: %w", err)
	}
	hw.Ranger, err = device.NewUltrasonicArray(cfg.Ultrasonic.TrigPins, cfg.Ultrasonic.EchoPins)
	if err != nil {
		_ = hw.Inputs.Close()
		_ = hw.Bus.Close()
		return Hardware{}, fmt.Errorf("ultrasonic: %w", err)
	}

	if cfg.Vision.Device != "" {
		dev, baud := cfg.Vision.Device, cfg.Vision.Baud
		hw.Vision = func(mode model.CourseMode) (<-chan model.VisionRecord, func(), error) {
			link, err := device.OpenVisionLink(dev, baud, mode)
			if err != nil {
				return nil, nil, err
			}
			out := make(chan model.VisionRecord, 8)
			return out, link.Start(out), nil
		}
	}
	return hw, nil
}

// System manages the lifecycle of the robot and its outer surfaces.
type System struct {
	cfg      *model.Config
	hw       Hardware
	Hub      *telemetry.Hub
	Room     *telemetry.Room
	Recorder *recorder.Recorder
	App      *app.App
	Robot    *Robot

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan error

	started   bool
	startLock sync.Mutex
}

// NewSystem reads the configuration at cfgPath, opens the hardware and builds the system.
func NewSystem(cfgPath string) (*System, error) {
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	hw, err := OpenHardware(cfg)
	if err != nil {
		return nil, err
	}
	return NewSystemWith(cfg, hw)
}

// NewSystemWith builds the system around already opened hardware.
func NewSystemWith(cfg *model.Config, hw Hardware) (*System, error) {
	util.EnableDebug(cfg.Log.Debug...)
	enc, err := parser.EncoderFor(cfg.Global.TelemetryFormat)
	if err != nil {
		return nil, err
	}

	s := &System{cfg: cfg, hw: hw, Hub: telemetry.NewHub()}
	if cfg.Recorder.Path != "" {
		s.Recorder, err = recorder.Open(cfg.Recorder.Path, enc)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Global.HTTPAddr != "" {
		s.Room, err = telemetry.NewRoom(s.Hub, enc)
		if err != nil {
			s.closeRecorder()
			return nil, err
		}
		s.App, err = app.NewApp(s.Hub, s.Room, s.Recorder)
		if err != nil {
			s.closeRecorder()
			return nil, err
		}
	}

	timing := Timing{
		Cycle:     time.Duration(cfg.Global.CycleMs) * time.Millisecond,
		PowerPoll: time.Duration(cfg.Global.PowerPollMs) * time.Millisecond,
		Settle:    time.Duration(cfg.Ultrasonic.SettleMs) * time.Millisecond,
	}
	s.Robot = NewRobot(hw, timing, cfg.Servo.Address, s.Hub)
	if cfg.Servo.StatusLights {
		s.Robot.EnableStatusLights()
	}
	return s, nil
}

// StartAll starts the recorder, the web app and the robot concurrently.
func (s *System) StartAll() error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)

	if s.Recorder != nil {
		frames := make(chan model.Frame, recorderBuffer)
		if err := s.Hub.Subscribe("recorder", frames); err != nil {
			cancel()
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.Recorder.Run(ctx, frames)
		}()
	}
	if s.App != nil {
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			s.Room.Run(ctx)
		}()
		go func() {
			defer s.wg.Done()
			if err := s.App.Start(s.cfg.Global.HTTPAddr); err != nil {
				util.Error("%v", err)
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.done <- s.Robot.Run(ctx)
	}()
	s.started = true
	return nil
}

// Done delivers the result of the robot's run once it returns.
func (s *System) Done() <-chan error {
	return s.done
}

// StopAll stops all running components and releases the hardware.
func (s *System) StopAll() {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	s.App.Stop()
	s.wg.Wait()
	s.Hub.Close()
	s.closeRecorder()
	s.closeHardware()
	s.started = false
}

func (s *System) closeRecorder() {
	if s.Recorder == nil {
		return
	}
	if err := s.Recorder.Close(); err != nil {
		util.Warn("[system] close recorder: %v", err)
	}
}

func (s *System) closeHardware() {
	if s.hw.Inputs != nil {
		if err := s.hw.Inputs.Close(); err != nil {
			util.Warn("[system] close inputs: %v", err)
		}
	}
	if c, ok := s.hw.Ranger.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if s.hw.Bus != nil {
		if err := s.hw.Bus.Close(); err != nil {
			util.Warn("[system] close servo bus: %v", err)
		}
	}
}
