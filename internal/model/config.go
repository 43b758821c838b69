// Package model defines shared configuration structures used to initialize the TerraNav robot.
package model

import (
	"errors"
	"fmt"
)

// Config represents the root structure loaded from configs/config.yml.
type Config struct {
	Global     GlobalConfig     `yaml:"global"`
	Servo      ServoConfig      `yaml:"servo"`
	Vision     VisionConfig     `yaml:"vision"`
	Inputs     InputsConfig     `yaml:"inputs"`
	Ultrasonic UltrasonicConfig `yaml:"ultrasonic"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Log        LogConfig        `yaml:"log"`
}

// GlobalConfig defines loop pacing and outer surfaces.
type GlobalConfig struct {
	CycleMs         int    `yaml:"cycle_ms"`         // decision loop period
	PowerPollMs     int    `yaml:"power_poll_ms"`    // speed governor cadence
	TelemetryFormat string `yaml:"telemetry_format"` // json or msgpack
	HTTPAddr        string `yaml:"http_addr"`        // empty disables the web app
}

// ServoConfig describes the link to the servo/power board.
type ServoConfig struct {
	Transport    string `yaml:"transport"` // i2c or serial
	I2CBus       byte   `yaml:"i2c_bus"`
	Address      byte   `yaml:"address"`
	Device       string `yaml:"device"` // serial bridge
	Baud         int    `yaml:"baud"`
	StatusLights bool   `yaml:"status_lights"` // also drive lights 2-5 (curve, border, lane, finished)
}

// VisionConfig describes the serial link to the vision board.
type VisionConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// InputsConfig describes the discrete inputs read at boot.
type InputsConfig struct {
	Backend     string `yaml:"backend"` // gpio or sim
	StartPin    int    `yaml:"start_pin"`
	ObstaclePin int    `yaml:"obstacle_pin"`
	TestPin     int    `yaml:"test_pin"`
}

// UltrasonicConfig describes the six trigger/echo pairs.
type UltrasonicConfig struct {
	Backend  string `yaml:"backend"` // gpio or sim
	TrigPins []int  `yaml:"trig_pins"`
	EchoPins []int  `yaml:"echo_pins"`
	SettleMs int    `yaml:"settle_ms"`
}

// RecorderConfig controls the run recorder database.
type RecorderConfig struct {
	Path string `yaml:"path"` // empty disables recording
}

// LogConfig enables debug topics (ultrasonic, servo, rotation, battery).
type LogConfig struct {
	Debug []string `yaml:"debug"`
}

// ApplyDefaults fills zero fields with the values used on the competition robot.
func (c *Config) ApplyDefaults() {
	if c.Global.CycleMs == 0 {
		c.Global.CycleMs = 20
	}
	if c.Global.PowerPollMs == 0 {
		c.Global.PowerPollMs = 1000
	}
	if c.Global.TelemetryFormat == "" {
		c.Global.TelemetryFormat = "json"
	}
	if c.Servo.Transport == "" {
		c.Servo.Transport = "i2c"
	}
	if c.Servo.I2CBus == 0 {
		c.Servo.I2CBus = 1
	}
	if c.Servo.Address == 0 {
		c.Servo.Address = 0x50
	}
	if c.Servo.Baud == 0 {
		c.Servo.Baud = 115200
	}
	if c.Vision.Baud == 0 {
		c.Vision.Baud = 115200
	}
	if c.Inputs.Backend == "" {
		c.Inputs.Backend = "gpio"
	}
	if c.Inputs.StartPin == 0 {
		c.Inputs.StartPin = 8
	}
	if c.Ultrasonic.Backend == "" {
		c.Ultrasonic.Backend = "gpio"
	}
	if len(c.Ultrasonic.TrigPins) == 0 {
		c.Ultrasonic.TrigPins = []int{9, 11, 13, 48, 37, 1}
	}
	if len(c.Ultrasonic.EchoPins) == 0 {
		c.Ultrasonic.EchoPins = []int{10, 12, 14, 47, 36, 38}
	}
	if c.Ultrasonic.SettleMs == 0 {
		c.Ultrasonic.SettleMs = 30
	}
}

// Validate rejects configurations the robot cannot run with.
func (c *Config) Validate() error {
	if c.Global.CycleMs < 0 || c.Global.PowerPollMs < 0 {
		return errors.New("cycle_ms and power_poll_ms must be positive")
	}
	switch c.Global.TelemetryFormat {
	case "json", "msgpack":
	default:
		return fmt.Errorf("unknown telemetry_format %q", c.Global.TelemetryFormat)
	}
	switch c.Servo.Transport {
	case "i2c":
	case "serial":
		if c.Servo.Device == "" {
			return errors.New("servo.device required for serial transport")
		}
	default:
		return fmt.Errorf("unknown servo transport %q", c.Servo.Transport)
	}
	if c.Servo.Address > 0x7f {
		return fmt.Errorf("servo address 0x%x out of 7-bit range", c.Servo.Address)
	}
	if c.Ultrasonic.Backend == "gpio" {
		if len(c.Ultrasonic.TrigPins) != ChannelCount || len(c.Ultrasonic.EchoPins) != ChannelCount {
			return fmt.Errorf("ultrasonic needs %d trig and echo pins", ChannelCount)
		}
	}
	return nil
}

// DebugEnabled reports whether a debug topic is switched on.
func (l LogConfig) DebugEnabled(topic string) bool {
	for _, t := range l.Debug {
		if t == topic || t == "all" {
			return true
		}
	}
	return false
}
