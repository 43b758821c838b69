// Package model defines the shared data structures exchanged between the TerraNav components:
// sensor readings, vision and power records, actuator intents and telemetry frames.
package model

import (
	"fmt"
	"time"
)

// Channel identifies one of the six ultrasonic sensors.
type Channel uint8

const (
	LeftFront Channel = iota
	CenterFront
	RightFront
	LeftBack
	CenterBack
	RightBack
)

// ChannelCount is the number of ultrasonic sensors on the robot.
const ChannelCount = 6

// Channels returns all ultrasonic channels in sweep order.
func Channels() []Channel {
	return []Channel{LeftFront, CenterFront, RightFront, LeftBack, CenterBack, RightBack}
}

func (c Channel) String() string {
	switch c {
	case LeftFront:
		return "left_front"
	case CenterFront:
		return "center_front"
	case RightFront:
		return "right_front"
	case LeftBack:
		return "left_back"
	case CenterBack:
		return "center_back"
	case RightBack:
		return "right_back"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// UltrasonicReading holds the latest distance per channel in millimeters.
// A zero distance means "no echo / unknown" and is never a real measurement.
type UltrasonicReading struct {
	Distance [ChannelCount]uint32    `json:"distance_mm" msgpack:"distance_mm"`
	Updated  [ChannelCount]time.Time `json:"updated" msgpack:"updated"`
}

// Valid reports whether the channel carries a usable distance.
func (u UltrasonicReading) Valid(c Channel) bool {
	return u.Distance[c] != 0
}

// Get returns the distance of a channel and whether it is usable.
func (u UltrasonicReading) Get(c Channel) (uint32, bool) {
	d := u.Distance[c]
	return d, d != 0
}

// Heading is the vision board's accumulated rotation in tenths of a degree.
type Heading int32

// Color is the color of a detected traffic sign.
type Color uint8

const (
	Green Color = iota
	Red
)

func (c Color) String() string {
	if c == Red {
		return "red"
	}
	return "green"
}

// Side is a lateral position or direction.
type Side uint8

const (
	SideUnknown Side = iota
	SideLeft
	SideRight
)

// Opposite returns the mirrored side; unknown stays unknown.
func (s Side) Opposite() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	default:
		return SideUnknown
	}
}

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "unknown"
	}
}

// ObjectDetection is a colored object reported by the vision board.
type ObjectDetection struct {
	Color Color `json:"color" msgpack:"color"`
	Side  Side  `json:"side" msgpack:"side"`
	Angle uint8 `json:"angle" msgpack:"angle"` // normalized 0..31
}

// VisionRecord is one push message from the vision board. Object is nil unless
// the record's available flag was set. HeadingOnly marks records without an object part.
type VisionRecord struct {
	Heading     Heading
	Object      *ObjectDetection
	HeadingOnly bool
}

// PowerRecord is polled from the servo board.
type PowerRecord struct {
	Analog     [4]uint16 `json:"analog" msgpack:"analog"`
	MotorTurns [2]uint32 `json:"motor_turns" msgpack:"motor_turns"`
}

// BatteryVolts converts the first analog channel to volts.
func (p PowerRecord) BatteryVolts() float64 {
	return float64(p.Analog[0]) * 0.009765625
}

// Snapshot is a consistent copy of all asynchronous inputs taken once per decision cycle.
type Snapshot struct {
	Ultrasonic UltrasonicReading `json:"ultrasonic" msgpack:"ultrasonic"`
	Heading    Heading           `json:"heading" msgpack:"heading"`
	Object     *ObjectDetection  `json:"object,omitempty" msgpack:"object,omitempty"`
}

// CourseMode is selected by the physical switches once at boot.
type CourseMode uint8

const (
	TestMode CourseMode = iota
	StarterCourse
	ObstacleCourse
)

func (m CourseMode) String() string {
	switch m {
	case TestMode:
		return "test"
	case StarterCourse:
		return "starter"
	case ObstacleCourse:
		return "obstacle"
	default:
		return fmt.Sprintf("CourseMode(%d)", int(m))
	}
}

// Intent is the steering/throttle/light request of one decision cycle.
type Intent struct {
	DriveSpeed int8  `json:"drive_speed" msgpack:"drive_speed"`
	Steer      int8  `json:"steer" msgpack:"steer"`
	Lights     uint8 `json:"lights" msgpack:"lights"`
}

// Frame is the per-cycle telemetry record streamed and recorded during a run.
type Frame struct {
	RunID      string    `json:"run_id" msgpack:"run_id"`
	Seq        uint64    `json:"seq" msgpack:"seq"`
	Time       time.Time `json:"time" msgpack:"time"`
	Mode       string    `json:"mode" msgpack:"mode"`
	OuterWall  string    `json:"outer_wall" msgpack:"outer_wall"`
	CurveCount int       `json:"curve_count" msgpack:"curve_count"`
	Substate   string    `json:"substate" msgpack:"substate"`
	Direction  string    `json:"direction" msgpack:"direction"`
	Heading    int32     `json:"heading" msgpack:"heading"`
	Delta      int32     `json:"heading_delta" msgpack:"heading_delta"`
	Snapshot   Snapshot  `json:"snapshot" msgpack:"snapshot"`
	Intent     Intent    `json:"intent" msgpack:"intent"`
	MaxSpeed   int8      `json:"max_speed" msgpack:"max_speed"`
	Battery    float64   `json:"battery_volts" msgpack:"battery_volts"`
	Finished   bool      `json:"finished" msgpack:"finished"`
}
