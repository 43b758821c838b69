// Package nav is the navigation decision core: border sense, curve counting, lane centering,
// emergency border correction with obstacle layering, terminal-lap detection and speed governance.
package nav

import (
	"fmt"
	"time"

	"TerraNav/internal/model"
)

// OuterWall is the track boundary the robot detected as its outside.
type OuterWall uint8

const (
	WallUnknown OuterWall = iota
	WallLeft
	WallRight
	WallEnd
)

func (w OuterWall) String() string {
	switch w {
	case WallUnknown:
		return "unknown"
	case WallLeft:
		return "left"
	case WallRight:
		return "right"
	case WallEnd:
		return "end"
	default:
		return fmt.Sprintf("OuterWall(%d)", int(w))
	}
}

func wallFromSide(s model.Side) OuterWall {
	switch s {
	case model.SideLeft:
		return WallLeft
	case model.SideRight:
		return WallRight
	default:
		return WallUnknown
	}
}

// Substate is the drive activity of the current cycle.
type Substate uint8

const (
	Idle Substate = iota
	Curve
	CurveEnding
	UltrasonicCorrection
	BorderCorrection
)

func (s Substate) String() string {
	switch s {
	case Idle:
		return "idle"
	case Curve:
		return "curve"
	case CurveEnding:
		return "curve_ending"
	case UltrasonicCorrection:
		return "ultrasonic_correction"
	case BorderCorrection:
		return "border_correction"
	default:
		return fmt.Sprintf("Substate(%d)", int(s))
	}
}

// DriveState pairs the substate with its direction. Direction is SideUnknown while Idle.
type DriveState struct {
	Substate  Substate
	Direction model.Side
}

// Context is the navigation state of one run. It is created at the start signal and owned
// by a single Machine.
type Context struct {
	Mode      model.CourseMode
	OuterWall OuterWall
	// WallSide is the physical side of the outer wall. Unlike OuterWall it survives the
	// transition to WallEnd, so the terminal lap keeps tracking the same wall.
	WallSide           model.Side
	CurveCount         int
	TargetHeadingDelta int32
	Baseline           model.Heading
	LastCurve          time.Time
	StartLineDistance  uint32
	Drive              DriveState
	SettleUntil        time.Time
	Finished           bool
}

// TurnSide is the direction the robot turns at every corner (toward the inside of the track).
func (c Context) TurnSide() model.Side {
	return c.WallSide.Opposite()
}

// HeadingDelta returns the heading change since the last baseline write.
func (c Context) HeadingDelta(h model.Heading) int32 {
	return int32(h) - int32(c.Baseline)
}
