package nav

import (
	"time"

	"TerraNav/internal/model"
)

// Border sense and curve handling. Distances in millimeters, headings in tenths of a degree.
const (
	OpenSpaceThreshold = 1100

	StarterCornerThreshold  = 1100
	ObstacleCornerThreshold = 1300

	StarterCurveDebounce  = 2 * time.Second
	ObstacleCurveDebounce = 8 * time.Second

	CurveTarget      = 1000
	CurveSteer       = 15
	CurveMargin      = 30
	CurveCorroborate = 1000 // obstacle course: outer-side back sensor re-approaching the wall
	CurveRealign     = 1200 // turn-side back sensor back below this ends CurveEnding
	SettleAfterCurve = 100 * time.Millisecond

	CurvesPerRun = 12
)

// Lane centering on the front-minus-back differential per side.
const (
	LaneOuterSoft = 40
	LaneOuterHard = 60
	LaneInnerSoft = 20
	LaneInnerHard = 40
	LaneClear     = 10
	LaneSoftSteer = 3
	LaneHardSteer = 5
)

// Terminal phase.
const (
	CreepSpeed         = 4
	StartLineTolerance = 50
)

// Speed derates relative to maxSpeed.
const (
	CurveDerate       = 4
	CurveEndingDerate = 2
	LaneDerate        = 1
	BorderDerate      = 3
)

// Light bits in the intent mask. Lights 0 and 1 stay on for the whole run.
const (
	LightsBoot    uint8 = 0b0000_0011
	LightCurve    uint8 = 1 << 2
	LightBorder   uint8 = 1 << 3
	LightLane     uint8 = 1 << 4
	LightFinished uint8 = 1 << 5
)

// borderBand is one set of emergency border thresholds. Strong==0 means no strong tier.
type borderBand struct {
	Soft        uint32
	SoftSteer   int8
	Strong      uint32
	StrongSteer int8
	Release     uint32
}

var (
	starterBorder   = borderBand{Soft: 120, SoftSteer: 6, Strong: 80, StrongSteer: 10, Release: 150}
	obstacleBorder  = borderBand{Soft: 180, SoftSteer: 6, Release: 220}
	passSideBorder  = borderBand{Soft: 240, SoftSteer: 8, Release: 280}
	wrongSideBorder = borderBand{Soft: 280, SoftSteer: 10, Release: 300}
)

// magnitude returns the steering magnitude for distance d, or 0 when d does not violate the band.
func (b borderBand) magnitude(d uint32) int8 {
	if b.Strong > 0 && d < b.Strong {
		return b.StrongSteer
	}
	if d < b.Soft {
		return b.SoftSteer
	}
	return 0
}

func cornerThreshold(m model.CourseMode) uint32 {
	if m == model.ObstacleCourse {
		return ObstacleCornerThreshold
	}
	return StarterCornerThreshold
}

func curveDebounce(m model.CourseMode) time.Duration {
	if m == model.ObstacleCourse {
		return ObstacleCurveDebounce
	}
	return StarterCurveDebounce
}
