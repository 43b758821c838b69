package nav

import (
	"time"

	"TerraNav/internal/model"
	"TerraNav/internal/parser"
	"TerraNav/internal/util"
)

// Machine runs one navigation decision per Step. It is not safe for concurrent use;
// the decision loop is its only caller.
type Machine struct {
	ctx Context

	borderSteer int8
	laneSteer   int8
	laneSide    model.Side
	laneTrigger int32 // differential that started the held lane correction
}

// NewMachine creates the run context at the start signal. The current heading becomes the
// baseline and the center-front reading the start-line distance (0 if unknown).
func NewMachine(mode model.CourseMode, now time.Time, snap model.Snapshot) *Machine {
	start, _ := snap.Ultrasonic.Get(model.CenterFront)
	return &Machine{ctx: Context{
		Mode:              mode,
		Baseline:          snap.Heading,
		LastCurve:         now,
		StartLineDistance: start,
	}}
}

// Context returns a copy of the run context.
func (m *Machine) Context() Context {
	return m.ctx
}

// Step runs one decision cycle and returns the resulting intent. The drive speed never
// exceeds maxSpeed and the steering stays within the servo range.
func (m *Machine) Step(snap model.Snapshot, maxSpeed int8, now time.Time) model.Intent {
	c := &m.ctx
	if maxSpeed < 0 {
		maxSpeed = 0
	}
	if c.Finished {
		return model.Intent{Lights: LightsBoot | LightFinished}
	}
	us := snap.Ultrasonic

	switch c.Drive.Substate {
	case Curve:
		if !m.curveComplete(snap) {
			return m.intent(derate(maxSpeed, CurveDerate), curveSteer(c.Drive.Direction), maxSpeed)
		}
		c.Drive.Substate = CurveEnding
		c.SettleUntil = now.Add(SettleAfterCurve)
		util.Debug("rotation", "curve %d done at delta %d", c.CurveCount, c.HeadingDelta(snap.Heading))
		return m.intent(0, 0, maxSpeed)

	case CurveEnding:
		if now.Before(c.SettleUntil) {
			return m.intent(0, 0, maxSpeed)
		}
		if d, ok := us.Get(backOf(c.Drive.Direction)); !ok || d >= CurveRealign {
			return m.intent(derate(maxSpeed, CurveEndingDerate), 0, maxSpeed)
		}
		c.Drive = DriveState{}
		c.LastCurve = now
	}

	if c.OuterWall == WallUnknown {
		m.senseBorder(us)
	}
	if m.detectCurve(snap, now) {
		return m.intent(derate(maxSpeed, CurveDerate), curveSteer(c.Drive.Direction), maxSpeed)
	}

	var steer int8
	speed := maxSpeed
	if s, ok := m.border(us, snap.Object); ok {
		c.Drive = DriveState{Substate: BorderCorrection, Direction: steerSide(s)}
		m.laneSteer = 0
		steer, speed = s, derate(maxSpeed, BorderDerate)
	} else if s, ok := m.lane(us); ok {
		c.Drive = DriveState{Substate: UltrasonicCorrection, Direction: steerSide(s)}
		steer, speed = s, derate(maxSpeed, LaneDerate)
	} else {
		c.Drive = DriveState{}
	}

	if c.OuterWall == WallEnd {
		cf, ok := us.Get(model.CenterFront)
		if ok && c.StartLineDistance != 0 && cf <= c.StartLineDistance+StartLineTolerance {
			c.Finished = true
			c.Drive = DriveState{}
			util.Info("[nav] start line reached at %d mm, run finished", cf)
			return model.Intent{Lights: LightsBoot | LightFinished}
		}
		speed = CreepSpeed
	}
	return m.intent(speed, steer, maxSpeed)
}

// senseBorder fixes the outer wall from the first front-lateral sensor that opens.
// The open side is the inside of the track, so the outer wall is on the other side.
func (m *Machine) senseBorder(us model.UltrasonicReading) {
	for _, side := range []model.Side{model.SideLeft, model.SideRight} {
		if d, ok := us.Get(frontOf(side)); ok && d > OpenSpaceThreshold {
			m.ctx.WallSide = side.Opposite()
			m.ctx.OuterWall = wallFromSide(m.ctx.WallSide)
			util.Info("[nav] %s front open (%d mm), outer wall %s", side, d, m.ctx.OuterWall)
			return
		}
	}
}

func (m *Machine) detectCurve(snap model.Snapshot, now time.Time) bool {
	c := &m.ctx
	if c.OuterWall != WallLeft && c.OuterWall != WallRight {
		return false
	}
	if now.Sub(c.LastCurve) < curveDebounce(c.Mode) {
		return false
	}
	turn := c.TurnSide()
	d, ok := snap.Ultrasonic.Get(frontOf(turn))
	if !ok || d <= cornerThreshold(c.Mode) {
		return false
	}

	c.Baseline = snap.Heading
	c.TargetHeadingDelta = CurveTarget
	if turn == model.SideLeft {
		c.TargetHeadingDelta = -CurveTarget
	}
	c.Drive = DriveState{Substate: Curve, Direction: turn}
	c.LastCurve = now
	c.CurveCount++
	m.borderSteer, m.laneSteer = 0, 0
	util.Info("[nav] curve %d toward %s (%s front %d mm)", c.CurveCount, turn, turn, d)

	if c.CurveCount >= CurvesPerRun {
		c.CurveCount = CurvesPerRun
		c.OuterWall = WallEnd
		util.Info("[nav] last curve, entering terminal lap")
	}
	return true
}

func (m *Machine) curveComplete(snap model.Snapshot) bool {
	c := &m.ctx
	delta := c.HeadingDelta(snap.Heading)
	if c.TargetHeadingDelta < 0 {
		if delta > c.TargetHeadingDelta+CurveMargin {
			return false
		}
	} else if delta < c.TargetHeadingDelta-CurveMargin {
		return false
	}
	if c.Mode != model.ObstacleCourse {
		return true
	}
	d, ok := snap.Ultrasonic.Get(backOf(c.WallSide))
	return ok && d < CurveCorroborate
}

// intent applies the bench-mode throttle lock, the speed ceiling and the servo range.
func (m *Machine) intent(speed, steer, maxSpeed int8) model.Intent {
	if m.ctx.Mode == model.TestMode {
		speed = 0
	}
	if speed > maxSpeed {
		speed = maxSpeed
	}
	if speed < 0 {
		speed = 0
	}
	if steer > parser.MaxServoMagnitude {
		steer = parser.MaxServoMagnitude
	}
	if steer < -parser.MaxServoMagnitude {
		steer = -parser.MaxServoMagnitude
	}
	return model.Intent{DriveSpeed: speed, Steer: steer, Lights: m.lights()}
}

func (m *Machine) lights() uint8 {
	l := LightsBoot
	switch m.ctx.Drive.Substate {
	case Curve, CurveEnding:
		l |= LightCurve
	case BorderCorrection:
		l |= LightBorder
	case UltrasonicCorrection:
		l |= LightLane
	}
	return l
}

func derate(maxSpeed, by int8) int8 {
	if maxSpeed <= by {
		return 0
	}
	return maxSpeed - by
}

func curveSteer(dir model.Side) int8 {
	if dir == model.SideLeft {
		return -CurveSteer
	}
	return CurveSteer
}

func steerSide(steer int8) model.Side {
	switch {
	case steer < 0:
		return model.SideLeft
	case steer > 0:
		return model.SideRight
	default:
		return model.SideUnknown
	}
}

func frontOf(s model.Side) model.Channel {
	if s == model.SideLeft {
		return model.LeftFront
	}
	return model.RightFront
}

func backOf(s model.Side) model.Channel {
	if s == model.SideLeft {
		return model.LeftBack
	}
	return model.RightBack
}
