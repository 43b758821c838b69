package nav

import (
	"TerraNav/internal/model"
)

// passCheckSide is the front sensor that watches the pillar: green is passed on its left,
// so the pillar stays on the robot's right. Red is mirrored.
func passCheckSide(c model.Color) model.Side {
	if c == model.Green {
		return model.SideRight
	}
	return model.SideLeft
}

// bandFor selects the border thresholds of one front-lateral sensor.
func (m *Machine) bandFor(side model.Side, obj *model.ObjectDetection) borderBand {
	if m.ctx.Mode != model.ObstacleCourse {
		return starterBorder
	}
	if obj == nil {
		return obstacleBorder
	}
	check := passCheckSide(obj.Color)
	if side != check {
		return obstacleBorder
	}
	if obj.Side == check {
		return passSideBorder
	}
	return wrongSideBorder
}

// border evaluates the emergency correction. A violation on a front-lateral sensor steers
// away from it; the closest violation wins. An active correction holds its steering until
// every valid front-lateral reading is past its release threshold.
func (m *Machine) border(us model.UltrasonicReading, obj *model.ObjectDetection) (int8, bool) {
	var best int8
	var bestDist uint32
	released := true
	for _, side := range []model.Side{model.SideLeft, model.SideRight} {
		d, ok := us.Get(frontOf(side))
		if !ok {
			continue
		}
		band := m.bandFor(side, obj)
		if d < band.Release {
			released = false
		}
		mag := band.magnitude(d)
		if mag == 0 {
			continue
		}
		steer := mag
		if side == model.SideRight {
			steer = -mag
		}
		if best == 0 || d < bestDist {
			best, bestDist = steer, d
		}
	}
	if best != 0 {
		m.borderSteer = best
		return best, true
	}
	if m.ctx.Drive.Substate == BorderCorrection && !released && m.borderSteer != 0 {
		return m.borderSteer, true
	}
	m.borderSteer = 0
	return 0, false
}

// laneBand returns the trigger tiers of one side; the outer wall side tolerates more.
func (m *Machine) laneBand(side model.Side) (soft, hard int32) {
	if m.ctx.WallSide == model.SideUnknown || side == m.ctx.WallSide {
		return LaneOuterSoft, LaneOuterHard
	}
	return LaneInnerSoft, LaneInnerHard
}

// laneDiff is the front-minus-back differential of a side. Readings beyond the open-space
// threshold see no wall and are left out.
func laneDiff(us model.UltrasonicReading, side model.Side) (int32, bool) {
	f, ok := us.Get(frontOf(side))
	if !ok || f > OpenSpaceThreshold {
		return 0, false
	}
	b, ok := us.Get(backOf(side))
	if !ok || b > OpenSpaceThreshold {
		return 0, false
	}
	return int32(f) - int32(b), true
}

// laneSteerFor turns the robot parallel to the wall on side: a negative differential means
// the nose points toward that wall.
func laneSteerFor(side model.Side, diff int32, mag int8) int8 {
	toward := diff < 0
	if side == model.SideLeft {
		if toward {
			return mag
		}
		return -mag
	}
	if toward {
		return -mag
	}
	return mag
}

// lane evaluates lane centering with asymmetric hysteresis: it triggers beyond the side's
// soft tier and clears when the differential is back within LaneClear or has crossed zero.
func (m *Machine) lane(us model.UltrasonicReading) (int8, bool) {
	var best int8
	var bestSide model.Side
	var bestAbs, bestDiff int32
	for _, side := range []model.Side{model.SideLeft, model.SideRight} {
		diff, ok := laneDiff(us, side)
		if !ok {
			continue
		}
		soft, hard := m.laneBand(side)
		abs := diff
		if abs < 0 {
			abs = -abs
		}
		var mag int8
		switch {
		case abs > hard:
			mag = LaneHardSteer
		case abs > soft:
			mag = LaneSoftSteer
		default:
			continue
		}
		steer := laneSteerFor(side, diff, mag)
		if mag > absInt8(best) || (mag == absInt8(best) && abs > bestAbs) {
			best, bestSide, bestAbs, bestDiff = steer, side, abs, diff
		}
	}
	if best != 0 {
		m.laneSteer, m.laneSide, m.laneTrigger = best, bestSide, bestDiff
		return best, true
	}
	if m.ctx.Drive.Substate == UltrasonicCorrection && m.laneSteer != 0 {
		diff, ok := laneDiff(us, m.laneSide)
		sameSide := (diff > 0) == (m.laneTrigger > 0)
		if ok && sameSide && (diff > LaneClear || diff < -LaneClear) {
			return m.laneSteer, true
		}
	}
	m.laneSteer = 0
	return 0, false
}

func absInt8(v int8) int8 {
	if v < 0 {
		return -v
	}
	return v
}
