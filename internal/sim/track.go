// Package sim simulates the robot on a WRO style track: kinematics, ultrasonic ray casting,
// the servo/power board, the discrete inputs and the vision board's heading stream.
package sim

import "math"

// Point is a position on the mat in millimeters.
type Point struct {
	X, Y float64
}

// Segment is one straight wall.
type Segment struct {
	A, B Point
}

// Pose is the robot position and orientation (radians, counter-clockwise from +X).
type Pose struct {
	X, Y, Theta float64
}

// Track is a set of walls and a starting pose.
type Track struct {
	Walls []Segment
	Start Pose
}

func square(x0, y0, size float64) []Segment {
	a := Point{x0, y0}
	b := Point{x0 + size, y0}
	c := Point{x0 + size, y0 + size}
	d := Point{x0, y0 + size}
	return []Segment{{a, b}, {b, c}, {c, d}, {d, a}}
}

// SquareTrack is the 3 m competition mat with a 1 m inner island. The robot starts on the
// south straight heading east, so it drives counter-clockwise with the outer wall on its right.
func SquareTrack() Track {
	walls := append(square(0, 0, 3000), square(1000, 1000, 1000)...)
	return Track{Walls: walls, Start: Pose{X: 1200, Y: 500, Theta: 0}}
}

// Mirror flips the track north-south so the robot drives clockwise.
func (t Track) Mirror(height float64) Track {
	out := Track{Start: Pose{X: t.Start.X, Y: height - t.Start.Y, Theta: -t.Start.Theta}}
	for _, w := range t.Walls {
		out.Walls = append(out.Walls, Segment{
			A: Point{w.A.X, height - w.A.Y},
			B: Point{w.B.X, height - w.B.Y},
		})
	}
	return out
}

// cast returns the distance from p along direction theta to the nearest wall.
func (t Track) cast(p Point, theta float64) (float64, bool) {
	dx, dy := math.Cos(theta), math.Sin(theta)
	best := math.Inf(1)
	for _, w := range t.Walls {
		ex, ey := w.B.X-w.A.X, w.B.Y-w.A.Y
		den := dx*ey - dy*ex
		if math.Abs(den) < 1e-9 {
			continue
		}
		ax, ay := w.A.X-p.X, w.A.Y-p.Y
		dist := (ax*ey - ay*ex) / den
		u := (ax*dy - ay*dx) / den
		if dist > 0 && u >= 0 && u <= 1 && dist < best {
			best = dist
		}
	}
	return best, !math.IsInf(best, 1)
}

// clearance returns the distance from p to the closest wall.
func (t Track) clearance(p Point) float64 {
	best := math.Inf(1)
	for _, w := range t.Walls {
		ex, ey := w.B.X-w.A.X, w.B.Y-w.A.Y
		l2 := ex*ex + ey*ey
		u := ((p.X-w.A.X)*ex + (p.Y-w.A.Y)*ey) / l2
		u = math.Max(0, math.Min(1, u))
		d := math.Hypot(p.X-(w.A.X+u*ex), p.Y-(w.A.Y+u*ey))
		best = math.Min(best, d)
	}
	return best
}
