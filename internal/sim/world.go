package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"TerraNav/internal/model"
	"TerraNav/internal/parser"
	"TerraNav/internal/util"
)

// Params describes the simulated chassis and sensors.
type Params struct {
	SpeedPerUnit  float64 // mm/s per drive magnitude step
	MaxSteerAngle float64 // front wheel angle at magnitude 15, radians
	Wheelbase     float64 // mm
	MaxRange      float64 // ultrasonic range, beyond it there is no echo
	BodyRadius    float64 // collision radius around the rear axle
	BatteryVolts  float64
	TurnsPerMeter float64 // motor turns per meter driven
}

// DefaultParams matches the competition chassis closely enough for the navigation logic.
func DefaultParams() Params {
	return Params{
		SpeedPerUnit:  50,
		MaxSteerAngle: 15 * math.Pi / 180,
		Wheelbase:     150,
		MaxRange:      3000,
		BodyRadius:    60,
		BatteryVolts:  7.0,
		TurnsPerMeter: 40,
	}
}

type mount struct {
	x, y, angle float64 // robot frame: x forward, y left
}

var mounts = [model.ChannelCount]mount{
	model.LeftFront:   {80, 60, math.Pi / 2},
	model.CenterFront: {100, 0, 0},
	model.RightFront:  {80, -60, -math.Pi / 2},
	model.LeftBack:    {-80, 60, math.Pi / 2},
	model.CenterBack:  {-100, 0, math.Pi},
	model.RightBack:   {-80, -60, -math.Pi / 2},
}

// ErrCollision is reported by Write once the robot has hit a wall.
var ErrCollision = errors.New("robot hit a wall")

// World is the simulated robot on its track. It implements the servo bus, the ranger and
// the discrete inputs used by the navigation board.
type World struct {
	mu       sync.Mutex
	track    Track
	params   Params
	mode     model.CourseMode
	pose     Pose
	theta0   float64
	drive    int8
	steer    int8
	lights   uint8
	distance float64
	elapsed  time.Duration
	pressed  bool
	collided bool
}

// NewWorld places the robot at the track's start pose.
func NewWorld(track Track, params Params, mode model.CourseMode) *World {
	return &World{
		track:  track,
		params: params,
		mode:   mode,
		pose:   track.Start,
		theta0: track.Start.Theta,
	}
}

// Step advances the kinematics by dt using the last commands received.
func (w *World) Step(dt time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.elapsed += dt
	if w.collided {
		return
	}
	s := dt.Seconds()
	v := float64(w.drive) * w.params.SpeedPerUnit
	delta := float64(w.steer) / parser.MaxServoMagnitude * w.params.MaxSteerAngle
	w.pose.Theta -= v / w.params.Wheelbase * math.Tan(delta) * s
	w.pose.X += v * math.Cos(w.pose.Theta) * s
	w.pose.Y += v * math.Sin(w.pose.Theta) * s
	w.distance += math.Abs(v * s)

	if w.track.clearance(Point{w.pose.X, w.pose.Y}) < w.params.BodyRadius {
		w.collided = true
		util.Warn("[sim] collision at (%.0f, %.0f)", w.pose.X, w.pose.Y)
	}
}

// Run advances the world in real time until ctx ends.
func (w *World) Run(ctx context.Context, dt time.Duration) {
	ticker := time.NewTicker(dt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Step(dt)
		}
	}
}

func (w *World) rangeLocked(ch model.Channel) uint32 {
	m := mounts[ch]
	c, s := math.Cos(w.pose.Theta), math.Sin(w.pose.Theta)
	p := Point{w.pose.X + m.x*c - m.y*s, w.pose.Y + m.x*s + m.y*c}
	d, ok := w.track.cast(p, w.pose.Theta+m.angle)
	if !ok || d > w.params.MaxRange || d < 1 {
		return 0
	}
	return uint32(d)
}

// Range casts the sensor's beam against the walls. Out of range yields 0, like a lost echo.
func (w *World) Range(ch model.Channel) (uint32, error) {
	if int(ch) >= model.ChannelCount {
		return 0, errors.New("no such channel")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rangeLocked(ch), nil
}

// Snapshot reads every sensor at once, for lock-step simulations without the ingest.
func (w *World) Snapshot() model.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	var snap model.Snapshot
	for _, ch := range model.Channels() {
		snap.Ultrasonic.Distance[ch] = w.rangeLocked(ch)
	}
	snap.Heading = w.headingLocked()
	return snap
}

// headingLocked reports the accumulated rotation like the vision board's gyro: tenths of a
// degree, left turns negative.
func (w *World) headingLocked() model.Heading {
	return model.Heading(math.Round(-(w.pose.Theta - w.theta0) * 1800 / math.Pi))
}

// Heading returns the simulated gyro heading.
func (w *World) Heading() model.Heading {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.headingLocked()
}

// Write decodes servo board command bytes.
func (w *World) Write(_ byte, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range payload {
		cmd := parser.DecodeCommand(b)
		switch {
		case cmd.Light:
			if cmd.Channel < 8 {
				if cmd.On {
					w.lights |= 1 << cmd.Channel
				} else {
					w.lights &^= 1 << cmd.Channel
				}
			}
		case cmd.Channel == 0:
			w.drive = cmd.Magnitude
		case cmd.Channel == 1:
			w.steer = cmd.Magnitude
		}
	}
	if w.collided {
		return ErrCollision
	}
	return nil
}

// Read answers power record requests.
func (w *World) Read(_ byte, n int) ([]byte, error) {
	w.mu.Lock()
	turns := uint32(w.distance / 1000 * w.params.TurnsPerMeter)
	rec := model.PowerRecord{
		Analog:     [4]uint16{uint16(w.params.BatteryVolts / 0.009765625)},
		MotorTurns: [2]uint32{turns, turns},
	}
	w.mu.Unlock()
	b := parser.EncodePower(rec)
	if n > len(b) {
		return nil, errors.New("power record is 16 bytes")
	}
	return b[:n], nil
}

// Close implements the bus interface.
func (w *World) Close() error { return nil }

// CourseMode returns the simulated switch position.
func (w *World) CourseMode() (model.CourseMode, error) { return w.mode, nil }

// PressStart holds the start button down.
func (w *World) PressStart() {
	w.mu.Lock()
	w.pressed = true
	w.mu.Unlock()
}

// StartPressed reports the start button.
func (w *World) StartPressed() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pressed, nil
}

// State is a copy of the simulation state for reporting.
type State struct {
	Pose     Pose
	Drive    int8
	Steer    int8
	Lights   uint8
	Distance float64
	Elapsed  time.Duration
	Collided bool
}

// State returns the current simulation state.
func (w *World) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		Pose:     w.pose,
		Drive:    w.drive,
		Steer:    w.steer,
		Lights:   w.lights,
		Distance: w.distance,
		Elapsed:  w.elapsed,
		Collided: w.collided,
	}
}
