package sim

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TerraNav/internal/actuator"
	"TerraNav/internal/device"
	"TerraNav/internal/model"
	"TerraNav/internal/nav"
	"TerraNav/internal/parser"
)

const dt = 20 * time.Millisecond

func TestRangesAtStart(t *testing.T) {
	w := NewWorld(SquareTrack(), DefaultParams(), model.StarterCourse)
	snap := w.Snapshot()
	assert.Equal(t, [model.ChannelCount]uint32{440, 1700, 440, 440, 1100, 440}, snap.Ultrasonic.Distance)
	assert.Equal(t, model.Heading(0), snap.Heading)

	p := DefaultParams()
	p.MaxRange = 1000
	short := NewWorld(SquareTrack(), p, model.StarterCourse)
	d, err := short.Range(model.CenterFront)
	require.NoError(t, err)
	assert.Zero(t, d, "beyond range there is no echo")

	_, err = w.Range(model.Channel(9))
	assert.Error(t, err)
}

func TestKinematics(t *testing.T) {
	w := NewWorld(SquareTrack(), DefaultParams(), model.StarterCourse)
	require.NoError(t, w.Write(0x50, []byte{parser.EncodeServo(0, 10)}))
	for i := 0; i < 50; i++ {
		w.Step(dt)
	}
	s := w.State()
	assert.InDelta(t, 1700, s.Pose.X, 1e-6)
	assert.InDelta(t, 500, s.Pose.Y, 1e-6)
	assert.InDelta(t, 500, s.Distance, 1e-6)
	assert.Equal(t, time.Second, s.Elapsed)

	left := NewWorld(SquareTrack(), DefaultParams(), model.StarterCourse)
	require.NoError(t, left.Write(0x50, []byte{parser.EncodeServo(0, 5), parser.EncodeServo(1, -15)}))
	right := NewWorld(SquareTrack(), DefaultParams(), model.StarterCourse)
	require.NoError(t, right.Write(0x50, []byte{parser.EncodeServo(0, 5), parser.EncodeServo(1, 15)}))
	for i := 0; i < 10; i++ {
		left.Step(dt)
		right.Step(dt)
	}
	assert.Less(t, int32(left.Heading()), int32(0), "left turns count negative")
	assert.Greater(t, int32(right.Heading()), int32(0))
	assert.Equal(t, -left.Heading(), right.Heading())
	assert.Greater(t, left.State().Pose.Y, 500.0)
}

func TestCollision(t *testing.T) {
	w := NewWorld(SquareTrack(), DefaultParams(), model.StarterCourse)
	require.NoError(t, w.Write(0x50, []byte{parser.EncodeServo(0, 15)}))
	for i := 0; i < 500 && !w.State().Collided; i++ {
		w.Step(dt)
	}
	s := w.State()
	require.True(t, s.Collided)
	assert.Greater(t, s.Pose.X, 2900.0)
	assert.ErrorIs(t, w.Write(0x50, []byte{parser.EncodeServo(0, 0)}), ErrCollision)

	x := s.Pose.X
	w.Step(dt)
	assert.Equal(t, x, w.State().Pose.X, "a crashed robot stays put")
}

func TestServoBoard(t *testing.T) {
	w := NewWorld(SquareTrack(), DefaultParams(), model.ObstacleCourse)
	require.NoError(t, w.Write(0x50, []byte{
		parser.EncodeServo(0, 7),
		parser.EncodeServo(1, -4),
		parser.EncodeLight(2, true),
		parser.EncodeLight(5, true),
		parser.EncodeLight(5, false),
	}))
	s := w.State()
	assert.Equal(t, int8(7), s.Drive)
	assert.Equal(t, int8(-4), s.Steer)
	assert.Equal(t, uint8(0b100), s.Lights)

	for i := 0; i < 50; i++ {
		w.Step(dt)
	}
	b, err := w.Read(0x50, parser.PowerRecordSize)
	require.NoError(t, err)
	rec, err := parser.DecodePower(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(716), rec.Analog[0])
	assert.Equal(t, [2]uint32{14, 14}, rec.MotorTurns)

	_, err = w.Read(0x50, parser.PowerRecordSize+1)
	assert.Error(t, err)

	mode, err := w.CourseMode()
	require.NoError(t, err)
	assert.Equal(t, model.ObstacleCourse, mode)

	pressed, _ := w.StartPressed()
	assert.False(t, pressed)
	w.PressStart()
	pressed, _ = w.StartPressed()
	assert.True(t, pressed)
}

// drive runs the navigation machine against the world in lock step until the run finishes.
func drive(t *testing.T, w *World, mode model.CourseMode) nav.Context {
	t.Helper()
	gw := actuator.NewGateway(w, actuator.DefaultAddr)
	t0 := time.Unix(0, 0)
	m := nav.NewMachine(mode, t0, w.Snapshot())
	for i := 1; i <= 10000; i++ {
		w.Step(dt)
		now := t0.Add(time.Duration(i) * dt)
		gw.Apply(m.Step(w.Snapshot(), nav.DefaultMaxSpeed, now))
		if m.Context().Finished {
			break
		}
	}
	return m.Context()
}

func TestStarterRunCounterClockwise(t *testing.T) {
	w := NewWorld(SquareTrack(), DefaultParams(), model.StarterCourse)
	c := drive(t, w, model.StarterCourse)
	s := w.State()

	require.False(t, s.Collided, "collided at (%.0f, %.0f)", s.Pose.X, s.Pose.Y)
	require.True(t, c.Finished)
	assert.Equal(t, nav.CurvesPerRun, c.CurveCount)
	assert.Equal(t, nav.WallEnd, c.OuterWall)
	assert.Equal(t, model.SideRight, c.WallSide)
	assert.Equal(t, uint32(1700), c.StartLineDistance)

	assert.True(t, s.Pose.X > 1000 && s.Pose.X < 2000, "stopped at x=%.0f", s.Pose.X)
	assert.True(t, s.Pose.Y > 0 && s.Pose.Y < 1000, "stopped at y=%.0f", s.Pose.Y)
	assert.Less(t, s.Elapsed, 100*time.Second)
	assert.Zero(t, s.Drive)
	assert.Equal(t, nav.LightsBoot|nav.LightFinished, s.Lights)
}

func TestStarterRunClockwise(t *testing.T) {
	w := NewWorld(SquareTrack().Mirror(3000), DefaultParams(), model.StarterCourse)
	c := drive(t, w, model.StarterCourse)
	s := w.State()

	require.False(t, s.Collided, "collided at (%.0f, %.0f)", s.Pose.X, s.Pose.Y)
	require.True(t, c.Finished)
	assert.Equal(t, nav.CurvesPerRun, c.CurveCount)
	assert.Equal(t, model.SideLeft, c.WallSide)
	assert.True(t, s.Pose.Y > 2000 && s.Pose.Y < 3000, "stopped at y=%.0f", s.Pose.Y)
}

func TestTestModeStaysPut(t *testing.T) {
	w := NewWorld(SquareTrack(), DefaultParams(), model.TestMode)
	gw := actuator.NewGateway(w, actuator.DefaultAddr)
	t0 := time.Unix(0, 0)
	m := nav.NewMachine(model.TestMode, t0, w.Snapshot())
	for i := 1; i <= 250; i++ {
		w.Step(dt)
		gw.Apply(m.Step(w.Snapshot(), nav.DefaultMaxSpeed, t0.Add(time.Duration(i)*dt)))
	}
	assert.Equal(t, SquareTrack().Start, w.State().Pose)
}

func TestVisionSource(t *testing.T) {
	w := NewWorld(SquareTrack(), DefaultParams(), model.StarterCourse)
	require.NoError(t, w.Write(0x50, []byte{parser.EncodeServo(0, 5), parser.EncodeServo(1, 15)}))
	for i := 0; i < 10; i++ {
		w.Step(dt)
	}
	records, stop, err := w.VisionSource(time.Millisecond)(model.StarterCourse)
	require.NoError(t, err)
	select {
	case rec := <-records:
		assert.Equal(t, w.Heading(), rec.Heading)
		assert.Nil(t, rec.Object)
	case <-time.After(time.Second):
		t.Fatal("no heading record")
	}
	stop()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-records:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestVisionBoardOverSerial(t *testing.T) {
	w := NewWorld(SquareTrack(), DefaultParams(), model.ObstacleCourse)
	board, robotEnd := net.Pipe()
	link := device.NewVisionLink(robotEnd, robotEnd, model.ObstacleCourse)
	records := make(chan model.VisionRecord, 8)
	stop := link.Start(records)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.RunVisionBoard(ctx, board, 2*time.Millisecond) }()

	select {
	case rec := <-records:
		assert.Equal(t, model.Heading(0), rec.Heading)
	case <-time.After(time.Second):
		t.Fatal("no record over the link")
	}
	cancel()
	stop()
	_ = board.Close()
	select {
	case <-errc:
	case <-time.After(time.Second):
		t.Fatal("vision board did not stop")
	}
}
