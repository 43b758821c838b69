package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TerraNav/internal/model"
	"TerraNav/internal/nav"
	"TerraNav/internal/parser"
	"TerraNav/internal/telemetry"
)

type fakeBus struct {
	mu     sync.Mutex
	writes []byte
	power  []byte
}

func (b *fakeBus) Write(_ byte, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, payload...)
	return nil
}

func (b *fakeBus) Read(_ byte, n int) ([]byte, error) {
	if b.power == nil {
		return nil, errors.New("no power board")
	}
	return b.power[:n], nil
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) sent() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.writes...)
}

type fakeInputs struct {
	mode       model.CourseMode
	err        error
	pressAfter int32
	polls      atomic.Int32
}

func (in *fakeInputs) CourseMode() (model.CourseMode, error) { return in.mode, in.err }

func (in *fakeInputs) StartPressed() (bool, error) {
	return in.polls.Add(1) > in.pressAfter, nil
}

func (in *fakeInputs) Close() error { return nil }

type wallRanger struct{}

func (wallRanger) Range(ch model.Channel) (uint32, error) {
	if ch == model.CenterFront {
		return 1500, nil
	}
	return 300, nil
}

func testHardware(inputs *fakeInputs, bus *fakeBus) Hardware {
	return Hardware{
		Bus:    bus,
		Inputs: inputs,
		Ranger: wallRanger{},
		Vision: func(mode model.CourseMode) (<-chan model.VisionRecord, func(), error) {
			ch := make(chan model.VisionRecord, 1)
			ch <- model.VisionRecord{Heading: 50}
			return ch, func() {}, nil
		},
	}
}

var fastTiming = Timing{
	Cycle:     2 * time.Millisecond,
	PowerPoll: 5 * time.Millisecond,
	Settle:    time.Millisecond,
	StartPoll: time.Millisecond,
}

func TestRobotBootAndDrive(t *testing.T) {
	bus := &fakeBus{power: parser.EncodePower(model.PowerRecord{Analog: [4]uint16{697}})}
	inputs := &fakeInputs{mode: model.StarterCourse, pressAfter: 50}
	hub := telemetry.NewHub()
	frames := make(chan model.Frame, 256)
	require.NoError(t, hub.Subscribe("test", frames))

	r := NewRobot(testHardware(inputs, bus), fastTiming, 0x50, hub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var f model.Frame
	require.Eventually(t, func() bool {
		for {
			select {
			case f = <-frames:
				if f.MaxSpeed == 12 && f.Heading == 50 && f.Snapshot.Ultrasonic.Valid(model.RightBack) {
					return true
				}
			default:
				return false
			}
		}
	}, 3*time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, inputs.polls.Load(), int32(51), "drive starts only after the button")
	_, err := uuid.Parse(f.RunID)
	assert.NoError(t, err)
	assert.Equal(t, r.RunID(), f.RunID)
	assert.Equal(t, "starter", f.Mode)
	assert.Equal(t, "unknown", f.OuterWall)
	assert.Equal(t, int8(12), f.Intent.DriveSpeed)
	assert.InDelta(t, 6.806, f.Battery, 0.001)

	sent := bus.sent()
	require.GreaterOrEqual(t, len(sent), 2)
	assert.Equal(t, []byte{parser.EncodeLight(0, true), parser.EncodeLight(1, true)}, sent[:2], "boot lights first")

	c, ok := r.Context()
	require.True(t, ok)
	assert.Equal(t, uint32(1500), c.StartLineDistance)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("robot did not stop")
	}
}

type borderRanger struct{}

func (borderRanger) Range(ch model.Channel) (uint32, error) {
	switch ch {
	case model.LeftFront:
		return 100, nil
	case model.CenterFront:
		return 1500, nil
	}
	return 300, nil
}

func TestRobotStatusLights(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		t.Run(fmt.Sprintf("enabled=%t", enabled), func(t *testing.T) {
			bus := &fakeBus{}
			hw := testHardware(&fakeInputs{mode: model.StarterCourse}, bus)
			hw.Ranger = borderRanger{}
			hub := telemetry.NewHub()
			frames := make(chan model.Frame, 256)
			require.NoError(t, hub.Subscribe("test", frames))

			r := NewRobot(hw, fastTiming, 0x50, hub)
			if enabled {
				r.EnableStatusLights()
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- r.Run(ctx) }()

			require.Eventually(t, func() bool {
				for {
					select {
					case f := <-frames:
						if f.Intent.Lights&nav.LightBorder != 0 {
							return true
						}
					default:
						return false
					}
				}
			}, 3*time.Second, 5*time.Millisecond, "telemetry always carries the status bits")
			cancel()
			<-done

			borderOn := bytes.Contains(bus.sent(), []byte{parser.EncodeLight(3, true)})
			assert.Equal(t, enabled, borderOn)
		})
	}
}

func TestRobotBootErrors(t *testing.T) {
	t.Run("course mode", func(t *testing.T) {
		inputs := &fakeInputs{err: errors.New("gpio busy")}
		r := NewRobot(testHardware(inputs, &fakeBus{}), fastTiming, 0x50, nil)
		assert.Error(t, r.Run(context.Background()))
	})

	t.Run("vision link", func(t *testing.T) {
		hw := testHardware(&fakeInputs{}, &fakeBus{})
		hw.Vision = func(model.CourseMode) (<-chan model.VisionRecord, func(), error) {
			return nil, nil, errors.New("no such device")
		}
		r := NewRobot(hw, fastTiming, 0x50, nil)
		assert.Error(t, r.Run(context.Background()))
	})

	t.Run("cancelled while waiting for start", func(t *testing.T) {
		inputs := &fakeInputs{pressAfter: 1 << 30}
		r := NewRobot(testHardware(inputs, &fakeBus{}), fastTiming, 0x50, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, r.Run(ctx), context.DeadlineExceeded)
		assert.Empty(t, r.RunID())
		_, ok := r.Context()
		assert.False(t, ok)
	})
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
global:
  telemetry_format: msgpack
servo:
  transport: serial
  device: /dev/ttyUSB0
  status_lights: true
log:
  debug: [rotation]
`))
	require.NoError(t, err)
	assert.Equal(t, "msgpack", cfg.Global.TelemetryFormat)
	assert.Equal(t, 20, cfg.Global.CycleMs)
	assert.Equal(t, byte(0x50), cfg.Servo.Address)
	assert.True(t, cfg.Servo.StatusLights)
	assert.True(t, cfg.Log.DebugEnabled("rotation"))
	assert.False(t, cfg.Log.DebugEnabled("servo"))

	_, err = LoadConfig(writeConfig(t, "servo: {transport: serial}\n"))
	assert.Error(t, err, "serial transport needs a device")

	_, err = LoadConfig(writeConfig(t, "global: {telemetry_format: xml}\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestSystemRecordsRun(t *testing.T) {
	cfg := &model.Config{Recorder: model.RecorderConfig{Path: filepath.Join(t.TempDir(), "runs.db")}}
	cfg.ApplyDefaults()
	cfg.Global.CycleMs = 2
	cfg.Ultrasonic.SettleMs = 1
	require.NoError(t, cfg.Validate())

	bus := &fakeBus{power: parser.EncodePower(model.PowerRecord{Analog: [4]uint16{717}})}
	s, err := NewSystemWith(cfg, testHardware(&fakeInputs{mode: model.ObstacleCourse}, bus))
	require.NoError(t, err)
	assert.Nil(t, s.App)
	require.NoError(t, s.StartAll())
	require.NoError(t, s.StartAll(), "second start is a no-op")

	require.Eventually(t, func() bool {
		runs, err := s.Recorder.Runs()
		if err != nil || len(runs) != 1 {
			return false
		}
		n, err := s.Recorder.Count(runs[0].ID)
		return err == nil && n >= 3
	}, 3*time.Second, 10*time.Millisecond)

	runs, err := s.Recorder.Runs()
	require.NoError(t, err)
	assert.Equal(t, "obstacle", runs[0].Mode)
	assert.Equal(t, s.Robot.RunID(), runs[0].ID)

	s.StopAll()
	select {
	case err := <-s.Done():
		assert.ErrorIs(t, err, context.Canceled)
	default:
		t.Fatal("robot result not delivered")
	}
}
