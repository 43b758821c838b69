package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TerraNav/internal/actuator"
	"TerraNav/internal/device"
	"TerraNav/internal/model"
	"TerraNav/internal/nav"
	"TerraNav/internal/parser"
	"TerraNav/internal/sensor"
	"TerraNav/internal/telemetry"
	"TerraNav/internal/util"
)

// VisionSource opens the vision link once the course mode is known. It returns the record
// channel and a stop function.
type VisionSource func(mode model.CourseMode) (<-chan model.VisionRecord, func(), error)

// Hardware is everything the robot talks to. Vision may be nil.
type Hardware struct {
	Bus    device.Bus
	Inputs device.Inputs
	Ranger device.Ranger
	Vision VisionSource
}

// Timing paces the robot's tasks.
type Timing struct {
	Cycle     time.Duration // decision loop
	PowerPoll time.Duration
	Settle    time.Duration // per ultrasonic channel
	StartPoll time.Duration // start button
}

// Robot runs the boot sequence and the decision loop of one run.
type Robot struct {
	hw       Hardware
	timing   Timing
	addr     byte
	ingest   *sensor.Ingest
	gateway  *actuator.Gateway
	governor *nav.Governor
	hub      *telemetry.Hub
	now      func() time.Time
	lights   uint8 // light channels driven on the board; the rest stay in telemetry only

	mu      sync.RWMutex
	runID   string
	machine *nav.Machine
}

// NewRobot wires the components around the given hardware.
func NewRobot(hw Hardware, timing Timing, servoAddr byte, hub *telemetry.Hub) *Robot {
	if timing.Cycle <= 0 {
		timing.Cycle = 20 * time.Millisecond
	}
	if timing.PowerPoll <= 0 {
		timing.PowerPoll = time.Second
	}
	if timing.StartPoll <= 0 {
		timing.StartPoll = 20 * time.Millisecond
	}
	return &Robot{
		hw:       hw,
		timing:   timing,
		addr:     servoAddr,
		ingest:   sensor.NewIngest(),
		gateway:  actuator.NewGateway(hw.Bus, servoAddr),
		governor: nav.NewGovernor(),
		hub:      hub,
		now:      time.Now,
		lights:   nav.LightsBoot,
	}
}

// EnableStatusLights also drives the curve, border, lane and finished lights on the servo
// board. Without it only lights 0 and 1 are switched.
func (r *Robot) EnableStatusLights() {
	r.lights = 0xff
}

// RunID returns the id of the current run, empty before the start signal.
func (r *Robot) RunID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runID
}

// Context returns the navigation context of the current run.
func (r *Robot) Context() (nav.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.machine == nil {
		return nav.Context{}, false
	}
	return r.machine.Context(), true
}

// Run boots the robot, waits for the start button and drives until the run finishes or
// ctx ends.
func (r *Robot) Run(ctx context.Context) error {
	r.gateway.SetLight(0, true)
	r.gateway.SetLight(1, true)

	mode, err := r.hw.Inputs.CourseMode()
	if err != nil {
		return fmt.Errorf("[robot] read course mode: %w", err)
	}
	util.Info("[robot] course mode %s", mode)

	tasks, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if r.hw.Vision != nil {
		records, stop, err := r.hw.Vision(mode)
		if err != nil {
			return fmt.Errorf("[robot] open vision link: %w", err)
		}
		defer stop()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.ingest.RunVision(tasks, records)
		}()
	} else {
		util.Warn("[robot] no vision link, heading stays at 0")
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.ingest.RunRanging(tasks, r.hw.Ranger, r.timing.Settle)
	}()
	go func() {
		defer wg.Done()
		r.pollPower(tasks)
	}()

	if err := r.waitForStart(ctx); err != nil {
		return err
	}
	return r.drive(ctx, mode)
}

func (r *Robot) waitForStart(ctx context.Context) error {
	util.Info("[robot] waiting for start button")
	ticker := time.NewTicker(r.timing.StartPoll)
	defer ticker.Stop()
	for {
		pressed, err := r.hw.Inputs.StartPressed()
		if err != nil {
			util.Warn("[robot] start button: %v", err)
		}
		if pressed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Robot) drive(ctx context.Context, mode model.CourseMode) error {
	start := r.now()
	m := nav.NewMachine(mode, start, r.ingest.Snapshot())
	id := uuid.NewString()
	r.mu.Lock()
	r.runID, r.machine = id, m
	r.mu.Unlock()
	util.Info("[robot] run %s started, start line %d mm", id, m.Context().StartLineDistance)

	ticker := time.NewTicker(r.timing.Cycle)
	defer ticker.Stop()
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			r.gateway.Apply(model.Intent{Lights: nav.LightsBoot})
			return ctx.Err()
		case <-ticker.C:
		}

		now := r.now()
		snap := r.ingest.Snapshot()
		maxSpeed := r.governor.MaxSpeed()
		r.mu.Lock()
		intent := m.Step(snap, maxSpeed, now)
		c := m.Context()
		r.mu.Unlock()
		applied := intent
		applied.Lights &= r.lights
		r.gateway.Apply(applied)

		seq++
		r.publish(id, seq, now, snap, c, intent, maxSpeed)
		if c.Finished {
			util.Info("[robot] run %s finished after %s", id, now.Sub(start).Round(time.Millisecond))
			return nil
		}
	}
}

func (r *Robot) publish(id string, seq uint64, now time.Time, snap model.Snapshot, c nav.Context, in model.Intent, maxSpeed int8) {
	if r.hub == nil {
		return
	}
	volts, _, _ := r.governor.Battery()
	r.hub.Publish(model.Frame{
		RunID:      id,
		Seq:        seq,
		Time:       now,
		Mode:       c.Mode.String(),
		OuterWall:  c.OuterWall.String(),
		CurveCount: c.CurveCount,
		Substate:   c.Drive.Substate.String(),
		Direction:  c.Drive.Direction.String(),
		Heading:    int32(snap.Heading),
		Delta:      c.HeadingDelta(snap.Heading),
		Snapshot:   snap,
		Intent:     in,
		MaxSpeed:   maxSpeed,
		Battery:    volts,
		Finished:   c.Finished,
	})
}

func (r *Robot) pollPower(ctx context.Context) {
	ticker := time.NewTicker(r.timing.PowerPoll)
	defer ticker.Stop()
	for {
		r.readPower()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Robot) readPower() {
	data, err := r.hw.Bus.Read(r.addr, parser.PowerRecordSize)
	if err != nil {
		util.Debug("battery", "power read: %v", err)
		return
	}
	rec, err := parser.DecodePower(data)
	if err != nil {
		util.Warn("[robot] power record: %v", err)
		return
	}
	r.governor.Update(rec)
}
