// Package sensor keeps the freshest value of every asynchronous input (ultrasonic array,
// relayed heading, object detection) and hands the decision loop a consistent snapshot.
package sensor

import (
	"context"
	"sync"
	"time"

	"TerraNav/internal/device"
	"TerraNav/internal/model"
	"TerraNav/internal/util"
)

// DefaultSettle is the pause between two channels of a ranging sweep.
const DefaultSettle = 30 * time.Millisecond

// Ingest is written by the ranging task and the vision link, and read by the decision loop.
type Ingest struct {
	mu         sync.RWMutex
	ultrasonic model.UltrasonicReading
	heading    model.Heading
	object     *model.ObjectDetection
	visionAt   time.Time
	visionSeq  uint64

	now func() time.Time
}

// NewIngest creates an empty ingest; every channel starts unknown.
func NewIngest() *Ingest {
	return &Ingest{now: time.Now}
}

// Snapshot returns a copy of the latest values regardless of their age.
func (in *Ingest) Snapshot() model.Snapshot {
	in.mu.RLock()
	defer in.mu.RUnlock()
	snap := model.Snapshot{Ultrasonic: in.ultrasonic, Heading: in.heading}
	if in.object != nil {
		obj := *in.object
		snap.Object = &obj
	}
	return snap
}

// VisionSeq counts accepted vision records; it lets callers see whether the link is alive.
func (in *Ingest) VisionSeq() (uint64, time.Time) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.visionSeq, in.visionAt
}

// UpdateRange stores one channel's distance with its own timestamp.
func (in *Ingest) UpdateRange(ch model.Channel, mm uint32, at time.Time) {
	if int(ch) >= model.ChannelCount {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.ultrasonic.Distance[ch] = mm
	in.ultrasonic.Updated[ch] = at
}

// UpdateVision stores a vision record. A heading-only record leaves the detection untouched.
func (in *Ingest) UpdateVision(rec model.VisionRecord) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.heading = rec.Heading
	if !rec.HeadingOnly {
		if rec.Object != nil {
			obj := *rec.Object
			in.object = &obj
		} else {
			in.object = nil
		}
	}
	in.visionAt = in.now()
	in.visionSeq++
}

// RunRanging sweeps the six channels in order, one every settle interval, until ctx ends.
// A ranging error stores 0 for that channel.
func (in *Ingest) RunRanging(ctx context.Context, r device.Ranger, settle time.Duration) {
	if settle <= 0 {
		settle = DefaultSettle
	}
	ticker := time.NewTicker(settle)
	defer ticker.Stop()

	next := model.LeftFront
	for {
		mm, err := r.Range(next)
		if err != nil {
			util.Debug("ultrasonic", "%s: %v", next, err)
			mm = 0
		}
		in.UpdateRange(next, mm, in.now())
		util.Debug("ultrasonic", "%s %d mm", next, mm)
		next = (next + 1) % model.ChannelCount

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunVision consumes vision records until the channel is closed or ctx ends.
func (in *Ingest) RunVision(ctx context.Context, records <-chan model.VisionRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			in.UpdateVision(rec)
			util.Debug("rotation", "heading %.1f°", float64(rec.Heading)/10)
		}
	}
}
