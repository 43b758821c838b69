package sim

import (
	"context"
	"fmt"
	"io"
	"time"

	"TerraNav/internal/device"
	"TerraNav/internal/model"
	"TerraNav/internal/parser"
	"TerraNav/internal/util"
)

// VisionSource streams the simulated gyro heading in-process. The returned function has the
// shape the robot expects for its vision source.
func (w *World) VisionSource(period time.Duration) func(model.CourseMode) (<-chan model.VisionRecord, func(), error) {
	return func(model.CourseMode) (<-chan model.VisionRecord, func(), error) {
		out := make(chan model.VisionRecord, 8)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			defer close(out)
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				select {
				case out <- model.VisionRecord{Heading: w.Heading()}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, cancel, nil
	}
}

// RunVisionBoard plays the vision board on a serial stream: it asks for the course mode once,
// then pushes a heading record every period until ctx ends or the stream fails.
func (w *World) RunVisionBoard(ctx context.Context, rw io.ReadWriter, period time.Duration) error {
	if err := device.WriteFrame(rw, device.Frame{Addr: device.VisionAddr, Request: true, Payload: []byte{1}}); err != nil {
		return fmt.Errorf("course mode request: %w", err)
	}
	go func() {
		fr := device.NewFrameReader(rw)
		for {
			f, err := fr.ReadFrame()
			if err != nil {
				return
			}
			if len(f.Payload) == 1 {
				util.Info("[sim] vision board got course mode %d", f.Payload[0])
			}
		}
	}()

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		rec := parser.EncodeVision(model.VisionRecord{Heading: w.Heading()})
		if err := device.WriteFrame(rw, device.Frame{Addr: device.VisionAddr, Payload: rec}); err != nil {
			return fmt.Errorf("heading push: %w", err)
		}
	}
}
