package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TerraNav/internal/model"
)

type scriptedRanger struct {
	mu    sync.Mutex
	calls []model.Channel
	dist  map[model.Channel]uint32
	fail  model.Channel
}

func (r *scriptedRanger) Range(ch model.Channel) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ch)
	if ch == r.fail {
		return 999, errors.New("echo timeout")
	}
	return r.dist[ch], nil
}

func (r *scriptedRanger) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestRunRangingSweepsInOrder(t *testing.T) {
	r := &scriptedRanger{
		dist: map[model.Channel]uint32{
			model.LeftFront: 300, model.CenterFront: 1500, model.RightFront: 420,
			model.LeftBack: 310, model.CenterBack: 900,
		},
		fail: model.RightBack,
	}
	in := NewIngest()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		in.RunRanging(ctx, r, time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.callCount() >= 7 }, time.Second, time.Millisecond)
	cancel()
	<-done

	r.mu.Lock()
	assert.Equal(t, model.Channels(), r.calls[:6])
	assert.Equal(t, model.LeftFront, r.calls[6])
	r.mu.Unlock()

	snap := in.Snapshot()
	assert.Equal(t, uint32(300), snap.Ultrasonic.Distance[model.LeftFront])
	assert.Equal(t, uint32(1500), snap.Ultrasonic.Distance[model.CenterFront])
	assert.Equal(t, uint32(0), snap.Ultrasonic.Distance[model.RightBack], "failed channel reads as unknown")
	assert.False(t, snap.Ultrasonic.Valid(model.RightBack))
	for _, ch := range model.Channels() {
		assert.False(t, snap.Ultrasonic.Updated[ch].IsZero(), "channel %s has its own timestamp", ch)
	}
}

func TestUpdateVision(t *testing.T) {
	in := NewIngest()
	in.UpdateVision(model.VisionRecord{
		Heading: 120,
		Object:  &model.ObjectDetection{Color: model.Red, Side: model.SideLeft, Angle: 3},
	})
	snap := in.Snapshot()
	assert.Equal(t, model.Heading(120), snap.Heading)
	require.NotNil(t, snap.Object)
	assert.Equal(t, model.Red, snap.Object.Color)

	t.Run("heading-only keeps detection", func(t *testing.T) {
		in.UpdateVision(model.VisionRecord{Heading: 130, HeadingOnly: true})
		snap := in.Snapshot()
		assert.Equal(t, model.Heading(130), snap.Heading)
		assert.NotNil(t, snap.Object)
	})

	t.Run("record without object clears detection", func(t *testing.T) {
		in.UpdateVision(model.VisionRecord{Heading: 140})
		assert.Nil(t, in.Snapshot().Object)
		seq, at := in.VisionSeq()
		assert.Equal(t, uint64(3), seq)
		assert.False(t, at.IsZero())
	})
}

func TestSnapshotIsACopy(t *testing.T) {
	in := NewIngest()
	in.UpdateVision(model.VisionRecord{Object: &model.ObjectDetection{Angle: 5}})
	snap := in.Snapshot()
	snap.Object.Angle = 30
	snap.Ultrasonic.Distance[model.LeftFront] = 42
	again := in.Snapshot()
	assert.Equal(t, uint8(5), again.Object.Angle)
	assert.Equal(t, uint32(0), again.Ultrasonic.Distance[model.LeftFront])
}

func TestRunVisionUntilChannelClosed(t *testing.T) {
	in := NewIngest()
	records := make(chan model.VisionRecord, 2)
	records <- model.VisionRecord{Heading: 10}
	records <- model.VisionRecord{Heading: -900}
	close(records)

	in.RunVision(context.Background(), records)
	assert.Equal(t, model.Heading(-900), in.Snapshot().Heading)
}

func TestConcurrentWritersAndReader(t *testing.T) {
	in := NewIngest()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			in.UpdateRange(model.Channel(i%model.ChannelCount), uint32(i+1), time.Now())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			in.UpdateVision(model.VisionRecord{Heading: model.Heading(i)})
		}
	}()
	for i := 0; i < 1000; i++ {
		_ = in.Snapshot()
	}
	wg.Wait()
	assert.Equal(t, model.Heading(999), in.Snapshot().Heading)
}
