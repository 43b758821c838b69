package device

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/kidoman/embd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TerraNav/internal/model"
	"TerraNav/internal/parser"
)

func TestFrameRoundTripWithResync(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x13, 0x37}) // line noise before the first sync
	require.NoError(t, WriteFrame(&buf, Frame{Addr: 0x50, Payload: []byte{0x2f}}))
	require.NoError(t, WriteFrame(&buf, Frame{Addr: 0x50, Request: true, Payload: []byte{16}}))

	fr := NewFrameReader(&buf)
	f, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, Frame{Addr: 0x50, Payload: []byte{0x2f}}, f)

	f, err = fr.ReadFrame()
	require.NoError(t, err)
	assert.True(t, f.Request)
	assert.Equal(t, []byte{16}, f.Payload)
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	err := WriteFrame(&bytes.Buffer{}, Frame{Addr: 1, Payload: make([]byte, 300)})
	assert.Error(t, err)
}

// fakeBoard answers bus transactions on the far end of a pipe.
func fakeBoard(t *testing.T, conn net.Conn, answer []byte, written chan<- []byte) {
	t.Helper()
	go func() {
		fr := NewFrameReader(conn)
		for {
			f, err := fr.ReadFrame()
			if err != nil {
				return
			}
			if f.Request {
				_ = WriteFrame(conn, Frame{Addr: f.Addr, Payload: answer[:f.Payload[0]]})
				continue
			}
			written <- f.Payload
		}
	}()
}

func TestSerialBus(t *testing.T) {
	busEnd, boardEnd := net.Pipe()
	defer boardEnd.Close()

	power := parser.EncodePower(model.PowerRecord{Analog: [4]uint16{720, 0, 0, 0}})
	written := make(chan []byte, 4)
	fakeBoard(t, boardEnd, power, written)

	bus := NewStreamBus(busEnd, busEnd)
	defer bus.Close()

	require.NoError(t, bus.Write(0x50, []byte{0x81}))
	select {
	case got := <-written:
		assert.Equal(t, []byte{0x81}, got)
	case <-time.After(time.Second):
		t.Fatal("board never received the command")
	}

	data, err := bus.Read(0x50, parser.PowerRecordSize)
	require.NoError(t, err)
	rec, err := parser.DecodePower(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(720), rec.Analog[0])
}

func TestSerialBusReadTimeout(t *testing.T) {
	busEnd, boardEnd := net.Pipe()
	defer boardEnd.Close()
	go func() {
		// swallow everything, never answer
		buf := make([]byte, 64)
		for {
			if _, err := boardEnd.Read(buf); err != nil {
				return
			}
		}
	}()

	bus := NewStreamBus(busEnd, busEnd)
	bus.Timeout = 20 * time.Millisecond
	defer bus.Close()

	_, err := bus.Read(0x50, 4)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestVisionLink(t *testing.T) {
	linkEnd, boardEnd := net.Pipe()
	defer boardEnd.Close()

	link := NewVisionLink(linkEnd, linkEnd, model.ObstacleCourse)
	out := make(chan model.VisionRecord, 1)
	stop := link.Start(out)
	defer stop()

	rec := model.VisionRecord{Heading: 455, Object: &model.ObjectDetection{Color: model.Green, Side: model.SideRight, Angle: 12}}
	require.NoError(t, WriteFrame(boardEnd, Frame{Addr: VisionAddr, Payload: parser.EncodeVision(rec)}))

	select {
	case got := <-out:
		assert.Equal(t, model.Heading(455), got.Heading)
		require.NotNil(t, got.Object)
		assert.Equal(t, *rec.Object, *got.Object)
	case <-time.After(time.Second):
		t.Fatal("no vision record delivered")
	}

	t.Run("answers course mode requests", func(t *testing.T) {
		require.NoError(t, WriteFrame(boardEnd, Frame{Addr: VisionAddr, Request: true, Payload: []byte{1}}))
		f, err := NewFrameReader(boardEnd).ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, []byte{2}, f.Payload)
	})
}

func TestEchoToMillimeters(t *testing.T) {
	assert.Equal(t, uint32(171), EchoToMillimeters(1000*time.Microsecond))
	assert.Equal(t, uint32(0), EchoToMillimeters(0))
}

type scriptedEcho struct {
	start      time.Time
	rise, fall time.Duration
	err        error
}

func (p scriptedEcho) Read() (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if e := time.Since(p.start); e >= p.rise && e < p.fall {
		return embd.High, nil
	}
	return embd.Low, nil
}

func TestMeasureEcho(t *testing.T) {
	t.Run("pulse", func(t *testing.T) {
		pin := scriptedEcho{start: time.Now(), rise: time.Millisecond, fall: 3 * time.Millisecond}
		pulse, err := measureEcho(pin, EchoTimeout)
		require.NoError(t, err)
		assert.Greater(t, pulse, time.Duration(0))
		assert.Less(t, pulse, EchoTimeout)
	})

	t.Run("silent echo", func(t *testing.T) {
		pin := scriptedEcho{start: time.Now(), rise: time.Hour, fall: time.Hour}
		begin := time.Now()
		pulse, err := measureEcho(pin, EchoTimeout)
		require.NoError(t, err)
		assert.Zero(t, pulse)
		assert.Less(t, time.Since(begin), 10*EchoTimeout)
	})

	t.Run("stuck high", func(t *testing.T) {
		pin := scriptedEcho{start: time.Now(), fall: time.Hour}
		begin := time.Now()
		pulse, err := measureEcho(pin, EchoTimeout)
		require.NoError(t, err)
		assert.Zero(t, pulse)
		assert.Less(t, time.Since(begin), 10*EchoTimeout)
	})

	t.Run("read error", func(t *testing.T) {
		_, err := measureEcho(scriptedEcho{err: errors.New("gpio gone")}, EchoTimeout)
		assert.Error(t, err)
	})
}
