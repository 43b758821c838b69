package device

import (
	"errors"
	"io"
	"sync"
	"time"

	"TerraNav/internal/model"
	"TerraNav/internal/parser"
	"TerraNav/internal/util"
)

// VisionAddr is the slave address the vision board pushes its records to.
const VisionAddr = 0x51

// VisionLink receives heading/object records pushed by the vision board over a serial
// stream and answers its course-mode requests.
type VisionLink struct {
	rw     io.ReadWriter
	closer io.Closer
	mode   model.CourseMode

	wmu  sync.Mutex
	once sync.Once
	stop chan struct{}
}

// OpenVisionLink opens the serial device of the vision board.
func OpenVisionLink(dev string, baud int, mode model.CourseMode) (*VisionLink, error) {
	sd, err := NewSerialDevice(dev, baud)
	if err != nil {
		return nil, err
	}
	port, err := sd.Port()
	if err != nil {
		return nil, err
	}
	return NewVisionLink(port, sd, mode), nil
}

// NewVisionLink runs the link over any byte stream. closer may be nil.
func NewVisionLink(rw io.ReadWriter, closer io.Closer, mode model.CourseMode) *VisionLink {
	return &VisionLink{rw: rw, closer: closer, mode: mode, stop: make(chan struct{})}
}

// Start decodes incoming records and pushes them into out until the returned stop
// function is called or the stream ends. out is closed when the reader exits.
func (v *VisionLink) Start(out chan<- model.VisionRecord) func() {
	go func() {
		defer close(out)
		fr := NewFrameReader(v.rw)
		for {
			f, err := fr.ReadFrame()
			if err != nil {
				select {
				case <-v.stop:
					return
				default:
				}
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					util.Warn("[vision] link closed: %v", err)
					return
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}
			if f.Request {
				v.replyCourseMode()
				continue
			}
			rec, err := parser.DecodeVision(f.Payload)
			if err != nil {
				util.Warn("[vision] dropped record: %v", err)
				continue
			}
			select {
			case out <- rec:
			case <-v.stop:
				return
			}
		}
	}()
	return v.Stop
}

func (v *VisionLink) replyCourseMode() {
	v.wmu.Lock()
	defer v.wmu.Unlock()
	err := WriteFrame(v.rw, Frame{Addr: VisionAddr, Payload: []byte{parser.CourseModeByte(v.mode)}})
	if err != nil {
		util.Warn("[vision] course mode reply: %v", err)
	}
}

// Stop terminates the reader and closes the stream.
func (v *VisionLink) Stop() {
	v.once.Do(func() {
		close(v.stop)
		if v.closer != nil {
			if err := v.closer.Close(); err != nil {
				util.Warn("[vision] close: %v", err)
			}
		}
	})
}
