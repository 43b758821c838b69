package device

import (
	"fmt"
	"io"
	"sync"
	"time"

	"TerraNav/internal/util"
)

// DefaultReadTimeout bounds a read transaction on a serial bridge.
const DefaultReadTimeout = 200 * time.Millisecond

// SerialBus implements Bus over a framed serial bridge to the servo board.
type SerialBus struct {
	mu      sync.Mutex // serializes transactions
	w       io.Writer
	closer  io.Closer
	frames  chan Frame
	done    chan struct{}
	once    sync.Once
	Timeout time.Duration
}

// NewSerialBus opens the serial device and starts its frame reader.
func NewSerialBus(dev string, baud int) (*SerialBus, error) {
	sd, err := NewSerialDevice(dev, baud)
	if err != nil {
		return nil, err
	}
	port, err := sd.Port()
	if err != nil {
		return nil, err
	}
	return NewStreamBus(port, sd), nil
}

// NewStreamBus runs the bus protocol over any byte stream. closer may be nil.
func NewStreamBus(rw io.ReadWriter, closer io.Closer) *SerialBus {
	b := &SerialBus{
		w:       rw,
		closer:  closer,
		frames:  make(chan Frame, 4),
		done:    make(chan struct{}),
		Timeout: DefaultReadTimeout,
	}
	go b.readLoop(NewFrameReader(rw))
	return b
}

func (b *SerialBus) readLoop(fr *FrameReader) {
	for {
		f, err := fr.ReadFrame()
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				util.Warn("[serial-bus] stream closed: %v", err)
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		select {
		case b.frames <- f:
		default:
			// nobody is waiting for this answer
		}
	}
}

// Write sends payload to the board at addr.
func (b *SerialBus) Write(addr byte, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return WriteFrame(b.w, Frame{Addr: addr, Payload: payload})
}

// Read requests n bytes from the board at addr and waits for its answer.
func (b *SerialBus) Read(addr byte, n int) ([]byte, error) {
	if n <= 0 || n > maxFrameLen {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	// drop stale answers
	for {
		select {
		case <-b.frames:
			continue
		default:
		}
		break
	}

	if err := WriteFrame(b.w, Frame{Addr: addr, Request: true, Payload: []byte{byte(n)}}); err != nil {
		return nil, err
	}
	deadline := time.NewTimer(b.Timeout)
	defer deadline.Stop()
	for {
		select {
		case f := <-b.frames:
			if f.Addr != addr || f.Request {
				continue
			}
			if len(f.Payload) < n {
				return nil, fmt.Errorf("board 0x%02x answered %d of %d bytes", addr, len(f.Payload), n)
			}
			return f.Payload[:n], nil
		case <-deadline.C:
			return nil, fmt.Errorf("board 0x%02x: %w", addr, ErrTimeout)
		case <-b.done:
			return nil, ErrNotOpen
		}
	}
}

// Close stops the reader and closes the stream.
func (b *SerialBus) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		if b.closer != nil {
			err = b.closer.Close()
		}
	})
	return err
}
