package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Serial links carry I2C-style transactions as frames:
//
//	SYNC(0xA5) | HDR | LEN | PAYLOAD[LEN]
//
// HDR is the 7-bit board address; bit 7 marks a read request whose one-byte payload is the
// number of bytes wanted. The answer is a plain frame from the same address.
const (
	frameSync   = 0xA5
	readFlag    = 0x80
	maxFrameLen = 0xff
)

// Frame is one transaction on a serial link.
type Frame struct {
	Addr    byte
	Request bool
	Payload []byte
}

// WriteFrame encodes f onto w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > maxFrameLen {
		return fmt.Errorf("frame payload of %d bytes exceeds %d", len(f.Payload), maxFrameLen)
	}
	hdr := f.Addr & 0x7f
	if f.Request {
		hdr |= readFlag
	}
	buf := make([]byte, 0, 3+len(f.Payload))
	buf = append(buf, frameSync, hdr, byte(len(f.Payload)))
	buf = append(buf, f.Payload...)
	_, err := w.Write(buf)
	return err
}

// FrameReader decodes frames from a stream, skipping bytes until the sync marker.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadFrame blocks until a whole frame is available.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b == frameSync {
			break
		}
	}
	var head [2]byte
	if _, err := io.ReadFull(fr.r, head[:]); err != nil {
		return Frame{}, err
	}
	payload := make([]byte, head[1])
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return Frame{
		Addr:    head[0] & 0x7f,
		Request: head[0]&readFlag != 0,
		Payload: payload,
	}, nil
}
