// Package device implements SerialDevice using go.bug.st/serial,
// which carries the vision link and the optional serial bridge to the servo board.
package device

import (
	"fmt"
	"io"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

// SerialDevice wraps a serial.Port with open/close bookkeeping.
type SerialDevice struct {
	mu   sync.Mutex
	port serial.Port
	dev  string
	baud int
}

// NewSerialDevice creates and opens a serial device with the given path and baudrate.
func NewSerialDevice(dev string, baud int) (*SerialDevice, error) {
	s := &SerialDevice{dev: dev, baud: baud}
	if err := s.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open ensures that the serial port is ready for use.
func (s *SerialDevice) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return nil
	}
	p, err := serial.Open(s.dev, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		return fmt.Errorf("failed to open serial %s: %w", s.dev, err)
	}
	s.port = p
	return nil
}

// Close closes the underlying serial connection.
func (s *SerialDevice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Port returns the open port as a stream, or ErrNotOpen.
func (s *SerialDevice) Port() (io.ReadWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil, ErrNotOpen
	}
	return s.port, nil
}

// SetReadTimeout bounds blocking reads on the port.
func (s *SerialDevice) SetReadTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return ErrNotOpen
	}
	return s.port.SetReadTimeout(d)
}

// String returns the device path.
func (s *SerialDevice) String() string {
	return s.dev
}
