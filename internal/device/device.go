// Package device defines the hardware-facing interfaces of the navigation board and their
// implementations on embd (I2C, GPIO) and go.bug.st/serial.
package device

import (
	"errors"
	"time"

	"TerraNav/internal/model"
)

var (
	// ErrNotOpen is returned when a device is used before Open or after Close.
	ErrNotOpen = errors.New("device not open")
	// ErrTimeout is returned when a read did not complete in time.
	ErrTimeout = errors.New("read timeout")
)

// Bus is a master-side byte bus addressing slave boards (I2C or a serial bridge).
type Bus interface {
	// Write sends payload to the board at addr.
	Write(addr byte, payload []byte) error

	// Read requests n bytes from the board at addr.
	Read(addr byte, n int) ([]byte, error)

	// Close releases the underlying resources.
	Close() error
}

// Ranger measures one ultrasonic channel. A distance of 0 means no echo.
type Ranger interface {
	Range(ch model.Channel) (uint32, error)
}

// Inputs exposes the discrete switches and the start button.
type Inputs interface {
	// CourseMode reads the course switches.
	CourseMode() (model.CourseMode, error)

	// StartPressed reports whether the start button is currently held.
	StartPressed() (bool, error)

	Close() error
}

// EchoToMillimeters converts an echo pulse width to a distance (speed of sound, round trip).
func EchoToMillimeters(pulse time.Duration) uint32 {
	return uint32(float64(pulse.Microseconds()) * 0.1716)
}
