package device

import (
	"fmt"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
)

// I2CBus implements Bus on a Linux I2C master through embd.
type I2CBus struct {
	bus embd.I2CBus
}

// NewI2CBus opens the numbered I2C bus (e.g. 1 for /dev/i2c-1).
func NewI2CBus(number byte) *I2CBus {
	return &I2CBus{bus: embd.NewI2CBus(number)}
}

// Write sends payload to the slave at addr.
func (b *I2CBus) Write(addr byte, payload []byte) error {
	if b.bus == nil {
		return ErrNotOpen
	}
	if err := b.bus.WriteBytes(addr, payload); err != nil {
		return fmt.Errorf("i2c write 0x%02x: %w", addr, err)
	}
	return nil
}

// Read requests n bytes from the slave at addr.
func (b *I2CBus) Read(addr byte, n int) ([]byte, error) {
	if b.bus == nil {
		return nil, ErrNotOpen
	}
	data, err := b.bus.ReadBytes(addr, n)
	if err != nil {
		return nil, fmt.Errorf("i2c read 0x%02x: %w", addr, err)
	}
	return data, nil
}

// Close releases the bus.
func (b *I2CBus) Close() error {
	if b.bus == nil {
		return nil
	}
	err := b.bus.Close()
	b.bus = nil
	return err
}
