// Package actuator turns steering, throttle and light intents into servo board commands,
// sending a command byte only when a channel's value changes.
package actuator

import (
	"sync"

	"TerraNav/internal/device"
	"TerraNav/internal/model"
	"TerraNav/internal/parser"
	"TerraNav/internal/util"
)

// Fixed channel assignment on the servo board.
const (
	DriveServo    = 0
	SteeringServo = 1
	ServoChannels = 2
	LightChannels = 8
)

// DefaultAddr is the servo board's bus address.
const DefaultAddr = 0x50

// Gateway deduplicates commands per channel. Writes are fire-and-forget.
type Gateway struct {
	bus  device.Bus
	addr byte

	mu     sync.Mutex
	servo  [ServoChannels]int8
	light  [LightChannels]bool
	sentS  [ServoChannels]bool
	sentL  [LightChannels]bool
	writes uint64
	errors uint64
}

// NewGateway creates a gateway talking to the board at addr.
func NewGateway(bus device.Bus, addr byte) *Gateway {
	return &Gateway{bus: bus, addr: addr}
}

// SetServo sends a servo command unless the clamped magnitude equals the last one sent.
func (g *Gateway) SetServo(ch uint8, magnitude int8) {
	if int(ch) >= ServoChannels {
		util.Warn("[actuator] no servo channel %d", ch)
		return
	}
	m := clamp(magnitude)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sentS[ch] && g.servo[ch] == m {
		return
	}
	g.servo[ch] = m
	g.sentS[ch] = true
	util.Debug("servo", "servo %d -> %d (%d units)", ch, m, parser.PhysicalUnits(m))
	g.send(parser.EncodeServo(ch, m))
}

// SetLight sends a light command unless the state equals the last one sent.
func (g *Gateway) SetLight(ch uint8, on bool) {
	if int(ch) >= LightChannels {
		util.Warn("[actuator] no light channel %d", ch)
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sentL[ch] && g.light[ch] == on {
		return
	}
	g.light[ch] = on
	g.sentL[ch] = true
	g.send(parser.EncodeLight(ch, on))
}

// Apply drives the servos and lights from one intent.
func (g *Gateway) Apply(in model.Intent) {
	g.SetServo(DriveServo, in.DriveSpeed)
	g.SetServo(SteeringServo, in.Steer)
	for i := uint8(0); i < LightChannels; i++ {
		g.SetLight(i, in.Lights&(1<<i) != 0)
	}
}

// Stats returns the number of attempted writes and failed writes.
func (g *Gateway) Stats() (writes, failures uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writes, g.errors
}

// send must be called with mu held. A failed write keeps the cached value.
func (g *Gateway) send(b byte) {
	g.writes++
	if err := g.bus.Write(g.addr, []byte{b}); err != nil {
		g.errors++
		util.Warn("[actuator] write 0x%02x: %v", b, err)
	}
}

func clamp(m int8) int8 {
	if m > parser.MaxServoMagnitude {
		return parser.MaxServoMagnitude
	}
	if m < -parser.MaxServoMagnitude {
		return -parser.MaxServoMagnitude
	}
	return m
}
