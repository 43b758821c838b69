package parser

// Servo command limits.
const (
	MaxServoChannel   = 3
	MaxLightChannel   = 63
	MaxServoMagnitude = 15
	// ServoUnitStep is the number of physical servo units per magnitude step.
	ServoUnitStep = 6
)

// Command is a decoded actuator command byte.
type Command struct {
	Light     bool
	Channel   uint8
	Magnitude int8 // servo only
	On        bool // light only
}

// EncodeServo builds a servo command byte. The magnitude is clamped to ±15.
func EncodeServo(channel uint8, magnitude int8) byte {
	m := clampMagnitude(magnitude)
	b := (channel & MaxServoChannel) << 5
	if m < 0 {
		b |= 0x10
		m = -m
	}
	return b | byte(m)&0x0f
}

// EncodeLight builds a light command byte.
func EncodeLight(channel uint8, on bool) byte {
	b := byte(0x80) | (channel&MaxLightChannel)<<1
	if on {
		b |= 1
	}
	return b
}

// DecodeCommand parses a command byte as received by the servo board.
func DecodeCommand(b byte) Command {
	if b&0x80 != 0 {
		return Command{Light: true, Channel: (b >> 1) & MaxLightChannel, On: b&1 != 0}
	}
	m := int8(b & 0x0f)
	if b&0x10 != 0 {
		m = -m
	}
	return Command{Channel: (b >> 5) & MaxServoChannel, Magnitude: m}
}

// PhysicalUnits converts a magnitude to the servo board's output units.
func PhysicalUnits(magnitude int8) int {
	return int(clampMagnitude(magnitude)) * ServoUnitStep
}

func clampMagnitude(m int8) int8 {
	if m > MaxServoMagnitude {
		return MaxServoMagnitude
	}
	if m < -MaxServoMagnitude {
		return -MaxServoMagnitude
	}
	return m
}
