package nav

import (
	"math"
	"sync"

	"TerraNav/internal/model"
	"TerraNav/internal/util"
)

// Battery model of the two-cell pack.
const (
	EmptyVolts      = 6.8
	FullVolts       = 7.2
	SpeedWhenEmpty  = 12
	SpeedSpan       = 3
	DefaultMaxSpeed = 9
)

// Governor derives the throttle ceiling from the polled power record: 12 on an empty
// pack down to 9 on a full one.
type Governor struct {
	mu       sync.RWMutex
	maxSpeed int8
	volts    float64
	charge   float64
	updates  uint64
}

// NewGovernor starts at DefaultMaxSpeed until the first record arrives.
func NewGovernor() *Governor {
	return &Governor{maxSpeed: DefaultMaxSpeed}
}

// Update recomputes maxSpeed from a power record and returns it.
func (g *Governor) Update(p model.PowerRecord) int8 {
	v := p.BatteryVolts()
	charge := (v - EmptyVolts) / (FullVolts - EmptyVolts)
	charge = math.Max(0, math.Min(1, charge))
	speed := int8(math.Round(SpeedWhenEmpty - SpeedSpan*charge))

	g.mu.Lock()
	g.volts, g.charge, g.maxSpeed = v, charge, speed
	g.updates++
	g.mu.Unlock()

	util.Debug("battery", "%.2f V, charge %.0f%%, max speed %d, turns %v", v, charge*100, speed, p.MotorTurns)
	return speed
}

// MaxSpeed returns the current throttle ceiling.
func (g *Governor) MaxSpeed() int8 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.maxSpeed
}

// Battery returns the last voltage and charge fraction; ok is false before the first record.
func (g *Governor) Battery() (volts, charge float64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.volts, g.charge, g.updates > 0
}
