package device

import (
	"fmt"
	"time"

	"github.com/kidoman/embd"

	"TerraNav/internal/model"
)

const (
	triggerPulse = 10 * time.Microsecond
	// EchoTimeout bounds the whole echo wait, a little above the round trip at 4 m.
	EchoTimeout = 35 * time.Millisecond
)

// levelPin is the part of embd.DigitalPin the echo timing needs.
type levelPin interface {
	Read() (int, error)
}

// measureEcho waits for pin to go high and times the high pulse. Both waits share one
// deadline; running out of it reports a zero pulse, i.e. no echo.
func measureEcho(pin levelPin, timeout time.Duration) (time.Duration, error) {
	deadline := time.Now().Add(timeout)
	var rise time.Time
	for {
		v, err := pin.Read()
		if err != nil {
			return 0, err
		}
		now := time.Now()
		if rise.IsZero() {
			if v == embd.High {
				rise = now
			}
		} else if v == embd.Low {
			return now.Sub(rise), nil
		}
		if now.After(deadline) {
			return 0, nil
		}
	}
}

type echoPair struct {
	trig embd.DigitalPin
	echo embd.DigitalPin
}

// UltrasonicArray ranges the six HC-SR04 style sensors through embd GPIO.
type UltrasonicArray struct {
	pairs [model.ChannelCount]echoPair
}

// NewUltrasonicArray exports one trigger and one echo pin per channel, in channel order.
func NewUltrasonicArray(trigPins, echoPins []int) (*UltrasonicArray, error) {
	if len(trigPins) != model.ChannelCount || len(echoPins) != model.ChannelCount {
		return nil, fmt.Errorf("need %d trigger and echo pins", model.ChannelCount)
	}
	if err := initGPIO(); err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	u := &UltrasonicArray{}
	for i := range u.pairs {
		trig, err := embd.NewDigitalPin(trigPins[i])
		if err != nil {
			_ = u.Close()
			return nil, fmt.Errorf("trig gpio %d: %w", trigPins[i], err)
		}
		u.pairs[i].trig = trig
		if err := trig.SetDirection(embd.Out); err != nil {
			_ = u.Close()
			return nil, err
		}
		if err := trig.Write(embd.Low); err != nil {
			_ = u.Close()
			return nil, err
		}
		echo, err := inputPin(echoPins[i])
		if err != nil {
			_ = u.Close()
			return nil, err
		}
		u.pairs[i].echo = echo
	}
	return u, nil
}

// Range fires the trigger and times the echo pulse. A missing or stuck echo yields 0 after
// EchoTimeout.
func (u *UltrasonicArray) Range(ch model.Channel) (uint32, error) {
	if int(ch) >= model.ChannelCount {
		return 0, fmt.Errorf("no ultrasonic channel %d", ch)
	}
	p := u.pairs[ch]
	if err := p.trig.Write(embd.High); err != nil {
		return 0, err
	}
	time.Sleep(triggerPulse)
	if err := p.trig.Write(embd.Low); err != nil {
		return 0, err
	}
	pulse, err := measureEcho(p.echo, EchoTimeout)
	if err != nil {
		return 0, fmt.Errorf("%s echo: %w", ch, err)
	}
	return EchoToMillimeters(pulse), nil
}

// Close unexports all pins.
func (u *UltrasonicArray) Close() error {
	for _, p := range u.pairs {
		if p.trig != nil {
			_ = p.trig.Close()
		}
		if p.echo != nil {
			_ = p.echo.Close()
		}
	}
	return nil
}
