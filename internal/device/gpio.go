package device

import (
	"fmt"
	"sync"

	"github.com/kidoman/embd"

	"TerraNav/internal/model"
)

var (
	gpioOnce sync.Once
	gpioErr  error
)

// initGPIO initializes the embd GPIO driver once per process.
func initGPIO() error {
	gpioOnce.Do(func() {
		gpioErr = embd.InitGPIO()
	})
	return gpioErr
}

func inputPin(n int) (embd.DigitalPin, error) {
	pin, err := embd.NewDigitalPin(n)
	if err != nil {
		return nil, fmt.Errorf("gpio %d: %w", n, err)
	}
	if err := pin.SetDirection(embd.In); err != nil {
		_ = pin.Close()
		return nil, fmt.Errorf("gpio %d direction: %w", n, err)
	}
	return pin, nil
}

// GPIOInputs reads the course switches and the start button from GPIO pins.
// A pin number of 0 means the input is not wired.
type GPIOInputs struct {
	start    embd.DigitalPin
	obstacle embd.DigitalPin
	test     embd.DigitalPin
}

// NewGPIOInputs exports the given pins as inputs.
func NewGPIOInputs(startPin, obstaclePin, testPin int) (*GPIOInputs, error) {
	if err := initGPIO(); err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	in := &GPIOInputs{}
	var err error
	if in.start, err = inputPin(startPin); err != nil {
		return nil, err
	}
	if obstaclePin != 0 {
		if in.obstacle, err = inputPin(obstaclePin); err != nil {
			_ = in.Close()
			return nil, err
		}
	}
	if testPin != 0 {
		if in.test, err = inputPin(testPin); err != nil {
			_ = in.Close()
			return nil, err
		}
	}
	return in, nil
}

// CourseMode reads the switches: test wins over obstacle, neither selects the starter course.
func (in *GPIOInputs) CourseMode() (model.CourseMode, error) {
	if in.test != nil {
		v, err := in.test.Read()
		if err != nil {
			return 0, err
		}
		if v == embd.High {
			return model.TestMode, nil
		}
	}
	if in.obstacle != nil {
		v, err := in.obstacle.Read()
		if err != nil {
			return 0, err
		}
		if v == embd.High {
			return model.ObstacleCourse, nil
		}
	}
	return model.StarterCourse, nil
}

// StartPressed reports the start button level.
func (in *GPIOInputs) StartPressed() (bool, error) {
	v, err := in.start.Read()
	if err != nil {
		return false, err
	}
	return v == embd.High, nil
}

// Close unexports the pins.
func (in *GPIOInputs) Close() error {
	for _, p := range []embd.DigitalPin{in.start, in.obstacle, in.test} {
		if p != nil {
			_ = p.Close()
		}
	}
	return nil
}
