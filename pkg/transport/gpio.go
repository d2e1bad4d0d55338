package transport

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpioreg"
	"periph.io/x/host/v3"
)

var hostInitOnce sync.Once
var hostInitErr error

func ensureHostInit() error {
	hostInitOnce.Do(func() {
		_, hostInitErr = host.Init()
	})
	return hostInitErr
}

// GPIOLine wraps a single periph.io pin, used both for the UART1 TX line
// during 5-baud init and for sampling the ECU's sync byte on a second
// board in simulator mode.
type GPIOLine struct {
	pin gpio.PinIO
}

// OpenGPIO resolves a pin by name (board-specific: whatever host.Init's
// driver registry exposes, e.g. "GPIO14" on a bcm283x board) and returns a
// handle to it. The pin's direction is not set; call Direction before use.
func OpenGPIO(name string) (*GPIOLine, error) {
	if err := ensureHostInit(); err != nil {
		return nil, fmt.Errorf("%w: host init: %v", ErrIO, err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: no such gpio line %q", ErrIO, name)
	}
	return &GPIOLine{pin: pin}, nil
}

// Direction configures the pin as output (out=true) or input with a pull-up
// and both-edge detection, the mode 5-baud init needs to sample the ECU's
// address-complement reply and the sync byte.
func (g *GPIOLine) Direction(out bool) error {
	if out {
		if err := g.pin.Out(gpio.High); err != nil {
			return fmt.Errorf("%w: gpio out: %v", ErrIO, err)
		}
		return nil
	}
	if err := g.pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return fmt.Errorf("%w: gpio in: %v", ErrIO, err)
	}
	return nil
}

// Write drives the line high or low. Used for bit-banging the 5-baud
// address sequence at one bit per 200ms.
func (g *GPIOLine) Write(level bool) error {
	l := gpio.Low
	if level {
		l = gpio.High
	}
	if err := g.pin.Out(l); err != nil {
		return fmt.Errorf("%w: gpio write: %v", ErrIO, err)
	}
	return nil
}

// Read samples the current level; used by simulator mode to poll the
// address line at 50Hz while waiting for the 5-baud sequence.
func (g *GPIOLine) Read() bool {
	return g.pin.Read() == gpio.High
}

// WaitEdge blocks until an edge is detected or deadline passes, reporting
// whether an edge actually occurred.
func (g *GPIOLine) WaitEdge(deadline time.Time) (bool, error) {
	timeout := time.Until(deadline)
	if timeout < 0 {
		timeout = 0
	}
	if !g.pin.WaitForEdge(timeout) {
		return false, nil
	}
	return true, nil
}
