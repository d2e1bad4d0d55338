// Package kline implements the half-duplex K-line byte driver shared by the
// KWP1281 and KWP2000 sessions: echo-cancelled send, timed receive,
// sync-byte baud measurement, and the 5-baud address init sequence.
package kline

import (
	"fmt"
	"log/slog"
	"time"
)

const interByteGap = 5 * time.Millisecond

// lineMode tracks which peripheral currently owns the shared TX pin: the
// UART during normal byte I/O, or the GPIO during 5-baud bit-banging. The
// shared pin is a scoped-ownership switch, not an independent resource.
type lineMode int

const (
	uartMode lineMode = iota
	gpioMode
)

var knownBauds = []int{1200, 2400, 4800, 9600, 10400}

// SerialDevice is the byte-stream side of the line, satisfied by
// *transport.SerialPort and, in tests, by an in-process pipe.
type SerialDevice interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetBaud(baud int) error
}

// GPIODevice is the bit-bang side of the line, satisfied by
// *transport.GPIOLine and, in tests, by a fake that just records writes.
type GPIODevice interface {
	Direction(out bool) error
	Write(level bool) error
	Read() bool
	WaitEdge(deadline time.Time) (bool, error)
}

// Driver owns the serial device and the GPIO line aliased to its TX pin.
type Driver struct {
	serial SerialDevice
	gpio   GPIODevice
	mode   lineMode
	logger *slog.Logger
}

// NewDriver wraps an already-open serial device and GPIO line. logger
// defaults to slog.Default() if nil.
func NewDriver(serial SerialDevice, gpioLine GPIODevice, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{serial: serial, gpio: gpioLine, mode: uartMode, logger: logger}
}

// acquireGPIO releases the UART's hold on the shared pin and switches it to
// GPIO control for 5-baud bit-banging. Always paired with releaseGPIO via
// defer, including on early-return error paths.
func (d *Driver) acquireGPIO() error {
	d.mode = gpioMode
	return d.gpio.Direction(true)
}

// PrepareRXSampling switches the line to GPIO input, used by simulator mode
// before polling the address line for a tester's 5-baud frame.
func (d *Driver) PrepareRXSampling() error {
	d.mode = gpioMode
	return d.gpio.Direction(false)
}

// SampleRX reads the current level of the GPIO line, used by simulator mode
// to poll the address line at 50Hz while decoding a tester's 5-baud frame.
func (d *Driver) SampleRX() bool {
	return d.gpio.Read()
}

// releaseGPIO restores UART ownership of the shared pin after init.
func (d *Driver) releaseGPIO() {
	d.mode = uartMode
}

// Send writes data one byte at a time, reading back the half-duplex echo
// after each and asserting it matches, waiting interByteGap between bytes
// to give the ECU time to respond.
func (d *Driver) Send(data []byte) error {
	for i, b := range data {
		if _, err := d.serial.Write([]byte{b}); err != nil {
			return fmt.Errorf("kline: write: %w", err)
		}
		echo := make([]byte, 1)
		if err := d.readExact(echo, time.Now().Add(100*time.Millisecond)); err != nil {
			return err
		}
		if echo[0] != b {
			return fmt.Errorf("%w: sent %#02x got %#02x", ErrEchoMismatch, b, echo[0])
		}
		if i < len(data)-1 {
			time.Sleep(interByteGap)
		}
	}
	return nil
}

// Receive reads exactly n bytes before deadline, returning ErrTimeout if
// fewer arrive in time.
func (d *Driver) Receive(n int, deadline time.Time) ([]byte, error) {
	buf := make([]byte, n)
	if err := d.readExact(buf, deadline); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *Driver) readExact(buf []byte, deadline time.Time) error {
	got := 0
	for got < len(buf) {
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		n, err := d.serial.Read(buf[got:])
		if err != nil {
			return fmt.Errorf("kline: read: %w", err)
		}
		got += n
	}
	return nil
}

// SetBaud reopens the UART at baud, used after MeasureBaud determines the
// ECU's actual rate during 5-baud init.
func (d *Driver) SetBaud(baud int) error {
	return d.serial.SetBaud(baud)
}

// MeasureBaud switches the line to GPIO input and times the span from the
// first falling edge to the last falling edge of a 0x55 sync byte. 0x55
// changes level on every bit, so on a both-edge input the eighth edge after
// the start bit's falling edge is the falling edge that opens bit 7, eight
// bit times later; elapsed/8 is one bit time. The result is snapped to the
// nearest known rate.
func (d *Driver) MeasureBaud(deadline time.Time) (int, error) {
	if err := d.gpio.Direction(false); err != nil {
		return 0, err
	}
	first, err := d.gpio.WaitEdge(deadline)
	if err != nil {
		return 0, err
	}
	if !first {
		return 0, ErrTimedOutWaitingForEdge
	}
	start := time.Now()

	var last time.Time
	for i := 0; i < 8; i++ {
		edged, err := d.gpio.WaitEdge(deadline)
		if err != nil {
			return 0, err
		}
		if !edged {
			break
		}
		last = time.Now()
	}
	if last.IsZero() {
		return 0, ErrTimedOutWaitingForEdge
	}

	elapsed := last.Sub(start)
	bitTime := elapsed / 8
	if bitTime <= 0 {
		return 0, ErrTimedOutWaitingForEdge
	}
	measured := int(time.Second / bitTime)
	return snapToKnownBaud(measured), nil
}

// snapToKnownBaud rounds measured to the nearest rate in knownBauds.
func snapToKnownBaud(measured int) int {
	best := knownBauds[0]
	bestDelta := abs(measured - best)
	for _, b := range knownBauds[1:] {
		if d := abs(measured - b); d < bestDelta {
			best = b
			bestDelta = d
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// SlowInit performs the 5-baud address wake-up: pulls TX low for 200ms,
// bit-bangs the 7-bit address LSB-first with an odd parity bit at one bit
// per 200ms (start bit 0, stop bit 1), then returns control to the UART.
func (d *Driver) SlowInit(address byte) error {
	if err := d.acquireGPIO(); err != nil {
		return err
	}
	defer d.releaseGPIO()

	bitTime := 200 * time.Millisecond
	frame := addressFrameBits(address)
	for _, bit := range frame {
		if err := d.gpio.Write(bit); err != nil {
			return err
		}
		time.Sleep(bitTime)
	}
	return nil
}

// addressFrameBits builds the full bit sequence for the 5-baud frame: start
// bit (low), 7 address bits LSB-first, odd parity bit, stop bit (high).
func addressFrameBits(address byte) []bool {
	bits := make([]bool, 0, 10)
	bits = append(bits, false) // start bit
	ones := 0
	for i := 0; i < 7; i++ {
		bit := address&(1<<uint(i)) != 0
		if bit {
			ones++
		}
		bits = append(bits, bit)
	}
	parity := ones%2 == 0 // odd parity: true (1) makes total ones odd
	bits = append(bits, parity)
	bits = append(bits, true) // stop bit
	return bits
}
