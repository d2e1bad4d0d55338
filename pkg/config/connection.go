package config

import (
	"fmt"

	"github.com/vehdiag/vehdiag/pkg/can"
	"github.com/vehdiag/vehdiag/pkg/transport"
)

// Transport names which physical layer a Connection was opened on.
type Transport int

const (
	TransportKLine Transport = iota
	TransportCAN
)

// Connection describes and owns the chosen transport for the lifetime of
// one diagnostic session (spec.md §3), closing whichever underlying handle
// is open when Close is called.
type Connection struct {
	Kind Transport

	// K-line fields.
	SerialPath string
	GPIOLine   string
	Baud       int
	serial     *transport.SerialPort
	gpio       *transport.GPIOLine

	// CAN fields.
	Interface string
	BitRate   int
	bus       can.Bus
}

// OpenKLine opens the serial device and GPIO line for a K-line session.
func OpenKLine(serialPath, gpioLine string, baud int) (*Connection, error) {
	s, err := transport.OpenSerial(serialPath, baud)
	if err != nil {
		return nil, err
	}
	g, err := transport.OpenGPIO(gpioLine)
	if err != nil {
		s.Close()
		return nil, err
	}
	return &Connection{
		Kind:       TransportKLine,
		SerialPath: serialPath,
		GPIOLine:   gpioLine,
		Baud:       baud,
		serial:     s,
		gpio:       g,
	}, nil
}

// OpenCANConnection opens a raw CAN socket bound to iface over backend
// ("socketcan" or "socketcanv3"; "" defaults to "socketcan").
func OpenCANConnection(backend, iface string, bitrateHz int) (*Connection, error) {
	bus, err := transport.OpenCAN(backend, iface, bitrateHz)
	if err != nil {
		return nil, err
	}
	return &Connection{Kind: TransportCAN, Interface: iface, BitRate: bitrateHz, bus: bus}, nil
}

// Serial returns the underlying serial device, valid only for TransportKLine.
func (c *Connection) Serial() *transport.SerialPort { return c.serial }

// GPIO returns the underlying GPIO line, valid only for TransportKLine.
func (c *Connection) GPIO() *transport.GPIOLine { return c.gpio }

// Bus returns the underlying CAN bus, valid only for TransportCAN.
func (c *Connection) Bus() can.Bus { return c.bus }

// Close tears down whichever underlying handle is open.
func (c *Connection) Close() error {
	switch c.Kind {
	case TransportKLine:
		var err error
		if c.serial != nil {
			err = c.serial.Close()
		}
		return err
	case TransportCAN:
		if c.bus != nil {
			return c.bus.Disconnect()
		}
		return nil
	default:
		return fmt.Errorf("config: unknown transport kind %d", c.Kind)
	}
}
