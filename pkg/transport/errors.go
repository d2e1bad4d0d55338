package transport

import "errors"

var (
	// ErrUnsupportedBaud is returned by OpenSerial/SetBaud for a baud rate
	// that is neither in the standard unix.B* table nor 10400.
	ErrUnsupportedBaud = errors.New("transport: unsupported baud rate")
	// ErrIO wraps an underlying device/syscall failure that open_can and
	// open_serial surface verbatim per the device-abstraction contract.
	ErrIO = errors.New("transport: i/o failure")
)
