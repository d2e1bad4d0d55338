package kwp2000

import "errors"

var (
	// ErrChecksumMismatch is returned when a received frame's trailing
	// checksum byte doesn't match the mod-256 sum of the preceding bytes.
	ErrChecksumMismatch = errors.New("kwp2000: checksum mismatch")
	// ErrNegativeResponse is returned when the ECU replies with a valid but
	// negative response (service 0x7F-style NRC), carrying the raw bytes.
	ErrNegativeResponse = errors.New("kwp2000: negative response")
	// ErrFaulted is returned by any operation on a session already in the
	// Faulted state.
	ErrFaulted = errors.New("kwp2000: session faulted")
)

// NegativeResponseError carries the service and raw response bytes of a
// KWP2000 negative response.
type NegativeResponseError struct {
	Service byte
	Raw     []byte
}

func (e *NegativeResponseError) Error() string {
	return "kwp2000: negative response"
}

func (e *NegativeResponseError) Unwrap() error { return ErrNegativeResponse }
