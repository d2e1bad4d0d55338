package kwp1281

import "errors"

var (
	// ErrCounterMismatch is returned when a received block counter is not
	// previous+1 mod 256. The session transitions to Faulted.
	ErrCounterMismatch = errors.New("kwp1281: block counter mismatch")
	// ErrComplementMismatch is returned when an ACK byte isn't the bitwise
	// complement of the byte just sent or received.
	ErrComplementMismatch = errors.New("kwp1281: complement mismatch")
	// ErrUnexpectedBlock is returned when the ECU sends a block title the
	// caller's operation didn't expect, carrying the raw block so the
	// caller can decide what to do with it.
	ErrUnexpectedBlock = errors.New("kwp1281: unexpected block")
	// ErrFaulted is returned by any operation on a session that has already
	// transitioned to Faulted; the wire is in an unknown state and must not
	// be touched again.
	ErrFaulted = errors.New("kwp1281: session faulted")
)

// UnexpectedBlockError carries the raw block title and body of a response
// that didn't match what the caller's operation expected.
type UnexpectedBlockError struct {
	Title byte
	Body  []byte
}

func (e *UnexpectedBlockError) Error() string {
	return "kwp1281: unexpected block title"
}

func (e *UnexpectedBlockError) Unwrap() error { return ErrUnexpectedBlock }
