package kline

import "errors"

var (
	// ErrEchoMismatch is returned by Send when the byte read back from the
	// half-duplex line doesn't match what was transmitted.
	ErrEchoMismatch = errors.New("kline: echo mismatch")
	// ErrTimedOutWaitingForEdge is returned by MeasureBaud when no falling
	// edge of the sync byte is seen before the deadline.
	ErrTimedOutWaitingForEdge = errors.New("kline: timed out waiting for edge")
	// ErrTimeout is returned by Receive when fewer than n bytes arrive
	// before the deadline.
	ErrTimeout = errors.New("kline: timeout")
)
