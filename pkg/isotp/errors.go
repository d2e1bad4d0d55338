package isotp

import "errors"

var (
	// ErrSequence is returned when a consecutive frame's sequence number
	// doesn't match the expected next value.
	ErrSequence = errors.New("isotp: sequence error")
	// ErrTimeout is returned when a consecutive frame or the response's
	// first frame doesn't arrive before its deadline.
	ErrTimeout = errors.New("isotp: timeout waiting for frame")
	// ErrFlowControlAbort is returned when the ECU sends an abort flow
	// control frame instead of continue/wait.
	ErrFlowControlAbort = errors.New("isotp: flow control abort")
)
