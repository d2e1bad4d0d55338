package obd

import (
	"errors"
	"fmt"
)

// ErrNegativeResponse is the sentinel wrapped by NegativeResponse.
var ErrNegativeResponse = errors.New("obd: negative response")

// NegativeResponse carries the service and negative-response code (NRC)
// from a 0x7F response.
type NegativeResponse struct {
	Service byte
	NRC     byte
}

func (e *NegativeResponse) Error() string {
	return fmt.Sprintf("obd: negative response to service %#02x, NRC %#02x", e.Service, e.NRC)
}

func (e *NegativeResponse) Unwrap() error { return ErrNegativeResponse }
