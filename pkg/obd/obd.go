// Package obd builds and parses OBD-II mode 01/02/03/04/09 request and
// response PDUs on top of pkg/isotp.
package obd

import (
	"context"
	"fmt"
	"time"

	"github.com/vehdiag/vehdiag/pkg/can"
	"github.com/vehdiag/vehdiag/pkg/dtc"
	"github.com/vehdiag/vehdiag/pkg/isotp"
)

const (
	Service01Current     byte = 0x01
	Service02Freeze       byte = 0x02
	Service03StoredDTCs   byte = 0x03
	Service04Clear        byte = 0x04
	Service09VehicleInfo  byte = 0x09

	negativeResponseByte byte = 0x7F

	// BroadcastRequestID is the functional request ID used for mode
	// 01-type queries that any ECU may answer.
	BroadcastRequestID uint32 = 0x7DF
	// responseIDBase is the start of the standard physical response ID
	// range (0x7E8..0x7EF).
	responseIDBase uint32 = 0x7E8
)

// BuildRequest constructs the raw single-frame ISO-TP payload bytes for a
// service/PID pair (mode+pid always fits in one CAN frame).
func BuildRequest(mode, pid byte) []byte {
	return []byte{mode, pid}
}

// ParseResponse validates frame as a response to mode, handling the 0x7F
// negative-response form, and returns the payload bytes following the
// echoed service id.
func ParseResponse(mode byte, frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("obd: empty response")
	}
	if frame[0] == negativeResponseByte {
		if len(frame) < 3 {
			return nil, fmt.Errorf("obd: short negative response")
		}
		return nil, &NegativeResponse{Service: frame[1], NRC: frame[2]}
	}
	if frame[0] != mode+0x40 {
		return nil, fmt.Errorf("obd: unexpected response service id %#02x", frame[0])
	}
	return frame[1:], nil
}

// Client issues OBD-II requests over a CAN bus using a single functional
// request ID and the corresponding physical response ID.
type Client struct {
	bus      can.Bus
	reqID    uint32
	respID   uint32
	fcID     uint32
	deadline time.Duration
}

// NewClient builds a Client. respID defaults to responseIDBase when reqID
// is the broadcast ID; fcID is reqID|0x008, the convention pkg/isotp uses
// for the flow-control return channel.
func NewClient(bus can.Bus, reqID uint32) *Client {
	respID := responseIDBase
	if reqID != BroadcastRequestID {
		respID = reqID + 8
	}
	return &Client{bus: bus, reqID: reqID, respID: respID, fcID: reqID | 0x008, deadline: time.Second}
}

func (c *Client) request(ctx context.Context, mode, pid byte) ([]byte, error) {
	if err := isotp.Send(ctx, c.bus, c.reqID, BuildRequest(mode, pid)); err != nil {
		return nil, err
	}
	resp, err := isotp.Receive(ctx, c.bus, c.respID, c.fcID, time.Now().Add(c.deadline))
	if err != nil {
		return nil, err
	}
	return ParseResponse(mode, resp)
}

// ReadCurrent issues a mode 01 request for pid.
func (c *Client) ReadCurrent(ctx context.Context, pid byte) ([]byte, error) {
	return c.request(ctx, Service01Current, pid)
}

// ReadFreezeFrame issues a mode 02 request for pid.
func (c *Client) ReadFreezeFrame(ctx context.Context, pid byte) ([]byte, error) {
	return c.request(ctx, Service02Freeze, pid)
}

// ReadStoredDTCs issues a mode 03 request and decodes the 2-byte-per-code
// response via pkg/dtc.
func (c *Client) ReadStoredDTCs(ctx context.Context) ([]dtc.Record, error) {
	if err := isotp.Send(ctx, c.bus, c.reqID, []byte{Service03StoredDTCs}); err != nil {
		return nil, err
	}
	resp, err := isotp.Receive(ctx, c.bus, c.respID, c.fcID, time.Now().Add(c.deadline))
	if err != nil {
		return nil, err
	}
	payload, err := ParseResponse(Service03StoredDTCs, resp)
	if err != nil {
		return nil, err
	}
	var records []dtc.Record
	for i := 0; i+2 <= len(payload); i += 2 {
		if rec, ok := dtc.DecodeISO15031(payload[i], payload[i+1]); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// ClearDTCs issues a mode 04 request.
func (c *Client) ClearDTCs(ctx context.Context) error {
	if err := isotp.Send(ctx, c.bus, c.reqID, []byte{Service04Clear}); err != nil {
		return err
	}
	resp, err := isotp.Receive(ctx, c.bus, c.respID, c.fcID, time.Now().Add(c.deadline))
	if err != nil {
		return err
	}
	_, err = ParseResponse(Service04Clear, resp)
	return err
}

// ReadVehicleInfo issues a mode 09 request for pid (e.g. 0x02 VIN).
func (c *Client) ReadVehicleInfo(ctx context.Context, pid byte) ([]byte, error) {
	return c.request(ctx, Service09VehicleInfo, pid)
}
