// Package kwp2000 implements the ISO 14230 (KWP2000) K-line session: slow
// init, framed request/response with a mod-256 checksum, and a
// caller-driven tester-present keepalive.
package kwp2000

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vehdiag/vehdiag/internal/checksum"
	"github.com/vehdiag/vehdiag/pkg/kline"
)

// State is the KWP2000 session lifecycle.
type State int

const (
	PreInit State = iota
	Initing
	Established
	Closed
	Faulted
)

const (
	testerSource byte = 0xF1

	serviceStartDiagnosticSession byte = 0x10
	serviceReadDTCs               byte = 0x18
	serviceClearDTCs              byte = 0x14
	serviceReadECUID              byte = 0x1A
	serviceTesterPresent          byte = 0x3E

	keepaliveInterval = 5 * time.Second
)

// Session is one established KWP2000 conversation with a single ECU.
type Session struct {
	driver       *kline.Driver
	target       byte
	source       byte
	state        State
	lastActivity time.Time
	logger       *slog.Logger
}

func (s *Session) State() State { return s.state }

func (s *Session) fault(err error) error {
	s.state = Faulted
	return err
}

// Open performs the KWP2000 slow-init handshake: 5-baud address, receive
// 0x55 KB1 KB2, reply ~KB2 after ~25ms, receive ~address back.
func Open(ctx context.Context, driver *kline.Driver, target byte) (*Session, error) {
	s := &Session{
		driver: driver,
		target: target,
		source: testerSource,
		state:  Initing,
		logger: slog.Default().With("proto", "kwp2000", "ecu", fmt.Sprintf("%#02x", target)),
	}

	if err := driver.SlowInit(target); err != nil {
		return nil, s.fault(err)
	}

	deadline := deadlineFromContext(ctx, 2*time.Second)
	sync, err := driver.Receive(3, deadline)
	if err != nil {
		return nil, s.fault(err)
	}
	if sync[0] != 0x55 {
		return nil, s.fault(fmt.Errorf("kwp2000: expected sync byte, got %#02x", sync[0]))
	}
	kb2 := sync[2]

	time.Sleep(25 * time.Millisecond)
	if err := driver.Send([]byte{checksum.Complement(kb2)}); err != nil {
		return nil, s.fault(err)
	}

	ack, err := driver.Receive(1, deadlineFromContext(ctx, 500*time.Millisecond))
	if err != nil {
		return nil, s.fault(err)
	}
	if !checksum.IsComplement(target, ack[0]) {
		return nil, s.fault(fmt.Errorf("kwp2000: address complement mismatch"))
	}

	s.state = Established
	s.lastActivity = time.Now()
	return s, nil
}

func deadlineFromContext(ctx context.Context, def time.Duration) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(def)
}

// Request sends data as a service frame and returns the ECU's response
// data (with the service-echo byte still in front, per spec.md §4.D).
func (s *Session) Request(ctx context.Context, data []byte) ([]byte, error) {
	if s.state != Established {
		return nil, ErrFaulted
	}
	frame := Encode(s.target, s.source, data)
	if err := s.driver.Send(frame); err != nil {
		return nil, s.fault(err)
	}
	s.lastActivity = time.Now()

	resp, err := s.recvFrame(ctx)
	if err != nil {
		return nil, s.fault(err)
	}
	_, _, respData, err := Decode(resp)
	if err != nil {
		return nil, s.fault(err)
	}
	if len(respData) > 0 && respData[0] == 0x7F {
		return nil, s.fault(&NegativeResponseError{Service: data[0], Raw: respData})
	}
	return respData, nil
}

// recvFrame reads a complete frame header-first, determining its length
// from the format byte (and, for the long form, the dedicated length byte)
// before reading the data and checksum.
func (s *Session) recvFrame(ctx context.Context) ([]byte, error) {
	deadline := deadlineFromContext(ctx, 1*time.Second)
	header, err := s.driver.Receive(3, deadline)
	if err != nil {
		return nil, err
	}
	lengthField := header[0] & 0x3F
	if lengthField == 0 {
		rest, err := s.driver.Receive(2, deadline)
		if err != nil {
			return nil, err
		}
		length := int(rest[1])
		body, err := s.driver.Receive(length+1, deadline)
		if err != nil {
			return nil, err
		}
		return append(append(append([]byte{}, header...), rest...), body...), nil
	}
	body, err := s.driver.Receive(int(lengthField)+1, deadline)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, header...), body...), nil
}

// Tick sends a tester-present request if more than keepaliveInterval has
// passed since the last request, called by the caller's own loop rather
// than owned by a background goroutine (single-threaded session model).
func (s *Session) Tick(ctx context.Context) error {
	if s.state != Established {
		return nil
	}
	if time.Since(s.lastActivity) < keepaliveInterval {
		return nil
	}
	_, err := s.Request(ctx, []byte{serviceTesterPresent})
	return err
}

// ReadDTCs sends service 0x18 with the "all stored DTCs" status filter and
// parses the 3-byte-per-code response.
func (s *Session) ReadDTCs(ctx context.Context) ([]DTC, error) {
	resp, err := s.Request(ctx, []byte{serviceReadDTCs, 0x02, 0xFF, 0x00})
	if err != nil {
		return nil, err
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("kwp2000: short read-DTCs response")
	}
	count := int(resp[1])
	var out []DTC
	for i := 0; i < count; i++ {
		start := 2 + i*3
		if start+3 > len(resp) {
			break
		}
		out = append(out, DTC{HighByte: resp[start], LowByte: resp[start+1], Status: resp[start+2]})
	}
	return out, nil
}

// DTC is one raw 3-byte KWP2000 fault code record, decoded by pkg/dtc.
type DTC struct {
	HighByte, LowByte, Status byte
}

// ClearDTCs sends service 0x14.
func (s *Session) ClearDTCs(ctx context.Context) error {
	_, err := s.Request(ctx, []byte{serviceClearDTCs})
	return err
}

// ReadECUID sends service 0x1A with sub-function 0x9B.
func (s *Session) ReadECUID(ctx context.Context) ([]byte, error) {
	return s.Request(ctx, []byte{serviceReadECUID, 0x9B})
}
