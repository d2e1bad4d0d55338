// Package kwp1281 implements the VAG KWP1281 K-line session: 5-baud address
// init, key-byte exchange, block-counter bookkeeping, the per-byte
// complement handshake, and the high-level operations (read/clear DTCs,
// read measurement groups, read/write adaptation channels).
package kwp1281

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vehdiag/vehdiag/internal/checksum"
	"github.com/vehdiag/vehdiag/pkg/dtc"
	"github.com/vehdiag/vehdiag/pkg/kline"
)

// State is the KWP1281 session lifecycle.
type State int

const (
	PreInit State = iota
	Initing
	Established
	Closed
	Faulted
)

// Block titles (the subset this session understands).
const (
	titleEndOutput      byte = 0x06
	titleReadFaultCodes  byte = 0x07
	titleAckNoop         byte = 0x09
	titleFaultCodeResp   byte = 0xFC
	titleClearFaultCodes byte = 0x05
	titleReadAdaptation  byte = 0x21
	titleTestAdaptation  byte = 0x2A
	titleASCIIData       byte = 0xF6
	titleReadGroup       byte = 0x29
)

const ackDeadline = 20 * time.Millisecond

// MeasuredValue is one of the ten 3-byte fields returned by ReadGroup. The
// session forwards the raw fields; physical-unit interpretation lives in
// pkg/kwp1281/formula.go since the session itself doesn't decode them.
type MeasuredValue struct {
	FormulaID byte
	RawA      byte
	RawB      byte
}

// Session is one established KWP1281 conversation with a single ECU.
type Session struct {
	driver       *kline.Driver
	blockCounter byte
	keyBytes     [2]byte
	ecuID        []byte
	state        State
	logger       *slog.Logger
}

func (s *Session) State() State { return s.state }

// ECUID returns the ASCII identification string assembled during init.
func (s *Session) ECUID() string { return string(s.ecuID) }

func (s *Session) fault(err error) error {
	s.state = Faulted
	return err
}

// Open drives the full init sequence: 5-baud address, sync byte + baud
// measurement, key-byte exchange, and ASCII identification collection.
func Open(ctx context.Context, driver *kline.Driver, address byte) (*Session, error) {
	s := &Session{driver: driver, state: PreInit, logger: slog.Default().With("proto", "kwp1281", "ecu", fmt.Sprintf("%#02x", address))}
	s.state = Initing

	if err := driver.SlowInit(address); err != nil {
		return nil, s.fault(err)
	}

	deadline := deadlineFromContext(ctx, 2*time.Second)
	measuredBaud, err := driver.MeasureBaud(deadline)
	if err != nil {
		return nil, s.fault(err)
	}
	if err := driver.SetBaud(measuredBaud); err != nil {
		return nil, s.fault(err)
	}

	kb, err := driver.Receive(2, deadlineFromContext(ctx, 500*time.Millisecond))
	if err != nil {
		return nil, s.fault(err)
	}
	s.keyBytes[0], s.keyBytes[1] = kb[0], kb[1]

	if err := driver.Send([]byte{checksum.Complement(s.keyBytes[1])}); err != nil {
		return nil, s.fault(err)
	}

	s.state = Established
	s.blockCounter = 0

	for {
		title, data, err := s.recvBlock(ctx)
		if err != nil {
			return nil, s.fault(err)
		}
		if title == titleAckNoop {
			break
		}
		if title != titleASCIIData {
			return nil, s.fault(&UnexpectedBlockError{Title: title, Body: data})
		}
		s.ecuID = append(s.ecuID, data...)
		if err := s.sendBlock(ctx, titleAckNoop, nil); err != nil {
			return nil, s.fault(err)
		}
	}

	return s, nil
}

func deadlineFromContext(ctx context.Context, def time.Duration) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(def)
}

// sendBlock transmits one block: length, counter, title, data, 0x03. Every
// byte except the terminating 0x03 is ACKed by the receiver with its
// bitwise complement; sendBlock reads and checks that ACK after each.
func (s *Session) sendBlock(ctx context.Context, title byte, data []byte) error {
	length := byte(len(data) + 3)
	bytesOut := append([]byte{length, s.blockCounter, title}, data...)
	bytesOut = append(bytesOut, 0x03)
	s.blockCounter++

	for i, b := range bytesOut {
		if err := s.driver.Send([]byte{b}); err != nil {
			return err
		}
		if i == len(bytesOut)-1 {
			break // terminating 0x03 is not ACKed
		}
		ack, err := s.driver.Receive(1, time.Now().Add(ackDeadline))
		if err != nil {
			return err
		}
		if !checksum.IsComplement(b, ack[0]) {
			return ErrComplementMismatch
		}
	}
	return nil
}

// recvBlock receives one block, ACKing every byte except the terminating
// 0x03 with its bitwise complement, and validates the block counter.
func (s *Session) recvBlock(ctx context.Context) (title byte, data []byte, err error) {
	deadline := time.Now().Add(5 * time.Second)

	lenB, err := s.driver.Receive(1, deadline)
	if err != nil {
		return 0, nil, err
	}
	if err := s.driver.Send([]byte{checksum.Complement(lenB[0])}); err != nil {
		return 0, nil, err
	}
	length := int(lenB[0])

	counterB, err := s.driver.Receive(1, deadline)
	if err != nil {
		return 0, nil, err
	}
	if err := s.driver.Send([]byte{checksum.Complement(counterB[0])}); err != nil {
		return 0, nil, err
	}
	if counterB[0] != s.blockCounter {
		return 0, nil, ErrCounterMismatch
	}
	s.blockCounter++

	titleB, err := s.driver.Receive(1, deadline)
	if err != nil {
		return 0, nil, err
	}
	if err := s.driver.Send([]byte{checksum.Complement(titleB[0])}); err != nil {
		return 0, nil, err
	}

	// length counts bytes from counter through the terminating 0x03
	// inclusive; subtract counter, title, and the terminator to get the
	// number of remaining data bytes.
	remaining := length - 3
	body := make([]byte, 0, remaining)
	for i := 0; i < remaining; i++ {
		b, err := s.driver.Receive(1, deadline)
		if err != nil {
			return 0, nil, err
		}
		if err := s.driver.Send([]byte{checksum.Complement(b[0])}); err != nil {
			return 0, nil, err
		}
		body = append(body, b[0])
	}

	term, err := s.driver.Receive(1, deadline)
	if err != nil {
		return 0, nil, err
	}
	if term[0] != 0x03 {
		return 0, nil, fmt.Errorf("kwp1281: expected block terminator, got %#02x", term[0])
	}

	return titleB[0], body, nil
}

// ReadDTCs sends title 0x07 and collects 3-byte fault code triplets from
// the ECU's 0xFC blocks until it replies 0x09.
func (s *Session) ReadDTCs(ctx context.Context) ([]dtc.Record, error) {
	if s.state != Established {
		return nil, ErrFaulted
	}
	if err := s.sendBlock(ctx, titleReadFaultCodes, nil); err != nil {
		return nil, s.fault(err)
	}

	var records []dtc.Record
	for {
		title, body, err := s.recvBlock(ctx)
		if err != nil {
			return nil, s.fault(err)
		}
		if title == titleAckNoop {
			break
		}
		if title != titleFaultCodeResp {
			return nil, s.fault(&UnexpectedBlockError{Title: title, Body: body})
		}
		for i := 0; i+3 <= len(body); i += 3 {
			hi, lo, status := body[i], body[i+1], body[i+2]
			if rec, ok := dtc.DecodeVAG(hi, lo, status); ok {
				records = append(records, rec)
			}
		}
		if err := s.sendBlock(ctx, titleAckNoop, nil); err != nil {
			return nil, s.fault(err)
		}
	}
	return records, nil
}

// ClearDTCs sends title 0x05 and expects a 0x09 acknowledgement.
func (s *Session) ClearDTCs(ctx context.Context) error {
	if s.state != Established {
		return ErrFaulted
	}
	if err := s.sendBlock(ctx, titleClearFaultCodes, nil); err != nil {
		return s.fault(err)
	}
	title, body, err := s.recvBlock(ctx)
	if err != nil {
		return s.fault(err)
	}
	if title != titleAckNoop {
		return s.fault(&UnexpectedBlockError{Title: title, Body: body})
	}
	return nil
}

// ReadGroup sends title 0x29 with group index g and parses up to ten 3-byte
// measured-value fields from the response.
func (s *Session) ReadGroup(ctx context.Context, group byte) ([]MeasuredValue, error) {
	if s.state != Established {
		return nil, ErrFaulted
	}
	if err := s.sendBlock(ctx, titleReadGroup, []byte{group}); err != nil {
		return nil, s.fault(err)
	}
	title, body, err := s.recvBlock(ctx)
	if err != nil {
		return nil, s.fault(err)
	}
	if title != titleReadGroup {
		return nil, s.fault(&UnexpectedBlockError{Title: title, Body: body})
	}

	var values []MeasuredValue
	for i := 0; i+3 <= len(body) && len(values) < 10; i += 3 {
		values = append(values, MeasuredValue{FormulaID: body[i], RawA: body[i+1], RawB: body[i+2]})
	}
	return values, nil
}

// ReadAdaptation reads the value of adaptation channel.
func (s *Session) ReadAdaptation(ctx context.Context, channel byte) ([]byte, error) {
	if s.state != Established {
		return nil, ErrFaulted
	}
	if err := s.sendBlock(ctx, titleReadAdaptation, []byte{channel}); err != nil {
		return nil, s.fault(err)
	}
	title, body, err := s.recvBlock(ctx)
	if err != nil {
		return nil, s.fault(err)
	}
	if title != titleASCIIData && title != titleTestAdaptation {
		return nil, s.fault(&UnexpectedBlockError{Title: title, Body: body})
	}
	return body, nil
}

// WriteAdaptation stores value into adaptation channel with a single title
// 0x2A block whose data is the channel, the 0x10 store marker, and value.
func (s *Session) WriteAdaptation(ctx context.Context, channel byte, value []byte) error {
	if s.state != Established {
		return ErrFaulted
	}
	data := append([]byte{channel, 0x10}, value...)
	if err := s.sendBlock(ctx, titleTestAdaptation, data); err != nil {
		return s.fault(err)
	}
	title, body, err := s.recvBlock(ctx)
	if err != nil {
		return s.fault(err)
	}
	if title != titleAckNoop {
		return s.fault(&UnexpectedBlockError{Title: title, Body: body})
	}
	return nil
}

// Close sends the end-output title and awaits the ECU's final
// acknowledgement, transitioning the session to Closed.
func (s *Session) Close(ctx context.Context) error {
	if s.state != Established {
		return ErrFaulted
	}
	if err := s.sendBlock(ctx, titleEndOutput, nil); err != nil {
		return s.fault(err)
	}
	title, body, err := s.recvBlock(ctx)
	if err != nil {
		return s.fault(err)
	}
	if title != titleAckNoop {
		return s.fault(&UnexpectedBlockError{Title: title, Body: body})
	}
	s.state = Closed
	return nil
}
