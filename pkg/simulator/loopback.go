// Package simulator implements the ECU half of KWP1281, KWP2000, and the
// single-frame CAN path, for hardware loopback testing and the "test
// simulate-ecu" CLI subcommand.
package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/vehdiag/vehdiag/internal/checksum"
	"github.com/vehdiag/vehdiag/pkg/can"
	"github.com/vehdiag/vehdiag/pkg/kline"
)

// RunLoopback plays the ECU half of the named protocol ("kwp1281" or
// "kwp2000") against driver: samples the RX GPIO for the 5-baud address
// sequence at 50Hz, emits the sync byte, then runs a scripted session.
func RunLoopback(ctx context.Context, driver *kline.Driver, protocol string) error {
	address, err := sampleSlowInit(ctx, driver)
	if err != nil {
		return err
	}

	switch protocol {
	case "kwp1281":
		return runKWP1281ECU(ctx, driver, address)
	case "kwp2000":
		return runKWP2000ECU(ctx, driver, address)
	default:
		return fmt.Errorf("simulator: unknown protocol %q", protocol)
	}
}

// sampleSlowInit polls the GPIO at 50Hz to decode the tester's 5-baud
// address frame (start bit, 7 address bits LSB-first, parity, stop bit) and
// returns the address byte.
func sampleSlowInit(ctx context.Context, driver *kline.Driver) (byte, error) {
	const sampleInterval = 20 * time.Millisecond // 50Hz
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}

	if err := driver.PrepareRXSampling(); err != nil {
		return 0, err
	}

	// Wait for the start bit (line goes low).
	for {
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("simulator: timed out waiting for 5-baud start bit")
		}
		if !driver.SampleRX() {
			break
		}
		time.Sleep(sampleInterval)
	}

	// One bit period is ~200ms; sample the middle of each of the 7 data bits.
	time.Sleep(100 * time.Millisecond)
	var address byte
	for i := 0; i < 7; i++ {
		time.Sleep(200 * time.Millisecond)
		if driver.SampleRX() {
			address |= 1 << uint(i)
		}
	}
	// Skip parity and stop bits.
	time.Sleep(400 * time.Millisecond)
	return address, nil
}

// runKWP1281ECU emits the 0x55 sync byte and key bytes, then answers a
// single read-faults exchange with no faults, closing on end-output.
func runKWP1281ECU(ctx context.Context, driver *kline.Driver, address byte) error {
	if err := driver.Send([]byte{0x55, 0x01, 0x8A}); err != nil {
		return err
	}
	ack, err := driver.Receive(1, deadline(ctx))
	if err != nil {
		return err
	}
	if !checksum.IsComplement(0x8A, ack[0]) {
		return fmt.Errorf("simulator: bad key-byte complement from tester")
	}

	// ASCII id block: title 0xF6, then end-of-data 0x09.
	if err := sendSimBlock(driver, 0, 0xF6, []byte("VEHDIAGSIM")); err != nil {
		return err
	}
	if _, _, err := recvSimBlock(driver, 1); err != nil {
		return err
	}
	if err := sendSimBlock(driver, 2, 0x09, nil); err != nil {
		return err
	}

	for {
		counter, title, body, err := recvSimBlockTitle(driver, 3)
		if err != nil {
			return err
		}
		_ = body
		switch title {
		case 0x07: // read fault codes
			if err := sendSimBlock(driver, counter+1, 0xFC, []byte{0xFF, 0xFF, 0xFF}); err != nil {
				return err
			}
			// The tester ACKs every 0xFC block before the terminating 0x09.
			if _, _, err := recvSimBlock(driver, counter+2); err != nil {
				return err
			}
			if err := sendSimBlock(driver, counter+3, 0x09, nil); err != nil {
				return err
			}
		case 0x06: // end output
			return sendSimBlock(driver, counter+1, 0x09, nil)
		default:
			if err := sendSimBlock(driver, counter+1, 0x09, nil); err != nil {
				return err
			}
		}
	}
}

func deadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(5 * time.Second)
}

// sendSimBlock transmits a KWP1281 block as the ECU side, with the fixed
// counter value the caller tracks itself (simulator-only bookkeeping, kept
// separate from pkg/kwp1281's own session counter).
func sendSimBlock(driver *kline.Driver, counter byte, title byte, data []byte) error {
	length := byte(len(data) + 3)
	out := append([]byte{length, counter, title}, data...)
	out = append(out, 0x03)
	for i, b := range out {
		if err := driver.Send([]byte{b}); err != nil {
			return err
		}
		if i == len(out)-1 {
			break
		}
		ack, err := driver.Receive(1, time.Now().Add(20*time.Millisecond))
		if err != nil {
			return err
		}
		if !checksum.IsComplement(b, ack[0]) {
			return fmt.Errorf("simulator: complement mismatch from tester")
		}
	}
	return nil
}

func recvSimBlock(driver *kline.Driver, counter byte) (title byte, body []byte, err error) {
	_, title, body, err = recvSimBlockTitle(driver, counter)
	return title, body, err
}

func recvSimBlockTitle(driver *kline.Driver, expectedCounter byte) (counter, title byte, body []byte, err error) {
	deadline := time.Now().Add(5 * time.Second)
	lenB, err := driver.Receive(1, deadline)
	if err != nil {
		return 0, 0, nil, err
	}
	if err := driver.Send([]byte{checksum.Complement(lenB[0])}); err != nil {
		return 0, 0, nil, err
	}
	counterB, err := driver.Receive(1, deadline)
	if err != nil {
		return 0, 0, nil, err
	}
	if err := driver.Send([]byte{checksum.Complement(counterB[0])}); err != nil {
		return 0, 0, nil, err
	}
	titleB, err := driver.Receive(1, deadline)
	if err != nil {
		return 0, 0, nil, err
	}
	if err := driver.Send([]byte{checksum.Complement(titleB[0])}); err != nil {
		return 0, 0, nil, err
	}
	remaining := int(lenB[0]) - 3
	for i := 0; i < remaining; i++ {
		b, err := driver.Receive(1, deadline)
		if err != nil {
			return 0, 0, nil, err
		}
		if err := driver.Send([]byte{checksum.Complement(b[0])}); err != nil {
			return 0, 0, nil, err
		}
		body = append(body, b[0])
	}
	term, err := driver.Receive(1, deadline)
	if err != nil {
		return 0, 0, nil, err
	}
	if term[0] != 0x03 {
		return 0, 0, nil, fmt.Errorf("simulator: expected terminator, got %#02x", term[0])
	}
	return counterB[0], titleB[0], body, nil
}

// runKWP2000ECU emits the slow-init reply sequence, then answers
// start-diagnostic-session and read-DTCs with an empty DTC list, matching
// the brakes-ECU scenario.
func runKWP2000ECU(ctx context.Context, driver *kline.Driver, address byte) error {
	kb2 := byte(0x8F)
	if err := driver.Send([]byte{0x55, 0x6B, kb2}); err != nil {
		return err
	}
	time.Sleep(25 * time.Millisecond)
	ack, err := driver.Receive(1, deadline(ctx))
	if err != nil {
		return err
	}
	if !checksum.IsComplement(kb2, ack[0]) {
		return fmt.Errorf("simulator: bad kb2 complement from tester")
	}
	if err := driver.Send([]byte{checksum.Complement(address)}); err != nil {
		return err
	}

	for {
		frame, err := recvSimFrame(driver)
		if err != nil {
			return err
		}
		if len(frame) < 4 {
			continue
		}
		service := frame[3]
		switch service {
		case 0x10: // start diagnostic session
			if err := driver.Send(simFrame(frame[2], frame[1], []byte{0x50, frame[4]})); err != nil {
				return err
			}
		case 0x18: // read DTCs
			if err := driver.Send(simFrame(frame[2], frame[1], []byte{0x58, 0x00})); err != nil {
				return err
			}
		case 0x3E: // tester present
			if err := driver.Send(simFrame(frame[2], frame[1], []byte{0x7E})); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func simFrame(target, source byte, data []byte) []byte {
	out := append([]byte{0x80 | byte(len(data)), target, source}, data...)
	return append(out, checksum.Sum8(out))
}

func recvSimFrame(driver *kline.Driver) ([]byte, error) {
	header, err := driver.Receive(3, time.Now().Add(10*time.Second))
	if err != nil {
		return nil, err
	}
	length := int(header[0] & 0x3F)
	body, err := driver.Receive(length+1, time.Now().Add(time.Second))
	if err != nil {
		return nil, err
	}
	return append(header, body...), nil
}

// RunCANEcho implements the single-frame CAN loopback path: receives a
// single-frame OBD request and echoes back a fixed RPM reading, exercising
// pkg/isotp and pkg/obd without real hardware, the way pkg/can/virtual lets
// the corpus test SDO/PDO without real hardware.
func RunCANEcho(ctx context.Context, bus can.Bus) error {
	done := make(chan error, 1)
	listener := &canEchoListener{bus: bus, done: done}
	if err := bus.Subscribe(listener); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type canEchoListener struct {
	bus  can.Bus
	done chan error
}

func (l *canEchoListener) Handle(frame can.Frame) {
	if frame.ID != 0x7DF || frame.Data[0] != 0x02 || frame.Data[1] != 0x01 {
		return
	}
	pid := frame.Data[2]
	reply := can.Frame{ID: 0x7E8, DLC: 8}
	switch pid {
	case 0x0C:
		reply.Data = [8]byte{0x04, 0x41, 0x0C, 0x1A, 0xF8, 0x00, 0x00, 0x00}
	default:
		reply.Data = [8]byte{0x03, 0x41, pid, 0x00, 0x00, 0x00, 0x00, 0x00}
	}
	l.done <- l.bus.Send(reply)
}
