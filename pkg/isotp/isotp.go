// Package isotp implements ISO 15765-2 segmentation and reassembly over a
// pkg/can.Bus: single-frame and multi-frame (first/consecutive/flow-control)
// framing, as used to carry OBD-II service requests.
package isotp

import (
	"context"
	"fmt"
	"time"

	"github.com/vehdiag/vehdiag/internal/fifo"
	"github.com/vehdiag/vehdiag/pkg/can"
)

const (
	pciSingleFrame      = 0x0
	pciFirstFrame       = 0x1
	pciConsecutiveFrame = 0x2
	pciFlowControl      = 0x3

	fcContinue = 0x0
	fcWait     = 0x1
	fcAbort    = 0x2

	// maxReassembly bounds the reassembly fifo; ISO-TP's 12-bit length
	// field tops out at 4095 bytes.
	maxReassembly = 4095
)

// Transfer describes one outbound ISO-TP request per spec.md §3.
type Transfer struct {
	TargetID uint32
	Payload  []byte
}

// frameListener forwards every received CAN frame matching id into ch. Used
// to bridge pkg/can's callback-based Subscribe into the blocking,
// deadline-driven reads this package's synchronous API needs.
type frameListener struct {
	id uint32
	ch chan can.Frame
}

func (l *frameListener) Handle(frame can.Frame) {
	if frame.ID != l.id {
		return
	}
	select {
	case l.ch <- frame:
	default:
	}
}

func recvFrame(ch chan can.Frame, deadline time.Time) (can.Frame, error) {
	timeout := time.Until(deadline)
	if timeout < 0 {
		timeout = 0
	}
	select {
	case f := <-ch:
		return f, nil
	case <-time.After(timeout):
		return can.Frame{}, ErrTimeout
	}
}

// Send segments payload and transmits it on reqID. Payloads of 7 bytes or
// fewer use a single frame; longer payloads use a first frame, wait for a
// flow-control frame from the ECU, then send consecutive frames honouring
// its block-size and separation-time.
func Send(ctx context.Context, bus can.Bus, reqID uint32, payload []byte) error {
	if len(payload) <= 7 {
		frame := can.Frame{ID: reqID, DLC: 8}
		frame.Data[0] = byte(pciSingleFrame<<4) | byte(len(payload))
		copy(frame.Data[1:], payload)
		return bus.Send(frame)
	}

	fcListener := &frameListener{id: reqID | 0x008, ch: make(chan can.Frame, 4)}
	if err := bus.Subscribe(fcListener); err != nil {
		return fmt.Errorf("isotp: subscribe for flow control: %w", err)
	}

	first := can.Frame{ID: reqID, DLC: 8}
	first.Data[0] = byte(pciFirstFrame<<4) | byte((len(payload)>>8)&0xF)
	first.Data[1] = byte(len(payload) & 0xFF)
	copy(first.Data[2:], payload[:6])
	if err := bus.Send(first); err != nil {
		return err
	}

	deadline := deadlineFromContext(ctx, 1000*time.Millisecond)
	remaining := payload[6:]
	seq := byte(1)
	for len(remaining) > 0 {
		fc, err := recvFrame(fcListener.ch, deadline)
		if err != nil {
			return err
		}
		if fc.Data[0]>>4 != pciFlowControl {
			continue
		}
		switch fc.Data[0] & 0x0F {
		case fcAbort:
			return ErrFlowControlAbort
		case fcWait:
			continue
		}
		blockSize := fc.Data[1]
		separation := time.Duration(fc.Data[2]) * time.Millisecond

		sent := 0
		for len(remaining) > 0 {
			chunk := remaining
			if len(chunk) > 7 {
				chunk = chunk[:7]
			}
			cf := can.Frame{ID: reqID, DLC: 8}
			cf.Data[0] = byte(pciConsecutiveFrame<<4) | (seq & 0x0F)
			copy(cf.Data[1:], chunk)
			if err := bus.Send(cf); err != nil {
				return err
			}
			remaining = remaining[len(chunk):]
			seq = (seq + 1) % 16
			sent++
			if blockSize != 0 && sent >= int(blockSize) && len(remaining) > 0 {
				break
			}
			if len(remaining) > 0 && separation > 0 {
				time.Sleep(separation)
			}
		}
	}
	return nil
}

// Receive accepts a single-frame or multi-frame response on respID. On a
// first frame it immediately emits a continue/bs=0/st=0 flow-control frame
// on fcID, then accumulates consecutive frames, checking sequence numbers
// and failing with ErrTimeout if a frame doesn't arrive within 1s.
func Receive(ctx context.Context, bus can.Bus, respID, fcID uint32, deadline time.Time) ([]byte, error) {
	listener := &frameListener{id: respID, ch: make(chan can.Frame, 8)}
	if err := bus.Subscribe(listener); err != nil {
		return nil, fmt.Errorf("isotp: subscribe: %w", err)
	}

	frame, err := recvFrame(listener.ch, deadline)
	if err != nil {
		return nil, err
	}

	pci := frame.Data[0] >> 4
	switch pci {
	case pciSingleFrame:
		length := int(frame.Data[0] & 0x0F)
		if length > len(frame.Data)-1 {
			return nil, fmt.Errorf("isotp: single frame length out of range")
		}
		return append([]byte{}, frame.Data[1:1+length]...), nil

	case pciFirstFrame:
		length := (int(frame.Data[0]&0x0F) << 8) | int(frame.Data[1])
		if length > maxReassembly {
			return nil, fmt.Errorf("isotp: reassembly length %d exceeds maximum", length)
		}
		buf := fifo.NewFifo(length + 8)
		buf.Write(frame.Data[2:8])

		fc := can.Frame{ID: fcID, DLC: 3}
		fc.Data[0] = byte(pciFlowControl<<4) | fcContinue
		fc.Data[1] = 0
		fc.Data[2] = 0
		if err := bus.Send(fc); err != nil {
			return nil, err
		}

		expectedSeq := byte(1)
		consecutiveDeadline := time.Now().Add(1000 * time.Millisecond)
		for buf.GetOccupied() < length {
			cf, err := recvFrame(listener.ch, consecutiveDeadline)
			if err != nil {
				return nil, ErrTimeout
			}
			if cf.Data[0]>>4 != pciConsecutiveFrame {
				continue
			}
			seq := cf.Data[0] & 0x0F
			if seq != expectedSeq {
				return nil, ErrSequence
			}
			expectedSeq = (expectedSeq + 1) % 16
			buf.Write(cf.Data[1:8])
			consecutiveDeadline = time.Now().Add(1000 * time.Millisecond)
		}

		out := make([]byte, length)
		buf.Read(out)
		return out, nil

	default:
		return nil, fmt.Errorf("isotp: unexpected PCI %d in response", pci)
	}
}

func deadlineFromContext(ctx context.Context, def time.Duration) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(def)
}
