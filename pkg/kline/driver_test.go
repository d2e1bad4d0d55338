package kline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// echoSerial is a fake half-duplex line: every Write is appended to a queue
// that the next Read drains, the way the physical transceiver echoes a
// transmitted byte back to the receiver.
type echoSerial struct {
	queue    []byte
	corrupt  bool
	lastBaud int
}

func (e *echoSerial) Write(p []byte) (int, error) {
	for _, b := range p {
		if e.corrupt {
			b ^= 0xFF
		}
		e.queue = append(e.queue, b)
	}
	return len(p), nil
}

func (e *echoSerial) Read(p []byte) (int, error) {
	if len(e.queue) == 0 {
		return 0, nil
	}
	n := copy(p, e.queue)
	e.queue = e.queue[n:]
	return n, nil
}

func (e *echoSerial) SetBaud(baud int) error {
	e.lastBaud = baud
	return nil
}

func newTestDriver(serial SerialDevice) *Driver {
	return NewDriver(serial, nil, nil)
}

func TestSendSucceedsOnCleanEcho(t *testing.T) {
	d := newTestDriver(&echoSerial{})
	err := d.Send([]byte{0x01, 0x02, 0x03})
	assert.NoError(t, err)
}

func TestSendFailsOnEchoMismatch(t *testing.T) {
	d := newTestDriver(&echoSerial{corrupt: true})
	err := d.Send([]byte{0x01})
	assert.ErrorIs(t, err, ErrEchoMismatch)
}

func TestReceiveTimesOutWithNoData(t *testing.T) {
	d := newTestDriver(&echoSerial{})
	_, err := d.Receive(1, time.Now().Add(10*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSnapToKnownBaudExactMatch(t *testing.T) {
	for _, b := range knownBauds {
		assert.Equal(t, b, snapToKnownBaud(b))
	}
}

func TestSnapToKnownBaudWithinTolerance(t *testing.T) {
	// 10638 baud is within 5% of 10400 and must snap there (spec scenario 5).
	assert.Equal(t, 10400, snapToKnownBaud(10638))
}

func TestAddressFrameBitsOddParity(t *testing.T) {
	// Engine ECU address 0x01: one set bit among the low 7 is already an
	// odd count, so the parity bit must be 0 to keep the total odd.
	bits := addressFrameBits(0x01)
	assert.Len(t, bits, 10)
	assert.False(t, bits[0], "start bit must be low")
	assert.True(t, bits[9], "stop bit must be high")

	ones := 0
	for _, b := range bits[1:9] {
		if b {
			ones++
		}
	}
	assert.True(t, ones%2 == 1, "data+parity bits must sum to an odd count of ones")
}

func TestAddressFrameBitsLSBFirst(t *testing.T) {
	bits := addressFrameBits(0x02) // 0b0000010
	assert.False(t, bits[1], "bit0 (LSB) of 0x02 is 0")
	assert.True(t, bits[2], "bit1 of 0x02 is 1")
}
