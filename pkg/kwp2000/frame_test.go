package kwp2000

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeStartDiagnosticSessionMatchesScenario(t *testing.T) {
	frame := Encode(0x28, 0xF1, []byte{0x10, 0x89})
	assert.Equal(t, []byte{0x82, 0x28, 0xF1, 0x10, 0x89, 0x34}, frame)
}

func TestDecodeStartDiagnosticSessionReply(t *testing.T) {
	target, source, data, err := Decode([]byte{0x82, 0xF1, 0x28, 0x50, 0x89, 0x74})
	assert.NoError(t, err)
	assert.Equal(t, byte(0xF1), target)
	assert.Equal(t, byte(0x28), source)
	assert.Equal(t, []byte{0x50, 0x89}, data)
}

func TestDecodeReadDTCsReply(t *testing.T) {
	target, source, data, err := Decode([]byte{0x82, 0xF1, 0x28, 0x58, 0x00, 0xF3})
	assert.NoError(t, err)
	assert.Equal(t, byte(0xF1), target)
	assert.Equal(t, byte(0x28), source)
	assert.Equal(t, []byte{0x58, 0x00}, data)
}

func TestDecodeChecksumMismatch(t *testing.T) {
	_, _, _, err := Decode([]byte{0x82, 0xF1, 0x28, 0x58, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestEncodeDecodeRoundTripLongForm(t *testing.T) {
	data := make([]byte, 80)
	for i := range data {
		data[i] = byte(i)
	}
	frame := Encode(0x10, 0xF1, data)
	target, source, got, err := Decode(frame)
	assert.NoError(t, err)
	assert.Equal(t, byte(0x10), target)
	assert.Equal(t, byte(0xF1), source)
	assert.Equal(t, data, got)
}
