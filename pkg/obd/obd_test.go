package obd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildRequest(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x0C}, BuildRequest(Service01Current, 0x0C))
}

func TestParseResponseOK(t *testing.T) {
	data, err := ParseResponse(Service01Current, []byte{0x41, 0x0C, 0x1A, 0xF8})
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x0C, 0x1A, 0xF8}, data)
}

func TestParseResponseNegative(t *testing.T) {
	_, err := ParseResponse(Service01Current, []byte{0x7F, 0x01, 0x11})
	var nr *NegativeResponse
	assert.ErrorAs(t, err, &nr)
	assert.Equal(t, byte(0x01), nr.Service)
	assert.Equal(t, byte(0x11), nr.NRC)
}

func TestDecodeRPMMatchesScenario(t *testing.T) {
	value, ok := Decode(0x0C, []byte{0x1A, 0xF8})
	assert.True(t, ok)
	assert.Equal(t, 1726.0, value)
}
