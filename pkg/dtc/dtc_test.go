package dtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeISO15031Prefixes(t *testing.T) {
	cases := []struct {
		b1, b2 byte
		want   string
	}{
		{0x01, 0x43, "P0143"},
		{0x41, 0x43, "C0143"},
		{0x81, 0x43, "B0143"},
		{0xC1, 0x43, "U0143"},
	}
	for _, c := range cases {
		rec, ok := DecodeISO15031(c.b1, c.b2)
		assert.True(t, ok)
		assert.Equal(t, c.want, rec.Code())
	}
}

func TestDecodeISO15031ZeroIsNoDTC(t *testing.T) {
	_, ok := DecodeISO15031(0x00, 0x00)
	assert.False(t, ok)
}

func TestDecodeVAGOneFault(t *testing.T) {
	rec, ok := DecodeVAG(0x40, 0xAB, 0x23)
	assert.True(t, ok)
	assert.Equal(t, Vag, rec.Family)
	assert.EqualValues(t, 16555, rec.CodeNumber)
	assert.NotNil(t, rec.Status)
	assert.Equal(t, byte(0x23), *rec.Status)
}

func TestDecodeVAGAllFFIsNoFault(t *testing.T) {
	_, ok := DecodeVAG(0xFF, 0xFF, 0xFF)
	assert.False(t, ok)
}

func TestDecodeIsPure(t *testing.T) {
	rec1, _ := DecodeVAG(0x40, 0xAB, 0x23)
	rec2, _ := DecodeVAG(0x40, 0xAB, 0x23)
	assert.Equal(t, rec1.CodeNumber, rec2.CodeNumber)
	assert.Equal(t, *rec1.Status, *rec2.Status)
}
