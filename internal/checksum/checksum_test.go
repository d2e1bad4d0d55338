package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComplement(t *testing.T) {
	assert.Equal(t, byte(0x00), Complement(0xFF))
	assert.Equal(t, byte(0x75), Complement(0x8A))
}

func TestIsComplement(t *testing.T) {
	assert.True(t, IsComplement(0x8A, 0x75))
	assert.False(t, IsComplement(0x8A, 0x8A))
}

func TestSum8Wraps(t *testing.T) {
	assert.Equal(t, byte(0), Sum8([]byte{0xFF, 0x01}))
	assert.Equal(t, byte(0x34), Sum8([]byte{0x82, 0x28, 0xF1, 0x10, 0x89}))
}
