package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteReadRoundTrip(t *testing.T) {
	f := NewFifo(8)
	n := f.Write([]byte{1, 2, 3, 4})
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, f.GetOccupied())

	out := make([]byte, 4)
	got := f.Read(out)
	assert.Equal(t, 4, got)
	assert.Equal(t, []byte{1, 2, 3, 4}, out)
	assert.Equal(t, 0, f.GetOccupied())
}

func TestWriteStopsWhenFull(t *testing.T) {
	f := NewFifo(4)
	n := f.Write([]byte{1, 2, 3, 4, 5, 6})
	assert.Equal(t, 3, n, "one slot always stays empty to distinguish full from empty")
}

func TestWrapAround(t *testing.T) {
	f := NewFifo(4)
	f.Write([]byte{1, 2, 3})
	out := make([]byte, 2)
	f.Read(out)
	f.Write([]byte{4, 5})
	remaining := make([]byte, 3)
	n := f.Read(remaining)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{3, 4, 5}, remaining)
}

func TestReset(t *testing.T) {
	f := NewFifo(4)
	f.Write([]byte{1, 2})
	f.Reset()
	assert.Equal(t, 0, f.GetOccupied())
}
