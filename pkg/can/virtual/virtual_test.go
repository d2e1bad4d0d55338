package virtual

import (
	"sync"
	"testing"
	"time"

	can "github.com/vehdiag/vehdiag/pkg/can"
	"github.com/stretchr/testify/assert"
)

type FrameReceiver struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (fr *FrameReceiver) Handle(frame can.Frame) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.frames = append(fr.frames, frame)
}

func (fr *FrameReceiver) count() int {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return len(fr.frames)
}

func newLoopback(t *testing.T) *Bus {
	t.Helper()
	bus, err := NewVirtualCanBus("")
	if err != nil {
		t.Fatalf("new virtual bus: %v", err)
	}
	b := bus.(*Bus)
	if err := b.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return b
}

func TestBlankChannelEchoesByDefault(t *testing.T) {
	bus := newLoopback(t)
	defer bus.Disconnect()

	receiver := &FrameReceiver{}
	if err := bus.Subscribe(receiver); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	frame := can.Frame{ID: 0x111, DLC: 8, Data: [8]byte{0, 1, 2, 3, 4, 5, 6, 7}}
	bus.Send(frame)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, receiver.count())
}

func TestReceiveOwnEchoesLocally(t *testing.T) {
	bus := newLoopback(t)
	defer bus.Disconnect()

	receiver := &FrameReceiver{}
	bus.Subscribe(receiver)
	bus.SetReceiveOwn(true)

	frame := can.Frame{ID: 0x7E8, DLC: 3, Data: [8]byte{0x41, 0x0C, 0x1A}}
	if err := bus.Send(frame); err != nil {
		t.Fatalf("send: %v", err)
	}
	assert.Equal(t, 1, receiver.count())
	assert.EqualValues(t, 0x7E8, receiver.frames[0].ID)
}

func TestSendWithoutConnectionFails(t *testing.T) {
	bus, err := NewVirtualCanBus("localhost:0")
	if err != nil {
		t.Fatalf("new virtual bus: %v", err)
	}
	err = bus.Send(can.Frame{ID: 0x100, DLC: 1, Data: [8]byte{1}})
	assert.Error(t, err)
}
