package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vehdiag/vehdiag/pkg/can"
	_ "github.com/vehdiag/vehdiag/pkg/can/virtual"
)

func TestRunCANEchoRespondsToRPMRequest(t *testing.T) {
	bus, err := can.NewBus("virtual", "")
	require.NoError(t, err)
	require.NoError(t, bus.Connect())
	type receiveOwnSetter interface{ SetReceiveOwn(bool) }
	if ro, ok := bus.(receiveOwnSetter); ok {
		ro.SetReceiveOwn(true)
	}
	defer bus.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- RunCANEcho(ctx, bus) }()

	reply := make(chan can.Frame, 1)
	bus.Subscribe(frameCapture(reply))

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, bus.Send(can.Frame{ID: 0x7DF, DLC: 8, Data: [8]byte{0x02, 0x01, 0x0C, 0, 0, 0, 0, 0}}))

	select {
	case f := <-reply:
		assert.EqualValues(t, 0x7E8, f.ID)
		assert.Equal(t, byte(0x41), f.Data[1])
		assert.Equal(t, byte(0x0C), f.Data[2])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for simulator reply")
	}
	require.NoError(t, <-done)
}

type frameCapture chan can.Frame

func (f frameCapture) Handle(frame can.Frame) {
	if frame.ID == 0x7E8 {
		f <- frame
	}
}
