package isotp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vehdiag/vehdiag/pkg/can"
	_ "github.com/vehdiag/vehdiag/pkg/can/virtual"
)

func newLoopbackBus(t *testing.T) can.Bus {
	t.Helper()
	bus, err := can.NewBus("virtual", "")
	require.NoError(t, err)
	require.NoError(t, bus.Connect())
	type receiveOwnSetter interface{ SetReceiveOwn(bool) }
	if ro, ok := bus.(receiveOwnSetter); ok {
		ro.SetReceiveOwn(true)
	}
	return bus
}

func TestSingleFrameRoundTrip(t *testing.T) {
	bus := newLoopbackBus(t)
	defer bus.Disconnect()

	payload := []byte{0x01, 0x0C}
	go func() {
		_ = Send(context.Background(), bus, 0x7DF, payload)
	}()

	got, err := Receive(context.Background(), bus, 0x7DF, 0x7DF, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestMultiFrameRoundTrip(t *testing.T) {
	bus := newLoopbackBus(t)
	defer bus.Disconnect()

	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- Send(context.Background(), bus, 0x7E0, payload) }()

	got, err := Receive(context.Background(), bus, 0x7E0, 0x7E8, time.Now().Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NoError(t, <-errCh)
}
