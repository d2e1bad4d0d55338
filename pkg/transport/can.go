package transport

import (
	"fmt"

	"github.com/vehdiag/vehdiag/pkg/can"
	_ "github.com/vehdiag/vehdiag/pkg/can/socketcan"
	_ "github.com/vehdiag/vehdiag/pkg/can/socketcanv3"
	_ "github.com/vehdiag/vehdiag/pkg/can/virtual"
)

// OpenCAN resolves backend through pkg/can's registry and connects it to
// iface (e.g. "can0"). backend is typically "socketcan" (the brutella/can
// wrapper); "socketcanv3" selects the raw recvmmsg-batched backend instead.
// bitrateHz is informational only: on Linux the bit rate is expected to
// already be configured by `ip link set` before this process starts, per the
// device-abstraction contract.
func OpenCAN(backend, iface string, bitrateHz int) (can.Bus, error) {
	if backend == "" {
		backend = "socketcan"
	}
	bus, err := can.NewBus(backend, iface)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := bus.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", ErrIO, iface, err)
	}
	return bus, nil
}
