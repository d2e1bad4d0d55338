// Package socketcanv3 is a lower-level SocketCAN backend than pkg/can/socketcan:
// it opens the raw AF_CAN socket itself and drains it with batched
// recvmmsg(2) calls instead of going through a per-frame net.Conn read,
// trading the brutella/can dependency for direct golang.org/x/sys/unix calls.
// Registers as "socketcanv3"; pkg/can/socketcan remains the default
// "socketcan" backend.
package socketcanv3

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	can "github.com/vehdiag/vehdiag/pkg/can"
)

func init() {
	can.RegisterInterface("socketcanv3", NewBus)
}

const (
	canFrameSize = 16
	// msgBatchSize caps how many frames processIncoming drains per recvmmsg
	// call.
	msgBatchSize = 64
)

// canFrame mirrors struct can_frame from <linux/can.h>.
type canFrame struct {
	id   uint32
	dlc  uint8
	pad  uint8
	res0 uint8
	res1 uint8
	data [8]uint8
}

var defaultTimeVal = unix.Timeval{Usec: 100_000}

// Bus is a raw SocketCAN socket bound to one interface.
type Bus struct {
	fd         int
	rxCallback can.FrameListener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewBus opens and binds a raw CAN_RAW socket to channel (e.g. "can0"). The
// interface must already be up (ip link set <channel> up).
func NewBus(channel string) (can.Bus, error) {
	iface, err := net.InterfaceByName(channel)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcanv3: open socket: %w", err)
	}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &defaultTimeVal); err != nil {
		return nil, fmt.Errorf("socketcanv3: set read timeout: %w", err)
	}
	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err := unix.Bind(fd, addr); err != nil {
		return nil, fmt.Errorf("socketcanv3: bind %s: %w", channel, err)
	}
	return &Bus{fd: fd, logger: slog.Default().With("backend", "socketcanv3", "iface", channel)}, nil
}

// Connect starts the background batched-receive loop.
func (b *Bus) Connect(...any) error {
	var ctx context.Context
	ctx, b.cancel = context.WithCancel(context.Background())
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.processIncoming(ctx)
	}()
	return nil
}

// Disconnect stops the receive loop and waits for it to exit.
func (b *Bus) Disconnect() error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	b.wg.Wait()
	return unix.Close(b.fd)
}

// Send writes frame directly to the socket.
func (b *Bus) Send(frame can.Frame) error {
	raw := canFrame{id: frame.ID, dlc: frame.DLC, pad: frame.Flags, data: frame.Data}
	rawBytes := (*(*[canFrameSize]byte)(unsafe.Pointer(&raw)))[:]
	n, err := unix.Write(b.fd, rawBytes)
	if err != nil {
		return fmt.Errorf("socketcanv3: write: %w", err)
	}
	if n != canFrameSize {
		return fmt.Errorf("socketcanv3: short write: %d of %d bytes", n, canFrameSize)
	}
	return nil
}

// Subscribe registers the one callback that Handle is called on for every
// received frame.
func (b *Bus) Subscribe(rxCallback can.FrameListener) error {
	b.rxCallback = rxCallback
	return nil
}

// SetReceiveOwn toggles CAN_RAW_RECV_OWN_MSGS, useful for loopback testing
// against a vcan interface.
func (b *Bus) SetReceiveOwn(enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	return unix.SetsockoptInt(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, enabledInt)
}

// SetFilters installs kernel-side CAN_RAW_FILTER rules.
func (b *Bus) SetFilters(filters []unix.CanFilter) error {
	return unix.SetsockoptCanRawFilter(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters)
}

func (b *Bus) processIncoming(ctx context.Context) {
	if err := unix.SetNonblock(b.fd, false); err != nil {
		b.logger.Error("failed to set blocking mode", "err", err)
		return
	}

	frames := make([]canFrame, msgBatchSize)
	iovecs := make([]unix.Iovec, msgBatchSize)
	mmsgs := make([]mmsghdr, msgBatchSize)
	for i := 0; i < msgBatchSize; i++ {
		iovecs[i].Base = (*byte)(unsafe.Pointer(&frames[i]))
		iovecs[i].SetLen(canFrameSize)
		mmsgs[i].Hdr.Iov = &iovecs[i]
		mmsgs[i].Hdr.Iovlen = 1
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
			ts := unix.Timespec{Nsec: 10_000_000} // 10ms
			n, _, errno := unix.Syscall6(
				unix.SYS_RECVMMSG,
				uintptr(b.fd),
				uintptr(unsafe.Pointer(&mmsgs[0])),
				uintptr(msgBatchSize),
				0,
				uintptr(unsafe.Pointer(&ts)),
				0,
			)
			if errno != 0 {
				if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK || errno == unix.EINTR {
					continue
				}
				b.logger.Error("recvmmsg", "err", errno)
				return
			}
			nbMsg := int(n)
			if nbMsg == 0 {
				b.logger.Info("socket closed")
				return
			}
			for i := 0; i < nbMsg; i++ {
				f := frames[i]
				if b.rxCallback != nil {
					b.rxCallback.Handle(can.Frame{ID: f.id, DLC: f.dlc, Flags: f.pad, Data: f.data})
				}
			}
		}
	}
}
