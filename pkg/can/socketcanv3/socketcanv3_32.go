//go:build 386 || arm || mips || mipsle || ppc

package socketcanv3

import "golang.org/x/sys/unix"

// mmsghdr is a Go representation of the C struct mmsghdr (does not exist in
// golang.org/x/sys/unix). Hdr = 28 bytes, Len = 4 bytes, no padding needed to
// reach 32-byte alignment.
type mmsghdr struct {
	Hdr unix.Msghdr
	Len uint32
}
