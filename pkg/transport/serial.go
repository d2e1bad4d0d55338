package transport

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// bauds maps the POSIX-standard rates a K-line ECU advertises to their
// matching unix.B* termios constant. 10400 (KWP2000's own K-line rate) has
// no standard termios constant and is set through the BOTHER/Termios2
// custom-divisor path in setCustomBaud instead.
var bauds = map[int]uint32{
	1200: unix.B1200,
	2400: unix.B2400,
	4800: unix.B4800,
	9600: unix.B9600,
}

// SerialPort is a raw, 8-N-1, no-flow-control serial device configured with
// VMIN=0/VTIME=1 so reads return after a short (100ms) inter-byte timeout
// instead of blocking indefinitely.
type SerialPort struct {
	f *os.File
}

// OpenSerial opens path and configures it for raw half-duplex K-line use at
// baud. Returns ErrUnsupportedBaud if baud is neither a standard rate nor
// 10400, or ErrIO wrapping the underlying error if the device can't be
// opened or configured.
func OpenSerial(path string, baud int) (*SerialPort, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	port := &SerialPort{f: f}
	if err := port.SetBaud(baud); err != nil {
		f.Close()
		return nil, err
	}
	return port, nil
}

// SetBaud re-applies raw 8-N-1 termios settings at baud on an already-open
// device, used after 5-baud init measures the ECU's actual rate.
func (s *SerialPort) SetBaud(baud int) error {
	speed, ok := bauds[baud]
	if !ok {
		return s.setCustomBaud(baud)
	}
	fd := int(s.f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("%w: get termios: %v", ErrIO, err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1 // 100ms
	t.Cflag = (t.Cflag &^ unix.CBAUD) | speed
	t.Ispeed = speed
	t.Ospeed = speed

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("%w: set termios: %v", ErrIO, err)
	}
	return nil
}

// setCustomBaud configures a rate with no unix.B* termios constant (KWP2000's
// 10400 baud K-line rate chief among them) through the Linux termios2/BOTHER
// ioctl pair, which takes the divisor as a literal integer in Ispeed/Ospeed
// instead of an enum constant.
func (s *SerialPort) setCustomBaud(baud int) error {
	if baud != 10400 {
		return fmt.Errorf("%w: %d", ErrUnsupportedBaud, baud)
	}
	fd := int(s.f.Fd())
	t2, err := unix.IoctlGetTermios2(fd, unix.TCGETS2)
	if err != nil {
		return fmt.Errorf("%w: get termios2: %v", ErrIO, err)
	}

	t2.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t2.Oflag &^= unix.OPOST
	t2.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t2.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS
	t2.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD
	t2.Cc[unix.VMIN] = 0
	t2.Cc[unix.VTIME] = 1 // 100ms

	t2.Cflag = (t2.Cflag &^ unix.CBAUD) | unix.BOTHER
	t2.Ispeed = uint32(baud)
	t2.Ospeed = uint32(baud)

	if err := unix.IoctlSetTermios2(fd, unix.TCSETS2, t2); err != nil {
		return fmt.Errorf("%w: set termios2: %v", ErrIO, err)
	}
	return nil
}

func (s *SerialPort) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *SerialPort) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s *SerialPort) Close() error                { return s.f.Close() }
