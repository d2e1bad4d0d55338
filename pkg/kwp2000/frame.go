package kwp2000

import (
	"fmt"

	"github.com/vehdiag/vehdiag/internal/checksum"
)

// Encode builds a KWP2000 frame. Payloads up to 63 bytes use the short form
// (0x80|len, target, source, data..., checksum); longer payloads use the
// alternate form with length in its own byte (0x80, target, source, 0x00,
// length, data..., checksum).
func Encode(target, source byte, data []byte) []byte {
	var header []byte
	if len(data) <= 63 {
		header = []byte{0x80 | byte(len(data)), target, source}
	} else {
		header = []byte{0x80, target, source, 0x00, byte(len(data))}
	}
	frame := append(append([]byte{}, header...), data...)
	return append(frame, checksum.Sum8(frame))
}

// Decode parses a KWP2000 frame, validating its checksum, and returns the
// target, source, and data fields.
func Decode(frame []byte) (target, source byte, data []byte, err error) {
	if len(frame) < 4 {
		return 0, 0, nil, fmt.Errorf("kwp2000: frame too short")
	}
	fmtByte := frame[0]
	target = frame[1]
	source = frame[2]

	lengthField := fmtByte & 0x3F
	var body []byte
	var checksumIdx int
	if lengthField == 0 && len(frame) >= 5 && frame[3] == 0x00 {
		length := int(frame[4])
		start := 5
		if len(frame) < start+length+1 {
			return 0, 0, nil, fmt.Errorf("kwp2000: truncated long frame")
		}
		body = frame[start : start+length]
		checksumIdx = start + length
	} else {
		length := int(lengthField)
		start := 3
		if len(frame) < start+length+1 {
			return 0, 0, nil, fmt.Errorf("kwp2000: truncated frame")
		}
		body = frame[start : start+length]
		checksumIdx = start + length
	}

	want := checksum.Sum8(frame[:checksumIdx])
	if frame[checksumIdx] != want {
		return 0, 0, nil, ErrChecksumMismatch
	}
	return target, source, append([]byte{}, body...), nil
}
