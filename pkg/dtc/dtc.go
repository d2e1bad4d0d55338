// Package dtc turns raw Diagnostic Trouble Code bytes, in either of the two
// wire forms this project speaks, into a normalised Record. Every function
// here is pure: no I/O, no state, decoding the same bytes twice always
// yields equal records.
package dtc

import "fmt"

// Family names which vehicle's code scheme a Record came from.
type Family int

const (
	Iso15031 Family = iota
	Vag
)

func (f Family) String() string {
	if f == Vag {
		return "VAG"
	}
	return "ISO15031"
}

// isoPrefix maps the top two bits of an ISO 15031 code word to its letter,
// grounded on the same const-block-plus-lookup idiom used for CANopen
// emergency error codes.
var isoPrefix = [4]byte{'P', 'C', 'B', 'U'}

// Record is the normalised decode of a raw DTC. For Iso15031 records,
// CodeNumber is the full 16-bit code word (family bits included); Code()
// splits it back out for display. For Vag records, CodeNumber is the
// hi/lo value read as a decimal 5-digit code per spec.
type Record struct {
	Family     Family
	CodeNumber uint32
	Status     *byte
	Raw        []byte
}

// Code renders the record as the conventional code string ("P0143" for
// Iso15031; the bare decimal number for Vag).
func (r Record) Code() string {
	if r.Family != Iso15031 {
		return fmt.Sprintf("%d", r.CodeNumber)
	}
	prefix := isoPrefix[(r.CodeNumber>>14)&0x3]
	return fmt.Sprintf("%c%04X", prefix, r.CodeNumber&0x3FFF)
}

// DecodeISO15031 decodes the standard 2-byte OBD-II DTC form: the top two
// bits of the 16-bit word select the family prefix (00 P, 01 C, 10 B, 11 U)
// and the remaining 14 bits form the four hex digits. A zero word means
// "no DTC" and ok is false.
func DecodeISO15031(b1, b2 byte) (Record, bool) {
	word := uint16(b1)<<8 | uint16(b2)
	if word == 0 {
		return Record{}, false
	}
	return Record{Family: Iso15031, CodeNumber: uint32(word), Raw: []byte{b1, b2}}, true
}

// DecodeVAG decodes the KWP1281 3-byte VAG form: hi/lo form a big-endian
// 16-bit value read as a decimal 5-digit code, status is carried verbatim.
// An all-0xFF triplet means "no faults" and ok is false.
func DecodeVAG(hi, lo, status byte) (Record, bool) {
	if hi == 0xFF && lo == 0xFF && status == 0xFF {
		return Record{}, false
	}
	code := uint32(hi)<<8 | uint32(lo)
	s := status
	return Record{Family: Vag, CodeNumber: code, Status: &s, Raw: []byte{hi, lo, status}}, true
}
