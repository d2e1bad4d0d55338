package config

// ECUAddresses is the well-known K-line address table (spec.md §4.C step 1).
// Keys are the human-readable ECU name, values the 5-baud address byte.
var ECUAddresses = map[string]byte{
	"engine":             0x01,
	"transmission":       0x02,
	"brakes":             0x03,
	"hvac":               0x08,
	"cluster":            0x17,
	"gateway":            0x19,
	"central_convenience": 0x46,
	"radio":              0x56,
	"parking_aid":        0x76,
}
