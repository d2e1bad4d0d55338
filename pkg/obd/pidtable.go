package obd

import "github.com/vehdiag/vehdiag/pkg/config"

// DecodeFunc interprets a PID's raw response bytes as a physical value.
type DecodeFunc func(data []byte) float64

// decoders covers the numeric PIDs of config.DefaultPIDTable (RPM, vehicle
// speed, coolant temperature); a PID absent here, VIN and calibration ID
// included, has no known decode and callers fall back to raw bytes.
var decoders = map[byte]DecodeFunc{
	0x0C: func(data []byte) float64 { return (float64(data[0])*256 + float64(data[1])) / 4 },
	0x0D: func(data []byte) float64 { return float64(data[0]) },
	0x05: func(data []byte) float64 { return float64(data[0]) - 40 },
}

// Decode applies pid's known decode function to data, matching scenario 4's
// RPM = ((0x1A<<8)|0xF8)/4 formula.
func Decode(pid byte, data []byte) (float64, bool) {
	f, ok := decoders[pid]
	if !ok {
		return 0, false
	}
	return f(data), true
}

// Lookup returns the PID's definition from the default table.
func Lookup(pid byte) (config.PIDDef, bool) {
	def, ok := config.DefaultPIDTable()[pid]
	return def, ok
}
