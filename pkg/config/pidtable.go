package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// PIDDef describes one OBD-II PID: its human-readable name, the unit its
// decoded value is expressed in, and the byte count of its data payload.
type PIDDef struct {
	Name  string
	Unit  string
	Bytes int
}

// PIDTable maps a PID byte to its definition.
type PIDTable map[byte]PIDDef

// DefaultPIDTable covers the PIDs this project's scenarios and CLI
// exercise: RPM, vehicle speed, coolant temperature, VIN, and calibration
// ID, mirroring od.Default()'s "works with no file on disk" fallback.
func DefaultPIDTable() PIDTable {
	return PIDTable{
		0x0C: {Name: "engine_rpm", Unit: "rpm", Bytes: 2},
		0x0D: {Name: "vehicle_speed", Unit: "km/h", Bytes: 1},
		0x05: {Name: "coolant_temp", Unit: "C", Bytes: 1},
		0x02: {Name: "vin", Unit: "", Bytes: 17},
		0x04: {Name: "calibration_id", Unit: "", Bytes: 16},
	}
}

// LoadPIDTable reads a PID table from an ini-style descriptor file. Each
// section name is the PID in hex ("0C"), with keys "name", "unit", "bytes".
func LoadPIDTable(path string) (PIDTable, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load pid table %s: %w", path, err)
	}
	table := PIDTable{}
	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}
		var pid uint8
		if _, err := fmt.Sscanf(section.Name(), "%02X", &pid); err != nil {
			return nil, fmt.Errorf("config: invalid pid section %q: %w", section.Name(), err)
		}
		bytesCount, err := section.Key("bytes").Int()
		if err != nil {
			return nil, fmt.Errorf("config: pid %s: invalid bytes: %w", section.Name(), err)
		}
		table[pid] = PIDDef{
			Name:  section.Key("name").String(),
			Unit:  section.Key("unit").String(),
			Bytes: bytesCount,
		}
	}
	return table, nil
}
