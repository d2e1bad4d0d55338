// Package config loads the vehicle/session configuration this project
// needs: the ECU well-known address table and the OBD-II PID table, both
// as .ini-style descriptor files via gopkg.in/ini.v1, plus the Connection
// value describing whichever transport the caller picked.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Config aggregates the descriptor-file-driven tables. Zero value is
// usable: Default() returns one backed entirely by the compiled-in tables.
type Config struct {
	ECUAddresses map[string]byte
	PIDs         PIDTable
}

// Default returns a Config backed by the compiled-in tables, so the CLI
// works with no descriptor file on disk.
func Default() Config {
	return Config{ECUAddresses: ECUAddresses, PIDs: DefaultPIDTable()}
}

// LoadECUAddresses reads an ECU address table from an ini file with a
// single section whose keys are ECU names and values hex address bytes.
func LoadECUAddresses(path string) (map[string]byte, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load ecu table %s: %w", path, err)
	}
	table := map[string]byte{}
	for _, key := range cfg.Section("").Keys() {
		var addr uint8
		if _, err := fmt.Sscanf(key.Value(), "%02X", &addr); err != nil {
			return nil, fmt.Errorf("config: invalid ecu address %q for %s: %w", key.Value(), key.Name(), err)
		}
		table[key.Name()] = addr
	}
	return table, nil
}

// Load reads both descriptor files, falling back to compiled-in defaults
// for either path passed as "". A non-empty path that cannot be loaded is
// an error.
func Load(ecuPath, pidPath string) (Config, error) {
	cfg := Default()
	if ecuPath != "" {
		table, err := LoadECUAddresses(ecuPath)
		if err != nil {
			return Config{}, err
		}
		cfg.ECUAddresses = table
	}
	if pidPath != "" {
		table, err := LoadPIDTable(pidPath)
		if err != nil {
			return Config{}, err
		}
		cfg.PIDs = table
	}
	return cfg, nil
}
