package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHasKnownECUs(t *testing.T) {
	cfg := Default()
	assert.Equal(t, byte(0x01), cfg.ECUAddresses["engine"])
	assert.Equal(t, byte(0x76), cfg.ECUAddresses["parking_aid"])
}

func TestDefaultHasKnownPIDs(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "engine_rpm", cfg.PIDs[0x0C].Name)
}

func TestLoadECUAddresses(t *testing.T) {
	table, err := LoadECUAddresses("testdata/ecus.ini")
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), table["engine"])
	assert.Equal(t, byte(0x03), table["brakes"])
}

func TestLoadPIDTable(t *testing.T) {
	table, err := LoadPIDTable("testdata/pids.ini")
	require.NoError(t, err)
	assert.Equal(t, "engine_rpm", table[0x0C].Name)
	assert.Equal(t, 2, table[0x0C].Bytes)
}
