package rank

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComfortTable_Weight(t *testing.T) {
	table := DefaultComfortTable()

	assert.Equal(t, 100.0, table.Weight("B747"))
	assert.Equal(t, 100.0, table.Weight("a380"))
	assert.Equal(t, 60.0, table.Weight(" b787 "))

	// Unknown types fall back to the default tier.
	assert.Equal(t, 30.0, table.Weight("CRJ9"))

	// Missing equipment scores the minimum, not the default.
	assert.Equal(t, 0.0, table.Weight(""))
	assert.Equal(t, 0.0, table.Weight("N/A"))
}

func TestComfortTable_WeightFreeTextEquipment(t *testing.T) {
	table := DefaultComfortTable()

	// Pricing sources report manufacturer names and variants.
	assert.Equal(t, 100.0, table.Weight("Boeing 747-8"))
	assert.Equal(t, 100.0, table.Weight("Boeing 747"))
	assert.Equal(t, 60.0, table.Weight("Airbus A350-900"))
	assert.Equal(t, 30.0, table.Weight("Boeing 737 MAX 8"))

	// Variant suffixes on a known code resolve to that code's tier.
	assert.Equal(t, 60.0, table.Weight("B789-10"))
}

func TestLoadComfortTable_MissingFileUsesBuiltin(t *testing.T) {
	table, err := LoadComfortTable(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultComfortTable(), table)
}

func TestLoadComfortTable_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comfort.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: 25\naircraft:\n  B747: 95\n"), 0o644))

	table, err := LoadComfortTable(path)
	require.NoError(t, err)
	assert.Equal(t, 25.0, table.Default)
	assert.Equal(t, 95.0, table.Weight("B747"))
	assert.Equal(t, 25.0, table.Weight("A380"))
}

func TestLoadComfortTable_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comfort.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: [broken"), 0o644))

	_, err := LoadComfortTable(path)
	require.Error(t, err)
}
