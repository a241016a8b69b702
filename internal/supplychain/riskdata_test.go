package supplychain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskTable_CountryRisk(t *testing.T) {
	table := DefaultRiskTable()

	cases := []struct {
		country string
		want    float64
	}{
		{"germany", 30},
		{"Germany", 30},
		{"  USA  ", 20},
		{"north korea", 95},
		{"Iran (Islamic Republic of)", 90},
		{"United States of America", 20},
		{"", 50},
		{"Atlantis", 50},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, table.CountryRisk(tc.country), "country %q", tc.country)
	}
}

func TestRiskTable_IndustryRisk(t *testing.T) {
	table := DefaultRiskTable()

	assert.Equal(t, 70.0, table.IndustryRisk("defense"))
	assert.Equal(t, 70.0, table.IndustryRisk("Aerospace & Defense"))
	assert.Equal(t, 50.0, table.IndustryRisk("pharmaceutical"))
	assert.Equal(t, 30.0, table.IndustryRisk(""))
	assert.Equal(t, 30.0, table.IndustryRisk("retail"))
}

func TestLoadRiskTable_EmptyPath(t *testing.T) {
	table, err := LoadRiskTable("")
	require.NoError(t, err)
	assert.Equal(t, 30.0, table.CountryRisk("germany"))
}

func TestLoadRiskTable_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.yaml")
	data := `countries:
  Germany: 45
  wakanda: 15
industries:
  retail: 20
default_country_risk: 55
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	table, err := LoadRiskTable(path)
	require.NoError(t, err)

	// Overrides merge over the defaults, keys lowercased.
	assert.Equal(t, 45.0, table.CountryRisk("germany"))
	assert.Equal(t, 15.0, table.CountryRisk("Wakanda"))
	assert.Equal(t, 95.0, table.CountryRisk("north korea"))
	assert.Equal(t, 20.0, table.IndustryRisk("retail"))
	assert.Equal(t, 70.0, table.IndustryRisk("defense"))
	assert.Equal(t, 55.0, table.CountryRisk("Atlantis"))
}

func TestLoadRiskTable_Errors(t *testing.T) {
	_, err := LoadRiskTable(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("countries: [not, a, map]"), 0o644))
	_, err = LoadRiskTable(bad)
	require.Error(t, err)
}

func TestDisplayCountry(t *testing.T) {
	assert.Equal(t, "Unknown", DisplayCountry("  "))
	assert.Equal(t, "USA", DisplayCountry("usa"))
	assert.Equal(t, "UK", DisplayCountry("uk"))
	assert.Equal(t, "Germany", DisplayCountry("GERMANY"))
	assert.Equal(t, "North Korea", DisplayCountry("north korea"))
}
