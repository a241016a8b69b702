package supplychain

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// RiskTable maps countries and industries to baseline risk contributions
// used by composite scoring. Keys are stored lowercase.
type RiskTable struct {
	Countries       map[string]float64 `yaml:"countries"`
	Industries      map[string]float64 `yaml:"industries"`
	CountryDefault  float64            `yaml:"default_country_risk"`
	IndustryDefault float64            `yaml:"default_industry_risk"`
}

// DefaultRiskTable returns the built-in geographic and industry baselines.
func DefaultRiskTable() *RiskTable {
	return &RiskTable{
		Countries: map[string]float64{
			"united states":  20,
			"usa":            20,
			"canada":         25,
			"japan":          25,
			"germany":        30,
			"australia":      30,
			"united kingdom": 35,
			"uk":             35,
			"france":         40,
			"italy":          50,
			"spain":          55,
			"china":          60,
			"venezuela":      60,
			"cuba":           60,
			"brazil":         65,
			"india":          70,
			"russia":         80,
			"belarus":        80,
			"myanmar":        80,
			"iran":           90,
			"syria":          90,
			"north korea":    95,
		},
		Industries: map[string]float64{
			"defense":        70,
			"aerospace":      70,
			"nuclear":        70,
			"chemical":       70,
			"pharmaceutical": 50,
			"medical":        50,
			"energy":         50,
			"mining":         50,
		},
		CountryDefault:  50,
		IndustryDefault: 30,
	}
}

// LoadRiskTable reads a YAML override file and merges it over the defaults.
// An empty path returns the defaults unchanged.
func LoadRiskTable(path string) (*RiskTable, error) {
	t := DefaultRiskTable()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "supplychain: read risk table %s", path)
	}
	var override RiskTable
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, eris.Wrapf(err, "supplychain: parse risk table %s", path)
	}
	for k, v := range override.Countries {
		t.Countries[strings.ToLower(k)] = v
	}
	for k, v := range override.Industries {
		t.Industries[strings.ToLower(k)] = v
	}
	if override.CountryDefault > 0 {
		t.CountryDefault = override.CountryDefault
	}
	if override.IndustryDefault > 0 {
		t.IndustryDefault = override.IndustryDefault
	}
	return t, nil
}

// CountryRisk returns the baseline risk for a country. Matching is
// case-insensitive and tolerates the table key appearing as a substring
// of the supplier's country field ("Iran (Islamic Republic of)").
func (t *RiskTable) CountryRisk(country string) float64 {
	c := strings.ToLower(strings.TrimSpace(country))
	if c == "" {
		return t.CountryDefault
	}
	if v, ok := t.Countries[c]; ok {
		return v
	}
	for k, v := range t.Countries {
		if strings.Contains(c, k) {
			return v
		}
	}
	return t.CountryDefault
}

// IndustryRisk returns the baseline risk for an industry, substring-matched
// against the table the same way as CountryRisk. An empty industry scores
// the table default.
func (t *RiskTable) IndustryRisk(industry string) float64 {
	ind := strings.ToLower(strings.TrimSpace(industry))
	if ind == "" {
		return t.IndustryDefault
	}
	if v, ok := t.Industries[ind]; ok {
		return v
	}
	for k, v := range t.Industries {
		if strings.Contains(ind, k) {
			return v
		}
	}
	return t.IndustryDefault
}

var countryTitle = cases.Title(language.English)

// DisplayCountry normalizes a country name for report output.
func DisplayCountry(country string) string {
	c := strings.TrimSpace(country)
	if c == "" {
		return "Unknown"
	}
	if len(c) <= 3 {
		return strings.ToUpper(c)
	}
	return countryTitle.String(strings.ToLower(c))
}
