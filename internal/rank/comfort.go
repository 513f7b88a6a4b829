package rank

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ComfortTable maps aircraft types onto comfort tier weights. Double-deck
// wide-bodies sit above single-deck wide-bodies, which sit above
// narrow-bodies. Unknown types fall back to Default; a record with no
// aircraft at all scores zero for comfort.
type ComfortTable struct {
	Default  float64            `yaml:"default"`
	Aircraft map[string]float64 `yaml:"aircraft"`
}

// DefaultComfortTable returns the built-in tier weights used when no
// table file is configured.
func DefaultComfortTable() *ComfortTable {
	return &ComfortTable{
		Default: 30,
		Aircraft: map[string]float64{
			"A380": 100,
			"B747": 100,
			"B744": 100,
			"B773": 60,
			"B77W": 60,
			"B787": 60,
			"B789": 60,
			"A330": 60,
			"A350": 60,
			"A359": 60,
			"A320": 30,
			"A321": 30,
			"B737": 30,
			"B738": 30,
			"E175": 30,
		},
	}
}

// LoadComfortTable reads a YAML tier table. A missing file is not an
// error: the built-in table is returned so deployments without a tuned
// table still rank.
func LoadComfortTable(path string) (*ComfortTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultComfortTable(), nil
		}
		return nil, eris.Wrapf(err, "rank: read comfort table %s", path)
	}

	var table ComfortTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, eris.Wrap(err, "rank: parse comfort table")
	}
	if table.Aircraft == nil {
		table.Aircraft = make(map[string]float64)
	}
	return &table, nil
}

// manufacturerAliases folds free-text equipment names from the pricing
// source ("Boeing 747-8", "Airbus A350") onto the type codes the table
// is keyed by.
var manufacturerAliases = strings.NewReplacer("BOEING ", "B", "AIRBUS ", "")

// Weight returns the comfort tier weight for an aircraft type. Empty
// input means no source reported equipment and scores the minimum.
func (t *ComfortTable) Weight(aircraft string) float64 {
	key := strings.ToUpper(strings.TrimSpace(aircraft))
	if key == "" || key == "N/A" {
		return 0
	}
	if w, ok := t.Aircraft[key]; ok {
		return w
	}

	key = manufacturerAliases.Replace(key)
	best := ""
	for code := range t.Aircraft {
		if strings.HasPrefix(key, code) && len(code) > len(best) {
			best = code
		}
	}
	if best != "" {
		return t.Aircraft[best]
	}
	return t.Default
}
