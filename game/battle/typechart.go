package battle

import "fmt"

// TypeChart maps attacking type → defending type → damage multiplier.
// It is immutable after construction and safe for concurrent reads.
type TypeChart struct {
	m map[string]map[string]float64
}

func validMultiplier(v float64) bool {
	return v == 0 || v == 0.5 || v == 1 || v == 2
}

// NewTypeChart copies the given relations into a chart.
// Multipliers outside {0, 0.5, 1, 2} are rejected.
func NewTypeChart(relations map[string]map[string]float64) (*TypeChart, error) {
	m := make(map[string]map[string]float64, len(relations))
	for atk, row := range relations {
		cp := make(map[string]float64, len(row))
		for def, v := range row {
			if !validMultiplier(v) {
				return nil, fmt.Errorf("type chart %s→%s: invalid multiplier %v", atk, def, v)
			}
			cp[def] = v
		}
		m[atk] = cp
	}
	return &TypeChart{m: m}, nil
}

// Multiplier returns the multiplier for one attacking/defending pair.
// Unlisted pairs are neutral.
func (tc *TypeChart) Multiplier(attacking, defending string) float64 {
	if tc == nil {
		return 1
	}
	if row, ok := tc.m[attacking]; ok {
		if v, ok := row[defending]; ok {
			return v
		}
	}
	return 1
}

// Effectiveness is the product of multipliers over all defending types.
func (tc *TypeChart) Effectiveness(attacking string, defending []string) float64 {
	eff := 1.0
	for _, d := range defending {
		eff *= tc.Multiplier(attacking, d)
	}
	return eff
}

// Types lists the attacking types present in the chart.
func (tc *TypeChart) Types() []string {
	out := make([]string, 0, len(tc.m))
	for t := range tc.m {
		out = append(out, t)
	}
	return out
}

// Relations returns a deep copy of the chart's contents.
func (tc *TypeChart) Relations() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(tc.m))
	for atk, row := range tc.m {
		cp := make(map[string]float64, len(row))
		for def, v := range row {
			cp[def] = v
		}
		out[atk] = cp
	}
	return out
}

type typeRelations struct {
	double, half, none []string
}

var defaultRelations = map[string]typeRelations{
	"normal":   {none: []string{"ghost"}, half: []string{"rock", "steel"}},
	"fire":     {double: []string{"grass", "ice", "bug", "steel"}, half: []string{"fire", "water", "rock", "dragon"}},
	"water":    {double: []string{"fire", "ground", "rock"}, half: []string{"water", "grass", "dragon"}},
	"electric": {double: []string{"water", "flying"}, half: []string{"electric", "grass", "dragon"}, none: []string{"ground"}},
	"grass":    {double: []string{"water", "ground", "rock"}, half: []string{"fire", "grass", "poison", "flying", "bug", "dragon", "steel"}},
	"ice":      {double: []string{"grass", "ground", "flying", "dragon"}, half: []string{"fire", "water", "ice", "steel"}},
	"fighting": {double: []string{"normal", "ice", "rock", "dark", "steel"}, half: []string{"poison", "flying", "psychic", "bug", "fairy"}, none: []string{"ghost"}},
	"poison":   {double: []string{"grass", "fairy"}, half: []string{"poison", "ground", "rock", "ghost"}, none: []string{"steel"}},
	"ground":   {double: []string{"fire", "electric", "poison", "rock", "steel"}, half: []string{"grass", "bug"}, none: []string{"flying"}},
	"flying":   {double: []string{"grass", "fighting", "bug"}, half: []string{"electric", "rock", "steel"}},
	"psychic":  {double: []string{"fighting", "poison"}, half: []string{"psychic", "steel"}, none: []string{"dark"}},
	"bug":      {double: []string{"grass", "psychic", "dark"}, half: []string{"fire", "fighting", "poison", "flying", "ghost", "steel", "fairy"}},
	"rock":     {double: []string{"fire", "ice", "flying", "bug"}, half: []string{"fighting", "ground", "steel"}},
	"ghost":    {double: []string{"psychic", "ghost"}, half: []string{"dark"}, none: []string{"normal"}},
	"dragon":   {double: []string{"dragon"}, half: []string{"steel"}, none: []string{"fairy"}},
	"dark":     {double: []string{"psychic", "ghost"}, half: []string{"fighting", "dark", "fairy"}},
	"steel":    {double: []string{"ice", "rock", "fairy"}, half: []string{"fire", "water", "electric", "steel"}},
	"fairy":    {double: []string{"fighting", "dragon", "dark"}, half: []string{"fire", "poison", "steel"}},
}

// DefaultTypeChart returns the standard 18-type chart. It is used when the
// remote type data is unavailable.
func DefaultTypeChart() *TypeChart {
	m := make(map[string]map[string]float64, len(defaultRelations))
	for atk, rel := range defaultRelations {
		row := make(map[string]float64)
		for _, d := range rel.double {
			row[d] = 2
		}
		for _, d := range rel.half {
			row[d] = 0.5
		}
		for _, d := range rel.none {
			row[d] = 0
		}
		m[atk] = row
	}
	return &TypeChart{m: m}
}
