package battle

import (
	"fmt"
	"strings"
)

// Level is the fixed level every combatant fights at.
const Level = 50

// MaxMoves is the maximum number of moves a combatant brings into battle.
const MaxMoves = 4

// Stat identifies a stage-modifiable stat.
type Stat int

const (
	StatAttack Stat = iota
	StatDefense
	StatSpAttack
	StatSpDefense
	StatSpeed
	StatAccuracy
	StatEvasion
	numStats
)

var statNames = [numStats]string{
	"attack", "defense", "sp_attack", "sp_defense", "speed", "accuracy", "evasion",
}

func (s Stat) String() string {
	if s < 0 || s >= numStats {
		return fmt.Sprintf("stat(%d)", int(s))
	}
	return statNames[s]
}

func (s Stat) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Stat) UnmarshalText(b []byte) error {
	v, ok := ParseStat(string(b))
	if !ok {
		return fmt.Errorf("battle: unknown stat %q", b)
	}
	*s = v
	return nil
}

// Label returns the display name used in battle log lines.
func (s Stat) Label() string {
	switch s {
	case StatAttack:
		return "Attack"
	case StatDefense:
		return "Defense"
	case StatSpAttack:
		return "Special Attack"
	case StatSpDefense:
		return "Special Defense"
	case StatSpeed:
		return "Speed"
	case StatAccuracy:
		return "Accuracy"
	case StatEvasion:
		return "Evasion"
	}
	return s.String()
}

// ParseStat accepts both internal names ("sp_attack") and PokeAPI names
// ("special-attack"). HP is not stage-modifiable and is rejected.
func ParseStat(name string) (Stat, bool) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	switch n {
	case "special_attack":
		n = "sp_attack"
	case "special_defense":
		n = "sp_defense"
	}
	for i, s := range statNames {
		if s == n {
			return Stat(i), true
		}
	}
	return 0, false
}

// Category is a move's damage class.
type Category string

const (
	CategoryPhysical Category = "physical"
	CategorySpecial  Category = "special"
	CategoryStatus   Category = "status"
)

// IsDamaging reports whether moves of this category deal direct damage.
func (c Category) IsDamaging() bool {
	return c == CategoryPhysical || c == CategorySpecial
}

// BaseStats are a species' unmodified stats.
type BaseStats struct {
	HP        int `json:"hp"`
	Attack    int `json:"attack"`
	Defense   int `json:"defense"`
	SpAttack  int `json:"special-attack"`
	SpDefense int `json:"special-defense"`
	Speed     int `json:"speed"`
}

// Get returns the base value for a stage-modifiable stat.
// Accuracy and evasion have no base value and report 0.
func (b BaseStats) Get(s Stat) int {
	switch s {
	case StatAttack:
		return b.Attack
	case StatDefense:
		return b.Defense
	case StatSpAttack:
		return b.SpAttack
	case StatSpDefense:
		return b.SpDefense
	case StatSpeed:
		return b.Speed
	}
	return 0
}

// PokemonRecord is the immutable description of a combatant species.
type PokemonRecord struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	BaseStats      BaseStats `json:"base_stats"`
	Types          []string  `json:"types"`
	Abilities      []string  `json:"abilities"`
	Moves          []string  `json:"moves"`
	EvolutionChain []string  `json:"evolution_chain"`
}

// HasType reports whether the record carries the given type.
func (p *PokemonRecord) HasType(t string) bool {
	for _, own := range p.Types {
		if own == t {
			return true
		}
	}
	return false
}

// MoveMeta holds the optional mechanical metadata of a move.
type MoveMeta struct {
	Ailment       string `json:"ailment,omitempty"`
	AilmentChance int    `json:"ailment_chance,omitempty"`
	CritRate      int    `json:"crit_rate,omitempty"`
	Drain         int    `json:"drain,omitempty"` // negative = recoil
	FlinchChance  int    `json:"flinch_chance,omitempty"`
	Healing       int    `json:"healing,omitempty"`
	StatChance    int    `json:"stat_chance,omitempty"`
	MinHits       int    `json:"min_hits,omitempty"`
	MaxHits       int    `json:"max_hits,omitempty"`
}

// StatChange is a stage delta carried by a move.
type StatChange struct {
	Stat   string `json:"stat"`
	Change int    `json:"change"`
}

// MoveRecord is the immutable description of a move.
// Power, Accuracy and EffectChance are nil when the source omits them.
type MoveRecord struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	Type         string       `json:"type"`
	Power        *int         `json:"power"`
	PP           int          `json:"pp"`
	Accuracy     *int         `json:"accuracy"`
	Priority     int          `json:"priority"`
	Category     Category     `json:"category"`
	EffectChance *int         `json:"effect_chance"`
	ShortEffect  string       `json:"short_effect,omitempty"`
	Meta         MoveMeta     `json:"meta"`
	StatChanges  []StatChange `json:"stat_changes,omitempty"`
}

// DefaultPower is used for damaging moves that carry no power value.
const DefaultPower = 40

// EffectivePower returns the power used by the damage formula.
func (m *MoveRecord) EffectivePower() int {
	if m.Power != nil {
		return *m.Power
	}
	if m.Category.IsDamaging() {
		return DefaultPower
	}
	return 0
}

// EffectiveAccuracy returns the accuracy threshold; absent means 100.
func (m *MoveRecord) EffectiveAccuracy() int {
	if m.Accuracy == nil {
		return 100
	}
	return *m.Accuracy
}

// EffectText returns the short effect with $effect_chance substituted.
func (m *MoveRecord) EffectText() string {
	if m.ShortEffect == "" || m.EffectChance == nil {
		return m.ShortEffect
	}
	return strings.ReplaceAll(m.ShortEffect, "$effect_chance", fmt.Sprint(*m.EffectChance))
}

// IsMultiHit reports whether the move strikes more than once.
func (m *MoveRecord) IsMultiHit() bool {
	return m.Meta.MaxHits > 1
}

// Int returns a pointer to v, for building records with optional fields.
func Int(v int) *int { return &v }

// StruggleMove is substituted when a combatant has no PP left on any move.
func StruggleMove() *MoveRecord {
	return &MoveRecord{
		Name:        "struggle",
		Type:        "normal",
		Power:       Int(50),
		PP:          1,
		Accuracy:    Int(100),
		Category:    CategoryPhysical,
		ShortEffect: "User takes 1/4 damage dealt as recoil.",
		Meta:        MoveMeta{Drain: -25},
	}
}

// FallbackMove is the generic move used when move data cannot be fetched.
func FallbackMove(name string) *MoveRecord {
	return &MoveRecord{
		Name:     name,
		Type:     "normal",
		Power:    Int(40),
		PP:       15,
		Accuracy: Int(95),
		Category: CategoryPhysical,
	}
}
