package battle

import "strings"

// StageBoost is a stage delta applied to the move's user.
type StageBoost struct {
	Stat  Stat
	Delta int
}

// FixedStatus is a status inflicted by a named move with its own chance,
// independent of the move's secondary effect chance.
type FixedStatus struct {
	Status Status
	Chance float64
}

// MoveEffect is the tagged descriptor for a move with hardcoded behaviour.
type MoveEffect struct {
	Boosts      []StageBoost
	HealPercent int  // percent of max HP restored
	Rest        bool // full heal plus a fixed sleep on the user
	Protect     bool
	Recharge    bool
	Inflict     *FixedStatus
	HighCrit    bool
	Flavor      string // %s is replaced with the defender's label
	// FlavorUnlessType suppresses Flavor against defenders of this type.
	FlavorUnlessType string
}

// RestSleepTurns is the sleep duration Rest puts its user into.
const RestSleepTurns = 2

// MoveRegistry maps move names to their hardcoded effects.
// It is immutable after construction.
type MoveRegistry struct {
	effects map[string]MoveEffect
}

// NewMoveRegistry builds a registry from a name → effect table.
func NewMoveRegistry(effects map[string]MoveEffect) *MoveRegistry {
	m := make(map[string]MoveEffect, len(effects))
	for k, v := range effects {
		m[strings.ToLower(k)] = v
	}
	return &MoveRegistry{effects: m}
}

// Lookup returns the effect registered for a move name.
func (r *MoveRegistry) Lookup(name string) (MoveEffect, bool) {
	if r == nil {
		return MoveEffect{}, false
	}
	e, ok := r.effects[strings.ToLower(name)]
	return e, ok
}

// Len returns the number of registered moves.
func (r *MoveRegistry) Len() int { return len(r.effects) }

// DefaultMoveRegistry returns the built-in named move table.
func DefaultMoveRegistry() *MoveRegistry {
	heal := MoveEffect{HealPercent: 50}
	protect := MoveEffect{Protect: true}
	highCrit := MoveEffect{HighCrit: true}
	return NewMoveRegistry(map[string]MoveEffect{
		"swords-dance": {Boosts: []StageBoost{{StatAttack, 2}}},
		"dragon-dance": {Boosts: []StageBoost{{StatAttack, 1}, {StatSpeed, 1}}},
		"nasty-plot":   {Boosts: []StageBoost{{StatSpAttack, 2}}},
		"calm-mind":    {Boosts: []StageBoost{{StatSpAttack, 1}, {StatSpDefense, 1}}},
		"quiver-dance": {Boosts: []StageBoost{{StatSpAttack, 1}, {StatSpDefense, 1}, {StatSpeed, 1}}},

		"recover":     heal,
		"roost":       heal,
		"synthesis":   heal,
		"moonlight":   heal,
		"morning-sun": heal,
		"rest":        {Rest: true},

		"protect":        protect,
		"detect":         protect,
		"king's-shield":  protect,
		"kings-shield":   protect,
		"spiky-shield":   protect,
		"baneful-bunker": protect,

		"hyper-beam": {Recharge: true},
		"fire-blast": {Inflict: &FixedStatus{Status: StatusBurn, Chance: 0.10}},
		"thunder":    {Inflict: &FixedStatus{Status: StatusParalysis, Chance: 0.30}},

		"slash":       highCrit,
		"karate-chop": highCrit,
		"razor-leaf":  highCrit,
		"crabhammer":  highCrit,
		"cross-chop":  highCrit,
		"air-cutter":  highCrit,

		"earthquake": {Flavor: "%s shook under a violent quake!", FlavorUnlessType: "flying"},
		"surf":       {Flavor: "A huge wave crashed over %s!"},
	})
}
