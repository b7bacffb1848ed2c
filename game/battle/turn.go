package battle

import (
	"math/rand"
	"time"
)

// RNG is the single source of randomness for a battle.
// *rand.Rand satisfies it.
type RNG interface {
	Intn(n int) int
	Float64() float64
}

// NewSeededRNG returns a reproducible generator for seed.
func NewSeededRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func newDefaultRNG() *rand.Rand {
	return NewSeededRNG(time.Now().UnixNano())
}

// rollPercent draws a uniform integer in [1,100].
func rollPercent(rng RNG) int {
	return rng.Intn(100) + 1
}

// rollRange draws a uniform integer in [lo,hi].
func rollRange(rng RNG, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// Initiative reports who acts first and why.
type Initiative struct {
	First Side
	Tie   bool
}

// TurnManager decides the first actor of a battle.
type TurnManager interface {
	FirstActor(a, b *Combatant, rng RNG) Initiative
}

// DefaultTurnManager compares unmodified base speed; a tie is a coin flip.
// After the first turn roles strictly alternate.
type DefaultTurnManager struct{}

func (DefaultTurnManager) FirstActor(a, b *Combatant, rng RNG) Initiative {
	switch {
	case a.BaseSpeed() > b.BaseSpeed():
		return Initiative{First: SideA}
	case b.BaseSpeed() > a.BaseSpeed():
		return Initiative{First: SideB}
	}
	if rng.Intn(2) == 0 {
		return Initiative{First: SideA, Tie: true}
	}
	return Initiative{First: SideB, Tie: true}
}
