package battle

import (
	"errors"
	"fmt"
	"strings"
)

// Stage bounds for stat modifiers.
const (
	MinStage = -6
	MaxStage = 6
)

var (
	ErrNilRecord    = errors.New("battle: nil pokemon record")
	ErrInvalidHP    = errors.New("battle: base hp must be positive")
	ErrNoMoves      = errors.New("battle: combatant has no moves")
	ErrTooManyMoves = errors.New("battle: combatant has more than 4 moves")
)

// Side identifies one of the two fixed battle positions.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideA {
		return "side_a"
	}
	return "side_b"
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Other returns the opposing side.
func (s Side) Other() Side { return 1 - s }

// MoveSlot is a move plus its remaining PP for one battle.
type MoveSlot struct {
	Move *MoveRecord
	PP   int
}

// Combatant is the mutable per-battle state built from a PokemonRecord.
type Combatant struct {
	record *PokemonRecord
	side   Side

	hp     int
	maxHP  int
	stages [numStats]int

	status      Status
	statusTurns int // -1 = until cured, 0 = none, >0 = turns left

	slots []MoveSlot

	protected    bool
	flinched     bool
	mustRecharge bool
}

// NewCombatant validates the record and move list and returns a
// full-HP combatant with no stages, no status and full PP.
func NewCombatant(rec *PokemonRecord, moves []*MoveRecord, side Side) (*Combatant, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	if rec.BaseStats.HP <= 0 {
		return nil, fmt.Errorf("%w: %s has hp %d", ErrInvalidHP, rec.Name, rec.BaseStats.HP)
	}
	if len(moves) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMoves, rec.Name)
	}
	if len(moves) > MaxMoves {
		return nil, fmt.Errorf("%w: %s has %d", ErrTooManyMoves, rec.Name, len(moves))
	}
	slots := make([]MoveSlot, len(moves))
	for i, m := range moves {
		if m == nil {
			return nil, fmt.Errorf("battle: %s move %d is nil", rec.Name, i)
		}
		slots[i] = MoveSlot{Move: m, PP: m.PP}
	}
	return &Combatant{
		record: rec,
		side:   side,
		hp:     rec.BaseStats.HP,
		maxHP:  rec.BaseStats.HP,
		slots:  slots,
	}, nil
}

func (c *Combatant) Record() *PokemonRecord { return c.record }
func (c *Combatant) Side() Side              { return c.side }
func (c *Combatant) Name() string            { return c.record.Name }

// Label is the upper-cased name used in log lines.
func (c *Combatant) Label() string { return strings.ToUpper(c.record.Name) }

func (c *Combatant) HP() int         { return c.hp }
func (c *Combatant) MaxHP() int      { return c.maxHP }
func (c *Combatant) IsFainted() bool { return c.hp <= 0 }

// SetHP clamps v to [0, MaxHP].
func (c *Combatant) SetHP(v int) {
	if v < 0 {
		v = 0
	}
	if v > c.maxHP {
		v = c.maxHP
	}
	c.hp = v
}

// TakeDamage subtracts n HP and returns the amount actually lost.
func (c *Combatant) TakeDamage(n int) int {
	before := c.hp
	c.SetHP(c.hp - n)
	return before - c.hp
}

// Heal adds n HP and returns the amount actually restored.
func (c *Combatant) Heal(n int) int {
	before := c.hp
	c.SetHP(c.hp + n)
	return c.hp - before
}

// Stage returns the current stage of s.
func (c *Combatant) Stage(s Stat) int {
	if s < 0 || s >= numStats {
		return 0
	}
	return c.stages[s]
}

// AddStage applies delta to s, clamped to [MinStage, MaxStage], and
// returns the delta that actually took effect.
func (c *Combatant) AddStage(s Stat, delta int) int {
	if s < 0 || s >= numStats {
		return 0
	}
	before := c.stages[s]
	v := before + delta
	if v < MinStage {
		v = MinStage
	}
	if v > MaxStage {
		v = MaxStage
	}
	c.stages[s] = v
	return v - before
}

// Stat returns the stage-adjusted value of a base stat.
func (c *Combatant) Stat(s Stat) int {
	return EffectiveStat(c.record.BaseStats.Get(s), c.Stage(s))
}

// BaseSpeed is the unmodified speed used for initiative.
func (c *Combatant) BaseSpeed() int { return c.record.BaseStats.Speed }

func (c *Combatant) Types() []string { return c.record.Types }

func (c *Combatant) HasType(t string) bool { return c.record.HasType(t) }

func (c *Combatant) Status() Status   { return c.status }
func (c *Combatant) StatusTurns() int { return c.statusTurns }
func (c *Combatant) HasStatus() bool  { return c.status != StatusNone }

// SetStatus replaces the current status.
func (c *Combatant) SetStatus(s Status, turns int) {
	c.status = s
	c.statusTurns = turns
	if s == StatusNone {
		c.statusTurns = 0
	}
}

// ClearStatus removes the current status and its duration.
func (c *Combatant) ClearStatus() { c.SetStatus(StatusNone, 0) }

// Moves returns the combatant's move slots. Callers must not modify them.
func (c *Combatant) Moves() []MoveSlot { return c.slots }

// UsableMoves returns the indices of slots with PP remaining.
func (c *Combatant) UsableMoves() []int {
	var idx []int
	for i, s := range c.slots {
		if s.PP > 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// SpendPP decrements the PP of slot i.
func (c *Combatant) SpendPP(i int) {
	if i >= 0 && i < len(c.slots) && c.slots[i].PP > 0 {
		c.slots[i].PP--
	}
}

func (c *Combatant) Protected() bool     { return c.protected }
func (c *Combatant) SetProtected(v bool) { c.protected = v }

func (c *Combatant) Flinched() bool     { return c.flinched }
func (c *Combatant) SetFlinched(v bool) { c.flinched = v }

func (c *Combatant) MustRecharge() bool     { return c.mustRecharge }
func (c *Combatant) SetMustRecharge(v bool) { c.mustRecharge = v }
