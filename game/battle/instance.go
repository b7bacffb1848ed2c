package battle

import (
	"strings"

	"go.uber.org/zap"
)

// DefaultMaxTurns caps a battle that nobody wins outright.
const DefaultMaxTurns = 50

// Winner is the terminal outcome of a battle.
type Winner string

const (
	WinnerSideA           Winner = "side_a"
	WinnerSideB           Winner = "side_b"
	WinnerDraw            Winner = "draw"
	WinnerDrawBothFainted Winner = "draw_both_fainted"
)

// Entrant is one side's input: a record plus its already-selected moves.
type Entrant struct {
	Record *PokemonRecord
	Moves  []*MoveRecord
}

// BattleConfig configures a Battle. Nil collaborators fall back to the
// built-in tables.
type BattleConfig struct {
	TypeChart *TypeChart
	Statuses  *StatusCatalog
	Registry  *MoveRegistry
	Logger    *zap.Logger
	RNG       RNG         // injectable for testing
	TurnMgr   TurnManager // nil = DefaultTurnManager
	MaxTurns  int         // 0 = DefaultMaxTurns
	Observer  func(LogEntry)
}

// Result is the terminal state of a battle.
type Result struct {
	Log        []string             `json:"battle_log"`
	Entries    []LogEntry           `json:"-"`
	Winner     Winner               `json:"winner_side"`
	WinnerName string               `json:"winner"`
	TurnCount  int                  `json:"turns"`
	FirstActor Side                 `json:"first_actor"`
	Final      [2]CombatantSnapshot `json:"final"`
}

// Battle owns one 1v1 battle between two combatants.
type Battle struct {
	sides    [2]*Combatant
	active   Side
	turn     int
	maxTurns int

	logger   *zap.Logger
	rng      RNG
	turnMgr  TurnManager
	status   *StatusEngine
	resolver *MoveResolver
	log      *Log
}

// NewBattle validates both entrants and prepares a battle.
func NewBattle(cfg BattleConfig, a, b Entrant) (*Battle, error) {
	if cfg.RNG == nil {
		cfg.RNG = newDefaultRNG()
	}
	if cfg.TurnMgr == nil {
		cfg.TurnMgr = DefaultTurnManager{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TypeChart == nil {
		cfg.TypeChart = DefaultTypeChart()
	}
	if cfg.Statuses == nil {
		cfg.Statuses = DefaultStatusCatalog()
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultMoveRegistry()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}

	ca, err := NewCombatant(a.Record, a.Moves, SideA)
	if err != nil {
		return nil, err
	}
	cb, err := NewCombatant(b.Record, b.Moves, SideB)
	if err != nil {
		return nil, err
	}

	return &Battle{
		sides:    [2]*Combatant{ca, cb},
		maxTurns: cfg.MaxTurns,
		logger:   cfg.Logger,
		rng:      cfg.RNG,
		turnMgr:  cfg.TurnMgr,
		status:   &StatusEngine{Catalog: cfg.Statuses, RNG: cfg.RNG},
		resolver: &MoveResolver{
			Catalog:  cfg.Statuses,
			Registry: cfg.Registry,
			Damage:   &DamageCalculator{Chart: cfg.TypeChart, Catalog: cfg.Statuses, RNG: cfg.RNG},
			RNG:      cfg.RNG,
		},
		log: newLog(cfg.Observer),
	}, nil
}

// Combatant returns the combatant on side s.
func (b *Battle) Combatant(s Side) *Combatant { return b.sides[s] }

// Turn returns the number of turns started so far.
func (b *Battle) Turn() int { return b.turn }

// Run executes the turn loop until a combatant faints or the turn cap is
// reached, and returns the result.
func (b *Battle) Run() Result {
	b.writeIntro()

	ini := b.turnMgr.FirstActor(b.sides[SideA], b.sides[SideB], b.rng)
	b.active = ini.First
	first := b.sides[ini.First]
	if ini.Tie {
		b.log.note("%s goes first (speed tie, decided randomly).", first.Label())
	} else {
		b.log.note("%s goes first due to higher speed (%d vs %d).",
			first.Label(), first.BaseSpeed(), b.sides[ini.First.Other()].BaseSpeed())
	}
	b.log.add(EventBattleStart{
		Combatants: [2]CombatantSnapshot{Snapshot(b.sides[SideA]), Snapshot(b.sides[SideB])},
		FirstActor: ini.First,
	}, "==== FIGHT ====")

	for !b.sides[SideA].IsFainted() && !b.sides[SideB].IsFainted() && b.turn < b.maxTurns {
		if b.playTurn() {
			break
		}
	}

	return b.finish(ini.First)
}

// playTurn runs one actor's turn and reports whether the battle ended.
func (b *Battle) playTurn() bool {
	b.turn++
	actor := b.sides[b.active]
	target := b.sides[b.active.Other()]
	b.logger.Debug("battle turn start",
		zap.Int("turn", b.turn),
		zap.String("actor", actor.Name()))

	b.log.add(EventTurnStart{Turn: b.turn, Actor: b.active, HP: [2]int{b.sides[0].HP(), b.sides[1].HP()}},
		"===== TURN %d =====", b.turn)
	b.log.note("%s HP: %d, Status: %s", actor.Label(), actor.HP(), actor.Status())
	b.log.note("%s HP: %d, Status: %s", target.Label(), target.HP(), target.Status())

	// Protection lasts until its owner acts again.
	actor.SetProtected(false)

	if actor.MustRecharge() {
		actor.SetMustRecharge(false)
		b.log.add(EventFlag{Side: actor.Side(), Flag: "recharge", Set: false},
			"%s must recharge!", actor.Label())
		b.active = b.active.Other()
		return false
	}

	skip, fainted := b.status.PreAction(actor, b.log)
	if fainted {
		return true
	}
	if skip {
		b.active = b.active.Other()
		return false
	}

	b.resolver.Resolve(actor, target, b.log)

	if target.IsFainted() {
		b.log.add(EventFaint{Side: target.Side(), Cause: "damage"}, "%s fainted!", target.Label())
		if actor.IsFainted() {
			b.log.add(EventFaint{Side: actor.Side(), Cause: "recoil"}, "%s fainted!", actor.Label())
		}
		return true
	}
	if actor.IsFainted() {
		b.log.add(EventFaint{Side: actor.Side(), Cause: "recoil"}, "%s fainted from recoil!", actor.Label())
		return true
	}

	if target.Flinched() {
		target.SetFlinched(false)
		b.log.add(EventFlag{Side: target.Side(), Flag: "flinch", Set: false},
			"%s can't move due to flinch!", target.Label())
		return false
	}
	b.active = b.active.Other()
	return false
}

func (b *Battle) decideWinner() Winner {
	a, c := b.sides[SideA], b.sides[SideB]
	switch {
	case a.IsFainted() && !c.IsFainted():
		return WinnerSideB
	case c.IsFainted() && !a.IsFainted():
		return WinnerSideA
	case a.IsFainted() && c.IsFainted():
		return WinnerDrawBothFainted
	}

	b.log.note("The battle reached the maximum turn limit (%d)!", b.maxTurns)
	switch {
	case a.HP() > c.HP():
		b.log.note("%s wins by HP comparison!", a.Label())
		return WinnerSideA
	case c.HP() > a.HP():
		b.log.note("%s wins by HP comparison!", c.Label())
		return WinnerSideB
	}
	b.log.note("It's a draw! Both Pokémon have equal HP remaining.")
	return WinnerDraw
}

func (b *Battle) finish(first Side) Result {
	winner := b.decideWinner()
	name := "Draw"
	switch winner {
	case WinnerSideA:
		name = b.sides[SideA].Name()
		b.log.note("%s wins the battle!", b.sides[SideA].Label())
	case WinnerSideB:
		name = b.sides[SideB].Name()
		b.log.note("%s wins the battle!", b.sides[SideB].Label())
	case WinnerDrawBothFainted:
		name = "Draw (Both fainted)"
		b.log.note("It's a draw! Both Pokémon fainted.")
	}

	b.writeSummary(winner)
	b.log.add(EventBattleEnd{Winner: winner, TurnCount: b.turn, HP: [2]int{b.sides[0].HP(), b.sides[1].HP()}},
		"Number of turns: %d", b.turn)

	b.logger.Debug("battle finished",
		zap.String("winner", string(winner)),
		zap.Int("turns", b.turn))

	return Result{
		Log:        b.log.Lines(),
		Entries:    b.log.Entries(),
		Winner:     winner,
		WinnerName: name,
		TurnCount:  b.turn,
		FirstActor: first,
		Final:      [2]CombatantSnapshot{Snapshot(b.sides[SideA]), Snapshot(b.sides[SideB])},
	}
}

func (b *Battle) writeIntro() {
	a, c := b.sides[SideA], b.sides[SideB]
	b.log.note("==== BATTLE START ====")
	b.log.note("%s vs %s", a.Label(), c.Label())
	for _, cb := range b.sides {
		bs := cb.Record().BaseStats
		b.log.note("%s STATS:", cb.Label())
		b.log.note("  Types: %s", strings.ToUpper(strings.Join(cb.Types(), ", ")))
		b.log.note("  HP: %d", bs.HP)
		b.log.note("  Attack: %d", bs.Attack)
		b.log.note("  Defense: %d", bs.Defense)
		b.log.note("  Special Attack: %d", bs.SpAttack)
		b.log.note("  Special Defense: %d", bs.SpDefense)
		b.log.note("  Speed: %d", bs.Speed)
		b.log.note("  Abilities: %s", strings.ToUpper(strings.Join(cb.Record().Abilities, ", ")))
	}
	for _, cb := range b.sides {
		b.log.note("%s MOVES:", cb.Label())
		for _, slot := range cb.Moves() {
			m := slot.Move
			b.log.note("  • %s (Type: %s, Power: %s, Category: %s)", m.Name, m.Type, powerLabel(m), m.Category)
			if txt := m.EffectText(); txt != "" {
				b.log.note("    Effect: %s", txt)
			}
		}
	}
}

func (b *Battle) writeSummary(winner Winner) {
	a, c := b.sides[SideA], b.sides[SideB]
	rule := strings.Repeat("=", 50)
	b.log.note("%s", rule)
	b.log.note("BATTLE SUMMARY")
	b.log.note("%s", rule)

	switch winner {
	case WinnerSideA, WinnerSideB:
		w := b.sides[SideA]
		if winner == WinnerSideB {
			w = b.sides[SideB]
		}
		l := b.sides[w.Side().Other()]
		b.log.note("Winner: %s with %d HP remaining", w.Label(), w.HP())
		b.log.note("Loser:  %s with %d HP remaining", l.Label(), l.HP())
	default:
		b.log.note("Result: Draw")
		b.log.note("%s: %d HP remaining", a.Label(), a.HP())
		b.log.note("%s: %d HP remaining", c.Label(), c.HP())
	}

	b.log.note("Type Effectiveness Summary:")
	b.log.note("%s (%s) VS %s (%s)",
		a.Label(), strings.ToUpper(strings.Join(a.Types(), "/")),
		c.Label(), strings.ToUpper(strings.Join(c.Types(), "/")))

	if a.HasStatus() || c.HasStatus() {
		b.log.note("Status Effects:")
		for _, cb := range b.sides {
			if cb.HasStatus() {
				b.log.note("%s was affected by %s", cb.Label(), cb.Status())
			}
		}
	}
}

// Simulate builds and runs a battle in one call.
func Simulate(cfg BattleConfig, a, b Entrant) (Result, error) {
	bt, err := NewBattle(cfg, a, b)
	if err != nil {
		return Result{}, err
	}
	return bt.Run(), nil
}
