package battle

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func entrant(rec *PokemonRecord, moves ...*MoveRecord) Entrant {
	return Entrant{Record: rec, Moves: moves}
}

func splash() *MoveRecord {
	m := statusMove("splash")
	m.PP = 40
	return m
}

func turnActors(res Result) []Side {
	var out []Side
	for _, e := range res.Entries {
		if ts, ok := e.Event.(EventTurnStart); ok {
			out = append(out, ts.Actor)
		}
	}
	return out
}

func TestNewBattleRejectsInvalidEntrants(t *testing.T) {
	good := entrant(makeRecord("A", 100, 50, 50, 50, 50, 50), tackle())
	if _, err := NewBattle(BattleConfig{}, good, entrant(makeRecord("B", 100, 50, 50, 50, 50, 50))); !errors.Is(err, ErrNoMoves) {
		t.Errorf("err = %v, want ErrNoMoves", err)
	}
	if _, err := NewBattle(BattleConfig{}, entrant(makeRecord("C", -1, 50, 50, 50, 50, 50), tackle()), good); !errors.Is(err, ErrInvalidHP) {
		t.Errorf("err = %v, want ErrInvalidHP", err)
	}
}

func TestBattleDeterministicForSeed(t *testing.T) {
	run := func() Result {
		a := entrant(makeRecord("charmander", 39, 52, 43, 60, 50, 65, "fire"),
			physical("scratch", "normal", 40), physical("ember", "fire", 40), statusMove("growl"), physical("slash", "normal", 70))
		b := entrant(makeRecord("squirtle", 44, 48, 65, 50, 64, 43, "water"),
			physical("tackle", "normal", 40), physical("water-gun", "water", 40), statusMove("withdraw"))
		res, err := Simulate(BattleConfig{RNG: NewSeededRNG(1234)}, a, b)
		if err != nil {
			t.Fatalf("Simulate: %v", err)
		}
		return res
	}

	r1, r2 := run(), run()
	if !reflect.DeepEqual(r1.Log, r2.Log) {
		t.Error("logs differ for the same seed")
	}
	if r1.Winner != r2.Winner || r1.TurnCount != r2.TurnCount {
		t.Errorf("results differ: %v/%d vs %v/%d", r1.Winner, r1.TurnCount, r2.Winner, r2.TurnCount)
	}
}

func TestBattleFasterActsFirst(t *testing.T) {
	a := entrant(makeRecord("fast", 200, 50, 50, 50, 50, 100), splash())
	b := entrant(makeRecord("slow", 200, 50, 50, 50, 50, 50), splash())

	res, err := Simulate(BattleConfig{MaxTurns: 2}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if res.FirstActor != SideA {
		t.Errorf("first actor = %v, want side_a", res.FirstActor)
	}
	if got := turnActors(res); !reflect.DeepEqual(got, []Side{SideA, SideB}) {
		t.Errorf("actors = %v, want [side_a side_b]", got)
	}

	res, _ = Simulate(BattleConfig{MaxTurns: 1}, b, a)
	if res.FirstActor != SideB {
		t.Errorf("swapped first actor = %v, want side_b", res.FirstActor)
	}
}

func TestBattleKOEndsImmediately(t *testing.T) {
	// 14 power with equal attack and defense: 22*14/50 + 2 = 8.16, floored to 8.
	peck := physical("pound", "normal", 14)
	a := entrant(makeRecord("attacker", 100, 60, 60, 60, 60, 90, "fire"), peck)
	b := entrant(makeRecord("defender", 100, 60, 60, 60, 60, 30, "water"), tackle())

	bt, err := NewBattle(BattleConfig{RNG: &scriptedRNG{floats: noCritMaxRoll()}}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	bt.Combatant(SideB).SetHP(5)
	bt.Combatant(SideB).SetStatus(StatusPoison, -1)

	res := bt.Run()
	if res.Winner != WinnerSideA || res.WinnerName != "attacker" {
		t.Errorf("winner = %v (%s), want side_a", res.Winner, res.WinnerName)
	}
	if res.TurnCount != 1 {
		t.Errorf("turns = %d, want 1", res.TurnCount)
	}
	text := strings.Join(res.Log, "\n")
	if !strings.Contains(text, "DEFENDER took 8 damage. Remaining HP: 0") {
		t.Errorf("missing damage line:\n%s", text)
	}
	if strings.Contains(text, "hurt by poison") {
		t.Error("status tick processed after the knockout")
	}
}

func TestBattleTurnCapDraw(t *testing.T) {
	a := entrant(makeRecord("magikarp", 100, 10, 55, 15, 20, 80, "water"), splash())
	b := entrant(makeRecord("feebas", 100, 15, 20, 10, 55, 80, "water"), splash())

	res, err := Simulate(BattleConfig{RNG: NewSeededRNG(5)}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if res.TurnCount != DefaultMaxTurns {
		t.Errorf("turns = %d, want %d", res.TurnCount, DefaultMaxTurns)
	}
	if res.Winner != WinnerDraw || res.WinnerName != "Draw" {
		t.Errorf("winner = %v (%s), want draw", res.Winner, res.WinnerName)
	}
	if !strings.Contains(strings.Join(res.Log, "\n"), "maximum turn limit (50)") {
		t.Error("missing turn limit line")
	}
}

func TestBattleTurnCapHPComparison(t *testing.T) {
	a := entrant(makeRecord("magikarp", 100, 10, 55, 15, 20, 80, "water"), splash())
	b := entrant(makeRecord("feebas", 100, 15, 20, 10, 55, 80, "water"), splash())

	bt, err := NewBattle(BattleConfig{RNG: NewSeededRNG(5), MaxTurns: 6}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	bt.Combatant(SideB).SetHP(40)
	res := bt.Run()
	if res.TurnCount != 6 {
		t.Errorf("turns = %d, want 6", res.TurnCount)
	}
	if res.Winner != WinnerSideA || res.WinnerName != "magikarp" {
		t.Errorf("winner = %v (%s), want side_a", res.Winner, res.WinnerName)
	}
}

func TestBattleBothFainted(t *testing.T) {
	worn := tackle()
	worn.PP = 0
	a := entrant(makeRecord("geodude", 40, 80, 100, 30, 30, 90, "rock"), worn)
	b := entrant(makeRecord("rattata", 30, 56, 35, 25, 35, 20), tackle())

	bt, err := NewBattle(BattleConfig{RNG: NewSeededRNG(9)}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	bt.Combatant(SideA).SetHP(1)
	bt.Combatant(SideB).SetHP(1)

	res := bt.Run()
	if res.Winner != WinnerDrawBothFainted || res.WinnerName != "Draw (Both fainted)" {
		t.Errorf("winner = %v (%s), want draw_both_fainted", res.Winner, res.WinnerName)
	}
	if res.TurnCount != 1 {
		t.Errorf("turns = %d, want 1", res.TurnCount)
	}
}

func TestBattleStatusFaint(t *testing.T) {
	a := entrant(makeRecord("oddish", 45, 50, 55, 75, 65, 60, "grass"), tackle())
	b := entrant(makeRecord("bellsprout", 50, 75, 35, 70, 30, 40, "grass"), tackle())

	bt, err := NewBattle(BattleConfig{RNG: NewSeededRNG(1)}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	bt.Combatant(SideA).SetHP(1)
	bt.Combatant(SideA).SetStatus(StatusPoison, -1)

	res := bt.Run()
	if res.Winner != WinnerSideB {
		t.Errorf("winner = %v, want side_b", res.Winner)
	}
	if res.TurnCount != 1 {
		t.Errorf("turns = %d, want 1", res.TurnCount)
	}
	if !strings.Contains(strings.Join(res.Log, "\n"), "fainted from status effects") {
		t.Error("missing status faint line")
	}
}

func TestBattleFlinchKeepsRoles(t *testing.T) {
	bite := physical("bite", "dark", 10)
	bite.Meta.FlinchChance = 100
	a := entrant(makeRecord("zubat", 500, 45, 35, 30, 40, 55, "poison"), bite)
	b := entrant(makeRecord("onix", 500, 45, 160, 30, 45, 50, "rock"), tackle())

	res, err := Simulate(BattleConfig{RNG: NewSeededRNG(2), MaxTurns: 3}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got := turnActors(res); !reflect.DeepEqual(got, []Side{SideA, SideA, SideA}) {
		t.Errorf("actors = %v, want side_a every turn", got)
	}
}

func TestBattleRechargeSkipsNextAction(t *testing.T) {
	beam := physical("hyper-beam", "normal", 10)
	a := entrant(makeRecord("snorlax", 500, 50, 65, 65, 110, 90), beam)
	b := entrant(makeRecord("chansey", 500, 5, 5, 35, 105, 50), splash())

	bt, err := NewBattle(BattleConfig{RNG: NewSeededRNG(4), MaxTurns: 4}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	res := bt.Run()
	if got := turnActors(res); !reflect.DeepEqual(got, []Side{SideA, SideB, SideA, SideB}) {
		t.Errorf("actors = %v", got)
	}
	if pp := bt.Combatant(SideA).Moves()[0].PP; pp != 9 {
		t.Errorf("hyper-beam pp = %d, want 9 (one use)", pp)
	}
	if !strings.Contains(strings.Join(res.Log, "\n"), "SNORLAX must recharge!") {
		t.Error("missing recharge line")
	}
}

func TestBattleProtectBlocksNextHit(t *testing.T) {
	a := entrant(makeRecord("shuckle", 500, 10, 230, 10, 230, 90, "bug"), statusMove("protect"))
	b := entrant(makeRecord("rattata", 300, 56, 35, 25, 35, 72), tackle())

	bt, err := NewBattle(BattleConfig{RNG: &scriptedRNG{}, MaxTurns: 2}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	res := bt.Run()
	shuckle := bt.Combatant(SideA)
	if shuckle.HP() != shuckle.MaxHP() {
		t.Errorf("hp = %d, want %d", shuckle.HP(), shuckle.MaxHP())
	}
	if !strings.Contains(strings.Join(res.Log, "\n"), "TACKLE was blocked completely!") {
		t.Error("missing blocked line")
	}
}

func TestBattleProtectExpiresWhenOwnerActsAgain(t *testing.T) {
	// Turn 1: shuckle protects. Turn 2: rattata must recharge. Turn 3:
	// shuckle splashes, dropping the unused protection. Turn 4: tackle lands.
	a := entrant(makeRecord("shuckle", 500, 10, 230, 10, 230, 90, "bug"), statusMove("protect"), splash())
	b := entrant(makeRecord("rattata", 300, 56, 35, 25, 35, 72), tackle())

	rng := &scriptedRNG{ints: []int{0, 0, 1, 0}}
	bt, err := NewBattle(BattleConfig{RNG: rng, MaxTurns: 4}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	bt.Combatant(SideB).SetMustRecharge(true)

	res := bt.Run()
	var protectFlags []bool
	for _, e := range res.Entries {
		if f, ok := e.Event.(EventFlag); ok && f.Flag == "protect" {
			protectFlags = append(protectFlags, f.Set)
		}
	}

	if got := turnActors(res); !reflect.DeepEqual(got, []Side{SideA, SideB, SideA, SideB}) {
		t.Fatalf("actors = %v", got)
	}
	if !reflect.DeepEqual(protectFlags, []bool{true}) {
		t.Errorf("protect flags = %v, want a single set", protectFlags)
	}
	text := strings.Join(res.Log, "\n")
	if !strings.Contains(text, "SHUCKLE uses SPLASH!") {
		t.Errorf("third turn should use splash:\n%s", text)
	}
	if strings.Contains(text, "blocked completely") {
		t.Error("expired protection still blocked the hit")
	}
	shuckle := bt.Combatant(SideA)
	if shuckle.Protected() {
		t.Error("protection should not survive its owner's next turn")
	}
	if shuckle.HP() >= shuckle.MaxHP() {
		t.Errorf("hp = %d, want damage from tackle", shuckle.HP())
	}
}

func TestBattleInvariantsAcrossSeeds(t *testing.T) {
	toxic := statusMove("poison-powder")
	toxic.Meta = MoveMeta{Ailment: "poison", AilmentChance: 100}
	leer := statusMove("leer")
	leer.StatChanges = []StatChange{{Stat: "defense", Change: -1}}
	drain := &MoveRecord{Name: "giga-drain", Type: "grass", Power: Int(75), PP: 10, Accuracy: Int(100), Category: CategorySpecial, Meta: MoveMeta{Drain: 50}}
	flail := physical("double-edge", "normal", 120)
	flail.Meta.Drain = -33

	for seed := int64(1); seed <= 100; seed++ {
		a := entrant(makeRecord("venusaur", 80, 82, 83, 100, 100, 80, "grass", "poison"),
			toxic, statusMove("swords-dance"), drain, statusMove("recover"))
		b := entrant(makeRecord("blastoise", 79, 83, 100, 85, 105, 78, "water"),
			leer, flail, physical("hydro-pump", "water", 110), statusMove("protect"))

		var bt *Battle
		observer := func(LogEntry) {
			for _, c := range bt.sides {
				if c.HP() < 0 || c.HP() > c.MaxHP() {
					t.Fatalf("seed %d: %s hp %d out of [0,%d]", seed, c.Name(), c.HP(), c.MaxHP())
				}
				for s := Stat(0); s < numStats; s++ {
					if st := c.Stage(s); st < MinStage || st > MaxStage {
						t.Fatalf("seed %d: %s %v stage %d", seed, c.Name(), s, st)
					}
				}
			}
		}
		var err error
		bt, err = NewBattle(BattleConfig{RNG: NewSeededRNG(seed), Observer: observer, Logger: zap.NewNop()}, a, b)
		if err != nil {
			t.Fatal(err)
		}
		res := bt.Run()
		if res.TurnCount > DefaultMaxTurns {
			t.Errorf("seed %d: %d turns", seed, res.TurnCount)
		}
		if len(res.Entries) != len(res.Log) {
			t.Errorf("seed %d: %d entries vs %d lines", seed, len(res.Entries), len(res.Log))
		}
		if res.Winner == "" {
			t.Errorf("seed %d: empty winner", seed)
		}
	}
}

func TestBattleLogIntroAndSummary(t *testing.T) {
	ember := physical("ember", "fire", 40)
	ember.ShortEffect = "Has a $effect_chance% chance to burn the target."
	ember.EffectChance = Int(10)
	a := entrant(makeRecord("charmander", 39, 52, 43, 60, 50, 65, "fire"), ember)
	b := entrant(makeRecord("bulbasaur", 45, 49, 49, 65, 65, 45, "grass", "poison"), tackle())

	res, err := Simulate(BattleConfig{RNG: NewSeededRNG(11)}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	text := strings.Join(res.Log, "\n")
	for _, want := range []string{
		"==== BATTLE START ====",
		"CHARMANDER vs BULBASAUR",
		"  Types: GRASS, POISON",
		"    Effect: Has a 10% chance to burn the target.",
		"CHARMANDER goes first due to higher speed (65 vs 45).",
		"BATTLE SUMMARY",
		"CHARMANDER (FIRE) VS BULBASAUR (GRASS/POISON)",
		"Number of turns: ",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("log missing %q", want)
		}
	}
}
