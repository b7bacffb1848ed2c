package battle

import (
	"strconv"
	"strings"
)

// Outcome summarizes one resolved move.
type Outcome struct {
	Move     *MoveRecord
	Struggle bool
	Missed   bool
	Damage   int
	Critical bool
	Hits     int
}

// MoveResolver selects and executes the acting combatant's move.
type MoveResolver struct {
	Catalog  *StatusCatalog
	Registry *MoveRegistry
	Damage   *DamageCalculator
	RNG      RNG
}

// Resolve runs one action of attacker against defender.
func (r *MoveResolver) Resolve(attacker, defender *Combatant, log *Log) Outcome {
	var out Outcome
	out.Move, out.Struggle = r.selectMove(attacker, log)
	move := out.Move

	log.add(EventMoveUsed{Side: attacker.Side(), Move: move.Name, Type: move.Type, Category: move.Category, Struggle: out.Struggle},
		"%s uses %s!", attacker.Label(), strings.ToUpper(move.Name))
	log.note("Move Type: %s, Category: %s, Power: %s",
		strings.ToUpper(move.Type), strings.ToUpper(string(move.Category)), powerLabel(move))
	if txt := move.EffectText(); txt != "" {
		log.note("Effect: %s", txt)
	}

	acc := move.EffectiveAccuracy()
	roll := rollPercent(r.RNG)
	if roll > acc {
		out.Missed = true
		log.add(EventMiss{Side: attacker.Side(), Move: move.Name, Roll: roll, Accuracy: acc},
			"%s's attack missed! (Accuracy check: %d/%d)", attacker.Label(), roll, acc)
		return out
	}

	switch {
	case move.Category == CategoryStatus:
		r.resolveStatusMove(attacker, defender, move, log)
	case move.Category.IsDamaging():
		r.resolveDamagingMove(attacker, defender, move, out.Struggle, &out, log)
	}

	if fc := move.Meta.FlinchChance; fc > 0 && rollPercent(r.RNG) <= fc {
		defender.SetFlinched(true)
		log.add(EventFlag{Side: defender.Side(), Flag: "flinch", Set: true},
			"%s flinched from %s! (%d%% chance)", defender.Label(), strings.ToUpper(move.Name), fc)
	}
	return out
}

// selectMove picks uniformly among moves with PP left and spends one PP.
// With no PP left anywhere it substitutes Struggle.
func (r *MoveResolver) selectMove(c *Combatant, log *Log) (*MoveRecord, bool) {
	usable := c.UsableMoves()
	if len(usable) == 0 {
		log.note("%s has no more usable moves! Using STRUGGLE.", c.Label())
		return StruggleMove(), true
	}
	idx := usable[r.RNG.Intn(len(usable))]
	c.SpendPP(idx)
	return c.Moves()[idx].Move, false
}

func (r *MoveResolver) resolveStatusMove(attacker, defender *Combatant, move *MoveRecord, log *Log) {
	log.note("It's a status move!")

	if st := Status(move.Meta.Ailment); r.Catalog.Has(st) {
		chance := move.Meta.AilmentChance
		if chance <= 0 {
			chance = 100
		}
		if rollPercent(r.RNG) <= chance {
			if !defender.HasStatus() {
				turns := rollRange(r.RNG, 2, 5)
				defender.SetStatus(st, turns)
				log.add(EventStatus{Side: defender.Side(), Status: st, Outcome: "inflict", Turns: turns},
					"%s was afflicted with %s!", defender.Label(), st)
			} else {
				log.note("%s is already affected by %s!", defender.Label(), defender.Status())
			}
		}
	}

	if eff, ok := r.Registry.Lookup(move.Name); ok {
		switch {
		case len(eff.Boosts) > 0:
			for _, b := range eff.Boosts {
				applyStage(attacker, b.Stat, b.Delta, log)
			}
		case eff.Rest:
			healed := attacker.Heal(attacker.MaxHP())
			attacker.SetStatus(StatusSleep, RestSleepTurns)
			log.add(EventHeal{Side: attacker.Side(), Source: "move", Amount: healed, HPAfter: attacker.HP()},
				"%s fell asleep and restored %d HP!", attacker.Label(), healed)
		case eff.HealPercent > 0:
			before := attacker.HP()
			healed := attacker.Heal(max(1, attacker.MaxHP()*eff.HealPercent/100))
			log.add(EventHeal{Side: attacker.Side(), Source: "move", Amount: healed, HPAfter: attacker.HP()},
				"%s recovered %d HP! (%d → %d)", attacker.Label(), healed, before, attacker.HP())
		case eff.Protect:
			attacker.SetProtected(true)
			log.add(EventFlag{Side: attacker.Side(), Flag: "protect", Set: true},
				"%s protected itself!", attacker.Label())
		}
	}

	// Generic stat changes land on the defender whatever the move's intent.
	for _, sc := range move.StatChanges {
		stat, ok := ParseStat(sc.Stat)
		if !ok {
			continue
		}
		applyStage(defender, stat, sc.Change, log)
	}
}

func applyStage(c *Combatant, stat Stat, delta int, log *Log) {
	applied := c.AddStage(stat, delta)
	ev := EventStatChange{Side: c.Side(), Stat: stat, Delta: applied}
	switch {
	case applied > 0:
		log.add(ev, "%s's %s rose! (+%d stages)", c.Label(), stat.Label(), applied)
	case applied < 0:
		log.add(ev, "%s's %s fell! (%d stages)", c.Label(), stat.Label(), applied)
	case delta > 0:
		log.add(ev, "%s's %s won't go any higher!", c.Label(), stat.Label())
	case delta < 0:
		log.add(ev, "%s's %s won't go any lower!", c.Label(), stat.Label())
	}
}

func (r *MoveResolver) resolveDamagingMove(attacker, defender *Combatant, move *MoveRecord, struggle bool, out *Outcome, log *Log) {
	dr := r.Damage.Calculate(attacker, defender, move)
	if dr.BurnHalved {
		log.note("%s's physical attack is halved due to burn!", attacker.Label())
	}

	eff := dr.Effectiveness
	damage := dr.Damage
	blocked := false
	if defender.Protected() {
		blocked = true
		eff = 0
		defender.SetProtected(false)
		log.add(EventFlag{Side: defender.Side(), Flag: "protect", Set: false},
			"%s protected itself from the attack! %s was blocked completely!", defender.Label(), strings.ToUpper(move.Name))
	}

	if dr.Critical {
		out.Critical = true
		log.note("A critical hit! x1.5 damage!")
	}
	log.note("Base damage: %d (Attack: %d / Defense: %d)", int(dr.Base), dr.Attack, dr.Defense)

	switch {
	case blocked:
	case eff == 0:
		log.note("It doesn't affect %s... (x0)", defender.Label())
	case eff > 1:
		log.note("It's super effective! (x%g)", eff)
	case eff < 1:
		log.note("It's not very effective... (x%g)", eff)
	}
	if dr.STAB > 1 {
		log.note("Same Type Attack Bonus for %s! (x1.5)", attacker.Label())
	}

	if fx, ok := r.Registry.Lookup(move.Name); ok {
		r.applyDamagingEffect(attacker, defender, move, fx, dr.Critical, eff, log)
	}

	hits := 1
	if move.IsMultiHit() {
		lo := max(1, move.Meta.MinHits)
		hits = rollRange(r.RNG, min(lo, move.Meta.MaxHits), move.Meta.MaxHits)
		damage *= hits
		log.note("%s hit %d times for a total of %d damage!", strings.ToUpper(move.Name), hits, damage)
	}
	out.Hits = hits

	damage = FinalDamage(damage, eff, dr.Power)
	out.Damage = damage
	defender.TakeDamage(damage)
	log.add(EventDamage{
		Target: defender.Side(), Move: move.Name, Damage: damage, Critical: dr.Critical,
		Effectiveness: eff, Hits: hits, Blocked: blocked, HPAfter: defender.HP(),
	}, "%s took %d damage. Remaining HP: %d", defender.Label(), damage, defender.HP())

	if drain := move.Meta.Drain; struggle || drain < 0 {
		pct := -drain
		if pct <= 0 {
			pct = 25
		}
		recoil := max(1, damage*pct/100)
		attacker.TakeDamage(recoil)
		log.add(EventRecoil{Side: attacker.Side(), Amount: recoil, HPAfter: attacker.HP()},
			"%s is damaged by recoil! Lost %d HP.", attacker.Label(), recoil)
	} else if drain > 0 {
		before := attacker.HP()
		amount := max(1, damage*drain/100)
		attacker.Heal(amount)
		log.add(EventHeal{Side: attacker.Side(), Source: "drain", Amount: amount, HPAfter: attacker.HP()},
			"%s absorbed %d HP! (%d → %d)", attacker.Label(), amount, before, attacker.HP())
	}

	if move.EffectChance != nil && *move.EffectChance > 0 {
		chance := *move.EffectChance
		if rollPercent(r.RNG) <= chance {
			log.note("Secondary effect of %s triggered! (%d%% chance)", strings.ToUpper(move.Name), chance)
			r.applySecondaryAilment(defender, move, eff, log)
		}
	}
}

func (r *MoveResolver) applyDamagingEffect(attacker, defender *Combatant, move *MoveRecord, fx MoveEffect, crit bool, eff float64, log *Log) {
	if fx.HighCrit && crit {
		log.note("%s has a high critical hit ratio and landed a critical hit!", strings.ToUpper(move.Name))
	}
	if fx.Flavor != "" && (fx.FlavorUnlessType == "" || !defender.HasType(fx.FlavorUnlessType)) {
		log.note(fx.Flavor, defender.Label())
	}
	if fx.Recharge {
		attacker.SetMustRecharge(true)
		log.add(EventFlag{Side: attacker.Side(), Flag: "recharge", Set: true},
			"%s must recharge next turn!", attacker.Label())
	}
	if fx.Inflict != nil && eff > 0 {
		if r.RNG.Float64() < fx.Inflict.Chance && !defender.HasStatus() {
			defender.SetStatus(fx.Inflict.Status, -1)
			log.add(EventStatus{Side: defender.Side(), Status: fx.Inflict.Status, Outcome: "inflict", Turns: -1},
				"%s was afflicted with %s by %s!", defender.Label(), fx.Inflict.Status, strings.ToUpper(move.Name))
		}
	}
}

func (r *MoveResolver) applySecondaryAilment(defender *Combatant, move *MoveRecord, eff float64, log *Log) {
	st := Status(move.Meta.Ailment)
	rule, ok := r.Catalog.Rule(st)
	if !ok || defender.HasStatus() || eff <= 0 {
		return
	}
	turns := -1
	if !rule.Permanent {
		turns = rollRange(r.RNG, 2, 5)
	}
	defender.SetStatus(st, turns)
	log.add(EventStatus{Side: defender.Side(), Status: st, Outcome: "inflict", Turns: turns},
		"%s was afflicted with %s as a secondary effect!", defender.Label(), st)
}

func powerLabel(m *MoveRecord) string {
	if p := m.EffectivePower(); p > 0 {
		return strconv.Itoa(p)
	}
	return "-"
}
