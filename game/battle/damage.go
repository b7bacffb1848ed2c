package battle

// DamageResult holds all intermediate values of a damage calculation.
type DamageResult struct {
	Power         int
	Attack        int
	Defense       int
	Base          float64
	Effectiveness float64
	STAB          float64
	Critical      bool
	Random        float64
	Damage        int
	BurnHalved    bool
}

// DamageCalculator evaluates the damage formula for one hit.
type DamageCalculator struct {
	Chart   *TypeChart
	Catalog *StatusCatalog
	RNG     RNG
}

// Calculate computes the per-hit damage of move from attacker to defender.
// It draws the critical roll and then the random factor from the RNG.
func (d *DamageCalculator) Calculate(attacker, defender *Combatant, move *MoveRecord) DamageResult {
	r := DamageResult{Power: move.EffectivePower()}

	if move.Category == CategoryPhysical {
		r.Attack = attacker.Stat(StatAttack)
		r.Defense = defender.Stat(StatDefense)
		if rule, ok := d.Catalog.Rule(attacker.Status()); ok && rule.HalvesPhysical {
			r.Attack /= 2
			r.BurnHalved = true
		}
	} else {
		r.Attack = attacker.Stat(StatSpAttack)
		r.Defense = defender.Stat(StatSpDefense)
	}

	r.Base = BaseDamage(r.Power, r.Attack, r.Defense)
	r.Effectiveness = d.Chart.Effectiveness(move.Type, defender.Types())

	r.STAB = 1.0
	if attacker.HasType(move.Type) {
		r.STAB = 1.5
	}

	crit := 1.0
	if d.RNG.Float64()*100 < CritChance(move.Meta.CritRate) {
		r.Critical = true
		crit = 1.5
	}

	r.Random = 0.85 + d.RNG.Float64()*0.15

	r.Damage = ApplyModifiers(r.Base, r.Effectiveness, r.STAB, crit, r.Random)
	return r
}

// FinalDamage applies the minimum-damage rule: a move that affects the
// target with positive power always deals at least 1.
func FinalDamage(damage int, effectiveness float64, power int) int {
	if effectiveness > 0 && power > 0 {
		return max(1, damage)
	}
	return 0
}
