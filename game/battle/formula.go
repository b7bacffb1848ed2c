package battle

import "math"

// StageMultiplier converts a stat stage into its multiplier.
//
//	stage > 0: (2+stage)/2
//	stage < 0: 2/(2-stage)
func StageMultiplier(stage int) float64 {
	switch {
	case stage > 0:
		return float64(2+stage) / 2
	case stage < 0:
		return 2 / float64(2-stage)
	}
	return 1
}

// EffectiveStat applies a stage to a base stat, truncating toward zero.
func EffectiveStat(base, stage int) int {
	return int(float64(base) * StageMultiplier(stage))
}

// BaseDamage is the level-50 damage term before modifiers:
//
//	(((2*L/5)+2) * power * (atk/def)) / 50 + 2
//
// A non-positive defense is treated as 1.
func BaseDamage(power, atk, def int) float64 {
	if def <= 0 {
		def = 1
	}
	levelFactor := float64(2*Level)/5 + 2
	return (levelFactor*float64(power)*(float64(atk)/float64(def)))/50 + 2
}

// CritChance returns the critical hit chance in percent for a crit stage.
func CritChance(stage int) float64 {
	return 6.25 * float64(1+stage)
}

// ApplyModifiers multiplies the base term by the modifiers and floors it.
func ApplyModifiers(base, effectiveness, stab, crit, random float64) int {
	return int(math.Floor(base * effectiveness * stab * crit * random))
}
