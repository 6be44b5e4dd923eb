package gamedata

import "math"

// maxRollSum is the sum of three perfect 15 rolls.
const maxRollSum = 45

// cpMultipliers maps level to combat-power multiplier.
var cpMultipliers = map[float64]float64{
	1: 0.094, 1.5: 0.1351374318, 2: 0.16639787, 2.5: 0.192650919,
	3: 0.21573247, 3.5: 0.2365726613, 4: 0.25572005, 4.5: 0.2735303812,
	5: 0.29024988, 5.5: 0.3060573775, 6: 0.3210876, 6.5: 0.3354450362,
	7: 0.34921268, 7.5: 0.3624577511, 8: 0.37523559, 8.5: 0.387592406,
	9: 0.39956728, 9.5: 0.4111935514, 10: 0.42250001, 10.5: 0.4329264091,
	11: 0.44310755, 11.5: 0.4530599591, 12: 0.46279839, 12.5: 0.472336093,
	13: 0.48168495, 13.5: 0.4908558003, 14: 0.49985844, 14.5: 0.508701765,
	15: 0.51739395, 15.5: 0.5259425113, 16: 0.53435433, 16.5: 0.5426357375,
	17: 0.55079269, 17.5: 0.5588305862, 18: 0.56675452, 18.5: 0.5745691333,
	19: 0.58227891, 19.5: 0.5898879072, 20: 0.59740001, 20.5: 0.6048236651,
	21: 0.61215729, 21.5: 0.6194041216, 22: 0.62656713, 22.5: 0.6336491432,
	23: 0.64065295, 23.5: 0.6475809666, 24: 0.65443563, 24.5: 0.6612192524,
	25: 0.667934, 25.5: 0.6745818959, 26: 0.68116492, 26.5: 0.6876849038,
	27: 0.69414365, 27.5: 0.70054287, 28: 0.70688421, 28.5: 0.7131691091,
	29: 0.71939909, 29.5: 0.7255756136, 30: 0.7317, 30.5: 0.7347410093,
	31: 0.73776948, 31.5: 0.7407855938, 32: 0.74378943, 32.5: 0.7467812109,
	33: 0.74976104, 33.5: 0.7527290867, 34: 0.75568551, 34.5: 0.7586303683,
	35: 0.76156384, 35.5: 0.7644860647, 36: 0.76739717, 36.5: 0.7702972656,
	37: 0.7731865, 37.5: 0.7760649616, 38: 0.77893275, 38.5: 0.7817900548,
	39: 0.78463697, 39.5: 0.7874736075, 40: 0.79030001,
}

// QualityPercent converts three 0-15 rolls into a 0-100 score.
// Params: attack, defense, and stamina rolls.
// Returns: percentage of the maximum roll sum.
func QualityPercent(attack, defense, stamina int) float64 {
	return float64(attack+defense+stamina) * 100 / maxRollSum
}

// CombatPower computes CP for species at level with the given rolls.
// Params: species id, level (half steps), and three rolls.
// Returns: floored CP or ErrUnknownSpecies/ErrUnknownLevel.
func (l *Lookup) CombatPower(speciesID int, level float64, attack, defense, stamina int) (int, error) {
	base, err := l.BaseStats(speciesID)
	if err != nil {
		return 0, err
	}
	multiplier, err := l.Multiplier(level)
	if err != nil {
		return 0, err
	}
	cp := float64(base.Attack+attack) *
		math.Sqrt(float64(base.Defense+defense)) *
		math.Sqrt(float64(base.Stamina+stamina)) *
		multiplier * multiplier / 10
	return int(math.Floor(cp)), nil
}

// HitPoints computes HP for species at level with the stamina roll.
// Params: species id, level (half steps), and stamina roll.
// Returns: floored HP or ErrUnknownSpecies/ErrUnknownLevel.
func (l *Lookup) HitPoints(speciesID int, level float64, stamina int) (int, error) {
	base, err := l.BaseStats(speciesID)
	if err != nil {
		return 0, err
	}
	multiplier, err := l.Multiplier(level)
	if err != nil {
		return 0, err
	}
	return int(math.Floor(float64(base.Stamina+stamina) * multiplier)), nil
}

// LevelFromMultiplier maps an upstream multiplier back to its level.
// Params: multiplier as reported by the scanner, possibly with float noise.
// Returns: level or -1 when no tabulated multiplier matches.
func (l *Lookup) LevelFromMultiplier(multiplier float64) float64 {
	if level, ok := l.levels[multiplierKey(multiplier)]; ok {
		return level
	}
	return -1
}

// multiplierKey truncates a multiplier to five decimals as an integer key.
func multiplierKey(multiplier float64) int64 {
	return int64(math.Trunc(multiplier*1e5 + 1e-6))
}
