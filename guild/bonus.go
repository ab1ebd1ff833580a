package guild

import "math"

// roleAdjustmentBP is the per-position bonus on top of the guild
// multiplier, in basis points (1/10000).
func roleAdjustmentBP(p Position) int64 {
	switch p.Role() {
	case RoleGuildMaster:
		return 500
	case RoleViceMaster:
		return 300
	case RoleMember:
		switch lvl, _ := p.Level(); lvl {
		case Level1:
			return 200
		case Level2:
			return 100
		}
	}
	return 0
}

// CalculateBonus returns round(base × (multiplier + role adjustment)),
// rounding half up to the nearest currency unit. Arithmetic is done in
// basis points so that 1.1+0.02 is exactly 1.12.
func CalculateBonus(base int64, multiplier float64, p Position) int64 {
	bp := int64(math.Round(multiplier*10000)) + roleAdjustmentBP(p)
	num := base * bp
	if num >= 0 {
		return (num + 5000) / 10000
	}
	// Half up means toward +inf for negative amounts as well.
	return -((-num - 5000 + 9999) / 10000)
}

// BonusFor is CalculateBonus using the guild's own multiplier.
func BonusFor(base int64, g *Guild, p Position) int64 {
	return CalculateBonus(base, g.BonusMultiplier, p)
}
