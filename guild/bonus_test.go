package guild_test

import (
	"testing"

	"github.com/kasuganosora/guildhall/server/guild"
	"github.com/stretchr/testify/assert"
)

func TestCalculateBonus(t *testing.T) {
	tests := []struct {
		name string
		base int64
		mult float64
		pos  guild.Position
		want int64
	}{
		{"member level 1", 10000, 1.1, guild.MustMember(guild.Level1), 11200},
		{"member level 2", 10000, 1.0, guild.MustMember(guild.Level2), 10100},
		{"member level 3", 10000, 1.0, guild.MustMember(guild.Level3), 10000},
		{"vice master", 10000, 1.0, guild.ViceMaster(), 10300},
		{"guild master", 10000, 1.25, guild.GuildMaster(), 13000},
		{"half rounds up", 5, 1.1, guild.MustMember(guild.Level3), 6},
		{"zero base", 0, 2.0, guild.GuildMaster(), 0},
		{"negative half rounds up", -5, 1.1, guild.MustMember(guild.Level3), -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guild.CalculateBonus(tt.base, tt.mult, tt.pos))
		})
	}
}

func TestBonusFor_UsesGuildMultiplier(t *testing.T) {
	g := &guild.Guild{BonusMultiplier: 1.5}
	assert.Equal(t, int64(1550), guild.BonusFor(1000, g, guild.GuildMaster()))
}

func TestCalculateBonus_MonotonicInSeniority(t *testing.T) {
	order := []guild.Position{
		guild.GuildMaster(),
		guild.ViceMaster(),
		guild.MustMember(guild.Level1),
		guild.MustMember(guild.Level2),
		guild.MustMember(guild.Level3),
	}
	for _, base := range []int64{1, 99, 10000, 123456} {
		for i := 1; i < len(order); i++ {
			hi := guild.CalculateBonus(base, 1.1, order[i-1])
			lo := guild.CalculateBonus(base, 1.1, order[i])
			assert.GreaterOrEqual(t, hi, lo, "base %d: %s vs %s", base, order[i-1], order[i])
		}
	}
}
