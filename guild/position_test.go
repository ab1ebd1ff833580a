package guild_test

import (
	"encoding/json"
	"testing"

	"github.com/kasuganosora/guildhall/server/guild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionOf_LevelOnlyForMembers(t *testing.T) {
	_, err := guild.PositionOf(guild.RoleGuildMaster, guild.Level1)
	assert.ErrorIs(t, err, guild.ErrValidation)

	_, err = guild.PositionOf(guild.RoleViceMaster, guild.Level2)
	assert.ErrorIs(t, err, guild.ErrValidation)

	_, err = guild.PositionOf(guild.RoleMember, guild.LevelNone)
	assert.ErrorIs(t, err, guild.ErrValidation)

	_, err = guild.PositionOf(guild.RoleMember, 4)
	assert.ErrorIs(t, err, guild.ErrValidation)

	_, err = guild.PositionOf("Officer", guild.LevelNone)
	assert.ErrorIs(t, err, guild.ErrValidation)

	p, err := guild.PositionOf(guild.RoleMember, guild.Level3)
	require.NoError(t, err)
	lvl, ok := p.Level()
	assert.True(t, ok)
	assert.Equal(t, guild.Level3, lvl)

	gm, err := guild.PositionOf(guild.RoleGuildMaster, guild.LevelNone)
	require.NoError(t, err)
	_, ok = gm.Level()
	assert.False(t, ok)
}

func TestPosition_Labels(t *testing.T) {
	assert.Equal(t, "Guild Master", guild.GuildMaster().Label())
	assert.Equal(t, "Vice Master", guild.ViceMaster().Label())
	assert.Equal(t, "Member Lv.2", guild.MustMember(guild.Level2).Label())
	assert.Equal(t, "Member", guild.RoleLabel(guild.RoleMember, guild.LevelNone))
}

func TestHierarchyScore_StrictOrder(t *testing.T) {
	order := []guild.Position{
		guild.GuildMaster(),
		guild.ViceMaster(),
		guild.MustMember(guild.Level1),
		guild.MustMember(guild.Level2),
		guild.MustMember(guild.Level3),
	}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i-1].Score(), order[i].Score(), "%s vs %s", order[i-1], order[i])
	}
	assert.Equal(t, 1000, guild.GuildMaster().Score())
	assert.Equal(t, 500, guild.ViceMaster().Score())
	assert.Equal(t, 90, guild.MustMember(guild.Level1).Score())
	assert.Equal(t, 70, guild.MustMember(guild.Level3).Score())
	assert.Equal(t, 50, guild.HierarchyScore(guild.RoleMember, guild.LevelNone))
}

func TestPosition_JSON(t *testing.T) {
	b, err := json.Marshal(guild.ViceMaster())
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"Vice Master"}`, string(b))

	b, err = json.Marshal(guild.MustMember(guild.Level1))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"Member","level":1}`, string(b))

	var p guild.Position
	require.NoError(t, json.Unmarshal([]byte(`{"role":"Member","level":3}`), &p))
	assert.Equal(t, guild.MustMember(guild.Level3), p)

	assert.Error(t, json.Unmarshal([]byte(`{"role":"Guild Master","level":1}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"role":"Member"}`), &p))
}

func TestPermissionsFor(t *testing.T) {
	gm := guild.PermissionsFor(guild.GuildMaster())
	assert.True(t, gm.CanInviteMembers)
	assert.True(t, gm.CanManageJobs)
	assert.True(t, gm.CanViewFinances)

	vm := guild.PermissionsFor(guild.ViceMaster())
	assert.True(t, vm.CanInviteMembers)
	assert.True(t, vm.CanManageJobs)
	assert.True(t, vm.CanViewFinances)

	l2 := guild.PermissionsFor(guild.MustMember(guild.Level2))
	assert.True(t, l2.CanInviteMembers)
	assert.False(t, l2.CanManageJobs)
	assert.False(t, l2.CanViewFinances)

	l3 := guild.PermissionsFor(guild.MustMember(guild.Level3))
	assert.False(t, l3.CanInviteMembers)
}
