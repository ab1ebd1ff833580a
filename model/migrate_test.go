package model_test

import (
	"testing"
	"time"

	"github.com/kasuganosora/guildhall/server/model"
	"github.com/kasuganosora/guildhall/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)
	now := time.Now().UTC()

	// Account
	acc := &model.Account{ID: "acc-1", Username: "test_user", PasswordHash: "hash", Rank: "C", Status: 1}
	require.NoError(t, db.Create(acc).Error)

	var found model.Account
	require.NoError(t, db.First(&found, "id = ?", acc.ID).Error)
	assert.Equal(t, "test_user", found.Username)
	assert.Equal(t, "C", found.Rank)

	// Guild
	g := &model.Guild{
		ID: "g-1", Name: "TestGuild", Slug: "testguild", CreatedBy: acc.ID, LeaderID: acc.ID,
		MemberCount: 1, MaxMembers: 25, MinRankRequired: "G", BonusMultiplier: 1,
		Tags: datatypes.JSON(`["design"]`), CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.Create(g).Error)

	// GuildMember: a leader carries no level, a member does.
	require.NoError(t, db.Create(&model.GuildMember{GuildID: g.ID, UserID: acc.ID, Role: "Guild Master", JoinedAt: now}).Error)
	lvl := 2
	require.NoError(t, db.Create(&model.GuildMember{GuildID: g.ID, UserID: "acc-2", Role: "Member", Level: &lvl, JoinedAt: now}).Error)

	var members []model.GuildMember
	require.NoError(t, db.Where("guild_id = ?", g.ID).Order("joined_at").Find(&members).Error)
	require.Len(t, members, 2)
	var leader model.GuildMember
	require.NoError(t, db.First(&leader, "guild_id = ? AND user_id = ?", g.ID, acc.ID).Error)
	assert.Nil(t, leader.Level)

	// Composite primary key rejects a second membership row.
	assert.Error(t, db.Create(&model.GuildMember{GuildID: g.ID, UserID: acc.ID, Role: "Member", JoinedAt: now}).Error)

	// Invitation
	inv := &model.GuildInvitation{
		ID: "inv-1", GuildID: g.ID, InvitedUserID: "acc-3", InvitedBy: acc.ID,
		Role: "Member", Level: &lvl, Status: "pending", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, db.Create(inv).Error)

	// JoinRequest
	jr := &model.GuildJoinRequest{ID: "jr-1", GuildID: g.ID, UserID: "acc-4", UserRank: "B", Status: "pending", CreatedAt: now}
	require.NoError(t, db.Create(jr).Error)

	// AuditLog
	al := &model.AuditLog{
		TraceID: "trace-001", Action: "guild.create", GuildID: g.ID,
		CreatedAt: now,
	}
	require.NoError(t, db.Create(al).Error)
	assert.Greater(t, al.ID, int64(0))
}
