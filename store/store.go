// Package store persists guild records with GORM.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/guildhall/server/guild"
	"github.com/kasuganosora/guildhall/server/model"
	"gorm.io/gorm"
)

// Store implements guild.Store on a *gorm.DB.
type Store struct {
	db *gorm.DB
}

var _ guild.Store = (*Store)(nil)

// New creates a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Atomic runs fn inside a database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(tx guild.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
	return guild.Storage("transaction", err)
}

// ---- Guild ----

func (s *Store) GetGuild(ctx context.Context, id string) (*guild.Guild, error) {
	var rec model.Guild
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, fail("guild "+id, err)
	}
	return guildFromModel(&rec)
}

func (s *Store) PutGuild(ctx context.Context, g *guild.Guild) error {
	rec, err := guildToModel(g)
	if err != nil {
		return guild.Storage("encode guild", err)
	}
	return fail("put guild "+g.ID, s.upsert(ctx, &model.Guild{}, rec, "id = ?", g.ID))
}

// likeEscaper makes a search term match literally inside LIKE ... ESCAPE '!'.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (s *Store) SearchGuilds(ctx context.Context, q guild.SearchQuery) ([]guild.Guild, error) {
	tx := s.db.WithContext(ctx).Model(&model.Guild{})
	if q.OpenOnly {
		tx = tx.Where("is_open = ?", true)
	}
	if q.Term != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(q.Term)) + "%"
		tx = tx.Where("LOWER(name) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!'", like, like)
	}
	if len(q.MinRanks) > 0 {
		ranks := make([]string, len(q.MinRanks))
		for i, r := range q.MinRanks {
			ranks[i] = string(r)
		}
		tx = tx.Where("min_rank_required IN ?", ranks)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var recs []model.Guild
	if err := tx.Order("member_count DESC").Order("name").Find(&recs).Error; err != nil {
		return nil, fail("search guilds", err)
	}
	out := make([]guild.Guild, 0, len(recs))
	for i := range recs {
		g, err := guildFromModel(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, nil
}

// ---- Member ----

func (s *Store) GetMember(ctx context.Context, guildID, userID string) (*guild.Member, error) {
	var rec model.GuildMember
	err := s.db.WithContext(ctx).First(&rec, "guild_id = ? AND user_id = ?", guildID, userID).Error
	if err != nil {
		return nil, fail(fmt.Sprintf("member %s of guild %s", userID, guildID), err)
	}
	return memberFromModel(&rec)
}

func (s *Store) PutMember(ctx context.Context, m *guild.Member) error {
	rec := memberToModel(m)
	err := s.upsert(ctx, &model.GuildMember{}, rec, "guild_id = ? AND user_id = ?", m.GuildID, m.UserID)
	return fail("put member "+m.UserID, err)
}

func (s *Store) DeleteMember(ctx context.Context, guildID, userID string) error {
	res := s.db.WithContext(ctx).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Delete(&model.GuildMember{})
	if res.Error != nil {
		return fail("delete member "+userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: member %s of guild %s", guild.ErrNotFound, userID, guildID)
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, guildID string) ([]guild.Member, error) {
	return s.listMembers(ctx, "guild_id = ?", guildID)
}

func (s *Store) ListMemberships(ctx context.Context, userID string) ([]guild.Member, error) {
	return s.listMembers(ctx, "user_id = ?", userID)
}

func (s *Store) listMembers(ctx context.Context, where string, arg string) ([]guild.Member, error) {
	var recs []model.GuildMember
	if err := s.db.WithContext(ctx).Where(where, arg).Order("joined_at").Find(&recs).Error; err != nil {
		return nil, fail("list members", err)
	}
	out := make([]guild.Member, 0, len(recs))
	for i := range recs {
		m, err := memberFromModel(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

// ---- Invitation ----

func (s *Store) GetInvitation(ctx context.Context, id string) (*guild.Invitation, error) {
	var rec model.GuildInvitation
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, fail("invitation "+id, err)
	}
	return invitationFromModel(&rec)
}

func (s *Store) PutInvitation(ctx context.Context, inv *guild.Invitation) error {
	rec := invitationToModel(inv)
	return fail("put invitation "+inv.ID, s.upsert(ctx, &model.GuildInvitation{}, rec, "id = ?", inv.ID))
}

func (s *Store) ListInvitations(ctx context.Context, q guild.InvitationQuery) ([]guild.Invitation, error) {
	tx := s.db.WithContext(ctx)
	if q.GuildID != "" {
		tx = tx.Where("guild_id = ?", q.GuildID)
	}
	if q.InvitedUserID != "" {
		tx = tx.Where("invited_user_id = ?", q.InvitedUserID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}
	var recs []model.GuildInvitation
	if err := tx.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fail("list invitations", err)
	}
	out := make([]guild.Invitation, 0, len(recs))
	for i := range recs {
		inv, err := invitationFromModel(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (s *Store) ExpireInvitations(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.GuildInvitation{}).
		Where("status = ? AND expires_at <= ?", string(guild.InvitationPending), now).
		Update("status", string(guild.InvitationExpired))
	if res.Error != nil {
		return 0, fail("expire invitations", res.Error)
	}
	return res.RowsAffected, nil
}

// ---- JoinRequest ----

func (s *Store) GetJoinRequest(ctx context.Context, id string) (*guild.JoinRequest, error) {
	var rec model.GuildJoinRequest
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, fail("join request "+id, err)
	}
	return joinRequestFromModel(&rec), nil
}

func (s *Store) PutJoinRequest(ctx context.Context, r *guild.JoinRequest) error {
	rec := joinRequestToModel(r)
	return fail("put join request "+r.ID, s.upsert(ctx, &model.GuildJoinRequest{}, rec, "id = ?", r.ID))
}

func (s *Store) ListJoinRequests(ctx context.Context, q guild.JoinRequestQuery) ([]guild.JoinRequest, error) {
	tx := s.db.WithContext(ctx)
	if q.GuildID != "" {
		tx = tx.Where("guild_id = ?", q.GuildID)
	}
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}
	var recs []model.GuildJoinRequest
	if err := tx.Order("created_at").Find(&recs).Error; err != nil {
		return nil, fail("list join requests", err)
	}
	out := make([]guild.JoinRequest, 0, len(recs))
	for i := range recs {
		out = append(out, *joinRequestFromModel(&recs[i]))
	}
	return out, nil
}

// upsert inserts rec, or overwrites every column of the row matching where.
// The existence probe keeps a unique violation on another column from
// turning into an update of the wrong row.
func (s *Store) upsert(ctx context.Context, table, rec any, where string, args ...any) error {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(table).Where(where, args...).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return db.Create(rec).Error
	}
	return db.Model(rec).Select("*").Updates(rec).Error
}

// fail maps a GORM error onto the guild error kinds.
func fail(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", guild.ErrNotFound, op)
	case isDuplicate(err):
		return fmt.Errorf("%w: %s: %v", guild.ErrConflict, op, err)
	default:
		return guild.Storage(op, err)
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

// ---- mapping ----

func levelPtr(p guild.Position) *int {
	lvl, ok := p.Level()
	if !ok {
		return nil
	}
	v := int(lvl)
	return &v
}

func positionOf(role string, level *int) (guild.Position, error) {
	var lvl guild.Level
	if level != nil {
		lvl = guild.Level(*level)
	}
	p, err := guild.PositionOf(guild.Role(role), lvl)
	if err != nil {
		return guild.Position{}, &guild.StorageError{Op: "decode position", Err: err}
	}
	return p, nil
}

func guildToModel(g *guild.Guild) (*model.Guild, error) {
	tags, err := json.Marshal(g.Tags)
	if err != nil {
		return nil, err
	}
	return &model.Guild{
		ID:               g.ID,
		Name:             g.Name,
		Slug:             g.Slug,
		Description:      g.Description,
		CreatedBy:        g.CreatedBy,
		LeaderID:         g.LeaderID,
		MemberCount:      g.MemberCount,
		TotalEarnings:    g.TotalEarnings,
		CompletedTasks:   g.CompletedTasks,
		AverageRating:    g.AverageRating,
		IsOpen:           g.IsOpen,
		RequiresApproval: g.RequiresApproval,
		MaxMembers:       g.MaxMembers,
		MinRankRequired:  string(g.MinRankRequired),
		Logo:             g.Logo,
		BannerImage:      g.BannerImage,
		PrimaryColor:     g.PrimaryColor,
		Tags:             tags,
		BonusMultiplier:  g.BonusMultiplier,
		ExclusiveJobs:    g.ExclusiveJobs,
		PriorityMatching: g.PriorityMatching,
		CreatedAt:        g.CreatedAt,
		UpdatedAt:        g.UpdatedAt,
	}, nil
}

func guildFromModel(r *model.Guild) (*guild.Guild, error) {
	var tags []string
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &tags); err != nil {
			return nil, guild.Storage("decode guild tags", err)
		}
	}
	return &guild.Guild{
		ID:               r.ID,
		Name:             r.Name,
		Slug:             r.Slug,
		Description:      r.Description,
		CreatedAt:        r.CreatedAt,
		CreatedBy:        r.CreatedBy,
		LeaderID:         r.LeaderID,
		MemberCount:      r.MemberCount,
		TotalEarnings:    r.TotalEarnings,
		CompletedTasks:   r.CompletedTasks,
		AverageRating:    r.AverageRating,
		IsOpen:           r.IsOpen,
		RequiresApproval: r.RequiresApproval,
		MaxMembers:       r.MaxMembers,
		MinRankRequired:  guild.Rank(r.MinRankRequired),
		Logo:             r.Logo,
		BannerImage:      r.BannerImage,
		PrimaryColor:     r.PrimaryColor,
		Tags:             tags,
		BonusMultiplier:  r.BonusMultiplier,
		ExclusiveJobs:    r.ExclusiveJobs,
		PriorityMatching: r.PriorityMatching,
		UpdatedAt:        r.UpdatedAt,
	}, nil
}

func memberToModel(m *guild.Member) *model.GuildMember {
	return &model.GuildMember{
		GuildID:           m.GuildID,
		UserID:            m.UserID,
		Role:              string(m.Position.Role()),
		Level:             levelPtr(m.Position),
		JoinedAt:          m.JoinedAt,
		LastActiveAt:      m.LastActiveAt,
		TasksCompleted:    m.TasksCompleted,
		Earnings:          m.Earnings,
		ContributionScore: m.ContributionScore,
		IsActive:          m.IsActive,
	}
}

func memberFromModel(r *model.GuildMember) (*guild.Member, error) {
	pos, err := positionOf(r.Role, r.Level)
	if err != nil {
		return nil, err
	}
	return &guild.Member{
		UserID:            r.UserID,
		GuildID:           r.GuildID,
		Position:          pos,
		JoinedAt:          r.JoinedAt,
		LastActiveAt:      r.LastActiveAt,
		TasksCompleted:    r.TasksCompleted,
		Earnings:          r.Earnings,
		ContributionScore: r.ContributionScore,
		IsActive:          r.IsActive,
		Permissions:       guild.PermissionsFor(pos),
	}, nil
}

func invitationToModel(inv *guild.Invitation) *model.GuildInvitation {
	return &model.GuildInvitation{
		ID:            inv.ID,
		GuildID:       inv.GuildID,
		GuildName:     inv.GuildName,
		InvitedUserID: inv.InvitedUserID,
		InvitedBy:     inv.InvitedBy,
		InviterName:   inv.InviterName,
		Role:          string(inv.Position.Role()),
		Level:         levelPtr(inv.Position),
		Message:       inv.Message,
		Status:        string(inv.Status),
		InviteType:    inv.InviteType,
		CreatedAt:     inv.CreatedAt,
		ExpiresAt:     inv.ExpiresAt,
		RespondedAt:   inv.RespondedAt,
	}
}

func invitationFromModel(r *model.GuildInvitation) (*guild.Invitation, error) {
	pos, err := positionOf(r.Role, r.Level)
	if err != nil {
		return nil, err
	}
	return &guild.Invitation{
		ID:            r.ID,
		GuildID:       r.GuildID,
		GuildName:     r.GuildName,
		InvitedUserID: r.InvitedUserID,
		InvitedBy:     r.InvitedBy,
		InviterName:   r.InviterName,
		Position:      pos,
		Message:       r.Message,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
		Status:        guild.InvitationStatus(r.Status),
		InviteType:    r.InviteType,
		RespondedAt:   r.RespondedAt,
	}, nil
}

func joinRequestToModel(r *guild.JoinRequest) *model.GuildJoinRequest {
	return &model.GuildJoinRequest{
		ID:         r.ID,
		GuildID:    r.GuildID,
		UserID:     r.UserID,
		UserName:   r.UserName,
		UserRank:   string(r.UserRank),
		Message:    r.Message,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		ReviewedBy: r.ReviewedBy,
		ReviewedAt: r.ReviewedAt,
	}
}

func joinRequestFromModel(r *model.GuildJoinRequest) *guild.JoinRequest {
	return &guild.JoinRequest{
		ID:         r.ID,
		GuildID:    r.GuildID,
		UserID:     r.UserID,
		UserName:   r.UserName,
		UserRank:   guild.Rank(r.UserRank),
		Message:    r.Message,
		CreatedAt:  r.CreatedAt,
		Status:     guild.JoinRequestStatus(r.Status),
		ReviewedBy: r.ReviewedBy,
		ReviewedAt: r.ReviewedAt,
	}
}
