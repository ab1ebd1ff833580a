package guild

import (
	"context"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// CreateGuild founds a guild. The founder becomes its Guild Master and the
// guild starts with one member.
func (s *Service) CreateGuild(ctx context.Context, founderID, name string, settings Settings) (*Guild, *Member, error) {
	if founderID == "" {
		return nil, nil, errorf(ErrValidation, "founder id is required")
	}
	if err := ValidateName(name); err != nil {
		return nil, nil, err
	}
	if err := validateStruct(settings); err != nil {
		return nil, nil, err
	}

	now := s.now()
	g := &Guild{
		ID:               s.cfg.NewID(),
		Name:             name,
		Slug:             slug.Make(name),
		Description:      settings.Description,
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        founderID,
		LeaderID:         founderID,
		MemberCount:      1,
		IsOpen:           settings.IsOpen,
		RequiresApproval: settings.RequiresApproval,
		MaxMembers:       settings.MaxMembers,
		MinRankRequired:  settings.MinRankRequired,
		Logo:             settings.Logo,
		BannerImage:      settings.BannerImage,
		PrimaryColor:     settings.PrimaryColor,
		Tags:             settings.Tags,
		BonusMultiplier:  settings.BonusMultiplier,
		ExclusiveJobs:    settings.ExclusiveJobs,
		PriorityMatching: settings.PriorityMatching,
	}
	if g.MaxMembers == 0 {
		g.MaxMembers = s.cfg.DefaultMaxMembers
	}
	if g.MinRankRequired == "" {
		g.MinRankRequired = s.cfg.DefaultMinRank
	}
	if g.BonusMultiplier == 0 {
		g.BonusMultiplier = 1.0
	}
	if g.PrimaryColor == "" {
		g.PrimaryColor = defaultPrimaryColor
	}

	founder := &Member{
		UserID:       founderID,
		GuildID:      g.ID,
		JoinedAt:     now,
		LastActiveAt: now,
		IsActive:     true,
	}
	founder.setPosition(GuildMaster())

	err := s.store.Atomic(ctx, func(tx Store) error {
		if err := tx.PutGuild(ctx, g); err != nil {
			return err
		}
		return tx.PutMember(ctx, founder)
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("guild created",
		zap.String("guild_id", g.ID),
		zap.String("name", g.Name),
		zap.String("founder_id", founderID))
	s.emit(ctx, Event{Type: EventGuildCreated, GuildID: g.ID, UserID: founderID, ActorID: founderID})
	return g, founder, nil
}

// JoinOption adjusts a JoinGuild call.
type JoinOption func(*joinOptions)

type joinOptions struct {
	position Position
}

// JoinAs seats the new member at p instead of Member at the configured
// default level. Guild Master is refused; leadership only moves by
// transfer.
func JoinAs(p Position) JoinOption {
	return func(o *joinOptions) { o.position = p }
}

// JoinGuild is the public join path: the user must pass CanJoin and the
// guild must not require approval. The new member gets the default level
// unless JoinAs says otherwise.
func (s *Service) JoinGuild(ctx context.Context, userID, guildID string, rank Rank, opts ...JoinOption) (*Member, error) {
	o := joinOptions{position: s.defaultMemberPosition()}
	for _, opt := range opts {
		opt(&o)
	}
	var m *Member
	err := s.store.Atomic(ctx, func(tx Store) error {
		g, err := tx.GetGuild(ctx, guildID)
		if err != nil {
			return err
		}
		if err := CanJoin(g, rank).err(); err != nil {
			return err
		}
		if g.RequiresApproval {
			return errorf(ErrPermission, "guild %s requires approval, send a join request", guildID)
		}
		m, err = s.admit(ctx, tx, g, userID, o.position)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logJoined(m, "public")
	s.emit(ctx, Event{Type: EventMemberJoined, GuildID: guildID, UserID: userID, Position: &m.Position})
	return m, nil
}

func (s *Service) logJoined(m *Member, via string) {
	s.logger.Info("guild member joined",
		zap.String("guild_id", m.GuildID),
		zap.String("user_id", m.UserID),
		zap.String("position", m.Position.Label()),
		zap.String("via", via))
}

// LeaveGuild removes the user's own membership. The Guild Master must
// transfer leadership first.
func (s *Service) LeaveGuild(ctx context.Context, userID, guildID string) error {
	err := s.store.Atomic(ctx, func(tx Store) error {
		g, err := tx.GetGuild(ctx, guildID)
		if err != nil {
			return err
		}
		m, err := tx.GetMember(ctx, guildID, userID)
		if err != nil {
			return err
		}
		if m.Position.Role() == RoleGuildMaster {
			return errorf(ErrInvalidState, "the guild master must transfer leadership before leaving")
		}
		return s.remove(ctx, tx, g, userID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("guild member left", zap.String("guild_id", guildID), zap.String("user_id", userID))
	s.emit(ctx, Event{Type: EventMemberLeft, GuildID: guildID, UserID: userID, ActorID: userID})
	return nil
}

// Promote moves target to a more senior position. Promoting a Vice Master
// to Guild Master is a leadership transfer: the acting Guild Master
// becomes Vice Master in the same transaction.
func (s *Service) Promote(ctx context.Context, actorID, targetID, guildID string, to Position) (*Member, error) {
	return s.move(ctx, ActionPromote, actorID, targetID, guildID, to)
}

// Demote moves target to a less senior position.
func (s *Service) Demote(ctx context.Context, actorID, targetID, guildID string, to Position) (*Member, error) {
	return s.move(ctx, ActionDemote, actorID, targetID, guildID, to)
}

// TransferLeadership hands the Guild Master role to a Vice Master.
func (s *Service) TransferLeadership(ctx context.Context, actorID, targetID, guildID string) (*Member, error) {
	return s.move(ctx, ActionPromote, actorID, targetID, guildID, GuildMaster())
}

func (s *Service) move(ctx context.Context, action Action, actorID, targetID, guildID string, to Position) (*Member, error) {
	var (
		target   *Member
		from     Position
		transfer bool
	)
	err := s.store.Atomic(ctx, func(tx Store) error {
		g, err := tx.GetGuild(ctx, guildID)
		if err != nil {
			return err
		}
		actor, err := s.actor(ctx, tx, guildID, actorID)
		if err != nil {
			return err
		}
		target, err = tx.GetMember(ctx, guildID, targetID)
		if err != nil {
			return err
		}
		from = target.Position
		if !CanPerform(action, actor.Position.Role(), target.Position.Role()) {
			return errorf(ErrPermission, "%s cannot %s %s", actor.Position.Label(), action, target.Position.Label())
		}

		var opts []Option
		if action == ActionPromote {
			opts = PromotionOptions(target.Position, actor.Position.Role())
		} else {
			opts = DemotionOptions(target.Position)
		}
		opt, ok := findOption(opts, to)
		if !ok {
			return errorf(ErrInvalidTransition, "cannot %s %s to %s", action, target.Position.Label(), to.Label())
		}

		if opt.Transfer() {
			transfer = true
			return s.transfer(ctx, tx, g, actor, target)
		}
		target.setPosition(to)
		return tx.PutMember(ctx, target)
	})
	if err != nil {
		return nil, err
	}

	if transfer {
		s.logger.Info("guild leadership transferred",
			zap.String("guild_id", guildID),
			zap.String("from_user_id", actorID),
			zap.String("to_user_id", targetID))
		s.emit(ctx, Event{Type: EventLeadershipTransferred, GuildID: guildID, UserID: targetID, ActorID: actorID, Position: &target.Position})
		return target, nil
	}

	evType := EventMemberPromoted
	if action == ActionDemote {
		evType = EventMemberDemoted
	}
	s.logger.Info("guild member moved",
		zap.String("guild_id", guildID),
		zap.String("actor_id", actorID),
		zap.String("user_id", targetID),
		zap.String("from", from.Label()),
		zap.String("to", target.Position.Label()))
	s.emit(ctx, Event{Type: evType, GuildID: guildID, UserID: targetID, ActorID: actorID, Position: &target.Position})
	return target, nil
}

// transfer swaps Guild Master and Vice Master between the current leader
// and target. It must run inside Atomic.
func (s *Service) transfer(ctx context.Context, tx Store, g *Guild, leader, target *Member) error {
	if leader.Position.Role() != RoleGuildMaster || target.Position.Role() != RoleViceMaster {
		return errorf(ErrInvalidTransition, "leadership moves only from the guild master to a vice master")
	}
	leader.setPosition(ViceMaster())
	if err := tx.PutMember(ctx, leader); err != nil {
		return err
	}
	target.setPosition(GuildMaster())
	if err := tx.PutMember(ctx, target); err != nil {
		return err
	}
	g.LeaderID = target.UserID
	g.UpdatedAt = s.now()
	return tx.PutGuild(ctx, g)
}

// KickMember removes target from the guild on actor's authority.
// isRemovable is consulted after the role check; a false result (for
// example, an active contract) blocks the removal. A nil predicate allows
// every removal.
func (s *Service) KickMember(ctx context.Context, actorID, targetID, guildID string, isRemovable func(userID string) bool) error {
	if actorID == targetID {
		return errorf(ErrInvalidState, "members cannot kick themselves, leave the guild instead")
	}
	err := s.store.Atomic(ctx, func(tx Store) error {
		g, err := tx.GetGuild(ctx, guildID)
		if err != nil {
			return err
		}
		actor, err := s.actor(ctx, tx, guildID, actorID)
		if err != nil {
			return err
		}
		target, err := tx.GetMember(ctx, guildID, targetID)
		if err != nil {
			return err
		}
		if !CanPerform(ActionKick, actor.Position.Role(), target.Position.Role()) {
			return errorf(ErrPermission, "%s cannot kick %s", actor.Position.Label(), target.Position.Label())
		}
		if isRemovable != nil && !isRemovable(targetID) {
			return errorf(ErrConflict, "user %s has active commitments and cannot be removed", targetID)
		}
		return s.remove(ctx, tx, g, targetID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("guild member kicked",
		zap.String("guild_id", guildID),
		zap.String("actor_id", actorID),
		zap.String("user_id", targetID))
	s.emit(ctx, Event{Type: EventMemberKicked, GuildID: guildID, UserID: targetID, ActorID: actorID}, UserChannel(targetID))
	return nil
}

// UpdateGuildSettings merges patch into the guild. Only the Guild Master
// may change settings.
func (s *Service) UpdateGuildSettings(ctx context.Context, actorID, guildID string, patch SettingsPatch) (*Guild, error) {
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	var g *Guild
	err := s.store.Atomic(ctx, func(tx Store) error {
		var err error
		g, err = tx.GetGuild(ctx, guildID)
		if err != nil {
			return err
		}
		actor, err := s.actor(ctx, tx, guildID, actorID)
		if err != nil {
			return err
		}
		if !CanPerform(ActionManageSettings, actor.Position.Role(), "") {
			return errorf(ErrPermission, "only the guild master can change settings")
		}
		if err := applyPatch(g, patch); err != nil {
			return err
		}
		g.UpdatedAt = s.now()
		return tx.PutGuild(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("guild settings updated", zap.String("guild_id", guildID), zap.String("actor_id", actorID))
	s.emit(ctx, Event{Type: EventSettingsUpdated, GuildID: guildID, ActorID: actorID})
	return g, nil
}

func applyPatch(g *Guild, p SettingsPatch) error {
	if p.MaxMembers != nil && *p.MaxMembers < g.MemberCount {
		return errorf(ErrConflict, "max members %d is below the current member count %d", *p.MaxMembers, g.MemberCount)
	}
	if p.Name != nil {
		g.Name = *p.Name
		g.Slug = slug.Make(*p.Name)
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.IsOpen != nil {
		g.IsOpen = *p.IsOpen
	}
	if p.RequiresApproval != nil {
		g.RequiresApproval = *p.RequiresApproval
	}
	if p.MaxMembers != nil {
		g.MaxMembers = *p.MaxMembers
	}
	if p.MinRankRequired != nil {
		g.MinRankRequired = *p.MinRankRequired
	}
	if p.Logo != nil {
		g.Logo = *p.Logo
	}
	if p.BannerImage != nil {
		g.BannerImage = *p.BannerImage
	}
	if p.PrimaryColor != nil {
		g.PrimaryColor = *p.PrimaryColor
	}
	if p.BonusMultiplier != nil {
		g.BonusMultiplier = *p.BonusMultiplier
	}
	if p.ExclusiveJobs != nil {
		g.ExclusiveJobs = *p.ExclusiveJobs
	}
	if p.PriorityMatching != nil {
		g.PriorityMatching = *p.PriorityMatching
	}
	if p.Tags != nil {
		g.Tags = *p.Tags
	}
	return nil
}
