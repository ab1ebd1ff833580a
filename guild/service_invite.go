package guild

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// InviteInput describes a new invitation. A nil Position proposes a
// Member at the default level.
type InviteInput struct {
	GuildID     string    `json:"guild_id" validate:"required"`
	InviterID   string    `json:"inviter_id" validate:"required"`
	InviterName string    `json:"inviter_name" validate:"max=64"`
	InviteeID   string    `json:"invitee_id" validate:"required"`
	Position    *Position `json:"position,omitempty"`
	Message     string    `json:"message" validate:"max=500"`
}

// SendInvitation offers membership to a user. The inviter must be allowed
// to invite; only a Guild Master may offer Vice Master.
func (s *Service) SendInvitation(ctx context.Context, in InviteInput) (*Invitation, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.InviterID == in.InviteeID {
		return nil, errorf(ErrValidation, "users cannot invite themselves")
	}
	pos := s.defaultMemberPosition()
	if in.Position != nil {
		pos = *in.Position
	}
	if pos.IsZero() || pos.Role() == RoleGuildMaster {
		return nil, errorf(ErrInvalidTransition, "cannot invite as %s", pos.Label())
	}

	var inv *Invitation
	err := s.store.Atomic(ctx, func(tx Store) error {
		g, err := tx.GetGuild(ctx, in.GuildID)
		if err != nil {
			return err
		}
		inviter, err := s.actor(ctx, tx, in.GuildID, in.InviterID)
		if err != nil {
			return err
		}
		if !CanPerform(ActionInvite, inviter.Position.Role(), "") {
			return errorf(ErrPermission, "%s cannot invite members", inviter.Position.Label())
		}
		if pos.Role() == RoleViceMaster && inviter.Position.Role() != RoleGuildMaster {
			return errorf(ErrPermission, "only the guild master can invite a vice master")
		}
		if err := s.checkNotMember(ctx, tx, in.GuildID, in.InviteeID); err != nil {
			return err
		}
		if g.Full() {
			return errorf(ErrConflict, "guild %s is %s", g.ID, ReasonCapacity)
		}

		now := s.now()
		open, err := tx.ListInvitations(ctx, InvitationQuery{
			GuildID:       in.GuildID,
			InvitedUserID: in.InviteeID,
			Status:        InvitationPending,
		})
		if err != nil {
			return err
		}
		for i := range open {
			if open[i].EffectiveStatus(now) == InvitationPending {
				return errorf(ErrConflict, "user %s already has a pending invitation to guild %s", in.InviteeID, in.GuildID)
			}
		}

		inv = &Invitation{
			ID:            s.cfg.NewID(),
			GuildID:       g.ID,
			GuildName:     g.Name,
			InvitedUserID: in.InviteeID,
			InvitedBy:     in.InviterID,
			InviterName:   in.InviterName,
			Position:      pos,
			Message:       in.Message,
			CreatedAt:     now,
			ExpiresAt:     now.Add(s.cfg.InvitationTTL),
			Status:        InvitationPending,
			InviteType:    InviteTypeDirect,
		}
		return tx.PutInvitation(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("guild invitation sent",
		zap.String("invitation_id", inv.ID),
		zap.String("guild_id", inv.GuildID),
		zap.String("inviter_id", inv.InvitedBy),
		zap.String("invitee_id", inv.InvitedUserID),
		zap.String("position", inv.Position.Label()))
	s.emit(ctx, Event{
		Type:     EventInvitationSent,
		GuildID:  inv.GuildID,
		UserID:   inv.InvitedUserID,
		ActorID:  inv.InvitedBy,
		RecordID: inv.ID,
		Position: &inv.Position,
	}, UserChannel(inv.InvitedUserID))
	return inv, nil
}

// RespondToInvitation accepts or declines an invitation on behalf of the
// invited user. Accepting admits the user at the invitation's position
// without an eligibility check; capacity still applies. The returned
// member is nil when declining.
func (s *Service) RespondToInvitation(ctx context.Context, invitationID, userID string, accept bool) (*Member, error) {
	var (
		inv *Invitation
		m   *Member
	)
	err := s.store.Atomic(ctx, func(tx Store) error {
		var err error
		inv, err = tx.GetInvitation(ctx, invitationID)
		if err != nil {
			return err
		}
		if inv.InvitedUserID != userID {
			return errorf(ErrPermission, "invitation %s is not addressed to user %s", invitationID, userID)
		}
		if err := inv.resolve(accept, s.now()); err != nil {
			return err
		}
		if accept {
			g, err := tx.GetGuild(ctx, inv.GuildID)
			if err != nil {
				return err
			}
			if m, err = s.admit(ctx, tx, g, userID, inv.Position); err != nil {
				return err
			}
		}
		return tx.PutInvitation(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("guild invitation answered",
		zap.String("invitation_id", invitationID),
		zap.String("guild_id", inv.GuildID),
		zap.String("user_id", userID),
		zap.String("status", string(inv.Status)))
	if !accept {
		s.emit(ctx, Event{Type: EventInvitationDeclined, GuildID: inv.GuildID, UserID: userID, RecordID: inv.ID})
		return nil, nil
	}
	s.logJoined(m, "invitation")
	s.emit(ctx, Event{Type: EventInvitationAccepted, GuildID: inv.GuildID, UserID: userID, RecordID: inv.ID, Position: &m.Position})
	return m, nil
}

// JoinRequestInput describes a user's request to join.
type JoinRequestInput struct {
	GuildID  string `json:"guild_id" validate:"required"`
	UserID   string `json:"user_id" validate:"required"`
	UserName string `json:"user_name" validate:"max=64"`
	Rank     Rank   `json:"rank" validate:"required,rank"`
	Message  string `json:"message" validate:"max=500"`
}

// RequestToJoin asks to join a guild. The user must pass CanJoin. When the
// guild does not require approval the user is admitted immediately and the
// returned request is nil; otherwise a pending request is stored and the
// returned member is nil.
func (s *Service) RequestToJoin(ctx context.Context, in JoinRequestInput) (*JoinRequest, *Member, error) {
	if err := validateStruct(in); err != nil {
		return nil, nil, err
	}
	var (
		req *JoinRequest
		m   *Member
	)
	err := s.store.Atomic(ctx, func(tx Store) error {
		g, err := tx.GetGuild(ctx, in.GuildID)
		if err != nil {
			return err
		}
		if err := CanJoin(g, in.Rank).err(); err != nil {
			return err
		}
		if !g.RequiresApproval {
			m, err = s.admit(ctx, tx, g, in.UserID, s.defaultMemberPosition())
			return err
		}
		if err := s.checkNotMember(ctx, tx, in.GuildID, in.UserID); err != nil {
			return err
		}
		open, err := tx.ListJoinRequests(ctx, JoinRequestQuery{GuildID: in.GuildID, UserID: in.UserID, Status: JoinRequestPending})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return errorf(ErrConflict, "user %s already has a pending request for guild %s", in.UserID, in.GuildID)
		}
		req = &JoinRequest{
			ID:        s.cfg.NewID(),
			GuildID:   in.GuildID,
			UserID:    in.UserID,
			UserName:  in.UserName,
			UserRank:  in.Rank,
			Message:   in.Message,
			CreatedAt: s.now(),
			Status:    JoinRequestPending,
		}
		return tx.PutJoinRequest(ctx, req)
	})
	if err != nil {
		return nil, nil, err
	}

	if m != nil {
		s.logJoined(m, "open_request")
		s.emit(ctx, Event{Type: EventMemberJoined, GuildID: in.GuildID, UserID: in.UserID, Position: &m.Position})
		return nil, m, nil
	}
	s.logger.Info("guild join requested",
		zap.String("request_id", req.ID),
		zap.String("guild_id", req.GuildID),
		zap.String("user_id", req.UserID),
		zap.String("rank", string(req.UserRank)))
	s.emit(ctx, Event{Type: EventJoinRequested, GuildID: req.GuildID, UserID: req.UserID, RecordID: req.ID})
	return req, nil, nil
}

// RespondToJoinRequest approves or rejects a pending request. The
// approver must be allowed to invite. Approval admits the requester at the
// default level; the returned member is nil on rejection.
func (s *Service) RespondToJoinRequest(ctx context.Context, requestID, approverID string, approve bool) (*Member, error) {
	var (
		req *JoinRequest
		m   *Member
	)
	err := s.store.Atomic(ctx, func(tx Store) error {
		var err error
		req, err = tx.GetJoinRequest(ctx, requestID)
		if err != nil {
			return err
		}
		approver, err := s.actor(ctx, tx, req.GuildID, approverID)
		if err != nil {
			return err
		}
		if !CanPerform(ActionInvite, approver.Position.Role(), "") {
			return errorf(ErrPermission, "%s cannot review join requests", approver.Position.Label())
		}
		if err := req.resolve(approve, approverID, s.now()); err != nil {
			return err
		}
		if approve {
			g, err := tx.GetGuild(ctx, req.GuildID)
			if err != nil {
				return err
			}
			if m, err = s.admit(ctx, tx, g, req.UserID, s.defaultMemberPosition()); err != nil {
				return err
			}
		}
		return tx.PutJoinRequest(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("guild join request reviewed",
		zap.String("request_id", requestID),
		zap.String("guild_id", req.GuildID),
		zap.String("reviewer_id", approverID),
		zap.String("status", string(req.Status)))
	if !approve {
		s.emit(ctx, Event{Type: EventJoinRequestRejected, GuildID: req.GuildID, UserID: req.UserID, ActorID: approverID, RecordID: req.ID}, UserChannel(req.UserID))
		return nil, nil
	}
	s.logJoined(m, "join_request")
	s.emit(ctx, Event{Type: EventJoinRequestApproved, GuildID: req.GuildID, UserID: req.UserID, ActorID: approverID, RecordID: req.ID, Position: &m.Position}, UserChannel(req.UserID))
	return m, nil
}

func (s *Service) checkNotMember(ctx context.Context, st Store, guildID, userID string) error {
	_, err := st.GetMember(ctx, guildID, userID)
	switch {
	case err == nil:
		return errorf(ErrConflict, "user %s is already a member of guild %s", userID, guildID)
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return err
	}
}
