package guild

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// EventType names a committed guild mutation.
type EventType string

const (
	EventGuildCreated          EventType = "guild.created"
	EventSettingsUpdated       EventType = "guild.settings_updated"
	EventMemberJoined          EventType = "member.joined"
	EventMemberLeft            EventType = "member.left"
	EventMemberKicked          EventType = "member.kicked"
	EventMemberPromoted        EventType = "member.promoted"
	EventMemberDemoted         EventType = "member.demoted"
	EventLeadershipTransferred EventType = "guild.leadership_transferred"
	EventInvitationSent        EventType = "invitation.sent"
	EventInvitationAccepted    EventType = "invitation.accepted"
	EventInvitationDeclined    EventType = "invitation.declined"
	EventJoinRequested         EventType = "join_request.created"
	EventJoinRequestApproved   EventType = "join_request.approved"
	EventJoinRequestRejected   EventType = "join_request.rejected"
)

// Event is published after a mutation commits.
type Event struct {
	Type     EventType `json:"type"`
	GuildID  string    `json:"guild_id"`
	UserID   string    `json:"user_id,omitempty"`
	ActorID  string    `json:"actor_id,omitempty"`
	RecordID string    `json:"record_id,omitempty"`
	Position *Position `json:"position,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers serialized events to a named channel. cache.PubSub
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
}

// GuildChannel is the pub/sub channel carrying one guild's events.
func GuildChannel(guildID string) string { return "guild:" + guildID }

// UserChannel is the pub/sub channel carrying events addressed to a user.
func UserChannel(userID string) string { return "user:" + userID }

func (s *Service) emit(ctx context.Context, ev Event, extra ...string) {
	if s.pub == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("guild event marshal failed", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	for _, ch := range append([]string{GuildChannel(ev.GuildID)}, extra...) {
		if err := s.pub.Publish(ctx, ch, string(payload)); err != nil {
			s.logger.Warn("guild event publish failed",
				zap.String("type", string(ev.Type)),
				zap.String("channel", ch),
				zap.Error(err))
		}
	}
}
