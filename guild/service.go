package guild

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Config tunes a Service. Zero fields take the defaults below.
type Config struct {
	InvitationTTL      time.Duration
	DefaultMemberLevel Level
	DefaultMaxMembers  int
	DefaultMinRank     Rank
	Clock              Clock
	NewID              func() string
}

const (
	defaultMaxMembers   = 25
	defaultPrimaryColor = "#BCFF31"
	searchLimit         = 50
)

func (c Config) withDefaults() Config {
	if c.InvitationTTL <= 0 {
		c.InvitationTTL = DefaultInvitationTTL
	}
	if !c.DefaultMemberLevel.valid() {
		c.DefaultMemberLevel = Level2
	}
	if c.DefaultMaxMembers <= 0 {
		c.DefaultMaxMembers = defaultMaxMembers
	}
	if !c.DefaultMinRank.Valid() {
		c.DefaultMinRank = Ranks[0]
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

// Service executes guild commands. It checks roles and eligibility,
// then mutates state through the Store. It holds no locks; callers
// serialise concurrent mutations of the same guild.
type Service struct {
	store  Store
	cfg    Config
	pub    Publisher
	logger *zap.Logger
}

// NewService creates a Service. pub may be nil.
func NewService(store Store, cfg Config, pub Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		cfg:    cfg.withDefaults(),
		pub:    pub,
		logger: logger,
	}
}

func (s *Service) now() time.Time { return s.cfg.Clock.Now() }

func (s *Service) defaultMemberPosition() Position {
	return Position{role: RoleMember, level: s.cfg.DefaultMemberLevel}
}

// actor loads the acting user's membership. Not being a member is a
// permission failure rather than a missing record.
func (s *Service) actor(ctx context.Context, st Store, guildID, userID string) (*Member, error) {
	m, err := st.GetMember(ctx, guildID, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, errorf(ErrPermission, "user %s is not a member of guild %s", userID, guildID)
	}
	return m, err
}

// admit creates a membership and bumps the member count. Eligibility is
// the caller's concern; capacity and duplicate membership are checked here
// for every path.
func (s *Service) admit(ctx context.Context, st Store, g *Guild, userID string, pos Position) (*Member, error) {
	if pos.Role() == RoleGuildMaster || pos.IsZero() {
		return nil, errorf(ErrInvalidTransition, "cannot join as %s", pos.Label())
	}
	_, err := st.GetMember(ctx, g.ID, userID)
	switch {
	case err == nil:
		return nil, errorf(ErrConflict, "user %s is already a member of guild %s", userID, g.ID)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	if g.Full() {
		return nil, errorf(ErrConflict, "guild %s is %s", g.ID, ReasonCapacity)
	}

	now := s.now()
	m := &Member{
		UserID:       userID,
		GuildID:      g.ID,
		JoinedAt:     now,
		LastActiveAt: now,
		IsActive:     true,
	}
	m.setPosition(pos)
	if err := st.PutMember(ctx, m); err != nil {
		return nil, err
	}
	g.MemberCount++
	g.UpdatedAt = now
	if err := st.PutGuild(ctx, g); err != nil {
		return nil, err
	}
	return m, nil
}

// remove deletes a membership and decrements the member count.
func (s *Service) remove(ctx context.Context, st Store, g *Guild, userID string) error {
	if err := st.DeleteMember(ctx, g.ID, userID); err != nil {
		return err
	}
	if g.MemberCount > 0 {
		g.MemberCount--
	}
	g.UpdatedAt = s.now()
	return st.PutGuild(ctx, g)
}

// ---- Queries ----

// GetGuild returns one guild.
func (s *Service) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	return s.store.GetGuild(ctx, guildID)
}

// GetMember returns one membership.
func (s *Service) GetMember(ctx context.Context, guildID, userID string) (*Member, error) {
	return s.store.GetMember(ctx, guildID, userID)
}

// GetInvitation returns one invitation as stored.
func (s *Service) GetInvitation(ctx context.Context, id string) (*Invitation, error) {
	return s.store.GetInvitation(ctx, id)
}

// GetJoinRequest returns one join request.
func (s *Service) GetJoinRequest(ctx context.Context, id string) (*JoinRequest, error) {
	return s.store.GetJoinRequest(ctx, id)
}

// ListMembers returns a guild's members, most senior first; ties keep
// join order.
func (s *Service) ListMembers(ctx context.Context, guildID string) ([]Member, error) {
	if _, err := s.store.GetGuild(ctx, guildID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, guildID)
	if err != nil {
		return nil, err
	}
	SortBySeniority(members)
	return members, nil
}

// SortBySeniority orders members by hierarchy score, then join time.
func SortBySeniority(members []Member) {
	slices.SortStableFunc(members, func(a, b Member) int {
		if c := cmp.Compare(b.Position.Score(), a.Position.Score()); c != 0 {
			return c
		}
		return a.JoinedAt.Compare(b.JoinedAt)
	})
}

// ListUserGuilds returns a status badge for every guild the user belongs
// to, or a single solo badge when there are none.
func (s *Service) ListUserGuilds(ctx context.Context, userID string) ([]Status, error) {
	memberships, err := s.store.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return []Status{StatusOf(nil, nil)}, nil
	}
	out := make([]Status, 0, len(memberships))
	for i := range memberships {
		g, err := s.store.GetGuild(ctx, memberships[i].GuildID)
		if err != nil {
			return nil, err
		}
		out = append(out, StatusOf(&memberships[i], g))
	}
	return out, nil
}

// SearchGuilds lists open guilds matching term (case-insensitive, name or
// description). When rank is set, only guilds that rank may join are
// returned. Results are ordered by member count, largest first.
func (s *Service) SearchGuilds(ctx context.Context, term string, rank Rank) ([]Guild, error) {
	q := SearchQuery{Term: strings.TrimSpace(term), OpenOnly: true, Limit: searchLimit}
	if rank != "" {
		idx := rank.Index()
		if idx < 0 {
			return nil, errorf(ErrValidation, "unknown rank %q", rank)
		}
		q.MinRanks = slices.Clone(Ranks[:idx+1])
	}
	return s.store.SearchGuilds(ctx, q)
}

// TopGuilds returns up to limit guilds, open or not, largest first.
func (s *Service) TopGuilds(ctx context.Context, limit int) ([]Guild, error) {
	if limit <= 0 || limit > searchLimit {
		limit = searchLimit
	}
	return s.store.SearchGuilds(ctx, SearchQuery{Limit: limit})
}

// ListPendingInvitations returns the invitations a user can still answer,
// newest first. Expired ones are filtered out regardless of stored status.
func (s *Service) ListPendingInvitations(ctx context.Context, userID string) ([]Invitation, error) {
	invs, err := s.store.ListInvitations(ctx, InvitationQuery{InvitedUserID: userID, Status: InvitationPending})
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := invs[:0]
	for _, inv := range invs {
		if inv.EffectiveStatus(now) == InvitationPending {
			out = append(out, inv)
		}
	}
	slices.SortFunc(out, func(a, b Invitation) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// ListJoinRequests returns a guild's pending join requests, oldest first.
// Only members who may invite can review them.
func (s *Service) ListJoinRequests(ctx context.Context, actorID, guildID string) ([]JoinRequest, error) {
	actor, err := s.actor(ctx, s.store, guildID, actorID)
	if err != nil {
		return nil, err
	}
	if !CanPerform(ActionInvite, actor.Position.Role(), "") {
		return nil, errorf(ErrPermission, "%s cannot review join requests", actor.Position.Label())
	}
	reqs, err := s.store.ListJoinRequests(ctx, JoinRequestQuery{GuildID: guildID, Status: JoinRequestPending})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(reqs, func(a, b JoinRequest) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return reqs, nil
}

// MemberBonus computes a member's bonus on base earnings using the
// guild's multiplier and the member's position.
func (s *Service) MemberBonus(ctx context.Context, guildID, userID string, base int64) (int64, error) {
	g, err := s.store.GetGuild(ctx, guildID)
	if err != nil {
		return 0, err
	}
	m, err := s.store.GetMember(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}
	return BonusFor(base, g, m.Position), nil
}

// ExpireStaleInvitations persists the expired status on invitations past
// their deadline. Reads never depend on it having run.
func (s *Service) ExpireStaleInvitations(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireInvitations(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("stale invitations expired", zap.Int64("count", n))
	}
	return n, nil
}
