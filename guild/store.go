package guild

import (
	"context"
	"time"
)

// SearchQuery filters guilds for discovery.
type SearchQuery struct {
	Term     string
	OpenOnly bool
	// MinRanks, when non-empty, keeps only guilds whose minimum rank is one
	// of these values.
	MinRanks []Rank
	Limit    int
}

// InvitationQuery filters invitations. Empty fields match everything.
type InvitationQuery struct {
	GuildID       string
	InvitedUserID string
	Status        InvitationStatus
}

// JoinRequestQuery filters join requests. Empty fields match everything.
type JoinRequestQuery struct {
	GuildID string
	UserID  string
	Status  JoinRequestStatus
}

// Store persists guild records. Implementations must return an error
// wrapping ErrNotFound for missing records, ErrConflict for uniqueness
// violations and a *StorageError for everything else.
type Store interface {
	GetGuild(ctx context.Context, id string) (*Guild, error)
	PutGuild(ctx context.Context, g *Guild) error
	SearchGuilds(ctx context.Context, q SearchQuery) ([]Guild, error)

	GetMember(ctx context.Context, guildID, userID string) (*Member, error)
	PutMember(ctx context.Context, m *Member) error
	DeleteMember(ctx context.Context, guildID, userID string) error
	ListMembers(ctx context.Context, guildID string) ([]Member, error)
	ListMemberships(ctx context.Context, userID string) ([]Member, error)

	GetInvitation(ctx context.Context, id string) (*Invitation, error)
	PutInvitation(ctx context.Context, inv *Invitation) error
	ListInvitations(ctx context.Context, q InvitationQuery) ([]Invitation, error)
	// ExpireInvitations persists the expired status on pending invitations
	// whose expiry is not after now and returns how many rows changed.
	ExpireInvitations(ctx context.Context, now time.Time) (int64, error)

	GetJoinRequest(ctx context.Context, id string) (*JoinRequest, error)
	PutJoinRequest(ctx context.Context, r *JoinRequest) error
	ListJoinRequests(ctx context.Context, q JoinRequestQuery) ([]JoinRequest, error)

	// Atomic runs fn against a transactional view of the store. Either
	// every write made through tx is committed or none is.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
