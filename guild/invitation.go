package guild

import "time"

// InvitationStatus is the stored state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// Terminal reports whether no further transition is possible.
func (s InvitationStatus) Terminal() bool { return s != InvitationPending }

// InviteTypeDirect marks a guild-initiated invitation.
const InviteTypeDirect = "direct_invite"

// DefaultInvitationTTL is how long an invitation stays answerable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Invitation is an offer of membership from a guild to one user.
type Invitation struct {
	ID            string           `json:"id"`
	GuildID       string           `json:"guild_id"`
	GuildName     string           `json:"guild_name"`
	InvitedUserID string           `json:"invited_user_id"`
	InvitedBy     string           `json:"invited_by"`
	InviterName   string           `json:"inviter_name"`
	Position      Position         `json:"position"`
	Message       string           `json:"message,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
	Status        InvitationStatus `json:"status"`
	InviteType    string           `json:"invite_type"`
	RespondedAt   *time.Time       `json:"responded_at,omitempty"`
}

// EffectiveStatus is the status as of now. A pending invitation whose
// ExpiresAt has been reached reads as expired even if the stored status
// was never updated.
func (inv *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if inv.Status == InvitationPending && !now.Before(inv.ExpiresAt) {
		return InvitationExpired
	}
	return inv.Status
}

// resolve moves a pending invitation into accepted or declined.
func (inv *Invitation) resolve(accept bool, now time.Time) error {
	if st := inv.EffectiveStatus(now); st != InvitationPending {
		return errorf(ErrInvalidState, "invitation %s is %s", inv.ID, st)
	}
	if accept {
		inv.Status = InvitationAccepted
	} else {
		inv.Status = InvitationDeclined
	}
	inv.RespondedAt = &now
	return nil
}
