package guild

import "time"

// JoinRequestStatus is the state of a user-initiated join request.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s JoinRequestStatus) Terminal() bool { return s != JoinRequestPending }

// JoinRequest is a user's ask to join a guild that requires approval.
type JoinRequest struct {
	ID         string            `json:"id"`
	GuildID    string            `json:"guild_id"`
	UserID     string            `json:"user_id"`
	UserName   string            `json:"user_name"`
	UserRank   Rank              `json:"user_rank"`
	Message    string            `json:"message,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Status     JoinRequestStatus `json:"status"`
	ReviewedBy string            `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time        `json:"reviewed_at,omitempty"`
}

func (r *JoinRequest) resolve(approve bool, reviewer string, now time.Time) error {
	if r.Status.Terminal() {
		return errorf(ErrInvalidState, "join request %s is %s", r.ID, r.Status)
	}
	if approve {
		r.Status = JoinRequestApproved
	} else {
		r.Status = JoinRequestRejected
	}
	r.ReviewedBy = reviewer
	r.ReviewedAt = &now
	return nil
}
