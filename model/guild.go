package model

import (
	"time"

	"gorm.io/datatypes"
)

// Guild is the persisted form of a guild.
type Guild struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Name        string `gorm:"uniqueIndex;size:32;not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;size:48;not null" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
	CreatedBy   string `gorm:"size:36;not null" json:"created_by"`
	LeaderID    string `gorm:"size:36;not null" json:"leader_id"`

	MemberCount    int     `gorm:"not null" json:"member_count"`
	TotalEarnings  int64   `json:"total_earnings"`
	CompletedTasks int     `json:"completed_tasks"`
	AverageRating  float64 `json:"average_rating"`

	IsOpen           bool   `gorm:"index:idx_guild_open" json:"is_open"`
	RequiresApproval bool   `json:"requires_approval"`
	MaxMembers       int    `gorm:"not null" json:"max_members"`
	MinRankRequired  string `gorm:"size:4;not null" json:"min_rank_required"`

	Logo         string         `gorm:"size:512" json:"logo"`
	BannerImage  string         `gorm:"size:512" json:"banner_image"`
	PrimaryColor string         `gorm:"size:9" json:"primary_color"`
	Tags         datatypes.JSON `json:"tags"`

	BonusMultiplier  float64 `gorm:"not null" json:"bonus_multiplier"`
	ExclusiveJobs    bool    `json:"exclusive_jobs"`
	PriorityMatching bool    `json:"priority_matching"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GuildMember links a user to a guild. Level is NULL unless Role is
// "Member".
type GuildMember struct {
	GuildID string `gorm:"primaryKey;size:36;index:idx_guild_member" json:"guild_id"`
	UserID  string `gorm:"primaryKey;size:36;index:idx_user_guild" json:"user_id"`
	Role    string `gorm:"size:16;not null" json:"role"`
	Level   *int   `json:"level"`

	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	TasksCompleted    int   `json:"tasks_completed"`
	Earnings          int64 `json:"earnings"`
	ContributionScore int   `json:"contribution_score"`
	IsActive          bool  `json:"is_active"`
}

// GuildInvitation is a guild-initiated membership offer.
type GuildInvitation struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	GuildID       string     `gorm:"size:36;not null;index:idx_invite_guild_user" json:"guild_id"`
	GuildName     string     `gorm:"size:32" json:"guild_name"`
	InvitedUserID string     `gorm:"size:36;not null;index:idx_invite_guild_user;index:idx_invite_user" json:"invited_user_id"`
	InvitedBy     string     `gorm:"size:36;not null" json:"invited_by"`
	InviterName   string     `gorm:"size:64" json:"inviter_name"`
	Role          string     `gorm:"size:16;not null" json:"role"`
	Level         *int       `json:"level"`
	Message       string     `gorm:"type:text" json:"message"`
	Status        string     `gorm:"size:16;not null;index:idx_invite_status_expiry" json:"status"`
	InviteType    string     `gorm:"size:24" json:"invite_type"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `gorm:"index:idx_invite_status_expiry" json:"expires_at"`
	RespondedAt   *time.Time `json:"responded_at"`
}

// GuildJoinRequest is a user-initiated request to join a guild.
type GuildJoinRequest struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	GuildID    string     `gorm:"size:36;not null;index:idx_join_guild_status" json:"guild_id"`
	UserID     string     `gorm:"size:36;not null;index:idx_join_user" json:"user_id"`
	UserName   string     `gorm:"size:64" json:"user_name"`
	UserRank   string     `gorm:"size:4" json:"user_rank"`
	Message    string     `gorm:"type:text" json:"message"`
	Status     string     `gorm:"size:16;not null;index:idx_join_guild_status" json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ReviewedBy string     `gorm:"size:36" json:"reviewed_by"`
	ReviewedAt *time.Time `json:"reviewed_at"`
}
