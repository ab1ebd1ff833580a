package guild

import "time"

// Guild is a named, persistent group of members.
type Guild struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
	// LeaderID is the current Guild Master; it moves on leadership transfer.
	LeaderID string `json:"leader_id"`

	MemberCount    int     `json:"member_count"`
	TotalEarnings  int64   `json:"total_earnings"`
	CompletedTasks int     `json:"completed_tasks"`
	AverageRating  float64 `json:"average_rating"`

	IsOpen           bool `json:"is_open"`
	RequiresApproval bool `json:"requires_approval"`
	MaxMembers       int  `json:"max_members"`
	MinRankRequired  Rank `json:"min_rank_required"`

	Logo         string   `json:"logo,omitempty"`
	BannerImage  string   `json:"banner_image,omitempty"`
	PrimaryColor string   `json:"primary_color"`
	Tags         []string `json:"tags,omitempty"`

	BonusMultiplier  float64 `json:"bonus_multiplier"`
	ExclusiveJobs    bool    `json:"exclusive_jobs"`
	PriorityMatching bool    `json:"priority_matching"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Full reports whether the guild has no free seat.
func (g *Guild) Full() bool { return g.MemberCount >= g.MaxMembers }

// PrivacyText describes who may join.
func (g *Guild) PrivacyText() string {
	switch {
	case !g.IsOpen:
		return "Closed (Invite Only)"
	case g.RequiresApproval:
		return "Open (Approval Required)"
	default:
		return "Open (Anyone Can Join)"
	}
}

// Member is a user's membership record in one guild.
type Member struct {
	UserID   string   `json:"user_id"`
	GuildID  string   `json:"guild_id"`
	Position Position `json:"position"`

	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	TasksCompleted    int   `json:"tasks_completed"`
	Earnings          int64 `json:"earnings"`
	ContributionScore int   `json:"contribution_score"`
	IsActive          bool  `json:"is_active"`

	Permissions Permissions `json:"permissions"`
}

// Permissions are display flags derived from a member's position.
type Permissions struct {
	CanInviteMembers bool `json:"can_invite_members"`
	CanManageJobs    bool `json:"can_manage_jobs"`
	CanViewFinances  bool `json:"can_view_finances"`
}

// PermissionsFor derives the flags for a position.
func PermissionsFor(p Position) Permissions {
	lvl, _ := p.Level()
	return Permissions{
		CanInviteMembers: p.Role() != RoleMember || lvl <= Level2,
		CanManageJobs:    p.Role() != RoleMember,
		CanViewFinances:  p.Role() == RoleGuildMaster || p.Role() == RoleViceMaster,
	}
}

// setPosition changes the position and re-derives the permission flags.
func (m *Member) setPosition(p Position) {
	m.Position = p
	m.Permissions = PermissionsFor(p)
}

// Status is a user's guild badge.
type Status struct {
	Solo        bool     `json:"is_solo"`
	GuildID     string   `json:"guild_id,omitempty"`
	GuildName   string   `json:"guild_name,omitempty"`
	Position    Position `json:"position,omitzero"`
	DisplayText string   `json:"display_text"`
	RoleDisplay string   `json:"role_display_text,omitempty"`
}

// StatusOf builds the badge for a membership. A nil member or guild means
// the user is solo.
func StatusOf(m *Member, g *Guild) Status {
	if m == nil || g == nil {
		return Status{Solo: true, DisplayText: "Solo"}
	}
	return Status{
		GuildID:     g.ID,
		GuildName:   g.Name,
		Position:    m.Position,
		DisplayText: "GUILD: " + g.Name,
		RoleDisplay: m.Position.Label(),
	}
}
