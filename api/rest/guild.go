package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildhall/server/audit"
	"github.com/kasuganosora/guildhall/server/cache"
	"github.com/kasuganosora/guildhall/server/guild"
	mw "github.com/kasuganosora/guildhall/server/middleware"
	"go.uber.org/zap"
)

// ContractGuard reports whether a member may be removed from a guild.
// Members bound to an active contract are not removable.
type ContractGuard interface {
	IsRemovable(ctx context.Context, userID string) bool
}

// AllowAllRemovals is the ContractGuard used when no job system is wired.
type AllowAllRemovals struct{}

func (AllowAllRemovals) IsRemovable(context.Context, string) bool { return true }

// Auditor records API mutations. *audit.Service satisfies it.
type Auditor interface {
	Log(entry audit.AuditEntry)
}

const defaultLockTTL = 10 * time.Second

// GuildHandler handles guild REST endpoints.
type GuildHandler struct {
	svc     *guild.Service
	cache   cache.Cache
	audit   Auditor
	guard   ContractGuard
	lockTTL time.Duration
	metrics MutationObserver
	logger  *zap.Logger
}

// MutationObserver records the outcome of each guild mutation.
type MutationObserver interface {
	ObserveMutation(action, outcome string, d time.Duration)
}

// NewGuildHandler creates a GuildHandler. guard may be nil, which allows
// every removal.
func NewGuildHandler(svc *guild.Service, c cache.Cache, auditor Auditor, guard ContractGuard, lockTTL time.Duration, logger *zap.Logger) *GuildHandler {
	InstallValidator()
	if guard == nil {
		guard = AllowAllRemovals{}
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &GuildHandler{svc: svc, cache: c, audit: auditor, guard: guard, lockTTL: lockTTL, logger: logger}
}

// SetMetrics attaches a mutation observer.
func (h *GuildHandler) SetMetrics(o MutationObserver) { h.metrics = o }

// LockKey is the cache key serialising writes to one guild.
func LockKey(guildID string) string { return "lock:guild:" + guildID }

// mutation describes one write for locking and auditing.
type mutation struct {
	action string
	// guildID scopes the lock and the audit row. Empty skips the lock.
	guildID string
	request any
}

// run executes fn under the guild lock, audits the outcome and writes the
// response.
func (h *GuildHandler) run(c *gin.Context, m *mutation, fn func(ctx context.Context) (int, any, error)) {
	start := time.Now()
	ctx := c.Request.Context()

	status, resp, err := h.locked(ctx, m.guildID, fn)

	if h.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = errorCode(err)
		}
		h.metrics.ObserveMutation(m.action, outcome, time.Since(start))
	}

	if h.audit != nil {
		entry := audit.AuditEntry{
			TraceID:    mw.GetTraceID(c),
			UserID:     mw.GetUserID(c),
			GuildID:    m.guildID,
			Action:     m.action,
			Request:    m.request,
			IP:         c.ClientIP(),
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Response = resp
		}
		h.audit.Log(entry)
	}

	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, resp)
}

func (h *GuildHandler) locked(ctx context.Context, guildID string, fn func(ctx context.Context) (int, any, error)) (int, any, error) {
	if guildID == "" {
		return fn(ctx)
	}
	lock, err := cache.Acquire(ctx, h.cache, LockKey(guildID), h.lockTTL)
	if err != nil {
		if !errors.Is(err, cache.ErrLocked) {
			err = guild.Storage("acquire guild lock", err)
		}
		return 0, nil, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			h.logger.Warn("guild lock release failed", zap.String("guild_id", guildID), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// guildView adds display fields to a guild.
type guildView struct {
	*guild.Guild
	Privacy string `json:"privacy"`
}

func viewOf(g *guild.Guild) guildView {
	return guildView{Guild: g, Privacy: g.PrivacyText()}
}

// ---- Guild lifecycle ----

type createGuildRequest struct {
	Name     string         `json:"name" validate:"required"`
	Settings guild.Settings `json:"settings"`
}

// Create handles POST /api/guilds.
func (h *GuildHandler) Create(c *gin.Context) {
	var req createGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m := &mutation{action: "guild.create", request: req}
	h.run(c, m, func(ctx context.Context) (int, any, error) {
		g, founder, err := h.svc.CreateGuild(ctx, mw.GetUserID(c), req.Name, req.Settings)
		if err != nil {
			return 0, nil, err
		}
		m.guildID = g.ID
		return http.StatusCreated, gin.H{"guild": viewOf(g), "member": founder}, nil
	})
}

// Search handles GET /api/guilds?q=&min_rank=.
func (h *GuildHandler) Search(c *gin.Context) {
	guilds, err := h.svc.SearchGuilds(c.Request.Context(), c.Query("q"), guild.Rank(c.Query("min_rank")))
	if err != nil {
		respondError(c, err)
		return
	}
	views := make([]guildView, len(guilds))
	for i := range guilds {
		views[i] = viewOf(&guilds[i])
	}
	c.JSON(http.StatusOK, gin.H{"guilds": views})
}

// Detail handles GET /api/guilds/:id.
func (h *GuildHandler) Detail(c *gin.Context) {
	ctx := c.Request.Context()
	g, err := h.svc.GetGuild(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	members, err := h.svc.ListMembers(ctx, g.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guild": viewOf(g), "members": members})
}

// Join handles POST /api/guilds/:id/join. The rank comes from the token.
func (h *GuildHandler) Join(c *gin.Context) {
	guildID := c.Param("id")
	h.run(c, &mutation{action: "guild.join", guildID: guildID}, func(ctx context.Context) (int, any, error) {
		m, err := h.svc.JoinGuild(ctx, mw.GetUserID(c), guildID, guild.Rank(mw.GetRank(c)))
		return http.StatusOK, m, err
	})
}

// Leave handles POST /api/guilds/:id/leave.
func (h *GuildHandler) Leave(c *gin.Context) {
	guildID := c.Param("id")
	h.run(c, &mutation{action: "guild.leave", guildID: guildID}, func(ctx context.Context) (int, any, error) {
		return http.StatusOK, gin.H{"ok": true}, h.svc.LeaveGuild(ctx, mw.GetUserID(c), guildID)
	})
}

// UpdateSettings handles PUT /api/guilds/:id/settings.
func (h *GuildHandler) UpdateSettings(c *gin.Context) {
	var patch guild.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	guildID := c.Param("id")
	h.run(c, &mutation{action: "guild.update_settings", guildID: guildID, request: patch}, func(ctx context.Context) (int, any, error) {
		g, err := h.svc.UpdateGuildSettings(ctx, mw.GetUserID(c), guildID, patch)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, viewOf(g), nil
	})
}

// ---- Hierarchy ----

// Promote handles POST /api/guilds/:id/members/:uid/promote with a
// position body, e.g. {"role":"Member","level":1}.
func (h *GuildHandler) Promote(c *gin.Context) {
	h.move(c, "guild.promote", h.svc.Promote)
}

// Demote handles POST /api/guilds/:id/members/:uid/demote.
func (h *GuildHandler) Demote(c *gin.Context) {
	h.move(c, "guild.demote", h.svc.Demote)
}

type moveFn func(ctx context.Context, actorID, targetID, guildID string, to guild.Position) (*guild.Member, error)

func (h *GuildHandler) move(c *gin.Context, action string, fn moveFn) {
	var to guild.Position
	if err := c.ShouldBindJSON(&to); err != nil {
		badRequest(c, err)
		return
	}
	guildID, targetID := c.Param("id"), c.Param("uid")
	req := gin.H{"target_id": targetID, "position": to}
	h.run(c, &mutation{action: action, guildID: guildID, request: req}, func(ctx context.Context) (int, any, error) {
		m, err := fn(ctx, mw.GetUserID(c), targetID, guildID, to)
		return http.StatusOK, m, err
	})
}

// Transfer handles POST /api/guilds/:id/members/:uid/transfer.
func (h *GuildHandler) Transfer(c *gin.Context) {
	guildID, targetID := c.Param("id"), c.Param("uid")
	req := gin.H{"target_id": targetID}
	h.run(c, &mutation{action: "guild.transfer", guildID: guildID, request: req}, func(ctx context.Context) (int, any, error) {
		m, err := h.svc.TransferLeadership(ctx, mw.GetUserID(c), targetID, guildID)
		return http.StatusOK, m, err
	})
}

// Kick handles DELETE /api/guilds/:id/members/:uid.
func (h *GuildHandler) Kick(c *gin.Context) {
	guildID, targetID := c.Param("id"), c.Param("uid")
	req := gin.H{"target_id": targetID}
	h.run(c, &mutation{action: "guild.kick", guildID: guildID, request: req}, func(ctx context.Context) (int, any, error) {
		removable := func(userID string) bool { return h.guard.IsRemovable(ctx, userID) }
		return http.StatusOK, gin.H{"ok": true}, h.svc.KickMember(ctx, mw.GetUserID(c), targetID, guildID, removable)
	})
}

// Bonus handles GET /api/guilds/:id/members/:uid/bonus?base=.
func (h *GuildHandler) Bonus(c *gin.Context) {
	base, err := strconv.ParseInt(c.Query("base"), 10, 64)
	if err != nil || base < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "base must be a non-negative integer", "code": "validation"})
		return
	}
	bonus, err := h.svc.MemberBonus(c.Request.Context(), c.Param("id"), c.Param("uid"), base)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"base": base, "bonus": bonus})
}

// ---- Invitations ----

type inviteRequest struct {
	InviteeID string          `json:"invitee_id" validate:"required"`
	Position  *guild.Position `json:"position"`
	Message   string          `json:"message" validate:"max=500"`
}

// Invite handles POST /api/guilds/:id/invitations.
func (h *GuildHandler) Invite(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	guildID := c.Param("id")
	h.run(c, &mutation{action: "guild.invite", guildID: guildID, request: req}, func(ctx context.Context) (int, any, error) {
		inv, err := h.svc.SendInvitation(ctx, guild.InviteInput{
			GuildID:   guildID,
			InviterID: mw.GetUserID(c),
			InviteeID: req.InviteeID,
			Position:  req.Position,
			Message:   req.Message,
		})
		return http.StatusCreated, inv, err
	})
}

// MyInvitations handles GET /api/invitations.
func (h *GuildHandler) MyInvitations(c *gin.Context) {
	invs, err := h.svc.ListPendingInvitations(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

type respondRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// RespondInvitation handles POST /api/invitations/:id/respond.
func (h *GuildHandler) RespondInvitation(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id := c.Param("id")
	inv, err := h.svc.GetInvitation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	m := &mutation{action: "guild.respond_invitation", guildID: inv.GuildID, request: gin.H{"invitation_id": id, "accept": *req.Accept}}
	h.run(c, m, func(ctx context.Context) (int, any, error) {
		member, err := h.svc.RespondToInvitation(ctx, id, mw.GetUserID(c), *req.Accept)
		return http.StatusOK, gin.H{"accepted": *req.Accept, "member": member}, err
	})
}

// ---- Join requests ----

type joinRequestBody struct {
	UserName string `json:"user_name" validate:"max=64"`
	Message  string `json:"message" validate:"max=500"`
}

// RequestToJoin handles POST /api/guilds/:id/requests. An open guild
// without approval admits the caller at once.
func (h *GuildHandler) RequestToJoin(c *gin.Context) {
	var body joinRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	guildID := c.Param("id")
	h.run(c, &mutation{action: "guild.request_join", guildID: guildID, request: body}, func(ctx context.Context) (int, any, error) {
		req, member, err := h.svc.RequestToJoin(ctx, guild.JoinRequestInput{
			GuildID:  guildID,
			UserID:   mw.GetUserID(c),
			UserName: body.UserName,
			Rank:     guild.Rank(mw.GetRank(c)),
			Message:  body.Message,
		})
		if err != nil {
			return 0, nil, err
		}
		if member != nil {
			return http.StatusOK, gin.H{"member": member}, nil
		}
		return http.StatusCreated, gin.H{"request": req}, nil
	})
}

// JoinRequests handles GET /api/guilds/:id/requests.
func (h *GuildHandler) JoinRequests(c *gin.Context) {
	reqs, err := h.svc.ListJoinRequests(c.Request.Context(), mw.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

type reviewRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

// RespondJoinRequest handles POST /api/requests/:id/respond.
func (h *GuildHandler) RespondJoinRequest(c *gin.Context) {
	var body reviewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	id := c.Param("id")
	req, err := h.svc.GetJoinRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	m := &mutation{action: "guild.review_request", guildID: req.GuildID, request: gin.H{"request_id": id, "approve": *body.Approve}}
	h.run(c, m, func(ctx context.Context) (int, any, error) {
		member, err := h.svc.RespondToJoinRequest(ctx, id, mw.GetUserID(c), *body.Approve)
		return http.StatusOK, gin.H{"approved": *body.Approve, "member": member}, err
	})
}

// ---- Me ----

// MyGuilds handles GET /api/me/guild.
func (h *GuildHandler) MyGuilds(c *gin.Context) {
	statuses, err := h.svc.ListUserGuilds(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"guilds": statuses})
}
