package rest

import "github.com/gin-gonic/gin"

// Handlers bundles the handlers mounted under /api.
type Handlers struct {
	Auth    *AuthHandler
	Guild   *GuildHandler
	Ranking *RankingHandler
}

// Mount registers the public API on api. auth authenticates every route
// except login; writeLimit, when non-nil, guards the mutating guild routes
// and must come after auth.
func Mount(api *gin.RouterGroup, h Handlers, auth, writeLimit gin.HandlerFunc) {
	if writeLimit == nil {
		writeLimit = func(c *gin.Context) { c.Next() }
	}

	authG := api.Group("/auth")
	authG.POST("/login", h.Auth.Login)
	authG.POST("/logout", auth, h.Auth.Logout)
	authG.POST("/refresh", auth, h.Auth.Refresh)

	guildsG := api.Group("/guilds", auth)
	guildsG.POST("", writeLimit, h.Guild.Create)
	guildsG.GET("", h.Guild.Search)
	guildsG.GET("/:id", h.Guild.Detail)
	guildsG.POST("/:id/join", writeLimit, h.Guild.Join)
	guildsG.POST("/:id/leave", writeLimit, h.Guild.Leave)
	guildsG.PUT("/:id/settings", writeLimit, h.Guild.UpdateSettings)
	guildsG.POST("/:id/members/:uid/promote", writeLimit, h.Guild.Promote)
	guildsG.POST("/:id/members/:uid/demote", writeLimit, h.Guild.Demote)
	guildsG.POST("/:id/members/:uid/transfer", writeLimit, h.Guild.Transfer)
	guildsG.DELETE("/:id/members/:uid", writeLimit, h.Guild.Kick)
	guildsG.GET("/:id/members/:uid/bonus", h.Guild.Bonus)
	guildsG.POST("/:id/invitations", writeLimit, h.Guild.Invite)
	guildsG.POST("/:id/requests", writeLimit, h.Guild.RequestToJoin)
	guildsG.GET("/:id/requests", h.Guild.JoinRequests)

	invG := api.Group("/invitations", auth)
	invG.GET("", h.Guild.MyInvitations)
	invG.POST("/:id/respond", writeLimit, h.Guild.RespondInvitation)

	api.POST("/requests/:id/respond", auth, writeLimit, h.Guild.RespondJoinRequest)
	api.GET("/me/guild", auth, h.Guild.MyGuilds)

	api.GET("/ranking/guilds", auth, h.Ranking.TopGuilds)
}

// MountAdmin registers the admin API on api under /admin behind guards.
func MountAdmin(api *gin.RouterGroup, h *AdminHandler, guards ...gin.HandlerFunc) {
	adminG := api.Group("/admin", guards...)
	adminG.GET("/tasks", h.Tasks)
	adminG.POST("/tasks/:name/run", h.RunTask)
	adminG.GET("/audit", h.AuditLog)
	adminG.POST("/accounts/:id/ban", h.BanAccount)
}
