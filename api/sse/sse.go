package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildhall/server/cache"
	"github.com/kasuganosora/guildhall/server/guild"
	mw "github.com/kasuganosora/guildhall/server/middleware"
	"go.uber.org/zap"
)

const defaultKeepalive = 30 * time.Second

// Handler streams guild events to members over server-sent events.
// Routes must run behind middleware.QueryAuth.
type Handler struct {
	pubsub         cache.PubSub
	svc            *guild.Service
	allowedOrigins []string
	keepalive      time.Duration
	streams        StreamObserver
	logger         *zap.Logger
}

// StreamObserver counts open streams. The func returned by StreamOpened is
// called when the stream ends.
type StreamObserver interface {
	StreamOpened(kind string) (closed func())
}

// NewHandler creates a new SSE Handler. An empty allowedOrigins accepts
// every origin.
func NewHandler(pubsub cache.PubSub, svc *guild.Service, allowedOrigins []string, logger *zap.Logger) *Handler {
	return &Handler{
		pubsub:         pubsub,
		svc:            svc,
		allowedOrigins: allowedOrigins,
		keepalive:      defaultKeepalive,
		logger:         logger,
	}
}

// SetKeepalive changes the interval between keepalive comments.
func (h *Handler) SetKeepalive(d time.Duration) {
	if d > 0 {
		h.keepalive = d
	}
}

// SetMetrics attaches a stream observer.
func (h *Handler) SetMetrics(o StreamObserver) { h.streams = o }

// ServeGuild handles GET /sse/guilds/:id?token=<jwt>. Only members of the
// guild may subscribe.
func (h *Handler) ServeGuild(c *gin.Context) {
	guildID := c.Param("id")
	_, err := h.svc.GetMember(c.Request.Context(), guildID, mw.GetUserID(c))
	switch {
	case errors.Is(err, guild.ErrNotFound):
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this guild"})
		return
	case err != nil:
		h.logger.Error("sse membership check failed", zap.String("guild_id", guildID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	h.stream(c, "guild", guild.GuildChannel(guildID))
}

// ServeUser handles GET /sse/me?token=<jwt>: invitations and join request
// outcomes addressed to the caller.
func (h *Handler) ServeUser(c *gin.Context) {
	h.stream(c, "user", guild.UserChannel(mw.GetUserID(c)))
}

func (h *Handler) originAllowed(origin string) bool {
	return origin == "" || len(h.allowedOrigins) == 0 || slices.Contains(h.allowedOrigins, origin)
}

func (h *Handler) stream(c *gin.Context, kind, channel string) {
	origin := c.GetHeader("Origin")
	if !h.originAllowed(origin) {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, channel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("channel", channel), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()
	if h.streams != nil {
		defer h.streams.StreamOpened(kind)()
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	if origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
	}

	// Send initial connected event.
	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"channel\":%q}\n\n", channel)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", eventName(msg.Payload), msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// eventName extracts the guild event type for the SSE event field.
func eventName(payload string) string {
	var ev struct {
		Type guild.EventType `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.Type == "" {
		return "message"
	}
	return string(ev.Type)
}
