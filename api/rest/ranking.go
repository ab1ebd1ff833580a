package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildhall/server/cache"
	"github.com/kasuganosora/guildhall/server/guild"
	"go.uber.org/zap"
)

// RankingHandler handles the guild leaderboard.
type RankingHandler struct {
	svc    *guild.Service
	cache  cache.Cache
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(svc *guild.Service, c cache.Cache, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{svc: svc, cache: c, logger: logger}
}

// RankingKey is the sorted set holding guilds scored by member count.
const RankingKey = "ranking:guilds"

const rankingTop = 50

// RankEntry is one row in the leaderboard.
type RankEntry struct {
	Rank          int     `json:"rank"`
	GuildID       string  `json:"guild_id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	MemberCount   int     `json:"member_count"`
	MaxMembers    int     `json:"max_members"`
	AverageRating float64 `json:"average_rating"`
	Score         float64 `json:"score"`
}

func entryOf(rank int, g *guild.Guild, score float64) RankEntry {
	return RankEntry{
		Rank:          rank,
		GuildID:       g.ID,
		Name:          g.Name,
		Slug:          g.Slug,
		MemberCount:   g.MemberCount,
		MaxMembers:    g.MaxMembers,
		AverageRating: g.AverageRating,
		Score:         score,
	}
}

// TopGuilds returns the largest guilds.
// GET /api/ranking/guilds?limit=20
func (h *RankingHandler) TopGuilds(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingTop {
		limit = l
	}
	ctx := c.Request.Context()

	entries, err := h.fromCache(ctx, limit)
	if err != nil {
		h.logger.Warn("guild ranking cache read failed", zap.Error(err))
	}
	if len(entries) > 0 {
		c.JSON(http.StatusOK, gin.H{"ranking": entries, "source": "cache"})
		return
	}

	guilds, err := h.svc.TopGuilds(ctx, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	entries = make([]RankEntry, len(guilds))
	for i := range guilds {
		score := float64(guilds[i].MemberCount)
		entries[i] = entryOf(i+1, &guilds[i], score)
		_ = h.cache.ZAdd(ctx, RankingKey, score, guilds[i].ID)
	}
	c.JSON(http.StatusOK, gin.H{"ranking": entries, "source": "db"})
}

// fromCache reads the sorted set and resolves each guild. Guilds that no
// longer load are skipped.
func (h *RankingHandler) fromCache(ctx context.Context, limit int) ([]RankEntry, error) {
	ids, err := h.cache.ZRevRange(ctx, RankingKey, 0, int64(limit-1))
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	entries := make([]RankEntry, 0, len(ids))
	for _, id := range ids {
		g, err := h.svc.GetGuild(ctx, id)
		if errors.Is(err, guild.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		score, err := h.cache.ZScore(ctx, RankingKey, id)
		if err != nil {
			score = float64(g.MemberCount)
		}
		entries = append(entries, entryOf(len(entries)+1, g, score))
	}
	return entries, nil
}

// Refresh rebuilds the sorted set from the database and returns how many
// guilds were scored. Disbanded guilds drop out of the set. The scheduler calls it periodically.
func (h *RankingHandler) Refresh(ctx context.Context) (int, error) {
	guilds, err := h.svc.TopGuilds(ctx, rankingTop)
	if err != nil {
		return 0, err
	}
	if err := h.cache.Del(ctx, RankingKey); err != nil {
		return 0, err
	}
	for i := range guilds {
		if err := h.cache.ZAdd(ctx, RankingKey, float64(guilds[i].MemberCount), guilds[i].ID); err != nil {
			return i, err
		}
	}
	h.logger.Debug("guild ranking refreshed", zap.Int("guilds", len(guilds)))
	return len(guilds), nil
}
