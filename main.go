package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/guildhall/server/api/rest"
	"github.com/kasuganosora/guildhall/server/api/sse"
	"github.com/kasuganosora/guildhall/server/audit"
	"github.com/kasuganosora/guildhall/server/cache"
	"github.com/kasuganosora/guildhall/server/config"
	dbadapter "github.com/kasuganosora/guildhall/server/db"
	"github.com/kasuganosora/guildhall/server/guild"
	"github.com/kasuganosora/guildhall/server/metrics"
	mw "github.com/kasuganosora/guildhall/server/middleware"
	"github.com/kasuganosora/guildhall/server/model"
	"github.com/kasuganosora/guildhall/server/scheduler"
	"github.com/kasuganosora/guildhall/server/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Security.JWTSecret == "" {
		log.Fatalf("config: security.jwt_secret is required")
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	m := metrics.New(true)

	// ---- Guild service ----
	guildSvc := guild.NewService(store.New(db), guild.Config{
		InvitationTTL:      cfg.Guild.InvitationTTL,
		DefaultMemberLevel: guild.Level(cfg.Guild.DefaultMemberLevel),
		DefaultMaxMembers:  cfg.Guild.DefaultMaxMembers,
		DefaultMinRank:     guild.Rank(cfg.Guild.DefaultMinRank),
	}, pubsub, logger)

	authH := apirest.NewAuthHandler(db, c, cfg.Security, logger)
	guildH := apirest.NewGuildHandler(guildSvc, c, auditSvc, nil, cfg.Guild.LockTTL, logger)
	guildH.SetMetrics(m)
	rankH := apirest.NewRankingHandler(guildSvc, c, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.SetObserver(m)
	defer sched.Stop()

	sched.AddTicker("invitation_expiry_sweep", cfg.Guild.ExpirySweepInterval, func(ctx context.Context) error {
		_, err := guildSvc.ExpireStaleInvitations(ctx)
		return err
	})
	sched.AddTicker("guild_ranking_refresh", cfg.Guild.RankingRefreshInterval, func(ctx context.Context) error {
		_, err := rankH.Refresh(ctx)
		return err
	})
	// Warm the leaderboard shortly after boot instead of waiting a full interval.
	sched.AddDelay("guild_ranking_warmup", 5*time.Second, func(ctx context.Context) error {
		n, err := rankH.Refresh(ctx)
		if err == nil {
			logger.Info("guild ranking warmed", zap.Int("guilds", n))
		}
		return err
	})

	adminH := apirest.NewAdminHandler(db, sched, auditSvc, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), m.Gin())
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", mw.IPWhitelist(cfg.Security.AdminIPs, logger), gin.WrapH(m.Handler()))

	api := r.Group("/api")
	apirest.Mount(api, apirest.Handlers{
		Auth:    authH,
		Guild:   guildH,
		Ranking: rankH,
	},
		mw.Auth(cfg.Security, c),
		mw.RateLimitBy(rate.Limit(cfg.Security.MutationRPS), cfg.Security.MutationBurst, mw.PerUser),
	)
	apirest.MountAdmin(api, adminH,
		mw.IPWhitelist(cfg.Security.AdminIPs, logger),
		apirest.AdminAuth(cfg.Server.AdminKey),
	)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, guildSvc, cfg.Security.AllowedOrigins, logger)
	sseH.SetMetrics(m)
	r.GET("/sse/guilds/:id", mw.QueryAuth(cfg.Security, c), sseH.ServeGuild)
	r.GET("/sse/me", mw.QueryAuth(cfg.Security, c), sseH.ServeUser)

	// ---- Serve with graceful shutdown ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
