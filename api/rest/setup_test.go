package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildhall/server/api/rest"
	"github.com/kasuganosora/guildhall/server/audit"
	"github.com/kasuganosora/guildhall/server/cache"
	"github.com/kasuganosora/guildhall/server/config"
	"github.com/kasuganosora/guildhall/server/guild"
	"github.com/kasuganosora/guildhall/server/metrics"
	mw "github.com/kasuganosora/guildhall/server/middleware"
	"github.com/kasuganosora/guildhall/server/scheduler"
	"github.com/kasuganosora/guildhall/server/store"
	"github.com/kasuganosora/guildhall/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testAdminKey = "admin-key"

var testSec = config.SecurityConfig{
	JWTSecret: "test-secret",
	JWTTTLH:   72 * time.Hour,
}

type testEnv struct {
	r       *gin.Engine
	db      *gorm.DB
	cache   cache.Cache
	svc     *guild.Service
	audit   *audit.Service
	sched   *scheduler.Scheduler
	ranking *rest.RankingHandler
	metrics *metrics.Metrics
}

// newEnv wires the full API against an in-memory DB and local cache.
// guard may be nil.
func newEnv(t *testing.T, guard rest.ContractGuard) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zaptest.NewLogger(t)

	svc := guild.NewService(store.New(db), guild.Config{}, ps, logger)
	auditSvc := audit.NewWithConfig(db, audit.Config{FlushInterval: 10 * time.Millisecond}, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	rankH := rest.NewRankingHandler(svc, c, logger)
	sched.AddTicker("invitation_expiry_sweep", time.Hour, func(ctx context.Context) error {
		_, err := svc.ExpireStaleInvitations(ctx)
		return err
	})
	sched.AddTicker("guild_ranking_refresh", time.Hour, func(ctx context.Context) error {
		_, err := rankH.Refresh(ctx)
		return err
	})

	m := metrics.New(false)
	guildH := rest.NewGuildHandler(svc, c, auditSvc, guard, time.Second, logger)
	guildH.SetMetrics(m)

	r := gin.New()
	r.Use(mw.TraceID())
	api := r.Group("/api")
	rest.Mount(api, rest.Handlers{
		Auth:    rest.NewAuthHandler(db, c, testSec, logger),
		Guild:   guildH,
		Ranking: rankH,
	}, mw.Auth(testSec, c), nil)
	rest.MountAdmin(api, rest.NewAdminHandler(db, sched, auditSvc, logger), rest.AdminAuth(testAdminKey))

	return &testEnv{r: r, db: db, cache: c, svc: svc, audit: auditSvc, sched: sched, ranking: rankH, metrics: m}
}

// do sends a JSON request. body may be nil; token may be empty.
func (e *testEnv) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// login registers (or logs in) username and returns its token and user ID.
func (e *testEnv) login(t *testing.T, username, rank string) (token, userID string) {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", "", gin.H{
		"username": username,
		"password": "pass1234",
		"rank":     rank,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	return resp["token"].(string), resp["user_id"].(string)
}

// createGuild founds a guild through the API and returns its ID.
func (e *testEnv) createGuild(t *testing.T, token, name string, settings gin.H) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/guilds", token, gin.H{"name": name, "settings": settings})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	g := decode(t, w)["guild"].(map[string]any)
	return g["id"].(string)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}
