package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kasuganosora/guildhall/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, time.Hour, cfg.Database.MySQLMaxLife)
	assert.Equal(t, 72*time.Hour, cfg.Security.JWTTTLH)
	assert.Equal(t, 7*24*time.Hour, cfg.Guild.InvitationTTL)
	assert.Equal(t, 25, cfg.Guild.DefaultMaxMembers)
	assert.Equal(t, 2, cfg.Guild.DefaultMemberLevel)
	assert.Equal(t, "G", cfg.Guild.DefaultMinRank)
	assert.Zero(t, cfg.Guild.ExpirySweepInterval)
	assert.Equal(t, 10*time.Minute, cfg.Guild.RankingRefreshInterval)
	assert.Equal(t, 10*time.Second, cfg.Guild.LockTTL)
	assert.Equal(t, []string{"127.0.0.1", "::1"}, cfg.Security.AdminIPs)
	assert.Equal(t, 20, cfg.Security.MutationBurst)
	assert.Empty(t, cfg.Server.AdminKey)
}

func TestLoad_FileValues(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
database:
  mode: memory
guild:
  invitation_ttl: 48h
  default_min_rank: C
security:
  allowed_origins: ["https://example.test"]
`))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Mode)
	assert.Equal(t, 48*time.Hour, cfg.Guild.InvitationTTL)
	assert.Equal(t, "C", cfg.Guild.DefaultMinRank)
	assert.Equal(t, []string{"https://example.test"}, cfg.Security.AllowedOrigins)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GUILDHALL_SERVER_PORT", "7070")
	t.Setenv("GUILDHALL_GUILD_LOCK_TTL", "3s")

	cfg, err := config.Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Guild.LockTTL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
