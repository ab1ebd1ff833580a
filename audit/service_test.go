package audit

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/guildhall/server/model"
	"github.com/kasuganosora/guildhall/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func count(t *testing.T, svc *Service) int64 {
	t.Helper()
	var n int64
	require.NoError(t, svc.db.Model(&model.AuditLog{}).Count(&n).Error)
	return n
}

func TestLog_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zaptest.NewLogger(t))

	svc.Log(AuditEntry{
		TraceID:    "trace-123",
		UserID:     "u-1",
		GuildID:    "g-1",
		Action:     "guild.promote",
		Request:    map[string]string{"target": "u-2"},
		Response:   map[string]bool{"ok": true},
		IP:         "127.0.0.1",
		DurationMs: 42,
	})

	// Stop flushes remaining entries
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	assert.Equal(t, "u-1", logs[0].UserID)
	assert.Equal(t, "g-1", logs[0].GuildID)
	assert.Equal(t, "guild.promote", logs[0].Action)
	assert.JSONEq(t, `{"target":"u-2"}`, string(logs[0].Request))
	assert.Equal(t, 42, logs[0].DurationMs)
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewWithConfig(db, Config{BatchSize: 10, FlushInterval: time.Hour}, zaptest.NewLogger(t))
	defer svc.Stop(context.Background())

	for i := 0; i < 10; i++ {
		svc.Log(AuditEntry{Action: "batch"})
	}
	// A full batch is written without waiting for the ticker.
	assert.Eventually(t, func() bool { return count(t, svc) == 10 }, 2*time.Second, 10*time.Millisecond)
}

func TestLog_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewWithConfig(db, Config{FlushInterval: 20 * time.Millisecond}, zaptest.NewLogger(t))
	defer svc.Stop(context.Background())

	svc.Log(AuditEntry{Action: "timer_test"})
	assert.Eventually(t, func() bool { return count(t, svc) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStop_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zaptest.NewLogger(t))
	svc.Stop(context.Background())
	svc.Stop(context.Background()) // must not panic
}

func TestLog_AfterStopDropped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zaptest.NewLogger(t))
	svc.Stop(context.Background())

	svc.Log(AuditEntry{Action: "late"})
	assert.Zero(t, count(t, svc))
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewWithConfig(db, Config{BufferSize: 4}, zaptest.NewLogger(t))

	for i := 0; i < 200; i++ {
		svc.Log(AuditEntry{Action: "flood"})
	}
	svc.Stop(context.Background())
	assert.LessOrEqual(t, count(t, svc), int64(200))
}

func TestRecent_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zaptest.NewLogger(t))
	svc.Log(AuditEntry{TraceID: "t1", UserID: "u-1", GuildID: "g-1", Action: "guild.create"})
	svc.Log(AuditEntry{TraceID: "t2", UserID: "u-2", GuildID: "g-1", Action: "guild.join"})
	svc.Log(AuditEntry{TraceID: "t3", UserID: "u-2", GuildID: "g-2", Action: "guild.join"})
	svc.Stop(context.Background())
	ctx := context.Background()

	all, err := svc.Recent(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t3", all[0].TraceID)

	byGuild, err := svc.Recent(ctx, Filter{GuildID: "g-1"})
	require.NoError(t, err)
	assert.Len(t, byGuild, 2)

	joinsByUser, err := svc.Recent(ctx, Filter{UserID: "u-2", Action: "guild.join", Limit: 1})
	require.NoError(t, err)
	require.Len(t, joinsByUser, 1)
	assert.Equal(t, "t3", joinsByUser[0].TraceID)
}

func TestRecent_LimitBounds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, zaptest.NewLogger(t))
	defer svc.Stop(context.Background())

	rows := make([]model.AuditLog, 600)
	for i := range rows {
		rows[i].Action = "guild.join"
	}
	require.NoError(t, db.CreateInBatches(&rows, 100).Error)

	cases := []struct {
		limit int
		want  int
	}{
		{0, 100},
		{-3, 100},
		{42, 42},
		{500, 500},
		{1000, 500},
	}
	for _, tc := range cases {
		got, err := svc.Recent(context.Background(), Filter{Limit: tc.limit})
		require.NoError(t, err)
		assert.Len(t, got, tc.want, "limit %d", tc.limit)
	}
}
