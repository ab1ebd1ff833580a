package guild_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasuganosora/guildhall/server/guild"
	"github.com/kasuganosora/guildhall/server/store"
	"github.com/kasuganosora/guildhall/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type published struct {
	Channel string
	Event   guild.Event
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Publish(_ context.Context, channel, message string) error {
	var ev guild.Event
	if err := json.Unmarshal([]byte(message), &ev); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, published{Channel: channel, Event: ev})
	r.mu.Unlock()
	return nil
}

func (r *recorder) types(channel string) []guild.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []guild.EventType
	for _, p := range r.events {
		if p.Channel == channel {
			out = append(out, p.Event.Type)
		}
	}
	return out
}

type fixture struct {
	ctx   context.Context
	svc   *guild.Service
	store *store.Store
	clock *testutil.FakeClock
	pub   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, func(s guild.Store) guild.Store { return s })
}

// newFixtureWith lets a test wrap the store handed to the service.
func newFixtureWith(t *testing.T, wrap func(guild.Store) guild.Store) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	clk := testutil.NewFakeClock(t0)
	pub := &recorder{}
	var seq atomic.Int64
	svc := guild.NewService(wrap(st), guild.Config{
		Clock: clk,
		NewID: func() string { return fmt.Sprintf("id-%03d", seq.Add(1)) },
	}, pub, zaptest.NewLogger(t))
	return &fixture{ctx: context.Background(), svc: svc, store: st, clock: clk, pub: pub}
}

// newGuild founds an open, approval-free guild owned by founder.
func (f *fixture) newGuild(t *testing.T, founder, name string, mutate ...func(*guild.Settings)) *guild.Guild {
	t.Helper()
	settings := guild.Settings{IsOpen: true, MinRankRequired: "G"}
	for _, m := range mutate {
		m(&settings)
	}
	g, _, err := f.svc.CreateGuild(f.ctx, founder, name, settings)
	require.NoError(t, err)
	return g
}

// seat brings userID into the guild at pos through an invitation from the
// guild master.
func (f *fixture) seat(t *testing.T, g *guild.Guild, userID string, pos guild.Position) *guild.Member {
	t.Helper()
	inv, err := f.svc.SendInvitation(f.ctx, guild.InviteInput{
		GuildID:   g.ID,
		InviterID: g.LeaderID,
		InviteeID: userID,
		Position:  &pos,
	})
	require.NoError(t, err)
	m, err := f.svc.RespondToInvitation(f.ctx, inv.ID, userID, true)
	require.NoError(t, err)
	return m
}

func (f *fixture) guild(t *testing.T, id string) *guild.Guild {
	t.Helper()
	g, err := f.store.GetGuild(f.ctx, id)
	require.NoError(t, err)
	return g
}

func (f *fixture) position(t *testing.T, guildID, userID string) guild.Position {
	t.Helper()
	m, err := f.store.GetMember(f.ctx, guildID, userID)
	require.NoError(t, err)
	return m.Position
}

var errDiskFull = errors.New("disk full")

// flakyStore fails the nth PutMember call made inside any transaction.
type flakyStore struct {
	guild.Store
	failAt int
	puts   *int
}

func (s *flakyStore) Atomic(ctx context.Context, fn func(tx guild.Store) error) error {
	return s.Store.Atomic(ctx, func(tx guild.Store) error {
		return fn(&flakyStore{Store: tx, failAt: s.failAt, puts: s.puts})
	})
}

func (s *flakyStore) PutMember(ctx context.Context, m *guild.Member) error {
	*s.puts++
	if *s.puts == s.failAt {
		return guild.Storage("put member", errDiskFull)
	}
	return s.Store.PutMember(ctx, m)
}
