package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *LocalMessage) *LocalMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestPubSubBasic(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "guild:g1", "user:u1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "guild:g1", "joined"))
	require.NoError(t, ps.Publish(ctx, "guild:g2", "elsewhere"))
	require.NoError(t, ps.Publish(ctx, "user:u1", "invited"))

	msg := receive(t, ch)
	assert.Equal(t, "guild:g1", msg.Channel)
	assert.Equal(t, "joined", msg.Payload)
	msg = receive(t, ch)
	assert.Equal(t, "user:u1", msg.Channel)
	assert.Equal(t, "invited", msg.Payload)
}

func TestPubSubCancelClosesOnce(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "a", "b")
	require.NoError(t, err)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after cancel")
	assert.NoError(t, ps.Publish(ctx, "a", "msg"))
}

func TestPubSubContextDone(t *testing.T) {
	ps := NewPubSub(16)
	ctx, stop := context.WithCancel(context.Background())

	ch, _, err := ps.Subscribe(ctx, "a")
	require.NoError(t, err)
	stop()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
}

func TestPubSubMultipleSubscribers(t *testing.T) {
	ps := NewPubSub(16)
	ctx := context.Background()

	ch1, cancel1, _ := ps.Subscribe(ctx, "broadcast")
	ch2, cancel2, _ := ps.Subscribe(ctx, "broadcast")
	defer cancel1()
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "broadcast", "world"))
	assert.Equal(t, "world", receive(t, ch1).Payload)
	assert.Equal(t, "world", receive(t, ch2).Payload)
}
