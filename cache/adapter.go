package cache

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/guildhall/server/cache/local"
	cacheredis "github.com/kasuganosora/guildhall/server/cache/redis"
)

// ErrNotFound is returned by Get and ZScore for missing keys, whatever the
// backend.
var ErrNotFound = errors.New("cache: key not found")

// Cache defines the KV and ZSet operations used for guild locks and the
// guild leaderboard.
type Cache interface {
	// KV
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// ZSet
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub defines channel publish/subscribe operations.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// CacheConfig holds configuration for both Redis and LocalCache.
type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

func (c CacheConfig) redis() cacheredis.Config {
	return cacheredis.Config{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// NewCache returns a Cache backed by Redis if RedisAddr is set,
// otherwise returns an in-process LocalCache.
func NewCache(cfg CacheConfig) (Cache, error) {
	if cfg.RedisAddr != "" {
		client, err := cacheredis.Dial(cfg.redis())
		if err != nil {
			return nil, err
		}
		return &redisCacheAdapter{RedisCache: cacheredis.NewCache(client)}, nil
	}
	c, err := local.NewCache(local.Config{GCInterval: cfg.LocalGCInterval})
	if err != nil {
		return nil, err
	}
	return &localCacheAdapter{LocalCache: c}, nil
}

// NewPubSub returns a PubSub backed by Redis if RedisAddr is set,
// otherwise returns an in-process LocalPubSub wrapped in an adapter.
func NewPubSub(cfg CacheConfig) (PubSub, error) {
	if cfg.RedisAddr != "" {
		client, err := cacheredis.Dial(cfg.redis())
		if err != nil {
			return nil, err
		}
		return &redisPubSubAdapter{ps: cacheredis.NewPubSub(client)}, nil
	}
	bufSize := cfg.LocalPubSubBuf
	if bufSize <= 0 {
		bufSize = 256
	}
	return &localPubSubAdapter{ps: local.NewPubSub(bufSize)}, nil
}

// ---- adapters: unify not-found errors and message types ----

func notFound(err, backend error) error {
	if errors.Is(err, backend) {
		return ErrNotFound
	}
	return err
}

type localCacheAdapter struct {
	*local.LocalCache
}

func (a *localCacheAdapter) Get(ctx context.Context, key string) (string, error) {
	v, err := a.LocalCache.Get(ctx, key)
	return v, notFound(err, local.ErrNotFound)
}

func (a *localCacheAdapter) ZScore(ctx context.Context, key, member string) (float64, error) {
	v, err := a.LocalCache.ZScore(ctx, key, member)
	return v, notFound(err, local.ErrNotFound)
}

type redisCacheAdapter struct {
	*cacheredis.RedisCache
}

func (a *redisCacheAdapter) Get(ctx context.Context, key string) (string, error) {
	v, err := a.RedisCache.Get(ctx, key)
	return v, notFound(err, cacheredis.ErrNotFound)
}

func (a *redisCacheAdapter) ZScore(ctx context.Context, key, member string) (float64, error) {
	v, err := a.RedisCache.ZScore(ctx, key, member)
	return v, notFound(err, cacheredis.ErrNotFound)
}

type localPubSubAdapter struct {
	ps *local.LocalPubSub
}

func (a *localPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *localPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	localCh, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, 256)
	go func() {
		defer close(out)
		for msg := range localCh {
			select {
			case out <- &Message{Channel: msg.Channel, Payload: msg.Payload}:
			default:
			}
		}
	}()
	return out, cancel, nil
}

type redisPubSubAdapter struct {
	ps *cacheredis.RedisPubSub
}

func (a *redisPubSubAdapter) Publish(ctx context.Context, channel, message string) error {
	return a.ps.Publish(ctx, channel, message)
}

func (a *redisPubSubAdapter) Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error) {
	redisCh, cancel, err := a.ps.Subscribe(ctx, channels...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Message, 256)
	go func() {
		defer close(out)
		for msg := range redisCh {
			select {
			case out <- &Message{Channel: msg.Channel, Payload: msg.Payload}:
			default:
			}
		}
	}()
	return out, cancel, nil
}
