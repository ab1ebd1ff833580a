package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLocked is returned by Acquire when another holder owns the lock.
var ErrLocked = errors.New("cache: lock held")

// Lock is a held mutual-exclusion key. Release frees it only while this
// holder still owns it, so a lock that expired and was taken over is left
// alone.
type Lock struct {
	c     Cache
	key   string
	token string
}

// Acquire takes key for ttl. It does not wait.
func Acquire(ctx context.Context, c Cache, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := c.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{c: c, key: key, token: token}, nil
}

// Release frees the lock. Releasing after expiry is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	_, err := l.c.CompareAndDelete(ctx, l.key, l.token)
	return err
}
