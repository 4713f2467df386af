package redis

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

//go:embed scripts/release.lua
var releaseLua string

const releaseTimeout = 5 * time.Second

// LockManager leases keys with SET NX PX. Each lease carries a random token
// and release only deletes the key while the token still matches, so an
// expired holder cannot free a lease someone else took over.
type LockManager struct {
	rdb     redis.UniversalClient
	release *redis.Script
}

func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.rdb, release: redis.NewScript(releaseLua)}
}

func lockKey(key string) string {
	return keyPrefix + "lock:" + key
}

// Acquire takes the lease for ttl. The returned unlock is idempotent and
// runs on its own short deadline.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	k, token := lockKey(key), uuid.NewString()

	ok, err := lm.rdb.SetNX(ctx, k, token, ttl).Result()
	switch {
	case err != nil:
		return nil, fmt.Errorf("redis: lock %s: %w", key, err)
	case !ok:
		return nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	}

	return sync.OnceFunc(func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		_ = lm.release.Run(rctx, lm.rdb, []string{k}, token).Err()
	}), nil
}

var _ domain.LockManager = (*LockManager)(nil)
