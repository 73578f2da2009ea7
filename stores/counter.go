package stores

import (
	"fmt"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/go-redis/redis"
	se "wuyrush.io/pinboard/errors"
)

// Counter counts events per key in fixed time windows
type Counter interface {
	// Incr counts one more event under key and returns the number of events counted under key in the
	// current window
	Incr(key string, window time.Duration) (int64, *se.Err)
	Close() *se.Err
}

// RedisCounter is a Counter shared by all replicas, driven by Redis. Windows are aligned to multiples of
// the window length so that every replica agrees on where a window begins.
type RedisCounter struct {
	DB  *redis.Client
	now func() time.Time
}

func (c *RedisCounter) windowKey(key string, window time.Duration) string {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return fmt.Sprintf("ratelimit:%s:%d", key, now().UnixNano()/int64(window))
}

func (c *RedisCounter) Incr(key string, window time.Duration) (int64, *se.Err) {
	wk := c.windowKey(key, window)
	var incr *redis.IntCmd
	if _, err := c.DB.TxPipelined(func(p redis.Pipeliner) error {
		incr = p.Incr(wk)
		// refreshing the expiry is harmless as the key is never used after its window
		p.Expire(wk, window)
		return nil
	}); err != nil {
		return 0, se.NewServiceFailure("error incrementing counter in Redis").WithCause(err)
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Close() *se.Err {
	if err := c.DB.Close(); err != nil {
		return se.NewServiceFailure("failed close Redis client").WithCause(err)
	}
	return nil
}

// LocalCounter is an in-process Counter keeping at most size keys, least recently used keys evicted first
type LocalCounter struct {
	mu    sync.Mutex
	cache gcache.Cache
	now   func() time.Time
}

type localCount struct {
	n       int64
	expires time.Time
}

func NewLocalCounter(size int) *LocalCounter {
	return &LocalCounter{cache: gcache.New(size).LRU().Build(), now: time.Now}
}

func (c *LocalCounter) Incr(key string, window time.Duration) (int64, *se.Err) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	v, err := c.cache.Get(key)
	if err != nil && err != gcache.KeyNotFoundError {
		return 0, se.NewServiceFailure("error reading local counter").WithCause(err)
	}
	if cnt, ok := v.(*localCount); ok && now.Before(cnt.expires) {
		cnt.n++
		return cnt.n, nil
	}
	cnt := &localCount{n: 1, expires: now.Add(window)}
	if err := c.cache.SetWithExpire(key, cnt, window); err != nil {
		return 0, se.NewServiceFailure("error writing local counter").WithCause(err)
	}
	return cnt.n, nil
}

func (c *LocalCounter) Close() *se.Err {
	c.cache.Purge()
	return nil
}
