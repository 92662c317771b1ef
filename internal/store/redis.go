// Package store implements the StoreClient capability (spec §2 component C):
// a thin, typed layer over a Redis-compatible shared key-value store. The
// connection setup follows the pack's pkg/redis.Open pattern
// (dmitrymomot-forge/pkg/redis/connect.go): sensible pooling defaults,
// explicit options, ping-on-connect. compareAndDelete uses a server-side Lua
// script so release is atomic (spec §9: "an optimistic get->check->delete is
// non-atomic and violates invariant #3").
package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arslanovdev/quotecache/config"
)

// Client is the capability the engine depends on. TTL of -1 means no
// expiry, -2 means the key is absent, matching spec §6's getTtl contract.
type Client interface {
	Get(ctx context.Context, key string) (raw []byte, ok bool, err error)
	Set(ctx context.Context, key string, raw []byte) error
	SetTTL(ctx context.Context, key string, raw []byte, ttl time.Duration) error
	SetIfAbsent(ctx context.Context, key string, raw []byte, ttl time.Duration) (acquired bool, err error)
	Delete(ctx context.Context, key string) error
	GetTTL(ctx context.Context, key string) (seconds int64, err error)
	CompareAndDelete(ctx context.Context, key string, expected []byte) (deleted bool, err error)
}

// compareAndDeleteScript deletes key only if its current value equals ARGV[1].
// Equivalent to the Lua scripts used for atomic lock release throughout the
// pack (e.g. smartramana-developer-mesh's document_lock_service.go Eval calls).
var compareAndDeleteScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

type redisClient struct {
	rdb   redis.UniversalClient
	codec codec
}

// New wraps an already-connected redis.UniversalClient. Connection
// lifecycle (Open/Close, retry, pooling) is the caller's responsibility,
// the same separation pkg/redis and pkg/cache keep in the reference pack.
func New(rdb redis.UniversalClient, compression *config.CompressionCfg) Client {
	return &redisClient{rdb: rdb, codec: newCodec(compression)}
}

// Open dials Redis with pooling/timeout defaults derived from cfg, pings to
// confirm connectivity, and wraps the result in a Client.
func Open(ctx context.Context, cfg *config.Config) (Client, redis.UniversalClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, errors.Join(ErrUnavailable, err)
	}
	return New(rdb, cfg.Compression), rdb, nil
}

func (c *redisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	wire, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Join(ErrUnavailable, err)
	}
	raw, err := c.codec.decode(wire)
	if err != nil {
		// Corruption: evict so the next read gets a clean miss (§7).
		_ = c.Delete(ctx, key)
		return nil, false, err
	}
	return raw, true, nil
}

func (c *redisClient) Set(ctx context.Context, key string, raw []byte) error {
	wire, err := c.codec.encode(raw)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, wire, 0).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (c *redisClient) SetTTL(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	wire, err := c.codec.encode(raw)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, wire, ttl).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (c *redisClient) SetIfAbsent(ctx context.Context, key string, raw []byte, ttl time.Duration) (bool, error) {
	wire, err := c.codec.encode(raw)
	if err != nil {
		return false, err
	}
	ok, err := c.rdb.SetNX(ctx, key, wire, ttl).Result()
	if err != nil {
		return false, errors.Join(ErrUnavailable, err)
	}
	return ok, nil
}

func (c *redisClient) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (c *redisClient) GetTTL(ctx context.Context, key string) (int64, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, errors.Join(ErrUnavailable, err)
	}
	// go-redis passes the server's "no expiry" (-1) and "absent" (-2) replies
	// through unscaled, as raw Durations of -1 and -2; only real TTLs are
	// scaled to seconds, so those are the ones divided by time.Second.
	if d == -1 || d == -2 {
		return int64(d), nil
	}
	return int64(d / time.Second), nil
}

func (c *redisClient) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	// The stored value carries the codec's wire marker (see codec.go), so the
	// comparand needs the same encoding or the script's equality check can
	// never match a value this client itself wrote.
	wire, err := c.codec.encode(expected)
	if err != nil {
		return false, err
	}
	res, err := compareAndDeleteScript.Run(ctx, c.rdb, []string{key}, wire).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errors.Join(ErrUnavailable, err)
	}
	n, _ := res.(int64)
	return n == 1, nil
}
