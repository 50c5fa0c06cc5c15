package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const reservedPrefix = "reserved:"

// RedisCache is a Cache shared through Redis. Expiry is delegated to key TTLs,
// so the now arguments are ignored.
type RedisCache struct {
	client     redis.UniversalClient
	prefix     string
	window     time.Duration
	reserveTTL time.Duration
	pollEvery  time.Duration
}

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	Prefix     string
	Window     time.Duration
	ReserveTTL time.Duration // how long an uncommitted reservation survives
	PollEvery  time.Duration // wait interval while another caller holds a reservation
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient, opts RedisOptions) *RedisCache {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.ReserveTTL <= 0 {
		opts.ReserveTTL = 30 * time.Second
	}
	if opts.PollEvery <= 0 {
		opts.PollEvery = 20 * time.Millisecond
	}
	return &RedisCache{
		client:     client,
		prefix:     opts.Prefix,
		window:     opts.Window,
		reserveTTL: opts.ReserveTTL,
		pollEvery:  opts.PollEvery,
	}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (c *RedisCache) key(fingerprint string) string { return c.prefix + fingerprint }

// LookupOrReserve uses SET NX to claim the fingerprint. A losing caller polls
// until the winner commits (returning its ID) or the reservation disappears.
func (c *RedisCache) LookupOrReserve(ctx context.Context, fingerprint string, _ time.Time) (Lookup, error) {
	key := c.key(fingerprint)
	token := reservedPrefix + uuid.NewString()
	for {
		ok, err := c.client.SetNX(ctx, key, token, c.reserveTTL).Result()
		if err != nil {
			return Lookup{}, fmt.Errorf("reserve %s: %w", fingerprint, err)
		}
		if ok {
			return Lookup{}, nil
		}

		val, err := c.client.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			return Lookup{}, fmt.Errorf("lookup %s: %w", fingerprint, err)
		case !strings.HasPrefix(val, reservedPrefix):
			return Lookup{Existing: true, SubmissionID: val}, nil
		}

		select {
		case <-time.After(c.pollEvery):
		case <-ctx.Done():
			return Lookup{}, ctx.Err()
		}
	}
}

// Commit stores the submission ID with the window as TTL.
func (c *RedisCache) Commit(ctx context.Context, fingerprint, submissionID string, _ time.Time) error {
	if err := c.client.Set(ctx, c.key(fingerprint), submissionID, c.window).Err(); err != nil {
		return fmt.Errorf("commit %s: %w", fingerprint, err)
	}
	return nil
}

// Release deletes the key if it still holds a reservation.
func (c *RedisCache) Release(ctx context.Context, fingerprint string) error {
	key := c.key(fingerprint)
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release %s: %w", fingerprint, err)
	}
	if !strings.HasPrefix(val, reservedPrefix) {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", fingerprint, err)
	}
	return nil
}
