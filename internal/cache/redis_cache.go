package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-engine/internal/config"
	"chat-engine/internal/models"
)

var ErrCacheMiss = errors.New("cache miss")

// MemberCache stores member profiles keyed by id.
type MemberCache interface {
	Get(ctx context.Context, memberID int64) (models.Member, error)
	Set(ctx context.Context, member models.Member, ttl time.Duration) error
}

type RedisMemberCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisMemberCache connects and pings Redis.
func NewRedisMemberCache(cfg config.RedisConfig) (*RedisMemberCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisMemberCacheWithClient(client, cfg.Prefix), nil
}

// NewRedisMemberCacheWithClient wraps an existing client.
func NewRedisMemberCacheWithClient(client redis.UniversalClient, prefix string) *RedisMemberCache {
	return &RedisMemberCache{client: client, prefix: prefix}
}

func (c *RedisMemberCache) key(memberID int64) string {
	return c.prefix + ":id:" + strconv.FormatInt(memberID, 10)
}

func (c *RedisMemberCache) Get(ctx context.Context, memberID int64) (models.Member, error) {
	data, err := c.client.Get(ctx, c.key(memberID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Member{}, ErrCacheMiss
		}
		return models.Member{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var member models.Member
	if err := json.Unmarshal(data, &member); err != nil {
		// an entry written by an older profile schema; drop it and refetch
		if delErr := c.evict(ctx, memberID); delErr != nil {
			return models.Member{}, fmt.Errorf("failed to unmarshal cache data: %w", errors.Join(err, delErr))
		}
		return models.Member{}, ErrCacheMiss
	}
	return member, nil
}

func (c *RedisMemberCache) Set(ctx context.Context, member models.Member, ttl time.Duration) error {
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, c.key(member.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisMemberCache) evict(ctx context.Context, memberID int64) error {
	if err := c.client.Del(ctx, c.key(memberID)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

func (c *RedisMemberCache) Close() error {
	return c.client.Close()
}
