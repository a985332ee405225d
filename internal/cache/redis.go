package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ripplesocial/relay/internal/logger"
	"go.uber.org/zap"
)

// presenceTTL bounds how stale a mirrored presence key can get if the
// relay dies without cleaning up.
const presenceTTL = 5 * time.Minute

// RedisClient mirrors relay presence into Redis so sibling services
// can read liveness without querying the relay itself.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a Redis client with connection pooling and
// verifies connectivity before returning.
func NewRedisClient(host, port, password string) (*RedisClient, error) {
	addr := fmt.Sprintf("%s:%s", host, port)

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	logger.Log.Info("Redis client connected", zap.String("address", addr))
	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection gracefully.
func (rc *RedisClient) Close() error {
	if rc == nil || rc.client == nil {
		return nil
	}
	return rc.client.Close()
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

// SetOnline marks a user online. Best-effort: the relay's in-memory
// registry stays authoritative.
func (rc *RedisClient) SetOnline(ctx context.Context, userID string) error {
	if rc == nil {
		return nil
	}
	return rc.client.Set(ctx, presenceKey(userID), "online", presenceTTL).Err()
}

// SetOffline clears a user's presence key.
func (rc *RedisClient) SetOffline(ctx context.Context, userID string) error {
	if rc == nil {
		return nil
	}
	return rc.client.Del(ctx, presenceKey(userID)).Err()
}

// RefreshOnline extends the TTL of an online user's presence key.
func (rc *RedisClient) RefreshOnline(ctx context.Context, userID string) error {
	if rc == nil {
		return nil
	}
	return rc.client.Expire(ctx, presenceKey(userID), presenceTTL).Err()
}
