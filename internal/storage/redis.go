package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/fateweaver/pkg/storage"
)

const (
	playthroughPrefix = "playthrough:"
	lockPrefix        = "playthrough-lock:"
	DefaultTTL        = 24 * time.Hour
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStorage keeps playthrough snapshots in Redis with a sliding TTL
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance.
// redisURL is either host:port or a redis:// URL.
func NewRedisStorage(redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisStorage, error) {
	opt := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		opt = parsed
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStorage{
		client: redis.NewClient(opt),
		logger: logger,
		ttl:    ttl,
	}, nil
}

// Client exposes the connection for Pub/Sub.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		err := r.Ping(ctx)
		if err == nil {
			r.logger.Info("Redis connection established")
			return nil
		}
		r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("redis did not become available after %d attempts", attempts)
}

func (r *RedisStorage) SavePlaythrough(ctx context.Context, p *storage.Playthrough) error {
	if p == nil {
		return errors.New("playthrough cannot be nil")
	}
	p.UpdatedAt = time.Now()

	data, err := json.Marshal(p)
	if err != nil {
		r.logger.Error("Failed to marshal playthrough", "uuid", p.ID, "error", err)
		return fmt.Errorf("failed to marshal playthrough: %w", err)
	}

	if err := r.client.Set(ctx, playthroughPrefix+p.ID.String(), data, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to save playthrough", "uuid", p.ID, "error", err)
		return fmt.Errorf("failed to save playthrough: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadPlaythrough(ctx context.Context, id uuid.UUID) (*storage.Playthrough, error) {
	data, err := r.client.Get(ctx, playthroughPrefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Debug("Playthrough not found", "uuid", id)
			return nil, nil
		}
		r.logger.Error("Failed to load playthrough", "uuid", id, "error", err)
		return nil, fmt.Errorf("failed to load playthrough: %w", err)
	}

	var p storage.Playthrough
	if err := json.Unmarshal(data, &p); err != nil {
		r.logger.Error("Failed to unmarshal playthrough", "uuid", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal playthrough: %w", err)
	}
	return &p, nil
}

func (r *RedisStorage) DeletePlaythrough(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, playthroughPrefix+id.String()).Err(); err != nil {
		r.logger.Error("Failed to delete playthrough", "uuid", id, "error", err)
		return fmt.Errorf("failed to delete playthrough: %w", err)
	}
	return nil
}

func (r *RedisStorage) AcquireLock(ctx context.Context, id uuid.UUID, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockPrefix+id.String(), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return "", storage.ErrLocked
	}
	return token, nil
}

func (r *RedisStorage) ReleaseLock(ctx context.Context, id uuid.UUID, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{lockPrefix + id.String()}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Warn("Failed to release lock", "uuid", id, "error", err)
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
