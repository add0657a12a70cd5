// Package cache provides the refresh-token session store. Redis backs it in
// production; an in-memory store serves single-node and test deployments.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"license-server/config"
	"license-server/internal/logging"
)

// SessionStore persists refresh tokens with a TTL. Deleting a token revokes
// the session.
type SessionStore interface {
	SaveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error
	GetRefreshToken(ctx context.Context, token string) (string, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	Close() error
}

const refreshTokenPrefix = "session:refresh:%s"

// RedisSessionStore stores refresh tokens in Redis
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore connects to Redis and verifies connectivity.
func NewRedisSessionStore(cfg config.RedisConfig) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log := logging.Component("cache")
	log.Info().Str("address", cfg.Address).Msg("connected to Redis")

	return &RedisSessionStore{client: client}, nil
}

// SaveRefreshToken stores a refresh token mapped to its user with a TTL
func (s *RedisSessionStore) SaveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	key := fmt.Sprintf(refreshTokenPrefix, token)
	if err := s.client.Set(ctx, key, userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns the user id for a token, or "" when absent
func (s *RedisSessionStore) GetRefreshToken(ctx context.Context, token string) (string, error) {
	key := fmt.Sprintf(refreshTokenPrefix, token)
	userID, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get refresh token: %w", err)
	}
	return userID, nil
}

// DeleteRefreshToken revokes a refresh token
func (s *RedisSessionStore) DeleteRefreshToken(ctx context.Context, token string) error {
	key := fmt.Sprintf(refreshTokenPrefix, token)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

type memoryEntry struct {
	userID    string
	expiresAt time.Time
}

// MemorySessionStore is the in-process fallback used when Redis is disabled.
type MemorySessionStore struct {
	mu     sync.Mutex
	tokens map[string]memoryEntry
}

// NewMemorySessionStore creates an in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{tokens: make(map[string]memoryEntry)}
}

// SaveRefreshToken stores a token in memory
func (s *MemorySessionStore) SaveRefreshToken(_ context.Context, token, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = memoryEntry{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

// GetRefreshToken returns the user id for a token, or "" when absent or expired
func (s *MemorySessionStore) GetRefreshToken(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok {
		return "", nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.tokens, token)
		return "", nil
	}
	return entry.userID, nil
}

// DeleteRefreshToken revokes a token
func (s *MemorySessionStore) DeleteRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemorySessionStore) Close() error { return nil }
