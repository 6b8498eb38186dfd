package caching

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "magicbag:"

// CacheService backs notified-item deduplication and the marketplace
// credential cache. It never caches marketplace responses.
type CacheService interface {
	// MarkNotified records key and reports whether it was new.
	MarkNotified(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Generic string operations for token management
	SetString(ctx context.Context, key string, value string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client *redis.Client
}

// NewRedisCacheService connects to Redis. A failed initial ping is logged,
// not fatal; the readiness probe reports it.
func NewRedisCacheService(addr, password string, db int, logger *slog.Logger) CacheService {
	// Accept redis://host:port as well as host:port.
	parsedAddr := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		logger.Warn("redis ping failed on initialization", slog.String("addr", parsedAddr), slog.Any("error", pingErr))
	} else {
		logger.Debug("redis connection established", slog.String("addr", parsedAddr))
	}

	return &redisCacheService{client: client}
}

func (r *redisCacheService) MarkNotified(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, keyPrefix+"notified:"+key, "1", ttl).Result()
}

func (r *redisCacheService) SetString(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}

func (r *redisCacheService) GetString(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil // cache miss
		}
		return "", err
	}
	return val, nil
}

func (r *redisCacheService) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, keyPrefix+key).Err()
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// memoryCacheService is used when no Redis address is configured. State is
// lost on restart.
type memoryCacheService struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   string
	expires time.Time // zero means no expiry
}

// NewMemoryCacheService returns a process-local CacheService.
func NewMemoryCacheService() CacheService {
	return &memoryCacheService{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *memoryCacheService) get(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, ok
}

func (m *memoryCacheService) set(key, value string, ttl time.Duration) {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
}

func (m *memoryCacheService) MarkNotified(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key = "notified:" + key
	if _, ok := m.get(key); ok {
		return false, nil
	}
	m.set(key, "1", ttl)
	return true, nil
}

func (m *memoryCacheService) SetString(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(key, value, ttl)
	return nil
}

func (m *memoryCacheService) GetString(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, _ := m.get(key)
	return e.value, nil
}

func (m *memoryCacheService) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryCacheService) Ping(context.Context) error { return nil }
