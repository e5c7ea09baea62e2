package registry

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"danmustream/danmuservice/internal/domain"
)

const (
	defaultRuntimeProvidersKey = "danmu:providers:runtime:v1"
	defaultCacheSecondsKey     = "danmu:cache:seconds"
)

// RuntimeStore holds provider overrides edited at runtime.
type RuntimeStore interface {
	Load(ctx context.Context) (map[string]domain.ProviderSite, error)
	Save(ctx context.Context, site domain.ProviderSite) error
	Delete(ctx context.Context, key string) error
	CacheSeconds(ctx context.Context) (int, bool, error)
}

type RedisStore struct {
	client       redis.UniversalClient
	providersKey string
	cacheKey     string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if client == nil {
		return nil
	}
	providersKey := defaultRuntimeProvidersKey
	cacheKey := defaultCacheSecondsKey
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		providersKey = prefix + providersKey
		cacheKey = prefix + cacheKey
	}
	return &RedisStore{
		client:       client,
		providersKey: providersKey,
		cacheKey:     cacheKey,
	}
}

func (s *RedisStore) Load(ctx context.Context) (map[string]domain.ProviderSite, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	items, err := s.client.HGetAll(ctx, s.providersKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	out := make(map[string]domain.ProviderSite, len(items))
	for key, encoded := range items {
		key = strings.TrimSpace(key)
		if key == "" || strings.TrimSpace(encoded) == "" {
			continue
		}
		var site domain.ProviderSite
		if err := json.Unmarshal([]byte(encoded), &site); err != nil {
			continue
		}
		site.Key = key
		out[key] = normalizeSite(site)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, site domain.ProviderSite) error {
	if s == nil || s.client == nil {
		return nil
	}
	site = normalizeSite(site)
	if site.Key == "" {
		return nil
	}
	payload, err := json.Marshal(site)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.providersKey, site.Key, payload).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return s.client.HDel(ctx, s.providersKey, key).Err()
}

// CacheSeconds reports the runtime TTL override; ok is false when none is set.
func (s *RedisStore) CacheSeconds(ctx context.Context) (int, bool, error) {
	if s == nil || s.client == nil {
		return 0, false, nil
	}
	raw, err := s.client.Get(ctx, s.cacheKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return 0, false, nil
	}
	return value, true, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
