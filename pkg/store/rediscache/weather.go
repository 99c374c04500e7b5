// Package rediscache reads the district weather snapshots that the weather
// ingester keeps in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

// weatherKeyPrefix namespaces snapshots: weather:<district, lowercase>.
const weatherKeyPrefix = "weather:"

// Getter is the slice of the Redis client the store needs.
type Getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// WeatherStore implements farmctx.WeatherStore.
type WeatherStore struct {
	client Getter
}

// NewWeatherStore wraps a Redis client.
func NewWeatherStore(client Getter) *WeatherStore {
	return &WeatherStore{client: client}
}

// Open connects to the Redis URL and pings it.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// WeatherKey returns the key holding a district's snapshot.
func WeatherKey(district string) string {
	return weatherKeyPrefix + strings.ToLower(strings.TrimSpace(district))
}

// LatestWeather returns the cached snapshot, or nil when none is cached.
func (s *WeatherStore) LatestWeather(ctx context.Context, district string) (*types.WeatherSnapshot, error) {
	if strings.TrimSpace(district) == "" {
		return nil, nil
	}
	val, err := s.client.Get(ctx, WeatherKey(district)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get weather %s: %w", district, err)
	}
	var w types.WeatherSnapshot
	if err := json.Unmarshal(val, &w); err != nil {
		return nil, fmt.Errorf("decode weather %s: %w", district, err)
	}
	if w.District == "" {
		w.District = strings.TrimSpace(district)
	}
	return &w, nil
}
