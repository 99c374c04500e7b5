package rediscache

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

type fakeRedis struct {
	values map[string]string
	err    error
	keys   []string
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func TestLatestWeather(t *testing.T) {
	f := &fakeRedis{values: map[string]string{
		"weather:nashik": `{"temp_c":31.5,"humidity":40,"description":"clear sky","forecast":[{"date":"2026-03-02","min_temp_c":18,"max_temp_c":33,"rain_chance":10,"description":"sunny"}]}`,
	}}
	s := NewWeatherStore(f)

	got, err := s.LatestWeather(t.Context(), " Nashik ")
	if err != nil {
		t.Fatalf("LatestWeather() error = %v", err)
	}
	want := &types.WeatherSnapshot{
		District:    "Nashik",
		TempC:       31.5,
		Humidity:    40,
		Description: "clear sky",
		Forecast:    []types.WeatherDay{{Date: "2026-03-02", MinTempC: 18, MaxTempC: 33, RainChance: 10, Description: "sunny"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if f.keys[0] != "weather:nashik" {
		t.Errorf("key = %q", f.keys[0])
	}
}

func TestLatestWeather_MissIsNil(t *testing.T) {
	s := NewWeatherStore(&fakeRedis{})
	got, err := s.LatestWeather(t.Context(), "Pune")
	if err != nil || got != nil {
		t.Errorf("LatestWeather() = %v, %v; want nil, nil", got, err)
	}
}

func TestLatestWeather_Errors(t *testing.T) {
	down := errors.New("connection refused")
	if _, err := NewWeatherStore(&fakeRedis{err: down}).LatestWeather(t.Context(), "Pune"); !errors.Is(err, down) {
		t.Errorf("error = %v, want wrapped connection error", err)
	}
	bad := &fakeRedis{values: map[string]string{"weather:pune": "{"}}
	if _, err := NewWeatherStore(bad).LatestWeather(t.Context(), "Pune"); err == nil {
		t.Error("corrupt snapshot accepted")
	}
}
