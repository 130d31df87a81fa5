package providers

import (
	"context"
	"time"

	"github.com/demeterfield/pipeline/internal/cache"
	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/rs/zerolog"
)

// CachingWeatherProvider wraps a WeatherProvider with the content-
// addressed cache from internal/cache (spec.md §5), so repeated
// Current/Forecast/Aggregate lookups for the same lat/lng within a
// tick don't re-hit the upstream provider or trip its breaker.
type CachingWeatherProvider struct {
	inner WeatherProvider
	cache cache.Cache
	ttl   config.CacheConfig
	log   zerolog.Logger
}

func NewCachingWeatherProvider(inner WeatherProvider, c cache.Cache, ttl config.CacheConfig, log zerolog.Logger) *CachingWeatherProvider {
	return &CachingWeatherProvider{inner: inner, cache: c, ttl: ttl, log: log.With().Str("component", "weather-cache").Logger()}
}

func (p *CachingWeatherProvider) Current(ctx context.Context, lat, lng float64) (models.CurrentWeather, error) {
	key := cache.Key("weather.current", lat, lng)
	var out models.CurrentWeather
	if hit, err := p.cache.Get(ctx, key, &out); err == nil && hit {
		return out, nil
	}
	out, err := p.inner.Current(ctx, lat, lng)
	if err != nil {
		return out, err
	}
	if err := p.cache.Set(ctx, key, out, p.ttl.WeatherCurrentTTL); err != nil {
		p.log.Warn().Err(err).Msg("failed to cache current weather")
	}
	return out, nil
}

func (p *CachingWeatherProvider) Forecast(ctx context.Context, lat, lng float64, days int) ([]models.DailyForecast, error) {
	key := cache.Key("weather.forecast", lat, lng, days)
	var out []models.DailyForecast
	if hit, err := p.cache.Get(ctx, key, &out); err == nil && hit {
		return out, nil
	}
	out, err := p.inner.Forecast(ctx, lat, lng, days)
	if err != nil {
		return out, err
	}
	if err := p.cache.Set(ctx, key, out, p.ttl.WeatherForecastTTL); err != nil {
		p.log.Warn().Err(err).Msg("failed to cache weather forecast")
	}
	return out, nil
}

func (p *CachingWeatherProvider) Aggregate(ctx context.Context, lat, lng float64, window time.Duration) (models.AggregatedWeatherData, error) {
	key := cache.Key("weather.aggregate", lat, lng, window)
	var out models.AggregatedWeatherData
	if hit, err := p.cache.Get(ctx, key, &out); err == nil && hit {
		return out, nil
	}
	out, err := p.inner.Aggregate(ctx, lat, lng, window)
	if err != nil {
		return out, err
	}
	if err := p.cache.Set(ctx, key, out, p.ttl.WeatherForecastTTL); err != nil {
		p.log.Warn().Err(err).Msg("failed to cache aggregated weather")
	}
	return out, nil
}
