package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// HTTPWeatherClient calls an external weather provider over HTTP,
// wrapped in the same circuit-breaker and retry-with-backoff pattern
// as HTTPImageryClient.
type HTTPWeatherClient struct {
	baseURL string
	http    *http.Client
	retry   config.RetryConfig
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func NewHTTPWeatherClient(baseURL string, retry config.RetryConfig, breakerThreshold uint32, log zerolog.Logger) *HTTPWeatherClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "weather-provider",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		Timeout: 30 * time.Second,
	})
	return &HTTPWeatherClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		retry:   retry,
		breaker: breaker,
		log:     log.With().Str("provider", "weather").Logger(),
	}
}

func (c *HTTPWeatherClient) Current(ctx context.Context, lat, lng float64) (models.CurrentWeather, error) {
	call := func(ctx context.Context) (models.CurrentWeather, error) {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.getJSON(ctx, fmt.Sprintf("/current?lat=%f&lng=%f", lat, lng), &models.CurrentWeather{})
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return models.CurrentWeather{}, errkind.New(errkind.WeatherUnavailable, "", err)
			}
			return models.CurrentWeather{}, err
		}
		return *(out.(*models.CurrentWeather)), nil
	}
	return withRetry(ctx, c.retry, errkind.WeatherUnavailable, call)
}

func (c *HTTPWeatherClient) Forecast(ctx context.Context, lat, lng float64, days int) ([]models.DailyForecast, error) {
	call := func(ctx context.Context) ([]models.DailyForecast, error) {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			var forecast []models.DailyForecast
			return c.getJSONSlice(ctx, fmt.Sprintf("/forecast?lat=%f&lng=%f&days=%d", lat, lng, days), &forecast)
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return nil, errkind.New(errkind.WeatherUnavailable, "", err)
			}
			return nil, err
		}
		return *(out.(*[]models.DailyForecast)), nil
	}
	return withRetry(ctx, c.retry, errkind.WeatherUnavailable, call)
}

func (c *HTTPWeatherClient) Aggregate(ctx context.Context, lat, lng float64, window time.Duration) (models.AggregatedWeatherData, error) {
	call := func(ctx context.Context) (models.AggregatedWeatherData, error) {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.getJSON(ctx, fmt.Sprintf("/aggregate?lat=%f&lng=%f&windowDays=%d", lat, lng, int(window.Hours()/24)), &models.AggregatedWeatherData{})
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return models.AggregatedWeatherData{}, errkind.New(errkind.WeatherUnavailable, "", err)
			}
			return models.AggregatedWeatherData{}, err
		}
		return *(out.(*models.AggregatedWeatherData)), nil
	}
	return withRetry(ctx, c.retry, errkind.WeatherUnavailable, call)
}

func (c *HTTPWeatherClient) getJSON(ctx context.Context, path string, into interface{}) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return nil, errkind.New(errkind.InvalidInput, "", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errkind.New(errkind.Transient, "", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return nil, errkind.New(errkind.Transient, "", fmt.Errorf("weather provider %s: %s", resp.Status, data))
	}
	if resp.StatusCode >= 400 {
		return nil, errkind.New(errkind.InvalidInput, "", fmt.Errorf("weather provider %s: %s", resp.Status, data))
	}
	if err := json.Unmarshal(data, into); err != nil {
		return nil, errkind.New(errkind.Transient, "", err)
	}
	return into, nil
}

func (c *HTTPWeatherClient) getJSONSlice(ctx context.Context, path string, into interface{}) (interface{}, error) {
	return c.getJSON(ctx, path, into)
}
