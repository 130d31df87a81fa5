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
	"github.com/demeterfield/pipeline/internal/geo"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// HTTPImageryClient calls an external imagery provider over HTTP,
// following the request-building and non-2xx handling idiom of
// DemeterEye's processor client, but adding the retry-with-backoff and
// circuit-breaker resilience spec.md §4.C/§4.E require.
type HTTPImageryClient struct {
	baseURL string
	http    *http.Client
	retry   config.RetryConfig
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func NewHTTPImageryClient(baseURL string, retry config.RetryConfig, breakerThreshold uint32, log zerolog.Logger) *HTTPImageryClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "imagery-provider",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		Timeout: 30 * time.Second,
	})
	return &HTTPImageryClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
		retry:   retry,
		breaker: breaker,
		log:     log.With().Str("provider", "imagery").Logger(),
	}
}

type indicesRequest struct {
	BBox geo.BoundingBox `json:"bbox"`
	Date string          `json:"date"`
}

// Indices fetches VegetationIndices for a bounding box at a date,
// surfacing ImageryUnavailable when the provider has no coverage.
// Network/5xx failures are retried and surface as ImageryUnavailable
// once the retry cap is hit (spec.md §4.C).
func (c *HTTPImageryClient) Indices(ctx context.Context, bbox geo.BoundingBox, date time.Time) (models.VegetationIndices, error) {
	call := func(ctx context.Context) (models.VegetationIndices, error) {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doIndices(ctx, bbox, date)
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return models.VegetationIndices{}, errkind.New(errkind.ImageryUnavailable, "", err)
			}
			return models.VegetationIndices{}, err
		}
		return out.(models.VegetationIndices), nil
	}
	return withRetry(ctx, c.retry, errkind.ImageryUnavailable, call)
}

func (c *HTTPImageryClient) doIndices(ctx context.Context, bbox geo.BoundingBox, date time.Time) (models.VegetationIndices, error) {
	body, err := json.Marshal(indicesRequest{BBox: bbox, Date: date.Format("2006-01-02")})
	if err != nil {
		return models.VegetationIndices{}, errkind.New(errkind.InvalidInput, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/indices", bytes.NewReader(body))
	if err != nil {
		return models.VegetationIndices{}, errkind.New(errkind.InvalidInput, "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.VegetationIndices{}, errkind.New(errkind.Transient, "", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.VegetationIndices{}, errkind.New(errkind.ImageryUnavailable, "", fmt.Errorf("no acquisition for bbox/date"))
	case resp.StatusCode >= 500:
		return models.VegetationIndices{}, errkind.New(errkind.Transient, "", fmt.Errorf("imagery provider %s: %s", resp.Status, data))
	case resp.StatusCode >= 400:
		return models.VegetationIndices{}, errkind.New(errkind.InvalidInput, "", fmt.Errorf("imagery provider %s: %s", resp.Status, data))
	}

	var out models.VegetationIndices
	if err := json.Unmarshal(data, &out); err != nil {
		return models.VegetationIndices{}, errkind.New(errkind.Transient, "", err)
	}
	return out, nil
}

type searchRequest struct {
	BBox        geo.BoundingBox `json:"bbox"`
	Start       string          `json:"start"`
	End         string          `json:"end"`
	MaxCloudPct float64         `json:"maxCloudPct"`
}

func (c *HTTPImageryClient) Search(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, maxCloudPct float64) ([]Acquisition, error) {
	call := func(ctx context.Context) ([]Acquisition, error) {
		body, _ := json.Marshal(searchRequest{BBox: bbox, Start: start.Format("2006-01-02"), End: end.Format("2006-01-02"), MaxCloudPct: maxCloudPct})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
		if err != nil {
			return nil, errkind.New(errkind.InvalidInput, "", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errkind.New(errkind.Transient, "", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, errkind.New(errkind.Transient, "", fmt.Errorf("imagery search %s", resp.Status))
		}
		var out []Acquisition
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, errkind.New(errkind.Transient, "", err)
		}
		return out, nil
	}
	return withRetry(ctx, c.retry, errkind.ImageryUnavailable, call)
}

type timeSeriesRequest struct {
	BBox     geo.BoundingBox `json:"bbox"`
	Start    string          `json:"start"`
	End      string          `json:"end"`
	StepDays int             `json:"stepDays"`
}

func (c *HTTPImageryClient) TimeSeries(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, stepDays int) ([]SeriesPoint, error) {
	call := func(ctx context.Context) ([]SeriesPoint, error) {
		body, _ := json.Marshal(timeSeriesRequest{BBox: bbox, Start: start.Format("2006-01-02"), End: end.Format("2006-01-02"), StepDays: stepDays})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/time-series", bytes.NewReader(body))
		if err != nil {
			return nil, errkind.New(errkind.InvalidInput, "", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, errkind.New(errkind.Transient, "", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, errkind.New(errkind.Transient, "", fmt.Errorf("imagery time-series %s", resp.Status))
		}
		var out []SeriesPoint
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, errkind.New(errkind.Transient, "", err)
		}
		return out, nil
	}
	return withRetry(ctx, c.retry, errkind.ImageryUnavailable, call)
}
