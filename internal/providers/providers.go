// Package providers defines the capability interfaces the core
// consumes for satellite imagery and weather data (spec.md §4.C/§4.D),
// plus resilient HTTP-backed implementations. Per spec.md §9's
// "polymorphic providers" guidance, the core only ever depends on
// these narrow interfaces — concrete HTTP client types never leak
// into the analysis/alert/planner packages.
package providers

import (
	"context"
	"time"

	"github.com/demeterfield/pipeline/internal/geo"
	"github.com/demeterfield/pipeline/internal/models"
)

// Acquisition is one candidate satellite pass over a bounding box.
type Acquisition struct {
	ID         string
	Date       time.Time
	CloudPct   float64
	Resolution float64
}

// SeriesPoint is one sample of an NDVI time series.
type SeriesPoint struct {
	Date     time.Time
	NDVIMean float64
	CloudPct float64
}

// ImageryProvider is the capability interface the Analysis Engine
// consumes (spec.md §4.C).
type ImageryProvider interface {
	Search(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, maxCloudPct float64) ([]Acquisition, error)
	Indices(ctx context.Context, bbox geo.BoundingBox, date time.Time) (models.VegetationIndices, error)
	TimeSeries(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, stepDays int) ([]SeriesPoint, error)
}

// WeatherProvider is the capability interface the Orchestrator
// consumes to build the Alert Engine's weather context (spec.md §4.D).
type WeatherProvider interface {
	Current(ctx context.Context, lat, lng float64) (models.CurrentWeather, error)
	Forecast(ctx context.Context, lat, lng float64, days int) ([]models.DailyForecast, error)
	Aggregate(ctx context.Context, lat, lng float64, window time.Duration) (models.AggregatedWeatherData, error)
}
