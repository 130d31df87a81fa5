package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/demeterfield/pipeline/internal/alerts"
	"github.com/demeterfield/pipeline/internal/analysis"
	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/geo"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/demeterfield/pipeline/internal/notify"
	"github.com/demeterfield/pipeline/internal/orchestrator"
	"github.com/demeterfield/pipeline/internal/planner"
	"github.com/demeterfield/pipeline/internal/providers"
	"github.com/demeterfield/pipeline/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImagery struct{}

func (fakeImagery) Search(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, maxCloudPct float64) ([]providers.Acquisition, error) {
	return nil, nil
}
func (fakeImagery) Indices(ctx context.Context, bbox geo.BoundingBox, date time.Time) (models.VegetationIndices, error) {
	return models.VegetationIndices{NDVIMean: 0.5, NDVIMin: 0.3, NDVIMax: 0.7, NDVIMedian: 0.5, NDVIStdDev: 0.05, EVI: 0.4, SAVI: 0.45, NDRE: 0.3}, nil
}
func (fakeImagery) TimeSeries(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, stepDays int) ([]providers.SeriesPoint, error) {
	return nil, nil
}

type fakeWeather struct{}

func (fakeWeather) Current(ctx context.Context, lat, lng float64) (models.CurrentWeather, error) {
	return models.CurrentWeather{}, errkind.New(errkind.WeatherUnavailable, "", nil)
}
func (fakeWeather) Forecast(ctx context.Context, lat, lng float64, days int) ([]models.DailyForecast, error) {
	return nil, errkind.New(errkind.WeatherUnavailable, "", nil)
}
func (fakeWeather) Aggregate(ctx context.Context, lat, lng float64, window time.Duration) (models.AggregatedWeatherData, error) {
	return models.AggregatedWeatherData{}, errkind.New(errkind.WeatherUnavailable, "", nil)
}

func newTestScheduler(persistence *store.MemStore) *Scheduler {
	log := zerolog.Nop()
	engine := analysis.New(fakeImagery{}, persistence, config.ImageryConfig{MaxCloudPct: 30}, config.AnalysisConfig{PerFieldTimeout: time.Second}, log)
	sink := notify.NewWebhookSink("", log)
	alertEng := alerts.New(persistence, sink, config.AlertsConfig{DedupWindow: 24 * time.Hour, DispatchCriticalAndAboveOnly: true}, config.WeatherThresholds{FrostC: 2, HeatC: 35, WindMps: 15, PrecipProbPct: 80, DryDaysDrought: 7}, log)
	p := planner.New(config.PlannerConfig{ZoneMultipliers: map[string]config.ZoneMultiplier{}})
	runner := orchestrator.New(engine, alertEng, p, fakeWeather{}, persistence, config.AnalysisConfig{Concurrency: 4}, log)
	return New(runner, persistence, config.SchedulerConfig{CronExpression: "0 0 1 1 *", ScanTimeout: 5 * time.Second, MaxConcurrent: 2}, log)
}

func TestScheduler_RunNow_ScansEveryKnownFarm(t *testing.T) {
	persistence := store.NewMemStore()
	persistence.SeedFields("farmA", []models.FieldBoundary{{ID: "f1", FarmID: "farmA", AreaHa: 10, Vertices: []geo.Vertex{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0}}}})
	persistence.SeedFields("farmB", []models.FieldBoundary{{ID: "f2", FarmID: "farmB", AreaHa: 10, Vertices: []geo.Vertex{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0}}}})

	s := newTestScheduler(persistence)
	s.RunNow(context.Background())

	for _, fieldID := range []string{"f1", "f2"} {
		latest, err := persistence.GetLatestAnalysis(context.Background(), fieldID)
		require.NoError(t, err)
		assert.NotNil(t, latest)
	}
}

func TestScheduler_RunNow_NoFarmsIsNoOp(t *testing.T) {
	persistence := store.NewMemStore()
	s := newTestScheduler(persistence)
	s.RunNow(context.Background())
}

func TestScheduler_StartStop_IsIdempotent(t *testing.T) {
	persistence := store.NewMemStore()
	s := newTestScheduler(persistence)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop()
}
