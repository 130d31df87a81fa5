package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/demeterfield/pipeline/internal/alerts"
	"github.com/demeterfield/pipeline/internal/analysis"
	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/geo"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/demeterfield/pipeline/internal/notify"
	"github.com/demeterfield/pipeline/internal/planner"
	"github.com/demeterfield/pipeline/internal/providers"
	"github.com/demeterfield/pipeline/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingImagery struct {
	calls int32
}

func (c *countingImagery) Search(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, maxCloudPct float64) ([]providers.Acquisition, error) {
	return nil, nil
}

func (c *countingImagery) Indices(ctx context.Context, bbox geo.BoundingBox, date time.Time) (models.VegetationIndices, error) {
	atomic.AddInt32(&c.calls, 1)
	return models.VegetationIndices{NDVIMean: 0.5, NDVIMin: 0.3, NDVIMax: 0.7, NDVIMedian: 0.5, NDVIStdDev: 0.05, EVI: 0.4, SAVI: 0.45, NDRE: 0.3}, nil
}

func (c *countingImagery) TimeSeries(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, stepDays int) ([]providers.SeriesPoint, error) {
	return nil, nil
}

type noopWeather struct{}

func (noopWeather) Current(ctx context.Context, lat, lng float64) (models.CurrentWeather, error) {
	return models.CurrentWeather{}, errkind.New(errkind.WeatherUnavailable, "", nil)
}
func (noopWeather) Forecast(ctx context.Context, lat, lng float64, days int) ([]models.DailyForecast, error) {
	return nil, errkind.New(errkind.WeatherUnavailable, "", nil)
}
func (noopWeather) Aggregate(ctx context.Context, lat, lng float64, window time.Duration) (models.AggregatedWeatherData, error) {
	return models.AggregatedWeatherData{}, errkind.New(errkind.WeatherUnavailable, "", nil)
}

func squareField(id, farmID string) models.FieldBoundary {
	return models.FieldBoundary{
		ID: id, FarmID: farmID, AreaHa: 30,
		Vertices: []geo.Vertex{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0}},
	}
}

func newTestOrchestrator(t *testing.T, imagery providers.ImageryProvider) (*Orchestrator, *store.MemStore) {
	persistence := store.NewMemStore()
	log := zerolog.Nop()
	engine := analysis.New(imagery, persistence, config.ImageryConfig{MaxCloudPct: 30}, config.AnalysisConfig{PerFieldTimeout: 2 * time.Second}, log)
	sink := notify.NewWebhookSink("", log)
	alertCfg := config.AlertsConfig{DedupWindow: 24 * time.Hour, DispatchCriticalAndAboveOnly: true}
	wxCfg := config.WeatherThresholds{FrostC: 2, HeatC: 35, WindMps: 15, PrecipProbPct: 80, DryDaysDrought: 7}
	alertEng := alerts.New(persistence, sink, alertCfg, wxCfg, log)
	p := planner.New(config.PlannerConfig{ZoneMultipliers: map[string]config.ZoneMultiplier{}})

	o := New(engine, alertEng, p, noopWeather{}, persistence, config.AnalysisConfig{Concurrency: 4}, log)
	return o, persistence
}

func TestOrchestrator_RunFarmAnalysis_ProducesBundleForAllFields(t *testing.T) {
	imagery := &countingImagery{}
	o, persistence := newTestOrchestrator(t, imagery)
	persistence.SeedFields("farm1", []models.FieldBoundary{squareField("f1", "farm1"), squareField("f2", "farm1"), squareField("f3", "farm1")})

	bundle, err := o.RunFarmAnalysis(context.Background(), "farm1", Options{AnalysisDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Len(t, bundle.Results, 3)
	assert.Empty(t, bundle.Failures)
	assert.Equal(t, 3, bundle.Summary.TotalFields)
}

func TestOrchestrator_RunFarmAnalysis_NoFieldsIsTopLevelError(t *testing.T) {
	o, _ := newTestOrchestrator(t, &countingImagery{})
	_, err := o.RunFarmAnalysis(context.Background(), "emptyfarm", Options{})
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
}

func TestOrchestrator_RunFarmAnalysis_IsolatesPerFieldFailure(t *testing.T) {
	failing := &failingOnceImagery{failFieldIndex: 1}
	o, persistence := newTestOrchestrator(t, failing)
	persistence.SeedFields("farm1", []models.FieldBoundary{squareField("f1", "farm1"), squareField("f2", "farm1")})

	bundle, err := o.RunFarmAnalysis(context.Background(), "farm1", Options{AnalysisDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Len(t, bundle.Results, 1)
	require.Len(t, bundle.Failures, 1)
}

type failingOnceImagery struct {
	failFieldIndex int32
	calls          int32
}

func (f *failingOnceImagery) Search(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, maxCloudPct float64) ([]providers.Acquisition, error) {
	return nil, nil
}

func (f *failingOnceImagery) Indices(ctx context.Context, bbox geo.BoundingBox, date time.Time) (models.VegetationIndices, error) {
	idx := atomic.AddInt32(&f.calls, 1) - 1
	if idx == f.failFieldIndex {
		return models.VegetationIndices{}, errkind.New(errkind.ImageryUnavailable, "", nil)
	}
	return models.VegetationIndices{NDVIMean: 0.6, NDVIMin: 0.4, NDVIMax: 0.8, NDVIMedian: 0.6, NDVIStdDev: 0.05, EVI: 0.4, SAVI: 0.45, NDRE: 0.3}, nil
}

func (f *failingOnceImagery) TimeSeries(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, stepDays int) ([]providers.SeriesPoint, error) {
	return nil, nil
}

// slowImagery blocks its first Indices call until release is closed, so a
// test can line up concurrent callers before letting the single underlying
// call complete.
type slowImagery struct {
	calls   int32
	release chan struct{}
}

func (s *slowImagery) Search(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, maxCloudPct float64) ([]providers.Acquisition, error) {
	return nil, nil
}

func (s *slowImagery) Indices(ctx context.Context, bbox geo.BoundingBox, date time.Time) (models.VegetationIndices, error) {
	atomic.AddInt32(&s.calls, 1)
	<-s.release
	return models.VegetationIndices{NDVIMean: 0.6, NDVIMin: 0.4, NDVIMax: 0.8, NDVIMedian: 0.6, NDVIStdDev: 0.05, EVI: 0.4, SAVI: 0.45, NDRE: 0.3}, nil
}

func (s *slowImagery) TimeSeries(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, stepDays int) ([]providers.SeriesPoint, error) {
	return nil, nil
}

// TestOrchestrator_ConcurrentCallsForSameFieldAndDateCoalesce exercises
// spec.md §8 Scenario 3: three concurrent analyze_field calls for the same
// (fieldId, analysisDate) must share one underlying imagery fetch via the
// orchestrator's singleflight gate.
func TestOrchestrator_ConcurrentCallsForSameFieldAndDateCoalesce(t *testing.T) {
	imagery := &slowImagery{release: make(chan struct{})}
	o, _ := newTestOrchestrator(t, imagery)

	field := squareField("f1", "farm1")
	date := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	fields := []models.FieldBoundary{field, field, field}

	done := make(chan []fieldOutcome, 1)
	go func() {
		done <- o.analyzeFields(context.Background(), fields, 3, date)
	}()

	// Give all three workers a chance to reach the single-flight gate
	// before releasing the blocked call.
	time.Sleep(50 * time.Millisecond)
	close(imagery.release)

	outcomes := <-done
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		require.NoError(t, o.err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&imagery.calls))
}
