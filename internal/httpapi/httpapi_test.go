package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

type stubImagery struct{}

func (stubImagery) Search(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, maxCloudPct float64) ([]providers.Acquisition, error) {
	return nil, nil
}
func (stubImagery) Indices(ctx context.Context, bbox geo.BoundingBox, date time.Time) (models.VegetationIndices, error) {
	return models.VegetationIndices{NDVIMean: 0.5, NDVIMin: 0.3, NDVIMax: 0.7, NDVIMedian: 0.5, NDVIStdDev: 0.05, EVI: 0.4, SAVI: 0.45, NDRE: 0.3}, nil
}
func (stubImagery) TimeSeries(ctx context.Context, bbox geo.BoundingBox, start, end time.Time, stepDays int) ([]providers.SeriesPoint, error) {
	return nil, nil
}

type stubWeather struct{}

func (stubWeather) Current(ctx context.Context, lat, lng float64) (models.CurrentWeather, error) {
	return models.CurrentWeather{}, errkind.New(errkind.WeatherUnavailable, "", nil)
}
func (stubWeather) Forecast(ctx context.Context, lat, lng float64, days int) ([]models.DailyForecast, error) {
	return nil, errkind.New(errkind.WeatherUnavailable, "", nil)
}
func (stubWeather) Aggregate(ctx context.Context, lat, lng float64, window time.Duration) (models.AggregatedWeatherData, error) {
	return models.AggregatedWeatherData{}, errkind.New(errkind.WeatherUnavailable, "", nil)
}

func testServer() (*Server, *store.MemStore) {
	persistence := store.NewMemStore()
	log := zerolog.Nop()
	engine := analysis.New(stubImagery{}, persistence, config.ImageryConfig{MaxCloudPct: 30}, config.AnalysisConfig{PerFieldTimeout: time.Second}, log)
	sink := notify.NewWebhookSink("", log)
	alertEng := alerts.New(persistence, sink, config.AlertsConfig{DedupWindow: 24 * time.Hour, DispatchCriticalAndAboveOnly: true}, config.WeatherThresholds{FrostC: 2, HeatC: 35, WindMps: 15, PrecipProbPct: 80, DryDaysDrought: 7}, log)
	p := planner.New(config.PlannerConfig{ZoneMultipliers: map[string]config.ZoneMultiplier{}})
	o := orchestrator.New(engine, alertEng, p, stubWeather{}, persistence, config.AnalysisConfig{Concurrency: 4}, log)
	return New(o, engine, alertEng, p, persistence, log), persistence
}

func TestServer_HandleRunFarmAnalysis_NoFieldsReturns400(t *testing.T) {
	srv, _ := testServer()
	req := httptest.NewRequest(http.MethodPost, "/api/farms/empty/analyze", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HandleRunFarmAnalysis_Succeeds(t *testing.T) {
	srv, persistence := testServer()
	persistence.SeedFields("farm1", []models.FieldBoundary{{
		ID: "f1", FarmID: "farm1", AreaHa: 20,
		Vertices: []geo.Vertex{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 1}, {Lat: 1, Lng: 0}},
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/farms/farm1/analyze", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var bundle models.FarmAnalysisBundle
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&bundle))
	assert.Len(t, bundle.Results, 1)
}

func TestServer_HandleAcknowledgeAlert_NotFoundReturns404(t *testing.T) {
	srv, _ := testServer()
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/missing/acknowledge", bytes.NewReader([]byte(`{"user":"operator"}`)))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_OpenAPIDocumentServed(t *testing.T) {
	srv, _ := testServer()
	req := httptest.NewRequest(http.MethodGet, "/api/openapi.yaml", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi:")
}
