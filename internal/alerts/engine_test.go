package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/demeterfield/pipeline/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	dispatched []models.Alert
}

func (f *fakeSink) Dispatch(ctx context.Context, alert models.Alert) error {
	f.dispatched = append(f.dispatched, alert)
	return nil
}

func defaultCfg() (config.AlertsConfig, config.WeatherThresholds) {
	return config.AlertsConfig{
			DedupWindow:                  24 * time.Hour,
			DispatchCriticalAndAboveOnly: true,
		}, config.WeatherThresholds{
			FrostC:         2,
			HeatC:          35,
			WindMps:        15,
			PrecipProbPct:  80,
			DryDaysDrought: 7,
		}
}

func TestEngine_Evaluate_DroughtCriticalEmitsCriticalAndDispatches(t *testing.T) {
	persistence := store.NewMemStore()
	sink := &fakeSink{}
	cfg, wxCfg := defaultCfg()
	engine := New(persistence, sink, cfg, wxCfg, zerolog.Nop())

	result := models.AnalysisResult{
		FieldID: "f1", FarmID: "farm1", HealthScore: 20,
		Zones:      models.ZonePartition{Stressed: models.ZoneShare{Percentage: 70}},
		AlertSeeds: []models.AlertSeed{{Kind: models.AlertDroughtCritical, Score: 0.85}},
	}

	out, err := engine.Evaluate(context.Background(), "farm1", []models.AnalysisResult{result}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.SeverityCritical, out[0].Severity)
	assert.Equal(t, 5, out[0].Urgency) // critical=4, +1 for affected>50%
	require.Len(t, sink.dispatched, 1)
}

func TestEngine_Evaluate_DedupWithinWindowUpdatesExisting(t *testing.T) {
	persistence := store.NewMemStore()
	sink := &fakeSink{}
	cfg, wxCfg := defaultCfg()
	engine := New(persistence, sink, cfg, wxCfg, zerolog.Nop())

	result := models.AnalysisResult{
		FieldID: "f1", FarmID: "farm1", HealthScore: 25,
		AlertSeeds: []models.AlertSeed{{Kind: models.AlertDroughtCritical, Score: 0.82}},
	}

	first, err := engine.Evaluate(context.Background(), "farm1", []models.AnalysisResult{result}, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	result.AlertSeeds[0].Score = 0.95 // escalates to emergency
	second, err := engine.Evaluate(context.Background(), "farm1", []models.AnalysisResult{result}, nil)
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, models.SeverityEmergency, second[0].Severity)

	active, err := persistence.GetActiveAlertsByKind(context.Background(), "f1", models.AlertDroughtCritical)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestEngine_EvaluateWeather_FrostScenario(t *testing.T) {
	persistence := store.NewMemStore()
	sink := &fakeSink{}
	cfg, wxCfg := defaultCfg()
	engine := New(persistence, sink, cfg, wxCfg, zerolog.Nop())

	wx := WeatherContext{
		FieldID: "f1",
		Current: models.CurrentWeather{TemperatureC: 1, HumidityPct: 88, WindMps: 2},
		Forecast: []models.DailyForecast{
			{MinTemperatureC: -1, MaxTemperatureC: 10},
		},
	}

	out, err := engine.Evaluate(context.Background(), "farm1", []models.AnalysisResult{{FieldID: "f1", FarmID: "farm1"}}, map[string]WeatherContext{"f1": wx})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.AlertFrost, out[0].Kind)
	assert.GreaterOrEqual(t, out[0].Confidence, 0.9)
}

func TestEngine_Acknowledge_And_Resolve(t *testing.T) {
	persistence := store.NewMemStore()
	sink := &fakeSink{}
	cfg, wxCfg := defaultCfg()
	engine := New(persistence, sink, cfg, wxCfg, zerolog.Nop())

	result := models.AnalysisResult{
		FieldID: "f1", FarmID: "farm1", HealthScore: 15,
		AlertSeeds: []models.AlertSeed{{Kind: models.AlertGeneralDecline, Score: 0.85}},
	}
	out, err := engine.Evaluate(context.Background(), "farm1", []models.AnalysisResult{result}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	acked, err := engine.Acknowledge(context.Background(), out[0].ID, "operator")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)

	resolved, err := engine.Resolve(context.Background(), out[0].ID, "operator", "treated")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
}
