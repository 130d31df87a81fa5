// Package alerts implements the Alert Engine (spec.md §4.F): it turns
// the Analysis Engine's seeded stress scores and a field's weather
// context into materialized, deduplicated StressAlert/WeatherAlert
// records, drives their acknowledge/resolve state machine, and
// dispatches critical-and-above alerts through a NotificationSink.
package alerts

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/demeterfield/pipeline/internal/notify"
	"github.com/demeterfield/pipeline/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WeatherContext bundles one field's current/forecast/aggregated
// weather so the Alert Engine can evaluate the weather-driven alert
// kinds alongside the crop-stress kinds of the same evaluation pass.
type WeatherContext struct {
	FieldID    string
	Current    models.CurrentWeather
	Forecast   []models.DailyForecast
	Aggregated models.AggregatedWeatherData
	// RuleBased is set when the forecast or aggregate read failed;
	// Current is still a live read, and the failed part is left at
	// its zero value (spec.md §7 — WeatherUnavailable falls back to
	// rule-based alerts, confidence tagged accordingly).
	RuleBased bool
}

type Engine struct {
	store  store.PersistenceStore
	sink   notify.Sink
	cfg    config.AlertsConfig
	wxCfg  config.WeatherThresholds
	log    zerolog.Logger
}

func New(persistence store.PersistenceStore, sink notify.Sink, cfg config.AlertsConfig, wxCfg config.WeatherThresholds, log zerolog.Logger) *Engine {
	return &Engine{
		store: persistence,
		sink:  sink,
		cfg:   cfg,
		wxCfg: wxCfg,
		log:   log.With().Str("component", "alert_engine").Logger(),
	}
}

// Evaluate processes every AnalysisResult's seeded crop alerts and,
// where a WeatherContext is supplied for that field, the weather-
// driven kinds — materializing, deduplicating, and dispatching each
// (spec.md §4.F).
func (e *Engine) Evaluate(ctx context.Context, farmID string, analyses []models.AnalysisResult, weather map[string]WeatherContext) ([]models.Alert, error) {
	var out []models.Alert

	for _, result := range analyses {
		for _, seed := range result.AlertSeeds {
			alert, err := e.materializeCropAlert(ctx, farmID, result, seed)
			if err != nil {
				e.log.Warn().Err(err).Str("fieldId", result.FieldID).Msg("failed to materialize crop alert")
				continue
			}
			out = append(out, alert)
		}

		if wx, ok := weather[result.FieldID]; ok {
			weatherAlerts, err := e.evaluateWeather(ctx, farmID, result.FieldID, wx)
			if err != nil {
				e.log.Warn().Err(err).Str("fieldId", result.FieldID).Msg("failed to evaluate weather alerts")
				continue
			}
			out = append(out, weatherAlerts...)
		}
	}

	return out, nil
}

func (e *Engine) materializeCropAlert(ctx context.Context, farmID string, result models.AnalysisResult, seed models.AlertSeed) (models.Alert, error) {
	severity := severityForCropKind(seed.Kind, seed.Score, result.HealthScore)
	affectedPct := result.Zones.Stressed.Percentage + result.Zones.Moderate.Percentage

	alert := models.Alert{
		FarmID:          farmID,
		FieldID:         result.FieldID,
		Kind:            seed.Kind,
		Severity:        severity,
		Urgency:         urgencyFor(severity, affectedPct),
		AffectedAreaPct: affectedPct,
		Status:          models.AlertStatusActive,
		DetectedAt:      time.Now().UTC(),
	}

	if result.Comparison != nil {
		alert.SatelliteContext = &models.SatelliteContext{
			NDVI:      result.Indices.NDVIMean,
			PriorNDVI: result.Indices.NDVIMean - result.Comparison.DeltaMeanNDVI,
			Delta:     result.Comparison.DeltaMeanNDVI,
			Trend:     result.Comparison.Trend,
		}
	}

	if loss, ok := estimatedLoss(seed.Kind, result.FieldID, affectedPct, result.HealthScore, alert.DetectedAt); ok {
		alert.EstimatedLossUSD = &loss
	}

	alert.ActionItems = actionItemsFor(seed.Kind, severity)

	return e.upsertWithDedup(ctx, alert)
}

func (e *Engine) evaluateWeather(ctx context.Context, farmID, fieldID string, wx WeatherContext) ([]models.Alert, error) {
	var results []models.Alert
	now := time.Now().UTC()

	confidence := 1.0
	if wx.RuleBased {
		confidence = 0.6
	}

	tryEmit := func(kind models.AlertKind, severity models.Severity, window models.TimeWindow) error {
		affectedPct := 100.0
		alert := models.Alert{
			FarmID:          farmID,
			FieldID:         fieldID,
			Kind:            kind,
			Severity:        severity,
			Urgency:         urgencyFor(severity, affectedPct),
			AffectedAreaPct: affectedPct,
			WeatherContext: &models.WeatherContext{
				TemperatureC: wx.Current.TemperatureC,
				HumidityPct:  wx.Current.HumidityPct,
				WindMps:      wx.Current.WindMps,
				Confidence:   confidenceLabel(wx.RuleBased),
			},
			Confidence:   confidence,
			ActiveWindow: &window,
			ActionItems:  actionItemsFor(kind, severity),
			Status:       models.AlertStatusActive,
			DetectedAt:   now,
		}
		materialized, err := e.upsertWithDedup(ctx, alert)
		if err != nil {
			return err
		}
		results = append(results, materialized)
		return nil
	}

	forecastMin := math.MaxFloat64
	forecastMax := -math.MaxFloat64
	precipMax := 0.0
	for _, d := range wx.Forecast {
		if d.MinTemperatureC < forecastMin {
			forecastMin = d.MinTemperatureC
		}
		if d.MaxTemperatureC > forecastMax {
			forecastMax = d.MaxTemperatureC
		}
		if d.PrecipProbPct > precipMax {
			precipMax = d.PrecipProbPct
		}
	}

	// frost
	frostTrigger := (wx.Current.TemperatureC <= e.wxCfg.FrostC && wx.Current.HumidityPct >= 80 && wx.Current.WindMps <= 3) ||
		(len(wx.Forecast) > 0 && forecastMin <= e.wxCfg.FrostC)
	if frostTrigger {
		gap := e.wxCfg.FrostC - wx.Current.TemperatureC
		if len(wx.Forecast) > 0 && e.wxCfg.FrostC-forecastMin > gap {
			gap = e.wxCfg.FrostC - forecastMin
		}
		if err := tryEmit(models.AlertFrost, severityByGap(gap), activeWindow(now)); err != nil {
			return nil, err
		}
	}

	// heat
	heatTrigger := wx.Current.TemperatureC >= e.wxCfg.HeatC || (len(wx.Forecast) > 0 && forecastMax >= e.wxCfg.HeatC)
	if heatTrigger {
		gap := wx.Current.TemperatureC - e.wxCfg.HeatC
		if len(wx.Forecast) > 0 && forecastMax-e.wxCfg.HeatC > gap {
			gap = forecastMax - e.wxCfg.HeatC
		}
		if err := tryEmit(models.AlertHeat, severityByGap(gap), activeWindow(now)); err != nil {
			return nil, err
		}
	}

	// wind
	if wx.Current.WindMps >= e.wxCfg.WindMps {
		ratio := wx.Current.WindMps / e.wxCfg.WindMps
		if err := tryEmit(models.AlertWind, severityByRatio(ratio), activeWindow(now)); err != nil {
			return nil, err
		}
	}

	// flood
	if precipMax > e.wxCfg.PrecipProbPct {
		severity := models.SeverityHigh
		switch {
		case precipMax >= 95:
			severity = models.SeverityEmergency
		case precipMax >= 90:
			severity = models.SeverityCritical
		}
		if err := tryEmit(models.AlertFlood, severity, activeWindow(now)); err != nil {
			return nil, err
		}
	}

	// drought (weather)
	if wx.Aggregated.DryDayCount >= e.wxCfg.DryDaysDrought && wx.Aggregated.IrrigationNeed {
		ratio := float64(wx.Aggregated.DryDayCount) / 14.0
		if err := tryEmit(models.AlertDrought, severityByDroughtRatio(ratio), activeWindow(now)); err != nil {
			return nil, err
		}
	}

	// fire risk
	fireIndex := (wx.Current.TemperatureC-15)*2 + (100 - wx.Current.HumidityPct) + wx.Current.WindMps*3 + float64(wx.Aggregated.DryDayCount)*2
	if fireIndex >= 100 {
		severity := models.SeverityHigh
		switch {
		case fireIndex >= 150:
			severity = models.SeverityEmergency
		case fireIndex >= 125:
			severity = models.SeverityCritical
		}
		if err := tryEmit(models.AlertFireRisk, severity, activeWindow(now)); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func activeWindow(now time.Time) models.TimeWindow {
	return models.TimeWindow{Start: now, End: now.Add(48 * time.Hour)}
}

func confidenceLabel(ruleBased bool) string {
	if ruleBased {
		return "rule_based"
	}
	return "provider"
}

// upsertWithDedup implements spec.md §4.F's deduplication rule: within
// the dedup window, update the existing active/acknowledged alert
// (severity monotonically non-decreasing) instead of creating a
// duplicate; dispatch only fires for a genuinely new or escalated
// alert.
func (e *Engine) upsertWithDedup(ctx context.Context, alert models.Alert) (models.Alert, error) {
	existing, err := e.store.GetActiveAlertsByKind(ctx, alert.FieldID, alert.Kind)
	if err != nil {
		return models.Alert{}, errkind.New(errkind.Transient, alert.FieldID, err)
	}

	var match *models.Alert
	for i := range existing {
		if time.Since(existing[i].DetectedAt) <= e.cfg.DedupWindow {
			match = &existing[i]
			break
		}
	}

	escalated := true
	if match != nil {
		alert.ID = match.ID
		alert.Status = match.Status
		alert.AcknowledgedBy = match.AcknowledgedBy
		alert.Severity = models.MaxSeverity(match.Severity, alert.Severity)
		alert.Urgency = urgencyFor(alert.Severity, alert.AffectedAreaPct)
		escalated = alert.Severity != match.Severity
	} else {
		alert.ID = uuid.NewString()
	}

	saved, _, err := e.store.UpsertAlert(ctx, alert)
	if err != nil {
		return models.Alert{}, errkind.New(errkind.Transient, alert.FieldID, err)
	}

	if shouldDispatch(saved.Severity, e.cfg.DispatchCriticalAndAboveOnly) && (match == nil || escalated) {
		if err := e.sink.Dispatch(ctx, saved); err != nil {
			e.log.Warn().Err(err).Str("alertId", saved.ID).Msg("notification dispatch failed")
		}
	}

	return saved, nil
}

func shouldDispatch(severity models.Severity, criticalAndAboveOnly bool) bool {
	if !criticalAndAboveOnly {
		return true
	}
	return severity == models.SeverityCritical || severity == models.SeverityEmergency
}

// Acknowledge, Resolve and MarkFalsePositive set the alert's status
// through the store. Acknowledge records the user only; Resolve and
// MarkFalsePositive record the user, the note and a resolution
// timestamp. The current status is not checked, so an alert that is
// already resolved or false_positive can be moved to any status again.
func (e *Engine) Acknowledge(ctx context.Context, alertID, user string) (models.Alert, error) {
	return e.store.UpdateAlertState(ctx, alertID, models.AlertStatusAcknowledged, user, "")
}

func (e *Engine) Resolve(ctx context.Context, alertID, user, note string) (models.Alert, error) {
	return e.store.UpdateAlertState(ctx, alertID, models.AlertStatusResolved, user, note)
}

func (e *Engine) MarkFalsePositive(ctx context.Context, alertID, user, note string) (models.Alert, error) {
	return e.store.UpdateAlertState(ctx, alertID, models.AlertStatusFalsePositive, user, note)
}

// --- severity / urgency / loss formulas (spec.md §4.F) ---

func severityForCropKind(kind models.AlertKind, score float64, healthScore int) models.Severity {
	switch kind {
	case models.AlertDroughtCritical:
		if score > 0.9 {
			return models.SeverityEmergency
		}
		return models.SeverityCritical
	case models.AlertDiseaseOutbreak, models.AlertNutrientSevere:
		if score > 0.85 {
			return models.SeverityCritical
		}
		return models.SeverityHigh
	case models.AlertGeneralDecline:
		if healthScore < 20 {
			return models.SeverityCritical
		}
		return models.SeverityHigh
	default:
		return models.SeverityModerate
	}
}

func severityByGap(gap float64) models.Severity {
	switch {
	case gap >= 5:
		return models.SeverityEmergency
	case gap >= 3:
		return models.SeverityCritical
	case gap >= 1:
		return models.SeverityHigh
	default:
		return models.SeverityModerate
	}
}

func severityByRatio(ratio float64) models.Severity {
	switch {
	case ratio >= 2:
		return models.SeverityEmergency
	case ratio >= 1.5:
		return models.SeverityCritical
	default:
		return models.SeverityHigh
	}
}

func severityByDroughtRatio(ratio float64) models.Severity {
	switch {
	case ratio >= 1:
		return models.SeverityEmergency
	case ratio >= 0.75:
		return models.SeverityCritical
	default:
		return models.SeverityHigh
	}
}

func urgencyFor(severity models.Severity, affectedAreaPct float64) int {
	base := map[models.Severity]int{
		models.SeverityEmergency: 5,
		models.SeverityCritical:  4,
		models.SeverityHigh:      3,
		models.SeverityModerate:  2,
		models.SeverityMinor:     1,
	}[severity]

	if affectedAreaPct > 50 {
		base++
	}
	if base > 5 {
		base = 5
	}
	return base
}

// estimatedLoss implements the per-kind loss formulas of spec.md
// §4.F. The drought formula needs a reproducible random factor seeded
// from (fieldId, alert_kind, day_bucket) — never a wall-clock seed
// (spec.md §9).
func estimatedLoss(kind models.AlertKind, fieldID string, affectedAreaPct float64, healthScore int, detectedAt time.Time) (float64, bool) {
	affectedFraction := affectedAreaPct / 100

	switch kind {
	case models.AlertDroughtCritical:
		basePerAcre := 300.0
		factor := seededRandFactor(fieldID, kind, detectedAt) * 0.5
		return basePerAcre * affectedFraction * (1 + factor), true
	case models.AlertDiseaseOutbreak:
		return 275 + 100*affectedFraction, true
	case models.AlertNutrientSevere:
		return 175 + 80*affectedFraction, true
	case models.AlertGeneralDecline:
		maxLoss := 400.0
		return maxLoss * float64(100-healthScore) / 100, true
	default:
		return 0, false
	}
}

// seededRandFactor derives a value in [0, 1) deterministically from
// (fieldId, alert_kind, day_bucket), so loss estimates computed
// multiple times for the same alert on the same day are reproducible.
func seededRandFactor(fieldID string, kind models.AlertKind, detectedAt time.Time) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fieldID))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(kind))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(detectedAt.Format("2006-01-02")))
	seed := int64(h.Sum64())
	r := rand.New(rand.NewSource(seed))
	return r.Float64()
}

func actionItemsFor(kind models.AlertKind, severity models.Severity) []models.ActionItem {
	priority := models.PriorityWithinWeek
	if severity == models.SeverityCritical || severity == models.SeverityEmergency {
		priority = models.PriorityImmediate
	} else if severity == models.SeverityHigh {
		priority = models.PriorityWithin24h
	}

	switch kind {
	case models.AlertDroughtCritical, models.AlertDrought:
		return []models.ActionItem{
			{Task: "Activate irrigation system", Priority: priority, EstimatedCost: 150, Equipment: []string{"pivot irrigation", "soil moisture sensor"}},
		}
	case models.AlertDiseaseOutbreak:
		return []models.ActionItem{
			{Task: "Apply targeted fungicide treatment", Priority: priority, EstimatedCost: 220, Equipment: []string{"sprayer"}},
		}
	case models.AlertNutrientSevere:
		return []models.ActionItem{
			{Task: "Apply corrective fertilizer per soil test", Priority: priority, EstimatedCost: 180, Equipment: []string{"variable-rate spreader"}},
		}
	case models.AlertGeneralDecline:
		return []models.ActionItem{
			{Task: "Schedule agronomist field inspection", Priority: priority, EstimatedCost: 90},
		}
	case models.AlertFrost:
		return []models.ActionItem{
			{Task: "Cover sensitive plants", Priority: models.PriorityImmediate, EstimatedCost: 50},
			{Task: "Run irrigation for protective ice layer", Priority: models.PriorityImmediate, EstimatedCost: 75, Equipment: []string{"overhead sprinklers"}},
		}
	case models.AlertHeat:
		return []models.ActionItem{
			{Task: "Increase irrigation frequency", Priority: priority, EstimatedCost: 100},
		}
	case models.AlertWind:
		return []models.ActionItem{
			{Task: "Inspect and secure trellising/structures", Priority: priority, EstimatedCost: 60},
		}
	case models.AlertFlood:
		return []models.ActionItem{
			{Task: "Clear drainage channels", Priority: models.PriorityImmediate, EstimatedCost: 120},
		}
	case models.AlertFireRisk:
		return []models.ActionItem{
			{Task: "Clear dry vegetation from field margins", Priority: models.PriorityImmediate, EstimatedCost: 200},
		}
	default:
		return nil
	}
}
