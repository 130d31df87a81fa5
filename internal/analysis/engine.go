// Package analysis implements the Analysis Engine (spec.md §4.E): the
// per-field pipeline that turns a FieldBoundary into an AnalysisResult
// by calling the Imagery Client, the Index Calculator, and the Zone
// Partitioner, then comparing against the field's history and seeding
// alerts/recommendations for the downstream engines to consume. The
// step sequencing mirrors aristath-sentinel's maintenance_jobs.go
// step-numbered Run() idiom, logged the same way with a component-
// scoped zerolog.Logger.
package analysis

import (
	"context"
	"math"
	"time"

	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/indices"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/demeterfield/pipeline/internal/providers"
	"github.com/demeterfield/pipeline/internal/store"
	"github.com/demeterfield/pipeline/internal/zones"
	"github.com/rs/zerolog"
)

// Engine implements analyze_field/analyze_farm (spec.md §4.E). It
// depends only on the capability interfaces, never a concrete HTTP or
// Mongo type (spec.md §9).
type Engine struct {
	imagery  providers.ImageryProvider
	store    store.PersistenceStore
	imagCfg  config.ImageryConfig
	anCfg    config.AnalysisConfig
	log      zerolog.Logger
}

func New(imagery providers.ImageryProvider, persistence store.PersistenceStore, imagCfg config.ImageryConfig, anCfg config.AnalysisConfig, log zerolog.Logger) *Engine {
	return &Engine{
		imagery: imagery,
		store:   persistence,
		imagCfg: imagCfg,
		anCfg:   anCfg,
		log:     log.With().Str("component", "analysis_engine").Logger(),
	}
}

// AnalyzeField runs the 8-step pipeline of spec.md §4.E for one field
// and one analysis date, upserting the result. A per-field soft
// deadline (config.Analysis.PerFieldTimeout, default 60s) bounds the
// whole call; exceeding it surfaces errkind.Timeout.
func (e *Engine) AnalyzeField(ctx context.Context, field models.FieldBoundary, date time.Time) (models.AnalysisResult, error) {
	if e.anCfg.PerFieldTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.anCfg.PerFieldTimeout)
		defer cancel()
	}

	log := e.log.With().Str("fieldId", field.ID).Str("date", date.Format("2006-01-02")).Logger()

	// Step 1: bounding box and centroid.
	bbox, _, err := field.BoundsAndCentroid()
	if err != nil {
		return models.AnalysisResult{}, errkind.New(errkind.InvalidInput, field.ID, err)
	}

	// Step 2: imagery indices. Retry-with-backoff lives inside the
	// ImageryProvider implementation; a Transient error that survives
	// the retry cap surfaces here as ImageryUnavailable.
	v, err := e.imagery.Indices(ctx, bbox, date)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			log.Warn().Msg("imagery fetch exceeded per-field deadline")
			return models.AnalysisResult{}, errkind.New(errkind.Timeout, field.ID, err)
		}
		log.Warn().Err(err).Msg("imagery unavailable for field")
		return models.AnalysisResult{}, err
	}

	// Step 3: index calculator.
	calc, err := indices.Compute(v, e.imagCfg.MaxCloudPct)
	if err != nil {
		return models.AnalysisResult{}, errkind.New(errkind.InvalidInput, field.ID, err)
	}

	// Step 4: zone partitioner.
	zonePartition := zones.Partition(v, field.AreaHa)

	// Step 5: comparison against the most recent prior result.
	prior, err := e.store.GetLatestAnalysis(ctx, field.ID)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return models.AnalysisResult{}, errkind.New(errkind.Timeout, field.ID, err)
		}
		return models.AnalysisResult{}, errkind.New(errkind.Transient, field.ID, err)
	}
	var comparison *models.ComparisonToPrevious
	if prior != nil {
		comparison = compareToPrevious(*prior, v)
	}

	result := models.AnalysisResult{
		FieldID:      field.ID,
		FarmID:       field.FarmID,
		AnalysisDate: date.Format("2006-01-02"),
		Field:        field,
		Indices:      v,
		Zones:        zonePartition,
		Stress:       calc.Stress,
		HealthScore:  calc.HealthScore,
		Confidence:   calc.Confidence,
		Comparison:   comparison,
		CreatedAt:    time.Now().UTC(),
	}

	// Step 6: seed StressAlerts — the Analysis Engine only seeds;
	// the Alert Engine is authoritative for severity/urgency/dedup.
	result.AlertSeeds = seedAlerts(calc.Stress, calc.HealthScore, comparison)

	// Step 7: seed FieldRecommendations.
	result.RecommendationSeeds = seedRecommendations(calc.Stress, calc.HealthScore)

	// Step 8: persist, upserting on (fieldId, analysisDate).
	if err := e.store.UpsertAnalysis(ctx, result); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return models.AnalysisResult{}, errkind.New(errkind.Timeout, field.ID, err)
		}
		return models.AnalysisResult{}, errkind.New(errkind.Transient, field.ID, err)
	}

	log.Info().Int("healthScore", result.HealthScore).Str("confidence", result.Confidence).Msg("field analysis complete")
	return result, nil
}

// AnalyzeFarm runs AnalyzeField sequentially for every field of a
// farm, isolating a single field's failure from the rest of the batch
// (spec.md §4.E "Failure semantics"). The Orchestrator (internal/
// orchestrator) is the concurrency-bounded, single-flight-gated
// counterpart that wraps this for the farm-level entry point.
func (e *Engine) AnalyzeFarm(ctx context.Context, farmID string, date time.Time) ([]models.AnalysisResult, []models.FieldFailure) {
	fields, err := e.store.GetFieldsByFarm(ctx, farmID)
	if err != nil {
		return nil, []models.FieldFailure{{FieldID: farmID, Kind: string(errkind.Transient), Message: err.Error(), At: time.Now().UTC()}}
	}

	var results []models.AnalysisResult
	var failures []models.FieldFailure
	for _, f := range fields {
		result, err := e.AnalyzeField(ctx, f, date)
		if err != nil {
			failures = append(failures, fieldFailure(f.ID, err))
			continue
		}
		results = append(results, result)
	}
	return results, failures
}

// GetAnalysisTrends implements get_analysis_trends(field_id, start_date,
// end_date) → TrendSeries (spec.md §6), folding the field's persisted
// analysis history into a point series, per-index seasonal averages,
// and a growth-stage label derived from fixed NDVI bands and the
// direction of the last two points (see growthStageFor).
func (e *Engine) GetAnalysisTrends(ctx context.Context, fieldID string, startDate, endDate time.Time) (models.TrendSeries, error) {
	history, err := e.store.GetAnalysisTrend(ctx, fieldID, 0)
	if err != nil {
		return models.TrendSeries{}, errkind.New(errkind.Transient, fieldID, err)
	}

	var points []models.TrendPoint
	var ndviSum, eviSum, ndreSum float64
	for _, r := range history {
		date, perr := time.Parse("2006-01-02", r.AnalysisDate)
		if perr != nil {
			continue
		}
		if date.Before(startDate) || date.After(endDate) {
			continue
		}
		points = append(points, models.TrendPoint{
			Date:        r.AnalysisDate,
			NDVIMean:    r.Indices.NDVIMean,
			HealthScore: r.HealthScore,
		})
		ndviSum += r.Indices.NDVIMean
		eviSum += r.Indices.EVI
		ndreSum += r.Indices.NDRE
	}

	series := models.TrendSeries{FieldID: fieldID, Points: points, GrowthStage: models.GrowthEmergence}
	if len(points) == 0 {
		return series, nil
	}

	n := float64(len(points))
	series.SeasonalAverages = map[string]float64{
		"ndviMean": round2(ndviSum / n),
		"evi":      round2(eviSum / n),
		"ndre":     round2(ndreSum / n),
	}
	series.GrowthStage = growthStageFor(history[len(history)-1].Indices.NDVIMean, points)
	return series, nil
}

// growthStageFor derives a coarse growth-stage label from the latest
// NDVI reading and the series' trajectory: rising low NDVI reads as
// emergence/vegetative, a sustained high plateau as peak, and a
// declining high-to-moderate series as senescence.
func growthStageFor(latestNDVI float64, points []models.TrendPoint) models.GrowthStage {
	switch {
	case latestNDVI < 0.3:
		return models.GrowthEmergence
	case latestNDVI < 0.6:
		if len(points) >= 2 && points[len(points)-1].NDVIMean < points[len(points)-2].NDVIMean {
			return models.GrowthSenescence
		}
		return models.GrowthVegetative
	default:
		if len(points) >= 2 && points[len(points)-1].NDVIMean < points[len(points)-2].NDVIMean-0.05 {
			return models.GrowthSenescence
		}
		return models.GrowthPeak
	}
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func fieldFailure(fieldID string, err error) models.FieldFailure {
	kind := "unknown"
	if ke, ok := err.(*errkind.Error); ok {
		kind = string(ke.Kind)
	}
	return models.FieldFailure{FieldID: fieldID, Kind: kind, Message: err.Error(), At: time.Now().UTC()}
}

// compareToPrevious implements the delta/trend/significance rules of
// spec.md §4.E step 5.
func compareToPrevious(prior models.AnalysisResult, current models.VegetationIndices) *models.ComparisonToPrevious {
	delta := current.NDVIMean - prior.Indices.NDVIMean

	trend := models.TrendStable
	if math.Abs(delta) >= 0.05 {
		if delta > 0 {
			trend = models.TrendImproving
		} else {
			trend = models.TrendDeclining
		}
	}

	significance := models.SignificanceLow
	if prior.Indices.NDVIMean != 0 {
		ratio := math.Abs(delta / prior.Indices.NDVIMean)
		switch {
		case ratio > 0.15:
			significance = models.SignificanceHigh
		case ratio > 0.08:
			significance = models.SignificanceModerate
		}
	}

	priorDate, _ := time.Parse("2006-01-02", prior.AnalysisDate)
	return &models.ComparisonToPrevious{
		PriorDate:     priorDate,
		DeltaMeanNDVI: delta,
		Trend:         trend,
		Significance:  significance,
	}
}

// seedAlerts derives AlertSeeds per the trigger conditions of spec.md
// §4.F's threshold table that the Analysis Engine is positioned to
// detect (the weather-driven kinds are seeded separately by whatever
// caller holds the weather context — see internal/alerts).
func seedAlerts(stress models.StressIndicators, healthScore int, comparison *models.ComparisonToPrevious) []models.AlertSeed {
	var seeds []models.AlertSeed

	if stress.Drought > 0.8 {
		seeds = append(seeds, models.AlertSeed{Kind: models.AlertDroughtCritical, Score: stress.Drought})
	}
	if stress.Disease > 0.7 {
		seeds = append(seeds, models.AlertSeed{Kind: models.AlertDiseaseOutbreak, Score: stress.Disease})
	}
	if stress.Nutrient > 0.7 {
		seeds = append(seeds, models.AlertSeed{Kind: models.AlertNutrientSevere, Score: stress.Nutrient})
	}

	decliningHigh := comparison != nil && comparison.Trend == models.TrendDeclining && comparison.Significance == models.SignificanceHigh
	if healthScore < 30 || decliningHigh {
		seeds = append(seeds, models.AlertSeed{Kind: models.AlertGeneralDecline, Score: float64(100-healthScore) / 100})
	}

	return seeds
}

// seedRecommendations derives rule-based FieldRecommendations across
// the five categories spec.md §4.E step 7 names.
func seedRecommendations(stress models.StressIndicators, healthScore int) []models.RecommendationSeed {
	var seeds []models.RecommendationSeed

	if stress.Drought >= 0.4 {
		seeds = append(seeds, models.RecommendationSeed{
			Category: "irrigation",
			Message:  "Schedule irrigation to address drought stress",
			Priority: string(models.PriorityWithin24h),
		})
	}
	if stress.Nutrient >= 0.3 {
		seeds = append(seeds, models.RecommendationSeed{
			Category: "fertilization",
			Message:  "Apply nutrient amendment per zone-wise variable-rate plan",
			Priority: string(models.PriorityWithinWeek),
		})
	}
	if stress.Disease >= 0.5 {
		seeds = append(seeds, models.RecommendationSeed{
			Category: "pest_control",
			Message:  "Inspect field for disease pressure and apply targeted treatment",
			Priority: string(models.PriorityImmediate),
		})
	}
	if stress.Nutrient >= 0.5 {
		seeds = append(seeds, models.RecommendationSeed{
			Category: "soil_management",
			Message:  "Conduct a soil test to confirm nutrient deficiency before broad application",
			Priority: string(models.PriorityWithinWeek),
		})
	}
	if healthScore >= 85 {
		seeds = append(seeds, models.RecommendationSeed{
			Category: "harvest_timing",
			Message:  "Field is approaching an optimal harvest window; confirm with agronomist",
			Priority: string(models.PriorityWithinWeek),
		})
	}

	return seeds
}
