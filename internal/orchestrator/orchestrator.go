// Package orchestrator implements the Orchestrator (spec.md §4.H):
// farm-level fan-out over the Analysis Engine under a bounded worker
// pool, a single-flight dedup gate on (fieldId, analysisDate), and the
// composition of the Alert Engine and Planner into one
// FarmAnalysisBundle. The worker-pool shape follows aristath-sentinel's
// workers.WorkerPool (jobs/results channels, a WaitGroup, a fixed
// number of goroutines), generalized with context cancellation and
// golang.org/x/sync/singleflight for the dedup gate spec.md §4.H/§5
// and §8 invariant 8 require.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/demeterfield/pipeline/internal/alerts"
	"github.com/demeterfield/pipeline/internal/analysis"
	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/demeterfield/pipeline/internal/planner"
	"github.com/demeterfield/pipeline/internal/providers"
	"github.com/demeterfield/pipeline/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultConcurrency = 8

// Options configures one run_farm_analysis call (spec.md §6).
type Options struct {
	AnalysisDate time.Time
	CropType     string
	Season       string
	Concurrency  int
}

type Orchestrator struct {
	engine   *analysis.Engine
	alertEng *alerts.Engine
	plan     *planner.Planner
	weather  providers.WeatherProvider
	store    store.PersistenceStore
	cfg      config.AnalysisConfig

	sf  singleflight.Group
	log zerolog.Logger
}

func New(engine *analysis.Engine, alertEng *alerts.Engine, plan *planner.Planner, weather providers.WeatherProvider, persistence store.PersistenceStore, cfg config.AnalysisConfig, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		engine:   engine,
		alertEng: alertEng,
		plan:     plan,
		weather:  weather,
		store:    persistence,
		cfg:      cfg,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

type fieldOutcome struct {
	fieldID string
	result  models.AnalysisResult
	err     error
}

// RunFarmAnalysis implements run_farm_analysis (spec.md §4.H/§6). A
// farm with no fields, or a persistence failure resolving the field
// set, surfaces as a top-level error — every other per-field failure
// is accumulated into bundle.Failures instead (spec.md §7's "only
// wholly invalid inputs surface as top-level failures").
func (o *Orchestrator) RunFarmAnalysis(ctx context.Context, farmID string, opts Options) (models.FarmAnalysisBundle, error) {
	if opts.AnalysisDate.IsZero() {
		opts.AnalysisDate = time.Now().UTC()
	}
	if opts.Season == "" {
		opts.Season = "growing"
	}

	fields, err := o.store.GetFieldsByFarm(ctx, farmID)
	if err != nil {
		return models.FarmAnalysisBundle{}, errkind.New(errkind.Transient, farmID, err)
	}
	if len(fields) == 0 {
		return models.FarmAnalysisBundle{FarmID: farmID}, errkind.New(errkind.InvalidInput, farmID, nil)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = o.cfg.Concurrency
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if concurrency > len(fields) {
		concurrency = len(fields)
	}

	outcomes := o.analyzeFields(ctx, fields, concurrency, opts.AnalysisDate)

	var results []models.AnalysisResult
	var failures []models.FieldFailure
	for _, outcome := range outcomes {
		if outcome.err != nil {
			failures = append(failures, fieldFailure(outcome.fieldID, outcome.err))
			continue
		}
		results = append(results, outcome.result)
	}

	cancelled := ctx.Err() != nil

	alertList := o.evaluateAlerts(ctx, farmID, results)

	var plans []models.PrecisionPlan
	for _, result := range results {
		p := o.plan.Plan(result, opts.CropType, opts.Season)
		if err := o.store.UpsertPlan(ctx, p); err != nil {
			o.log.Warn().Err(err).Str("fieldId", result.FieldID).Msg("failed to persist plan")
		}
		plans = append(plans, p)
	}

	summary := buildSummary(results, alertList, plans)

	return models.FarmAnalysisBundle{
		FarmID:    farmID,
		Results:   results,
		Alerts:    alertList,
		Plans:     plans,
		Summary:   summary,
		Failures:  failures,
		Cancelled: cancelled,
	}, nil
}

// analyzeFields fans the farm's fields out across a bounded worker
// pool, gating each (fieldId, analysisDate) through a single-flight
// group so concurrent callers for the same key share one backend
// execution (spec.md §8 invariant 8, Scenario 3).
func (o *Orchestrator) analyzeFields(ctx context.Context, fields []models.FieldBoundary, concurrency int, date time.Time) []fieldOutcome {
	jobs := make(chan models.FieldBoundary, len(fields))
	results := make(chan fieldOutcome, len(fields))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.fieldWorker(ctx, jobs, results, date)
		}()
	}

	for _, f := range fields {
		jobs <- f
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]fieldOutcome, 0, len(fields))
	for r := range results {
		outcomes = append(outcomes, r)
	}
	return outcomes
}

func (o *Orchestrator) fieldWorker(ctx context.Context, jobs <-chan models.FieldBoundary, results chan<- fieldOutcome, date time.Time) {
	for field := range jobs {
		if ctx.Err() != nil {
			results <- fieldOutcome{fieldID: field.ID, err: errkind.New(errkind.Cancelled, field.ID, ctx.Err())}
			continue
		}

		key := field.ID + "|" + date.Format("2006-01-02")
		v, err, _ := o.sf.Do(key, func() (interface{}, error) {
			return o.engine.AnalyzeField(ctx, field, date)
		})
		if err != nil {
			results <- fieldOutcome{fieldID: field.ID, err: err}
			continue
		}
		results <- fieldOutcome{fieldID: field.ID, result: v.(models.AnalysisResult)}
	}
}

func fieldFailure(fieldID string, err error) models.FieldFailure {
	kind := "unknown"
	if ke, ok := err.(*errkind.Error); ok {
		kind = string(ke.Kind)
	}
	return models.FieldFailure{FieldID: fieldID, Kind: kind, Message: err.Error(), At: time.Now().UTC()}
}

// evaluateAlerts builds a best-effort weather context per field
// (skipped for a field whose current-weather fetch fails, so that
// field gets crop-only alerting rather than aborting the whole
// evaluation; a failed forecast or aggregate fetch keeps the context
// and marks it RuleBased) and hands the batch to the Alert Engine once.
func (o *Orchestrator) evaluateAlerts(ctx context.Context, farmID string, results []models.AnalysisResult) []models.Alert {
	weatherByField := make(map[string]alerts.WeatherContext, len(results))
	for _, result := range results {
		_, centroid, err := result.Field.BoundsAndCentroid()
		if err != nil {
			continue
		}
		current, err := o.weather.Current(ctx, centroid.Lat, centroid.Lng)
		if err != nil {
			continue
		}
		forecast, err := o.weather.Forecast(ctx, centroid.Lat, centroid.Lng, 3)
		ruleBased := err != nil
		aggregated, err := o.weather.Aggregate(ctx, centroid.Lat, centroid.Lng, 14*24*time.Hour)
		if err != nil {
			ruleBased = true
		}
		weatherByField[result.FieldID] = alerts.WeatherContext{
			FieldID:    result.FieldID,
			Current:    current,
			Forecast:   forecast,
			Aggregated: aggregated,
			RuleBased:  ruleBased,
		}
	}

	out, err := o.alertEng.Evaluate(ctx, farmID, results, weatherByField)
	if err != nil {
		o.log.Warn().Err(err).Str("farmId", farmID).Msg("alert evaluation failed")
		return nil
	}
	return out
}

func buildSummary(results []models.AnalysisResult, alertList []models.Alert, plans []models.PrecisionPlan) models.FarmSummary {
	summary := models.FarmSummary{TotalFields: len(results)}
	if len(results) == 0 {
		return summary
	}

	var totalHealth float64
	var totalDrought, totalDisease, totalNutrient float64
	dist := models.HealthDistribution{}
	for _, r := range results {
		totalHealth += float64(r.HealthScore)
		totalDrought += r.Stress.Drought
		totalDisease += r.Stress.Disease
		totalNutrient += r.Stress.Nutrient

		switch {
		case r.HealthScore >= 60:
			dist.Healthy++
		case r.HealthScore >= 30:
			dist.Moderate++
		default:
			dist.Stressed++
		}
	}
	n := float64(len(results))
	summary.AvgHealth = round2(totalHealth / n)
	summary.HealthDistribution = dist
	summary.PrimaryStressor = argmaxStressor(totalDrought/n, totalDisease/n, totalNutrient/n)

	for _, a := range alertList {
		if a.Severity == models.SeverityCritical || a.Severity == models.SeverityEmergency {
			summary.CriticalAlertCount++
		}
	}

	var roiSum float64
	var roiCount int
	for _, p := range plans {
		if p.Summary.TotalCostUSD > 0 {
			roiSum += p.Summary.NetBenefitUSD / p.Summary.TotalCostUSD * 100
			roiCount++
		}
	}
	if roiCount > 0 {
		summary.ProjectedROIPct = round2(roiSum / float64(roiCount))
	}

	return summary
}

func argmaxStressor(drought, disease, nutrient float64) string {
	stressor := "drought"
	max := drought
	if disease > max {
		stressor, max = "disease", disease
	}
	if nutrient > max {
		stressor = "nutrient"
	}
	return stressor
}

func round2(x float64) float64 {
	return float64(int(x*100+0.5)) / 100
}
