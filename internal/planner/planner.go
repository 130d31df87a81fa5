// Package planner implements the Precision-Ag Planner (spec.md §4.G):
// given an AnalysisResult, a crop type, and a season, it decides which
// variable-rate applications are warranted, partitions each into
// zone-wise rates aligned with the field's ZonePartition, and rolls
// the recommendations up into a PlanSummary and weekly implementation
// schedule. Rates, quantities, costs, ROI and the summary are pure
// functions of the inputs and config. Recommendation IDs are random
// UUIDs, and the timing windows (and so the schedule) and CreatedAt
// are taken from the wall clock at call time.
package planner

import (
	"math"
	"time"

	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/google/uuid"
)

// productSpec is the planner's static lookup table of base rate, unit,
// and per-unit cost for each application kind (spec.md §4.G names this
// as "part of the spec's configuration surface").
type productSpec struct {
	product      string
	baseRate     float64
	unit         string
	costPerUnit  float64
	equipment    []string
	calibration  []string
	envNote      string
	yieldLiftPct float64 // baseline yield increase attributed to this application, scaled by the triggering score
}

var catalog = map[models.ApplicationKind]productSpec{
	models.ApplicationFertilizer: {
		product: "Nitrogen blend 32-0-0", baseRate: 150, unit: "kg/ha", costPerUnit: 0.9,
		equipment: []string{"variable-rate spreader"}, calibration: []string{"calibrate spreader against zone map", "verify flow rate at headland turns"},
		envNote: "Variable-rate application reduces nitrogen runoff versus a flat rate.", yieldLiftPct: 6,
	},
	models.ApplicationIrrigation: {
		product: "Supplemental irrigation", baseRate: 25, unit: "mm", costPerUnit: 2.5,
		equipment: []string{"pivot irrigation", "soil moisture sensors"}, calibration: []string{"confirm pivot nozzle pattern matches zone boundaries"},
		envNote: "Zone-targeted irrigation conserves water relative to uniform application.", yieldLiftPct: 9,
	},
	models.ApplicationSeed: {
		product: "Certified seed, adapted variety", baseRate: 25, unit: "kg/ha", costPerUnit: 3.2,
		equipment: []string{"variable-rate planter"}, calibration: []string{"calibrate seed meter for target population per zone"},
		envNote: "Zone-matched seeding rate avoids over-planting stressed ground.", yieldLiftPct: 4,
	},
	models.ApplicationPesticide: {
		product: "Broad-spectrum fungicide", baseRate: 2, unit: "L/ha", costPerUnit: 45,
		equipment: []string{"boom sprayer"}, calibration: []string{"verify boom pressure and nozzle spacing", "check droplet size for target pest"},
		envNote: "Targeting only affected zones limits off-target pesticide load.", yieldLiftPct: 7,
	},
	models.ApplicationLime: {
		product: "Agricultural lime", baseRate: 1000, unit: "kg/ha", costPerUnit: 0.12,
		equipment: []string{"lime spreader"}, calibration: []string{"calibrate spreader to target CaCO3 equivalent rate"},
		envNote: "Correcting soil pH in deficient zones only avoids over-liming healthy ground.", yieldLiftPct: 3,
	},
}

// ndviRanges gives the zone band each ApplicationZone is drawn from,
// aligned with the zones package's band thresholds.
var ndviRanges = map[models.ZoneBand][2]float64{
	models.ZoneHealthy:  {0.6, 1.0},
	models.ZoneModerate: {0.3, 0.6},
	models.ZoneStressed: {-1.0, 0.3},
}

type Planner struct {
	cfg config.PlannerConfig
}

func New(cfg config.PlannerConfig) *Planner {
	return &Planner{cfg: cfg}
}

// Plan implements plan(farm_id, analysis_result, crop_type, season) →
// PrecisionPlan (spec.md §4.G).
func (p *Planner) Plan(result models.AnalysisResult, cropType, season string) models.PrecisionPlan {
	var recs []models.VariableRateRecommendation

	if result.Stress.Nutrient >= 0.3 {
		recs = append(recs, p.buildRecommendation(models.ApplicationFertilizer, result, result.Stress.Nutrient))
	}
	if result.Stress.Drought >= 0.4 {
		recs = append(recs, p.buildRecommendation(models.ApplicationIrrigation, result, result.Stress.Drought))
	}
	if season == "pre-plant" {
		recs = append(recs, p.buildRecommendation(models.ApplicationSeed, result, 0))
	}
	if result.Stress.Disease >= 0.5 {
		recs = append(recs, p.buildRecommendation(models.ApplicationPesticide, result, result.Stress.Disease))
	}
	if result.Stress.Nutrient >= 0.5 {
		recs = append(recs, p.buildRecommendation(models.ApplicationLime, result, result.Stress.Nutrient))
	}

	summary := summarize(recs, result.Field.AreaHa)
	schedule := buildSchedule(recs)

	return models.PrecisionPlan{
		FarmID:          result.FarmID,
		FieldID:         result.FieldID,
		Season:          season,
		CropType:        cropType,
		TotalAreaHa:     result.Field.AreaHa,
		Recommendations: recs,
		Summary:         summary,
		Schedule:        schedule,
		CreatedAt:       time.Now().UTC(),
	}
}

func (p *Planner) buildRecommendation(kind models.ApplicationKind, result models.AnalysisResult, triggerScore float64) models.VariableRateRecommendation {
	spec := catalog[kind]
	mult := p.cfg.ZoneMultipliers[string(kind)]

	zones := []models.ApplicationZone{
		applicationZone("stressed", models.ZoneStressed, result.Zones.Stressed, spec.baseRate*mult.Stressed, "highest stress band receives the elevated rate"),
		applicationZone("moderate", models.ZoneModerate, result.Zones.Moderate, spec.baseRate*mult.Moderate, "moderate stress band receives a proportionally increased rate"),
		applicationZone("healthy", models.ZoneHealthy, result.Zones.Healthy, spec.baseRate*mult.Healthy, "healthy band receives a reduced rate to avoid over-application"),
	}

	var totalQuantity float64
	for _, z := range zones {
		totalQuantity += z.AreaHa * z.Rate
	}
	cost := round2(totalQuantity * spec.costPerUnit)

	yieldIncrease := spec.yieldLiftPct
	if triggerScore > 0 {
		yieldIncrease = spec.yieldLiftPct * (0.5 + triggerScore/2)
	}

	now := time.Now().UTC()
	return models.VariableRateRecommendation{
		ID:                uuid.NewString(),
		ApplicationKind:   kind,
		Product:           spec.product,
		BaseRate:          spec.baseRate,
		RateUnit:          spec.unit,
		VariabilityFactor: [2]float64{mult.Healthy, mult.Stressed},
		TotalQuantity:     round2(totalQuantity),
		EstimatedCostUSD:  cost,
		Zones:             zones,
		Timing: models.TimingWindow{
			OptimalStart:       now.AddDate(0, 0, 2),
			OptimalEnd:         now.AddDate(0, 0, 9),
			WeatherConstraints: []string{"avoid application within 24h of forecast precipitation probability above 50%"},
			SeasonalFactors:    []string{"timed to current growth stage based on most recent analysis"},
		},
		Equipment: models.EquipmentPlan{
			Recommended:      spec.equipment,
			CalibrationSteps: spec.calibration,
		},
		ExpectedOutcome: models.ExpectedOutcome{
			YieldIncreasePct:  round2(yieldIncrease),
			CostSavingsUSD:    round2(cost * 0.15),
			EnvironmentalNote: spec.envNote,
			ROIPct:            roiPct(yieldIncrease, cost, result.Field.AreaHa),
		},
	}
}

func applicationZone(id string, band models.ZoneBand, share models.ZoneShare, rate float64, rationale string) models.ApplicationZone {
	return models.ApplicationZone{
		ZoneID:    id,
		NDVIRange: ndviRanges[band],
		AreaHa:    share.AreaHa,
		Rate:      round2(rate),
		Rationale: rationale,
	}
}

// roiPct estimates a per-recommendation ROI from the revenue
// convention used in summarize: $50 of revenue per 1% yield increase
// per hectare, against the recommendation's own cost.
func roiPct(yieldIncreasePct, cost, areaHa float64) float64 {
	if cost <= 0 {
		return 0
	}
	revenue := yieldIncreasePct * 50 * areaHa
	return round2((revenue - cost) / cost * 100)
}

func summarize(recs []models.VariableRateRecommendation, areaHa float64) models.PlanSummary {
	var totalCost, revenue float64
	for _, r := range recs {
		totalCost += r.EstimatedCostUSD
		revenue += r.ExpectedOutcome.YieldIncreasePct * 50 * areaHa
	}
	netBenefit := revenue - totalCost

	payback := math.Inf(1)
	if revenue > 0 {
		payback = totalCost / (revenue / 12)
	}

	sustainability := 85.0
	if len(recs) > 0 {
		var avgLift float64
		for _, r := range recs {
			avgLift += r.ExpectedOutcome.YieldIncreasePct
		}
		avgLift /= float64(len(recs))
		sustainability = clamp(85+avgLift/3, 85, 95)
	}

	return models.PlanSummary{
		TotalCostUSD:        round2(totalCost),
		ExpectedRevenueUSD:  round2(revenue),
		NetBenefitUSD:       round2(netBenefit),
		PaybackMonths:       payback,
		SustainabilityScore: round2(sustainability),
	}
}

// buildSchedule places each recommendation in the weekly bucket
// (weeks start on Sunday) of its optimal window's start date; buckets
// appear in the order their first recommendation does.
func buildSchedule(recs []models.VariableRateRecommendation) []models.WeeklyTaskBucket {
	if len(recs) == 0 {
		return nil
	}

	weekStartOf := func(t time.Time) time.Time {
		weekday := int(t.Weekday())
		return time.Date(t.Year(), t.Month(), t.Day()-weekday, 0, 0, 0, 0, t.Location())
	}

	buckets := map[time.Time][]string{}
	var order []time.Time
	for _, r := range recs {
		wk := weekStartOf(r.Timing.OptimalStart)
		if _, seen := buckets[wk]; !seen {
			order = append(order, wk)
		}
		task := string(r.ApplicationKind) + ": apply " + r.Product
		buckets[wk] = append(buckets[wk], task)
	}

	schedule := make([]models.WeeklyTaskBucket, 0, len(order))
	for _, wk := range order {
		schedule = append(schedule, models.WeeklyTaskBucket{WeekStart: wk, Tasks: buckets[wk]})
	}
	return schedule
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
