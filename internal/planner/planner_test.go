package planner

import (
	"testing"

	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultPlannerConfig() config.PlannerConfig {
	return config.PlannerConfig{
		ZoneMultipliers: map[string]config.ZoneMultiplier{
			"fertilizer": {Healthy: 0.9, Moderate: 1.1, Stressed: 1.4},
			"irrigation": {Healthy: 0.9, Moderate: 1.15, Stressed: 1.4},
			"seed":       {Healthy: 1.0, Moderate: 1.05, Stressed: 1.1},
			"pesticide":  {Healthy: 0.8, Moderate: 1.1, Stressed: 1.4},
			"lime":       {Healthy: 0.9, Moderate: 1.1, Stressed: 1.3},
		},
	}
}

func stressedResult() models.AnalysisResult {
	return models.AnalysisResult{
		FarmID: "farm1", FieldID: "f1",
		Field: models.FieldBoundary{ID: "f1", FarmID: "farm1", AreaHa: 100},
		Zones: models.ZonePartition{
			Healthy:  models.ZoneShare{Percentage: 20, AreaHa: 20},
			Moderate: models.ZoneShare{Percentage: 30, AreaHa: 30},
			Stressed: models.ZoneShare{Percentage: 50, AreaHa: 50},
		},
		Stress: models.StressIndicators{Drought: 0.6, Disease: 0.55, Nutrient: 0.5},
	}
}

func TestPlanner_Plan_GatesOnStressThresholds(t *testing.T) {
	p := New(defaultPlannerConfig())
	plan := p.Plan(stressedResult(), "corn", "growing")

	var kinds []models.ApplicationKind
	for _, r := range plan.Recommendations {
		kinds = append(kinds, r.ApplicationKind)
	}
	assert.Contains(t, kinds, models.ApplicationFertilizer)
	assert.Contains(t, kinds, models.ApplicationIrrigation)
	assert.Contains(t, kinds, models.ApplicationPesticide)
	assert.Contains(t, kinds, models.ApplicationLime)
	assert.NotContains(t, kinds, models.ApplicationSeed) // season != pre-plant
}

func TestPlanner_Plan_SeedGatedBySeason(t *testing.T) {
	p := New(defaultPlannerConfig())
	plan := p.Plan(stressedResult(), "corn", "pre-plant")

	found := false
	for _, r := range plan.Recommendations {
		if r.ApplicationKind == models.ApplicationSeed {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPlanner_Plan_TotalQuantityMatchesZoneSum(t *testing.T) {
	p := New(defaultPlannerConfig())
	plan := p.Plan(stressedResult(), "corn", "growing")

	require.NotEmpty(t, plan.Recommendations)
	for _, r := range plan.Recommendations {
		var sum float64
		for _, z := range r.Zones {
			sum += z.AreaHa * z.Rate
		}
		assert.InDelta(t, sum, r.TotalQuantity, 0.01)
	}
}

func TestPlanner_Plan_SummaryCostMatchesRecommendationSum(t *testing.T) {
	p := New(defaultPlannerConfig())
	plan := p.Plan(stressedResult(), "corn", "growing")

	var total float64
	for _, r := range plan.Recommendations {
		total += r.EstimatedCostUSD
	}
	assert.InDelta(t, total, plan.Summary.TotalCostUSD, 0.01)
}

func TestPlanner_Plan_IsDeterministic(t *testing.T) {
	p := New(defaultPlannerConfig())
	result := stressedResult()

	a := p.Plan(result, "corn", "growing")
	b := p.Plan(result, "corn", "growing")

	assert.Equal(t, a.Summary.TotalCostUSD, b.Summary.TotalCostUSD)
	assert.Equal(t, a.Summary.SustainabilityScore, b.Summary.SustainabilityScore)
	assert.Equal(t, len(a.Recommendations), len(b.Recommendations))
}

func TestPlanner_Plan_NoTriggersProducesEmptyPlan(t *testing.T) {
	p := New(defaultPlannerConfig())
	healthy := models.AnalysisResult{
		FarmID: "farm1", FieldID: "f2",
		Field:  models.FieldBoundary{ID: "f2", FarmID: "farm1", AreaHa: 50},
		Zones:  models.ZonePartition{Healthy: models.ZoneShare{Percentage: 100, AreaHa: 50}},
		Stress: models.StressIndicators{Drought: 0, Disease: 0, Nutrient: 0},
	}
	plan := p.Plan(healthy, "corn", "growing")
	assert.Empty(t, plan.Recommendations)
	assert.Equal(t, 0.0, plan.Summary.TotalCostUSD)
}
