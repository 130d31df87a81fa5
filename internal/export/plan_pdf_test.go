package export

import (
	"testing"
	"time"

	"github.com/demeterfield/pipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanToPDF_RendersNonEmptyDocument(t *testing.T) {
	plan := models.PrecisionPlan{
		FarmID: "farm1", FieldID: "f1", Season: "growing", CropType: "corn", TotalAreaHa: 100,
		Recommendations: []models.VariableRateRecommendation{
			{
				ID: "r1", ApplicationKind: models.ApplicationFertilizer, Product: "Nitrogen blend 32-0-0",
				BaseRate: 150, RateUnit: "kg/ha", TotalQuantity: 9000, EstimatedCostUSD: 8100,
				Zones: []models.ApplicationZone{
					{ZoneID: "stressed", AreaHa: 50, Rate: 210, Rationale: "highest stress band receives the elevated rate"},
				},
				ExpectedOutcome: models.ExpectedOutcome{YieldIncreasePct: 6, ROIPct: 25},
			},
		},
		Summary: models.PlanSummary{TotalCostUSD: 8100, ExpectedRevenueUSD: 30000, NetBenefitUSD: 21900, PaybackMonths: 3.2, SustainabilityScore: 87},
		Schedule: []models.WeeklyTaskBucket{
			{WeekStart: time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC), Tasks: []string{"fertilizer: apply Nitrogen blend 32-0-0"}},
		},
		CreatedAt: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
	}

	data, err := PlanToPDF(plan)
	require.NoError(t, err)
	assert.Greater(t, len(data), 500)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestPlanToPDF_HandlesEmptyRecommendations(t *testing.T) {
	plan := models.PrecisionPlan{FarmID: "farm1", FieldID: "f2", Season: "growing", CropType: "soy", TotalAreaHa: 40}
	data, err := PlanToPDF(plan)
	require.NoError(t, err)
	assert.Greater(t, len(data), 200)
}
