package store

import (
	"context"
	"testing"

	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_UpsertAnalysis_IsIdempotentOnKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	result := models.AnalysisResult{FieldID: "f1", FarmID: "farm1", AnalysisDate: "2026-07-01", HealthScore: 80}
	require.NoError(t, s.UpsertAnalysis(ctx, result))

	result.HealthScore = 60
	require.NoError(t, s.UpsertAnalysis(ctx, result))

	latest, err := s.GetLatestAnalysis(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 60, latest.HealthScore)
}

func TestMemStore_GetLatestAnalysis_PicksMostRecentDate(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.UpsertAnalysis(ctx, models.AnalysisResult{FieldID: "f1", AnalysisDate: "2026-06-01", HealthScore: 50}))
	require.NoError(t, s.UpsertAnalysis(ctx, models.AnalysisResult{FieldID: "f1", AnalysisDate: "2026-07-01", HealthScore: 90}))

	latest, err := s.GetLatestAnalysis(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2026-07-01", latest.AnalysisDate)
	assert.Equal(t, 90, latest.HealthScore)
}

func TestMemStore_GetActiveAlertsByKind_ExcludesResolved(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	_, _, err := s.UpsertAlert(ctx, models.Alert{ID: "a1", FieldID: "f1", Kind: models.AlertDroughtCritical, Status: models.AlertStatusActive})
	require.NoError(t, err)
	_, _, err = s.UpsertAlert(ctx, models.Alert{ID: "a2", FieldID: "f1", Kind: models.AlertDroughtCritical, Status: models.AlertStatusResolved})
	require.NoError(t, err)

	active, err := s.GetActiveAlertsByKind(ctx, "f1", models.AlertDroughtCritical)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a1", active[0].ID)
}

func TestMemStore_UpdateAlertState_UnknownID(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	_, err := s.UpdateAlertState(ctx, "missing", models.AlertStatusResolved, "operator", "done")
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.NotFound))
}

func TestMemStore_ListFarmIDs_ReturnsSortedUniqueFarms(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	s.SeedFields("farmB", []models.FieldBoundary{{ID: "f1", FarmID: "farmB"}})
	s.SeedFields("farmA", []models.FieldBoundary{{ID: "f2", FarmID: "farmA"}})

	ids, err := s.ListFarmIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"farmA", "farmB"}, ids)
}

func TestMemStore_GetPlan_RoundTripsUpsertedPlan(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	plan := models.PrecisionPlan{FarmID: "farm1", FieldID: "f1", Season: "2026-summer", CropType: "corn", TotalAreaHa: 20}
	require.NoError(t, s.UpsertPlan(ctx, plan))

	got, err := s.GetPlan(ctx, "farm1", "f1", "2026-summer")
	require.NoError(t, err)
	assert.Equal(t, "corn", got.CropType)
}

func TestMemStore_GetPlan_UnknownKeyIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	_, err := s.GetPlan(ctx, "farmX", "fieldX", "seasonX")
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.NotFound))
}

func TestMemStore_UpdateAlertState_ResolvedSetsResolvedAt(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	_, _, err := s.UpsertAlert(ctx, models.Alert{ID: "a1", FieldID: "f1", Kind: models.AlertFrost, Status: models.AlertStatusActive})
	require.NoError(t, err)

	resolved, err := s.UpdateAlertState(ctx, "a1", models.AlertStatusResolved, "operator", "frost passed")
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "operator", resolved.ResolvedBy)
}
