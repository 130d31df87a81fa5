package zones

import (
	"testing"

	"github.com/demeterfield/pipeline/internal/models"
	"github.com/stretchr/testify/assert"
)

func sumPct(p models.ZonePartition) float64 {
	return p.Healthy.Percentage + p.Moderate.Percentage + p.Stressed.Percentage
}

func TestPartition_TruncatedNormalFallbackSumsTo100(t *testing.T) {
	v := models.VegetationIndices{NDVIMean: 0.5, NDVIStdDev: 0.15}
	p := Partition(v, 100)

	assert.InDelta(t, 100, sumPct(p), 0.1)
	assert.InDelta(t, 100, p.Healthy.AreaHa+p.Moderate.AreaHa+p.Stressed.AreaHa, 0.1)
}

func TestPartition_DegenerateStdDevAssignsAllAreaToOneBand(t *testing.T) {
	healthy := Partition(models.VegetationIndices{NDVIMean: 0.8, NDVIStdDev: 0}, 50)
	assert.Equal(t, 100.0, healthy.Healthy.Percentage)
	assert.Equal(t, 50.0, healthy.Healthy.AreaHa)
	assert.Equal(t, 0.0, healthy.Moderate.Percentage)
	assert.Equal(t, 0.0, healthy.Stressed.Percentage)

	stressed := Partition(models.VegetationIndices{NDVIMean: 0.1, NDVIStdDev: 0}, 50)
	assert.Equal(t, 100.0, stressed.Stressed.Percentage)
}

func TestPartition_HistogramIntegratesDirectlyAndSumsTo100(t *testing.T) {
	bins := make([]models.HistogramBin, 0, 10)
	lo := -1.0
	step := 0.2
	for i := 0; i < 10; i++ {
		bins = append(bins, models.HistogramBin{Lo: lo, Hi: lo + step, Frac: 0.1})
		lo += step
	}
	v := models.VegetationIndices{NDVIMean: 0.3, NDVIStdDev: 0.1, NDVIHistogram: bins}
	p := Partition(v, 200)

	assert.InDelta(t, 100, sumPct(p), 0.1)
	assert.Greater(t, p.Stressed.Percentage+p.Moderate.Percentage, 0.0)
}

func TestPartition_SparseHistogramFallsBackToTruncatedNormal(t *testing.T) {
	bins := []models.HistogramBin{
		{Lo: -1, Hi: -0.5, Frac: 0.2},
		{Lo: -0.5, Hi: 0, Frac: 0.3},
		{Lo: 0, Hi: 0.5, Frac: 0.5},
	}
	v := models.VegetationIndices{NDVIMean: 0.5, NDVIStdDev: 0.15, NDVIHistogram: bins}
	p := Partition(v, 100)
	assert.InDelta(t, 100, sumPct(p), 0.1)
}
