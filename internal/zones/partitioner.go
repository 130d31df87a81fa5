// Package zones implements the Zone Partitioner (spec.md §4.B):
// splitting a field's NDVI distribution into healthy/moderate/stressed
// area fractions. When the imagery provider supplies a histogram, the
// partitioner integrates it directly; otherwise it falls back to a
// normal distribution truncated to [-1, 1], using gonum's stat/distuv
// the way aristath-sentinel leans on gonum for distribution work.
package zones

import (
	"math"

	"github.com/demeterfield/pipeline/internal/models"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	healthyThreshold  = 0.6
	moderateThreshold = 0.3
)

// Partition returns the ZonePartition for a field of totalAreaHa,
// given its VegetationIndices. If indices.NDVIHistogram has at least
// 10 bins, the histogram is integrated directly; otherwise a
// truncated-normal approximation from NDVIMean/NDVIStdDev is used.
func Partition(v models.VegetationIndices, totalAreaHa float64) models.ZonePartition {
	var healthyFrac, moderateFrac, stressedFrac float64

	if len(v.NDVIHistogram) >= 10 {
		healthyFrac, moderateFrac, stressedFrac = fromHistogram(v.NDVIHistogram)
	} else {
		healthyFrac, moderateFrac, stressedFrac = fromTruncatedNormal(v.NDVIMean, v.NDVIStdDev)
	}

	// Renormalize defensively so percentages sum to exactly 100,
	// satisfying the ±0.1 invariant regardless of integration error.
	sum := healthyFrac + moderateFrac + stressedFrac
	if sum <= 0 {
		healthyFrac, moderateFrac, stressedFrac = 0, 0, 1
		sum = 1
	}
	healthyFrac /= sum
	moderateFrac /= sum
	stressedFrac /= sum

	mk := func(frac float64) models.ZoneShare {
		return models.ZoneShare{
			Percentage: round1(frac * 100),
			AreaHa:     frac * totalAreaHa,
		}
	}

	return models.ZonePartition{
		Healthy:  mk(healthyFrac),
		Moderate: mk(moderateFrac),
		Stressed: mk(stressedFrac),
	}
}

func fromHistogram(bins []models.HistogramBin) (healthy, moderate, stressed float64) {
	for _, b := range bins {
		mid := (b.Lo + b.Hi) / 2
		switch {
		case mid >= healthyThreshold:
			healthy += b.Frac
		case mid >= moderateThreshold:
			moderate += b.Frac
		default:
			stressed += b.Frac
		}
	}
	return
}

// fromTruncatedNormal integrates a Normal(mean, stddev) distribution,
// truncated to [-1, 1], over the three NDVI bands. distuv.Normal's CDF
// gives exact band masses; dividing by the CDF mass of the truncation
// interval renormalizes for the truncation.
func fromTruncatedNormal(mean, stddev float64) (healthy, moderate, stressed float64) {
	if stddev <= 0 {
		// Degenerate distribution: all mass at the mean.
		switch {
		case mean >= healthyThreshold:
			return 1, 0, 0
		case mean >= moderateThreshold:
			return 0, 1, 0
		default:
			return 0, 0, 1
		}
	}

	n := distuv.Normal{Mu: mean, Sigma: stddev}
	total := n.CDF(1) - n.CDF(-1)
	if total <= 0 {
		total = 1
	}

	stressedMass := n.CDF(moderateThreshold) - n.CDF(-1)
	moderateMass := n.CDF(healthyThreshold) - n.CDF(moderateThreshold)
	healthyMass := n.CDF(1) - n.CDF(healthyThreshold)

	return math.Max(healthyMass, 0) / total, math.Max(moderateMass, 0) / total, math.Max(stressedMass, 0) / total
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
