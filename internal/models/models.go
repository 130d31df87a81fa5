// Package models holds the core domain entities of the field analysis
// pipeline (spec.md §3), in the same plain-struct-with-bson/json-tags
// style as DemeterEye's models package, but shaped around analysis
// results, alerts, and plans rather than user accounts.
package models

import (
	"time"

	"github.com/demeterfield/pipeline/internal/geo"
)

// FieldBoundary is the read-only identity of a field the core consumes.
type FieldBoundary struct {
	ID        string       `bson:"_id"       json:"id"`
	Name      string       `bson:"name"      json:"name"`
	AreaHa    float64      `bson:"areaHa"    json:"areaHa"`
	Vertices  []geo.Vertex `bson:"vertices"  json:"vertices"`
	FarmID    string       `bson:"farmId"    json:"farmId"`
	CropType  string       `bson:"cropType,omitempty" json:"cropType,omitempty"`
}

// BoundsAndCentroid derives the bounding box and centroid, validating
// the polygon invariants of spec.md §3.
func (f FieldBoundary) BoundsAndCentroid() (geo.BoundingBox, geo.Centroid, error) {
	return geo.BoundsAndCentroid(f.Vertices)
}

// VegetationIndices are the scalar outputs of a single-date acquisition
// over a field's bounding box (spec.md §3).
type VegetationIndices struct {
	NDVIMean   float64 `bson:"ndviMean"   json:"ndviMean"`
	NDVIMin    float64 `bson:"ndviMin"    json:"ndviMin"`
	NDVIMax    float64 `bson:"ndviMax"    json:"ndviMax"`
	NDVIMedian float64 `bson:"ndviMedian" json:"ndviMedian"`
	NDVIStdDev float64 `bson:"ndviStdDev" json:"ndviStdDev"`

	NDRE float64 `bson:"ndre" json:"ndre"`
	EVI  float64 `bson:"evi"  json:"evi"`
	SAVI float64 `bson:"savi" json:"savi"`

	CloudCoveragePct float64   `bson:"cloudCoveragePct" json:"cloudCoveragePct"`
	AcquiredAt       time.Time `bson:"acquiredAt"       json:"acquiredAt"`
	ResolutionM      float64   `bson:"resolutionM"      json:"resolutionM"`

	// Histogram, when the provider supplies per-pixel distribution
	// data: ≥10 bins spanning [-1, 1], each a fraction of pixels.
	// Nil when only aggregate statistics are available.
	NDVIHistogram []HistogramBin `bson:"ndviHistogram,omitempty" json:"ndviHistogram,omitempty"`
}

// HistogramBin is one bucket of an NDVI distribution histogram.
type HistogramBin struct {
	Lo, Hi float64
	Frac   float64 // fraction of pixels in [Lo, Hi)
}

// Valid checks the cross-field invariants of spec.md §3: min ≤ median
// ≤ max, stddev ≥ 0, values in range.
func (v VegetationIndices) Valid() bool {
	inRange := func(x float64) bool { return x >= -1 && x <= 1 }
	return v.NDVIMin <= v.NDVIMedian && v.NDVIMedian <= v.NDVIMax &&
		v.NDVIStdDev >= 0 &&
		inRange(v.NDVIMean) && inRange(v.NDVIMin) && inRange(v.NDVIMax) &&
		inRange(v.NDRE) && inRange(v.EVI) && inRange(v.SAVI) &&
		v.CloudCoveragePct >= 0 && v.CloudCoveragePct <= 100
}

// ZoneBand names the three NDVI-based management bands (spec.md §3/§4.B).
type ZoneBand string

const (
	ZoneHealthy  ZoneBand = "healthy"
	ZoneModerate ZoneBand = "moderate"
	ZoneStressed ZoneBand = "stressed"
)

// ZonePartition is the field's area split across the three bands.
type ZonePartition struct {
	Healthy  ZoneShare `bson:"healthy"  json:"healthy"`
	Moderate ZoneShare `bson:"moderate" json:"moderate"`
	Stressed ZoneShare `bson:"stressed" json:"stressed"`
}

type ZoneShare struct {
	Percentage float64 `bson:"percentage" json:"percentage"`
	AreaHa     float64 `bson:"areaHa"     json:"areaHa"`
}

// StressIndicators are derived scalar sub-scores in [0, 1] (spec.md §3/§4.A).
type StressIndicators struct {
	Drought     float64  `bson:"drought"               json:"drought"`
	Disease     float64  `bson:"disease"               json:"disease"`
	Nutrient    float64  `bson:"nutrient"               json:"nutrient"`
	Pest        *float64 `bson:"pest,omitempty"        json:"pest,omitempty"`
	Temperature *float64 `bson:"temperature,omitempty" json:"temperature,omitempty"`
}

// Max returns the largest of the sub-scores, including Pest and
// Temperature when they are set, used by the HealthScore formula
// (spec.md §4.A).
func (s StressIndicators) Max() float64 {
	m := s.Drought
	if s.Disease > m {
		m = s.Disease
	}
	if s.Nutrient > m {
		m = s.Nutrient
	}
	if s.Pest != nil && *s.Pest > m {
		m = *s.Pest
	}
	if s.Temperature != nil && *s.Temperature > m {
		m = *s.Temperature
	}
	return m
}

// Trend classifies the direction of a NDVI comparison (spec.md §4.E).
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Significance classifies how large a comparison delta is relative to
// the prior value (spec.md §4.E).
type Significance string

const (
	SignificanceHigh     Significance = "high"
	SignificanceModerate Significance = "moderate"
	SignificanceLow      Significance = "low"
)

// ComparisonToPrevious summarizes the change from the most recent
// prior AnalysisResult for the same field.
type ComparisonToPrevious struct {
	PriorDate      time.Time    `bson:"priorDate"      json:"priorDate"`
	DeltaMeanNDVI  float64      `bson:"deltaMeanNdvi"  json:"deltaMeanNdvi"`
	Trend          Trend        `bson:"trend"          json:"trend"`
	Significance   Significance `bson:"significance"   json:"significance"`
}

// AnalysisResult is the per-(fieldId, analysisDate) outcome of the
// Analysis Engine (spec.md §3/§4.E).
type AnalysisResult struct {
	FieldID      string    `bson:"fieldId"      json:"fieldId"`
	FarmID       string    `bson:"farmId"       json:"farmId"`
	AnalysisDate string    `bson:"analysisDate" json:"analysisDate"` // YYYY-MM-DD
	Field        FieldBoundary `bson:"field"       json:"field"`

	Indices    VegetationIndices `bson:"indices"    json:"indices"`
	Zones      ZonePartition     `bson:"zones"      json:"zones"`
	Stress     StressIndicators  `bson:"stress"     json:"stress"`
	HealthScore int              `bson:"healthScore" json:"healthScore"`
	Confidence string            `bson:"confidence" json:"confidence"` // "normal" | "low_confidence"

	Comparison *ComparisonToPrevious `bson:"comparison,omitempty" json:"comparison,omitempty"`

	AlertSeeds          []AlertSeed          `bson:"alertSeeds,omitempty"          json:"alertSeeds,omitempty"`
	RecommendationSeeds []RecommendationSeed `bson:"recommendationSeeds,omitempty" json:"recommendationSeeds,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Key returns the (fieldId, analysisDate) upsert key spec.md §3 names
// as the uniqueness invariant.
func (a AnalysisResult) Key() string { return a.FieldID + "|" + a.AnalysisDate }

// AlertSeed is the Analysis Engine's one-way handoff to the Alert
// Engine: the engine never materializes or owns a StressAlert itself
// (spec.md §9 — avoid the cyclic reference by one-way flow).
type AlertSeed struct {
	Kind AlertKind
	// Score is the triggering sub-score (drought/disease/nutrient) or
	// health score normalized to [0,1], used by the Alert Engine to
	// compute severity.
	Score float64
}

// RecommendationSeed is a rule-based suggestion the Analysis Engine
// derives directly (spec.md §4.E step 7), distinct from the Planner's
// zone-wise VariableRateRecommendation.
type RecommendationSeed struct {
	Category string // irrigation | fertilization | pest_control | soil_management | harvest_timing
	Message  string
	Priority string // immediate | within_24h | within_week
}

// --- Alerts (spec.md §3/§4.F) ---

type AlertKind string

const (
	AlertDroughtCritical AlertKind = "drought_critical"
	AlertDiseaseOutbreak AlertKind = "disease_outbreak"
	AlertNutrientSevere  AlertKind = "nutrient_severe"
	AlertPestInfestation AlertKind = "pest_infestation"
	AlertGeneralDecline  AlertKind = "general_decline"

	AlertFrost    AlertKind = "frost"
	AlertHeat     AlertKind = "heat"
	AlertWind     AlertKind = "wind"
	AlertHail     AlertKind = "hail"
	AlertFlood    AlertKind = "flood"
	AlertDrought  AlertKind = "drought"
	AlertStorm    AlertKind = "storm"
	AlertFireRisk AlertKind = "fire_risk"
)

type Severity string

const (
	SeverityMinor     Severity = "minor"
	SeverityModerate  Severity = "moderate"
	SeverityHigh      Severity = "high"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// severityRank gives the total order spec.md §3's urgency-consistency
// invariant relies on (never decreasing severity, never mismatched
// urgency).
var severityRank = map[Severity]int{
	SeverityMinor:     1,
	SeverityModerate:  2,
	SeverityHigh:      3,
	SeverityCritical:  4,
	SeverityEmergency: 5,
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

type AlertStatus string

const (
	AlertStatusActive        AlertStatus = "active"
	AlertStatusAcknowledged  AlertStatus = "acknowledged"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

type ActionPriority string

const (
	PriorityImmediate  ActionPriority = "immediate"
	PriorityWithin24h  ActionPriority = "within_24h"
	PriorityWithinWeek ActionPriority = "within_week"
)

type ActionItem struct {
	Task          string         `bson:"task"          json:"task"`
	Priority      ActionPriority `bson:"priority"       json:"priority"`
	EstimatedCost float64        `bson:"estimatedCost"  json:"estimatedCost"`
	Equipment     []string       `bson:"equipment,omitempty" json:"equipment,omitempty"`
}

type SatelliteContext struct {
	NDVI      float64 `bson:"ndvi"      json:"ndvi"`
	PriorNDVI float64 `bson:"priorNdvi" json:"priorNdvi"`
	Delta     float64 `bson:"delta"     json:"delta"`
	Trend     Trend   `bson:"trend"     json:"trend"`
}

type WeatherContext struct {
	TemperatureC float64 `bson:"temperatureC" json:"temperatureC"`
	HumidityPct  float64 `bson:"humidityPct"  json:"humidityPct"`
	WindMps      float64 `bson:"windMps"      json:"windMps"`
	Confidence   string  `bson:"confidence"   json:"confidence"` // "provider" | "rule_based"
}

// Alert is the unified, materialized alert the Alert Engine owns the
// lifecycle of (spec.md §3 — StressAlert and WeatherAlert share this
// shape, distinguished only by Kind, per spec.md §9's "tagged variant,
// not inheritance" guidance).
type Alert struct {
	ID              string          `bson:"_id"                     json:"id"`
	FarmID          string          `bson:"farmId"                  json:"farmId"`
	FieldID         string          `bson:"fieldId"                 json:"fieldId"`
	Kind            AlertKind       `bson:"kind"                    json:"kind"`
	Severity        Severity        `bson:"severity"                json:"severity"`
	Urgency         int             `bson:"urgency"                 json:"urgency"` // 1..5
	AffectedAreaPct float64         `bson:"affectedAreaPct"         json:"affectedAreaPct"`
	EstimatedLossUSD *float64       `bson:"estimatedLossUsd,omitempty" json:"estimatedLossUsd,omitempty"`
	SatelliteContext *SatelliteContext `bson:"satelliteContext,omitempty" json:"satelliteContext,omitempty"`
	WeatherContext   *WeatherContext   `bson:"weatherContext,omitempty"   json:"weatherContext,omitempty"`
	Confidence       float64         `bson:"confidence"              json:"confidence"` // weather alerts only; 0 for crop alerts
	ActiveWindow     *TimeWindow     `bson:"activeWindow,omitempty"  json:"activeWindow,omitempty"`
	ActionItems      []ActionItem    `bson:"actionItems,omitempty"   json:"actionItems,omitempty"`
	Status           AlertStatus     `bson:"status"                  json:"status"`
	DetectedAt       time.Time       `bson:"detectedAt"              json:"detectedAt"`
	ResolvedAt       *time.Time      `bson:"resolvedAt,omitempty"    json:"resolvedAt,omitempty"`
	AcknowledgedBy   string          `bson:"acknowledgedBy,omitempty" json:"acknowledgedBy,omitempty"`
	ResolvedBy       string          `bson:"resolvedBy,omitempty"    json:"resolvedBy,omitempty"`
	ResolutionNote   string          `bson:"resolutionNote,omitempty" json:"resolutionNote,omitempty"`
}

type TimeWindow struct {
	Start time.Time `bson:"start" json:"start"`
	End   time.Time `bson:"end"   json:"end"`
}

// --- Precision-Ag Planner (spec.md §3/§4.G) ---

type ApplicationKind string

const (
	ApplicationFertilizer ApplicationKind = "fertilizer"
	ApplicationSeed       ApplicationKind = "seed"
	ApplicationPesticide  ApplicationKind = "pesticide"
	ApplicationIrrigation ApplicationKind = "irrigation"
	ApplicationLime       ApplicationKind = "lime"
)

type ApplicationZone struct {
	ZoneID    string    `bson:"zoneId"    json:"zoneId"`
	NDVIRange [2]float64 `bson:"ndviRange" json:"ndviRange"`
	AreaHa    float64   `bson:"areaHa"    json:"areaHa"`
	Rate      float64   `bson:"rate"      json:"rate"`
	Rationale string    `bson:"rationale" json:"rationale"`
}

type TimingWindow struct {
	OptimalStart      time.Time `bson:"optimalStart" json:"optimalStart"`
	OptimalEnd        time.Time `bson:"optimalEnd"   json:"optimalEnd"`
	WeatherConstraints []string `bson:"weatherConstraints,omitempty" json:"weatherConstraints,omitempty"`
	SeasonalFactors    []string `bson:"seasonalFactors,omitempty"    json:"seasonalFactors,omitempty"`
}

type EquipmentPlan struct {
	Recommended      []string          `bson:"recommended"      json:"recommended"`
	Settings         map[string]string `bson:"settings,omitempty" json:"settings,omitempty"`
	CalibrationSteps []string          `bson:"calibrationSteps,omitempty" json:"calibrationSteps,omitempty"`
}

type ExpectedOutcome struct {
	YieldIncreasePct  float64 `bson:"yieldIncreasePct"  json:"yieldIncreasePct"`
	CostSavingsUSD    float64 `bson:"costSavingsUsd"    json:"costSavingsUsd"`
	EnvironmentalNote string  `bson:"environmentalNote" json:"environmentalNote"`
	ROIPct            float64 `bson:"roiPct"            json:"roiPct"`
}

type VariableRateRecommendation struct {
	ID                 string            `bson:"_id"                json:"id"`
	ApplicationKind    ApplicationKind   `bson:"applicationKind"    json:"applicationKind"`
	Product            string            `bson:"product"            json:"product"`
	BaseRate           float64           `bson:"baseRate"           json:"baseRate"`
	RateUnit           string            `bson:"rateUnit"           json:"rateUnit"`
	VariabilityFactor  [2]float64        `bson:"variabilityFactor"  json:"variabilityFactor"`
	TotalQuantity      float64           `bson:"totalQuantity"      json:"totalQuantity"`
	EstimatedCostUSD   float64           `bson:"estimatedCostUsd"   json:"estimatedCostUsd"`
	Zones              []ApplicationZone `bson:"zones"              json:"zones"`
	Timing             TimingWindow      `bson:"timing"             json:"timing"`
	Equipment          EquipmentPlan     `bson:"equipment"          json:"equipment"`
	ExpectedOutcome    ExpectedOutcome   `bson:"expectedOutcome"    json:"expectedOutcome"`
}

type PlanSummary struct {
	TotalCostUSD        float64 `bson:"totalCostUsd"        json:"totalCostUsd"`
	ExpectedRevenueUSD  float64 `bson:"expectedRevenueUsd"  json:"expectedRevenueUsd"`
	NetBenefitUSD       float64 `bson:"netBenefitUsd"       json:"netBenefitUsd"`
	PaybackMonths       float64 `bson:"paybackMonths"       json:"paybackMonths"` // +Inf when revenue == 0
	SustainabilityScore float64 `bson:"sustainabilityScore" json:"sustainabilityScore"`
}

type WeeklyTaskBucket struct {
	WeekStart time.Time `bson:"weekStart" json:"weekStart"`
	Tasks     []string  `bson:"tasks"     json:"tasks"`
}

type PrecisionPlan struct {
	FarmID      string                       `bson:"farmId"      json:"farmId"`
	FieldID     string                       `bson:"fieldId"     json:"fieldId"`
	Season      string                       `bson:"season"      json:"season"`
	CropType    string                       `bson:"cropType"    json:"cropType"`
	TotalAreaHa float64                      `bson:"totalAreaHa" json:"totalAreaHa"`
	Recommendations []VariableRateRecommendation `bson:"recommendations" json:"recommendations"`
	Summary     PlanSummary                  `bson:"summary"     json:"summary"`
	Schedule    []WeeklyTaskBucket           `bson:"schedule"    json:"schedule"`
	CreatedAt   time.Time                    `bson:"createdAt"   json:"createdAt"`
}

// Key returns the (farmId, fieldId, season) upsert key spec.md §6 names.
func (p PrecisionPlan) Key() string { return p.FarmID + "|" + p.FieldID + "|" + p.Season }

// --- Weather capability types (spec.md §3/§4.D) ---

type CurrentWeather struct {
	TemperatureC float64
	HumidityPct  float64
	WindMps      float64
	ObservedAt   time.Time
}

type DailyForecast struct {
	Date              time.Time
	MinTemperatureC   float64
	MaxTemperatureC   float64
	PrecipProbPct     float64
	WindMps           float64
}

type AggregatedWeatherData struct {
	MeanTemperatureC float64
	DryDayCount      int
	IrrigationNeed   bool
}

// --- Trend series (spec.md §6) ---

type TrendPoint struct {
	Date     string  `json:"date"`
	NDVIMean float64 `json:"ndviMean"`
	HealthScore int  `json:"healthScore"`
}

type GrowthStage string

const (
	GrowthEmergence  GrowthStage = "emergence"
	GrowthVegetative GrowthStage = "vegetative"
	GrowthPeak       GrowthStage = "peak"
	GrowthSenescence GrowthStage = "senescence"
)

type TrendSeries struct {
	FieldID           string       `json:"fieldId"`
	Points            []TrendPoint `json:"points"`
	SeasonalAverages  map[string]float64 `json:"seasonalAverages"`
	GrowthStage       GrowthStage  `json:"growthStage"`
}

// --- Farm-level bundle (spec.md §4.H/§6) ---

type FieldFailure struct {
	FieldID string    `json:"fieldId"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type HealthDistribution struct {
	Healthy  int `json:"healthy"`
	Moderate int `json:"moderate"`
	Stressed int `json:"stressed"`
}

type FarmSummary struct {
	TotalFields         int                `json:"totalFields"`
	CriticalAlertCount  int                `json:"criticalAlertCount"`
	AvgHealth           float64            `json:"avgHealth"`
	PrimaryStressor     string             `json:"primaryStressor"`
	HealthDistribution  HealthDistribution `json:"healthDistribution"`
	ProjectedROIPct     float64            `json:"projectedRoiPct"`
}

type FarmAnalysisBundle struct {
	FarmID    string           `json:"farmId"`
	Results   []AnalysisResult `json:"results"`
	Alerts    []Alert          `json:"alerts"`
	Plans     []PrecisionPlan  `json:"plans"`
	Summary   FarmSummary      `json:"summary"`
	Failures  []FieldFailure   `json:"failures"`
	Cancelled bool             `json:"cancelled"`
}
