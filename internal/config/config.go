// Package config loads the pipeline's configuration surface from the
// environment, following DemeterEye's mustConfig/getenv idiom and
// extending it with the nested tables spec.md §6 enumerates.
package config

import (
	"os"
	"strconv"
	"time"
)

type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	Factor    float64
	JitterPct float64
}

type WeatherThresholds struct {
	FrostC          float64
	HeatC           float64
	WindMps         float64
	PrecipProbPct   float64
	DryDaysDrought  int
}

type ImageryConfig struct {
	BaseURL          string
	MaxCloudPct      float64
	Retry            RetryConfig
	BreakerThreshold uint32
}

type WeatherConfig struct {
	BaseURL          string
	Thresholds       WeatherThresholds
	Retry            RetryConfig
	BreakerThreshold uint32
}

type AlertsConfig struct {
	DedupWindow                  time.Duration
	DispatchCriticalAndAboveOnly bool
}

type AnalysisConfig struct {
	Concurrency     int
	PerFieldTimeout time.Duration
}

// ZoneMultiplier holds the per-band rate multiplier a planner uses
// when sizing a variable-rate application (spec.md §4.G).
type ZoneMultiplier struct {
	Healthy  float64
	Moderate float64
	Stressed float64
}

type PlannerConfig struct {
	ZoneMultipliers map[string]ZoneMultiplier // keyed by ApplicationKind
}

// SchedulerConfig configures the periodic farm-scan trigger (spec.md
// §6's "Scheduling Policy").
type SchedulerConfig struct {
	CronExpression string // standard 5-field cron, e.g. "0 6 * * *" for daily at 06:00
	ScanTimeout    time.Duration
	MaxConcurrent  int // number of farms scanned in parallel per tick
}

type CacheConfig struct {
	WeatherCurrentTTL  time.Duration
	WeatherForecastTTL time.Duration
	AnalysisHistoryTTL time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string // empty ⇒ Redis disabled, in-process cache only
	Password string
	DB       int
}

type Config struct {
	Mongo    MongoConfig
	Redis    RedisConfig
	HTTPPort string

	Imagery  ImageryConfig
	Weather  WeatherConfig
	Alerts   AlertsConfig
	Analysis AnalysisConfig
	Planner   PlannerConfig
	Cache     CacheConfig
	Scheduler SchedulerConfig
}

// Must loads configuration from the environment, falling back to the
// defaults spec.md §6 names for every field left unset.
func Must() Config {
	return Config{
		Mongo: MongoConfig{
			URI:      getenv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getenv("MONGO_DB", "demeterfield"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		HTTPPort: getenv("PORT", "8080"),
		Imagery: ImageryConfig{
			BaseURL:     getenv("IMAGERY_BASE_URL", "http://localhost:9001"),
			MaxCloudPct: getenvFloat("IMAGERY_MAX_CLOUD_PCT", 30),
			Retry: RetryConfig{
				Attempts:  getenvInt("IMAGERY_RETRY_ATTEMPTS", 4),
				BaseDelay: time.Duration(getenvInt("IMAGERY_RETRY_BASE_MS", 250)) * time.Millisecond,
				Factor:    getenvFloat("IMAGERY_RETRY_FACTOR", 2),
				JitterPct: getenvFloat("IMAGERY_RETRY_JITTER_PCT", 20),
			},
			BreakerThreshold: uint32(getenvInt("IMAGERY_BREAKER_THRESHOLD", 5)),
		},
		Weather: WeatherConfig{
			BaseURL: getenv("WEATHER_BASE_URL", "http://localhost:9002"),
			Thresholds: WeatherThresholds{
				FrostC:         getenvFloat("WEATHER_THRESHOLD_FROST_C", 2),
				HeatC:          getenvFloat("WEATHER_THRESHOLD_HEAT_C", 35),
				WindMps:        getenvFloat("WEATHER_THRESHOLD_WIND_MPS", 15),
				PrecipProbPct:  getenvFloat("WEATHER_THRESHOLD_PRECIP_PCT", 80),
				DryDaysDrought: getenvInt("WEATHER_THRESHOLD_DRY_DAYS", 7),
			},
			Retry: RetryConfig{
				Attempts:  getenvInt("WEATHER_RETRY_ATTEMPTS", 4),
				BaseDelay: time.Duration(getenvInt("WEATHER_RETRY_BASE_MS", 250)) * time.Millisecond,
				Factor:    getenvFloat("WEATHER_RETRY_FACTOR", 2),
				JitterPct: getenvFloat("WEATHER_RETRY_JITTER_PCT", 20),
			},
			BreakerThreshold: uint32(getenvInt("WEATHER_BREAKER_THRESHOLD", 5)),
		},
		Alerts: AlertsConfig{
			DedupWindow:                  time.Duration(getenvInt("ALERTS_DEDUP_WINDOW_HOURS", 24)) * time.Hour,
			DispatchCriticalAndAboveOnly: getenvBool("ALERTS_DISPATCH_CRITICAL_ONLY", true),
		},
		Analysis: AnalysisConfig{
			Concurrency:     getenvInt("ANALYSIS_CONCURRENCY", 8),
			PerFieldTimeout: time.Duration(getenvInt("ANALYSIS_PER_FIELD_TIMEOUT_MS", 60000)) * time.Millisecond,
		},
		Planner: PlannerConfig{
			ZoneMultipliers: defaultZoneMultipliers(),
		},
		Cache: CacheConfig{
			WeatherCurrentTTL:  time.Duration(getenvInt("CACHE_WEATHER_CURRENT_S", 600)) * time.Second,
			WeatherForecastTTL: time.Duration(getenvInt("CACHE_WEATHER_FORECAST_S", 1800)) * time.Second,
			AnalysisHistoryTTL: time.Duration(getenvInt("CACHE_ANALYSIS_HISTORY_S", 86400)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			CronExpression: getenv("SCHEDULER_CRON", "0 6 * * *"),
			ScanTimeout:    time.Duration(getenvInt("SCHEDULER_SCAN_TIMEOUT_MIN", 30)) * time.Minute,
			MaxConcurrent:  getenvInt("SCHEDULER_MAX_CONCURRENT_FARMS", 4),
		},
	}
}

func defaultZoneMultipliers() map[string]ZoneMultiplier {
	return map[string]ZoneMultiplier{
		"fertilizer": {Healthy: 0.9, Moderate: 1.1, Stressed: 1.4},
		"irrigation": {Healthy: 0.9, Moderate: 1.15, Stressed: 1.4},
		"seed":       {Healthy: 1.0, Moderate: 1.05, Stressed: 1.1},
		"pesticide":  {Healthy: 0.8, Moderate: 1.1, Stressed: 1.4},
		"lime":       {Healthy: 0.9, Moderate: 1.1, Stressed: 1.3},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
