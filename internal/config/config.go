package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/twsight/twsight/internal/modules/scoring"
)

// Config holds application configuration. Market-tuned cutoffs (probability
// thresholds, moat bars, ETF adjustment) are environment-driven, not
// hardcoded.
type Config struct {
	Port         int
	DevMode      bool
	LogLevel     string
	DatabasePath string
	ModelPath    string

	// Analysis settings.
	HistoryDays       int
	FlowLookbackDays  int
	IncludeStochastic bool
	TestFraction      float64

	// Backtest / probability thresholds.
	BuyThreshold  float64
	SellThreshold float64

	// Scan bounds.
	ScanWorkers     int
	ScanMaxPicks    int
	ScanMaxWarnings int

	ModelCacheSize int

	// Cron expression for the nightly bar-cache refresh (seconds field
	// included). Default fires after the Taiwan session settles.
	RefreshSchedule string

	// Scoring cutoff overrides.
	InclusionScore    int
	ETFInclusionDelta int
	MoatMarketCap     float64
	MoatROE           float64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	defaults := scoring.DefaultThresholds()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8001),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DatabasePath: getEnv("DATABASE_PATH", "./data/twsight.db"),
		ModelPath:    getEnv("MODEL_PATH", "./data/models/direction_v1.bin"),

		HistoryDays:       getEnvAsInt("HISTORY_DAYS", 180),
		FlowLookbackDays:  getEnvAsInt("FLOW_LOOKBACK_DAYS", 20),
		IncludeStochastic: getEnvAsBool("INCLUDE_STOCHASTIC", false),
		TestFraction:      getEnvAsFloat("TEST_FRACTION", 0.2),

		BuyThreshold:  getEnvAsFloat("BUY_THRESHOLD", 0.60),
		SellThreshold: getEnvAsFloat("SELL_THRESHOLD", 0.40),

		ScanWorkers:     getEnvAsInt("SCAN_WORKERS", 4),
		ScanMaxPicks:    getEnvAsInt("SCAN_MAX_PICKS", 5),
		ScanMaxWarnings: getEnvAsInt("SCAN_MAX_WARNINGS", 3),

		ModelCacheSize: getEnvAsInt("MODEL_CACHE_SIZE", 4),

		RefreshSchedule: getEnv("REFRESH_SCHEDULE", "0 30 18 * * MON-FRI"),

		InclusionScore:    getEnvAsInt("INCLUSION_SCORE", defaults.InclusionScore),
		ETFInclusionDelta: getEnvAsInt("ETF_INCLUSION_DELTA", defaults.ETFInclusionDelta),
		MoatMarketCap:     getEnvAsFloat("MOAT_MARKET_CAP", defaults.MoatMarketCap),
		MoatROE:           getEnvAsFloat("MOAT_ROE", defaults.MoatROE),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return fmt.Errorf("TEST_FRACTION must be in (0,1), got %.2f", c.TestFraction)
	}
	if c.BuyThreshold <= c.SellThreshold {
		return fmt.Errorf("BUY_THRESHOLD (%.2f) must exceed SELL_THRESHOLD (%.2f)",
			c.BuyThreshold, c.SellThreshold)
	}
	return nil
}

// Thresholds returns the scoring cutoffs with environment overrides applied.
func (c *Config) Thresholds() scoring.Thresholds {
	t := scoring.DefaultThresholds()
	t.InclusionScore = c.InclusionScore
	t.ETFInclusionDelta = c.ETFInclusionDelta
	t.MoatMarketCap = c.MoatMarketCap
	t.MoatROE = c.MoatROE
	return t
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
