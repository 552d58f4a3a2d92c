// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for databases and strategy files (always absolute)
	Hotkey        string // SS58 hotkey address the strategy is published under
	StakingAPIURL string
	LogLevel      string
	Port          int
	DevMode       bool

	Strategy *StrategyConfig
	Backup   *BackupConfig
}

// StrategyConfig holds the allocation engine parameters.
// Defaults match the tuned production values; all are overridable via
// environment variables.
type StrategyConfig struct {
	LookbackDays       int           // Days of historical data to analyze
	MinDataPoints      int           // Minimum return observations per subnet
	RebalanceThreshold float64       // Minimum allocation change to trigger a rebalance
	Cooldown           time.Duration // Minimum time between accepted rebalances
	MaxAllocation      float64       // Maximum fraction per subnet
	MinAllocation      float64       // Minimum fraction per subnet
	CashAllocation     float64       // Reserve kept out of the risk budget
	MaxSubnets         int           // Maximum number of subnets to hold
	MaxDrawdownLimit   float64       // Drawdown ceiling for ranking eligibility
	VolatilityLimit    float64       // Extreme-volatility guard for ranking eligibility

	// Ranking weights. Must sum to 1.0.
	WeightComposite float64
	WeightSharpe    float64
	WeightMAR       float64
	WeightWinRate   float64
	WeightEmission  float64

	// Monitor settings.
	EmergencyReturnThreshold float64 // Trailing 7d return below -threshold forces a rebalance
}

// BackupConfig holds S3-compatible off-site backup settings.
// Backups are disabled unless credentials and a bucket are configured.
type BackupConfig struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Retention       int // Number of backups to keep
}

// Enabled reports whether enough settings are present to run backups.
func (b *BackupConfig) Enabled() bool {
	return b.Bucket != "" && b.AccessKeyID != "" && b.SecretAccessKey != ""
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("SENTINEL_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:       absDataDir,
		Hotkey:        getEnv("SENTINEL_HOTKEY", ""),
		StakingAPIURL: getEnv("STAKING_API_URL", "https://api.staking.taos.network"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Port:          getEnvAsInt("GO_PORT", 8001),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		Strategy: &StrategyConfig{
			LookbackDays:       getEnvAsInt("LOOKBACK_DAYS", 30),
			MinDataPoints:      getEnvAsInt("MIN_DATA_POINTS", 5),
			RebalanceThreshold: getEnvAsFloat("REBALANCE_THRESHOLD", 0.05),
			Cooldown:           time.Duration(getEnvAsInt("REBALANCE_COOLDOWN_HOURS", 6)) * time.Hour,
			MaxAllocation:      getEnvAsFloat("MAX_ALLOCATION", 0.25),
			MinAllocation:      getEnvAsFloat("MIN_ALLOCATION", 0.02),
			CashAllocation:     getEnvAsFloat("CASH_ALLOCATION", 0.05),
			MaxSubnets:         getEnvAsInt("MAX_SUBNETS", 10),
			MaxDrawdownLimit:   getEnvAsFloat("MAX_DRAWDOWN_LIMIT", 0.8),
			VolatilityLimit:    getEnvAsFloat("VOLATILITY_LIMIT", 5.0),

			WeightComposite: 0.30,
			WeightSharpe:    0.25,
			WeightMAR:       0.20,
			WeightWinRate:   0.15,
			WeightEmission:  0.10,

			EmergencyReturnThreshold: getEnvAsFloat("EMERGENCY_RETURN_THRESHOLD", 0.15),
		},
		Backup: &BackupConfig{
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Retention:       getEnvAsInt("BACKUP_RETENTION", 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants eagerly, so a bad configuration
// is rejected at startup rather than discovered mid-computation.
func (c *Config) Validate() error {
	if c.Strategy == nil {
		return fmt.Errorf("strategy configuration missing")
	}
	return c.Strategy.Validate()
}

// Validate checks the strategy parameters.
func (s *StrategyConfig) Validate() error {
	if s.MaxAllocation < s.MinAllocation {
		return fmt.Errorf("max_allocation (%.4f) must not be less than min_allocation (%.4f)",
			s.MaxAllocation, s.MinAllocation)
	}
	if s.MinAllocation < 0 || s.MaxAllocation > 1 {
		return fmt.Errorf("allocation bounds must lie in [0, 1], got [%.4f, %.4f]",
			s.MinAllocation, s.MaxAllocation)
	}
	if s.CashAllocation < 0 || s.CashAllocation >= 1 {
		return fmt.Errorf("cash_allocation must lie in [0, 1), got %.4f", s.CashAllocation)
	}
	if s.MaxSubnets <= 0 {
		return fmt.Errorf("max_subnets must be positive, got %d", s.MaxSubnets)
	}
	if s.MinDataPoints < 2 {
		return fmt.Errorf("min_data_points must be at least 2, got %d", s.MinDataPoints)
	}
	if s.RebalanceThreshold <= 0 {
		return fmt.Errorf("rebalance_threshold must be positive, got %.4f", s.RebalanceThreshold)
	}
	if s.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive, got %s", s.Cooldown)
	}

	weightSum := s.WeightComposite + s.WeightSharpe + s.WeightMAR + s.WeightWinRate + s.WeightEmission
	if weightSum < 0.999 || weightSum > 1.001 {
		return fmt.Errorf("ranking weights must sum to 1.0, got %.4f", weightSum)
	}

	return nil
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
