package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/liamashdown/tradeintel/internal/secrets"
)

// Config holds all service configuration
type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// Database
	DatabaseDSN         string
	DatabaseMaxConns    int
	DatabaseMaxIdleTime time.Duration
	StoreTimeout        time.Duration // Per-call bound on store reads
	StoreRPS            float64       // Store reads per second; 0 disables throttling
	AutoMigrate         bool

	// Cache
	CacheTTL         time.Duration
	CacheSweep       time.Duration
	ProductCacheTTL  time.Duration
	RiskScoreWorkers int

	// HTTP
	HTTPPort int
	APIRPS   float64

	// Analysis thresholds, optionally overlaid from a YAML file
	AnalysisConfigFile string
	Analysis           Analysis
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment:         getEnv("ENVIRONMENT", "production"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:         secrets.GetOptionalSecret("DATABASE_DSN", "tradeintel:tradeintel@tcp(mysql:3306)/tradeintel?parseTime=true"),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMaxIdleTime: time.Duration(getEnvInt("DATABASE_MAX_IDLE_TIME_MINS", 5)) * time.Minute,
		StoreTimeout:        time.Duration(getEnvInt("STORE_TIMEOUT_SEC", 10)) * time.Second,
		StoreRPS:            getEnvFloat("STORE_RPS", 200.0),
		AutoMigrate:         getEnvBool("AUTO_MIGRATE", false),
		CacheTTL:            time.Duration(getEnvInt("CACHE_TTL_MINS", 15)) * time.Minute,
		CacheSweep:          time.Duration(getEnvInt("CACHE_SWEEP_MINS", 5)) * time.Minute,
		ProductCacheTTL:     time.Duration(getEnvInt("PRODUCT_CACHE_MINS", 60)) * time.Minute,
		RiskScoreWorkers:    getEnvInt("RISK_SCORE_WORKERS", 8),
		HTTPPort:            getEnvInt("HTTP_PORT", 8080),
		APIRPS:              getEnvFloat("API_RPS", 20.0),
		AnalysisConfigFile:  getEnv("ANALYSIS_CONFIG_FILE", ""),
	}

	analysis, err := LoadAnalysis(cfg.AnalysisConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.Analysis = *analysis
	cfg.Analysis.Risk.Workers = cfg.RiskScoreWorkers

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT_SEC must be positive")
	}
	if c.StoreRPS < 0 {
		return fmt.Errorf("STORE_RPS must not be negative")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL_MINS must be positive")
	}
	if c.CacheSweep <= 0 {
		return fmt.Errorf("CACHE_SWEEP_MINS must be positive")
	}
	if c.RiskScoreWorkers <= 0 {
		return fmt.Errorf("RISK_SCORE_WORKERS must be positive")
	}
	if c.APIRPS <= 0 {
		return fmt.Errorf("API_RPS must be positive")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL: %s (valid values: debug, info, warn, error)", c.LogLevel)
	}

	return c.Analysis.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
