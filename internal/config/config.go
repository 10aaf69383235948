// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the databases, always absolute
	Port     int
	LogLevel string
	DevMode  bool

	MapBatchSize        int    // Transactions per mapping pass
	MapWorkers          int    // Scoring concurrency within a pass
	MapSchedule         string // Cron schedule for the mapping pass
	MaintenanceSchedule string // Cron schedule for WAL checkpoints and claim sweeps
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("LEDGERMAP_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		MapBatchSize: getEnvAsInt("MAP_BATCH_SIZE", 50),
		MapWorkers:   getEnvAsInt("MAP_WORKERS", 4),
		// Every 5 minutes by default; maintenance hourly.
		MapSchedule:         getEnv("MAP_SCHEDULE", "0 */5 * * * *"),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 0 * * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.MapBatchSize <= 0 {
		return fmt.Errorf("invalid mapping batch size: %d", c.MapBatchSize)
	}
	if c.MapWorkers <= 0 {
		return fmt.Errorf("invalid mapping worker count: %d", c.MapWorkers)
	}
	return nil
}

// LedgerDBPath returns the path of the ledger database.
func (c *Config) LedgerDBPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// PatternsDBPath returns the path of the patterns database.
func (c *Config) PatternsDBPath() string {
	return filepath.Join(c.DataDir, "patterns.db")
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
