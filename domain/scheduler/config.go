package scheduler

import (
	"os"
	"strconv"
	"time"
)

// Config holds scheduler configuration.
type Config struct {
	// Enabled controls whether the scheduler runs
	Enabled bool

	// ReviewExpiryInterval is the interval for expiring stale review items
	ReviewExpiryInterval time.Duration

	// StatsLogInterval is the interval for logging pipeline statistics
	StatsLogInterval time.Duration

	// Cron schedule overrides (take precedence over intervals when set)
	// Format: "second minute hour day-of-month month day-of-week"
	// Examples: "0 */5 * * * *" (every 5 min), "0 0 2 * * *" (daily at 2am)
	ReviewExpirySchedule string
	StatsLogSchedule     string
}

// NewConfig creates a new Config from environment variables.
func NewConfig() *Config {
	return &Config{
		Enabled:              getEnvBool("SCHEDULER_ENABLED", true),
		ReviewExpiryInterval: getEnvDuration("REVIEW_EXPIRY_INTERVAL_MS", time.Hour),
		StatsLogInterval:     getEnvDuration("STATS_LOG_INTERVAL_MS", 5*time.Minute),
		// Cron schedule overrides (empty string means use interval)
		ReviewExpirySchedule: getEnvString("REVIEW_EXPIRY_SCHEDULE", ""),
		StatsLogSchedule:     getEnvString("STATS_LOG_SCHEDULE", ""),
	}
}

// getEnvBool returns a boolean from an environment variable
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvInt returns an integer from an environment variable
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration returns a duration from an environment variable (in milliseconds)
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

// getEnvString returns a string from an environment variable
func getEnvString(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
