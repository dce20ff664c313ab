// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dudecon/SpaceWheat/internal/modules/evolution"
)

// Config holds the lookahead host configuration
type Config struct {
	LogLevel  string
	LogPretty bool

	Steps       int
	Dt          float64
	MaxSubstep  float64
	SliceBudget time.Duration // per-frame budget for sliced runs

	PacingDelay time.Duration // sleep between eager steps
	CPUGuard    float64       // percent; 0 disables the guard

	MIPurityThreshold float64
	MIScreenThreshold float64
	ModulationScale   float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", false),
		Steps:             getEnvAsInt("LOOKAHEAD_STEPS", 5),
		Dt:                getEnvAsFloat("LOOKAHEAD_DT", 0.1),
		MaxSubstep:        getEnvAsFloat("LOOKAHEAD_MAX_SUBSTEP", 0.02),
		SliceBudget:       time.Duration(getEnvAsInt("LOOKAHEAD_SLICE_MS", 5)) * time.Millisecond,
		PacingDelay:       time.Duration(getEnvAsInt("LOOKAHEAD_PACING_MS", 1)) * time.Millisecond,
		CPUGuard:          getEnvAsFloat("LOOKAHEAD_CPU_GUARD", 0),
		MIPurityThreshold: getEnvAsFloat("MI_PURITY_THRESHOLD", evolution.DefaultPurityThreshold),
		MIScreenThreshold: getEnvAsFloat("MI_SCREEN_THRESHOLD", evolution.DefaultScreenThreshold),
		ModulationScale:   getEnvAsFloat("PHASE_MODULATION_SCALE", 0.01),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that numeric settings are usable
func (c *Config) Validate() error {
	if c.Steps < 0 {
		return fmt.Errorf("LOOKAHEAD_STEPS must be >= 0, got %d", c.Steps)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("LOOKAHEAD_DT must be positive, got %g", c.Dt)
	}
	if c.MaxSubstep <= 0 {
		return fmt.Errorf("LOOKAHEAD_MAX_SUBSTEP must be positive, got %g", c.MaxSubstep)
	}
	if c.PacingDelay < 0 {
		return fmt.Errorf("LOOKAHEAD_PACING_MS must be >= 0, got %s", c.PacingDelay)
	}
	if c.CPUGuard < 0 || c.CPUGuard > 100 {
		return fmt.Errorf("LOOKAHEAD_CPU_GUARD must be a percentage, got %g", c.CPUGuard)
	}
	if c.MIPurityThreshold < 0 || c.MIPurityThreshold > 1 {
		return fmt.Errorf("MI_PURITY_THRESHOLD must be in [0, 1], got %g", c.MIPurityThreshold)
	}
	if c.MIScreenThreshold < 0 {
		return fmt.Errorf("MI_SCREEN_THRESHOLD must be >= 0, got %g", c.MIScreenThreshold)
	}
	return nil
}

// MIOptions returns the adaptive mutual-information thresholds.
func (c *Config) MIOptions() evolution.MIOptions {
	return evolution.MIOptions{
		PurityThreshold: c.MIPurityThreshold,
		ScreenThreshold: c.MIScreenThreshold,
	}
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
