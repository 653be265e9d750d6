// Package config provides environment-driven configuration and per-OS path
// resolution for the licensing system.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration, loaded from environment
// variables with the ALLYIN prefix.
type Config struct {
	License LicenseConfig `envconfig:"LICENSE"`
	Logging LoggingConfig `envconfig:"LOGGING"`
}

// LicenseConfig configures the license manager. SecretKey must be supplied
// and kept stable across restarts for encrypted state files to remain
// readable; a manager constructed without one generates a fresh random
// secret and cannot decrypt files written by a previous process.
type LicenseConfig struct {
	ProductID         string  `envconfig:"PRODUCT_ID" default:"AllyIn"`
	TrialDays         float64 `envconfig:"TRIAL_DAYS" default:"30"`
	UserID            string  `envconfig:"USER_ID"`
	SecretKey         string  `envconfig:"SECRET_KEY"`
	RSAPrivateKeyPath string  `envconfig:"RSA_PRIVATE_KEY_PATH"`
	RSAPublicKeyPath  string  `envconfig:"RSA_PUBLIC_KEY_PATH" default:"public_key.pem"`
	LicenseFile       string  `envconfig:"LICENSE_FILE"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level    string `envconfig:"LEVEL" default:"info"`
	Format   string `envconfig:"FORMAT" default:"json"`
	Output   string `envconfig:"OUTPUT" default:"stdout"`
	FilePath string `envconfig:"FILE_PATH"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("ALLYIN", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	return &cfg, nil
}
