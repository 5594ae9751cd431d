package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Panama Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// DatabaseConfig contains data layer settings.
type DatabaseConfig struct {
	// Root is the directory holding the dataset directories.
	Root string `yaml:"root"`

	// FileID names the persistent dataset file under <root>/<dataset>.
	FileID string `yaml:"file_id"`

	// BusyTimeout is the maximum time to wait for a file lock (seconds).
	BusyTimeout int `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	// CredentialPassphrase protects stored publisher credentials.
	// Empty disables reading and writing credential passwords.
	CredentialPassphrase string `yaml:"credential_passphrase"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PANAMA_SECTION_KEY
// For example: PANAMA_DATABASE_ROOT, PANAMA_LOGGING_LEVEL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault is like Load but starts from Default when path does not exist.
// Environment overrides and validation apply either way.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// Default returns a Config with sensible defaults.
// It is also used when no configuration file exists.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Root:        "./data",
			FileID:      "MAIN0-panama.db",
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PANAMA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("PANAMA_DATABASE_ROOT"); v != "" {
		cfg.Database.Root = v
	}
	if v := os.Getenv("PANAMA_DATABASE_FILE_ID"); v != "" {
		cfg.Database.FileID = v
	}
	if v := os.Getenv("PANAMA_DATABASE_BUSY_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.BusyTimeout = n
		}
	}

	// Logging
	if v := os.Getenv("PANAMA_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security
	if v := os.Getenv("PANAMA_CREDENTIAL_PASSPHRASE"); v != "" {
		cfg.Security.CredentialPassphrase = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Database.Root) == "" {
		errs = append(errs, "database.root is required")
	}

	switch id := c.Database.FileID; {
	case id == "":
		errs = append(errs, "database.file_id is required")
	case filepath.Base(id) != id:
		errs = append(errs, "database.file_id must be a file name, not a path")
	}

	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	// Short passphrases make the derived key guessable offline.
	const minPassphraseLength = 8
	if p := c.Security.CredentialPassphrase; p != "" && len(p) < minPassphraseLength {
		errs = append(errs, "security.credential_passphrase must be at least 8 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
