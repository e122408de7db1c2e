package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/atlas-packer/internal/storage"
)

const (
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultAlign          = 1
	defaultMaxBoxes       = 10_000
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	LogLevel             string
	Align                int
	VerifyPackings       bool
	MaxBoxes             int
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	Sheets               []storage.Sheet
}

// yamlConfig represents the YAML configuration file structure.
// Pointer fields distinguish "absent" from an explicit zero value.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	LogLevel             string        `yaml:"log_level"`
	Packing              yamlPacking   `yaml:"packing"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	Sheets               []yamlSheet   `yaml:"sheets"`
}

// yamlPacking represents the packing section in YAML.
type yamlPacking struct {
	Align    *int  `yaml:"align"`
	Verify   *bool `yaml:"verify"`
	MaxBoxes *int  `yaml:"max_boxes"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// yamlSheet is a sprite sheet preloaded into storage at startup.
type yamlSheet struct {
	Name     string           `yaml:"name"`
	MaxWidth int              `yaml:"max_width"`
	Sprites  []storage.Sprite `yaml:"sprites"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	LogLevel       *string
	Align          *int
	Verify         *bool
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Apply environment variables first so the YAML file can override them
	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		LogLevel:             defaultLogLevel,
		Align:                defaultAlign,
		VerifyPackings:       true,
		MaxBoxes:             defaultMaxBoxes,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	if yamlCfg.Packing.Align != nil {
		cfg.Align = *yamlCfg.Packing.Align
	}
	if yamlCfg.Packing.Verify != nil {
		cfg.VerifyPackings = *yamlCfg.Packing.Verify
	}
	if yamlCfg.Packing.MaxBoxes != nil {
		cfg.MaxBoxes = *yamlCfg.Packing.MaxBoxes
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		value, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = value
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	for _, s := range yamlCfg.Sheets {
		cfg.Sheets = append(cfg.Sheets, storage.Sheet{
			Name:     s.Name,
			MaxWidth: s.MaxWidth,
			Sprites:  s.Sprites,
		})
	}

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if align := strings.TrimSpace(os.Getenv("PACK_ALIGN")); align != "" {
		value, err := strconv.Atoi(align)
		if err != nil {
			return fmt.Errorf("PACK_ALIGN: invalid integer %q", align)
		}
		cfg.Align = value
	}

	if verify := strings.TrimSpace(os.Getenv("PACK_VERIFY")); verify != "" {
		value, err := strconv.ParseBool(verify)
		if err != nil {
			return fmt.Errorf("PACK_VERIFY: invalid boolean %q", verify)
		}
		cfg.VerifyPackings = value
	}

	if maxBoxes := strings.TrimSpace(os.Getenv("PACK_MAX_BOXES")); maxBoxes != "" {
		value, err := strconv.Atoi(maxBoxes)
		if err != nil {
			return fmt.Errorf("PACK_MAX_BOXES: invalid integer %q", maxBoxes)
		}
		cfg.MaxBoxes = value
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		value, err := strconv.ParseFloat(rps, 64)
		if err != nil || value < 0 {
			return fmt.Errorf("RATE_LIMIT_RPS: invalid non-negative number %q", rps)
		}
		cfg.RateLimitRPS = value
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		value, err := strconv.Atoi(burst)
		if err != nil || value < 0 {
			return fmt.Errorf("RATE_LIMIT_BURST: invalid non-negative integer %q", burst)
		}
		cfg.RateLimitBurst = value
	}

	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.Align != nil {
		cfg.Align = *overrides.Align
	}

	if overrides.Verify != nil {
		cfg.VerifyPackings = *overrides.Verify
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if cfg.Align < 1 {
		return fmt.Errorf("packing align must be >= 1, got %d", cfg.Align)
	}
	if cfg.MaxBoxes < 1 {
		return fmt.Errorf("packing max boxes must be >= 1, got %d", cfg.MaxBoxes)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}

	seen := make(map[string]struct{}, len(cfg.Sheets))
	for _, sheet := range cfg.Sheets {
		if _, dup := seen[sheet.Name]; dup {
			return fmt.Errorf("duplicate sprite sheet %q", sheet.Name)
		}
		seen[sheet.Name] = struct{}{}
	}
	return nil
}
