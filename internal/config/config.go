package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/udc-experiments/internal/experiment"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
)

// CUDA detection modes.
const (
	CUDAAuto = "auto"
	CUDAOn   = "on"
	CUDAOff  = "off"
)

var cudaModes = []string{CUDAAuto, CUDAOn, CUDAOff}

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int

	// CUDA selects how device availability is decided: auto, on or off.
	CUDA string
	// System is the machine default applied before any named configuration.
	System experiment.System
	// Layouts add to or replace the built-in directory layouts.
	Layouts map[experiment.System]experiment.Layout
	// NamedConfigs are registered after the built-in named configurations.
	NamedConfigs []experiment.Named
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string                       `yaml:"port"`
	ShutdownGracePeriod  string                       `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string                       `yaml:"read_header_timeout"`
	WriteTimeout         string                       `yaml:"write_timeout"`
	IdleTimeout          string                       `yaml:"idle_timeout"`
	EnableRequestLogging *bool                        `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit                `yaml:"rate_limit"`
	CUDA                 string                       `yaml:"cuda"`
	System               string                       `yaml:"system"`
	Layouts              map[string]experiment.Layout `yaml:"layouts"`
	NamedConfigs         []experiment.Named           `yaml:"named_configs"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	CUDA           *string
	System         *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults.
// The YAML config file is read from fs.
func Load(fs afero.Fs, overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	applyEnvConfig(&cfg)

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(fs, overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

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
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		CUDA:                 CUDAAuto,
		Layouts:              map[experiment.System]experiment.Layout{},
	}
}

// Environment builds the resolution environment: built-in layouts merged with
// configured ones, CUDA availability per the CUDA mode and the machine default system.
func (c Config) Environment(fs afero.Fs, lookupEnv func(string) (string, bool)) experiment.Environment {
	env := experiment.DefaultEnvironment()
	for system, layout := range c.Layouts {
		env.Layouts[system] = layout
	}

	switch c.CUDA {
	case CUDAOn:
		env.CUDAAvailable = true
	case CUDAOff:
		env.CUDAAvailable = false
	default:
		env.CUDAAvailable = experiment.DetectCUDA(fs, lookupEnv)
	}

	if c.System != "" {
		env.Defaults = experiment.Overrides{experiment.KeySystem: string(c.System)}
	}
	return env
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(fs afero.Fs, path string) (*yamlConfig, error) {
	data, err := afero.ReadFile(fs, path)
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

	durations := []struct {
		name  string
		raw   string
		value *time.Duration
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
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.value = parsed
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

	if yamlCfg.CUDA != "" {
		cfg.CUDA = strings.ToLower(strings.TrimSpace(yamlCfg.CUDA))
	}

	if yamlCfg.System != "" {
		cfg.System = experiment.System(strings.TrimSpace(yamlCfg.System))
	}

	for name, layout := range yamlCfg.Layouts {
		cfg.Layouts[experiment.System(name)] = layout
	}

	cfg.NamedConfigs = append(cfg.NamedConfigs, yamlCfg.NamedConfigs...)
	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if mode := strings.TrimSpace(os.Getenv("UDC_CUDA")); mode != "" {
		cfg.CUDA = strings.ToLower(mode)
	}

	if system := strings.TrimSpace(os.Getenv("UDC_SYSTEM")); system != "" {
		cfg.System = experiment.System(system)
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.CUDA != nil && *overrides.CUDA != "" {
		cfg.CUDA = strings.ToLower(*overrides.CUDA)
	}

	if overrides.System != nil && *overrides.System != "" {
		cfg.System = experiment.System(*overrides.System)
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if !lo.Contains(cudaModes, cfg.CUDA) {
		return fmt.Errorf("cuda must be one of [%s], got %q", strings.Join(cudaModes, ","), cfg.CUDA)
	}
	if cfg.System != "" && !cfg.System.Valid() {
		return fmt.Errorf("system must be one of %v, got %q", experiment.Systems, cfg.System)
	}
	for system, layout := range cfg.Layouts {
		if !system.Valid() {
			return fmt.Errorf("layout for unknown system %q", system)
		}
		if strings.TrimSpace(layout.ImageDir) == "" {
			return fmt.Errorf("layout for %s: image_dir cannot be empty", system)
		}
	}
	return nil
}
