// Package config loads the simulator's configuration from a YAML file and
// DISKSIM_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dargueta/disksim"
	"github.com/dargueta/disksim/disks"
	"github.com/dargueta/disksim/scheduler"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete simulator configuration.
type Config struct {
	Disk       DiskConfig       `mapstructure:"disk" yaml:"disk"`
	Allocation AllocationConfig `mapstructure:"allocation" yaml:"allocation"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// DiskConfig describes the geometry of a new disk. TotalBlocks and BlockSize
// override the values from Preset when set.
type DiskConfig struct {
	Preset      string `mapstructure:"preset" validate:"required" yaml:"preset"`
	TotalBlocks uint   `mapstructure:"total_blocks" validate:"required,gt=0" yaml:"total_blocks"`
	BlockSize   uint   `mapstructure:"block_size" validate:"required,gt=0" yaml:"block_size"`
}

// AllocationConfig controls how files are placed on the disk.
type AllocationConfig struct {
	Strategy string `mapstructure:"strategy" validate:"required,oneof=continuous linked indexed" yaml:"strategy"`

	// Seed makes linked and indexed allocation reproducible. 0 picks a random
	// seed.
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// SchedulerConfig holds the defaults for the schedule command.
type SchedulerConfig struct {
	Policy    string `mapstructure:"policy" validate:"required,oneof=FCFS SSTF SCAN" yaml:"policy"`
	Direction string `mapstructure:"direction" validate:"required,oneof=up down" yaml:"direction"`

	// MaxBlock is the highest block SCAN sweeps to. 0 means the last block of
	// the disk.
	MaxBlock int `mapstructure:"max_block" validate:"gte=0" yaml:"max_block"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	// Level is the minimum log level.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format is the log output format.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Textfile is where metrics are written in the Prometheus text format when
	// a command finishes.
	Textfile string `mapstructure:"textfile" validate:"required_if=Enabled true" yaml:"textfile"`
}

// Strategy gives the configured allocation strategy.
func (c *Config) Strategy() disksim.Strategy {
	return disksim.ParseStrategy(c.Allocation.Strategy)
}

// Policy gives the configured scheduling policy.
func (c *Config) Policy() (scheduler.Policy, error) {
	return scheduler.ParsePolicy(c.Scheduler.Policy)
}

// Direction gives the configured SCAN direction.
func (c *Config) Direction() (scheduler.Direction, error) {
	return scheduler.ParseDirection(c.Scheduler.Direction)
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DISKSIM_*)
//  2. Configuration file
//  3. Default values
//
// A missing configuration file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	cfg := &Config{}
	if err := ApplyDefaults(cfg); err != nil {
		// The default preset is embedded, so this can't fail.
		panic(err)
	}
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration fields
// and normalizes the rest. It fails only if the disk preset doesn't exist.
func ApplyDefaults(cfg *Config) error {
	if err := applyDiskDefaults(&cfg.Disk); err != nil {
		return err
	}

	cfg.Allocation.Strategy = strings.ToLower(strings.TrimSpace(cfg.Allocation.Strategy))
	if cfg.Allocation.Strategy == "" {
		cfg.Allocation.Strategy = disksim.Continuous.String()
	}

	cfg.Scheduler.Policy = strings.ToUpper(strings.TrimSpace(cfg.Scheduler.Policy))
	if cfg.Scheduler.Policy == "" {
		cfg.Scheduler.Policy = scheduler.FCFS.String()
	}
	cfg.Scheduler.Direction = strings.ToLower(strings.TrimSpace(cfg.Scheduler.Direction))
	if cfg.Scheduler.Direction == "" {
		cfg.Scheduler.Direction = scheduler.Up.String()
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	return nil
}

func applyDiskDefaults(cfg *DiskConfig) error {
	if cfg.Preset == "" {
		cfg.Preset = disks.DefaultSlug
	}

	geometry, err := disks.GetPredefinedDiskGeometry(cfg.Preset)
	if err != nil {
		return err
	}
	if cfg.TotalBlocks == 0 {
		cfg.TotalBlocks = geometry.TotalBlocks()
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = geometry.BlockSize()
	}
	return nil
}

// Validate checks the configuration against its `validate` tags.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Scheduler.MaxBlock > 0 && uint(cfg.Scheduler.MaxBlock) >= cfg.Disk.TotalBlocks {
		return fmt.Errorf(
			"scheduler.max_block %d is past the end of a %d-block disk",
			cfg.Scheduler.MaxBlock,
			cfg.Disk.TotalBlocks)
	}
	return nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DISKSIM_ prefix and underscores, e.g.
	// DISKSIM_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DISKSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees environment variables for keys viper knows about.
	for _, key := range []string{
		"disk.preset",
		"disk.total_blocks",
		"disk.block_size",
		"allocation.strategy",
		"allocation.seed",
		"scheduler.policy",
		"scheduler.direction",
		"scheduler.max_block",
		"logging.level",
		"logging.format",
		"logging.output",
		"metrics.enabled",
		"metrics.textfile",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// readConfigFile reads the configuration file if one was given and exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if v.ConfigFileUsed() == "" {
		return false, nil
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}
