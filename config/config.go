// Package config provides the yaml configuration of the test harness
package config

import (
	"fmt"
	"os"

	"github.com/dnsparity/dnsparity/log"

	"github.com/creasty/defaults"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config is the complete harness configuration
type Config struct {
	// Seed makes the query corpus deterministic and failures reproducible
	Seed uint64 `yaml:"seed" default:"1"`
	// WorkerCount bounds the number of concurrently in-flight cases
	WorkerCount uint `yaml:"workerCount" default:"4"`
	// QueryTimeout is the per-backend, per-attempt timeout
	QueryTimeout Duration `yaml:"queryTimeout" default:"5s"`
	// RunDeadline cancels the whole run when exceeded, 0 means none
	RunDeadline Duration `yaml:"runDeadline"`
	// RetryBudget is the number of re-runs granted to inconclusive cases
	RetryBudget uint `yaml:"retryBudget" default:"1"`
	// TTLTolerancePercent is the comparator's TTL tolerance band
	TTLTolerancePercent float64    `yaml:"ttlTolerancePercent" default:"5"`
	Backends            Backends   `yaml:"backends"`
	DNSSEC              DNSSEC     `yaml:"dnssec"`
	Coverage            Coverage   `yaml:"coverage"`
	Report              Report     `yaml:"report"`
	Log                 log.Config `yaml:"log"`
}

// Report configures the machine-readable run report
type Report struct {
	// Path of the JSON lines report file, empty writes to stdout only
	Path string `yaml:"path" default:"report.jsonl"`
}

// NewConfig returns a config populated with defaults only
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("can't apply default values: %w", err)
	}

	return cfg, nil
}

// LoadConfig reads the configuration from the given yaml file, applies
// defaults and validates it
func LoadConfig(path string) (*Config, error) {
	cfg, err := NewConfig()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file '%s': %w", path, err)
	}

	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("wrong file structure: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the whole configuration, collecting all problems into a
// single error. A run never starts with an invalid configuration.
func (cfg *Config) Validate() error {
	var result *multierror.Error

	if cfg.WorkerCount == 0 {
		result = multierror.Append(result, fmt.Errorf("workerCount must be at least 1"))
	}

	if !cfg.QueryTimeout.IsAboveZero() {
		result = multierror.Append(result, fmt.Errorf("queryTimeout must be above zero"))
	}

	if !cfg.RunDeadline.IsAtLeastZero() {
		result = multierror.Append(result, fmt.Errorf("runDeadline must not be negative"))
	}

	if cfg.TTLTolerancePercent < 0 || cfg.TTLTolerancePercent > 100 {
		result = multierror.Append(result,
			fmt.Errorf("ttlTolerancePercent must be between 0 and 100"))
	}

	if err := cfg.Backends.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := cfg.DNSSEC.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := cfg.Coverage.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// LogConfig logs the effective configuration
func (cfg *Config) LogConfig(logger *logrus.Entry) {
	logger.Infof("Seed = %d", cfg.Seed)
	logger.Infof("Worker count = %d", cfg.WorkerCount)
	logger.Infof("Query timeout = %s", cfg.QueryTimeout)

	if cfg.RunDeadline.IsAboveZero() {
		logger.Infof("Run deadline = %s", cfg.RunDeadline)
	}

	logger.Infof("Retry budget = %d", cfg.RetryBudget)
	logger.Infof("TTL tolerance = %.1f%%", cfg.TTLTolerancePercent)

	logger.Info("Backends:")
	cfg.Backends.LogConfig(logger)

	logger.Info("DNSSEC:")
	cfg.DNSSEC.LogConfig(logger)

	logger.Info("Coverage:")
	cfg.Coverage.LogConfig(logger)
}
