// Package config loads the YAML configuration of the router daemon.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/ice-blockchain/go-rwsplit"
	"github.com/ice-blockchain/go-rwsplit/balancer"
	"github.com/ice-blockchain/go-rwsplit/pool"
)

const (
	defaultListen    = ":8080"
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

var (
	ErrNoGroups        = errors.New("at least one group must be configured")
	ErrEmptyName       = errors.New("name should not be empty")
	ErrDuplicateGroup  = errors.New("duplicate group name")
	ErrDuplicateTarget = errors.New("duplicate target name")
	ErrEmptyDriver     = errors.New("driver should not be empty")
	ErrEmptyDSN        = errors.New("dsn should not be empty")
	ErrWrongWeight     = errors.New("weight must be greater than 0")
	ErrNegative        = errors.New("must not be negative")
	ErrWrongThreshold  = errors.New("failure threshold must be greater than 0")
	ErrUnknownLevel    = errors.New("unknown log level")
	ErrUnknownFormat   = errors.New("unknown log format")
)

// TargetConfig describes how to open one database.
type TargetConfig struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ReplicaConfig struct {
	TargetConfig `yaml:",inline"`

	Weight int `yaml:"weight"`
	// Available is the initial availability, true when omitted.
	Available *bool `yaml:"available"`
}

// IsAvailable returns the configured availability.
func (r ReplicaConfig) IsAvailable() bool {
	return r.Available == nil || *r.Available
}

type GroupConfig struct {
	Name string `yaml:"name"`
	// Strategy overrides Config.DefaultStrategy.
	Strategy string          `yaml:"strategy"`
	Primary  TargetConfig    `yaml:"primary"`
	Replicas []ReplicaConfig `yaml:"replicas"`
}

type HealthCheckConfig struct {
	// Enabled is true when omitted.
	Enabled          *bool         `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

// IsEnabled returns the configured flag.
func (h HealthCheckConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type Config struct {
	DefaultStrategy         string            `yaml:"default_strategy"`
	ReplicationLagTolerance time.Duration     `yaml:"replication_lag_tolerance"`
	ConsistencyWindow       time.Duration     `yaml:"consistency_window"`
	HealthCheck             HealthCheckConfig `yaml:"health_check"`
	Groups                  []GroupConfig     `yaml:"groups"`
	HTTP                    HTTPConfig        `yaml:"http"`
	Logging                 LoggingConfig     `yaml:"logging"`
}

// Load reads, completes and validates the configuration file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is provided by a trusted flag.
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a configuration, applies defaults and environment
// overrides, and validates the result. Unknown keys are rejected.
func Parse(b []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, rwsplit.ConfigError{Err: err}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every omitted value.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DefaultStrategy) == "" {
		cfg.DefaultStrategy = string(balancer.RoundRobinStrategy)
	}
	if cfg.ConsistencyWindow == 0 {
		cfg.ConsistencyWindow = pool.DefaultConsistencyWindow
	}
	if cfg.HealthCheck.Interval == 0 {
		cfg.HealthCheck.Interval = pool.DefaultCheckInterval
	}
	if cfg.HealthCheck.Timeout == 0 {
		cfg.HealthCheck.Timeout = pool.DefaultProbeTimeout
	}
	if cfg.HealthCheck.FailureThreshold == 0 {
		cfg.HealthCheck.FailureThreshold = pool.DefaultFailureThreshold
	}
	for i := range cfg.Groups {
		for j := range cfg.Groups[i].Replicas {
			r := &cfg.Groups[i].Replicas[j]
			if r.Weight == 0 {
				r.Weight = 1
			}
			// Replicas share the driver of the primary unless told otherwise.
			if r.Driver == "" {
				r.Driver = cfg.Groups[i].Primary.Driver
			}
		}
	}
	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultListen
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogFormat
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("RWSPLIT_HTTP_LISTEN")); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("RWSPLIT_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("RWSPLIT_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate reports every problem of cfg at once.
func Validate(cfg *Config) error {
	var errs *multierror.Error

	if _, err := balancer.ParseStrategy(cfg.DefaultStrategy); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("default_strategy: %w", err))
	}
	if cfg.ReplicationLagTolerance < 0 {
		errs = multierror.Append(errs, fmt.Errorf("replication_lag_tolerance %w", ErrNegative))
	}
	if cfg.ConsistencyWindow < 0 {
		errs = multierror.Append(errs, fmt.Errorf("consistency_window %w", ErrNegative))
	}
	if cfg.HealthCheck.Interval < 0 {
		errs = multierror.Append(errs, fmt.Errorf("health_check.interval %w", ErrNegative))
	}
	if cfg.HealthCheck.Timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("health_check.timeout %w", ErrNegative))
	}
	if cfg.HealthCheck.FailureThreshold < 1 {
		errs = multierror.Append(errs, ErrWrongThreshold)
	}
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		errs = multierror.Append(errs, err)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		errs = multierror.Append(errs, fmt.Errorf("%w: %q", ErrUnknownFormat, cfg.Logging.Format))
	}

	if len(cfg.Groups) == 0 {
		errs = multierror.Append(errs, ErrNoGroups)
	}
	groups := make(map[string]bool, len(cfg.Groups))
	for i, g := range cfg.Groups {
		if g.Name != "" && groups[g.Name] {
			errs = multierror.Append(errs, rwsplit.ConfigError{Group: g.Name, Err: ErrDuplicateGroup})
		}
		groups[g.Name] = true

		if err := validateGroup(g); err != nil {
			name := g.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			errs = multierror.Append(errs, rwsplit.ConfigError{Group: name, Err: err})
		}
	}

	return errs.ErrorOrNil()
}

func validateGroup(g GroupConfig) error {
	var errs *multierror.Error

	if g.Name == "" {
		errs = multierror.Append(errs, fmt.Errorf("group %w", ErrEmptyName))
	}
	if g.Strategy != "" {
		if _, err := balancer.ParseStrategy(g.Strategy); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	names := make(map[string]bool, len(g.Replicas)+1)
	check := func(kind string, t TargetConfig) {
		if t.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s %w", kind, ErrEmptyName))
		} else if names[t.Name] {
			errs = multierror.Append(errs, fmt.Errorf("%w: %q", ErrDuplicateTarget, t.Name))
		}
		names[t.Name] = true
		if t.Driver == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s %q: %w", kind, t.Name, ErrEmptyDriver))
		}
		if t.DSN == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s %q: %w", kind, t.Name, ErrEmptyDSN))
		}
	}

	check("primary", g.Primary)
	for _, r := range g.Replicas {
		check("replica", r.TargetConfig)
		if r.Weight < 1 {
			errs = multierror.Append(errs, fmt.Errorf("replica %q: %w", r.Name, ErrWrongWeight))
		}
	}
	return errs.ErrorOrNil()
}

// ParseLevel maps a level name to a slog level. "trace" is
// rwsplit.LevelTrace.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return rwsplit.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
}

// Group returns the named group configuration.
func (cfg *Config) Group(name string) (GroupConfig, bool) {
	for _, g := range cfg.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return GroupConfig{}, false
}

// GroupOpts converts a group configuration. Metrics and logger are left to
// the caller.
func (cfg *Config) GroupOpts(g GroupConfig) (pool.GroupOpts, error) {
	name := g.Strategy
	if name == "" {
		name = cfg.DefaultStrategy
	}
	strategy, err := balancer.ParseStrategy(name)
	if err != nil {
		return pool.GroupOpts{}, rwsplit.ConfigError{Group: g.Name, Err: err}
	}

	replicas := make([]pool.ReplicaOpts, 0, len(g.Replicas))
	for _, r := range g.Replicas {
		replicas = append(replicas, pool.ReplicaOpts{
			Name:        r.Name,
			Weight:      r.Weight,
			Unavailable: !r.IsAvailable(),
		})
	}
	return pool.GroupOpts{
		Name:              g.Name,
		Primary:           g.Primary.Name,
		Replicas:          replicas,
		Strategy:          strategy,
		ConsistencyWindow: cfg.ConsistencyWindow,
	}, nil
}

// MonitorOpts converts the health check section. The logger is left to the
// caller.
func (cfg *Config) MonitorOpts() pool.MonitorOpts {
	return pool.MonitorOpts{
		Interval:         cfg.HealthCheck.Interval,
		Timeout:          cfg.HealthCheck.Timeout,
		FailureThreshold: cfg.HealthCheck.FailureThreshold,
		LagTolerance:     cfg.ReplicationLagTolerance,
	}
}
