package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/me/ingestd/internal/logging"
)

// Rollup policies.
const (
	RollupInProgress = "in_progress"
	RollupFailFast   = "fail_fast"
)

// Idempotency backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Executor types.
const (
	ExecutorSimulated = "simulated"
	ExecutorHTTP      = "http"
)

// ServerConfig holds configuration for the ingestd server.
type ServerConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`             // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`   // debug, info, warn, error
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"` // text, json, pretty
	DBPath    string `yaml:"db_path" env:"DB_PATH"`       // SQLite status journal; empty disables it

	Scheduler   SchedulerConfig   `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Idempotency IdempotencyConfig `yaml:"idempotency" envPrefix:"IDEMPOTENCY_"`
	Executor    ExecutorConfig    `yaml:"executor" envPrefix:"EXECUTOR_"`
}

// SchedulerConfig tunes batching and dispatch.
type SchedulerConfig struct {
	BatchSize       int           `yaml:"batch_size" env:"BATCH_SIZE"`
	InterBatchDelay time.Duration `yaml:"inter_batch_delay" env:"INTER_BATCH_DELAY"`
	IdlePoll        time.Duration `yaml:"idle_poll" env:"IDLE_POLL"`
	FaultBackoff    time.Duration `yaml:"fault_backoff" env:"FAULT_BACKOFF"`
	ItemTimeout     time.Duration `yaml:"item_timeout" env:"ITEM_TIMEOUT"` // 0 = no limit
	RollupPolicy    string        `yaml:"rollup_policy" env:"ROLLUP_POLICY"`
}

// IdempotencyConfig selects and tunes the duplicate-submission cache.
type IdempotencyConfig struct {
	Window        time.Duration `yaml:"window" env:"WINDOW"`
	Backend       string        `yaml:"backend" env:"BACKEND"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string        `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

// ExecutorConfig selects the work executor.
type ExecutorConfig struct {
	Type        string        `yaml:"type" env:"TYPE"`
	Latency     time.Duration `yaml:"latency" env:"LATENCY"`           // simulated
	SuccessRate float64       `yaml:"success_rate" env:"SUCCESS_RATE"` // simulated, 0..1
	URL         string        `yaml:"url" env:"URL"`                   // http
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`           // http
}

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "INGESTD_"

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Scheduler: SchedulerConfig{
			BatchSize:       3,
			InterBatchDelay: 5 * time.Second,
			IdlePoll:        100 * time.Millisecond,
			FaultBackoff:    time.Second,
			RollupPolicy:    RollupInProgress,
		},
		Idempotency: IdempotencyConfig{
			Window:      300 * time.Second,
			Backend:     BackendMemory,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "ingestd:idem:",
		},
		Executor: ExecutorConfig{
			Type:        ExecutorSimulated,
			Latency:     500 * time.Millisecond,
			SuccessRate: 1.0,
			Timeout:     10 * time.Second,
		},
	}
}

// Load builds a config from defaults, then the YAML file at path (if
// non-empty), then INGESTD_* environment variables.
func Load(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg, nil); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. When environ is nil the
// process environment is used.
func ApplyEnv(cfg *ServerConfig, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Validate checks the config for values the scheduler cannot run with.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.Scheduler.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.batch_size must be positive, got %d", c.Scheduler.BatchSize))
	}
	if c.Scheduler.InterBatchDelay < 0 {
		errs = append(errs, errors.New("scheduler.inter_batch_delay must not be negative"))
	}
	if c.Scheduler.IdlePoll <= 0 {
		errs = append(errs, errors.New("scheduler.idle_poll must be positive"))
	}
	if c.Scheduler.FaultBackoff < 0 {
		errs = append(errs, errors.New("scheduler.fault_backoff must not be negative"))
	}
	if c.Scheduler.ItemTimeout < 0 {
		errs = append(errs, errors.New("scheduler.item_timeout must not be negative"))
	}
	switch c.Scheduler.RollupPolicy {
	case RollupInProgress, RollupFailFast:
	default:
		errs = append(errs, fmt.Errorf("unknown scheduler.rollup_policy %q", c.Scheduler.RollupPolicy))
	}
	if c.Idempotency.Window <= 0 {
		errs = append(errs, errors.New("idempotency.window must be positive"))
	}
	switch c.Idempotency.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Idempotency.RedisAddr == "" {
			errs = append(errs, errors.New("idempotency.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown idempotency.backend %q", c.Idempotency.Backend))
	}
	switch c.Executor.Type {
	case ExecutorSimulated:
		if c.Executor.SuccessRate < 0 || c.Executor.SuccessRate > 1 {
			errs = append(errs, fmt.Errorf("executor.success_rate must be within [0,1], got %v", c.Executor.SuccessRate))
		}
	case ExecutorHTTP:
		if c.Executor.URL == "" {
			errs = append(errs, errors.New("executor.url is required for the http executor"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown executor.type %q", c.Executor.Type))
	}
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
