package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Load    LoadConfig    `yaml:"load"`
	Retry   RetryConfig   `yaml:"retry"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type StorageConfig struct {
	// Driver is "pgx" for Postgres or "sqlite". Env TWEETNORM_DB_DRIVER overrides.
	Driver string `yaml:"driver"`
	// DSN is a Postgres URL or a SQLite path. Env TWEETNORM_DB overrides.
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

type LoadConfig struct {
	// Records per transaction
	BatchSize int `yaml:"batchSize"`
	// Decode workers; 0 means one per CPU
	Workers       int           `yaml:"workers"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	ProgressEvery time.Duration `yaml:"progressEvery"`
	// Process files and archive members in reverse name order
	ReverseInputs bool `yaml:"reverseInputs"`
	// Max batch transactions per second; 0 is unlimited
	RateLimit float64 `yaml:"rateLimit"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	MaxBackoff  time.Duration `yaml:"maxBackoff"`
}

type MetricsConfig struct {
	// Empty disables the metrics server. Env METRICS_ADDR overrides.
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: "sqlite", DSN: "./tweetnorm.db", MaxOpenConns: 8},
		Load: LoadConfig{
			BatchSize:     500,
			Workers:       0,
			BatchTimeout:  2 * time.Minute,
			ProgressEvery: 10 * time.Second,
			ReverseInputs: true,
		},
		Retry: RetryConfig{MaxAttempts: 5, BaseBackoff: 500 * time.Millisecond, MaxBackoff: 30 * time.Second},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// ResolveEnv applies environment overrides.
func (c *Config) ResolveEnv() {
	if v := os.Getenv("TWEETNORM_DB_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("TWEETNORM_DB"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if n, ok := envInt("TWEETNORM_BATCH_SIZE"); ok {
		c.Load.BatchSize = n
	}
	if n, ok := envInt("TWEETNORM_WORKERS"); ok {
		c.Load.Workers = n
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// WorkerCount returns the decode worker count, resolving 0 to the CPU count.
func (l LoadConfig) WorkerCount() int {
	if l.Workers > 0 {
		return l.Workers
	}
	return runtime.NumCPU()
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "pgx", "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		return errors.Errorf("storage.driver: unsupported %q", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return errors.New("storage.dsn: empty")
	}
	if c.Load.BatchSize <= 0 {
		return errors.Errorf("load.batchSize: must be positive, got %d", c.Load.BatchSize)
	}
	if c.Load.Workers < 0 {
		return errors.Errorf("load.workers: must not be negative, got %d", c.Load.Workers)
	}
	if c.Load.BatchTimeout <= 0 {
		return errors.New("load.batchTimeout: must be positive")
	}
	if c.Load.RateLimit < 0 {
		return errors.New("load.rateLimit: must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.maxAttempts: must be at least 1")
	}
	return nil
}

// Load reads YAML config from path over the defaults and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
