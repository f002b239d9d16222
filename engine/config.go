package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foofork/riptide/engine/internal/gate"
	"github.com/foofork/riptide/engine/internal/pool"
)

// Config is the public configuration surface for the Engine facade,
// narrowing the underlying component configs the way the teacher's own
// Config narrows PipelineConfig/resources.Config/RateLimitConfig behind
// one struct with yaml tags for an external loader to populate.
type Config struct {
	// WASM sandbox
	WASMPath              string        `yaml:"wasm_path"`
	WASMCacheDir          string        `yaml:"wasm_cache_dir"`
	EpochDeadline         time.Duration `yaml:"epoch_deadline"`
	ExpectedVersionPrefix string        `yaml:"expected_version_prefix"`
	WASMWatchForChanges   bool          `yaml:"wasm_watch_for_changes"`

	// Instance pool
	Pool pool.Config `yaml:"pool"`

	// Gate thresholds
	Gate gate.Thresholds `yaml:"gate"`

	// Pipeline / retry policy
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
	RetryMaxAttempts int           `yaml:"retry_max_attempts"`
	ExtractorVersion string        `yaml:"extractor_version"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	ChainThreshold   float64       `yaml:"chain_threshold"`

	// Telemetry
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsBackend string `yaml:"metrics_backend"` // "noop" | "prom"
}

// Defaults returns a Config with reasonable defaults, mirroring the
// teacher's engine.Defaults().
func Defaults() Config {
	return Config{
		EpochDeadline:       30 * time.Second,
		WASMWatchForChanges: true,
		Pool:                pool.DefaultConfig(),
		Gate:                gate.DefaultThresholds(),
		RetryBaseDelay:      100 * time.Millisecond,
		RetryMaxDelay:       2 * time.Second,
		RetryMaxAttempts:    3,
		ExtractorVersion:    "dev",
		CacheTTL:            24 * time.Hour,
		ChainThreshold:      0.5,
		MetricsEnabled:      false,
		MetricsBackend:      "noop",
	}
}

// LoadConfig reads a YAML config file at path, layering it over Defaults().
// A missing file is not an error: it yields the defaults unchanged, the
// same "absent config is valid" behavior as the teacher's
// RuntimeConfigManager.LoadConfiguration.
func LoadConfig(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
