// Package config loads pipeline configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/curiemap/pkg/curiemap/adapters"
	"github.com/cognicore/curiemap/pkg/curiemap/internalerr"
)

// Config describes one cleaning run.
type Config struct {
	// Dataset names the run; it prefixes every output file.
	Dataset string       `yaml:"dataset"`
	Source  SourceConfig `yaml:"source"`
	Ingest  IngestConfig `yaml:"ingest"`
	Store   StoreConfig  `yaml:"store"`
	Norm    NormConfig   `yaml:"normalizer"`
	Merge   MergeConfig  `yaml:"merge"`
	Output  OutputConfig `yaml:"output"`
}

// SourceConfig selects the adapter and the raw files.
type SourceConfig struct {
	Format adapters.Format `yaml:"format"`
	Inputs []string        `yaml:"inputs"`
}

// IngestConfig tunes the external sort.
type IngestConfig struct {
	BufferSize       int    `yaml:"buffer_size"`
	TempDir          string `yaml:"temp_dir"`
	ShardConcurrency int    `yaml:"shard_concurrency"`
}

// StoreConfig locates the sorted store artifact.
type StoreConfig struct {
	// Backend is "file" (default) or "sqlite". With "sqlite" the passes
	// read from the NGD-schema database at SQLitePath.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	// SQLitePath, when set, exports the store to an NGD-compatible SQLite
	// database. Required when Backend is "sqlite".
	SQLitePath string `yaml:"sqlite_path"`
}

// NormConfig tunes the node-normalizer client.
type NormConfig struct {
	BaseURL               string  `yaml:"base_url"`
	BatchSize             int     `yaml:"batch_size"`
	Concurrency           int     `yaml:"concurrency"`
	Conflate              *bool   `yaml:"conflate"`
	DrugChemicalConflate  *bool   `yaml:"drug_chemical_conflate"`
	MaxRetries            int     `yaml:"max_retries"`
	BaseDelaySeconds      int     `yaml:"base_delay_seconds"`
	MaxDelaySeconds       int     `yaml:"max_delay_seconds"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	RequestsPerSecond     float64 `yaml:"requests_per_second"`
}

// BaseDelay returns the configured backoff base delay.
func (n NormConfig) BaseDelay() time.Duration {
	return time.Duration(n.BaseDelaySeconds) * time.Second
}

// MaxDelay returns the configured backoff cap.
func (n NormConfig) MaxDelay() time.Duration {
	return time.Duration(n.MaxDelaySeconds) * time.Second
}

// RequestTimeout returns the per-request timeout.
func (n NormConfig) RequestTimeout() time.Duration {
	return time.Duration(n.RequestTimeoutSeconds) * time.Second
}

// ConflateEnabled defaults to true when unset.
func (n NormConfig) ConflateEnabled() bool {
	return n.Conflate == nil || *n.Conflate
}

// DrugChemicalConflateEnabled defaults to true when unset.
func (n NormConfig) DrugChemicalConflateEnabled() bool {
	return n.DrugChemicalConflate == nil || *n.DrugChemicalConflate
}

// MergeConfig tunes Pass 2.
type MergeConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

// OutputConfig locates the result files.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.Dataset == "" {
		return fmt.Errorf("%w: dataset is required", internalerr.ErrInvalidConfig)
	}
	if _, err := adapters.ForFormat(c.Source.Format); err != nil {
		return err
	}
	if len(c.Source.Inputs) == 0 {
		return fmt.Errorf("%w: source.inputs is required", internalerr.ErrInvalidConfig)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", internalerr.ErrInvalidConfig)
	}
	switch c.Store.Backend {
	case "", "file":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("%w: store.sqlite_path is required with the sqlite backend", internalerr.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", internalerr.ErrInvalidConfig, c.Store.Backend)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("%w: output.dir is required", internalerr.ErrInvalidConfig)
	}
	if c.Norm.BatchSize < 0 || c.Norm.Concurrency < 0 || c.Norm.MaxRetries < 0 {
		return fmt.Errorf("%w: normalizer tunables must be non-negative", internalerr.ErrInvalidConfig)
	}
	return nil
}
