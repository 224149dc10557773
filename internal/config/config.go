// Package config provides unified configuration for the canvassd service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full canvassd configuration.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Tenants is the fixed set of constituency ids known at startup
	Tenants []int `json:"tenants" yaml:"tenants"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Query configuration
	Query QueryConfig `json:"query" yaml:"query"`

	// Cache configuration
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Storage configuration (snapshot archive backend)
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Snapshot configuration
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address for the API server
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// QueryConfig holds query-layer configuration.
type QueryConfig struct {
	// PartitionDir is the directory holding per-tenant partition files
	PartitionDir string `json:"partition_dir" yaml:"partition_dir"`

	// FanoutConcurrency is the number of parallel per-tenant shard queries
	FanoutConcurrency int `json:"fanout_concurrency" yaml:"fanout_concurrency"`

	// ShardTimeout bounds each per-tenant call during a fan-out so one
	// unreachable partition cannot stall the global view
	ShardTimeout time.Duration `json:"shard_timeout" yaml:"shard_timeout"`
}

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	// DefaultTTL is the default entry lifetime
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"`

	// MaxEntries bounds the number of cached entries
	MaxEntries int `json:"max_entries" yaml:"max_entries"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// SnapshotConfig holds partition snapshot configuration.
type SnapshotConfig struct {
	// Enabled controls whether snapshot archive/restore is available
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Prefix is the object-path prefix for uploaded snapshots
	Prefix string `json:"prefix" yaml:"prefix"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/canvassd",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Query: QueryConfig{
			FanoutConcurrency: 8,
			ShardTimeout:      10 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL: 5 * time.Minute,
			MaxEntries: 10000,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Snapshot: SnapshotConfig{
			Enabled: false,
			Prefix:  "snapshots",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/canvassd"
	}
	if c.Query.PartitionDir == "" {
		c.Query.PartitionDir = filepath.Join(c.DataDir, "partitions")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if len(c.Tenants) == 0 {
		return fmt.Errorf("tenants: at least one constituency id is required")
	}
	seen := make(map[int]bool, len(c.Tenants))
	for _, id := range c.Tenants {
		if id <= 0 {
			return fmt.Errorf("tenants: constituency ids must be positive, got %d", id)
		}
		if seen[id] {
			return fmt.Errorf("tenants: duplicate constituency id %d", id)
		}
		seen[id] = true
	}

	if c.Query.FanoutConcurrency <= 0 {
		return fmt.Errorf("query.fanout_concurrency must be > 0, got %d", c.Query.FanoutConcurrency)
	}
	if c.Query.ShardTimeout <= 0 {
		return fmt.Errorf("query.shard_timeout must be > 0")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CANVASSD_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CANVASSD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CANVASSD_TENANTS"); v != "" {
		if ids, err := ParseTenantList(v); err == nil {
			cfg.Tenants = ids
		}
	}

	// HTTP configuration
	if v := os.Getenv("CANVASSD_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Query configuration
	if v := os.Getenv("CANVASSD_FANOUT_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.FanoutConcurrency)
	}
	if v := os.Getenv("CANVASSD_SHARD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Query.ShardTimeout = d
		}
	}

	// Cache configuration
	if v := os.Getenv("CANVASSD_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DefaultTTL = d
		}
	}
	if v := os.Getenv("CANVASSD_CACHE_MAX_ENTRIES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Cache.MaxEntries)
	}

	// Storage configuration
	if v := os.Getenv("CANVASSD_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("CANVASSD_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CANVASSD_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("CANVASSD_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("CANVASSD_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// Snapshot configuration
	if v := os.Getenv("CANVASSD_SNAPSHOT_ENABLED"); v != "" {
		cfg.Snapshot.Enabled = v == "true" || v == "1"
	}
}

// ParseTenantList parses a comma-separated list of constituency ids.
func ParseTenantList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid tenant id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Query.PartitionDir,
		c.Storage.Path,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
