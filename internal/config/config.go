// Package config provides the configuration of the partprune service and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/arkilian/partprune/internal/errors"
	"github.com/arkilian/partprune/internal/logging"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "PARTPRUNE_"

// Config holds the configuration of the partprune service.
type Config struct {
	// DataDir is the base directory for the catalog and local storage
	DataDir string `json:"data_dir" yaml:"data_dir" validate:"required"`

	Log     logging.Config `json:"log" yaml:"log"`
	HTTP    HTTPConfig     `json:"http" yaml:"http"`
	GRPC    GRPCConfig     `json:"grpc" yaml:"grpc"`
	Catalog CatalogConfig  `json:"catalog" yaml:"catalog"`
	Storage StorageConfig  `json:"storage" yaml:"storage"`
	Planner PlannerConfig  `json:"planner" yaml:"planner"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr" validate:"required"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" validate:"gte=0"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" validate:"gte=0"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr" validate:"required_if=Enabled true"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// CatalogConfig holds the partition catalog configuration.
type CatalogConfig struct {
	// Path is the SQLite catalog database; defaults to DataDir/catalog.db
	Path string `json:"path" yaml:"path"`

	// SnapshotTTL is how long scheme snapshots stay cached; zero disables
	// the cache
	SnapshotTTL time.Duration `json:"snapshot_ttl" yaml:"snapshot_ttl" validate:"gte=0"`

	// CacheCapacity is the maximum number of cached schemes
	CacheCapacity uint64 `json:"cache_capacity" yaml:"cache_capacity" validate:"required_with=SnapshotTTL"`
}

// StorageConfig holds the object storage used for catalog documents.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type" validate:"oneof=local s3"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// PlannerConfig controls partition pruning.
type PlannerConfig struct {
	// Enabled turns partition expansion on
	Enabled bool `json:"enabled" yaml:"enabled"`

	// StrictInvariants fails planning on internal consistency faults
	StrictInvariants bool `json:"strict_invariants" yaml:"strict_invariants"`

	// MaxInList bounds the IN lists pruned element by element
	MaxInList int `json:"max_in_list" yaml:"max_in_list" validate:"gte=0"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/partprune",
		Log: logging.Config{
			Level: "info",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Catalog: CatalogConfig{
			SnapshotTTL:   30 * time.Second,
			CacheCapacity: 1024,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Planner: PlannerConfig{
			Enabled:   true,
			MaxInList: 1024,
		},
	}
}

// Resolve fills paths derived from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/partprune"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.Wrap(apperrors.ErrCategoryValidation, apperrors.CodeInvalidConfig, "invalid configuration", err)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return apperrors.NewValidationError(apperrors.CodeInvalidConfig, "storage.s3.bucket is required when storage type is s3")
	}
	if c.GRPC.Enabled && c.GRPC.Addr == c.HTTP.Addr {
		return apperrors.NewValidationError(apperrors.CodeInvalidConfig,
			fmt.Sprintf("http and grpc cannot share address %s", c.HTTP.Addr))
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
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

// LoadFromEnv overrides cfg from PARTPRUNE_* environment variables. A value
// that does not parse is an error.
func LoadFromEnv(cfg *Config) error {
	var errs []string
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = d
		}
	}

	str("DATA_DIR", &cfg.DataDir)
	str("LOG_LEVEL", &cfg.Log.Level)
	boolean("LOG_PRETTY", &cfg.Log.Pretty)

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	duration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	duration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)

	str("GRPC_ADDR", &cfg.GRPC.Addr)
	boolean("GRPC_ENABLED", &cfg.GRPC.Enabled)

	str("CATALOG_PATH", &cfg.Catalog.Path)
	duration("CATALOG_SNAPSHOT_TTL", &cfg.Catalog.SnapshotTTL)

	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("S3_BUCKET", &cfg.Storage.S3.Bucket)
	str("S3_REGION", &cfg.Storage.S3.Region)
	str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)

	boolean("PLANNER_ENABLED", &cfg.Planner.Enabled)
	boolean("PLANNER_STRICT_INVARIANTS", &cfg.Planner.StrictInvariants)
	integer("PLANNER_MAX_IN_LIST", &cfg.Planner.MaxInList)

	if len(errs) > 0 {
		return apperrors.NewValidationError(apperrors.CodeInvalidConfig,
			"malformed environment variables: "+strings.Join(errs, ", "))
	}
	return nil
}

// Load builds the configuration from defaults, an optional file and the
// environment, then resolves and validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureDirectories creates the data directories the configuration uses.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, filepath.Dir(c.Catalog.Path)}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
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
