// Package config loads acton settings from YAML files and environment
// variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/acton"
	"github.com/hupe1980/acton/active"
	"github.com/hupe1980/acton/codec"
	"github.com/hupe1980/acton/internal/compress"
	"github.com/hupe1980/acton/resource"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ACTON_"

// Config contains all acton settings.
type Config struct {
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Snapshot   SnapshotConfig   `json:"snapshot" yaml:"snapshot"`
	Oracle     OracleConfig     `json:"oracle" yaml:"oracle"`
	Resources  ResourceConfig   `json:"resources" yaml:"resources"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info (default), warn or error.
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format" yaml:"format"`
}

// SimulationConfig holds the active-learning loop settings.
type SimulationConfig struct {
	Epochs              int               `json:"epochs" yaml:"epochs"`
	InitialCount        int               `json:"initial_count" yaml:"initial_count"`
	RecommendationCount int               `json:"recommendation_count" yaml:"recommendation_count"`
	TestSize            float64           `json:"test_size" yaml:"test_size"`
	Seed                int64             `json:"seed" yaml:"seed"`
	Predictor           string            `json:"predictor" yaml:"predictor"`
	Recommender         string            `json:"recommender" yaml:"recommender"`
	Params              map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// StorageConfig configures managed stores and their remote backends.
type StorageConfig struct {
	// Compression of managed store payloads: none, lz4 or zstd.
	Compression string `json:"compression" yaml:"compression"`

	// LockTable is the DynamoDB table leasing remote stores. Empty disables
	// remote locking.
	LockTable string `json:"lock_table,omitempty" yaml:"lock_table,omitempty"`

	// LockLease is how long a remote lease lasts without renewal. Zero keeps
	// the default.
	LockLease time.Duration `json:"lock_lease,omitempty" yaml:"lock_lease,omitempty"`

	// LockOwner identifies this process in the lease table. Empty means
	// host and pid.
	LockOwner string `json:"lock_owner,omitempty" yaml:"lock_owner,omitempty"`

	S3    S3Config    `json:"s3" yaml:"s3"`
	MinIO MinIOConfig `json:"minio" yaml:"minio"`
}

// S3Config selects the AWS region, an optional custom endpoint and the
// multipart upload settings. Zero upload settings keep the SDK defaults.
type S3Config struct {
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	PartSizeBytes     int64 `json:"part_size_bytes,omitempty" yaml:"part_size_bytes,omitempty"`
	UploadConcurrency int   `json:"upload_concurrency,omitempty" yaml:"upload_concurrency,omitempty"`
}

// MinPartSizeBytes is the smallest multipart upload part S3 accepts.
const MinPartSizeBytes = 5 << 20

// MinIOConfig holds MinIO connection settings. Keys support ${VAR} syntax.
type MinIOConfig struct {
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
}

// String redacts the secret key.
func (c MinIOConfig) String() string {
	secret := ""
	if c.SecretKey != "" {
		secret = "(set)"
	}
	return fmt.Sprintf("MinIOConfig{Endpoint:%s, AccessKey:%s, SecretKey:%s, UseSSL:%t}",
		c.Endpoint, c.AccessKey, secret, c.UseSSL)
}

// SnapshotConfig configures snapshot streams.
type SnapshotConfig struct {
	Codec       string `json:"codec" yaml:"codec"`
	Compression string `json:"compression" yaml:"compression"`
}

// OracleConfig configures the simulated labeller.
type OracleConfig struct {
	// LabelsPerSecond limits the labelling rate. 0 means unlimited.
	LabelsPerSecond float64 `json:"labels_per_second" yaml:"labels_per_second"`

	// Burst is the number of labels handed out at once.
	Burst int `json:"burst" yaml:"burst"`
}

// ResourceConfig bounds predictor work.
type ResourceConfig struct {
	// MaxWorkers is the number of concurrent predictor workers. 0 means 1.
	MaxWorkers int64 `json:"max_workers" yaml:"max_workers"`

	// MemoryLimitBytes bounds prediction buffers. 0 means unlimited.
	MemoryLimitBytes int64 `json:"memory_limit_bytes" yaml:"memory_limit_bytes"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	sim := active.DefaultConfig()
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Simulation: SimulationConfig{
			Epochs:              sim.Epochs,
			InitialCount:        sim.InitialCount,
			RecommendationCount: sim.RecommendationCount,
			TestSize:            sim.TestSize,
			Seed:                sim.Seed,
			Predictor:           sim.Predictor,
			Recommender:         sim.Recommender,
		},
		Storage: StorageConfig{Compression: compress.ZSTD.String()},
		Snapshot: SnapshotConfig{
			Codec:       codec.Default.Name(),
			Compression: compress.None.String(),
		},
		Oracle: OracleConfig{Burst: 1},
	}
}

// DefaultPath returns ~/.acton/config.yaml, or "" without a home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".acton", "config.yaml")
}

// Load builds the configuration. Order: defaults -> file -> environment.
// An explicit path must exist; otherwise ACTON_CONFIG and then DefaultPath
// are tried when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path == "" {
		if p := DefaultPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Storage.MinIO.AccessKey = expandEnvVars(cfg.Storage.MinIO.AccessKey)
	cfg.Storage.MinIO.SecretKey = expandEnvVars(cfg.Storage.MinIO.SecretKey)
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return acton.Configurationf("invalid log level %q (valid: trace, debug, info, warn, error)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return acton.Configurationf("invalid log format %q (valid: text, json)", c.Logging.Format)
	}

	sim, err := c.Active("validate")
	if err != nil {
		return err
	}
	if err := sim.Validate(); err != nil {
		return err
	}

	if _, err := compress.Parse(c.Storage.Compression); err != nil {
		return acton.Configurationf("storage: %v", err)
	}
	if ps := c.Storage.S3.PartSizeBytes; ps != 0 && ps < MinPartSizeBytes {
		return acton.Configurationf("s3 part_size_bytes must be at least %d, got %d", MinPartSizeBytes, ps)
	}
	if c.Storage.LockLease < 0 {
		return acton.Configurationf("lock_lease must be non-negative, got %s", c.Storage.LockLease)
	}
	if c.Storage.S3.UploadConcurrency < 0 {
		return acton.Configurationf("s3 upload_concurrency must be non-negative, got %d", c.Storage.S3.UploadConcurrency)
	}
	if c.Oracle.LabelsPerSecond < 0 || math.IsNaN(c.Oracle.LabelsPerSecond) {
		return acton.Configurationf("labels_per_second must be non-negative, got %v", c.Oracle.LabelsPerSecond)
	}
	if c.Oracle.Burst < 0 {
		return acton.Configurationf("burst must be non-negative, got %d", c.Oracle.Burst)
	}
	if c.Resources.MaxWorkers < 0 || c.Resources.MemoryLimitBytes < 0 {
		return acton.Configurationf("resource limits must be non-negative")
	}
	return nil
}

// Active converts the simulation and snapshot settings into an
// active.Config writing to outputPath.
func (c *Config) Active(outputPath string) (active.Config, error) {
	ct, err := compress.Parse(c.Snapshot.Compression)
	if err != nil {
		return active.Config{}, acton.Configurationf("snapshot: %v", err)
	}
	return active.Config{
		Epochs:              c.Simulation.Epochs,
		InitialCount:        c.Simulation.InitialCount,
		RecommendationCount: c.Simulation.RecommendationCount,
		TestSize:            c.Simulation.TestSize,
		Seed:                c.Simulation.Seed,
		Predictor:           c.Simulation.Predictor,
		Recommender:         c.Simulation.Recommender,
		Params:              c.Simulation.Params,
		OutputPath:          outputPath,
		Codec:               c.Snapshot.Codec,
		Compression:         ct,
	}, nil
}

// Controller builds the resource controller for the oracle and resource
// settings.
func (c *Config) Controller() *resource.Controller {
	return resource.NewController(resource.Config{
		MemoryLimitBytes: c.Resources.MemoryLimitBytes,
		MaxWorkers:       c.Resources.MaxWorkers,
		LabelsPerSecond:  c.Oracle.LabelsPerSecond,
		LabelBurst:       c.Oracle.Burst,
	})
}

// Logger builds the logger for the logging settings. Text logs go to w;
// JSON logs always go to stderr.
func (c *Config) Logger(w io.Writer) *acton.Logger {
	level := acton.ParseLevel(c.Logging.Level)
	if strings.EqualFold(c.Logging.Format, "json") {
		return acton.NewJSONLogger(level)
	}
	return acton.NewTextLogger(w, level)
}

// applyEnvOverrides applies ACTON_* environment variables.
func applyEnvOverrides(c *Config) error {
	str := map[string]*string{
		"LOG_LEVEL":            &c.Logging.Level,
		"LOG_FORMAT":           &c.Logging.Format,
		"PREDICTOR":            &c.Simulation.Predictor,
		"RECOMMENDER":          &c.Simulation.Recommender,
		"STORAGE_COMPRESSION":  &c.Storage.Compression,
		"LOCK_TABLE":           &c.Storage.LockTable,
		"LOCK_OWNER":           &c.Storage.LockOwner,
		"S3_REGION":            &c.Storage.S3.Region,
		"S3_ENDPOINT":          &c.Storage.S3.Endpoint,
		"MINIO_ENDPOINT":       &c.Storage.MinIO.Endpoint,
		"MINIO_ACCESS_KEY":     &c.Storage.MinIO.AccessKey,
		"MINIO_SECRET_KEY":     &c.Storage.MinIO.SecretKey,
		"MINIO_REGION":         &c.Storage.MinIO.Region,
		"SNAPSHOT_CODEC":       &c.Snapshot.Codec,
		"SNAPSHOT_COMPRESSION": &c.Snapshot.Compression,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"EPOCHS":               &c.Simulation.Epochs,
		"INITIAL_COUNT":        &c.Simulation.InitialCount,
		"RECOMMENDATION_COUNT": &c.Simulation.RecommendationCount,
		"ORACLE_BURST":         &c.Oracle.Burst,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return acton.Configurationf("%s%s: %v", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	int64s := map[string]*int64{
		"SEED":               &c.Simulation.Seed,
		"MAX_WORKERS":        &c.Resources.MaxWorkers,
		"MEMORY_LIMIT_BYTES": &c.Resources.MemoryLimitBytes,
	}
	for key, dst := range int64s {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return acton.Configurationf("%s%s: %v", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"TEST_SIZE":         &c.Simulation.TestSize,
		"LABELS_PER_SECOND": &c.Oracle.LabelsPerSecond,
	}
	for key, dst := range floats {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return acton.Configurationf("%s%s: %v", EnvPrefix, key, err)
			}
			*dst = f
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "MINIO_USE_SSL"); ok {
		c.Storage.MinIO.UseSSL = v == "true" || v == "1"
	}
	return nil
}

// expandEnvVars expands ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
