// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Search, Tokenizer, Redis, Kafka, Postgres, etc.).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// IndexConfig locates the build artifacts and controls how the offline
// builder lays them out on disk.
type IndexConfig struct {
	DataDir          string `yaml:"dataDir"`
	BarrelDir        string `yaml:"barrelDir"`
	NumBarrels       int    `yaml:"numBarrels"`
	Compression      string `yaml:"compression"`
	DatasetPath      string `yaml:"datasetPath"`
	LexiconPath      string `yaml:"lexiconPath"`
	ForwardIndexPath string `yaml:"forwardIndexPath"`
	ComputeIDF       bool   `yaml:"computeIDF"`
	IDFMode          string `yaml:"idfMode"`
	VerifyDataset    bool   `yaml:"verifyDataset"`
	Watch            bool   `yaml:"watch"`
}

// ManifestPath returns the location of the build manifest.
func (c IndexConfig) ManifestPath() string {
	return filepath.Join(c.DataDir, "manifest.json")
}

// DirectoryPath returns the location of the offset directory file.
func (c IndexConfig) DirectoryPath() string {
	return filepath.Join(c.DataDir, "barrel_offset_index.msgpack")
}

// BarrelPath returns the barrel directory, defaulting to <dataDir>/barrels.
func (c IndexConfig) BarrelPath() string {
	if c.BarrelDir != "" {
		return c.BarrelDir
	}
	return filepath.Join(c.DataDir, "barrels")
}

// SearchConfig controls query execution limits, concurrency and timeouts.
type SearchConfig struct {
	DefaultPerPage     int           `yaml:"defaultPerPage"`
	MaxPerPage         int           `yaml:"maxPerPage"`
	Workers            int           `yaml:"workers"`
	MaterializeWorkers int           `yaml:"materializeWorkers"`
	FileHandles        int           `yaml:"fileHandles"`
	Timeout            time.Duration `yaml:"timeout"`
	TimeoutPerBarrel   time.Duration `yaml:"timeoutPerBarrel"`
	Scorer             string        `yaml:"scorer"`
	PreloadBarrels     bool          `yaml:"preloadBarrels"`
}

// TokenizerConfig controls the reference normalizer.
type TokenizerConfig struct {
	Stem      bool `yaml:"stem"`
	MinLength int  `yaml:"minLength"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	SnapshotEvery   time.Duration `yaml:"snapshotEvery"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// RateLimitConfig controls the per-client limiter on the search endpoint.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the index or the query engine cannot run with.
func (c *Config) Validate() error {
	if c.Index.NumBarrels < 1 {
		return fmt.Errorf("index.numBarrels must be positive, got %d", c.Index.NumBarrels)
	}
	switch c.Index.Compression {
	case "", "none", "zstd":
	default:
		return fmt.Errorf("index.compression must be none or zstd, got %q", c.Index.Compression)
	}
	switch c.Index.IDFMode {
	case "", "plain", "bm25":
	default:
		return fmt.Errorf("index.idfMode must be plain or bm25, got %q", c.Index.IDFMode)
	}
	switch c.Search.Scorer {
	case "", "weighted", "bm25":
	default:
		return fmt.Errorf("search.scorer must be weighted or bm25, got %q", c.Search.Scorer)
	}
	if c.Search.Workers < 1 {
		return fmt.Errorf("search.workers must be positive, got %d", c.Search.Workers)
	}
	if c.Search.DefaultPerPage < 1 || c.Search.MaxPerPage < c.Search.DefaultPerPage {
		return fmt.Errorf("search.defaultPerPage must be in [1, maxPerPage]")
	}
	return nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			DataDir:          "data/index",
			NumBarrels:       120,
			Compression:      "none",
			DatasetPath:      "data/repositories.csv",
			LexiconPath:      "data/index/lexicon.json",
			ForwardIndexPath: "data/index/fwdIdx.json",
			ComputeIDF:       true,
			IDFMode:          "plain",
			VerifyDataset:    true,
		},
		Search: SearchConfig{
			DefaultPerPage:     10,
			MaxPerPage:         100,
			Workers:            4,
			MaterializeWorkers: 4,
			FileHandles:        4,
			Timeout:            5 * time.Second,
			TimeoutPerBarrel:   2 * time.Second,
			Scorer:             "weighted",
		},
		Tokenizer: TokenizerConfig{
			MinLength: 2,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "reposearch",
			User:            "reposearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			SnapshotEvery:   time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "reposearch-group",
			Topics: KafkaTopics{
				AnalyticsEvents: "search-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads RS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RS_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("RS_INDEX_BARREL_DIR"); v != "" {
		cfg.Index.BarrelDir = v
	}
	if v := os.Getenv("RS_INDEX_NUM_BARRELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.NumBarrels = n
		}
	}
	if v := os.Getenv("RS_INDEX_DATASET_PATH"); v != "" {
		cfg.Index.DatasetPath = v
	}
	if v := os.Getenv("RS_INDEX_LEXICON_PATH"); v != "" {
		cfg.Index.LexiconPath = v
	}
	if v := os.Getenv("RS_SEARCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.Workers = n
		}
	}
	if v := os.Getenv("RS_SEARCH_SCORER"); v != "" {
		cfg.Search.Scorer = v
	}
	if v := os.Getenv("RS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
