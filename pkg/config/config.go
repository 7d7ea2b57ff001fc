// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Crawler, Engine, Checkpoint, Searcher, Postgres, Kafka, Redis).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML scalars like "30s" or "2m" decode
// through time.ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Crawler    CrawlerConfig    `yaml:"crawler"`
	Engine     EngineConfig     `yaml:"engine"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Searcher   SearcherConfig   `yaml:"searcher"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings shared by the indexer and searcher
// services.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	RequestTimeout  Duration `yaml:"requestTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// CrawlerConfig controls frontier traversal, politeness, and delivery.
type CrawlerConfig struct {
	Seeds           []string `yaml:"seeds"`
	Workers         int      `yaml:"workers"`
	MaxDepth        int      `yaml:"maxDepth"`
	MaxPages        int      `yaml:"maxPages"`
	StayInDomain    bool     `yaml:"stayInDomain"`
	AllowedDomains  []string `yaml:"allowedDomains"`
	UserAgent       string   `yaml:"userAgent"`
	FetchTimeout    Duration `yaml:"fetchTimeout"`
	ChannelCapacity int      `yaml:"channelCapacity"`
	// GlobalRPS caps fetch throughput across all workers; 0 disables the cap.
	GlobalRPS float64 `yaml:"globalRps"`
}

// EngineConfig controls vector projection and the scoring model.
type EngineConfig struct {
	DenseDimension  int     `yaml:"denseDimension"`
	SnippetLength   int     `yaml:"snippetLength"`
	EntropyWeight   float64 `yaml:"entropyWeight"`
	Fragility       float64 `yaml:"fragility"`
	TrendDecay      float64 `yaml:"trendDecay"`
	UpdateFrequency float64 `yaml:"updateFrequency"`
	QuantumScore    bool    `yaml:"quantumScore"`
	PersistScore    bool    `yaml:"persistScore"`
}

// CheckpointConfig controls index persistence and CSV export.
type CheckpointConfig struct {
	Path          string   `yaml:"path"`
	ExportPath    string   `yaml:"exportPath"`
	EveryDocs     int      `yaml:"everyDocs"`
	FlushInterval Duration `yaml:"flushInterval"`
}

// SearcherConfig controls query execution limits and feedback.
type SearcherConfig struct {
	DefaultLimit       int     `yaml:"defaultLimit"`
	MaxLimit           int     `yaml:"maxLimit"`
	FeedbackImportance float64 `yaml:"feedbackImportance"`
}

// PostgresConfig holds PostgreSQL connection parameters for the document
// archive.
type PostgresConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	Database        string   `yaml:"database"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	SSLMode         string   `yaml:"sslMode"`
	MaxOpenConns    int      `yaml:"maxOpenConns"`
	MaxIdleConns    int      `yaml:"maxIdleConns"`
	ConnMaxLifetime Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	kv := []string{
		"host=" + p.Host,
		"port=" + strconv.Itoa(p.Port),
		"user=" + p.User,
		"password=" + p.Password,
		"dbname=" + p.Database,
		"sslmode=" + p.SSLMode,
	}
	return strings.Join(kv, " ")
}

// KafkaConfig holds Kafka broker and topic settings for the distributed
// crawl-to-index path and analytics events.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Documents string `yaml:"documents"`
	Analytics string `yaml:"analytics"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	PoolSize int      `yaml:"poolSize"`
	CacheTTL Duration `yaml:"cacheTTL"`
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

// Load builds a Config by layering, in order: built-in defaults, the YAML
// file at path (skipped when path is empty), and CS_* environment overrides.
// The merged result is validated before being returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			RequestTimeout:  Duration(10 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Crawler: CrawlerConfig{
			Workers:         4,
			MaxDepth:        3,
			MaxPages:        1000,
			StayInDomain:    true,
			UserAgent:       "Crawlspace/0.1 (+https://github.com/resonantlabs/crawlspace)",
			FetchTimeout:    Duration(30 * time.Second),
			ChannelCapacity: 500,
			GlobalRPS:       0,
		},
		Engine: EngineConfig{
			DenseDimension:  1000,
			SnippetLength:   200,
			EntropyWeight:   0.1,
			Fragility:       0.2,
			TrendDecay:      0.05,
			UpdateFrequency: 0.1,
			QuantumScore:    true,
			PersistScore:    true,
		},
		Checkpoint: CheckpointConfig{
			Path:          "data/checkpoints/latest.checkpoint",
			ExportPath:    "data/index_export.csv",
			EveryDocs:     100,
			FlushInterval: Duration(2 * time.Minute),
		},
		Searcher: SearcherConfig{
			DefaultLimit:       10,
			MaxLimit:           50,
			FeedbackImportance: 0.2,
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "crawlspace",
			User:            "crawlspace",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration(5 * time.Minute),
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "crawlspace-indexer",
			Topics: KafkaTopics{
				Documents: "crawl.documents",
				Analytics: "search.analytics",
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: Duration(60 * time.Second),
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

// maxPageBudget bounds a single crawl session.
const maxPageBudget = 25000

// Validate checks cross-field invariants and clamps budget-style values into
// their documented ranges.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.maxDepth must be >= 0, got %d", c.Crawler.MaxDepth)
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.maxPages must be > 0, got %d", c.Crawler.MaxPages)
	}
	if c.Crawler.MaxPages > maxPageBudget {
		c.Crawler.MaxPages = maxPageBudget
	}
	if c.Engine.DenseDimension <= 0 {
		return fmt.Errorf("engine.denseDimension must be > 0, got %d", c.Engine.DenseDimension)
	}
	if c.Engine.SnippetLength <= 0 {
		return fmt.Errorf("engine.snippetLength must be > 0, got %d", c.Engine.SnippetLength)
	}
	if c.Checkpoint.EveryDocs <= 0 {
		return fmt.Errorf("checkpoint.everyDocs must be > 0, got %d", c.Checkpoint.EveryDocs)
	}
	if c.Searcher.DefaultLimit <= 0 || c.Searcher.MaxLimit < c.Searcher.DefaultLimit {
		return fmt.Errorf("searcher limits invalid: default %d, max %d",
			c.Searcher.DefaultLimit, c.Searcher.MaxLimit)
	}
	return nil
}

// applyEnv overrides config fields from CS_* environment variables. Values
// that fail to parse are ignored rather than treated as errors, so a stray
// variable cannot keep a service from starting.
func (c *Config) applyEnv() {
	envInt(&c.Server.Port, "CS_SERVER_PORT")
	envList(&c.Crawler.Seeds, "CS_CRAWLER_SEEDS")
	envString(&c.Crawler.UserAgent, "CS_CRAWLER_USER_AGENT")
	envString(&c.Postgres.Host, "CS_POSTGRES_HOST")
	envInt(&c.Postgres.Port, "CS_POSTGRES_PORT")
	envString(&c.Postgres.Database, "CS_POSTGRES_DATABASE")
	envString(&c.Postgres.User, "CS_POSTGRES_USER")
	envString(&c.Postgres.Password, "CS_POSTGRES_PASSWORD")
	envString(&c.Postgres.SSLMode, "CS_POSTGRES_SSLMODE")
	envList(&c.Kafka.Brokers, "CS_KAFKA_BROKERS")
	envString(&c.Redis.Addr, "CS_REDIS_ADDR")
	envString(&c.Redis.Password, "CS_REDIS_PASSWORD")
	envString(&c.Logging.Level, "CS_LOGGING_LEVEL")
	envString(&c.Logging.Format, "CS_LOGGING_FORMAT")
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.Split(v, ",")
	}
}
