package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/SaddleSum/internal/apperr"
	"github.com/MikeSquared-Agency/SaddleSum/internal/enrich"
	"github.com/MikeSquared-Agency/SaddleSum/internal/saddlesum"
	"github.com/MikeSquared-Agency/SaddleSum/internal/weights"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Hermes     HermesConfig     `yaml:"hermes"`
	Redis      RedisConfig      `yaml:"redis"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// EnrichmentConfig holds the run defaults applied when a request leaves a
// parameter unset.
type EnrichmentConfig struct {
	MinTermSize     int     `yaml:"min_term_size"`
	EvalueCutoff    float64 `yaml:"evalue_cutoff"`
	EffectiveDBSize float64 `yaml:"effective_db_size"`
	Statistic       string  `yaml:"statistic"`
	MaxIterations   int     `yaml:"max_iterations"`
	Tolerance       float64 `yaml:"tolerance"`
	MaxCacheItems   int     `yaml:"max_cache_items"`
	UseAllWeights   bool    `yaml:"use_all_weights"`
}

type CacheConfig struct {
	// Databases is the number of parsed term databases kept in memory.
	Databases int `yaml:"databases"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// EnrichOptions converts the enrichment defaults into session options.
func (c *Config) EnrichOptions() (enrich.Options, error) {
	stat, err := enrich.ParseStatistic(c.Enrichment.Statistic)
	if err != nil {
		return enrich.Options{}, err
	}
	return enrich.Options{
		Statistic:       stat,
		MinTermSize:     c.Enrichment.MinTermSize,
		EvalueCutoff:    c.Enrichment.EvalueCutoff,
		EffectiveDBSize: c.Enrichment.EffectiveDBSize,
		UseAllWeights:   c.Enrichment.UseAllWeights,
		Weights:         weights.Options{},
		Solver: saddlesum.Options{
			MaxIterations: c.Enrichment.MaxIterations,
			Tolerance:     c.Enrichment.Tolerance,
			MaxCacheItems: c.Enrichment.MaxCacheItems,
		},
	}, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
		},
		Hermes: HermesConfig{
			URL: "nats://localhost:4222",
		},
		Redis: RedisConfig{
			TTLSeconds: 3600,
		},
		Enrichment: EnrichmentConfig{
			MinTermSize:     enrich.DefaultMinTermSize,
			EvalueCutoff:    enrich.DefaultEvalueCutoff,
			EffectiveDBSize: -1,
			Statistic:       "wsum",
			MaxIterations:   saddlesum.DefaultMaxIterations,
			Tolerance:       saddlesum.DefaultTolerance,
			MaxCacheItems:   saddlesum.DefaultMaxCacheItems,
		},
		Cache: CacheConfig{
			Databases: 16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.MetricsPort <= 0 {
		return apperr.Configf("server ports must be positive")
	}
	if c.Cache.Databases < 1 {
		return apperr.Configf("cache.databases must be at least 1, got %d", c.Cache.Databases)
	}
	if c.Redis.TTLSeconds < 0 {
		return apperr.Configf("redis.ttl_seconds must not be negative")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return apperr.Configf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	opts, err := c.EnrichOptions()
	if err != nil {
		return err
	}
	// Cutoffs are per request, so the Fisher cutoff rule is checked there.
	opts.Statistic = enrich.StatWSum
	return opts.Validate()
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SADDLESUM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("SADDLESUM_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("SADDLESUM_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("SADDLESUM_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SADDLESUM_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("SADDLESUM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SADDLESUM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SADDLESUM_MIN_TERM_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Enrichment.MinTermSize = n
		}
	}
	if v := os.Getenv("SADDLESUM_EVALUE_CUTOFF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Enrichment.EvalueCutoff = f
		}
	}
	if v := os.Getenv("SADDLESUM_STATISTIC"); v != "" {
		cfg.Enrichment.Statistic = v
	}
	if v := os.Getenv("SADDLESUM_MAX_CACHE_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Enrichment.MaxCacheItems = n
		}
	}
	if v := os.Getenv("SADDLESUM_USE_ALL_WEIGHTS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Enrichment.UseAllWeights = b
		}
	}
	if v := os.Getenv("SADDLESUM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SADDLESUM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
