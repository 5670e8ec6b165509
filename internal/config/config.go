package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Model   ModelConfig   `yaml:"model" mapstructure:"model"`
	Dataset DatasetConfig `yaml:"dataset" mapstructure:"dataset"`
	Merge   MergeConfig   `yaml:"merge" mapstructure:"merge"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres or none
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ModelConfig points at the fitted NB model file.
type ModelConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DatasetConfig controls how segment files are read and turned into
// design matrices.
type DatasetConfig struct {
	Encoding       string `yaml:"encoding" mapstructure:"encoding"`
	SheetName      string `yaml:"sheet_name" mapstructure:"sheet_name"`
	LengthColumn   string `yaml:"length_column" mapstructure:"length_column"`
	ObservedColumn string `yaml:"observed_column" mapstructure:"observed_column"`
	DropIncomplete bool   `yaml:"drop_incomplete" mapstructure:"drop_incomplete"`
}

// MergeConfig configures the multi-year merge.
type MergeConfig struct {
	DataDir  string   `yaml:"data_dir" mapstructure:"data_dir"`
	Database string   `yaml:"database" mapstructure:"database"`
	Years    []string `yaml:"years" mapstructure:"years"`
	Archive  string   `yaml:"archive" mapstructure:"archive"`
}

// BatchConfig configures concurrent scoring of several datasets.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst   int      `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// ExportConfig configures score output.
type ExportConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	Top    int    `yaml:"top" mapstructure:"top"`       // 0 = every segment
	Metric string `yaml:"metric" mapstructure:"metric"` // crash map marker metric
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "crash_runs.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("model.path", "model.yaml")
	v.SetDefault("dataset.length_column", "seg_lng")
	v.SetDefault("dataset.observed_column", "tot_acc_ct")
	v.SetDefault("dataset.drop_incomplete", true)
	v.SetDefault("merge.data_dir", "data")
	v.SetDefault("merge.database", "crash_database")
	v.SetDefault("merge.years", []string{"06", "07", "08", "09", "10", "11"})
	v.SetDefault("batch.max_concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("export.metric", "safety")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch mode {
	case "merge":
		if c.Merge.DataDir == "" {
			add("merge.data_dir is required")
		}
		if c.Merge.Database == "" {
			add("merge.database is required")
		}
	case "score":
		c.validateModel(add)
		c.validateStore(add, false)
		if c.Batch.MaxConcurrency < 1 || c.Batch.MaxConcurrency > 32 {
			add("batch.max_concurrency must be between 1 and 32")
		}
		if c.Export.Top < 0 {
			add("export.top must be >= 0")
		}
		switch c.Export.Metric {
		case "", "safety", "arp":
		default:
			add("export.metric must be safety or arp")
		}
	case "intervals":
		c.validateModel(add)
	case "summary":
	case "runs":
		c.validateStore(add, true)
	case "serve":
		c.validateModel(add)
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		if c.Server.RateLimit < 0 {
			add("server.rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
			add("server.rate_burst must be >= 1 when rate limiting")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateModel(add func(string, ...any)) {
	if c.Model.Path == "" {
		add("model.path is required")
	}
}

func (c *Config) validateStore(add func(string, ...any), required bool) {
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required")
		}
	case "none", "":
		if required {
			add("store.driver must be sqlite or postgres")
		}
	default:
		add("store.driver %q is not supported", c.Store.Driver)
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
