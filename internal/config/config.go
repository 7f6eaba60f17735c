package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Catchment CatchmentConfig `yaml:"catchment" mapstructure:"catchment"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Postgres  PostgresConfig  `yaml:"postgres" mapstructure:"postgres"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CatchmentConfig configures how plans are executed.
type CatchmentConfig struct {
	PlanPath                string `yaml:"plan_path" mapstructure:"plan_path"`
	MaxConcurrentDatasets   int    `yaml:"max_concurrent_datasets" mapstructure:"max_concurrent_datasets"`
	MaxConcurrentThresholds int    `yaml:"max_concurrent_thresholds" mapstructure:"max_concurrent_thresholds"`
	OutputBOM               bool   `yaml:"output_bom" mapstructure:"output_bom"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PostgresConfig configures publishing scores to a PostGIS database.
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	Table       string `yaml:"table" mapstructure:"table"`
	SRID        int    `yaml:"srid" mapstructure:"srid"`
}

// ServerConfig configures the results API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATCHMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catchment.plan_path", "plan.yaml")
	v.SetDefault("catchment.max_concurrent_datasets", 2)
	v.SetDefault("catchment.max_concurrent_thresholds", 4)
	v.SetDefault("catchment.output_bom", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catchment.db")
	v.SetDefault("postgres.schema", "public")
	v.SetDefault("postgres.table", "accessibility_scores")
	v.SetDefault("postgres.srid", 4326)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
	var problems []string

	switch mode {
	case "run":
		if c.Catchment.MaxConcurrentDatasets < 1 {
			problems = append(problems, "catchment.max_concurrent_datasets must be >= 1")
		}
		if c.Catchment.MaxConcurrentThresholds < 1 {
			problems = append(problems, "catchment.max_concurrent_thresholds must be >= 1")
		}
		if c.Store.Driver != "" && c.Store.Driver != "sqlite" && c.Store.Driver != "none" {
			problems = append(problems, "store.driver must be sqlite or none")
		}
	case "serve":
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "publish":
		if c.Postgres.DatabaseURL == "" {
			problems = append(problems, "postgres.database_url is required")
		}
		if c.Postgres.Table == "" {
			problems = append(problems, "postgres.table is required")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
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
