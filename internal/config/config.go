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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Correction CorrectionConfig `yaml:"correction" mapstructure:"correction"`
	Alert      AlertConfig      `yaml:"alert" mapstructure:"alert"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// QualityConfig configures scoring.
type QualityConfig struct {
	CompletenessWeight float64 `yaml:"completeness_weight" mapstructure:"completeness_weight"`
	ConsistencyWeight  float64 `yaml:"consistency_weight" mapstructure:"consistency_weight"`
	FreshnessWeight    float64 `yaml:"freshness_weight" mapstructure:"freshness_weight"`
	ConfidenceWeight   float64 `yaml:"confidence_weight" mapstructure:"confidence_weight"`
	BatchConcurrency   int     `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// CorrectionConfig configures the correction engine.
type CorrectionConfig struct {
	AutoApplyConfidence float64 `yaml:"auto_apply_confidence" mapstructure:"auto_apply_confidence"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
}

// AlertConfig configures the alert rules engine.
type AlertConfig struct {
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// NotifyConfig configures alert delivery channels.
type NotifyConfig struct {
	WebhookURL       string `yaml:"webhook_url" mapstructure:"webhook_url"`
	WebhookPerMinute int    `yaml:"webhook_per_minute" mapstructure:"webhook_per_minute"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	AutoCorrect bool `yaml:"auto_correct" mapstructure:"auto_correct"`
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
	v.SetEnvPrefix("QUALITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "quality.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("quality.completeness_weight", 1.0)
	v.SetDefault("quality.consistency_weight", 1.0)
	v.SetDefault("quality.freshness_weight", 1.0)
	v.SetDefault("quality.confidence_weight", 1.0)
	v.SetDefault("quality.batch_concurrency", 5)
	v.SetDefault("correction.auto_apply_confidence", 0.95)
	v.SetDefault("correction.similarity_threshold", 0.85)
	v.SetDefault("notify.webhook_per_minute", 30)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.auto_correct", true)

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
