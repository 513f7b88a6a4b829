package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Run         RunConfig         `yaml:"run" mapstructure:"run"`
	Bots        BotsConfig        `yaml:"bots" mapstructure:"bots"`
	Consolidate ConsolidateConfig `yaml:"consolidate" mapstructure:"consolidate"`
	Ranking     RankingConfig     `yaml:"ranking" mapstructure:"ranking"`
	Report      ReportConfig      `yaml:"report" mapstructure:"report"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RunConfig configures run dispatch behavior.
type RunConfig struct {
	TimeoutSecs   int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// Timeout returns the per-run deadline.
func (c RunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// BotsConfig configures the bot adapters.
type BotsConfig struct {
	Retries       int     `yaml:"retries" mapstructure:"retries"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`

	// Endpoints maps a source name to its collector service base URL.
	// Sources without an endpoint are not registered.
	Endpoints map[string]string `yaml:"endpoints" mapstructure:"endpoints"`
}

// ConsolidateConfig configures the merge step.
type ConsolidateConfig struct {
	// RetainUnverified keeps records the schedule source never saw
	// instead of dropping them at the gatekeeper. The upstream behavior
	// is ambiguous, so this is a switch rather than a constant.
	RetainUnverified bool `yaml:"retain_unverified" mapstructure:"retain_unverified"`
}

// RankingConfig holds every scoring weight and tier value. The numbers
// are reconstructed from descriptive documentation, so they are all
// tunable rather than compiled in.
type RankingConfig struct {
	Standby StandbyWeights `yaml:"standby" mapstructure:"standby"`
	Booked  BookedWeights  `yaml:"booked" mapstructure:"booked"`

	// ComfortTablePath points at the YAML aircraft comfort-tier table.
	ComfortTablePath string `yaml:"comfort_table_path" mapstructure:"comfort_table_path"`
}

// StandbyWeights configures the risk-mitigation policy.
type StandbyWeights struct {
	ChanceHigh    float64 `yaml:"chance_high" mapstructure:"chance_high"`
	ChanceMid     float64 `yaml:"chance_mid" mapstructure:"chance_mid"`
	ChanceLow     float64 `yaml:"chance_low" mapstructure:"chance_low"`
	DirectBonus   float64 `yaml:"direct_bonus" mapstructure:"direct_bonus"`
	BoardingShare float64 `yaml:"boarding_share" mapstructure:"boarding_share"`
	DirectShare   float64 `yaml:"direct_share" mapstructure:"direct_share"`
	TimeShare     float64 `yaml:"time_share" mapstructure:"time_share"`
}

// BookedWeights configures the value-for-money policy.
type BookedWeights struct {
	PriceShare   float64 `yaml:"price_share" mapstructure:"price_share"`
	ComfortShare float64 `yaml:"comfort_share" mapstructure:"comfort_share"`
	TimeShare    float64 `yaml:"time_share" mapstructure:"time_share"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("STANDBY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "standby.db")
	v.SetDefault("run.timeout_secs", 600)
	v.SetDefault("run.max_concurrent", 1)
	v.SetDefault("bots.retries", 1)
	v.SetDefault("bots.rate_per_second", 0.5)
	v.SetDefault("bots.rate_burst", 1)
	v.SetDefault("bots.endpoints", map[string]string{})
	v.SetDefault("consolidate.retain_unverified", false)
	v.SetDefault("ranking.standby.chance_high", 100.0)
	v.SetDefault("ranking.standby.chance_mid", 60.0)
	v.SetDefault("ranking.standby.chance_low", 20.0)
	v.SetDefault("ranking.standby.direct_bonus", 40.0)
	v.SetDefault("ranking.standby.boarding_share", 0.5)
	v.SetDefault("ranking.standby.direct_share", 0.3)
	v.SetDefault("ranking.standby.time_share", 0.2)
	v.SetDefault("ranking.booked.price_share", 0.4)
	v.SetDefault("ranking.booked.comfort_share", 0.35)
	v.SetDefault("ranking.booked.time_share", 0.25)
	v.SetDefault("ranking.comfort_table_path", "aircraft_comfort.yaml")
	v.SetDefault("report.output_dir", "outputs")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
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
