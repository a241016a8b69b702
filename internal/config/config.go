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
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Jobs      JobsConfig      `yaml:"jobs" mapstructure:"jobs"`
	Anomaly   AnomalyConfig   `yaml:"anomaly" mapstructure:"anomaly"`
	Alerts    AlertsConfig    `yaml:"alerts" mapstructure:"alerts"`
	Analytics AnalyticsConfig `yaml:"analytics" mapstructure:"analytics"`
}

// ServerConfig configures the control HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the optional job/alert archive backend.
// An empty driver disables archiving.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// JobsConfig configures the background job scheduler.
type JobsConfig struct {
	TickSecs               int `yaml:"tick_secs" mapstructure:"tick_secs"`
	MaxConcurrentDispatch  int `yaml:"max_concurrent_dispatch" mapstructure:"max_concurrent_dispatch"`
	IncrementalRefreshSecs int `yaml:"incremental_refresh_secs" mapstructure:"incremental_refresh_secs"`
	FullRefreshSecs        int `yaml:"full_refresh_secs" mapstructure:"full_refresh_secs"`
	AnomalyScanSecs        int `yaml:"anomaly_scan_secs" mapstructure:"anomaly_scan_secs"`
	RetentionHours         int `yaml:"retention_hours" mapstructure:"retention_hours"`
	CleanupSweepSecs       int `yaml:"cleanup_sweep_secs" mapstructure:"cleanup_sweep_secs"`
}

// Tick returns the scheduler poll interval.
func (c JobsConfig) Tick() time.Duration {
	return time.Duration(c.TickSecs) * time.Second
}

// Retention returns how long terminal job records are kept in the registry.
func (c JobsConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// AnomalyConfig configures the statistical anomaly detector.
type AnomalyConfig struct {
	ZScoreThreshold float64 `yaml:"zscore_threshold" mapstructure:"zscore_threshold"`
	ZScoreWindow    int     `yaml:"zscore_window" mapstructure:"zscore_window"`
	STLPeriod       int     `yaml:"stl_period" mapstructure:"stl_period"`
	STLFactor       float64 `yaml:"stl_factor" mapstructure:"stl_factor"`
}

// AlertsConfig configures the supply-chain alert manager.
type AlertsConfig struct {
	HighRiskThreshold     float64  `yaml:"high_risk_threshold" mapstructure:"high_risk_threshold"`
	CriticalRiskThreshold float64  `yaml:"critical_risk_threshold" mapstructure:"critical_risk_threshold"`
	RetentionDays         int      `yaml:"retention_days" mapstructure:"retention_days"`
	HighRiskCountries     []string `yaml:"high_risk_countries" mapstructure:"high_risk_countries"`

	// FastResolve allows Resolve directly from Active, skipping Acknowledged.
	// When false, an alert must be acknowledged before it can be resolved.
	FastResolve bool `yaml:"fast_resolve" mapstructure:"fast_resolve"`
}

// Retention returns the alert retention window.
func (c AlertsConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// AnalyticsConfig configures risk bands and composite weights.
type AnalyticsConfig struct {
	LowBand      float64 `yaml:"low_band" mapstructure:"low_band"`
	MediumBand   float64 `yaml:"medium_band" mapstructure:"medium_band"`
	HighBand     float64 `yaml:"high_band" mapstructure:"high_band"`
	CriticalBand float64 `yaml:"critical_band" mapstructure:"critical_band"`

	BaseWeight     float64 `yaml:"base_weight" mapstructure:"base_weight"`
	LocationWeight float64 `yaml:"location_weight" mapstructure:"location_weight"`
	AlertWeight    float64 `yaml:"alert_weight" mapstructure:"alert_weight"`
	IndustryWeight float64 `yaml:"industry_weight" mapstructure:"industry_weight"`

	// RiskTablePath optionally points at a YAML file overriding the
	// built-in country/industry risk lookup tables.
	RiskTablePath string `yaml:"risk_table_path" mapstructure:"risk_table_path"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CHAINWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "")
	v.SetDefault("store.path", "chainwatch.db")
	v.SetDefault("jobs.tick_secs", 1)
	v.SetDefault("jobs.max_concurrent_dispatch", 4)
	v.SetDefault("jobs.incremental_refresh_secs", 3600)
	v.SetDefault("jobs.full_refresh_secs", 86400)
	v.SetDefault("jobs.anomaly_scan_secs", 7200)
	v.SetDefault("jobs.retention_hours", 24)
	v.SetDefault("jobs.cleanup_sweep_secs", 3600)
	v.SetDefault("anomaly.zscore_threshold", 2.0)
	v.SetDefault("anomaly.zscore_window", 30)
	v.SetDefault("anomaly.stl_period", 24)
	v.SetDefault("anomaly.stl_factor", 3.0)
	v.SetDefault("alerts.high_risk_threshold", 70.0)
	v.SetDefault("alerts.critical_risk_threshold", 90.0)
	v.SetDefault("alerts.retention_days", 90)
	v.SetDefault("alerts.high_risk_countries", []string{"iran", "north korea", "syria", "russia", "china"})
	v.SetDefault("alerts.fast_resolve", true)
	v.SetDefault("analytics.low_band", 30.0)
	v.SetDefault("analytics.medium_band", 60.0)
	v.SetDefault("analytics.high_band", 80.0)
	v.SetDefault("analytics.critical_band", 90.0)
	v.SetDefault("analytics.base_weight", 0.4)
	v.SetDefault("analytics.location_weight", 0.2)
	v.SetDefault("analytics.alert_weight", 0.2)
	v.SetDefault("analytics.industry_weight", 0.2)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for internal consistency.
func (c *Config) Validate() error {
	if c.Jobs.TickSecs <= 0 {
		return eris.New("config: jobs.tick_secs must be positive")
	}
	if c.Jobs.MaxConcurrentDispatch <= 0 {
		return eris.New("config: jobs.max_concurrent_dispatch must be positive")
	}
	if c.Jobs.IncrementalRefreshSecs <= 0 || c.Jobs.FullRefreshSecs <= 0 || c.Jobs.AnomalyScanSecs <= 0 {
		return eris.New("config: job intervals must be positive")
	}
	if c.Anomaly.ZScoreThreshold <= 0 {
		return eris.New("config: anomaly.zscore_threshold must be positive")
	}
	if c.Anomaly.ZScoreWindow < 2 {
		return eris.New("config: anomaly.zscore_window must be at least 2")
	}
	if c.Anomaly.STLPeriod < 2 {
		return eris.New("config: anomaly.stl_period must be at least 2")
	}
	if c.Alerts.HighRiskThreshold < 0 || c.Alerts.HighRiskThreshold > 100 {
		return eris.New("config: alerts.high_risk_threshold must be in [0,100]")
	}
	if c.Alerts.CriticalRiskThreshold < 0 || c.Alerts.CriticalRiskThreshold > 100 {
		return eris.New("config: alerts.critical_risk_threshold must be in [0,100]")
	}
	if c.Alerts.CriticalRiskThreshold < c.Alerts.HighRiskThreshold {
		return eris.New("config: alerts.critical_risk_threshold must be >= high_risk_threshold")
	}
	if c.Alerts.RetentionDays <= 0 {
		return eris.New("config: alerts.retention_days must be positive")
	}
	if !(c.Analytics.LowBand < c.Analytics.MediumBand &&
		c.Analytics.MediumBand < c.Analytics.HighBand &&
		c.Analytics.HighBand < c.Analytics.CriticalBand) {
		return eris.New("config: analytics risk bands must be strictly increasing")
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
