package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Cron     CronConfig     `mapstructure:"cron"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Registry RegistryConfig `mapstructure:"registry"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Provider ProviderConfig `mapstructure:"provider"`
	Events   EventsConfig   `mapstructure:"events"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Disabled  bool          `mapstructure:"disabled"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	PolicyExpiry   string `mapstructure:"policy_expiry"`
	ProviderPoll   string `mapstructure:"provider_poll"`
	EventRetention string `mapstructure:"event_retention"`
}

type LedgerConfig struct {
	YieldBp int64 `mapstructure:"yield_bp"`
}

type RegistryConfig struct {
	BasePremiumRateBp int64            `mapstructure:"base_premium_rate_bp"`
	MinPremium        string           `mapstructure:"min_premium"`
	MinPayout         string           `mapstructure:"min_payout"`
	MaxPayout         string           `mapstructure:"max_payout"`
	MinCoveragePeriod time.Duration    `mapstructure:"min_coverage_period"`
	MaxCoveragePeriod time.Duration    `mapstructure:"max_coverage_period"`
	ExpirySweepLimit  int              `mapstructure:"expiry_sweep_limit"`
	Templates         []TemplateConfig `mapstructure:"templates"`
}

type TemplateConfig struct {
	Name            string `mapstructure:"name"`
	Parameter       string `mapstructure:"parameter"`
	Operator        string `mapstructure:"operator"`
	TriggerValue    int64  `mapstructure:"trigger_value"`
	CoverageSeconds int64  `mapstructure:"coverage_seconds"`
	PayoutAmount    string `mapstructure:"payout_amount"`
}

type OracleConfig struct {
	Subject   string `mapstructure:"subject"`
	PublicKey string `mapstructure:"public_key"`
}

type ProviderConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BatchLimit    int           `mapstructure:"batch_limit"`
	OracleSubject string        `mapstructure:"oracle_subject"`
}

type EventsConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
	SubscriberBuf int `mapstructure:"subscriber_buf"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SKYCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "skycover.events")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.disabled", false)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.policy_expiry", "@every 1m")
	v.SetDefault("cron.provider_poll", "@every 5m")
	v.SetDefault("cron.event_retention", "@every 6h")
	v.SetDefault("ledger.yield_bp", 0)
	v.SetDefault("registry.base_premium_rate_bp", 200)
	v.SetDefault("registry.min_premium", "1")
	v.SetDefault("registry.min_payout", "10")
	v.SetDefault("registry.max_payout", "1000000")
	v.SetDefault("registry.min_coverage_period", "24h")
	v.SetDefault("registry.max_coverage_period", "8760h")
	v.SetDefault("registry.expiry_sweep_limit", 500)
	v.SetDefault("oracle.subject", "")
	v.SetDefault("oracle.public_key", "")
	v.SetDefault("provider.enabled", false)
	v.SetDefault("provider.base_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("provider.timeout", "15s")
	v.SetDefault("provider.batch_limit", 20)
	v.SetDefault("events.retention_days", 30)
	v.SetDefault("events.subscriber_buf", 64)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
