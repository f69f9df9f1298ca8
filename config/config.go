package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Lock      LockConfig      `mapstructure:"lock"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// LockConfig controls the distributed wallet lock.
type LockConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`  // how long a crashed holder's lock survives
	Wait time.Duration `mapstructure:"wait"` // how long callers retry acquisition before giving up
}

// WalletConfig holds ledger business parameters.
type WalletConfig struct {
	MinRechargeAmount   int64 `mapstructure:"min_recharge_amount"`   // minor units
	DefaultLowThreshold int64 `mapstructure:"default_low_threshold"` // minor units
}

// PlatformConfig points at the shipping platform's internal payments
// API (payment capture, upcoming settlements).
type PlatformConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig holds cron specs for background jobs (seconds precision).
type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	DisputeSweep     string `mapstructure:"dispute_sweep"`
	AutoRechargeScan string `mapstructure:"auto_recharge_scan"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: SCW_ (Shipcrowd Wallet).
// Nested keys use underscore: SCW_DATABASE_HOST, SCW_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "shipcrowd_wallet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "shipcrowd-wallet")
	v.SetDefault("lock.ttl", "30s")
	v.SetDefault("lock.wait", "5s")
	v.SetDefault("wallet.min_recharge_amount", 10000)   // ₹100.00 in paise
	v.SetDefault("wallet.default_low_threshold", 50000) // ₹500.00 in paise
	v.SetDefault("platform.base_url", "http://localhost:9090")
	v.SetDefault("platform.api_key", "")
	v.SetDefault("platform.timeout", "10s")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.dispute_sweep", "0 0 * * * *")        // hourly
	v.SetDefault("scheduler.auto_recharge_scan", "0 */5 * * * *") // every 5 minutes
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: SCW_DATABASE_HOST -> database.host
	v.SetEnvPrefix("SCW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
