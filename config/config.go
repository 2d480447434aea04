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
	Log       LogConfig       `mapstructure:"log"`
	QR        QRConfig        `mapstructure:"qr"`
	IPS       IPSConfig       `mapstructure:"ips"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Security  SecurityConfig  `mapstructure:"security"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"dbname"`
	SSLMode          string        `mapstructure:"sslmode"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	// LockTimeout bounds how long a ledger posting waits on a wallet row lock.
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
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
	PoolSize int    `mapstructure:"pool_size"`
	// OpTimeout applies to both reads and writes.
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// QRConfig configures the merchant QR code engine.
type QRConfig struct {
	SigningSecret       string   `mapstructure:"signing_secret"`
	Issuer              string   `mapstructure:"issuer"`
	DefaultExpiry       int      `mapstructure:"default_expiry_minutes"`
	OfflineExpiry       int      `mapstructure:"offline_expiry_minutes"`
	MaxExpiry           int      `mapstructure:"max_expiry_minutes"`
	SupportedCurrencies []string `mapstructure:"supported_currencies"`
}

// IPSConfig configures the instant payment client.
type IPSConfig struct {
	SelfParticipantID string        `mapstructure:"self_participant_id"`
	SuspenseWalletID  string        `mapstructure:"suspense_wallet_id"` // empty = no funds hold
	SimulationEnabled bool          `mapstructure:"simulation_enabled"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileAfter    time.Duration `mapstructure:"reconcile_after"`
	ReconcileBatch    int           `mapstructure:"reconcile_batch"`
}

// GatewayConfig configures the central instant payment gateway. An empty URL
// means payments are routed directly to participant endpoints.
type GatewayConfig struct {
	URL           string        `mapstructure:"url"`
	ParticipantID string        `mapstructure:"participant_id"`
	Secret        string        `mapstructure:"secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Backoff       time.Duration `mapstructure:"backoff"`
}

// Enabled reports whether a central gateway is configured.
func (g GatewayConfig) Enabled() bool {
	return g.URL != ""
}

type DirectoryConfig struct {
	File            string        `mapstructure:"file"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type SecurityConfig struct {
	AESKey           string        `mapstructure:"aes_key"` // 32-byte hex-encoded key for AES-256
	CallbackMaxDrift time.Duration `mapstructure:"callback_max_drift"`
	CallbackNonceTTL time.Duration `mapstructure:"callback_nonce_ttl"`
	RateLimiting     bool          `mapstructure:"rate_limiting"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: WSC_ (Wallet Settlement Core).
// Nested keys use underscore: WSC_DATABASE_HOST, WSC_QR_SIGNING_SECRET, etc.
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
	v.SetDefault("database.dbname", "wallet_settlement")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("database.statement_timeout", "30s")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.op_timeout", "500ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("qr.signing_secret", "")
	v.SetDefault("qr.issuer", "wallet-settlement")
	v.SetDefault("qr.default_expiry_minutes", 15)
	v.SetDefault("qr.offline_expiry_minutes", 1440)
	v.SetDefault("qr.max_expiry_minutes", 10080)
	v.SetDefault("qr.supported_currencies", []string{"NAD", "ZAR"})
	v.SetDefault("ips.self_participant_id", "")
	v.SetDefault("ips.suspense_wallet_id", "")
	v.SetDefault("ips.simulation_enabled", true)
	v.SetDefault("ips.reconcile_interval", "1m")
	v.SetDefault("ips.reconcile_after", "2m")
	v.SetDefault("ips.reconcile_batch", 100)
	v.SetDefault("gateway.url", "")
	v.SetDefault("gateway.participant_id", "GATEWAY")
	v.SetDefault("gateway.secret", "")
	v.SetDefault("gateway.timeout", "5s")
	v.SetDefault("gateway.max_attempts", 3)
	v.SetDefault("gateway.backoff", "500ms")
	v.SetDefault("directory.file", "config/participants.yaml")
	v.SetDefault("directory.refresh_interval", "5m")
	v.SetDefault("security.aes_key", "")
	v.SetDefault("security.callback_max_drift", "60s")
	v.SetDefault("security.callback_nonce_ttl", "120s")
	v.SetDefault("security.rate_limiting", true)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: WSC_DATABASE_HOST -> database.host
	v.SetEnvPrefix("WSC")
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
