package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hengadev/errsx"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/medrecord-api/pkg/security"
)

const envPrefix = "MEDREC"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Revocation RevocationConfig `mapstructure:"revocation"`
	Access     AccessConfig     `mapstructure:"access"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Hospitals  []HospitalConfig `mapstructure:"hospitals"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

func (c JWTConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

// EncryptionConfig takes either a passphrase and salt for Argon2id, or a raw
// hex master key. The key is derived once at startup.
type EncryptionConfig struct {
	Passphrase string                `mapstructure:"passphrase"`
	Salt       string                `mapstructure:"salt"`
	KeyHex     string                `mapstructure:"key_hex"`
	Argon2     security.Argon2Params `mapstructure:"argon2"`
}

// Keyring derives the record encryption keys.
func (c EncryptionConfig) Keyring() (*security.Keyring, error) {
	if c.KeyHex != "" {
		return security.KeyringFromHex(c.KeyHex)
	}
	return security.DeriveKeyring(c.Passphrase, c.Salt, c.Argon2)
}

type RevocationConfig struct {
	Backend         string        `mapstructure:"backend"`
	CacheEnabled    bool          `mapstructure:"cache_enabled"`
	CacheCapacity   int           `mapstructure:"cache_capacity"`
	NegativeTTL     time.Duration `mapstructure:"negative_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type AccessConfig struct {
	// MatchHospital adds hospital to the doctor scope key alongside department.
	MatchHospital bool `mapstructure:"match_hospital"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	ClientTTL         time.Duration `mapstructure:"client_ttl"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type WorkerConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	AuditRetentionDays int           `mapstructure:"audit_retention_days"`
	HealthPort         int           `mapstructure:"health_port"`
}

// HospitalConfig maps a hospital to the email domain its staff must use.
type HospitalConfig struct {
	Name        string `mapstructure:"name"`
	EmailDomain string `mapstructure:"email_domain"`
}

// legacySecrets are unprefixed variables kept for existing deployments.
type legacySecrets struct {
	JWTSecret     string `envconfig:"JWT_SECRET"`
	EncryptionKey string `envconfig:"ENCRYPTION_KEY"`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "medrecords")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "medrecord-api")
	v.SetDefault("jwt.expiry_hours", 1)

	def := security.DefaultArgon2Params()
	v.SetDefault("encryption.passphrase", "")
	v.SetDefault("encryption.salt", "")
	v.SetDefault("encryption.key_hex", "")
	v.SetDefault("encryption.argon2.memory", def.Memory)
	v.SetDefault("encryption.argon2.iterations", def.Iterations)
	v.SetDefault("encryption.argon2.parallelism", def.Parallelism)

	v.SetDefault("revocation.backend", "postgres")
	v.SetDefault("revocation.cache_enabled", true)
	v.SetDefault("revocation.cache_capacity", 10000)
	v.SetDefault("revocation.negative_ttl", 5*time.Second)
	v.SetDefault("revocation.cleanup_interval", time.Minute)

	v.SetDefault("access.match_hospital", true)

	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.client_ttl", 10*time.Minute)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@medrecords.local")

	v.SetDefault("cors.allow_origins", []string{"*"})

	v.SetDefault("worker.interval", time.Hour)
	v.SetDefault("worker.audit_retention_days", 365)
	v.SetDefault("worker.health_port", 8081)
}

// Load reads configuration from path (or ./config.yaml, ./config/config.yaml
// when path is empty), then MEDREC_* environment variables, then legacy
// unprefixed secrets.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.applyLegacySecrets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyLegacySecrets() error {
	var s legacySecrets
	if err := envconfig.Process("", &s); err != nil {
		return fmt.Errorf("failed to read legacy environment: %w", err)
	}
	if c.JWT.Secret == "" {
		c.JWT.Secret = s.JWTSecret
	}
	if c.Encryption.KeyHex == "" && c.Encryption.Passphrase == "" {
		c.Encryption.KeyHex = s.EncryptionKey
	}
	if c.SMTP.Password == "" {
		c.SMTP.Password = s.SMTPPassword
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs errsx.Map

	if c.Server.Port <= 0 {
		errs.Set("server.port", "must be positive")
	}
	if len(c.JWT.Secret) < 32 {
		errs.Set("jwt.secret", "must be at least 32 characters")
	}
	if c.JWT.ExpiryHours <= 0 {
		errs.Set("jwt.expiry_hours", "must be positive")
	}
	if c.Encryption.KeyHex == "" && c.Encryption.Passphrase == "" {
		errs.Set("encryption", "either key_hex or passphrase is required")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		errs.Set("database.driver", "must be postgres or memory")
	}
	switch c.Revocation.Backend {
	case "postgres":
		if c.Database.Driver != "postgres" {
			errs.Set("revocation.backend", "postgres backend needs database.driver postgres")
		}
	case "redis":
		if c.Redis.URL == "" {
			errs.Set("redis.url", "is required for the redis revocation backend")
		}
	case "memory":
	default:
		errs.Set("revocation.backend", "must be postgres, redis or memory")
	}
	if c.Revocation.CacheEnabled && c.Revocation.CacheCapacity <= 0 {
		errs.Set("revocation.cache_capacity", "must be positive when the cache is enabled")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs.Set("rate_limit", "requests_per_second and burst must be positive")
	}
	for i, h := range c.Hospitals {
		if h.Name == "" || h.EmailDomain == "" {
			errs.Set(fmt.Sprintf("hospitals[%d]", i), "name and email_domain are required")
		}
	}

	return errs.AsError()
}

// HospitalDomains returns hospital name to staff email domain.
func (c *Config) HospitalDomains() map[string]string {
	out := make(map[string]string, len(c.Hospitals))
	for _, h := range c.Hospitals {
		out[h.Name] = strings.ToLower(strings.TrimPrefix(h.EmailDomain, "@"))
	}
	return out
}
