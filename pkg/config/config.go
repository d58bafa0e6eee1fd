package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hugh/asset-shipper/pkg/crypto"
	"github.com/hugh/asset-shipper/pkg/util"
)

// ErrConfiguration is returned when the configuration cannot be used.
var ErrConfiguration = errors.New("invalid configuration")

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Shipper   ShipperConfig
	Worker    WorkerConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxIdleConns int
	MaxOpenConns int
	Debug        bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

// StorageConfig selects where mapper output is read from.
type StorageConfig struct {
	Provider           string // s3, gcs, minio or local
	Bucket             string
	Region             string
	Endpoint           string
	AccessKey          string
	SecretKey          string
	UseSSL             bool
	AssumeRoleARN      string
	GCPCredentialsJSON string
	LocalRoot          string
}

type ShipperConfig struct {
	BatchSize           int
	TagWorkers          int
	AccountCacheTTLMins int
	AccountCacheSize    int
	StateCron           string
}

type WorkerConfig struct {
	Concurrency int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (s *ShipperConfig) AccountCacheTTL() time.Duration {
	return time.Duration(s.AccountCacheTTLMins) * time.Minute
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "shipper")
	v.SetDefault("DATABASE_PASSWORD", "shipper_secret")
	v.SetDefault("DATABASE_NAME", "assets")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 100)
	v.SetDefault("DATABASE_DEBUG", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("STORAGE_PROVIDER", "local")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_LOCAL_ROOT", "./data")
	v.SetDefault("SHIPPER_BATCH_SIZE", 500)
	v.SetDefault("SHIPPER_TAG_WORKERS", 4)
	v.SetDefault("SHIPPER_ACCOUNT_CACHE_TTL_MINUTES", 60)
	v.SetDefault("SHIPPER_ACCOUNT_CACHE_SIZE", 4096)
	v.SetDefault("SHIPPER_STATE_CRON", "*/15 * * * *")
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := applySecrets(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:         v.GetString("DATABASE_HOST"),
			Port:         v.GetInt("DATABASE_PORT"),
			User:         v.GetString("DATABASE_USER"),
			Password:     v.GetString("DATABASE_PASSWORD"),
			Name:         v.GetString("DATABASE_NAME"),
			SSLMode:      v.GetString("DATABASE_SSLMODE"),
			MaxIdleConns: v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			MaxOpenConns: v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			Debug:        v.GetBool("DATABASE_DEBUG"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Storage: StorageConfig{
			Provider:           strings.ToLower(v.GetString("STORAGE_PROVIDER")),
			Bucket:             v.GetString("STORAGE_BUCKET"),
			Region:             v.GetString("STORAGE_REGION"),
			Endpoint:           v.GetString("STORAGE_ENDPOINT"),
			AccessKey:          v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:          v.GetString("STORAGE_SECRET_KEY"),
			UseSSL:             v.GetBool("STORAGE_USE_SSL"),
			AssumeRoleARN:      v.GetString("STORAGE_ASSUME_ROLE_ARN"),
			GCPCredentialsJSON: v.GetString("STORAGE_GCP_CREDENTIALS_JSON"),
			LocalRoot:          v.GetString("STORAGE_LOCAL_ROOT"),
		},
		Shipper: ShipperConfig{
			BatchSize:           v.GetInt("SHIPPER_BATCH_SIZE"),
			TagWorkers:          v.GetInt("SHIPPER_TAG_WORKERS"),
			AccountCacheTTLMins: v.GetInt("SHIPPER_ACCOUNT_CACHE_TTL_MINUTES"),
			AccountCacheSize:    v.GetInt("SHIPPER_ACCOUNT_CACHE_SIZE"),
			StateCron:           v.GetString("SHIPPER_STATE_CRON"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "s3", "gcs", "minio", "local":
	default:
		return fmt.Errorf("%w: unknown storage provider %q", ErrConfiguration, c.Storage.Provider)
	}
	if c.Storage.Provider != "local" && c.Storage.Bucket == "" {
		return fmt.Errorf("%w: STORAGE_BUCKET is required for %s", ErrConfiguration, c.Storage.Provider)
	}
	if c.Shipper.StateCron != "" {
		if err := util.ValidateCronExpr(c.Shipper.StateCron); err != nil {
			return fmt.Errorf("%w: SHIPPER_STATE_CRON: %v", ErrConfiguration, err)
		}
	}
	return nil
}

// applySecrets overlays the decrypted secrets bundle onto v.
func applySecrets(v *viper.Viper) error {
	path := v.GetString("SECRETS_FILE")
	if path == "" {
		return nil
	}

	key := v.GetString("SECRETS_KEY")
	if key == "" {
		return fmt.Errorf("%w: SECRETS_KEY is required with SECRETS_FILE", ErrConfiguration)
	}

	sealed, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading secrets bundle: %v", ErrConfiguration, err)
	}

	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	secrets, err := enc.OpenBundle(sealed)
	if err != nil {
		return fmt.Errorf("%w: opening secrets bundle: %v", ErrConfiguration, err)
	}

	for k, val := range secrets {
		v.Set(strings.ToUpper(k), val)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
