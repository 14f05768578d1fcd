package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
	Business  BusinessConfig
	Storage   StorageConfig
	Health    HealthConfig
}

type ServerConfig struct {
	Port         string        `mapstructure:"SERVER_PORT"`
	Host         string        `mapstructure:"SERVER_HOST"`
	Env          string        `mapstructure:"ENV"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"DATABASE_DRIVER"`
	URL             string        `mapstructure:"DATABASE_URL"`
	MaxOpenConns    int           `mapstructure:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `mapstructure:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `mapstructure:"DATABASE_CONN_MAX_LIFETIME"`
}

type MongoConfig struct {
	URI      string `mapstructure:"MONGO_URI"`
	Database string `mapstructure:"MONGO_DATABASE"`
}

type RedisConfig struct {
	URL      string `mapstructure:"REDIS_URL"`
	Host     string `mapstructure:"REDIS_HOST"`
	Port     string `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type SchedulerConfig struct {
	ReminderSpec     string `mapstructure:"SCHEDULER_REMINDER_SPEC"`
	Timezone         string `mapstructure:"SCHEDULER_TIMEZONE"`
	ReminderLeadDays int    `mapstructure:"REMINDER_LEAD_DAYS"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

type BusinessConfig struct {
	MinParticipants    int  `mapstructure:"MIN_PARTICIPANTS"`
	MaxConflictRetries int  `mapstructure:"MAX_CONFLICT_RETRIES"`
	AutoAdvanceCycle   bool `mapstructure:"AUTO_ADVANCE_CYCLE"`
}

type StorageConfig struct {
	ProofDir      string `mapstructure:"PROOF_STORAGE_DIR"`
	MaxProofBytes int64  `mapstructure:"MAX_PROOF_BYTES"`
}

type HealthConfig struct {
	Timeout string `mapstructure:"HEALTH_CHECK_TIMEOUT"`
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// Don't fail if .env file doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var config Config
	// Keys are flat environment names, so each section decodes from the root.
	sections := []interface{}{
		&config.Server, &config.Database, &config.Mongo, &config.Redis,
		&config.Scheduler, &config.Logging, &config.Business, &config.Storage,
		&config.Health,
	}
	for _, section := range sections {
		if err := v.Unmarshal(section); err != nil {
			return nil, fmt.Errorf("unable to decode config: %w", err)
		}
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("ENV", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("DATABASE_DRIVER", DriverPostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 10)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "tontine")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SCHEDULER_REMINDER_SPEC", "0 0 9 * * *")
	v.SetDefault("SCHEDULER_TIMEZONE", "Africa/Douala")
	v.SetDefault("REMINDER_LEAD_DAYS", 2)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("MIN_PARTICIPANTS", 2)
	v.SetDefault("MAX_CONFLICT_RETRIES", 3)
	v.SetDefault("AUTO_ADVANCE_CYCLE", false)
	v.SetDefault("PROOF_STORAGE_DIR", "./data/proofs")
	v.SetDefault("MAX_PROOF_BYTES", 10*1024*1024)
	v.SetDefault("HEALTH_CHECK_TIMEOUT", "5s")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be one of postgres, mongo, memory: got %q", c.Database.Driver)
	}

	if c.Business.MinParticipants < 2 {
		return fmt.Errorf("MIN_PARTICIPANTS must be at least 2")
	}

	if c.Business.MaxConflictRetries < 0 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES must not be negative")
	}

	if c.Storage.MaxProofBytes <= 0 {
		return fmt.Errorf("MAX_PROOF_BYTES must be greater than 0")
	}

	if c.Scheduler.ReminderLeadDays < 0 {
		return fmt.Errorf("REMINDER_LEAD_DAYS must not be negative")
	}

	// Validate reminder schedule
	if _, err := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(c.Scheduler.ReminderSpec); err != nil {
		return fmt.Errorf("SCHEDULER_REMINDER_SPEC must be a valid cron spec: %w", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}

	// Validate health check timeout
	if _, err := time.ParseDuration(c.Health.Timeout); err != nil {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a valid duration: %w", err)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("LOG_LEVEL must be a valid level: %w", err)
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetHealthTimeout returns the health check timeout as duration
func (c *Config) GetHealthTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Health.Timeout)
	return timeout
}

// GetSchedulerLocation returns the scheduler timezone
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RedisAddr returns host:port for the redis client
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

// NewLogger builds the process logger from the logging section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if strings.EqualFold(c.Logging.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build(zap.Fields(zap.String("env", c.Server.Env)))
}
