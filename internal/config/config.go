package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/zfogg/friendlypix/internal/logger"
	"github.com/zfogg/friendlypix/internal/validation"
)

// Config holds all runtime settings for the fan-out backend.
type Config struct {
	Environment string `env:"ENVIRONMENT"`
	Port        string `env:"PORT" validate:"required"`
	LogLevel    string `env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	LogFile     string `env:"LOG_FILE"`

	DatabaseDriver string `env:"DATABASE_DRIVER" validate:"oneof=postgres sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" validate:"required"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	StorageDriver  string `env:"STORAGE_DRIVER" validate:"oneof=s3 minio none"`
	AWSRegion      string `env:"AWS_REGION"`
	AWSBucket      string `env:"AWS_BUCKET"`
	CDNBaseURL     string `env:"CDN_BASE_URL" validate:"omitempty,url"`
	MinioEndpoint  string `env:"MINIO_ENDPOINT" validate:"required_if=StorageDriver minio"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL"`

	SESFromEmail   string `env:"SES_FROM_EMAIL" validate:"omitempty,email"`
	SESFromName    string `env:"SES_FROM_NAME"`
	ModeratorEmail string `env:"MODERATOR_EMAIL" validate:"omitempty,email"`
	WebBaseURL     string `env:"WEB_BASE_URL" validate:"omitempty,url"`

	FCMProjectID     string `env:"FCM_PROJECT_ID"`
	FCMEndpoint      string `env:"FCM_ENDPOINT"`
	VisionEndpoint   string `env:"VISION_ENDPOINT"`
	ElasticsearchURL string `env:"ELASTICSEARCH_URL"`

	CronKey   string `env:"CRON_KEY"`
	JWTSecret string `env:"JWT_SECRET"`

	PoolConcurrency  int           `env:"POOL_CONCURRENCY" validate:"min=1"`
	PostMaxAge       time.Duration `env:"POST_MAX_AGE" validate:"gt=0"`
	InactivityWindow time.Duration `env:"INACTIVITY_WINDOW" validate:"gt=0"`
	JobInterval      time.Duration `env:"JOB_INTERVAL" validate:"gte=0"`
	CascadeLeaseTTL  time.Duration `env:"CASCADE_LEASE_TTL"`

	BlockList          []string `env:"MODERATION_BLOCKLIST"`
	ShoutThreshold     float64  `env:"MODERATION_SHOUT_THRESHOLD" validate:"gt=0,lt=1"`
	MinShoutLetters    int      `env:"MODERATION_MIN_SHOUT_LETTERS" validate:"gte=0"`
	Mask               string   `env:"MODERATION_MASK" validate:"required"`
	ClassifierFailOpen bool     `env:"CLASSIFIER_FAIL_OPEN"`

	RulesFile string `env:"CASCADE_RULES_FILE"`

	// RequiredServices names services that must answer at startup:
	// database, redis, storage, elasticsearch.
	RequiredServices []string `env:"REQUIRED_SERVICES"`

	TracingEnabled bool    `env:"TRACING_ENABLED"`
	OTLPEndpoint   string  `env:"OTLP_ENDPOINT"`
	SamplingRate   float64 `env:"TRACING_SAMPLING_RATE" validate:"gte=0,lte=1"`
}

// Load reads .env (if present), an optional config file named by
// CONFIG_FILE, and the process environment, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug(".env file not found, using system environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		Port:        v.GetString("PORT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogFile:     v.GetString("LOG_FILE"),

		DatabaseDriver: strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseURL:    v.GetString("DATABASE_URL"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),

		StorageDriver:  strings.ToLower(v.GetString("STORAGE_DRIVER")),
		AWSRegion:      v.GetString("AWS_REGION"),
		AWSBucket:      v.GetString("AWS_BUCKET"),
		CDNBaseURL:     v.GetString("CDN_BASE_URL"),
		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:    v.GetString("MINIO_BUCKET"),
		MinioUseSSL:    v.GetBool("MINIO_USE_SSL"),

		SESFromEmail:   v.GetString("SES_FROM_EMAIL"),
		SESFromName:    v.GetString("SES_FROM_NAME"),
		ModeratorEmail: v.GetString("MODERATOR_EMAIL"),
		WebBaseURL:     v.GetString("WEB_BASE_URL"),

		FCMProjectID:     v.GetString("FCM_PROJECT_ID"),
		FCMEndpoint:      v.GetString("FCM_ENDPOINT"),
		VisionEndpoint:   v.GetString("VISION_ENDPOINT"),
		ElasticsearchURL: v.GetString("ELASTICSEARCH_URL"),

		CronKey:   v.GetString("CRON_KEY"),
		JWTSecret: v.GetString("JWT_SECRET"),

		PoolConcurrency:  v.GetInt("POOL_CONCURRENCY"),
		PostMaxAge:       v.GetDuration("POST_MAX_AGE"),
		InactivityWindow: v.GetDuration("INACTIVITY_WINDOW"),
		JobInterval:      v.GetDuration("JOB_INTERVAL"),
		CascadeLeaseTTL:  v.GetDuration("CASCADE_LEASE_TTL"),

		BlockList:          splitList(v.GetString("MODERATION_BLOCKLIST")),
		ShoutThreshold:     v.GetFloat64("MODERATION_SHOUT_THRESHOLD"),
		MinShoutLetters:    v.GetInt("MODERATION_MIN_SHOUT_LETTERS"),
		Mask:               v.GetString("MODERATION_MASK"),
		ClassifierFailOpen: v.GetBool("CLASSIFIER_FAIL_OPEN"),

		RulesFile: v.GetString("CASCADE_RULES_FILE"),

		RequiredServices: splitList(v.GetString("REQUIRED_SERVICES")),

		TracingEnabled: v.GetBool("TRACING_ENABLED"),
		OTLPEndpoint:   v.GetString("OTLP_ENDPOINT"),
		SamplingRate:   v.GetFloat64("TRACING_SAMPLING_RATE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", "8787")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "fanout.log")
	v.SetDefault("DATABASE_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "host=localhost port=5432 user=postgres dbname=friendlypix sslmode=disable")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("STORAGE_DRIVER", "s3")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("MINIO_BUCKET", "friendlypix")
	v.SetDefault("SES_FROM_NAME", "FriendlyPix Bot")
	v.SetDefault("WEB_BASE_URL", "https://friendly-pix.com")
	v.SetDefault("FCM_ENDPOINT", "https://fcm.googleapis.com")
	v.SetDefault("VISION_ENDPOINT", "https://vision.googleapis.com")
	v.SetDefault("ELASTICSEARCH_URL", "http://localhost:9200")
	v.SetDefault("POOL_CONCURRENCY", 3)
	v.SetDefault("POST_MAX_AGE", 30*24*time.Hour)
	v.SetDefault("INACTIVITY_WINDOW", 30*24*time.Hour)
	v.SetDefault("JOB_INTERVAL", 24*time.Hour)
	v.SetDefault("CASCADE_LEASE_TTL", 10*time.Minute)
	v.SetDefault("MODERATION_SHOUT_THRESHOLD", 0.5)
	v.SetDefault("MODERATION_MIN_SHOUT_LETTERS", 3)
	v.SetDefault("MODERATION_MASK", "****")
	v.SetDefault("TRACING_SAMPLING_RATE", 1.0)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
