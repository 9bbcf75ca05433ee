package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable consumed by the backend.
const EnvPrefix = "NOTEWELL"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	AWS           AWSConfig
	Queue         QueueConfig
	ObjectStore   ObjectStoreConfig
	NoteStore     NoteStoreConfig
	Notes         NotesConfig
	Worker        WorkerConfig
	Identity      IdentityConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AuthRateLimit AuthRateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Worker.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"NOTEWELL_APP_ENV" required:"true"`
	Port         string   `envconfig:"NOTEWELL_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"NOTEWELL_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"NOTEWELL_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"NOTEWELL_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"NOTEWELL_SERVICE_KIND" default:"api"`
}

type AWSConfig struct {
	Region          string `envconfig:"NOTEWELL_AWS_REGION" required:"true"`
	AccessKeyID     string `envconfig:"NOTEWELL_AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"NOTEWELL_AWS_SECRET_ACCESS_KEY"`
	Endpoint        string `envconfig:"NOTEWELL_AWS_ENDPOINT"`
}

// StaticCredentials reports whether explicit credentials were supplied instead
// of relying on the ambient provider chain.
func (a AWSConfig) StaticCredentials() bool {
	return a.AccessKeyID != "" && a.SecretAccessKey != ""
}

type QueueConfig struct {
	URL               string        `envconfig:"NOTEWELL_QUEUE_URL" required:"true"`
	MaxReceive        int           `envconfig:"NOTEWELL_QUEUE_MAX_RECEIVE" default:"10"`
	WaitTime          time.Duration `envconfig:"NOTEWELL_QUEUE_WAIT_TIME" default:"20s"`
	VisibilityTimeout time.Duration `envconfig:"NOTEWELL_QUEUE_VISIBILITY_TIMEOUT" default:"60s"`
}

type ObjectStoreConfig struct {
	Bucket          string        `envconfig:"NOTEWELL_S3_BUCKET" required:"true"`
	UploadURLExpiry time.Duration `envconfig:"NOTEWELL_S3_UPLOAD_URL_EXPIRY" default:"15m"`
	PublicBaseURL   string        `envconfig:"NOTEWELL_S3_PUBLIC_BASE_URL"`
}

type NoteStoreConfig struct {
	Table        string `envconfig:"NOTEWELL_NOTES_TABLE" default:"notes"`
	CreatedIndex string `envconfig:"NOTEWELL_NOTES_CREATED_INDEX" default:"owner-created-index"`
}

type NotesConfig struct {
	MaxMediasPerNote int `envconfig:"NOTEWELL_MAX_MEDIAS_PER_NOTE" default:"10"`
	DeletePageSize   int `envconfig:"NOTEWELL_NOTES_DELETE_PAGE_SIZE" default:"50"`
}

type WorkerConfig struct {
	MaxAttempt      int           `envconfig:"NOTEWELL_WORKER_MAX_ATTEMPT" default:"3"`
	RetryBatchSize  int           `envconfig:"NOTEWELL_WORKER_RETRY_BATCH_SIZE" default:"10"`
	RetryBatchDelay time.Duration `envconfig:"NOTEWELL_WORKER_RETRY_BATCH_DELAY" default:"250ms"`
	ShutdownGrace   time.Duration `envconfig:"NOTEWELL_WORKER_SHUTDOWN_GRACE" default:"2s"`
	MetricsPort     string        `envconfig:"NOTEWELL_WORKER_METRICS_PORT" default:"9090"`
}

func (w WorkerConfig) validate() error {
	if w.MaxAttempt <= 0 {
		return errors.New("worker max attempt must be positive")
	}
	if w.RetryBatchSize <= 0 {
		return errors.New("worker retry batch size must be positive")
	}
	return nil
}

type IdentityConfig struct {
	UserPoolID     string `envconfig:"NOTEWELL_IDENTITY_USER_POOL_ID" required:"true"`
	PhotoAttribute string `envconfig:"NOTEWELL_IDENTITY_PHOTO_ATTRIBUTE" default:"picture"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NOTEWELL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NOTEWELL_REDIS_ADDR"`
	Password     string        `envconfig:"NOTEWELL_REDIS_PASSWORD"`
	DB           int           `envconfig:"NOTEWELL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NOTEWELL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NOTEWELL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NOTEWELL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NOTEWELL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NOTEWELL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"NOTEWELL_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NOTEWELL_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NOTEWELL_JWT_EXPIRATION_MINUTES" default:"60"`
}

type AuthRateLimitConfig struct {
	Window   time.Duration `envconfig:"NOTEWELL_AUTH_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit  int           `envconfig:"NOTEWELL_AUTH_RATE_LIMIT_IP_LIMIT" default:"60"`
	Disabled bool          `envconfig:"NOTEWELL_AUTH_RATE_LIMIT_DISABLED" default:"false"`
}
