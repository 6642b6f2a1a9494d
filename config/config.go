package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend names accepted by MQ_BACKEND and STORAGE_BACKEND.
const (
	BackendNone     = "none"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"
	BackendS3       = "s3"
)

type Config struct {
	Env                string   `env:"ENV" envDefault:"prod"`
	ServerPort         int      `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel           string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat          string   `env:"LOG_FORMAT" envDefault:"json"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	Database DatabaseConfig `envPrefix:"DB_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	MQ       MQConfig       `envPrefix:"MQ_"`
	RabbitMQ RabbitMQConfig `envPrefix:"RABBITMQ_"`
	PubSub   PubSubConfig   `envPrefix:"PUBSUB_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	Minio    MinioConfig    `envPrefix:"MINIO_"`
	GCS      GCSConfig      `envPrefix:"GCS_"`
	S3       S3Config       `envPrefix:"S3_"`
}

type DatabaseConfig struct {
	Driver        string `env:"DRIVER" envDefault:"postgres"`
	Host          string `env:"HOST" envDefault:"localhost"`
	Port          int    `env:"PORT" envDefault:"5432"`
	User          string `env:"USER" envDefault:"accounts"`
	Password      string `env:"PASSWORD" envDefault:"password"`
	DBName        string `env:"NAME" envDefault:"accounts_db"`
	UseSSL        bool   `env:"USE_SSL" envDefault:"false"`
	MigrationsURL string `env:"MIGRATIONS_URL" envDefault:"file://internal/db/migrations"`
}

// AuthConfig carries the secrets and policy knobs of the credential lifecycle.
type AuthConfig struct {
	// TokenKey keys the HMAC digest stored for every access token.
	TokenKey string `env:"TOKEN_KEY"`
	// JWTSecret signs email verification links. Falls back to TokenKey.
	JWTSecret string `env:"JWT_SECRET"`
	// TokenTTL bounds access token lifetime. Zero means tokens never expire.
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"0s"`
	VerificationTTL   time.Duration `env:"VERIFICATION_TTL" envDefault:"1h"`
	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"10"`
	MinPasswordLength int           `env:"MIN_PASSWORD_LENGTH" envDefault:"8"`
}

type MQConfig struct {
	Backend                  string `env:"BACKEND" envDefault:"none"`
	LoginAttemptsChannel     string `env:"LOGIN_ATTEMPTS_CHANNEL" envDefault:"login-attempts"`
	EmailVerificationChannel string `env:"EMAIL_VERIFICATION_CHANNEL" envDefault:"email-verification"`
}

type RabbitMQConfig struct {
	URL             string `env:"URL"`
	PrefetchCount   int    `env:"PREFETCH_COUNT" envDefault:"10"`
	QueueDurable    bool   `env:"QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"QUEUE_AUTO_DELETE" envDefault:"false"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PROJECT_ID"`
	CredentialsFile    string `env:"CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

type StorageConfig struct {
	Backend     string `env:"BACKEND" envDefault:"none"`
	AuditPrefix string `env:"AUDIT_PREFIX" envDefault:"audit/login-attempts"`
}

type MinioConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"BUCKET"`
	ProjectID       string `env:"PROJECT_ID"`
	CredentialsFile string `env:"CREDENTIALS_FILE"`
}

type S3Config struct {
	Region       string `env:"REGION" envDefault:"us-east-1"`
	BaseEndpoint string `env:"BASE_ENDPOINT"`
	AccessKey    string `env:"ACCESS_KEY"`
	SecretKey    string `env:"SECRET_KEY"`
	Bucket       string `env:"BUCKET"`
	UsePathStyle bool   `env:"USE_PATH_STYLE" envDefault:"true"`
}

// LoadConfig reads configuration from the environment. In dev mode a local
// .env file is loaded first.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.MQ.Backend = normalizeBackend(cfg.MQ.Backend)
	cfg.Storage.Backend = normalizeBackend(cfg.Storage.Backend)
	return cfg, nil
}

// Validate checks the values the HTTP server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.TokenKey) == "" {
		return errors.New("AUTH_TOKEN_KEY is required")
	}
	if c.Auth.MinPasswordLength < 1 {
		return errors.New("AUTH_MIN_PASSWORD_LENGTH must be positive")
	}
	switch c.Database.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.MQ.Backend {
	case BackendNone, BackendRabbitMQ, BackendPubSub:
	default:
		return fmt.Errorf("unsupported MQ_BACKEND %q", c.MQ.Backend)
	}
	switch c.Storage.Backend {
	case BackendNone, BackendMinio, BackendGCS, BackendS3:
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}
	return nil
}

// VerificationSecret returns the key used to sign email verification tokens.
func (a AuthConfig) VerificationSecret() string {
	if strings.TrimSpace(a.JWTSecret) != "" {
		return a.JWTSecret
	}
	return a.TokenKey
}

func normalizeBackend(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return BackendNone
	}
	return value
}
