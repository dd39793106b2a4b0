// Package config defines the global configuration structure for the OpsDeck
// platform. Configuration is loaded once at process startup and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating code
// from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"

	"opsdeck/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the OpsDeck platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"opsdeck-service"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Reminders RemindersConfig
	SMS       SMSConfig
	Social    SocialConfig
	Billing   BillingConfig
	AWS       AWSConfig
	Crypto    CryptoConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public URL for links embedded in reminder texts (no trailing slash).
	APIExternalURL string        `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// MongoConfig holds document-store connection parameters.
type MongoConfig struct {
	URI      SecretString  `envconfig:"MONGO_URI" validate:"required"`
	Database string        `envconfig:"MONGO_DATABASE" default:"opsdeck"`
	Timeout  time.Duration `envconfig:"MONGO_TIMEOUT" default:"10s"`
}

// RedisConfig holds job-store connection parameters.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR" validate:"required"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0"`
}

// PostgresConfig holds wallet-ledger database connection and pool tuning.
type PostgresConfig struct {
	URL SecretString `envconfig:"POSTGRES_URL" validate:"required"`

	MaxConns        int           `envconfig:"PG_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"PG_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"PG_MAX_CONN_LIFETIME" default:"30m"`
}

// RemindersConfig tunes the reminder scheduling subsystem.
type RemindersConfig struct {
	GracePeriod     time.Duration `envconfig:"REMINDER_GRACE_PERIOD" default:"48h"`
	RetentionWindow time.Duration `envconfig:"REMINDER_RETENTION_WINDOW" default:"72h"`
	MinTTL          time.Duration `envconfig:"REMINDER_MIN_TTL" default:"1h"`
	GCBatchSize     int           `envconfig:"REMINDER_GC_BATCH" default:"500"`
	GCSchedule      string        `envconfig:"REMINDER_GC_SCHEDULE" default:"17 * * * *"`
	WorkerPoll      time.Duration `envconfig:"REMINDER_WORKER_POLL" default:"30s"`
	WorkerBatch     int           `envconfig:"REMINDER_WORKER_BATCH" default:"50"`
	WorkerParallel  int           `envconfig:"REMINDER_WORKER_PARALLEL" default:"8"`
}

// SMSConfig holds SMS gateway credentials and sender identity.
type SMSConfig struct {
	BaseURL   string        `envconfig:"SMS_BASE_URL" validate:"required,url"`
	AccountID string        `envconfig:"SMS_ACCOUNT_ID" validate:"required"`
	AuthToken SecretString  `envconfig:"SMS_AUTH_TOKEN" validate:"required"`
	From      string        `envconfig:"SMS_FROM" validate:"required"`
	Timeout   time.Duration `envconfig:"SMS_TIMEOUT" default:"15s"`
}

// SocialConfig holds the social publishing gateway connection. Publishing is
// optional; when BaseURL is empty the registry wires stub publishers.
type SocialConfig struct {
	BaseURL string        `envconfig:"SOCIAL_BASE_URL" validate:"omitempty,url"`
	Token   SecretString  `envconfig:"SOCIAL_TOKEN"`
	Timeout time.Duration `envconfig:"SOCIAL_TIMEOUT" default:"15s"`
}

// BillingConfig holds Stripe payment integration credentials.
type BillingConfig struct {
	StripeSecretKey SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// DispatchQueueURL is the SQS queue due reminder jobs are published to
	// for downstream consumers (webhooks, analytics).
	DispatchQueueURL string `envconfig:"SQS_REMINDER_DISPATCH" validate:"required,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// CryptoConfig holds the key material for field-level encryption.
type CryptoConfig struct {
	// FieldKey is the hex-encoded 32-byte key used to encrypt contact
	// phone numbers at rest.
	FieldKey SecretString `envconfig:"FIELD_ENCRYPTION_KEY" validate:"required,len=64,hexadecimal"`
}
