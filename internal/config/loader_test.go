package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setValidEnv populates the minimal set of required variables.
func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("API_EXTERNAL_URL", "https://api.opsdeck.example")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("POSTGRES_URL", "postgres://localhost:5432/opsdeck")
	t.Setenv("SMS_BASE_URL", "https://sms.gateway.example")
	t.Setenv("SMS_ACCOUNT_ID", "acct_test")
	t.Setenv("SMS_AUTH_TOKEN", "tok_test")
	t.Setenv("SMS_FROM", "+15550001111")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("SQS_REMINDER_DISPATCH", "https://sqs.us-east-1.amazonaws.com/1/reminders")
	t.Setenv("FIELD_ENCRYPTION_KEY", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
}

func TestLoad_Defaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load("testdata/absent.env")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "opsdeck-service", cfg.Service)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "opsdeck", cfg.Mongo.Database)
	assert.Equal(t, 500, cfg.Reminders.GCBatchSize)
	assert.Equal(t, "17 * * * *", cfg.Reminders.GCSchedule)
	assert.Equal(t, 10, cfg.Postgres.MaxConns)
}

func TestLoad_MissingRequired(t *testing.T) {
	setValidEnv(t)
	t.Setenv("MONGO_URI", "")

	_, err := Load("testdata/absent.env")
	require.Error(t, err)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ConfigErrValidation, cerr.Type)
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	setValidEnv(t)
	t.Setenv("APP_ENV", "production") // must be one of local/dev/staging/prod

	_, err := Load("testdata/absent.env")
	assert.Error(t, err)
}

func TestLoad_InvalidFieldKey(t *testing.T) {
	setValidEnv(t)
	t.Setenv("FIELD_ENCRYPTION_KEY", "not-hex")

	_, err := Load("testdata/absent.env")
	assert.Error(t, err)
}

func TestLoad_SecretsRedactedInLogsAndJSON(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load("testdata/absent.env")
	require.NoError(t, err)

	assert.Equal(t, "***REDACTED***", cfg.Billing.StripeSecretKey.String())
	assert.Equal(t, "sk_test_123", cfg.Billing.StripeSecretKey.Unmask())
}
