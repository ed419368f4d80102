package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"APP_ENV", "ENV", "HTTP_ADDR", "DATABASE_URL", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET",
		"STRIPE_CURRENCY", "NOTIFY_TRANSPORT", "SMTP_HOST", "SMTP_PORT", "AMQP_URL", "KAFKA_BROKERS",
		"JWT_SECRET", "JWT_TTL", "NOTIFY_TIMEOUT", "DRAFT_TTL", "WEBHOOK_INFLIGHT_TTL", "WEBHOOK_EVENT_RETENTION",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, TransportLog, cfg.NotifyTransport)
	assert.Equal(t, "usd", cfg.StripeCurrency)
	assert.Equal(t, 72*time.Hour, cfg.DraftTTL)
	assert.Equal(t, 2*time.Minute, cfg.InflightTTL)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.False(t, cfg.IsProdLike())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("DRAFT_TTL", "three days")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DRAFT_TTL")
}

func TestLoadRejectsCurrenciesWithoutCents(t *testing.T) {
	for _, code := range []string{"JPY", "krw", "kwd"} {
		t.Run(code, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("STRIPE_CURRENCY", code)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "STRIPE_CURRENCY")
		})
	}

	clearEnv(t)
	t.Setenv("STRIPE_CURRENCY", "EUR")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "eur", cfg.StripeCurrency)
}

func TestLoadTransportRequirements(t *testing.T) {
	cases := []struct {
		name      string
		transport string
		env       map[string]string
		wantErr   string
	}{
		{name: "smtp without host", transport: "smtp", wantErr: "SMTP_HOST"},
		{name: "amqp without url", transport: "amqp", wantErr: "AMQP_URL"},
		{name: "kafka without brokers", transport: "kafka", wantErr: "KAFKA_BROKERS"},
		{name: "unknown transport", transport: "pigeon", wantErr: "NOTIFY_TRANSPORT"},
		{name: "kafka with brokers", transport: "kafka", env: map[string]string{"KAFKA_BROKERS": "k1:9092, k2:9092"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("NOTIFY_TRANSPORT", tc.transport)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
		})
	}
}

func TestLoadProdRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("NOTIFY_TRANSPORT", "smtp")
	t.Setenv("SMTP_HOST", "smtp.example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "prod-secret")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")

	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_live")
	t.Setenv("STRIPE_SECRET_KEY", "sk_live_1")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProdLike())
}
