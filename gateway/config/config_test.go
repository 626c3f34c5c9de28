package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddress)
	require.Equal(t, 15*time.Second, cfg.ReadTimeout)
	require.Equal(t, "payward-gateway", cfg.Observability.ServiceName)
	require.Equal(t, time.Hour, cfg.Billing.TickInterval)
	require.Equal(t, 1024, cfg.Notifications.QueueCapacity)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
environment: production
databasePath: /var/lib/payward/payward.db
auth:
  enabled: true
  hmacSecret: super-secret
  issuer: payward
rateLimits:
  - id: payments
    ratePerSecond: 10
    burst: 20
processors:
  stripe:
    secretKey: sk_test_123
    methods: [card]
billing:
  tickInterval: 15m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddress)
	require.Equal(t, "production", cfg.Environment)
	require.True(t, cfg.Auth.Enabled)
	require.Len(t, cfg.RateLimits, 1)
	require.Equal(t, "payments", cfg.RateLimits[0].ID)
	require.Equal(t, 15*time.Minute, cfg.Billing.TickInterval)
	require.Equal(t, "sk_test_123", cfg.Processors.Stripe.SecretKey)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PAYWARD_LISTEN", ":7070")
	t.Setenv("PAYWARD_JWT_SECRET", "env-secret")

	path := writeConfig(t, `
auth:
  enabled: true
  hmacSecret: file-secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.ListenAddress)
	require.Equal(t, "env-secret", cfg.Auth.HMACSecret)
}

func TestLoadRejectsAuthWithoutSecret(t *testing.T) {
	path := writeConfig(t, `
auth:
  enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
}
