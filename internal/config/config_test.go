package config

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"PORT", "DATA_DIR", "LOG_LEVEL",
	"WHATSAPP_ACCESS_TOKEN", "WHATSAPP_PHONE_NUMBER_ID", "WHATSAPP_BUSINESS_ACCOUNT_ID", "WHATSAPP_VERIFY_TOKEN",
	"WA_API_VERSION", "WA_BRAND_NAME", "WA_BASE_URL", "WA_SEND_RETRIES", "WA_BACKOFF_UNIT",
	"WA_SEND_RATE", "WA_SEND_BURST", "WA_MAX_FLOW_DELAY",
	"JWT_SECRET", "ADMIN_USERNAME", "ADMIN_PASSWORD", "AUDIT_DATABASE_URL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "./data", cfg.Server.DataDir)
	assert.Equal(t, log.InfoLevel, cfg.Server.LogLevel)
	assert.Equal(t, "sales_dashboard_verify", cfg.WhatsApp.VerifyToken)
	assert.Equal(t, "v21.0", cfg.WhatsApp.APIVersion)
	assert.Equal(t, "Koenig Solutions", cfg.WhatsApp.BrandName)
	assert.Equal(t, "https://graph.facebook.com", cfg.WhatsApp.BaseURL)
	assert.Equal(t, 2, cfg.WhatsApp.SendRetries)
	assert.Equal(t, time.Second, cfg.WhatsApp.BackoffUnit)
	assert.Equal(t, 1.0, cfg.WhatsApp.SendRate)
	assert.Equal(t, 5, cfg.WhatsApp.SendBurst)
	assert.Equal(t, 5*time.Minute, cfg.Flow.MaxDelay)
	assert.Equal(t, "admin", cfg.Auth.AdminUsername)
	assert.False(t, cfg.Auth.Enabled())
	assert.False(t, cfg.WhatsApp.Configured())
	assert.Empty(t, cfg.AuditDSN)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "token")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "1234")
	t.Setenv("WA_SEND_RETRIES", "4")
	t.Setenv("WA_BACKOFF_UNIT", "250ms")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, log.DebugLevel, cfg.Server.LogLevel)
	assert.True(t, cfg.WhatsApp.Configured())
	assert.Equal(t, 4, cfg.WhatsApp.SendRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.WhatsApp.BackoffUnit)
	assert.True(t, cfg.Auth.Enabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"WA_SEND_RETRIES":   "many",
		"WA_BACKOFF_UNIT":   "soon",
		"WA_SEND_RATE":      "fast",
		"WA_MAX_FLOW_DELAY": "5 minutes",
		"LOG_LEVEL":         "loud",
		"PORT":              "80 80",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
