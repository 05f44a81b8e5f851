package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWebhookDurations(t *testing.T) {
	t.Setenv("WEBHOOK_URL", "https://chat.example.com/hook")
	t.Setenv("WEBHOOK_ENABLED", "true")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")
	t.Setenv("WEBHOOK_RETRY_DELAY", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Webhook.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, 750*time.Millisecond, cfg.Webhook.RetryDelay)
}

func TestLoadFallsBackOnBadRetryDelay(t *testing.T) {
	t.Setenv("WEBHOOK_RETRY_DELAY", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Webhook.RetryDelay)
	assert.False(t, cfg.Webhook.Enabled)
}
