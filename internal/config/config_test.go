package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3000, cfg.RequestDelayMs)
	assert.Equal(t, 5, cfg.InventoryQuota)
	assert.Equal(t, 30*time.Minute, cfg.InventoryWindow)
	assert.NotEmpty(t, cfg.UserAgents)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REQUEST_DELAY_MS", "500")
	t.Setenv("INVENTORY_WINDOW", "10m")
	t.Setenv("USER_AGENT_POOL", "agent-a, agent-b")

	cfg := Load()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 500, cfg.RequestDelayMs)
	assert.Equal(t, 10*time.Minute, cfg.InventoryWindow)
	assert.Equal(t, []string{"agent-a", "agent-b"}, cfg.UserAgents)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("REQUEST_DELAY_MS", "not-a-number")
	t.Setenv("BACKOFF_BASE", "not-a-duration")

	cfg := Load()
	assert.Equal(t, 3000, cfg.RequestDelayMs)
	assert.Equal(t, time.Second, cfg.BackoffBase)
}
