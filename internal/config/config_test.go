package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "COMPLETION_PROVIDER", "USAGE_STORE", "USAGE_ENFORCE", "SESSION_MAX_DURATION", "CORS_ALLOWED_ORIGINS", "AUDIO_SAMPLE_RATE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Server.CORSOrigins)
	assert.Equal(t, 30.0, cfg.Usage.RealtimeMinutesCap)
	assert.Equal(t, 60.0, cfg.Usage.StandardMinutesCap)
	assert.Equal(t, 2.0, cfg.Usage.DailyCostCapUSD)
	assert.Equal(t, 0.30, cfg.Usage.RealtimeRate)
	assert.Equal(t, 0.03, cfg.Usage.StandardRate)
	assert.Equal(t, 10*time.Minute, cfg.Usage.IdleTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Usage.MaxSessionDuration)
	assert.True(t, cfg.Usage.Enforce)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, 24000, cfg.Speech.SampleRate)
	assert.Equal(t, 0.5, cfg.Realtime.VADThreshold)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("USAGE_REALTIME_MINUTES_CAP", "15")
	t.Setenv("SESSION_MAX_DURATION", "45m")
	t.Setenv("USAGE_ENFORCE", "false")
	t.Setenv("COMPLETION_PROVIDER", "Anthropic")
	t.Setenv("USAGE_STORE", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 15.0, cfg.Usage.RealtimeMinutesCap)
	assert.Equal(t, 45*time.Minute, cfg.Usage.MaxSessionDuration)
	assert.False(t, cfg.Usage.Enforce)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PORT", "80 80"},
		{"USAGE_DAILY_COST_CAP_USD", "-1"},
		{"USAGE_STANDARD_MINUTES_CAP", "lots"},
		{"SESSION_IDLE_TIMEOUT", "0s"},
		{"COMPLETION_PROVIDER", "gemini"},
		{"USAGE_ENFORCE", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
