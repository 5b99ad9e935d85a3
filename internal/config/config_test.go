package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SUPER_ADMIN_EMAILS", " Owner@Example.com, ,ops@example.com ")
	t.Setenv("GEMINI_TIMEOUT", "15s")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("S3_PUBLIC_BASE_URL", "https://cdn.example.com/")

	cfg := Load()

	assert.Equal(t, []string{"owner@example.com", "ops@example.com"}, cfg.SuperAdmins)
	assert.Equal(t, 15*time.Second, cfg.Gemini.Timeout)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "https://cdn.example.com", cfg.Blob.PublicBaseURL)
}

func TestGetenvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("GEMINI_TIMEOUT", "soon")
	assert.Equal(t, time.Minute, getenvDuration("GEMINI_TIMEOUT", time.Minute))
}

func TestWizardConfigModelFor(t *testing.T) {
	cfg := DefaultWizardConfig()
	cfg.Models = map[string]string{"theme": "gemini-pro"}

	assert.Equal(t, "gemini-pro", cfg.ModelFor("theme", "gemini-flash"))
	assert.Equal(t, "gemini-flash", cfg.ModelFor("faq", "gemini-flash"))
}

func TestValidateWizardConfig(t *testing.T) {
	cfg := DefaultWizardConfig()
	assert.NoError(t, validateWizardConfig(cfg))

	cfg.ChunkSize = 501
	assert.Error(t, validateWizardConfig(cfg))

	cfg = DefaultWizardConfig()
	cfg.RatePerMinute = 0
	assert.Error(t, validateWizardConfig(cfg))
}
