package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.CheckTimeout)
	assert.Equal(t, 50, cfg.MaxMedications)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.KnowledgeBasePath)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 50, cfg.MaxMedications)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("MEDSAFE_DATA_DIR", "/tmp/test-medsafe")
	t.Setenv("MEDSAFE_KB_PATH", "/tmp/kb.json")
	t.Setenv("MEDSAFE_CACHE_MAX_ITEMS", "500")
	t.Setenv("MEDSAFE_CACHE_TTL", "12h")
	t.Setenv("MEDSAFE_CHECK_TIMEOUT", "3s")
	t.Setenv("MEDSAFE_MAX_MEDICATIONS", "20")
	t.Setenv("MEDSAFE_LOG_LEVEL", "debug")
	t.Setenv("MEDSAFE_LOG_FORMAT", "text")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-medsafe", cfg.DataDir)
	assert.Equal(t, "/tmp/kb.json", cfg.KnowledgeBasePath)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 3*time.Second, cfg.EngineConfig().CheckTimeout)
	assert.Equal(t, 20, cfg.EngineConfig().MaxMedications)
	assert.Equal(t, "debug", cfg.LoggingConfig().Level)
	assert.Equal(t, "text", cfg.LoggingConfig().Format)
}

func TestLoadLiteConfig_InvalidValuesKeepDefaults(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("MEDSAFE_CACHE_MAX_ITEMS", "-4")
	t.Setenv("MEDSAFE_CACHE_TTL", "soon")
	t.Setenv("MEDSAFE_MAX_MEDICATIONS", "many")

	cfg := LoadLiteConfig()

	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 50, cfg.MaxMedications)
}

func TestLiteConfig_FeedbackDBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.medsafe-cds"}

	path := cfg.FeedbackDBPath()

	assert.Equal(t, "/home/user/.medsafe-cds/feedback.db", path)
}

func TestLiteConfig_ExportDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.medsafe-cds"}

	path := cfg.ExportDir()

	assert.Equal(t, "/home/user/.medsafe-cds/exports", path)
}

func TestLiteConfig_CacheConfig(t *testing.T) {
	cfg := &LiteConfig{CacheMaxItems: 42, CacheTTL: time.Minute}

	cache := cfg.CacheConfig()

	assert.False(t, cache.Enabled)
	assert.Empty(t, cache.RedisURL)
	assert.Equal(t, 42, cache.MemoryMaxItems)
	assert.Equal(t, time.Minute, cache.MemoryTTL)
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "medsafe")}

	err := cfg.EnsureDataDir()
	require.NoError(t, err)

	// Verify directories exist
	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"MEDSAFE_DATA_DIR",
		"MEDSAFE_KB_PATH",
		"MEDSAFE_CACHE_MAX_ITEMS",
		"MEDSAFE_CACHE_TTL",
		"MEDSAFE_CHECK_TIMEOUT",
		"MEDSAFE_MAX_MEDICATIONS",
		"MEDSAFE_LOG_LEVEL",
		"MEDSAFE_LOG_FORMAT",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
