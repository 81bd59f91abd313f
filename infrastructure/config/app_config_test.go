package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"spextract/infrastructure/spclient"
)

func TestLoadAppConfigFromEnv_Defaults(t *testing.T) {
	cfg := LoadAppConfigFromEnv()

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "config.json"), filepath.Clean(cfg.ConfigPath))
	assert.Equal(t, StateBackendSQLite, cfg.StateBackend)
	assert.Equal(t, spclient.DefaultBaseURL, cfg.Graph.BaseURL)
	assert.Equal(t, spclient.DefaultTokenURL, cfg.Graph.TokenURL)
	assert.Equal(t, 10, cfg.Graph.Retry.MaxRetries)
	assert.Equal(t, 300*time.Millisecond, cfg.Graph.Retry.InitialInterval)
	assert.Equal(t, filepath.Join("data", "state.db"), filepath.Clean(cfg.Database.Path))
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadAppConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/spx")
	t.Setenv("STATE_BACKEND", "Redis")
	t.Setenv("STATE_KEY", "tenant-a")
	t.Setenv("HTTP_MAX_RETRIES", "3")
	t.Setenv("HTTP_BACKOFF_INITIAL", "1s")
	t.Setenv("HTTP_RATE_LIMIT_RPS", "2.5")
	t.Setenv("HTTP_TIMEOUT", "bogus")
	t.Setenv("ITEMS_PAGE_SIZE", "500")
	t.Setenv("DB_ENABLE_WAL", "off")
	t.Setenv("REDIS_DB", "4")

	cfg := LoadAppConfigFromEnv()

	assert.Equal(t, "/srv/spx/config.json", cfg.ConfigPath)
	assert.Equal(t, "/srv/spx/state.db", cfg.Database.Path)
	assert.Equal(t, StateBackendRedis, cfg.StateBackend)
	assert.Equal(t, "tenant-a", cfg.StateKey)
	assert.Equal(t, 3, cfg.Graph.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Graph.Retry.InitialInterval)
	assert.Equal(t, 2.5, cfg.Graph.Retry.RateLimit)
	assert.Equal(t, 60*time.Second, cfg.Graph.Retry.AttemptTimeout, "unparseable values keep the default")
	assert.Equal(t, 500, cfg.Graph.ItemsPageSize)
	assert.False(t, cfg.Database.EnableWAL)
	assert.Equal(t, 4, cfg.Redis.DB)
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		def  bool
		want bool
	}{
		{"yes", false, true},
		{" ON ", false, true},
		{"0", true, false},
		{"n", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseBool(tt.in, tt.def), tt.in)
	}
}
