package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	v.Set("data_dir", t.TempDir())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 10*time.Second, cfg.EvalTimeout())
	assert.Equal(t, 50, cfg.BatchEvery)
	assert.Equal(t, FallbackUserAgent, cfg.ReplayUserAgent())
	assert.Equal(t, filepath.Join(cfg.DataDir, "history.sqlite3"), cfg.SqlitePath())
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	body := `{"user_agent": "'Mozilla/5.0 Test'", "poll_interval_ms": 50, "sqlite": {"dsn": ":memory:"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644))

	v := viper.New()
	v.Set("data_dir", dir)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0 Test", cfg.UserAgent)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, ":memory:", cfg.SqlitePath())
}

func TestCleanUserAgent(t *testing.T) {
	ua, err := CleanUserAgent(" \"`Mozilla/5.0 (X11)`\" ")
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0 (X11)", ua)

	_, err = CleanUserAgent("curl/8.0")
	assert.Error(t, err)
}
