package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8089", cfg.Server.Addr)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
workspace: /srv/apps
data_dir: /srv/data
server:
  addr: ":9000"
  session_ttl: 10m
llm:
  provider: gemini
  model: gemini-2.0-flash
  timeout: 45s
pipeline:
  concurrency: 8
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/apps", cfg.Workspace)
	assert.Equal(t, "/srv/data", cfg.DataDir)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Minute, cfg.GetSessionTTL())
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 45*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAPGEN_WORKSPACE", "/tmp/ws")
	t.Setenv("CAPGEN_ADDR", ":7777")
	t.Setenv("CAPGEN_CONCURRENCY", "2")
	t.Setenv("CAPGEN_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ws", cfg.Workspace)
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Pipeline.Concurrency)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestEnvBadConcurrencyIgnored(t *testing.T) {
	t.Setenv("CAPGEN_CONCURRENCY", "zero")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
}

func TestInvalidDurationsFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Timeout = "soon"
	cfg.Server.SessionTTL = "later"
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 30*time.Minute, cfg.GetSessionTTL())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Server.Addr = ":9100"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", loaded.Server.Addr)
}
