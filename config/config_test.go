package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 5, cfg.Fetch.MaxRedirects)
	assert.Equal(t, 100, cfg.Pipeline.ChunkSize)
	assert.Equal(t, int64(5<<20), cfg.Pipeline.UploadMaxBytes)
	assert.Equal(t, []string{"sku", "title", "url", "price"}, cfg.Pipeline.RequiredAttributes)
	assert.Same(t, cfg, Get())
	assert.Equal(t, 3*time.Minute, cfg.Server.WriteTimeout)
	assert.Greater(t, cfg.Server.WriteTimeout, cfg.Fetch.MaxDuration())
}

func TestFetchMaxDuration(t *testing.T) {
	assert.Equal(t, 80*time.Second, DefaultFetchConfig().MaxDuration())
	assert.Equal(t, 5*time.Second, FetchConfig{Timeout: 5 * time.Second}.MaxDuration())
}

func TestLoadRaisesShortWriteTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  write_timeout: 60s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Fetch.MaxDuration()+time.Minute, cfg.Server.WriteTimeout)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  chunk_size: 50\n"), 0o644))

	t.Setenv("FEED_SERVICE_PIPELINE_CHUNK_SIZE", "25")
	t.Setenv("DATABASE_URL", "postgres://feeds@localhost/feeds")
	t.Setenv("FEED_SERVICE_FETCH_INSECURE_SKIP_VERIFY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Pipeline.ChunkSize)
	assert.Equal(t, "postgres://feeds@localhost/feeds", cfg.Database.URL)
	assert.True(t, cfg.Fetch.InsecureSkipVerify)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDelimiterRunes(t *testing.T) {
	assert.Equal(t, []rune{',', ';', '\t', '|'}, PipelineConfig{}.DelimiterRunes())
	assert.Equal(t, []rune{';', '|'}, PipelineConfig{Delimiters: []string{";", "", "|"}}.DelimiterRunes())
}
