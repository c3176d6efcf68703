package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, time.Second, cfg.ProgressInterval)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.True(t, cfg.DiskCheck)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
tmp_dir: /tmp/vdl-test
threads: 8
buffer_size: 64KiB
progress_interval: 250ms
limit_rate: 2MB
disk_check: false
default_extension: ""
store:
  driver: postgres
  dsn: postgres://localhost/vdl
http:
  timeout: 30s
  proxy: http://proxy:8080
  headers:
    Referer: https://example.com
s3:
  profile: archive
log:
  debug: true
  max_backups: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/tmp/vdl-test", cfg.TempDir)
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, 64*1024, cfg.BufferSize)
	assert.Equal(t, 250*time.Millisecond, cfg.ProgressInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, int64(2<<20), cfg.LimitRate)
	assert.False(t, cfg.DiskCheck)
	assert.Equal(t, "", cfg.DefaultExtension)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 90*time.Second, cfg.HTTP.KATimeout)
	assert.Equal(t, "https://example.com", cfg.HTTP.Headers["Referer"])
	assert.Equal(t, "archive", cfg.S3.Profile)
	assert.True(t, cfg.Log.Debug)
	assert.Equal(t, 7, cfg.Log.MaxBackups)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("poll_interval: soon\n"), 0644))
	_, err := LoadFromFile(bad)
	assert.ErrorContains(t, err, "poll_interval")

	_, err = Load(filepath.Join(dir, "missing.yaml"), true)
	assert.Error(t, err)

	cfg, err := Load(filepath.Join(dir, "missing.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, Default().Threads, cfg.Threads)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VDL_THREADS", "2")
	t.Setenv("VDL_STORE_DRIVER", "memory")
	t.Setenv("VDL_LIMIT_RATE", "1K")
	cfg := Default()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, 2, cfg.Threads)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, int64(1024), cfg.LimitRate)

	t.Setenv("VDL_THREADS", "many")
	assert.Error(t, cfg.LoadFromEnv())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Threads = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Driver = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "dsn")

	cfg = Default()
	cfg.Store.Driver = "redis"
	assert.Error(t, cfg.Validate())
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"32KiB", 32 * 1024},
		{"10mb", 10 << 20},
		{"1.5G", 3 << 29},
		{"7 B", 7},
	}
	for _, tt := range tests {
		got, err := ParseBytes(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	for _, bad := range []string{"", "abc", "-1K"} {
		_, err := ParseBytes(bad)
		assert.Error(t, err, bad)
	}
}
